// Package address derives record addresses from public data alone.
//
// An address is the Solana program-derived address of its seeds: the highest bump in
// [0, 255] whose hash lies off the ed25519 curve. No private key exists for such an
// address, and the bump stored in a record lets anyone check that the record sits at
// its canonical address.
package address

import (
	"encoding/binary"
	"errors"

	"carbon-registry/internal/domain"

	"github.com/gagliardetto/solana-go"
)

const (
	MaxSeeds      = 16
	MaxSeedLength = 32
)

// Seed tags. Including the tag in the derivation keeps record types from colliding.
const (
	SeedProgramState = "program_state"
	SeedProject      = "project"
	SeedCreditBatch  = "credit_batch"
	SeedRetirement   = "retirement"
	SeedMint         = "credit_mint"
)

var (
	ErrMaxSeedLengthExceeded = errors.New("seed exceeds maximum length")
	ErrTooManySeeds          = errors.New("too many seeds")
	ErrOnCurve               = errors.New("derived address lies on the ed25519 curve")
	ErrNoViableBump          = errors.New("unable to find a viable bump seed")
)

// Well-known program ids of the token collaborator.
var (
	TokenProgramID           = domain.Pubkey(solana.TokenProgramID)
	AssociatedTokenProgramID = domain.Pubkey(solana.SPLAssociatedTokenAccountProgramID)
)

// IsOnCurve reports whether b decodes to a valid ed25519 point.
func IsOnCurve(b []byte) bool {
	if len(b) != domain.PubkeyLength {
		return false
	}
	return solana.IsOnCurve(b)
}

func checkSeeds(seeds [][]byte, max int) error {
	if len(seeds) > max {
		return ErrTooManySeeds
	}
	for _, s := range seeds {
		if len(s) > MaxSeedLength {
			return ErrMaxSeedLengthExceeded
		}
	}
	return nil
}

// CreateProgramAddress hashes seeds (the last of which is usually the bump) with the
// program id. It fails when the result is on the curve.
func CreateProgramAddress(seeds [][]byte, programID domain.Pubkey) (domain.Pubkey, error) {
	if err := checkSeeds(seeds, MaxSeeds); err != nil {
		return domain.Pubkey{}, err
	}
	addr, err := solana.CreateProgramAddress(seeds, programID.Solana())
	if err != nil {
		return domain.Pubkey{}, ErrOnCurve
	}
	return domain.Pubkey(addr), nil
}

// FindProgramAddress returns the canonical address for seeds and its bump. One seed
// slot is reserved for the bump.
func FindProgramAddress(seeds [][]byte, programID domain.Pubkey) (domain.Pubkey, uint8, error) {
	if err := checkSeeds(seeds, MaxSeeds-1); err != nil {
		return domain.Pubkey{}, 0, err
	}
	addr, bump, err := solana.FindProgramAddress(seeds, programID.Solana())
	if err != nil {
		return domain.Pubkey{}, 0, ErrNoViableBump
	}
	return domain.Pubkey(addr), bump, nil
}

// VerifyCanonical checks that addr is the address for seeds at the recorded bump and
// that no higher bump would have produced a valid address.
func VerifyCanonical(addr domain.Pubkey, seeds [][]byte, bump uint8, programID domain.Pubkey) bool {
	want, wantBump, err := FindProgramAddress(seeds, programID)
	if err != nil {
		return false
	}
	return want == addr && wantBump == bump
}

// LE8 encodes v as 8 little-endian bytes.
func LE8(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func ProgramStateSeeds() [][]byte {
	return [][]byte{[]byte(SeedProgramState)}
}

func ProjectSeeds(projectID uint64) [][]byte {
	return [][]byte{[]byte(SeedProject), LE8(projectID)}
}

func CreditBatchSeeds(batchID uint64) [][]byte {
	return [][]byte{[]byte(SeedCreditBatch), LE8(batchID)}
}

func RetirementSeeds(batchID uint64, holder domain.Pubkey) [][]byte {
	return [][]byte{[]byte(SeedRetirement), LE8(batchID), holder.Bytes()}
}

func MintSeeds(authority domain.Pubkey, nonce uint64) [][]byte {
	return [][]byte{[]byte(SeedMint), authority.Bytes(), LE8(nonce)}
}

// Deriver binds the derivation helpers to one program id.
type Deriver struct {
	ProgramID domain.Pubkey
}

func (d Deriver) ProgramState() (domain.Pubkey, uint8, error) {
	return FindProgramAddress(ProgramStateSeeds(), d.ProgramID)
}

func (d Deriver) Project(projectID uint64) (domain.Pubkey, uint8, error) {
	return FindProgramAddress(ProjectSeeds(projectID), d.ProgramID)
}

func (d Deriver) CreditBatch(batchID uint64) (domain.Pubkey, uint8, error) {
	return FindProgramAddress(CreditBatchSeeds(batchID), d.ProgramID)
}

func (d Deriver) Retirement(batchID uint64, holder domain.Pubkey) (domain.Pubkey, uint8, error) {
	return FindProgramAddress(RetirementSeeds(batchID, holder), d.ProgramID)
}

// Mint derives a mint address under the token program.
func Mint(authority domain.Pubkey, nonce uint64) (domain.Pubkey, uint8, error) {
	return FindProgramAddress(MintSeeds(authority, nonce), TokenProgramID)
}

// AssociatedTokenAccount derives where holder's balance of mint lives.
func AssociatedTokenAccount(holder, mint domain.Pubkey) (domain.Pubkey, error) {
	addr, _, err := solana.FindAssociatedTokenAddress(holder.Solana(), mint.Solana())
	if err != nil {
		return domain.Pubkey{}, ErrNoViableBump
	}
	return domain.Pubkey(addr), nil
}
