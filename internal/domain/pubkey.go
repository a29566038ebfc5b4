package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// PubkeyLength is the size of an ed25519 public key and of every ledger address.
const PubkeyLength = 32

// Pubkey identifies a signer or a record address. Text form is base58. It converts
// freely to solana.PublicKey, which shares its layout.
type Pubkey [PubkeyLength]byte

var ErrInvalidPubkey = errors.New("invalid public key")

// ParsePubkey decodes a base58 string into a Pubkey.
func ParsePubkey(s string) (Pubkey, error) {
	pk, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return Pubkey{}, fmt.Errorf("%w: %v", ErrInvalidPubkey, err)
	}
	return Pubkey(pk), nil
}

// MustParsePubkey is for package-level constants only.
func MustParsePubkey(s string) Pubkey {
	pk, err := ParsePubkey(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// PubkeyFromBytes copies a 32-byte slice into a Pubkey.
func PubkeyFromBytes(b []byte) (Pubkey, error) {
	var pk Pubkey
	if len(b) != PubkeyLength {
		return pk, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidPubkey, PubkeyLength, len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

// Solana returns p as a solana-go key.
func (p Pubkey) Solana() solana.PublicKey {
	return solana.PublicKey(p)
}

func (p Pubkey) String() string {
	return p.Solana().String()
}

func (p Pubkey) Bytes() []byte {
	return p[:]
}

func (p Pubkey) IsZero() bool {
	return p == Pubkey{}
}

func (p Pubkey) Equal(o Pubkey) bool {
	return bytes.Equal(p[:], o[:])
}

func (p Pubkey) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *Pubkey) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	pk, err := ParsePubkey(s)
	if err != nil {
		return err
	}
	*p = pk
	return nil
}
