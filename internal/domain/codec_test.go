package domain

import (
	"crypto/sha256"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(b byte) Pubkey {
	var pk Pubkey
	for i := range pk {
		pk[i] = b
	}
	return pk
}

func TestProjectEncode_Layout(t *testing.T) {
	p := &Project{
		ProjectID:            1,
		Name:                 "Reforestation Project",
		Description:          "Large scale reforestation in Amazon",
		Location:             "Brazil",
		ProjectType:          ProjectTypeReforestation,
		VerificationStandard: "VCS",
		EstimatedCredits:     10000,
		Owner:                testKey(2),
		Status:               ProjectStatusPending,
		CreatedAt:            1700000000,
		Bump:                 254,
	}
	data := p.Encode()
	d := Discriminator(KindProject)
	assert.Equal(t, d[:], data[:DiscriminatorLength])
	// project id follows the discriminator, little-endian
	assert.Equal(t, []byte{1, 0, 0, 0, 0, 0, 0, 0}, data[8:16])
	// then the name with a u32 length prefix
	assert.Equal(t, []byte{21, 0, 0, 0}, data[16:20])
	assert.Equal(t, "Reforestation Project", string(data[20:41]))

	got, err := DecodeProject(data)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestDecodeProject_RejectsBadInput(t *testing.T) {
	p := &Project{ProjectID: 3, Name: "x", Owner: testKey(1)}
	data := p.Encode()

	_, err := DecodeProject(data[:len(data)-1])
	assert.ErrorIs(t, err, ErrInvalidRecord)

	_, err = DecodeProject(append(append([]byte{}, data...), 0))
	assert.ErrorIs(t, err, ErrInvalidRecord)

	_, err = DecodeCreditBatch(data)
	assert.ErrorIs(t, err, ErrInvalidRecord)

	bad := append([]byte{}, data...)
	// status tag sits 1+8+8+1 bytes before the end: status, createdAt, verifiedAt, bump
	bad[len(bad)-18] = 9
	_, err = DecodeProject(bad)
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestRecords_RoundTrip(t *testing.T) {
	state := &ProgramState{Authority: testKey(1), TotalCreditsIssued: 1000, TotalCreditsRetired: 500, ProjectCount: 2, NextBatchSequence: 4, Bump: 255}
	gotState, err := DecodeProgramState(state.Encode())
	require.NoError(t, err)
	assert.Equal(t, state, gotState)

	batch := &CreditBatch{BatchID: 4, ProjectID: 1, Amount: 1000, VintageYear: 2024, MetadataURI: "ipfs://evidence", IssuedAt: 10, RetiredAmount: 500, Owner: testKey(3), Mint: testKey(4), Bump: 251}
	gotBatch, err := DecodeCreditBatch(batch.Encode())
	require.NoError(t, err)
	assert.Equal(t, batch, gotBatch)
	assert.Equal(t, uint64(500), gotBatch.LiveBalance())

	ret := &Retirement{BatchID: 4, Amount: 500, Reason: "offset 2024 flights", RetiredBy: testKey(3), RetiredAt: 11, Bump: 250}
	gotRet, err := DecodeRetirement(ret.Encode())
	require.NoError(t, err)
	assert.Equal(t, ret, gotRet)
}

func TestDiscriminator_AccountNamespace(t *testing.T) {
	for _, kind := range recordKinds {
		sum := sha256.Sum256([]byte("account:" + kind))
		d := Discriminator(kind)
		assert.Equal(t, sum[:DiscriminatorLength], d[:], kind)
	}
}

func TestCreditBatchEncode_MintFollowsOwner(t *testing.T) {
	batch := &CreditBatch{BatchID: 1, MetadataURI: "u", Owner: testKey(5), Mint: testKey(6), Bump: 200}
	data := batch.Encode()
	// ... owner(32) mint(32) bump(1)
	assert.Equal(t, byte(200), data[len(data)-1])
	mint := testKey(6)
	owner := testKey(5)
	assert.Equal(t, mint[:], data[len(data)-33:len(data)-1])
	assert.Equal(t, owner[:], data[len(data)-65:len(data)-33])
}

func TestKindOfData(t *testing.T) {
	kind, ok := KindOfData((&Retirement{}).Encode())
	assert.True(t, ok)
	assert.Equal(t, KindRetirement, kind)

	_, ok = KindOfData([]byte{1, 2, 3})
	assert.False(t, ok)
}

func TestProjectType_JSON(t *testing.T) {
	b, err := json.Marshal(ProjectTypeCarbonCapture)
	require.NoError(t, err)
	assert.Equal(t, `"carbonCapture"`, string(b))

	var pt ProjectType
	require.NoError(t, json.Unmarshal([]byte(`"RenewableEnergy"`), &pt))
	assert.Equal(t, ProjectTypeRenewableEnergy, pt)

	assert.ErrorIs(t, json.Unmarshal([]byte(`"volcano"`), &pt), ErrInvalidProjectType)
}

func TestPubkey_TextRoundTrip(t *testing.T) {
	pk := testKey(7)
	parsed, err := ParsePubkey(pk.String())
	require.NoError(t, err)
	assert.Equal(t, pk, parsed)

	_, err = ParsePubkey("abc")
	assert.ErrorIs(t, err, ErrInvalidPubkey)
	_, err = ParsePubkey("0OIl")
	assert.ErrorIs(t, err, ErrInvalidPubkey)
}

func TestLedgerError_IsByCode(t *testing.T) {
	wrapped := ErrInsufficientCredits.Wrap(ErrInsufficientBalance)
	assert.ErrorIs(t, wrapped, ErrInsufficientCredits)
	assert.ErrorIs(t, wrapped, ErrInsufficientBalance)
	assert.NotErrorIs(t, ErrUnauthorized, ErrInsufficientCredits)
	assert.Equal(t, KindAccounting, KindOf(wrapped))
}
