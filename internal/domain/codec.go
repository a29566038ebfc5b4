package domain

import (
	"bytes"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
)

// DiscriminatorLength is the size of the type prefix on every encoded record.
const DiscriminatorLength = 8

var (
	errShortBuffer   = errors.New("unexpected end of record data")
	errTrailingBytes = errors.New("trailing bytes after record")
	errDiscriminator = errors.New("record discriminator mismatch")
)

// Discriminator returns sha256("account:" + kind)[:8].
func Discriminator(kind string) [DiscriminatorLength]byte {
	var d [DiscriminatorLength]byte
	copy(d[:], bin.Sighash(bin.SIGHASH_ACCOUNT_NAMESPACE, kind))
	return d
}

var recordKinds = []string{KindProgramState, KindProject, KindCreditBatch, KindRetirement}

// KindOfData reports which record kind an encoded blob carries.
func KindOfData(data []byte) (string, bool) {
	if len(data) < DiscriminatorLength {
		return "", false
	}
	for _, kind := range recordKinds {
		d := Discriminator(kind)
		if bytes.Equal(data[:DiscriminatorLength], d[:]) {
			return kind, true
		}
	}
	return "", false
}

// encodeRecord writes the discriminator followed by the Borsh fields of v, in struct
// declaration order.
func encodeRecord(kind string, v interface{}) []byte {
	var buf bytes.Buffer
	d := Discriminator(kind)
	buf.Write(d[:])
	// Records hold only fixed-width integers, strings and key arrays, which Borsh
	// always encodes.
	if err := bin.NewBorshEncoder(&buf).Encode(v); err != nil {
		panic(fmt.Sprintf("encode %s: %v", kind, err))
	}
	return buf.Bytes()
}

func decodeRecord(kind string, data []byte, v interface{}) error {
	if len(data) < DiscriminatorLength {
		return ErrInvalidRecord.Wrap(fmt.Errorf("%s: %w", kind, errShortBuffer))
	}
	want := Discriminator(kind)
	if !bytes.Equal(data[:DiscriminatorLength], want[:]) {
		return ErrInvalidRecord.Wrap(fmt.Errorf("%s: %w", kind, errDiscriminator))
	}
	dec := bin.NewBorshDecoder(data[DiscriminatorLength:])
	if err := dec.Decode(v); err != nil {
		return ErrInvalidRecord.Wrap(fmt.Errorf("%s: %w: %v", kind, errShortBuffer, err))
	}
	if dec.Remaining() != 0 {
		return ErrInvalidRecord.Wrap(fmt.Errorf("%s: %w", kind, errTrailingBytes))
	}
	return nil
}

// Encode serializes the program state.
func (s *ProgramState) Encode() []byte {
	return encodeRecord(KindProgramState, s)
}

// DecodeProgramState parses an encoded ProgramState.
func DecodeProgramState(data []byte) (*ProgramState, error) {
	s := &ProgramState{}
	if err := decodeRecord(KindProgramState, data, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *Project) Encode() []byte {
	return encodeRecord(KindProject, p)
}

// DecodeProject parses an encoded Project. Unknown enum tags are rejected.
func DecodeProject(data []byte) (*Project, error) {
	p := &Project{}
	if err := decodeRecord(KindProject, data, p); err != nil {
		return nil, err
	}
	if !p.ProjectType.Valid() {
		return nil, ErrInvalidRecord.Wrap(fmt.Errorf("project type tag %d", uint8(p.ProjectType)))
	}
	if !p.Status.Valid() {
		return nil, ErrInvalidRecord.Wrap(fmt.Errorf("project status tag %d", uint8(p.Status)))
	}
	return p, nil
}

func (b *CreditBatch) Encode() []byte {
	return encodeRecord(KindCreditBatch, b)
}

func DecodeCreditBatch(data []byte) (*CreditBatch, error) {
	b := &CreditBatch{}
	if err := decodeRecord(KindCreditBatch, data, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (r *Retirement) Encode() []byte {
	return encodeRecord(KindRetirement, r)
}

func DecodeRetirement(data []byte) (*Retirement, error) {
	r := &Retirement{}
	if err := decodeRecord(KindRetirement, data, r); err != nil {
		return nil, err
	}
	return r, nil
}
