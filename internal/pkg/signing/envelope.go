// Package signing verifies instruction envelopes: a JSON payload string plus one or
// more ed25519 signatures over its exact bytes.
package signing

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"carbon-registry/internal/domain"

	"github.com/mr-tron/base58"
)

var (
	ErrMalformedEnvelope = errors.New("malformed instruction envelope")
	ErrNoSignatures      = errors.New("instruction envelope has no signatures")
	ErrBadSignature      = errors.New("signature verification failed")
	ErrDuplicateSigner   = errors.New("duplicate signer")
	ErrStaleTimestamp    = errors.New("instruction timestamp outside accepted window")
	ErrWrongInstruction  = errors.New("payload instruction does not match endpoint")
)

// Envelope is the request body of every instruction endpoint.
type Envelope struct {
	Payload    string      `json:"payload"`
	Signatures []Signature `json:"signatures"`
}

// Signature is one signer's base58 key and base58 signature.
type Signature struct {
	Signer    string `json:"signer"`
	Signature string `json:"signature"`
}

// Payload is what the signers commit to.
type Payload struct {
	Instruction string          `json:"instruction"`
	Timestamp   int64           `json:"timestamp"`
	Args        json.RawMessage `json:"args"`
}

// Verified is an envelope whose signatures all checked out. Signers[0] is the caller.
type Verified struct {
	Payload   Payload
	Signers   []domain.Pubkey
	Signature string
}

// Caller returns the first signer.
func (v *Verified) Caller() domain.Pubkey {
	return v.Signers[0]
}

// Verify checks every signature against the raw payload bytes and decodes the payload.
func (e *Envelope) Verify() (*Verified, error) {
	if e.Payload == "" {
		return nil, ErrMalformedEnvelope
	}
	if len(e.Signatures) == 0 {
		return nil, ErrNoSignatures
	}
	msg := []byte(e.Payload)
	signers := make([]domain.Pubkey, 0, len(e.Signatures))
	seen := make(map[domain.Pubkey]struct{}, len(e.Signatures))
	for _, s := range e.Signatures {
		pk, err := domain.ParsePubkey(s.Signer)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
		}
		if _, dup := seen[pk]; dup {
			return nil, ErrDuplicateSigner
		}
		sig, err := base58.Decode(s.Signature)
		if err != nil || len(sig) != ed25519.SignatureSize {
			return nil, ErrBadSignature
		}
		if !ed25519.Verify(ed25519.PublicKey(pk[:]), msg, sig) {
			return nil, ErrBadSignature
		}
		seen[pk] = struct{}{}
		signers = append(signers, pk)
	}
	var p Payload
	if err := json.Unmarshal(msg, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if p.Instruction == "" {
		return nil, fmt.Errorf("%w: missing instruction", ErrMalformedEnvelope)
	}
	return &Verified{Payload: p, Signers: signers, Signature: e.Signatures[0].Signature}, nil
}

// CheckTimestamp rejects payloads signed too far from now in either direction.
func (v *Verified) CheckTimestamp(now time.Time, window time.Duration) error {
	ts := time.Unix(v.Payload.Timestamp, 0)
	if ts.Before(now.Add(-window)) || ts.After(now.Add(window)) {
		return ErrStaleTimestamp
	}
	return nil
}

// Sign builds an envelope over payload; the first key becomes the caller.
func Sign(payload Payload, keys ...ed25519.PrivateKey) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	env := &Envelope{Payload: string(raw)}
	for _, k := range keys {
		pub := k.Public().(ed25519.PublicKey)
		env.Signatures = append(env.Signatures, Signature{
			Signer:    base58.Encode(pub),
			Signature: base58.Encode(ed25519.Sign(k, raw)),
		})
	}
	return env, nil
}

// PubkeyOf returns the ledger identity of a private key.
func PubkeyOf(k ed25519.PrivateKey) domain.Pubkey {
	var pk domain.Pubkey
	copy(pk[:], k.Public().(ed25519.PublicKey))
	return pk
}
