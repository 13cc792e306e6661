// Package signer signs aggregator-built swap transactions with the operator key.
package signer

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// DeserializationError means the transaction bytes are not a valid envelope.
type DeserializationError struct {
	Err error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("deserialize transaction: %v", e.Err)
}

func (e *DeserializationError) Unwrap() error {
	return e.Err
}

// SignError means the operator could not sign the transaction.
type SignError struct {
	Signer string
	Err    error
}

func (e *SignError) Error() string {
	return fmt.Sprintf("sign transaction as %s: %v", e.Signer, e.Err)
}

func (e *SignError) Unwrap() error {
	return e.Err
}

// Signed is a signed, serialized transaction.
type Signed struct {
	Raw       []byte
	Signature string // base58, the operator's signature
}

// Signer signs versioned and legacy transactions as the operator.
type Signer struct {
	key solana.PrivateKey
}

// New creates a Signer for the given keypair.
func New(key solana.PrivateKey) *Signer {
	return &Signer{key: key}
}

// PublicKey returns the operator public key.
func (s *Signer) PublicKey() solana.PublicKey {
	return s.key.PublicKey()
}

// Address returns the operator public key in base58.
func (s *Signer) Address() string {
	return s.PublicKey().String()
}

// Decode parses a serialized transaction envelope.
func Decode(raw []byte) (*solana.Transaction, error) {
	if len(raw) == 0 {
		return nil, &DeserializationError{Err: fmt.Errorf("empty payload")}
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, &DeserializationError{Err: err}
	}
	return tx, nil
}

// Sign deserializes raw, places the operator signature in the slot matching the
// operator's position among the required signers, and re-serializes.
// Signatures of other signers are left untouched.
func (s *Signer) Sign(raw []byte) (*Signed, error) {
	tx, err := Decode(raw)
	if err != nil {
		return nil, err
	}

	owner := s.PublicKey()
	required := int(tx.Message.Header.NumRequiredSignatures)
	if required > len(tx.Message.AccountKeys) {
		return nil, &DeserializationError{
			Err: fmt.Errorf("header requires %d signers, message has %d keys", required, len(tx.Message.AccountKeys)),
		}
	}

	index := -1
	for i := 0; i < required; i++ {
		if tx.Message.AccountKeys[i].Equals(owner) {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, &SignError{Signer: owner.String(), Err: fmt.Errorf("not a required signer")}
	}

	payload, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, &SignError{Signer: owner.String(), Err: fmt.Errorf("marshal message: %w", err)}
	}

	sig, err := s.key.Sign(payload)
	if err != nil {
		return nil, &SignError{Signer: owner.String(), Err: err}
	}

	for len(tx.Signatures) < required {
		tx.Signatures = append(tx.Signatures, solana.Signature{})
	}
	tx.Signatures[index] = sig

	out, err := tx.MarshalBinary()
	if err != nil {
		return nil, &SignError{Signer: owner.String(), Err: fmt.Errorf("marshal transaction: %w", err)}
	}

	return &Signed{Raw: out, Signature: sig.String()}, nil
}
