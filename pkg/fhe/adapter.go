// Package fhe is the boundary to the homomorphic-encryption primitive library.
//
// Everything above this package sees keys and ciphertexts as opaque values and
// talks to the library only through Backend. Integers are represented as
// little-endian vectors of encrypted bits and evaluated by the library's
// bitwise integer evaluator.
package fhe

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrInvalidCiphertext   = errors.New("invalid ciphertext")
	ErrOperationFailed     = errors.New("FHE operation failed")
	ErrInvalidParameterSet = errors.New("invalid parameter set")
	ErrUnknownOperation    = errors.New("unknown operation")
	ErrInvalidWidth        = errors.New("unsupported integer width")
	ErrValueOutOfRange     = errors.New("value out of range")
	ErrKeyMismatch         = errors.New("key type not produced by this backend")
	ErrParameterMismatch   = errors.New("parameter set mismatch")
	ErrArity               = errors.New("wrong number of operands")
)

// ClientKey is private key material enabling encryption and decryption.
type ClientKey interface {
	ParameterSet() ParameterSet
}

// ServerKey is public evaluation key material derived from a ClientKey.
type ServerKey interface {
	ParameterSet() ParameterSet
}

// Ciphertext is an encrypted vector of bits.
type Ciphertext interface {
	NumBits() int
	ParameterSet() ParameterSet
}

// Backend is the set of primitive capabilities the service consumes.
//
// Implementations must be safe for concurrent use and must never mutate key or
// ciphertext values after returning them.
type Backend interface {
	// GenerateKeys creates a client key and the server key derived from it.
	GenerateKeys(ps ParameterSet) (ClientKey, ServerKey, error)

	EncryptBool(ck ClientKey, value bool) (Ciphertext, error)
	// EncryptUint encrypts the low numBits bits of value.
	EncryptUint(ck ClientKey, value uint64, numBits int) (Ciphertext, error)

	DecryptBool(ck ClientKey, ct Ciphertext) (bool, error)
	DecryptUint(ck ClientKey, ct Ciphertext) (uint64, error)

	// Evaluate runs op over the operands. Boolean gates take 1-bit operands,
	// arithmetic returns the operand width and comparisons return one bit.
	Evaluate(sk ServerKey, op OperationType, operands ...Ciphertext) (Ciphertext, error)

	// MarshalCiphertext returns one serialized block per encrypted bit.
	MarshalCiphertext(ct Ciphertext) ([][]byte, error)
	UnmarshalCiphertext(ps ParameterSet, blocks [][]byte) (Ciphertext, error)
}

// CheckOperands validates arity and parameter sets shared by all backends.
func CheckOperands(sk ServerKey, op OperationType, operands []Ciphertext) error {
	if !op.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownOperation, uint8(op))
	}
	if len(operands) != op.Arity() {
		return fmt.Errorf("%w: %s takes %d, got %d", ErrArity, op, op.Arity(), len(operands))
	}
	for _, ct := range operands {
		if ct == nil {
			return ErrInvalidCiphertext
		}
	}
	width := operands[0].NumBits()
	for _, ct := range operands {
		if ct.ParameterSet() != sk.ParameterSet() {
			return fmt.Errorf("%w: operand %s, server key %s", ErrParameterMismatch, ct.ParameterSet(), sk.ParameterSet())
		}
		if ct.NumBits() != width || width == 0 {
			return fmt.Errorf("%w: operand widths differ", ErrInvalidCiphertext)
		}
	}
	return nil
}

// UintToBits splits the low numBits bits of value, least significant first.
func UintToBits(value uint64, numBits int) []bool {
	bits := make([]bool, numBits)
	for i := range bits {
		bits[i] = (value>>uint(i))&1 == 1
	}
	return bits
}

// BitsToUint packs little-endian bits into an unsigned integer.
func BitsToUint(bits []bool) uint64 {
	var v uint64
	for i, b := range bits {
		if b && i < 64 {
			v |= 1 << uint(i)
		}
	}
	return v
}
