// Package codec serializes encrypted values into a self-describing envelope.
//
// The envelope is RLP encoded and records the value kind, bit width and
// parameter set next to one serialized block per encrypted bit, so a caller
// can hand a ciphertext back to the service without a registry handle.
package codec

import (
	"fmt"

	"github.com/luxfi/geth/rlp"

	"github.com/Hermetic-Labs/hermetic-fhe/internal/errs"
	"github.com/Hermetic-Labs/hermetic-fhe/internal/registry"
	"github.com/Hermetic-Labs/hermetic-fhe/pkg/fhe"
)

// Version is the envelope version written by Marshal and required by Unmarshal.
const Version = 1

// Wire kinds.
const (
	kindBoolean uint8 = 1
	kindInteger uint8 = 2
)

type envelope struct {
	Version      uint
	Kind         uint8
	NumBits      uint
	ParameterSet uint8
	Blocks       [][]byte
}

// Codec converts between encrypted values and envelope bytes.
type Codec struct {
	backend fhe.Backend
}

// New creates a codec that delegates per-bit serialization to backend.
func New(backend fhe.Backend) *Codec {
	return &Codec{backend: backend}
}

// Marshal encodes v. Failures come from the backend and are reported as
// internal crypto errors.
func (c *Codec) Marshal(v registry.EncryptedValue) ([]byte, error) {
	env := envelope{
		Version:      Version,
		NumBits:      uint(v.Width()),
		ParameterSet: uint8(v.Ciphertext().ParameterSet()),
	}
	switch v.(type) {
	case registry.Boolean:
		env.Kind = kindBoolean
	case registry.Integer:
		env.Kind = kindInteger
	}

	blocks, err := c.backend.MarshalCiphertext(v.Ciphertext())
	if err != nil {
		return nil, errs.InternalCrypto("serialize ciphertext", err)
	}
	env.Blocks = blocks

	data, err := rlp.EncodeToBytes(&env)
	if err != nil {
		return nil, errs.InternalCrypto("encode envelope", err)
	}
	return data, nil
}

// Unmarshal decodes an envelope. Every malformed or inconsistent input is
// reported as a serialization error.
func (c *Codec) Unmarshal(data []byte) (registry.EncryptedValue, error) {
	if len(data) == 0 {
		return nil, errs.Serialization("empty ciphertext", nil)
	}

	var env envelope
	if err := rlp.DecodeBytes(data, &env); err != nil {
		return nil, errs.Serialization("decode envelope", err)
	}
	if env.Version != Version {
		return nil, errs.Serialization(fmt.Sprintf("unsupported envelope version %d", env.Version), nil)
	}

	ps := fhe.ParameterSet(env.ParameterSet)
	if !ps.Valid() {
		return nil, errs.Serialization(fmt.Sprintf("unknown parameter set %d", env.ParameterSet), nil)
	}

	numBits := int(env.NumBits)
	switch env.Kind {
	case kindBoolean:
		if numBits != 1 {
			return nil, errs.Serialization(fmt.Sprintf("boolean with %d bits", numBits), nil)
		}
	case kindInteger:
		if !fhe.ValidWidth(numBits) {
			return nil, errs.Serialization(fmt.Sprintf("unsupported integer width %d", numBits), nil)
		}
	default:
		return nil, errs.Serialization(fmt.Sprintf("unknown value kind %d", env.Kind), nil)
	}
	if len(env.Blocks) != numBits {
		return nil, errs.Serialization(fmt.Sprintf("%d blocks for %d bits", len(env.Blocks), numBits), nil)
	}

	ct, err := c.backend.UnmarshalCiphertext(ps, env.Blocks)
	if err != nil {
		return nil, errs.Serialization("deserialize ciphertext", err)
	}
	if ct.NumBits() != numBits {
		return nil, errs.Serialization(fmt.Sprintf("ciphertext has %d bits, envelope declares %d", ct.NumBits(), numBits), nil)
	}

	if env.Kind == kindBoolean {
		return registry.Boolean{CT: ct}, nil
	}
	return registry.Integer{CT: ct, NumBits: numBits}, nil
}
