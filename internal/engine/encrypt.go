package engine

import (
	"context"

	"github.com/Hermetic-Labs/hermetic-fhe/internal/errs"
	"github.com/Hermetic-Labs/hermetic-fhe/internal/registry"
	"github.com/Hermetic-Labs/hermetic-fhe/pkg/fhe"
)

// Encryptor turns plaintext into registered ciphertexts.
type Encryptor struct {
	core
}

func NewEncryptor(reg *registry.Registry, backend fhe.Backend, runner Runner) *Encryptor {
	return &Encryptor{core: newCore(reg, backend, runner)}
}

// EncryptBoolean encrypts value under the client key clientHandle.
func (e *Encryptor) EncryptBoolean(ctx context.Context, clientHandle registry.Handle, value bool) (registry.Handle, error) {
	ck, err := e.reg.ClientKey(clientHandle)
	if err != nil {
		return "", err
	}

	var ct fhe.Ciphertext
	err = e.crypto(ctx, "encrypt boolean", func() error {
		var err error
		ct, err = e.backend.EncryptBool(ck.Key, value)
		return err
	})
	if err != nil {
		return "", err
	}
	return e.insert(registry.Boolean{CT: ct})
}

// EncryptInteger encrypts value as an unsigned numBits-bit integer. Below 64
// bits value must lie in [0, 2^numBits); at 64 bits every int64 is accepted
// and stored as its two's-complement bit pattern.
func (e *Encryptor) EncryptInteger(ctx context.Context, clientHandle registry.Handle, value int64, numBits uint32) (registry.Handle, error) {
	ck, err := e.reg.ClientKey(clientHandle)
	if err != nil {
		return "", err
	}
	plain, err := checkInteger(value, numBits)
	if err != nil {
		return "", err
	}

	var ct fhe.Ciphertext
	err = e.crypto(ctx, "encrypt integer", func() error {
		var err error
		ct, err = e.backend.EncryptUint(ck.Key, plain, int(numBits))
		return err
	})
	if err != nil {
		return "", err
	}
	return e.insert(registry.Integer{CT: ct, NumBits: int(numBits)})
}

func checkInteger(value int64, numBits uint32) (uint64, error) {
	if numBits > 64 || !fhe.ValidWidth(int(numBits)) {
		return 0, errs.InvalidArgument("unsupported bit width %d, want one of %v", numBits, fhe.SupportedWidths)
	}
	if numBits == 64 {
		return uint64(value), nil
	}
	if value < 0 || uint64(value) > fhe.MaxUint(int(numBits)) {
		return 0, errs.InvalidArgument("value %d out of range for %d-bit unsigned integer", value, numBits)
	}
	return uint64(value), nil
}
