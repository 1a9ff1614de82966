package engine

import (
	"context"

	"github.com/Hermetic-Labs/hermetic-fhe/internal/codec"
	"github.com/Hermetic-Labs/hermetic-fhe/internal/errs"
	"github.com/Hermetic-Labs/hermetic-fhe/internal/registry"
	"github.com/Hermetic-Labs/hermetic-fhe/pkg/fhe"
)

// Source names the ciphertext to decrypt: either a registry handle or an
// inline envelope produced by codec.Marshal. Exactly one must be set.
type Source struct {
	Handle registry.Handle
	Inline []byte
}

// Decryptor turns ciphertexts back into plaintext.
type Decryptor struct {
	core
	codec *codec.Codec
}

func NewDecryptor(reg *registry.Registry, backend fhe.Backend, runner Runner) *Decryptor {
	return &Decryptor{core: newCore(reg, backend, runner), codec: codec.New(backend)}
}

func (d *Decryptor) resolve(clientHandle registry.Handle, src Source, want registry.Kind) (registry.ClientKey, registry.EncryptedValue, error) {
	ck, err := d.reg.ClientKey(clientHandle)
	if err != nil {
		return registry.ClientKey{}, nil, err
	}

	var v registry.EncryptedValue
	switch {
	case src.Handle != "" && len(src.Inline) > 0:
		return registry.ClientKey{}, nil, errs.InvalidArgument("give either a ciphertext handle or serialized data, not both")
	case src.Handle != "":
		if v, err = d.reg.Value(src.Handle); err != nil {
			return registry.ClientKey{}, nil, err
		}
	case len(src.Inline) > 0:
		err = guard(errs.Serialization, "deserialize ciphertext", func() error {
			var err error
			v, err = d.codec.Unmarshal(src.Inline)
			return err
		})
		if err != nil {
			return registry.ClientKey{}, nil, err
		}
	default:
		return registry.ClientKey{}, nil, errs.InvalidArgument("missing ciphertext handle or serialized data")
	}

	if v.Kind() != want {
		return registry.ClientKey{}, nil, errs.TypeMismatch(want.String(), v.Type())
	}
	return ck, v, nil
}

// DecryptBoolean decrypts a boolean ciphertext.
func (d *Decryptor) DecryptBoolean(ctx context.Context, clientHandle registry.Handle, src Source) (bool, error) {
	ck, v, err := d.resolve(clientHandle, src, registry.KindBoolean)
	if err != nil {
		return false, err
	}

	var out bool
	err = d.crypto(ctx, "decrypt boolean", func() error {
		var err error
		out, err = d.backend.DecryptBool(ck.Key, v.Ciphertext())
		return err
	})
	return out, err
}

// DecryptInteger decrypts an integer ciphertext. The value is zero-extended
// from its stored width; 64-bit values are returned as their two's-complement
// int64 reading.
func (d *Decryptor) DecryptInteger(ctx context.Context, clientHandle registry.Handle, src Source) (int64, error) {
	ck, v, err := d.resolve(clientHandle, src, registry.KindInteger)
	if err != nil {
		return 0, err
	}

	var out uint64
	err = d.crypto(ctx, "decrypt integer", func() error {
		var err error
		out, err = d.backend.DecryptUint(ck.Key, v.Ciphertext())
		return err
	})
	if err != nil {
		return 0, err
	}
	return int64(out & fhe.MaxUint(v.Width())), nil
}
