package engine

import (
	"context"

	"github.com/Hermetic-Labs/hermetic-fhe/internal/errs"
	"github.com/Hermetic-Labs/hermetic-fhe/internal/registry"
	"github.com/Hermetic-Labs/hermetic-fhe/pkg/fhe"
)

// KeyPair holds the handles of a freshly generated client/server key pair.
type KeyPair struct {
	ClientKey registry.Handle
	ServerKey registry.Handle
}

// KeyManager creates and registers key material.
type KeyManager struct {
	core
}

func NewKeyManager(reg *registry.Registry, backend fhe.Backend, runner Runner) *KeyManager {
	return &KeyManager{core: newCore(reg, backend, runner)}
}

// Generate creates a key pair for ps and registers both keys.
func (m *KeyManager) Generate(ctx context.Context, ps fhe.ParameterSet) (KeyPair, error) {
	if !ps.Valid() {
		return KeyPair{}, errs.InvalidArgument("invalid parameter set %s", ps)
	}

	var (
		ck fhe.ClientKey
		sk fhe.ServerKey
	)
	err := m.crypto(ctx, "generate keys", func() error {
		var err error
		ck, sk, err = m.backend.GenerateKeys(ps)
		return err
	})
	if err != nil {
		return KeyPair{}, err
	}

	clientHandle, err := m.insert(registry.ClientKey{Key: ck})
	if err != nil {
		return KeyPair{}, err
	}
	serverHandle, err := m.insert(registry.ServerKey{Key: sk})
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{ClientKey: clientHandle, ServerKey: serverHandle}, nil
}
