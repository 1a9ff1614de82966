// Package engine implements the operations of the service on top of the
// handle registry and an fhe.Backend: key generation, encryption, homomorphic
// evaluation and decryption.
//
// The four components share nothing but the registry, the backend and the
// compute runner. Every request is validated completely before any
// cryptographic work is started, and every call into the backend is guarded so
// that a failure or panic inside the primitive library surfaces as an
// errs.CodeInternalCrypto error.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/Hermetic-Labs/hermetic-fhe/internal/errs"
	"github.com/Hermetic-Labs/hermetic-fhe/internal/registry"
	"github.com/Hermetic-Labs/hermetic-fhe/pkg/fhe"
)

// Runner executes cryptographic work, typically in a bounded compute pool.
type Runner interface {
	Do(ctx context.Context, fn func() error) error
}

// Inline runs work on the calling goroutine.
type Inline struct{}

func (Inline) Do(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn()
}

type core struct {
	reg     *registry.Registry
	backend fhe.Backend
	runner  Runner
}

func newCore(reg *registry.Registry, backend fhe.Backend, runner Runner) core {
	if runner == nil {
		runner = Inline{}
	}
	return core{reg: reg, backend: backend, runner: runner}
}

// crypto runs fn in a compute slot under guard.
func (c core) crypto(ctx context.Context, what string, fn func() error) error {
	return c.runner.Do(ctx, func() error {
		return guard(errs.InternalCrypto, what, fn)
	})
}

// guard converts a panic or an unclassified error from fn into an error built
// by wrap. Classified errors pass through.
func guard(wrap func(string, error) *errs.Error, what string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = wrap(what, fmt.Errorf("panic: %v", r))
		}
	}()

	if err := fn(); err != nil {
		var e *errs.Error
		if errors.As(err, &e) {
			return err
		}
		return wrap(what, err)
	}
	return nil
}

// insert registers obj under a freshly minted handle.
func (c core) insert(obj registry.Object) (registry.Handle, error) {
	h, err := c.reg.Put(obj)
	if err != nil {
		return "", fmt.Errorf("register %s: %w", obj.Kind(), err)
	}
	return h, nil
}
