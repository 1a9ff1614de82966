// Package fhetest provides a fast, insecure fhe.Backend for tests.
//
// Ciphertexts are plaintext bits masked with a key-derived pad, so decrypting
// with a foreign key yields garbage the same way a lattice scheme would. It
// also supports fault injection and counts calls into the primitives.
package fhetest

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Hermetic-Labs/hermetic-fhe/pkg/fhe"
)

var _ fhe.Backend = (*Backend)(nil)

const blockTag = 0xfe

// Backend is a plaintext fhe.Backend.
type Backend struct {
	// Delay is slept inside every primitive call.
	Delay time.Duration

	nextID atomic.Uint64
	calls  atomic.Int64

	mu        sync.Mutex
	failNext  error
	panicNext any
}

// New creates a plaintext backend.
func New() *Backend {
	return &Backend{}
}

type clientKey struct {
	id uint64
	ps fhe.ParameterSet
}

func (k *clientKey) ParameterSet() fhe.ParameterSet { return k.ps }

type serverKey struct {
	id uint64
	ps fhe.ParameterSet
}

func (k *serverKey) ParameterSet() fhe.ParameterSet { return k.ps }

type ciphertext struct {
	ps   fhe.ParameterSet
	bits []bool
}

func (c *ciphertext) NumBits() int                   { return len(c.bits) }
func (c *ciphertext) ParameterSet() fhe.ParameterSet { return c.ps }

// Calls returns the number of primitive calls made so far.
func (b *Backend) Calls() int64 {
	return b.calls.Load()
}

// FailNext makes the next primitive call return err.
func (b *Backend) FailNext(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNext = err
}

// PanicNext makes the next primitive call panic with v.
func (b *Backend) PanicNext(v any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.panicNext = v
}

func (b *Backend) enter() error {
	b.calls.Add(1)
	if b.Delay > 0 {
		time.Sleep(b.Delay)
	}

	b.mu.Lock()
	err, p := b.failNext, b.panicNext
	b.failNext, b.panicNext = nil, nil
	b.mu.Unlock()

	if p != nil {
		panic(p)
	}
	return err
}

// pad is the mask bit for position i under key id (splitmix64).
func pad(id uint64, i int) bool {
	z := id + uint64(i+1)*0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	z ^= z >> 31
	return z&1 == 1
}

func mask(id uint64, bits []bool) []bool {
	out := make([]bool, len(bits))
	for i, bit := range bits {
		out[i] = bit != pad(id, i)
	}
	return out
}

func (b *Backend) GenerateKeys(ps fhe.ParameterSet) (fhe.ClientKey, fhe.ServerKey, error) {
	if err := b.enter(); err != nil {
		return nil, nil, err
	}
	if !ps.Valid() {
		return nil, nil, fmt.Errorf("%w: %d", fhe.ErrInvalidParameterSet, uint8(ps))
	}
	id := b.nextID.Add(1)
	return &clientKey{id: id, ps: ps}, &serverKey{id: id, ps: ps}, nil
}

func (b *Backend) encrypt(ck fhe.ClientKey, bits []bool) (fhe.Ciphertext, error) {
	k, ok := ck.(*clientKey)
	if !ok {
		return nil, fmt.Errorf("%w: client key %T", fhe.ErrKeyMismatch, ck)
	}
	return &ciphertext{ps: k.ps, bits: mask(k.id, bits)}, nil
}

func (b *Backend) EncryptBool(ck fhe.ClientKey, value bool) (fhe.Ciphertext, error) {
	if err := b.enter(); err != nil {
		return nil, err
	}
	return b.encrypt(ck, []bool{value})
}

func (b *Backend) EncryptUint(ck fhe.ClientKey, value uint64, numBits int) (fhe.Ciphertext, error) {
	if err := b.enter(); err != nil {
		return nil, err
	}
	if !fhe.ValidWidth(numBits) {
		return nil, fmt.Errorf("%w: %d", fhe.ErrInvalidWidth, numBits)
	}
	if value > fhe.MaxUint(numBits) {
		return nil, fmt.Errorf("%w: %d in %d bits", fhe.ErrValueOutOfRange, value, numBits)
	}
	return b.encrypt(ck, fhe.UintToBits(value, numBits))
}

func (b *Backend) decrypt(ck fhe.ClientKey, ct fhe.Ciphertext) ([]bool, error) {
	k, ok := ck.(*clientKey)
	if !ok {
		return nil, fmt.Errorf("%w: client key %T", fhe.ErrKeyMismatch, ck)
	}
	c, ok := ct.(*ciphertext)
	if !ok {
		return nil, fmt.Errorf("%w: %T", fhe.ErrInvalidCiphertext, ct)
	}
	return mask(k.id, c.bits), nil
}

func (b *Backend) DecryptBool(ck fhe.ClientKey, ct fhe.Ciphertext) (bool, error) {
	if err := b.enter(); err != nil {
		return false, err
	}
	bits, err := b.decrypt(ck, ct)
	if err != nil {
		return false, err
	}
	if len(bits) != 1 {
		return false, fmt.Errorf("%w: boolean has %d bits", fhe.ErrInvalidCiphertext, len(bits))
	}
	return bits[0], nil
}

func (b *Backend) DecryptUint(ck fhe.ClientKey, ct fhe.Ciphertext) (uint64, error) {
	if err := b.enter(); err != nil {
		return 0, err
	}
	bits, err := b.decrypt(ck, ct)
	if err != nil {
		return 0, err
	}
	return fhe.BitsToUint(bits), nil
}

func (b *Backend) Evaluate(sk fhe.ServerKey, op fhe.OperationType, operands ...fhe.Ciphertext) (fhe.Ciphertext, error) {
	if err := b.enter(); err != nil {
		return nil, err
	}
	k, ok := sk.(*serverKey)
	if !ok {
		return nil, fmt.Errorf("%w: server key %T", fhe.ErrKeyMismatch, sk)
	}
	if err := fhe.CheckOperands(sk, op, operands); err != nil {
		return nil, err
	}

	vectors := make([][]bool, len(operands))
	for i, operand := range operands {
		c, ok := operand.(*ciphertext)
		if !ok {
			return nil, fmt.Errorf("%w: %T", fhe.ErrInvalidCiphertext, operand)
		}
		vectors[i] = mask(k.id, c.bits)
	}

	bits, err := evaluate(op, vectors...)
	if err != nil {
		return nil, err
	}
	return &ciphertext{ps: k.ps, bits: mask(k.id, bits)}, nil
}

func (b *Backend) MarshalCiphertext(ct fhe.Ciphertext) ([][]byte, error) {
	c, ok := ct.(*ciphertext)
	if !ok {
		return nil, fmt.Errorf("%w: %T", fhe.ErrInvalidCiphertext, ct)
	}
	blocks := make([][]byte, len(c.bits))
	for i, bit := range c.bits {
		v := byte(0)
		if bit {
			v = 1
		}
		blocks[i] = []byte{blockTag, v}
	}
	return blocks, nil
}

var errBadBlock = errors.New("malformed ciphertext block")

func (b *Backend) UnmarshalCiphertext(ps fhe.ParameterSet, blocks [][]byte) (fhe.Ciphertext, error) {
	if !ps.Valid() {
		return nil, fmt.Errorf("%w: %d", fhe.ErrInvalidParameterSet, uint8(ps))
	}
	if len(blocks) == 0 {
		return nil, fmt.Errorf("%w: no bits", fhe.ErrInvalidCiphertext)
	}
	c := &ciphertext{ps: ps, bits: make([]bool, len(blocks))}
	for i, block := range blocks {
		if len(block) != 2 || block[0] != blockTag || block[1] > 1 {
			return nil, fmt.Errorf("bit %d: %w", i, errBadBlock)
		}
		c.bits[i] = block[1] == 1
	}
	return c, nil
}
