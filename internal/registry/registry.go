// Package registry provides the process-wide store of keys and ciphertexts,
// addressed by opaque handles.
//
// Entries are immutable and never removed. The backing map is split into
// shards, each guarded by its own RWMutex, so lookups only contend with
// inserts that hash to the same shard.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/Hermetic-Labs/hermetic-fhe/internal/errs"
)

// Common errors.
var (
	ErrInvalidHandle = errors.New("invalid handle")
	ErrAlreadyExists = errors.New("handle already exists")
	ErrNilObject     = errors.New("nil object")
)

// DefaultShards is the shard count used when none is configured.
const DefaultShards = 64

// Handle uniquely identifies a stored object.
type Handle string

type shard struct {
	mu      sync.RWMutex
	objects map[Handle]Object
}

// Registry is a concurrency-safe handle store.
type Registry struct {
	shards []shard
	mask   uint64
	counts [numKinds]atomic.Int64
}

// Option configures a Registry.
type Option func(*config)

type config struct {
	shards int
}

// WithShards sets the shard count, rounded up to a power of two.
func WithShards(n int) Option {
	return func(c *config) { c.shards = n }
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	cfg := config{shards: DefaultShards}
	for _, opt := range opts {
		opt(&cfg)
	}
	n := 1
	for n < cfg.shards {
		n <<= 1
	}

	r := &Registry{
		shards: make([]shard, n),
		mask:   uint64(n - 1),
	}
	for i := range r.shards {
		r.shards[i].objects = make(map[Handle]Object)
	}
	return r
}

func (r *Registry) shard(h Handle) *shard {
	return &r.shards[xxhash.Sum64String(string(h))&r.mask]
}

// Mint returns a fresh handle. Handles are random UUIDs and are never reissued.
func (r *Registry) Mint() Handle {
	return Handle(uuid.NewString())
}

// Insert makes obj visible under h. A handle can be inserted only once.
func (r *Registry) Insert(h Handle, obj Object) error {
	if h == "" {
		return ErrInvalidHandle
	}
	if obj == nil {
		return ErrNilObject
	}

	s := r.shard(h)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.objects[h]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, h)
	}
	s.objects[h] = obj
	r.counts[obj.Kind()].Add(1)
	return nil
}

// Put mints a handle and inserts obj under it.
func (r *Registry) Put(obj Object) (Handle, error) {
	h := r.Mint()
	if err := r.Insert(h, obj); err != nil {
		return "", err
	}
	return h, nil
}

// Get returns the object stored under h.
func (r *Registry) Get(h Handle) (Object, error) {
	s := r.shard(h)
	s.mu.RLock()
	obj, ok := s.objects[h]
	s.mu.RUnlock()

	if !ok {
		return nil, errs.NotFound("object", string(h))
	}
	return obj, nil
}

// ClientKey resolves h to a client key. Handles of any other kind are
// reported as not found.
func (r *Registry) ClientKey(h Handle) (ClientKey, error) {
	obj, err := r.Get(h)
	if k, ok := obj.(ClientKey); err == nil && ok {
		return k, nil
	}
	return ClientKey{}, errs.NotFound(KindClientKey.String(), string(h))
}

// ServerKey resolves h to a server key.
func (r *Registry) ServerKey(h Handle) (ServerKey, error) {
	obj, err := r.Get(h)
	if k, ok := obj.(ServerKey); err == nil && ok {
		return k, nil
	}
	return ServerKey{}, errs.NotFound(KindServerKey.String(), string(h))
}

// Value resolves h to an encrypted value.
func (r *Registry) Value(h Handle) (EncryptedValue, error) {
	obj, err := r.Get(h)
	if v, ok := obj.(EncryptedValue); err == nil && ok {
		return v, nil
	}
	return nil, errs.NotFound("ciphertext", string(h))
}

// Len returns the number of stored objects.
func (r *Registry) Len() int {
	var n int64
	for i := range r.counts {
		n += r.counts[i].Load()
	}
	return int(n)
}

// Count returns the number of stored objects of kind k.
func (r *Registry) Count(k Kind) int64 {
	if k >= numKinds {
		return 0
	}
	return r.counts[k].Load()
}

// Counts returns object counts by kind.
func (r *Registry) Counts() map[Kind]int64 {
	out := make(map[Kind]int64, numKinds)
	for _, k := range Kinds() {
		out[k] = r.counts[k].Load()
	}
	return out
}
