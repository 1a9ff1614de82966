package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hermetic-Labs/hermetic-fhe/internal/errs"
	"github.com/Hermetic-Labs/hermetic-fhe/pkg/fhe"
	"github.com/Hermetic-Labs/hermetic-fhe/pkg/fhe/fhetest"
)

func testKeys(t *testing.T) (fhe.Backend, fhe.ClientKey, fhe.ServerKey) {
	t.Helper()
	b := fhetest.New()
	ck, sk, err := b.GenerateKeys(fhe.ParamsDefault)
	require.NoError(t, err)
	return b, ck, sk
}

func TestInsertAndGet(t *testing.T) {
	r := New()
	_, ck, sk := testKeys(t)

	ch, err := r.Put(ClientKey{Key: ck})
	require.NoError(t, err)
	sh, err := r.Put(ServerKey{Key: sk})
	require.NoError(t, err)
	require.NotEqual(t, ch, sh)

	obj, err := r.Get(ch)
	require.NoError(t, err)
	assert.Equal(t, KindClientKey, obj.Kind())

	got, err := r.ServerKey(sh)
	require.NoError(t, err)
	assert.Same(t, sk, got.Key)

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, int64(1), r.Count(KindClientKey))
}

func TestGetUnknownHandle(t *testing.T) {
	r := New()

	_, err := r.Get("nope")
	require.ErrorIs(t, err, errs.ErrNotFound)

	_, err = r.Get(r.Mint())
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestTypedLookupRejectsOtherKinds(t *testing.T) {
	r := New()
	b, ck, _ := testKeys(t)
	ct, err := b.EncryptBool(ck, true)
	require.NoError(t, err)

	kh, err := r.Put(ClientKey{Key: ck})
	require.NoError(t, err)
	vh, err := r.Put(Boolean{CT: ct})
	require.NoError(t, err)

	_, err = r.ServerKey(kh)
	require.ErrorIs(t, err, errs.ErrNotFound)
	assert.Contains(t, err.Error(), "server key")

	_, err = r.ClientKey(vh)
	require.ErrorIs(t, err, errs.ErrNotFound)

	_, err = r.Value(kh)
	require.ErrorIs(t, err, errs.ErrNotFound)

	v, err := r.Value(vh)
	require.NoError(t, err)
	assert.Equal(t, "boolean", v.Type())
	assert.Equal(t, 1, v.Width())
}

func TestInsertRejectsReuse(t *testing.T) {
	r := New()
	_, ck, _ := testKeys(t)

	h := r.Mint()
	require.NoError(t, r.Insert(h, ClientKey{Key: ck}))
	require.ErrorIs(t, r.Insert(h, ClientKey{Key: ck}), ErrAlreadyExists)
	require.ErrorIs(t, r.Insert("", ClientKey{Key: ck}), ErrInvalidHandle)
	require.ErrorIs(t, r.Insert(r.Mint(), nil), ErrNilObject)
	assert.Equal(t, 1, r.Len())
}

func TestMintIsUnique(t *testing.T) {
	r := New()
	seen := make(map[Handle]struct{})
	for i := 0; i < 10000; i++ {
		h := r.Mint()
		_, dup := seen[h]
		require.False(t, dup)
		seen[h] = struct{}{}
	}
}

func TestShardCountRoundsUp(t *testing.T) {
	assert.Len(t, New(WithShards(5)).shards, 8)
	assert.Len(t, New(WithShards(0)).shards, 1)
	assert.Len(t, New().shards, DefaultShards)
}

func TestConcurrentInsertAndGet(t *testing.T) {
	r := New(WithShards(4))
	b, ck, _ := testKeys(t)

	const writers, perWriter = 16, 200
	handles := make(chan Handle, writers*perWriter)

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				ct, err := b.EncryptUint(ck, uint64(i%16), 4)
				if err != nil {
					t.Error(err)
					return
				}
				h, err := r.Put(Integer{CT: ct, NumBits: 4})
				if err != nil {
					t.Error(err)
					return
				}
				// Visible as soon as Put returns.
				if _, err := r.Value(h); err != nil {
					t.Error(fmt.Errorf("read own insert: %w", err))
					return
				}
				handles <- h
			}
		}()
	}
	wg.Wait()
	close(handles)

	count := 0
	for h := range handles {
		v, err := r.Value(h)
		require.NoError(t, err)
		assert.Equal(t, KindInteger, v.Kind())
		count++
	}
	assert.Equal(t, writers*perWriter, count)
	assert.Equal(t, writers*perWriter, r.Len())
	assert.Equal(t, int64(writers*perWriter), r.Counts()[KindInteger])
}
