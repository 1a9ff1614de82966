package fhe

import (
	"sync"
	"testing"

	luxfhe "github.com/luxfi/fhe"
	"github.com/stretchr/testify/require"
)

var (
	luxOnce   sync.Once
	luxB      *LuxBackend
	luxClient ClientKey
	luxServer ServerKey
	luxErr    error
)

// luxKeys shares one DEFAULT key pair across tests; bootstrap key generation
// takes seconds.
func luxKeys(t *testing.T) (*LuxBackend, ClientKey, ServerKey) {
	t.Helper()
	if testing.Short() {
		t.Skip("lattice cryptography is slow; skipped in -short mode")
	}
	luxOnce.Do(func() {
		luxB = NewLuxBackend()
		luxClient, luxServer, luxErr = luxB.GenerateKeys(ParamsDefault)
	})
	require.NoError(t, luxErr)
	return luxB, luxClient, luxServer
}

func TestLuxBooleanRoundTrip(t *testing.T) {
	b, ck, _ := luxKeys(t)

	for _, v := range []bool{true, false} {
		ct, err := b.EncryptBool(ck, v)
		require.NoError(t, err)
		require.Equal(t, 1, ct.NumBits())

		got, err := b.DecryptBool(ck, ct)
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}

func TestLuxGates(t *testing.T) {
	b, ck, sk := luxKeys(t)

	enc := func(v bool) Ciphertext {
		ct, err := b.EncryptBool(ck, v)
		require.NoError(t, err)
		return ct
	}
	eval := func(op OperationType, operands ...Ciphertext) bool {
		ct, err := b.Evaluate(sk, op, operands...)
		require.NoError(t, err)
		v, err := b.DecryptBool(ck, ct)
		require.NoError(t, err)
		return v
	}

	tru, fls := enc(true), enc(false)
	require.True(t, eval(OpAnd, tru, tru))
	require.False(t, eval(OpAnd, tru, fls))
	require.False(t, eval(OpOr, fls, fls))
	require.False(t, eval(OpXor, tru, tru))
	require.False(t, eval(OpNot, tru))
}

func TestLuxIntegerAdd(t *testing.T) {
	b, ck, sk := luxKeys(t)

	x, err := b.EncryptUint(ck, 3, 8)
	require.NoError(t, err)
	y, err := b.EncryptUint(ck, 4, 8)
	require.NoError(t, err)

	sum, err := b.Evaluate(sk, OpAdd, x, y)
	require.NoError(t, err)
	require.Equal(t, 8, sum.NumBits())

	got, err := b.DecryptUint(ck, sum)
	require.NoError(t, err)
	require.Equal(t, uint64(7), got)
}

func TestLuxSerialization(t *testing.T) {
	b, ck, _ := luxKeys(t)

	ct, err := b.EncryptUint(ck, 200, 8)
	require.NoError(t, err)

	blocks, err := b.MarshalCiphertext(ct)
	require.NoError(t, err)
	require.Len(t, blocks, 8)

	back, err := b.UnmarshalCiphertext(ParamsDefault, blocks)
	require.NoError(t, err)
	got, err := b.DecryptUint(ck, back)
	require.NoError(t, err)
	require.Equal(t, uint64(200), got)
}

func TestLuxEveryParameterSet(t *testing.T) {
	if testing.Short() {
		t.Skip("lattice cryptography is slow; skipped in -short mode")
	}
	b := NewLuxBackend()

	for _, ps := range ParameterSets() {
		t.Run(ps.String(), func(t *testing.T) {
			ck, sk, err := b.GenerateKeys(ps)
			require.NoError(t, err)
			require.Equal(t, ps, ck.ParameterSet())
			require.Equal(t, ps, sk.ParameterSet())

			flag, err := b.EncryptBool(ck, true)
			require.NoError(t, err)
			v, err := b.DecryptBool(ck, flag)
			require.NoError(t, err)
			require.True(t, v)

			x, err := b.EncryptUint(ck, 3, 8)
			require.NoError(t, err)
			y, err := b.EncryptUint(ck, 4, 8)
			require.NoError(t, err)

			sum, err := b.Evaluate(sk, OpAdd, x, y)
			require.NoError(t, err)
			got, err := b.DecryptUint(ck, sum)
			require.NoError(t, err)
			require.Equal(t, uint64(7), got)

			eq, err := b.Evaluate(sk, OpEq, sum, sum)
			require.NoError(t, err)
			require.Equal(t, 1, eq.NumBits())
			v, err = b.DecryptBool(ck, eq)
			require.NoError(t, err)
			require.True(t, v)
		})
	}
}

func TestLuxIntegerOperations(t *testing.T) {
	b, ck, sk := luxKeys(t)

	enc := func(v uint64) Ciphertext {
		ct, err := b.EncryptUint(ck, v, 4)
		require.NoError(t, err)
		return ct
	}
	eval := func(op OperationType, x, y Ciphertext) uint64 {
		ct, err := b.Evaluate(sk, op, x, y)
		require.NoError(t, err)
		v, err := b.DecryptUint(ck, ct)
		require.NoError(t, err)
		return v
	}

	ten, three := enc(10), enc(3)
	require.Equal(t, uint64(7), eval(OpSub, ten, three))
	require.Equal(t, uint64(9), eval(OpSub, three, ten))
	require.Equal(t, uint64(14), eval(OpMul, ten, three))
	require.Equal(t, uint64(1), eval(OpGt, ten, three))
	require.Equal(t, uint64(0), eval(OpLt, ten, three))
	require.Equal(t, uint64(2), eval(OpAnd, ten, three))
}

func TestBitLayoutRoundTrip(t *testing.T) {
	blocks := [][]byte{{1, 2, 3}, {}, {4}}
	data := joinBits(luxfhe.FheUint4, blocks)

	typ, back, err := splitBits(data)
	require.NoError(t, err)
	require.Equal(t, luxfhe.FheUint4, typ)
	require.Equal(t, []byte{1, 2, 3}, back[0])
	require.Empty(t, back[1])
	require.Equal(t, []byte{4}, back[2])

	_, _, err = splitBits(data[:len(data)-1])
	require.ErrorIs(t, err, ErrInvalidCiphertext)
	_, _, err = splitBits(append(data, 0))
	require.ErrorIs(t, err, ErrInvalidCiphertext)
	_, _, err = splitBits(nil)
	require.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestLuxUnmarshalRejectsWrongDimension(t *testing.T) {
	// A well-formed sample of dimension 512 cannot belong to a 1024 set.
	small, err := luxfhe.NewParametersFromLiteral(luxfhe.PN9QP28_STD128)
	require.NoError(t, err)
	sk := luxfhe.NewKeyGenerator(small).GenSecretKey()
	block, err := luxfhe.NewEncryptor(small, sk).Encrypt(true).MarshalBinary()
	require.NoError(t, err)

	b := NewLuxBackend()
	_, err = b.UnmarshalCiphertext(ParamsDefault, [][]byte{block})
	require.ErrorIs(t, err, ErrInvalidCiphertext)
	require.ErrorContains(t, err, "dimension 512, want 1024")

	_, err = b.UnmarshalCiphertext(ParamsDefault, [][]byte{{0xde, 0xad}})
	require.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = b.UnmarshalCiphertext(ParamsDefault, make([][]byte, 3))
	require.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestLuxRejectsForeignValues(t *testing.T) {
	b := NewLuxBackend()

	_, err := b.EncryptUint(nil, 1, 8)
	require.ErrorIs(t, err, ErrKeyMismatch)

	_, err = b.EncryptUint(nil, 1, 7)
	require.ErrorIs(t, err, ErrInvalidWidth)

	_, err = b.EncryptUint(nil, 256, 8)
	require.ErrorIs(t, err, ErrValueOutOfRange)

	_, err = b.UnmarshalCiphertext(ParamsDefault, nil)
	require.ErrorIs(t, err, ErrInvalidCiphertext)
}
