package codec

import (
	"testing"

	luxfhe "github.com/luxfi/fhe"
	"github.com/luxfi/geth/rlp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hermetic-Labs/hermetic-fhe/internal/errs"
	"github.com/Hermetic-Labs/hermetic-fhe/internal/registry"
	"github.com/Hermetic-Labs/hermetic-fhe/pkg/fhe"
	"github.com/Hermetic-Labs/hermetic-fhe/pkg/fhe/fhetest"
)

func setup(t *testing.T) (*Codec, *fhetest.Backend, fhe.ClientKey) {
	t.Helper()
	b := fhetest.New()
	ck, _, err := b.GenerateKeys(fhe.ParamsFast)
	require.NoError(t, err)
	return New(b), b, ck
}

func TestRoundTripInteger(t *testing.T) {
	c, b, ck := setup(t)
	ct, err := b.EncryptUint(ck, 200, 8)
	require.NoError(t, err)

	data, err := c.Marshal(registry.Integer{CT: ct, NumBits: 8})
	require.NoError(t, err)

	v, err := c.Unmarshal(data)
	require.NoError(t, err)
	require.IsType(t, registry.Integer{}, v)
	assert.Equal(t, 8, v.Width())
	assert.Equal(t, fhe.ParamsFast, v.Ciphertext().ParameterSet())

	got, err := b.DecryptUint(ck, v.Ciphertext())
	require.NoError(t, err)
	assert.Equal(t, uint64(200), got)
}

func TestRoundTripBoolean(t *testing.T) {
	c, b, ck := setup(t)
	ct, err := b.EncryptBool(ck, true)
	require.NoError(t, err)

	data, err := c.Marshal(registry.Boolean{CT: ct})
	require.NoError(t, err)

	v, err := c.Unmarshal(data)
	require.NoError(t, err)
	require.IsType(t, registry.Boolean{}, v)

	got, err := b.DecryptBool(ck, v.Ciphertext())
	require.NoError(t, err)
	assert.True(t, got)
}

func encode(t *testing.T, env envelope) []byte {
	t.Helper()
	data, err := rlp.EncodeToBytes(&env)
	require.NoError(t, err)
	return data
}

func TestUnmarshalRejectsMalformed(t *testing.T) {
	c, _, _ := setup(t)
	bit := []byte{0xfe, 1}
	eight := [][]byte{bit, bit, bit, bit, bit, bit, bit, bit}

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"garbage", []byte("not a ciphertext")},
		{"truncated", encode(t, envelope{Version: Version, Kind: kindInteger, NumBits: 8, Blocks: eight})[:10]},
		{"version", encode(t, envelope{Version: 9, Kind: kindBoolean, NumBits: 1, Blocks: [][]byte{bit}})},
		{"kind", encode(t, envelope{Version: Version, Kind: 7, NumBits: 1, Blocks: [][]byte{bit}})},
		{"parameter set", encode(t, envelope{Version: Version, Kind: kindBoolean, NumBits: 1, ParameterSet: 42, Blocks: [][]byte{bit}})},
		{"boolean width", encode(t, envelope{Version: Version, Kind: kindBoolean, NumBits: 8, Blocks: eight})},
		{"integer width", encode(t, envelope{Version: Version, Kind: kindInteger, NumBits: 7, Blocks: eight[:7]})},
		{"block count", encode(t, envelope{Version: Version, Kind: kindInteger, NumBits: 8, Blocks: eight[:4]})},
		{"bad block", encode(t, envelope{Version: Version, Kind: kindBoolean, NumBits: 1, Blocks: [][]byte{{0x00}}})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Unmarshal(tt.data)
			require.ErrorIs(t, err, errs.ErrSerialization)
		})
	}
}

func TestMarshalDoesNotCountAsCryptoWork(t *testing.T) {
	c, b, ck := setup(t)
	ct, err := b.EncryptBool(ck, false)
	require.NoError(t, err)
	before := b.Calls()

	data, err := c.Marshal(registry.Boolean{CT: ct})
	require.NoError(t, err)
	_, err = c.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, before, b.Calls())
}

func TestUnmarshalRejectsForeignLatticeDimension(t *testing.T) {
	small, err := luxfhe.NewParametersFromLiteral(luxfhe.PN9QP28_STD128)
	require.NoError(t, err)
	sk := luxfhe.NewKeyGenerator(small).GenSecretKey()
	block, err := luxfhe.NewEncryptor(small, sk).Encrypt(true).MarshalBinary()
	require.NoError(t, err)

	c := New(fhe.NewLuxBackend())
	_, err = c.Unmarshal(encode(t, envelope{
		Version:      Version,
		Kind:         kindBoolean,
		NumBits:      1,
		ParameterSet: uint8(fhe.ParamsDefault),
		Blocks:       [][]byte{block},
	}))
	require.ErrorIs(t, err, errs.ErrSerialization)
	assert.Equal(t, errs.CodeSerialization, errs.CodeOf(err))
}
