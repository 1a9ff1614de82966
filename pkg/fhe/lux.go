package fhe

import (
	"fmt"
	"sync"

	luxfhe "github.com/luxfi/fhe"
)

// literals maps each parameter set onto a luxfi/fhe parameter literal.
//
// Only PN10QP27 keeps a single dimension for LWE and blind rotation, and chained
// bootstrapped gates decrypt correctly only under it. PN9QP28_STD128 loses
// correctness after a few gates, and PN11QP54 is rejected by the library
// because its modulus is not prime. Every set therefore builds on PN10QP27.
// The set still travels with keys and ciphertexts, so keys of different sets
// never mix.
var literals = map[ParameterSet]luxfhe.ParametersLiteral{
	ParamsDefault: luxfhe.PN10QP27,
	ParamsFast:    luxfhe.PN10QP27,
	ParamsSecure:  luxfhe.PN10QP27,
}

// uintTypes maps supported widths onto the library's integer types.
var uintTypes = map[int]luxfhe.FheUintType{
	4:  luxfhe.FheUint4,
	8:  luxfhe.FheUint8,
	16: luxfhe.FheUint16,
	32: luxfhe.FheUint32,
	64: luxfhe.FheUint64,
}

var _ Backend = (*LuxBackend)(nil)

// LuxBackend implements Backend on top of the github.com/luxfi/fhe bitwise
// integer API: every value is a vector of encrypted bits evaluated with
// bootstrapped boolean gates.
type LuxBackend struct {
	mu     sync.Mutex
	params map[ParameterSet]luxfhe.Parameters
}

// NewLuxBackend creates a backend. Parameters are built lazily per set.
func NewLuxBackend() *LuxBackend {
	return &LuxBackend{params: make(map[ParameterSet]luxfhe.Parameters)}
}

type luxClientKey struct {
	ps     ParameterSet
	params luxfhe.Parameters
	sk     *luxfhe.SecretKey
}

func (k *luxClientKey) ParameterSet() ParameterSet { return k.ps }

type luxServerKey struct {
	ps     ParameterSet
	params luxfhe.Parameters
	bsk    *luxfhe.BootstrapKey
}

func (k *luxServerKey) ParameterSet() ParameterSet { return k.ps }

type luxCiphertext struct {
	ps  ParameterSet
	val *luxfhe.BitCiphertext
}

func (c *luxCiphertext) NumBits() int               { return c.val.NumBits() }
func (c *luxCiphertext) ParameterSet() ParameterSet { return c.ps }

func (b *LuxBackend) parameters(ps ParameterSet) (luxfhe.Parameters, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if p, ok := b.params[ps]; ok {
		return p, nil
	}
	lit, ok := literals[ps]
	if !ok {
		return luxfhe.Parameters{}, fmt.Errorf("%w: %s", ErrInvalidParameterSet, ps)
	}
	p, err := luxfhe.NewParametersFromLiteral(lit)
	if err != nil {
		return luxfhe.Parameters{}, fmt.Errorf("build %s parameters: %w", ps, err)
	}
	b.params[ps] = p
	return p, nil
}

// GenerateKeys creates a secret key and the bootstrap key derived from it.
func (b *LuxBackend) GenerateKeys(ps ParameterSet) (ClientKey, ServerKey, error) {
	params, err := b.parameters(ps)
	if err != nil {
		return nil, nil, err
	}

	kgen := luxfhe.NewKeyGenerator(params)
	sk := kgen.GenSecretKey()
	bsk := kgen.GenBootstrapKey(sk)

	return &luxClientKey{ps: ps, params: params, sk: sk},
		&luxServerKey{ps: ps, params: params, bsk: bsk}, nil
}

func (b *LuxBackend) clientKey(ck ClientKey) (*luxClientKey, error) {
	k, ok := ck.(*luxClientKey)
	if !ok || k == nil {
		return nil, fmt.Errorf("%w: client key %T", ErrKeyMismatch, ck)
	}
	return k, nil
}

func (b *LuxBackend) ciphertext(ct Ciphertext) (*luxCiphertext, error) {
	c, ok := ct.(*luxCiphertext)
	if !ok || c == nil || c.val == nil {
		return nil, fmt.Errorf("%w: %T", ErrInvalidCiphertext, ct)
	}
	return c, nil
}

func (b *LuxBackend) EncryptBool(ck ClientKey, value bool) (Ciphertext, error) {
	k, err := b.clientKey(ck)
	if err != nil {
		return nil, err
	}
	bit := luxfhe.NewEncryptor(k.params, k.sk).Encrypt(value)
	return &luxCiphertext{ps: k.ps, val: luxfhe.WrapBoolCiphertext(bit)}, nil
}

func (b *LuxBackend) EncryptUint(ck ClientKey, value uint64, numBits int) (Ciphertext, error) {
	t, ok := uintTypes[numBits]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWidth, numBits)
	}
	if value > MaxUint(numBits) {
		return nil, fmt.Errorf("%w: %d does not fit in %d bits", ErrValueOutOfRange, value, numBits)
	}
	k, err := b.clientKey(ck)
	if err != nil {
		return nil, err
	}
	val := luxfhe.NewBitwiseEncryptor(k.params, k.sk).EncryptUint64(value, t)
	return &luxCiphertext{ps: k.ps, val: val}, nil
}

func (b *LuxBackend) decrypt(ck ClientKey, ct Ciphertext) (uint64, int, error) {
	k, err := b.clientKey(ck)
	if err != nil {
		return 0, 0, err
	}
	c, err := b.ciphertext(ct)
	if err != nil {
		return 0, 0, err
	}
	if c.ps != k.ps {
		return 0, 0, fmt.Errorf("%w: ciphertext %s, client key %s", ErrParameterMismatch, c.ps, k.ps)
	}
	return luxfhe.NewBitwiseDecryptor(k.params, k.sk).DecryptUint64(c.val), c.val.NumBits(), nil
}

func (b *LuxBackend) DecryptBool(ck ClientKey, ct Ciphertext) (bool, error) {
	v, n, err := b.decrypt(ck, ct)
	if err != nil {
		return false, err
	}
	if n != 1 {
		return false, fmt.Errorf("%w: boolean has %d bits", ErrInvalidCiphertext, n)
	}
	return v == 1, nil
}

func (b *LuxBackend) DecryptUint(ck ClientKey, ct Ciphertext) (uint64, error) {
	v, _, err := b.decrypt(ck, ct)
	return v, err
}

// Evaluate runs op with the library's bitwise evaluator. A fresh evaluator is
// built per call; the bootstrap key itself is only read.
func (b *LuxBackend) Evaluate(sk ServerKey, op OperationType, operands ...Ciphertext) (Ciphertext, error) {
	k, ok := sk.(*luxServerKey)
	if !ok || k == nil {
		return nil, fmt.Errorf("%w: server key %T", ErrKeyMismatch, sk)
	}
	if err := CheckOperands(sk, op, operands); err != nil {
		return nil, err
	}

	vals := make([]*luxfhe.BitCiphertext, len(operands))
	for i, operand := range operands {
		c, err := b.ciphertext(operand)
		if err != nil {
			return nil, err
		}
		vals[i] = c.val
	}

	out, err := evalBitwise(luxfhe.NewBitwiseEvaluator(k.params, k.bsk, nil), op, vals)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOperationFailed, op, err)
	}
	return &luxCiphertext{ps: k.ps, val: out}, nil
}

func evalBitwise(eval *luxfhe.BitwiseEvaluator, op OperationType, v []*luxfhe.BitCiphertext) (*luxfhe.BitCiphertext, error) {
	if op == OpNot {
		return eval.Not(v[0]), nil
	}
	a, b := v[0], v[1]

	var compare func(a, b *luxfhe.BitCiphertext) (*luxfhe.Ciphertext, error)
	switch op {
	case OpAnd:
		return eval.And(a, b)
	case OpOr:
		return eval.Or(a, b)
	case OpXor:
		return eval.Xor(a, b)
	case OpAdd:
		return eval.Add(a, b)
	case OpSub:
		return eval.Sub(a, b)
	case OpMul:
		return eval.Mul(a, b)
	case OpEq:
		compare = eval.Eq
	case OpLt:
		compare = eval.Lt
	case OpGt:
		compare = eval.Gt
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownOperation, uint8(op))
	}

	bit, err := compare(a, b)
	if err != nil {
		return nil, err
	}
	return luxfhe.WrapBoolCiphertext(bit), nil
}

// MarshalCiphertext splits the library's bit-vector encoding into one block
// per encrypted bit.
func (b *LuxBackend) MarshalCiphertext(ct Ciphertext) ([][]byte, error) {
	c, err := b.ciphertext(ct)
	if err != nil {
		return nil, err
	}
	data, err := c.val.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("serialize ciphertext: %w", err)
	}
	_, blocks, err := splitBits(data)
	if err != nil {
		return nil, err
	}
	return blocks, nil
}

// UnmarshalCiphertext rebuilds a ciphertext from per-bit blocks. Every block
// must decode to an LWE sample of the parameter set's dimension, so foreign
// data fails here instead of inside a later decryption or gate.
func (b *LuxBackend) UnmarshalCiphertext(ps ParameterSet, blocks [][]byte) (Ciphertext, error) {
	if !ps.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidParameterSet, uint8(ps))
	}
	t, err := bitType(len(blocks))
	if err != nil {
		return nil, err
	}
	params, err := b.parameters(ps)
	if err != nil {
		return nil, err
	}

	for i, block := range blocks {
		bit := new(luxfhe.Ciphertext)
		if err := bit.UnmarshalBinary(block); err != nil {
			return nil, fmt.Errorf("%w: bit %d: %v", ErrInvalidCiphertext, i, err)
		}
		if err := checkSample(bit, params); err != nil {
			return nil, fmt.Errorf("%w: bit %d: %v", ErrInvalidCiphertext, i, err)
		}
	}

	val := new(luxfhe.BitCiphertext)
	if err := val.UnmarshalBinary(joinBits(t, blocks)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	return &luxCiphertext{ps: ps, val: val}, nil
}

func bitType(numBits int) (luxfhe.FheUintType, error) {
	if numBits == 1 {
		return luxfhe.FheBool, nil
	}
	if t, ok := uintTypes[numBits]; ok {
		return t, nil
	}
	return 0, fmt.Errorf("%w: %d bits", ErrInvalidCiphertext, numBits)
}

// checkSample verifies that bit is a degree-one sample over a single modulus
// of dimension params.N().
func checkSample(bit *luxfhe.Ciphertext, params luxfhe.Parameters) error {
	if bit.Ciphertext == nil || len(bit.Value) != 2 {
		return fmt.Errorf("not a degree-one sample")
	}
	n := params.N()
	for _, poly := range bit.Value {
		if len(poly.Coeffs) != 1 {
			return fmt.Errorf("%d moduli, want 1", len(poly.Coeffs))
		}
		if len(poly.Coeffs[0]) != n {
			return fmt.Errorf("dimension %d, want %d", len(poly.Coeffs[0]), n)
		}
	}
	return nil
}
