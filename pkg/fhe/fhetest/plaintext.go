package fhetest

import (
	"fmt"

	"github.com/Hermetic-Labs/hermetic-fhe/pkg/fhe"
)

// evaluate computes op on plaintext little-endian bit vectors with the
// modular semantics of the lattice backend: arithmetic wraps at the operand
// width and comparisons are unsigned.
func evaluate(op fhe.OperationType, operands ...[]bool) ([]bool, error) {
	if len(operands) != op.Arity() {
		return nil, fmt.Errorf("%w: %s takes %d, got %d", fhe.ErrArity, op, op.Arity(), len(operands))
	}
	a := operands[0]
	if op == fhe.OpNot {
		out := make([]bool, len(a))
		for i, bit := range a {
			out[i] = !bit
		}
		return out, nil
	}
	b := operands[1]
	if len(a) != len(b) || len(a) == 0 {
		return nil, fmt.Errorf("%w: widths %d and %d", fhe.ErrInvalidCiphertext, len(a), len(b))
	}

	width := len(a)
	x, y := fhe.BitsToUint(a), fhe.BitsToUint(b)
	mask := fhe.MaxUint(width)

	var v uint64
	switch op {
	case fhe.OpAnd:
		v = x & y
	case fhe.OpOr:
		v = x | y
	case fhe.OpXor:
		v = x ^ y
	case fhe.OpAdd:
		v = (x + y) & mask
	case fhe.OpSub:
		v = (x - y) & mask
	case fhe.OpMul:
		v = (x * y) & mask
	case fhe.OpEq:
		return []bool{x == y}, nil
	case fhe.OpLt:
		return []bool{x < y}, nil
	case fhe.OpGt:
		return []bool{x > y}, nil
	default:
		return nil, fmt.Errorf("%w: %d", fhe.ErrUnknownOperation, uint8(op))
	}
	return fhe.UintToBits(v, width), nil
}
