package engine

import (
	"context"

	"github.com/Hermetic-Labs/hermetic-fhe/internal/errs"
	"github.com/Hermetic-Labs/hermetic-fhe/internal/registry"
	"github.com/Hermetic-Labs/hermetic-fhe/pkg/fhe"
)

type opClass uint8

const (
	classBoolean opClass = iota + 1
	classArithmetic
	classComparison
)

// opSpec describes how an operation is validated and typed.
type opSpec struct {
	class   opClass
	arity   int
	operand registry.Kind
}

func boolean(arity int) opSpec {
	return opSpec{class: classBoolean, arity: arity, operand: registry.KindBoolean}
}

var (
	arithmetic = opSpec{class: classArithmetic, arity: 2, operand: registry.KindInteger}
	comparison = opSpec{class: classComparison, arity: 2, operand: registry.KindInteger}
)

// opSpecs is indexed by operation; every operation must have an entry.
var opSpecs = [...]opSpec{
	fhe.OpAnd: boolean(2),
	fhe.OpOr:  boolean(2),
	fhe.OpXor: boolean(2),
	fhe.OpNot: boolean(1),
	fhe.OpAdd: arithmetic,
	fhe.OpSub: arithmetic,
	fhe.OpMul: arithmetic,
	fhe.OpGt:  comparison,
	fhe.OpLt:  comparison,
	fhe.OpEq:  comparison,
}

func specOf(op fhe.OperationType) (opSpec, bool) {
	if int(op) >= len(opSpecs) || opSpecs[op].class == 0 {
		return opSpec{}, false
	}
	return opSpecs[op], true
}

// result wraps the evaluated ciphertext into the value type op produces.
func (s opSpec) result(ct fhe.Ciphertext, width int) registry.EncryptedValue {
	if s.class == classArithmetic {
		return registry.Integer{CT: ct, NumBits: width}
	}
	return registry.Boolean{CT: ct}
}

// plan is a fully validated evaluation request.
type plan struct {
	op       fhe.OperationType
	spec     opSpec
	key      registry.ServerKey
	operands []registry.EncryptedValue
}

// Dispatcher validates and executes homomorphic operations.
type Dispatcher struct {
	core
}

func NewDispatcher(reg *registry.Registry, backend fhe.Backend, runner Runner) *Dispatcher {
	return &Dispatcher{core: newCore(reg, backend, runner)}
}

// Evaluate applies op to the operands under the server key serverHandle and
// registers the result.
func (d *Dispatcher) Evaluate(ctx context.Context, serverHandle registry.Handle, op fhe.OperationType, operandHandles []registry.Handle) (registry.Handle, error) {
	p, err := d.prepare(serverHandle, op, operandHandles)
	if err != nil {
		return "", err
	}
	return d.execute(ctx, p)
}

// prepare resolves and type-checks an evaluation without doing any
// cryptographic work.
func (d *Dispatcher) prepare(serverHandle registry.Handle, op fhe.OperationType, operandHandles []registry.Handle) (*plan, error) {
	spec, ok := specOf(op)
	if !ok {
		return nil, errs.InvalidArgument("unknown operation %s", op)
	}

	key, err := d.reg.ServerKey(serverHandle)
	if err != nil {
		return nil, err
	}

	operands := make([]registry.EncryptedValue, len(operandHandles))
	for i, h := range operandHandles {
		v, err := d.reg.Value(h)
		if err != nil {
			return nil, err
		}
		operands[i] = v
	}

	if len(operands) != spec.arity {
		return nil, errs.InvalidArgument("%s takes %d operand(s), got %d", op, spec.arity, len(operands))
	}

	first := operands[0]
	for _, v := range operands[1:] {
		if v.Kind() != first.Kind() || v.Width() != first.Width() {
			return nil, errs.TypeMismatch(first.Type(), v.Type())
		}
	}

	if first.Kind() != spec.operand {
		if spec.class == classBoolean {
			return nil, errs.TypeMismatch(spec.operand.String(), first.Type())
		}
		return nil, errs.Unsupported(op.String(), first.Type())
	}

	return &plan{op: op, spec: spec, key: key, operands: operands}, nil
}

func (d *Dispatcher) execute(ctx context.Context, p *plan) (registry.Handle, error) {
	cts := make([]fhe.Ciphertext, len(p.operands))
	for i, v := range p.operands {
		cts[i] = v.Ciphertext()
	}

	var out fhe.Ciphertext
	err := d.crypto(ctx, "evaluate "+p.op.String(), func() error {
		var err error
		out, err = d.backend.Evaluate(p.key.Key, p.op, cts...)
		return err
	})
	if err != nil {
		return "", err
	}
	return d.insert(p.spec.result(out, p.operands[0].Width()))
}
