package fhe

import (
	"fmt"
	"strings"
)

// ParameterSet selects a security/performance trade-off for key generation.
type ParameterSet uint8

const (
	ParamsDefault ParameterSet = iota
	ParamsFast
	ParamsSecure
)

var parameterSetNames = [...]string{
	ParamsDefault: "DEFAULT",
	ParamsFast:    "FAST",
	ParamsSecure:  "SECURE",
}

// ParameterSets lists every supported parameter set.
func ParameterSets() []ParameterSet {
	return []ParameterSet{ParamsDefault, ParamsFast, ParamsSecure}
}

// Valid reports whether ps is one of the known parameter sets.
func (ps ParameterSet) Valid() bool {
	return int(ps) < len(parameterSetNames)
}

func (ps ParameterSet) String() string {
	if !ps.Valid() {
		return fmt.Sprintf("ParameterSet(%d)", uint8(ps))
	}
	return parameterSetNames[ps]
}

// ParseParameterSet parses the canonical upper-case name of a parameter set.
func ParseParameterSet(s string) (ParameterSet, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if name == "" {
		return ParamsDefault, nil
	}
	for i, n := range parameterSetNames {
		if n == name {
			return ParameterSet(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidParameterSet, s)
}

func (ps ParameterSet) MarshalText() ([]byte, error) {
	if !ps.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidParameterSet, uint8(ps))
	}
	return []byte(ps.String()), nil
}

func (ps *ParameterSet) UnmarshalText(text []byte) error {
	v, err := ParseParameterSet(string(text))
	if err != nil {
		return err
	}
	*ps = v
	return nil
}

// OperationType is the closed set of homomorphic operations.
type OperationType uint8

const (
	OpAnd OperationType = iota
	OpOr
	OpXor
	OpNot
	OpAdd
	OpSub
	OpMul
	OpGt
	OpLt
	OpEq

	numOperations
)

var operationNames = [numOperations]string{
	OpAnd: "AND",
	OpOr:  "OR",
	OpXor: "XOR",
	OpNot: "NOT",
	OpAdd: "ADD",
	OpSub: "SUBTRACT",
	OpMul: "MULTIPLY",
	OpGt:  "GREATER_THAN",
	OpLt:  "LESS_THAN",
	OpEq:  "EQUAL",
}

// Operations lists every operation in declaration order.
func Operations() []OperationType {
	ops := make([]OperationType, 0, numOperations)
	for op := OperationType(0); op < numOperations; op++ {
		ops = append(ops, op)
	}
	return ops
}

// Valid reports whether op belongs to the closed operation set.
func (op OperationType) Valid() bool {
	return op < numOperations
}

func (op OperationType) String() string {
	if !op.Valid() {
		return fmt.Sprintf("OperationType(%d)", uint8(op))
	}
	return operationNames[op]
}

// ParseOperation accepts only the exact upper-case operation names.
func ParseOperation(s string) (OperationType, error) {
	for i, n := range operationNames {
		if n == s {
			return OperationType(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownOperation, s)
}

func (op OperationType) MarshalText() ([]byte, error) {
	if !op.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownOperation, uint8(op))
	}
	return []byte(op.String()), nil
}

func (op *OperationType) UnmarshalText(text []byte) error {
	v, err := ParseOperation(string(text))
	if err != nil {
		return err
	}
	*op = v
	return nil
}

// Arity returns the number of operands op consumes.
func (op OperationType) Arity() int {
	if op == OpNot {
		return 1
	}
	return 2
}

// SupportedWidths lists the integer bit widths accepted by EncryptUint.
var SupportedWidths = []int{4, 8, 16, 32, 64}

// ValidWidth reports whether numBits is a supported integer width.
func ValidWidth(numBits int) bool {
	for _, w := range SupportedWidths {
		if w == numBits {
			return true
		}
	}
	return false
}

// MaxUint returns the largest unsigned value representable in numBits.
func MaxUint(numBits int) uint64 {
	if numBits >= 64 {
		return ^uint64(0)
	}
	return 1<<uint(numBits) - 1
}
