package registry

import (
	"fmt"

	"github.com/Hermetic-Labs/hermetic-fhe/pkg/fhe"
)

// Kind is the logical kind of a stored object.
type Kind uint8

const (
	KindClientKey Kind = iota
	KindServerKey
	KindBoolean
	KindInteger

	numKinds
)

var kindNames = [numKinds]string{
	KindClientKey: "client key",
	KindServerKey: "server key",
	KindBoolean:   "boolean",
	KindInteger:   "integer",
}

func (k Kind) String() string {
	if k >= numKinds {
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
	return kindNames[k]
}

// Kinds lists every object kind.
func Kinds() []Kind {
	return []Kind{KindClientKey, KindServerKey, KindBoolean, KindInteger}
}

// Object is anything the registry stores. The set is closed.
type Object interface {
	Kind() Kind
	object()
}

// ClientKey wraps private key material.
type ClientKey struct {
	Key fhe.ClientKey
}

func (ClientKey) Kind() Kind { return KindClientKey }
func (ClientKey) object()    {}

// ServerKey wraps public evaluation key material.
type ServerKey struct {
	Key fhe.ServerKey
}

func (ServerKey) Kind() Kind { return KindServerKey }
func (ServerKey) object()    {}

// EncryptedValue is a ciphertext tagged with its logical type. Its variants
// are Boolean and Integer.
type EncryptedValue interface {
	Object
	Ciphertext() fhe.Ciphertext
	// Width is 1 for Boolean and the declared bit width for Integer.
	Width() int
	// Type names the value type, e.g. "boolean" or "uint8".
	Type() string
	encrypted()
}

// Boolean is a single encrypted bit.
type Boolean struct {
	CT fhe.Ciphertext
}

func (Boolean) Kind() Kind                   { return KindBoolean }
func (Boolean) object()                      {}
func (Boolean) encrypted()                   {}
func (b Boolean) Ciphertext() fhe.Ciphertext { return b.CT }
func (Boolean) Width() int                   { return 1 }
func (Boolean) Type() string                 { return "boolean" }

// Integer is an encrypted unsigned integer of NumBits bits.
type Integer struct {
	CT      fhe.Ciphertext
	NumBits int
}

func (Integer) Kind() Kind                   { return KindInteger }
func (Integer) object()                      {}
func (Integer) encrypted()                   {}
func (i Integer) Ciphertext() fhe.Ciphertext { return i.CT }
func (i Integer) Width() int                 { return i.NumBits }
func (i Integer) Type() string               { return fmt.Sprintf("uint%d", i.NumBits) }
