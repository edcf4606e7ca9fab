// This file implements the tagged-variant Type model of §3: base
// scalars, pointers, arrays, struct references and function/method
// types. Modeled as a Go struct with a TypeKind tag, the idiomatic
// realization of the teacher's (lang/yparse/types.go) Type shape.
package ast

import (
	"fmt"
	"strings"
)

// TypeKind tags the variant a *Type carries (distinct from Kind, which
// tags AST nodes).
type TypeKind int

const (
	Invalid TypeKind = iota
	Char
	I32
	F32
	Bool
	U8
	Void
	Pointer
	Array
	Structure
	Function
	Method
)

// Type is the shared, mutable type value threaded through parsing,
// checking and emission. StructDef is filled in (resolved) during
// type checking for Structure types; it is left nil by the parser.
type Type struct {
	Kind TypeKind

	// Pointer
	Elem *Type

	// Array: ArraySize is kept as an AST expression (§3 invariant)
	// and evaluated only by the emitter, which prints it verbatim as
	// a C array bound.
	ArrayElem *Type
	ArraySize Node

	// Structure; Def is resolved (filled in) during type checking.
	StructName string
	Def        *StructDef

	// Function / Method
	Params []*Type
	Return *Type
	Owner  string // Method only: owning struct name
}

func Scalar(k TypeKind) *Type { return &Type{Kind: k} }

func NewPointer(elem *Type) *Type { return &Type{Kind: Pointer, Elem: elem} }

func NewArray(elem *Type, size Node) *Type {
	return &Type{Kind: Array, ArrayElem: elem, ArraySize: size}
}

func NewStruct(name string) *Type { return &Type{Kind: Structure, StructName: name} }

func NewFunction(params []*Type, ret *Type) *Type {
	return &Type{Kind: Function, Params: params, Return: ret}
}

func NewMethod(owner string, params []*Type, ret *Type) *Type {
	return &Type{Kind: Method, Owner: owner, Params: params, Return: ret}
}

// IsVoidPointer reports whether t is Pointer(Void), which is
// assignment-compatible with any pointer type (universal null).
func (t *Type) IsVoidPointer() bool {
	return t != nil && t.Kind == Pointer && t.Elem != nil && t.Elem.Kind == Void
}

func (t *Type) IsPointer() bool { return t != nil && t.Kind == Pointer }
func (t *Type) IsArray() bool   { return t != nil && t.Kind == Array }
func (t *Type) IsStruct() bool  { return t != nil && t.Kind == Structure }

func (t *Type) IsNumeric() bool {
	if t == nil {
		return false
	}
	switch t.Kind {
	case I32, F32, U8, Char:
		return true
	}
	return false
}

func (t *Type) IsInteger() bool {
	if t == nil {
		return false
	}
	switch t.Kind {
	case I32, U8, Char:
		return true
	}
	return false
}

// Decay converts an Array(T,n) into Pointer(T); all other kinds are
// returned unchanged. Used whenever a type flows into an expression
// position rather than a declaration position (§3 invariant).
func (t *Type) Decay() *Type {
	if t != nil && t.Kind == Array {
		return NewPointer(t.ArrayElem)
	}
	return t
}

// Equal compares two types structurally. Struct types compare by
// resolved name only (their fields are not walked: recursive struct
// types would otherwise recurse forever).
func (t *Type) Equal(other *Type) bool {
	if t == nil || other == nil {
		return t == other
	}
	if t.Kind != other.Kind {
		return false
	}
	switch t.Kind {
	case Pointer:
		// Pointer(Void) aliases any pointer (universal null).
		if t.IsVoidPointer() || other.IsVoidPointer() {
			return true
		}
		return t.Elem.Equal(other.Elem)
	case Array:
		return t.ArrayElem.Equal(other.ArrayElem)
	case Structure:
		return t.StructName == other.StructName
	case Function, Method:
		if len(t.Params) != len(other.Params) {
			return false
		}
		for i := range t.Params {
			if !t.Params[i].Equal(other.Params[i]) {
				return false
			}
		}
		return t.Return.Equal(other.Return)
	default:
		return true
	}
}

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	switch t.Kind {
	case Char:
		return "char"
	case I32:
		return "i32"
	case F32:
		return "f32"
	case Bool:
		return "bool"
	case U8:
		return "u8"
	case Void:
		return "void"
	case Pointer:
		if t.Elem != nil && t.Elem.Kind == Char {
			return "string"
		}
		return "&" + t.Elem.String()
	case Array:
		return fmt.Sprintf("%s[]", t.ArrayElem.String())
	case Structure:
		return t.StructName
	case Function:
		return fmt.Sprintf("fn(%s): %s", joinTypes(t.Params), t.Return.String())
	case Method:
		return fmt.Sprintf("%s::fn(%s): %s", t.Owner, joinTypes(t.Params), t.Return.String())
	default:
		return "<invalid>"
	}
}

func joinTypes(ts []*Type) string {
	parts := make([]string, len(ts))
	for i, p := range ts {
		parts[i] = p.String()
	}
	return strings.Join(parts, ", ")
}

// StringAlias returns &char, used for the `string` keyword and for
// format-string literals' result type.
func StringAlias() *Type { return NewPointer(Scalar(Char)) }

// UntypedPtrAlias returns &void, used for the `untyped_ptr` keyword.
func UntypedPtrAlias() *Type { return NewPointer(Scalar(Void)) }
