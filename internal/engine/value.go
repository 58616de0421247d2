package engine

import "fmt"

// PropID identifies a per-entry property exposed by an archive handle.
type PropID int

const (
	PropPath PropID = iota
	PropIsDirectory
	PropSize
	PropPackedSize
	// PropModified is the modification time in Unix seconds.
	PropModified
	PropEncrypted
	// PropMode holds fs.FileMode permission bits.
	PropMode
)

// String returns the human-readable name of a property id.
func (id PropID) String() string {
	switch id {
	case PropPath:
		return "path"
	case PropIsDirectory:
		return "is_directory"
	case PropSize:
		return "size"
	case PropPackedSize:
		return "packed_size"
	case PropModified:
		return "modified"
	case PropEncrypted:
		return "encrypted"
	case PropMode:
		return "mode"
	default:
		return fmt.Sprintf("unknown(%d)", int(id))
	}
}

// ExpectedKind returns the representation a property is decoded into.
func (id PropID) ExpectedKind() ValueKind {
	switch id {
	case PropPath:
		return KindString
	case PropIsDirectory, PropEncrypted:
		return KindBool
	case PropSize, PropPackedSize, PropModified, PropMode:
		return KindInt64
	default:
		return KindEmpty
	}
}

// ValueKind is the tag of a Value.
type ValueKind uint8

const (
	KindEmpty ValueKind = iota
	KindString
	KindBool
	KindInt64
)

func (k ValueKind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindInt64:
		return "int64"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Value is a tagged property value reported by a codec. The zero Value is
// empty. Projections are checked: asking for a kind other than the tag
// returns a *TypeMismatchError and never coerces.
type Value struct {
	kind ValueKind
	str  string
	b    bool
	i    int64
}

func EmptyValue() Value {
	return Value{}
}

func StringValue(s string) Value {
	return Value{kind: KindString, str: s}
}

func BoolValue(b bool) Value {
	return Value{kind: KindBool, b: b}
}

func Int64Value(i int64) Value {
	return Value{kind: KindInt64, i: i}
}

// Kind returns the tag of the value.
func (v Value) Kind() ValueKind {
	return v.kind
}

// IsEmpty reports whether the codec had no value for the property.
func (v Value) IsEmpty() bool {
	return v.kind == KindEmpty
}

// AsString projects the value into a string.
func (v Value) AsString() (string, error) {
	if v.kind != KindString {
		return "", &TypeMismatchError{Want: KindString, Got: v.kind}
	}
	return v.str, nil
}

// AsBool projects the value into a bool.
func (v Value) AsBool() (bool, error) {
	if v.kind != KindBool {
		return false, &TypeMismatchError{Want: KindBool, Got: v.kind}
	}
	return v.b, nil
}

// AsInt64 projects the value into an int64.
func (v Value) AsInt64() (int64, error) {
	if v.kind != KindInt64 {
		return 0, &TypeMismatchError{Want: KindInt64, Got: v.kind}
	}
	return v.i, nil
}

// GoString renders the value for debugging and test failure output.
func (v Value) GoString() string {
	switch v.kind {
	case KindString:
		return fmt.Sprintf("string(%q)", v.str)
	case KindBool:
		return fmt.Sprintf("bool(%t)", v.b)
	case KindInt64:
		return fmt.Sprintf("int64(%d)", v.i)
	default:
		return "empty"
	}
}
