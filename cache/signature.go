package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// KeySeparator defines the delimiter used between the name and the params segment of a key.
const KeySeparator = "::"

var nameEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

// Signature is the structural identity of a read query: its logical name plus
// the canonical encoding of its parameters. Signatures are comparable values
// and can be used directly as map keys.
type Signature struct {
	name   string
	params string
	opaque bool
}

// Codec derives signatures from a query name and its parameters.
// Implementations must be total and deterministic across processes.
type Codec interface {
	SignatureOf(name string, params any) Signature
}

// canonicalCodec normalizes params through JSON so that deep-equal values
// produce the same signature regardless of field or insertion order.
// Values JSON cannot represent fall back to a reflection walk.
type canonicalCodec struct{}

// NewCanonicalCodec creates the default signature codec.
func NewCanonicalCodec() Codec {
	return canonicalCodec{}
}

var defaultCodec = NewCanonicalCodec()

// SignatureOf derives a signature with the default codec.
func SignatureOf(name string, params any) Signature {
	return defaultCodec.SignatureOf(name, params)
}

func (canonicalCodec) SignatureOf(name string, params any) Signature {
	canonical, ok := canonicalJSON(params)
	if ok {
		return Signature{name: name, params: canonical}
	}
	return Signature{name: name, params: reflectKey(params), opaque: true}
}

// Name returns the logical query name.
func (s Signature) Name() string { return s.name }

// Params returns the canonical params as JSON, or nil when the query takes
// no params or the params could not be represented as JSON.
func (s Signature) Params() json.RawMessage {
	if s.params == "" || s.opaque {
		return nil
	}
	return json.RawMessage(s.params)
}

// Portable reports whether the signature can cross a process boundary.
func (s Signature) Portable() bool { return !s.opaque }

// IsZero reports whether s is the zero Signature.
func (s Signature) IsZero() bool { return s == Signature{} }

// Key renders the signature as a flat string. Names are escaped so that two
// distinct names can never produce the same key.
func (s Signature) Key() string {
	name := nameEscaper.Replace(s.name)
	if s.params == "" {
		return name
	}
	return name + KeySeparator + s.params
}

func (s Signature) String() string { return s.Key() }

func canonicalJSON(v any) (string, bool) {
	if v == nil {
		return "", true
	}

	var raw []byte
	switch val := v.(type) {
	case json.RawMessage:
		raw = val
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", false
		}
		raw = b
	}
	if len(raw) == 0 {
		return "", true
	}

	if !json.Valid(raw) {
		return "", false
	}
	// numbers keep their literal text so integers past 2^53 stay distinct
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return "", false
	}

	switch d := decoded.(type) {
	case nil:
		return "", true
	case map[string]any:
		if len(d) == 0 {
			return "", true
		}
	}

	// encoding/json writes map keys in sorted order
	out, err := json.Marshal(decoded)
	if err != nil {
		return "", false
	}
	return string(out), true
}

// reflectKey walks values JSON rejects (funcs, channels, complex numbers).
// Function and channel identities are pointer based and only stable within
// one process, which is why such signatures are not portable.
func reflectKey(v any) string {
	return "reflect:" + reflectValue(reflect.ValueOf(v))
}

func reflectValue(rv reflect.Value) string {
	if !rv.IsValid() {
		return "nil"
	}

	switch rv.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		if rv.IsNil() {
			return "nil"
		}
		return fmt.Sprintf("%s:%#x", rv.Kind(), rv.Pointer())
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return "nil"
		}
		return reflectValue(rv.Elem())
	case reflect.Slice, reflect.Array:
		parts := make([]string, rv.Len())
		for i := range parts {
			parts[i] = reflectValue(rv.Index(i))
		}
		return "[" + strings.Join(parts, ",") + "]"
	case reflect.Map:
		pairs := make([]string, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			pairs = append(pairs, reflectValue(iter.Key())+"="+reflectValue(iter.Value()))
		}
		sort.Strings(pairs)
		return "{" + strings.Join(pairs, ",") + "}"
	case reflect.Struct:
		rt := rv.Type()
		fields := make([]string, 0, rv.NumField())
		for i := 0; i < rv.NumField(); i++ {
			if !rt.Field(i).IsExported() {
				continue
			}
			fields = append(fields, rt.Field(i).Name+":"+reflectValue(rv.Field(i)))
		}
		sort.Strings(fields)
		return "{" + strings.Join(fields, ",") + "}"
	default:
		return fmt.Sprintf("%v", rv.Interface())
	}
}
