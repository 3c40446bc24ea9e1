// Package value implements the tagged-variant attribute value used for
// fact attributes, pattern constraints, and audit snapshots.
package value

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind tags which field of a Value is meaningful.
type Kind int

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindTime
	KindList
)

// Value is a small closed-universe scalar: bool, int, float, string,
// timestamp, or a nested list of Values. Attribute sets are
// heterogeneous; Value itself carries no notion of attribute name.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	t    time.Time
	list []Value
}

func Nil() Value                { return Value{kind: KindNil} }
func Bool(b bool) Value         { return Value{kind: KindBool, b: b} }
func Int(i int64) Value         { return Value{kind: KindInt, i: i} }
func Float(f float64) Value     { return Value{kind: KindFloat, f: f} }
func String(s string) Value     { return Value{kind: KindString, s: s} }
func Time(t time.Time) Value    { return Value{kind: KindTime, t: t} }
func List(vs []Value) Value     { return Value{kind: KindList, list: vs} }

func (v Value) Kind() Kind { return v.kind }
func (v Value) Bool() bool { return v.b }
func (v Value) Int() int64 { return v.i }
func (v Value) Float() float64 { return v.f }
func (v Value) String() string {
	switch v.kind {
	case KindNil:
		return "<nil>"
	case KindBool:
		return fmt.Sprintf("%v", v.b)
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindString:
		return v.s
	case KindTime:
		return v.t.Format(time.RFC3339Nano)
	case KindList:
		return fmt.Sprintf("%v", v.list)
	default:
		return ""
	}
}
func (v Value) Time() time.Time  { return v.t }
func (v Value) List() []Value    { return v.list }
func (v Value) IsNil() bool      { return v.kind == KindNil }

// Equal reports whether two values are the same kind and carry the same
// data. Lists compare elementwise.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNil:
		return true
	case KindBool:
		return v.b == other.b
	case KindInt:
		return v.i == other.i
	case KindFloat:
		return v.f == other.f
	case KindString:
		return v.s == other.s
	case KindTime:
		return v.t.Equal(other.t)
	case KindList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// wireValue is the JSON-on-the-wire shape used for persistence and
// audit snapshots.
type wireValue struct {
	Kind string      `json:"kind"`
	Data interface{} `json:"data,omitempty"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	w := wireValue{}
	switch v.kind {
	case KindNil:
		w.Kind = "nil"
	case KindBool:
		w.Kind, w.Data = "bool", v.b
	case KindInt:
		w.Kind, w.Data = "int", v.i
	case KindFloat:
		w.Kind, w.Data = "float", v.f
	case KindString:
		w.Kind, w.Data = "string", v.s
	case KindTime:
		w.Kind, w.Data = "time", v.t.Format(time.RFC3339Nano)
	case KindList:
		w.Kind, w.Data = "list", v.list
	}
	return json.Marshal(w)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Kind {
	case "", "nil":
		*v = Nil()
	case "bool":
		b, _ := w.Data.(bool)
		*v = Bool(b)
	case "int":
		n, _ := w.Data.(float64)
		*v = Int(int64(n))
	case "float":
		f, _ := w.Data.(float64)
		*v = Float(f)
	case "string":
		s, _ := w.Data.(string)
		*v = String(s)
	case "time":
		s, _ := w.Data.(string)
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("value: parsing time %q: %w", s, err)
		}
		*v = Time(t)
	case "list":
		raw, err := json.Marshal(w.Data)
		if err != nil {
			return err
		}
		var list []Value
		if err := json.Unmarshal(raw, &list); err != nil {
			return err
		}
		*v = List(list)
	default:
		return fmt.Errorf("value: unknown kind %q", w.Kind)
	}
	return nil
}

// Attributes is a symbolic attribute-name to Value mapping: a fact's
// heterogeneous attribute bag.
type Attributes map[string]Value

// Clone returns a shallow copy safe to hand to a caller who may mutate
// the map (Values themselves are immutable).
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}
