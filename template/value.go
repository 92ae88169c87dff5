// Package template implements the Jinja-like expression and control-block
// language used to render command arguments against a variable map.
package template

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind discriminates the closed set of value shapes the environment can
// hold or produce.
type Kind int

const (
	KindUndefined Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindList
	KindDict
)

// Value is a closed sum type over everything a variable, filter argument,
// or expression result can be.
type Value struct {
	Kind Kind
	Str  string
	Int  int64
	Flt  float64
	Bln  bool
	Lst  []Value
	Dct  map[string]Value
	// DKeys preserves insertion order for Dct, since Go maps don't.
	DKeys []string
}

func Undefined() Value          { return Value{Kind: KindUndefined} }
func String(s string) Value     { return Value{Kind: KindString, Str: s} }
func Int(i int64) Value         { return Value{Kind: KindInt, Int: i} }
func Float(f float64) Value     { return Value{Kind: KindFloat, Flt: f} }
func Bool(b bool) Value         { return Value{Kind: KindBool, Bln: b} }
func List(vs []Value) Value     { return Value{Kind: KindList, Lst: vs} }

func Dict(keys []string, vals map[string]Value) Value {
	return Value{Kind: KindDict, DKeys: keys, Dct: vals}
}

func NewDict() *DictBuilder {
	return &DictBuilder{vals: map[string]Value{}}
}

// DictBuilder builds a Value of KindDict while preserving insertion order.
type DictBuilder struct {
	keys []string
	vals map[string]Value
}

func (b *DictBuilder) Set(key string, v Value) *DictBuilder {
	if _, ok := b.vals[key]; !ok {
		b.keys = append(b.keys, key)
	}
	b.vals[key] = v
	return b
}

func (b *DictBuilder) Build() Value {
	return Dict(append([]string(nil), b.keys...), b.vals)
}

func (v Value) TypeName() string {
	switch v.Kind {
	case KindUndefined:
		return "undefined"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindDict:
		return "dict"
	default:
		return "unknown"
	}
}

func (v Value) IsTruthy() bool {
	switch v.Kind {
	case KindUndefined:
		return false
	case KindString:
		return v.Str != ""
	case KindInt:
		return v.Int != 0
	case KindFloat:
		return v.Flt != 0
	case KindBool:
		return v.Bln
	case KindList:
		return len(v.Lst) > 0
	case KindDict:
		return len(v.DKeys) > 0
	default:
		return false
	}
}

func (v Value) AsFloat() (float64, bool) {
	switch v.Kind {
	case KindInt:
		return float64(v.Int), true
	case KindFloat:
		return v.Flt, true
	case KindBool:
		if v.Bln {
			return 1, true
		}
		return 0, true
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		return f, err == nil
	}
	return 0, false
}

func (v Value) AsInt() (int64, bool) {
	switch v.Kind {
	case KindInt:
		return v.Int, true
	case KindFloat:
		return int64(v.Flt), true
	case KindBool:
		if v.Bln {
			return 1, true
		}
		return 0, true
	case KindString:
		i, err := strconv.ParseInt(strings.TrimSpace(v.Str), 10, 64)
		return i, err == nil
	}
	return 0, false
}

// String renders v the way it appears when substituted into template
// output.
func (v Value) String() string {
	switch v.Kind {
	case KindUndefined:
		return ""
	case KindString:
		return v.Str
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Flt, 'g', -1, 64)
	case KindBool:
		if v.Bln {
			return "true"
		}
		return "false"
	case KindList:
		parts := make([]string, len(v.Lst))
		for i, e := range v.Lst {
			parts[i] = e.reprString()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindDict:
		parts := make([]string, 0, len(v.DKeys))
		for _, k := range v.DKeys {
			parts = append(parts, strconv.Quote(k)+": "+v.Dct[k].reprString())
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return ""
	}
}

func (v Value) reprString() string {
	if v.Kind == KindString {
		return strconv.Quote(v.Str)
	}
	return v.String()
}

// ToJSON renders v as a JSON literal, used by the tojson filter.
func (v Value) ToJSON() string {
	switch v.Kind {
	case KindUndefined:
		return "null"
	case KindString:
		return strconv.Quote(v.Str)
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Flt, 'g', -1, 64)
	case KindBool:
		if v.Bln {
			return "true"
		}
		return "false"
	case KindList:
		parts := make([]string, len(v.Lst))
		for i, e := range v.Lst {
			parts[i] = e.ToJSON()
		}
		return "[" + strings.Join(parts, ",") + "]"
	case KindDict:
		parts := make([]string, 0, len(v.DKeys))
		for _, k := range v.DKeys {
			parts = append(parts, strconv.Quote(k)+":"+v.Dct[k].ToJSON())
		}
		return "{" + strings.Join(parts, ",") + "}"
	default:
		return "null"
	}
}

// Equal implements the eq/ne tests and == / != operators.
func (v Value) Equal(o Value) bool {
	if v.Kind == KindUndefined || o.Kind == KindUndefined {
		return v.Kind == o.Kind
	}
	if vf, ok := v.AsFloat(); ok {
		if of, ok2 := o.AsFloat(); ok2 && v.Kind != KindString && o.Kind != KindString {
			return vf == of
		}
	}
	if v.Kind == KindString || o.Kind == KindString {
		return v.String() == o.String()
	}
	if v.Kind == KindList && o.Kind == KindList {
		if len(v.Lst) != len(o.Lst) {
			return false
		}
		for i := range v.Lst {
			if !v.Lst[i].Equal(o.Lst[i]) {
				return false
			}
		}
		return true
	}
	return v.String() == o.String()
}

// Less implements ordering for the sort filter and lt/gt/le/ge tests.
func (v Value) Less(o Value) bool {
	if vf, ok := v.AsFloat(); ok {
		if of, ok2 := o.AsFloat(); ok2 {
			return vf < of
		}
	}
	return v.String() < o.String()
}

// Iterate returns the elements to range over for `{% for %}` / the
// iterable/sequence tests: a list's own elements, a dict's (key, value)
// pairs as two-element lists, or a string's runes as single-char strings.
func (v Value) Iterate() ([]Value, bool) {
	switch v.Kind {
	case KindList:
		return v.Lst, true
	case KindDict:
		out := make([]Value, 0, len(v.DKeys))
		for _, k := range v.DKeys {
			out = append(out, List([]Value{String(k), v.Dct[k]}))
		}
		return out, true
	case KindString:
		out := make([]Value, 0, len(v.Str))
		for _, r := range v.Str {
			out = append(out, String(string(r)))
		}
		return out, true
	}
	return nil, false
}

func sortedDictKeys(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	return out
}

func valueFromInterface(x interface{}) Value {
	switch t := x.(type) {
	case Value:
		return t
	case string:
		return String(t)
	case int:
		return Int(int64(t))
	case int64:
		return Int(t)
	case float64:
		return Float(t)
	case bool:
		return Bool(t)
	case nil:
		return Undefined()
	default:
		return String(fmt.Sprintf("%v", t))
	}
}
