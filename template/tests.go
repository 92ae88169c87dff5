package template

import "strings"

type testFunc func(v Value, args []Value) bool

var tests = map[string]testFunc{
	"boolean":  func(v Value, _ []Value) bool { return v.Kind == KindBool },
	"defined":  func(v Value, _ []Value) bool { return v.Kind != KindUndefined },
	"undefined": func(v Value, _ []Value) bool { return v.Kind == KindUndefined },
	"divisibleby": func(v Value, args []Value) bool {
		if len(args) == 0 {
			return false
		}
		vi, ok1 := v.AsInt()
		ai, ok2 := args[0].AsInt()
		return ok1 && ok2 && ai != 0 && vi%ai == 0
	},
	"endingwith": func(v Value, args []Value) bool {
		if len(args) == 0 {
			return false
		}
		return strings.HasSuffix(v.String(), args[0].String())
	},
	"startingwith": func(v Value, args []Value) bool {
		if len(args) == 0 {
			return false
		}
		return strings.HasPrefix(v.String(), args[0].String())
	},
	"eq": func(v Value, args []Value) bool { return len(args) > 0 && v.Equal(args[0]) },
	"ne": func(v Value, args []Value) bool { return len(args) > 0 && !v.Equal(args[0]) },
	"lt": func(v Value, args []Value) bool { return len(args) > 0 && v.Less(args[0]) },
	"le": func(v Value, args []Value) bool { return len(args) > 0 && (v.Less(args[0]) || v.Equal(args[0])) },
	"gt": func(v Value, args []Value) bool { return len(args) > 0 && args[0].Less(v) },
	"ge": func(v Value, args []Value) bool { return len(args) > 0 && (args[0].Less(v) || v.Equal(args[0])) },
	"even": func(v Value, _ []Value) bool { i, ok := v.AsInt(); return ok && i%2 == 0 },
	"odd":  func(v Value, _ []Value) bool { i, ok := v.AsInt(); return ok && i%2 != 0 },
	"false": func(v Value, _ []Value) bool { return v.Kind == KindBool && !v.Bln },
	"true":  func(v Value, _ []Value) bool { return v.Kind == KindBool && v.Bln },
	"none":  func(v Value, _ []Value) bool { return v.Kind == KindUndefined },
	"number": func(v Value, _ []Value) bool { return v.Kind == KindInt || v.Kind == KindFloat },
	"integer": func(v Value, _ []Value) bool { return v.Kind == KindInt },
	"float":   func(v Value, _ []Value) bool { return v.Kind == KindFloat },
	"string":  func(v Value, _ []Value) bool { return v.Kind == KindString },
	"mapping":  func(v Value, _ []Value) bool { return v.Kind == KindDict },
	"sequence": func(v Value, _ []Value) bool { return v.Kind == KindList || v.Kind == KindString },
	"iterable": func(v Value, _ []Value) bool { _, ok := v.Iterate(); return ok },
	"in": func(v Value, args []Value) bool {
		if len(args) == 0 {
			return false
		}
		coll := args[0]
		if coll.Kind == KindDict {
			_, ok := coll.Dct[v.String()]
			return ok
		}
		elems, ok := coll.Iterate()
		if !ok {
			return false
		}
		for _, e := range elems {
			if e.Equal(v) {
				return true
			}
		}
		return false
	},
	"lower": func(v Value, _ []Value) bool { return v.Kind == KindString && v.Str == strings.ToLower(v.Str) },
	"upper": func(v Value, _ []Value) bool { return v.Kind == KindString && v.Str == strings.ToUpper(v.Str) },
	"filter": func(v Value, args []Value) bool {
		if len(args) == 0 {
			return false
		}
		_, ok := filters[args[0].String()]
		return ok
	},
	"test": func(v Value, args []Value) bool {
		if len(args) == 0 {
			return false
		}
		_, ok := tests[args[0].String()]
		return ok
	},
}
