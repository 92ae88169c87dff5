package template

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

type filterFunc func(env *Env, v Value, args []Value) (Value, error)

func arg(args []Value, i int) (Value, bool) {
	if i < len(args) {
		return args[i], true
	}
	return Undefined(), false
}

var filters = map[string]filterFunc{
	"abs": func(_ *Env, v Value, _ []Value) (Value, error) {
		if v.Kind == KindInt {
			if v.Int < 0 {
				return Int(-v.Int), nil
			}
			return v, nil
		}
		f, _ := v.AsFloat()
		return Float(math.Abs(f)), nil
	},
	"attr": func(_ *Env, v Value, args []Value) (Value, error) {
		name, _ := arg(args, 0)
		if v.Kind == KindDict {
			if dv, ok := v.Dct[name.String()]; ok {
				return dv, nil
			}
		}
		return Undefined(), nil
	},
	"batch": func(_ *Env, v Value, args []Value) (Value, error) {
		n, _ := arg(args, 0)
		size, _ := n.AsInt()
		if size <= 0 {
			return Undefined(), fmt.Errorf("batch size must be positive")
		}
		var out []Value
		for i := 0; i < len(v.Lst); i += int(size) {
			end := i + int(size)
			if end > len(v.Lst) {
				end = len(v.Lst)
			}
			out = append(out, List(append([]Value(nil), v.Lst[i:end]...)))
		}
		return List(out), nil
	},
	"bool": func(_ *Env, v Value, _ []Value) (Value, error) { return Bool(v.IsTruthy()), nil },
	"int": func(_ *Env, v Value, args []Value) (Value, error) {
		i, ok := v.AsInt()
		if !ok {
			if d, has := arg(args, 0); has {
				return d, nil
			}
			return Int(0), nil
		}
		return Int(i), nil
	},
	"float": func(_ *Env, v Value, args []Value) (Value, error) {
		f, ok := v.AsFloat()
		if !ok {
			if d, has := arg(args, 0); has {
				return d, nil
			}
			return Float(0), nil
		}
		return Float(f), nil
	},
	"string": func(_ *Env, v Value, _ []Value) (Value, error) { return String(v.String()), nil },
	"capitalize": func(_ *Env, v Value, _ []Value) (Value, error) {
		s := v.String()
		if s == "" {
			return String(s), nil
		}
		return String(strings.ToUpper(s[:1]) + strings.ToLower(s[1:])), nil
	},
	"lower": func(_ *Env, v Value, _ []Value) (Value, error) { return String(strings.ToLower(v.String())), nil },
	"upper": func(_ *Env, v Value, _ []Value) (Value, error) { return String(strings.ToUpper(v.String())), nil },
	"default": func(_ *Env, v Value, args []Value) (Value, error) {
		d, _ := arg(args, 0)
		if v.Kind == KindUndefined {
			return d, nil
		}
		if b, has := arg(args, 1); has && b.IsTruthy() && !v.IsTruthy() {
			return d, nil
		}
		return v, nil
	},
	"dictsort": func(_ *Env, v Value, _ []Value) (Value, error) {
		keys := sortedDictKeys(v.DKeys)
		out := make([]Value, len(keys))
		for i, k := range keys {
			out[i] = List([]Value{String(k), v.Dct[k]})
		}
		return List(out), nil
	},
	"first": func(_ *Env, v Value, _ []Value) (Value, error) {
		elems, ok := v.Iterate()
		if !ok || len(elems) == 0 {
			return Undefined(), nil
		}
		return elems[0], nil
	},
	"last": func(_ *Env, v Value, _ []Value) (Value, error) {
		elems, ok := v.Iterate()
		if !ok || len(elems) == 0 {
			return Undefined(), nil
		}
		return elems[len(elems)-1], nil
	},
	"groupby": func(_ *Env, v Value, args []Value) (Value, error) {
		attrName, _ := arg(args, 0)
		groups := map[string][]Value{}
		var order []string
		for _, el := range v.Lst {
			key := ""
			if el.Kind == KindDict {
				key = el.Dct[attrName.String()].String()
			}
			if _, seen := groups[key]; !seen {
				order = append(order, key)
			}
			groups[key] = append(groups[key], el)
		}
		out := make([]Value, len(order))
		for i, k := range order {
			out[i] = List([]Value{String(k), List(groups[k])})
		}
		return List(out), nil
	},
	"indent": func(_ *Env, v Value, args []Value) (Value, error) {
		width := int64(4)
		if w, has := arg(args, 0); has {
			width, _ = w.AsInt()
		}
		first := false
		if f, has := arg(args, 1); has {
			first = f.IsTruthy()
		}
		pad := strings.Repeat(" ", int(width))
		lines := strings.Split(v.String(), "\n")
		for i := range lines {
			if i == 0 && !first {
				continue
			}
			if lines[i] == "" {
				continue
			}
			lines[i] = pad + lines[i]
		}
		return String(strings.Join(lines, "\n")), nil
	},
	"items": func(_ *Env, v Value, _ []Value) (Value, error) {
		out := make([]Value, 0, len(v.DKeys))
		for _, k := range v.DKeys {
			out = append(out, List([]Value{String(k), v.Dct[k]}))
		}
		return List(out), nil
	},
	"join": func(_ *Env, v Value, args []Value) (Value, error) {
		sep := ""
		if s, has := arg(args, 0); has {
			sep = s.String()
		}
		parts := make([]string, len(v.Lst))
		for i, e := range v.Lst {
			parts[i] = e.String()
		}
		return String(strings.Join(parts, sep)), nil
	},
	"length": func(_ *Env, v Value, _ []Value) (Value, error) { return Int(int64(valueLen(v))), nil },
	"lines": func(_ *Env, v Value, _ []Value) (Value, error) {
		parts := strings.Split(v.String(), "\n")
		out := make([]Value, len(parts))
		for i, p := range parts {
			out[i] = String(p)
		}
		return List(out), nil
	},
	"list": func(_ *Env, v Value, _ []Value) (Value, error) {
		elems, ok := v.Iterate()
		if !ok {
			return List(nil), nil
		}
		return List(elems), nil
	},
	"map": func(env *Env, v Value, args []Value) (Value, error) {
		if len(args) == 0 {
			return Undefined(), fmt.Errorf("map requires a filter or attribute name")
		}
		name := args[0].String()
		rest := args[1:]
		out := make([]Value, len(v.Lst))
		if fn, ok := filters[name]; ok {
			for i, e := range v.Lst {
				r, err := fn(env, e, rest)
				if err != nil {
					return Undefined(), err
				}
				out[i] = r
			}
			return List(out), nil
		}
		for i, e := range v.Lst {
			if e.Kind == KindDict {
				out[i] = e.Dct[name]
			} else {
				out[i] = Undefined()
			}
		}
		return List(out), nil
	},
	"max": func(_ *Env, v Value, _ []Value) (Value, error) {
		if len(v.Lst) == 0 {
			return Undefined(), nil
		}
		m := v.Lst[0]
		for _, e := range v.Lst[1:] {
			if m.Less(e) {
				m = e
			}
		}
		return m, nil
	},
	"min": func(_ *Env, v Value, _ []Value) (Value, error) {
		if len(v.Lst) == 0 {
			return Undefined(), nil
		}
		m := v.Lst[0]
		for _, e := range v.Lst[1:] {
			if e.Less(m) {
				m = e
			}
		}
		return m, nil
	},
	"pprint": func(_ *Env, v Value, _ []Value) (Value, error) { return String(v.ToJSON()), nil },
	"reject": func(env *Env, v Value, args []Value) (Value, error) { return filterByTest(env, v, args, true) },
	"rejectattr": func(env *Env, v Value, args []Value) (Value, error) { return filterByAttr(v, args, true) },
	"replace": func(_ *Env, v Value, args []Value) (Value, error) {
		old, _ := arg(args, 0)
		new_, _ := arg(args, 1)
		return String(strings.ReplaceAll(v.String(), old.String(), new_.String())), nil
	},
	"reverse": func(_ *Env, v Value, _ []Value) (Value, error) {
		if v.Kind == KindList {
			out := make([]Value, len(v.Lst))
			for i, e := range v.Lst {
				out[len(out)-1-i] = e
			}
			return List(out), nil
		}
		r := []rune(v.String())
		for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
			r[i], r[j] = r[j], r[i]
		}
		return String(string(r)), nil
	},
	"round": func(_ *Env, v Value, args []Value) (Value, error) {
		f, _ := v.AsFloat()
		prec := int64(0)
		if p, has := arg(args, 0); has {
			prec, _ = p.AsInt()
		}
		mult := math.Pow(10, float64(prec))
		return Float(math.Round(f*mult) / mult), nil
	},
	"select": func(env *Env, v Value, args []Value) (Value, error) { return filterByTest(env, v, args, false) },
	"selectattr": func(env *Env, v Value, args []Value) (Value, error) { return filterByAttr(v, args, false) },
	"slice": func(_ *Env, v Value, args []Value) (Value, error) {
		start, end := int64(0), int64(len(v.Lst))
		if s, has := arg(args, 0); has {
			start, _ = s.AsInt()
		}
		if e, has := arg(args, 1); has {
			end, _ = e.AsInt()
		}
		if start < 0 {
			start = 0
		}
		if end > int64(len(v.Lst)) {
			end = int64(len(v.Lst))
		}
		if start > end {
			start = end
		}
		return List(append([]Value(nil), v.Lst[start:end]...)), nil
	},
	"sort": func(_ *Env, v Value, args []Value) (Value, error) {
		out := append([]Value(nil), v.Lst...)
		reverse := false
		if r, has := arg(args, 0); has {
			reverse = r.IsTruthy()
		}
		sort.SliceStable(out, func(i, j int) bool {
			if reverse {
				return out[j].Less(out[i])
			}
			return out[i].Less(out[j])
		})
		return List(out), nil
	},
	"split": func(_ *Env, v Value, args []Value) (Value, error) {
		sep := " "
		if s, has := arg(args, 0); has {
			sep = s.String()
		}
		var parts []string
		if sep == "" {
			parts = strings.Fields(v.String())
		} else {
			parts = strings.Split(v.String(), sep)
		}
		out := make([]Value, len(parts))
		for i, p := range parts {
			out[i] = String(p)
		}
		return List(out), nil
	},
	"tojson": func(_ *Env, v Value, _ []Value) (Value, error) { return String(v.ToJSON()), nil },
	"trim": func(_ *Env, v Value, _ []Value) (Value, error) { return String(strings.TrimSpace(v.String())), nil },
	"unique": func(_ *Env, v Value, _ []Value) (Value, error) {
		seen := map[string]bool{}
		var out []Value
		for _, e := range v.Lst {
			k := e.String()
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, e)
		}
		return List(out), nil
	},
}

func valueLen(v Value) int {
	switch v.Kind {
	case KindList:
		return len(v.Lst)
	case KindDict:
		return len(v.DKeys)
	case KindString:
		return len([]rune(v.Str))
	}
	return 0
}

func filterByTest(env *Env, v Value, args []Value, negate bool) (Value, error) {
	if len(args) == 0 {
		var out []Value
		for _, e := range v.Lst {
			if e.IsTruthy() != negate {
				out = append(out, e)
			}
		}
		return List(out), nil
	}
	name := args[0].String()
	fn, ok := tests[name]
	if !ok {
		return Undefined(), fmt.Errorf("unknown test %q", name)
	}
	rest := args[1:]
	var out []Value
	for _, e := range v.Lst {
		if fn(e, rest) != negate {
			out = append(out, e)
		}
	}
	return List(out), nil
}

func filterByAttr(v Value, args []Value, negate bool) (Value, error) {
	if len(args) == 0 {
		return Undefined(), fmt.Errorf("selectattr/rejectattr requires an attribute name")
	}
	attrName := args[0].String()
	var testName string
	var testArgs []Value
	if len(args) > 1 {
		testName = args[1].String()
		testArgs = args[2:]
	}
	var out []Value
	for _, e := range v.Lst {
		var av Value
		if e.Kind == KindDict {
			av = e.Dct[attrName]
		}
		var pass bool
		if testName == "" {
			pass = av.IsTruthy()
		} else if fn, ok := tests[testName]; ok {
			pass = fn(av, testArgs)
		}
		if pass != negate {
			out = append(out, e)
		}
	}
	return List(out), nil
}
