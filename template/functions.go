package template

import "fmt"

type functionFunc func(env *Env, vars map[string]Value, args []Value) (Value, error)

var functions = map[string]functionFunc{
	// debug returns a readable dump of the current variable scope; useful
	// inside a script while iterating on a template expression.
	"debug": func(_ *Env, vars map[string]Value, _ []Value) (Value, error) {
		b := NewDict()
		for k, v := range vars {
			b.Set(k, v)
		}
		return b.Build(), nil
	},
	"dict": func(_ *Env, _ map[string]Value, args []Value) (Value, error) {
		b := NewDict()
		for i := 0; i+1 < len(args); i += 2 {
			b.Set(args[i].String(), args[i+1])
		}
		return b.Build(), nil
	},
	// namespace returns a fresh dict built from positional key, value
	// argument pairs, the same as dict. The template language has no
	// assignment statement, so its entries cannot be changed afterwards.
	"namespace": func(_ *Env, _ map[string]Value, args []Value) (Value, error) {
		b := NewDict()
		for i := 0; i+1 < len(args); i += 2 {
			b.Set(args[i].String(), args[i+1])
		}
		return b.Build(), nil
	},
	"range": func(_ *Env, _ map[string]Value, args []Value) (Value, error) {
		var start, stop, step int64 = 0, 0, 1
		switch len(args) {
		case 1:
			stop, _ = args[0].AsInt()
		case 2:
			start, _ = args[0].AsInt()
			stop, _ = args[1].AsInt()
		case 3:
			start, _ = args[0].AsInt()
			stop, _ = args[1].AsInt()
			step, _ = args[2].AsInt()
		default:
			return Undefined(), fmt.Errorf("range takes 1 to 3 arguments")
		}
		if step == 0 {
			return Undefined(), fmt.Errorf("range step must not be zero")
		}
		var out []Value
		if step > 0 {
			for i := start; i < stop; i += step {
				out = append(out, Int(i))
			}
		} else {
			for i := start; i > stop; i += step {
				out = append(out, Int(i))
			}
		}
		return List(out), nil
	},
}
