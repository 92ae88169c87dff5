package template

import "fmt"

// Expr is a parsed expression node.
type Expr interface {
	Eval(env *Env, vars map[string]Value) (Value, error)
}

type litExpr struct{ v Value }

func (e *litExpr) Eval(*Env, map[string]Value) (Value, error) { return e.v, nil }

type identExpr struct{ name string }

func (e *identExpr) Eval(env *Env, vars map[string]Value) (Value, error) {
	if v, ok := vars[e.name]; ok {
		return v, nil
	}
	return Undefined(), nil
}

type listExpr struct{ items []Expr }

func (e *listExpr) Eval(env *Env, vars map[string]Value) (Value, error) {
	out := make([]Value, len(e.items))
	for i, it := range e.items {
		v, err := it.Eval(env, vars)
		if err != nil {
			return Undefined(), err
		}
		out[i] = v
	}
	return List(out), nil
}

type dictExpr struct {
	keys []string
	vals []Expr
}

func (e *dictExpr) Eval(env *Env, vars map[string]Value) (Value, error) {
	b := NewDict()
	for i, k := range e.keys {
		v, err := e.vals[i].Eval(env, vars)
		if err != nil {
			return Undefined(), err
		}
		b.Set(k, v)
	}
	return b.Build(), nil
}

type binExpr struct {
	op   string
	l, r Expr
}

func (e *binExpr) Eval(env *Env, vars map[string]Value) (Value, error) {
	lv, err := e.l.Eval(env, vars)
	if err != nil {
		return Undefined(), err
	}
	if e.op == "and" {
		if !lv.IsTruthy() {
			return lv, nil
		}
		return e.r.Eval(env, vars)
	}
	if e.op == "or" {
		if lv.IsTruthy() {
			return lv, nil
		}
		return e.r.Eval(env, vars)
	}
	rv, err := e.r.Eval(env, vars)
	if err != nil {
		return Undefined(), err
	}
	switch e.op {
	case "==":
		return Bool(lv.Equal(rv)), nil
	case "!=":
		return Bool(!lv.Equal(rv)), nil
	case "<":
		return Bool(lv.Less(rv)), nil
	case "<=":
		return Bool(lv.Less(rv) || lv.Equal(rv)), nil
	case ">":
		return Bool(rv.Less(lv)), nil
	case ">=":
		return Bool(rv.Less(lv) || lv.Equal(rv)), nil
	case "+":
		return arithAdd(lv, rv)
	case "-":
		return arithBin(lv, rv, func(a, b float64) float64 { return a - b })
	case "*":
		return arithBin(lv, rv, func(a, b float64) float64 { return a * b })
	case "/":
		return arithBin(lv, rv, func(a, b float64) float64 {
			if b == 0 {
				return 0
			}
			return a / b
		})
	case "%":
		return arithBin(lv, rv, func(a, b float64) float64 {
			if b == 0 {
				return 0
			}
			ai, bi := int64(a), int64(b)
			return float64(ai % bi)
		})
	}
	return Undefined(), fmt.Errorf("unknown operator %q", e.op)
}

func arithAdd(l, r Value) (Value, error) {
	if l.Kind == KindString || r.Kind == KindString {
		return String(l.String() + r.String()), nil
	}
	if l.Kind == KindList && r.Kind == KindList {
		return List(append(append([]Value(nil), l.Lst...), r.Lst...)), nil
	}
	return arithBin(l, r, func(a, b float64) float64 { return a + b })
}

func arithBin(l, r Value, f func(a, b float64) float64) (Value, error) {
	lf, ok1 := l.AsFloat()
	rf, ok2 := r.AsFloat()
	if !ok1 || !ok2 {
		return Undefined(), fmt.Errorf("arithmetic on non-numeric value")
	}
	res := f(lf, rf)
	if l.Kind == KindInt && r.Kind == KindInt {
		return Int(int64(res)), nil
	}
	return Float(res), nil
}

type notExpr struct{ x Expr }

func (e *notExpr) Eval(env *Env, vars map[string]Value) (Value, error) {
	v, err := e.x.Eval(env, vars)
	if err != nil {
		return Undefined(), err
	}
	return Bool(!v.IsTruthy()), nil
}

type negExpr struct{ x Expr }

func (e *negExpr) Eval(env *Env, vars map[string]Value) (Value, error) {
	v, err := e.x.Eval(env, vars)
	if err != nil {
		return Undefined(), err
	}
	if v.Kind == KindInt {
		return Int(-v.Int), nil
	}
	f, _ := v.AsFloat()
	return Float(-f), nil
}

type inExpr struct {
	x, coll Expr
	negate  bool
}

func (e *inExpr) Eval(env *Env, vars map[string]Value) (Value, error) {
	xv, err := e.x.Eval(env, vars)
	if err != nil {
		return Undefined(), err
	}
	cv, err := e.coll.Eval(env, vars)
	if err != nil {
		return Undefined(), err
	}
	found := false
	if cv.Kind == KindDict {
		_, found = cv.Dct[xv.String()]
	} else if elems, ok := cv.Iterate(); ok {
		for _, el := range elems {
			if el.Equal(xv) {
				found = true
				break
			}
		}
	}
	if e.negate {
		found = !found
	}
	return Bool(found), nil
}

type attrExpr struct {
	x    Expr
	name string
}

func (e *attrExpr) Eval(env *Env, vars map[string]Value) (Value, error) {
	v, err := e.x.Eval(env, vars)
	if err != nil {
		return Undefined(), err
	}
	if v.Kind == KindDict {
		if dv, ok := v.Dct[e.name]; ok {
			return dv, nil
		}
		return Undefined(), nil
	}
	return Undefined(), nil
}

type indexExpr struct {
	x, idx Expr
}

func (e *indexExpr) Eval(env *Env, vars map[string]Value) (Value, error) {
	v, err := e.x.Eval(env, vars)
	if err != nil {
		return Undefined(), err
	}
	iv, err := e.idx.Eval(env, vars)
	if err != nil {
		return Undefined(), err
	}
	switch v.Kind {
	case KindDict:
		if dv, ok := v.Dct[iv.String()]; ok {
			return dv, nil
		}
		return Undefined(), nil
	case KindList:
		i, ok := iv.AsInt()
		if !ok {
			return Undefined(), nil
		}
		if i < 0 {
			i += int64(len(v.Lst))
		}
		if i < 0 || i >= int64(len(v.Lst)) {
			return Undefined(), nil
		}
		return v.Lst[i], nil
	case KindString:
		r := []rune(v.Str)
		i, ok := iv.AsInt()
		if !ok {
			return Undefined(), nil
		}
		if i < 0 {
			i += int64(len(r))
		}
		if i < 0 || i >= int64(len(r)) {
			return Undefined(), nil
		}
		return String(string(r[i])), nil
	}
	return Undefined(), nil
}

type filterExpr struct {
	x    Expr
	name string
	args []Expr
}

func (e *filterExpr) Eval(env *Env, vars map[string]Value) (Value, error) {
	fn, ok := filters[e.name]
	if !ok {
		return Undefined(), fmt.Errorf("unknown filter %q", e.name)
	}
	v, err := e.x.Eval(env, vars)
	if err != nil {
		return Undefined(), err
	}
	args := make([]Value, len(e.args))
	for i, a := range e.args {
		av, err := a.Eval(env, vars)
		if err != nil {
			return Undefined(), err
		}
		args[i] = av
	}
	return fn(env, v, args)
}

type testExpr struct {
	x      Expr
	name   string
	negate bool
	args   []Expr
}

func (e *testExpr) Eval(env *Env, vars map[string]Value) (Value, error) {
	fn, ok := tests[e.name]
	if !ok {
		return Undefined(), fmt.Errorf("unknown test %q", e.name)
	}
	v, err := e.x.Eval(env, vars)
	if err != nil {
		return Undefined(), err
	}
	args := make([]Value, len(e.args))
	for i, a := range e.args {
		av, err := a.Eval(env, vars)
		if err != nil {
			return Undefined(), err
		}
		args[i] = av
	}
	r := fn(v, args)
	if e.negate {
		r = !r
	}
	return Bool(r), nil
}

type callExpr struct {
	name string
	args []Expr
}

func (e *callExpr) Eval(env *Env, vars map[string]Value) (Value, error) {
	fn, ok := functions[e.name]
	if !ok {
		return Undefined(), fmt.Errorf("unknown function %q", e.name)
	}
	args := make([]Value, len(e.args))
	for i, a := range e.args {
		av, err := a.Eval(env, vars)
		if err != nil {
			return Undefined(), err
		}
		args[i] = av
	}
	return fn(env, vars, args)
}

// --- recursive-descent expression parser ---

type exprParser struct {
	toks []token
	pos  int
}

func parseExpr(s string) (Expr, error) {
	toks, err := lexExpr(s)
	if err != nil {
		return nil, err
	}
	p := &exprParser{toks: toks}
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.cur().kind != tokEOF {
		return nil, fmt.Errorf("unexpected trailing token %q", p.cur().str)
	}
	return e, nil
}

func (p *exprParser) cur() token  { return p.toks[p.pos] }
func (p *exprParser) advance()    { p.pos++ }

func (p *exprParser) isIdent(s string) bool {
	return p.cur().kind == tokIdent && p.cur().str == s
}

func (p *exprParser) isPunct(s string) bool {
	return p.cur().kind == tokPunct && p.cur().str == s
}

func (p *exprParser) parseOr() (Expr, error) {
	l, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isIdent("or") {
		p.advance()
		r, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l = &binExpr{op: "or", l: l, r: r}
	}
	return l, nil
}

func (p *exprParser) parseAnd() (Expr, error) {
	l, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.isIdent("and") {
		p.advance()
		r, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		l = &binExpr{op: "and", l: l, r: r}
	}
	return l, nil
}

func (p *exprParser) parseNot() (Expr, error) {
	if p.isIdent("not") {
		p.advance()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &notExpr{x: x}, nil
	}
	return p.parseComparison()
}

func (p *exprParser) parseComparison() (Expr, error) {
	l, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.isPunct("==") || p.isPunct("!=") || p.isPunct("<") || p.isPunct("<=") || p.isPunct(">") || p.isPunct(">="):
			op := p.cur().str
			p.advance()
			r, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			l = &binExpr{op: op, l: l, r: r}
		case p.isIdent("in"):
			p.advance()
			r, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			l = &inExpr{x: l, coll: r}
		case p.isIdent("not") && p.toks[p.pos+1].kind == tokIdent && p.toks[p.pos+1].str == "in":
			p.advance()
			p.advance()
			r, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			l = &inExpr{x: l, coll: r, negate: true}
		case p.isIdent("is"):
			p.advance()
			negate := false
			if p.isIdent("not") {
				negate = true
				p.advance()
			}
			if p.cur().kind != tokIdent {
				return nil, fmt.Errorf("expected test name after 'is'")
			}
			name := p.cur().str
			p.advance()
			var args []Expr
			if p.isPunct("(") {
				p.advance()
				for !p.isPunct(")") {
					a, err := p.parseOr()
					if err != nil {
						return nil, err
					}
					args = append(args, a)
					if p.isPunct(",") {
						p.advance()
						continue
					}
					break
				}
				if !p.isPunct(")") {
					return nil, fmt.Errorf("expected ')'")
				}
				p.advance()
			} else if p.cur().kind == tokNumber || p.cur().kind == tokString {
				a, err := p.parseUnary()
				if err != nil {
					return nil, err
				}
				args = append(args, a)
			}
			l = &testExpr{x: l, name: name, negate: negate, args: args}
		default:
			return l, nil
		}
	}
}

func (p *exprParser) parseAdditive() (Expr, error) {
	l, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.isPunct("+") || p.isPunct("-") {
		op := p.cur().str
		p.advance()
		r, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		l = &binExpr{op: op, l: l, r: r}
	}
	return l, nil
}

func (p *exprParser) parseMultiplicative() (Expr, error) {
	l, err := p.parseFilter()
	if err != nil {
		return nil, err
	}
	for p.isPunct("*") || p.isPunct("/") || p.isPunct("%") {
		op := p.cur().str
		p.advance()
		r, err := p.parseFilter()
		if err != nil {
			return nil, err
		}
		l = &binExpr{op: op, l: l, r: r}
	}
	return l, nil
}

func (p *exprParser) parseFilter() (Expr, error) {
	l, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isPunct("|") {
		p.advance()
		if p.cur().kind != tokIdent {
			return nil, fmt.Errorf("expected filter name after '|'")
		}
		name := p.cur().str
		p.advance()
		var args []Expr
		if p.isPunct("(") {
			p.advance()
			for !p.isPunct(")") {
				a, err := p.parseOr()
				if err != nil {
					return nil, err
				}
				args = append(args, a)
				if p.isPunct(",") {
					p.advance()
					continue
				}
				break
			}
			if !p.isPunct(")") {
				return nil, fmt.Errorf("expected ')'")
			}
			p.advance()
		}
		l = &filterExpr{x: l, name: name, args: args}
	}
	return l, nil
}

func (p *exprParser) parseUnary() (Expr, error) {
	if p.isPunct("-") {
		p.advance()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &negExpr{x: x}, nil
	}
	return p.parsePostfix()
}

func (p *exprParser) parsePostfix() (Expr, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.isPunct("."):
			p.advance()
			if p.cur().kind != tokIdent {
				return nil, fmt.Errorf("expected attribute name after '.'")
			}
			name := p.cur().str
			p.advance()
			x = &attrExpr{x: x, name: name}
		case p.isPunct("["):
			p.advance()
			idx, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if !p.isPunct("]") {
				return nil, fmt.Errorf("expected ']'")
			}
			p.advance()
			x = &indexExpr{x: x, idx: idx}
		default:
			return x, nil
		}
	}
}

func (p *exprParser) parsePrimary() (Expr, error) {
	t := p.cur()
	switch {
	case t.kind == tokNumber:
		p.advance()
		if t.isInt {
			return &litExpr{v: Int(int64(t.num))}, nil
		}
		return &litExpr{v: Float(t.num)}, nil
	case t.kind == tokString:
		p.advance()
		return &litExpr{v: String(t.str)}, nil
	case t.kind == tokIdent && (t.str == "true" || t.str == "True"):
		p.advance()
		return &litExpr{v: Bool(true)}, nil
	case t.kind == tokIdent && (t.str == "false" || t.str == "False"):
		p.advance()
		return &litExpr{v: Bool(false)}, nil
	case t.kind == tokIdent && (t.str == "none" || t.str == "None"):
		p.advance()
		return &litExpr{v: Undefined()}, nil
	case t.kind == tokIdent:
		name := t.str
		p.advance()
		if p.isPunct("(") {
			p.advance()
			var args []Expr
			for !p.isPunct(")") {
				a, err := p.parseOr()
				if err != nil {
					return nil, err
				}
				args = append(args, a)
				if p.isPunct(",") {
					p.advance()
					continue
				}
				break
			}
			if !p.isPunct(")") {
				return nil, fmt.Errorf("expected ')'")
			}
			p.advance()
			return &callExpr{name: name, args: args}, nil
		}
		return &identExpr{name: name}, nil
	case t.kind == tokPunct && t.str == "(":
		p.advance()
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.isPunct(")") {
			return nil, fmt.Errorf("expected ')'")
		}
		p.advance()
		return e, nil
	case t.kind == tokPunct && t.str == "[":
		p.advance()
		var items []Expr
		for !p.isPunct("]") {
			e, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			items = append(items, e)
			if p.isPunct(",") {
				p.advance()
				continue
			}
			break
		}
		if !p.isPunct("]") {
			return nil, fmt.Errorf("expected ']'")
		}
		p.advance()
		return &listExpr{items: items}, nil
	case t.kind == tokPunct && t.str == "{":
		p.advance()
		var keys []string
		var vals []Expr
		for !p.isPunct("}") {
			if p.cur().kind != tokString && p.cur().kind != tokIdent {
				return nil, fmt.Errorf("expected dict key")
			}
			keys = append(keys, p.cur().str)
			p.advance()
			if !p.isPunct(":") {
				return nil, fmt.Errorf("expected ':' in dict literal")
			}
			p.advance()
			v, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			vals = append(vals, v)
			if p.isPunct(",") {
				p.advance()
				continue
			}
			break
		}
		if !p.isPunct("}") {
			return nil, fmt.Errorf("expected '}'")
		}
		p.advance()
		return &dictExpr{keys: keys, vals: vals}, nil
	}
	return nil, fmt.Errorf("unexpected token %q", t.str)
}
