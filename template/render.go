package template

import (
	"strings"

	"github.com/pkg/errors"
)

// Node is one piece of a parsed template: literal text, an expression
// substitution, or a control block.
type Node interface {
	render(env *Env, vars map[string]Value, out *strings.Builder) error
}

type textNode struct{ text string }

func (n *textNode) render(env *Env, vars map[string]Value, out *strings.Builder) error {
	out.WriteString(n.text)
	return nil
}

type exprNode struct{ expr Expr }

func (n *exprNode) render(env *Env, vars map[string]Value, out *strings.Builder) error {
	v, err := n.expr.Eval(env, vars)
	if err != nil {
		return err
	}
	out.WriteString(v.String())
	return nil
}

type ifBranch struct {
	cond Expr // nil for the trailing else
	body []Node
}

type ifNode struct{ branches []ifBranch }

func (n *ifNode) render(env *Env, vars map[string]Value, out *strings.Builder) error {
	for _, b := range n.branches {
		if b.cond == nil {
			return renderNodes(b.body, env, vars, out)
		}
		v, err := b.cond.Eval(env, vars)
		if err != nil {
			return err
		}
		if v.IsTruthy() {
			return renderNodes(b.body, env, vars, out)
		}
	}
	return nil
}

type forNode struct {
	keyVar string // set when iterating a dict as "k, v"
	valVar string
	iter   Expr
	body   []Node
}

func (n *forNode) render(env *Env, vars map[string]Value, out *strings.Builder) error {
	coll, err := n.iter.Eval(env, vars)
	if err != nil {
		return err
	}
	elems, ok := coll.Iterate()
	if !ok {
		return errors.Errorf("value of type %s is not iterable", coll.TypeName())
	}
	scope := make(map[string]Value, len(vars)+2)
	for k, v := range vars {
		scope[k] = v
	}
	for i, el := range elems {
		if n.keyVar != "" {
			scope[n.keyVar] = el.Lst[0]
			scope[n.valVar] = el.Lst[1]
		} else {
			scope[n.valVar] = el
		}
		scope["loop"] = NewDict().
			Set("index", Int(int64(i+1))).
			Set("index0", Int(int64(i))).
			Set("first", Bool(i == 0)).
			Set("last", Bool(i == len(elems)-1)).
			Build()
		if err := renderNodes(n.body, env, scope, out); err != nil {
			return err
		}
	}
	return nil
}

func renderNodes(nodes []Node, env *Env, vars map[string]Value, out *strings.Builder) error {
	for _, n := range nodes {
		if err := n.render(env, vars, out); err != nil {
			return err
		}
	}
	return nil
}

// Template is a parsed render template.
type Template struct {
	nodes []Node
}

// Parse parses template source into a renderable Template.
func Parse(src string) (*Template, error) {
	nodes, rest, tag, _, err := parseNodes(src)
	if err != nil {
		return nil, err
	}
	if tag != "" {
		return nil, errors.Errorf("unexpected {%% %s %%} with no matching opening block", tag)
	}
	if rest != "" {
		return nil, errors.New("unconsumed template input")
	}
	return &Template{nodes: nodes}, nil
}

// parseNodes parses a sequence of nodes until it hits a {% ... %} block
// whose keyword is one of "elif", "else", "endif", "endfor", or until EOF.
// It returns the matched terminator keyword ("" for EOF), that block's
// argument text, and the input remaining just after that block's %}.
func parseNodes(s string) (nodes []Node, rest string, tag string, tagArg string, err error) {
	for {
		exprIdx := strings.Index(s, "{{")
		stmtIdx := strings.Index(s, "{%")

		next := -1
		isExpr := false
		switch {
		case exprIdx < 0 && stmtIdx < 0:
			next = -1
		case exprIdx < 0:
			next, isExpr = stmtIdx, false
		case stmtIdx < 0:
			next, isExpr = exprIdx, true
		case exprIdx < stmtIdx:
			next, isExpr = exprIdx, true
		default:
			next, isExpr = stmtIdx, false
		}

		if next < 0 {
			if s != "" {
				nodes = append(nodes, &textNode{text: s})
			}
			return nodes, "", "", "", nil
		}
		if next > 0 {
			nodes = append(nodes, &textNode{text: s[:next]})
		}
		s = s[next:]

		if isExpr {
			end := strings.Index(s, "}}")
			if end < 0 {
				return nil, "", "", "", errors.New("unterminated {{ expression")
			}
			body := strings.TrimSpace(s[2:end])
			s = s[end+2:]
			e, err := parseExpr(body)
			if err != nil {
				return nil, "", "", "", errors.Wrapf(err, "in expression %q", body)
			}
			nodes = append(nodes, &exprNode{expr: e})
			continue
		}

		end := strings.Index(s, "%}")
		if end < 0 {
			return nil, "", "", "", errors.New("unterminated {% block")
		}
		body := strings.TrimSpace(s[2:end])
		s = s[end+2:]

		kw, arg := splitKeyword(body)
		switch kw {
		case "if":
			ifn, rem, err := parseIf(arg, s)
			if err != nil {
				return nil, "", "", "", err
			}
			nodes = append(nodes, ifn)
			s = rem
		case "for":
			forn, rem, err := parseFor(arg, s)
			if err != nil {
				return nil, "", "", "", err
			}
			nodes = append(nodes, forn)
			s = rem
		case "elif", "else", "endif", "endfor":
			return nodes, s, kw, arg, nil
		default:
			return nil, "", "", "", errors.Errorf("unknown block tag %q", kw)
		}
	}
}

func splitKeyword(body string) (kw, arg string) {
	i := strings.IndexAny(body, " \t")
	if i < 0 {
		return body, ""
	}
	return body[:i], strings.TrimSpace(body[i:])
}

func parseIf(arg, rest string) (Node, string, error) {
	n := &ifNode{}
	cond, err := parseExpr(arg)
	if err != nil {
		return nil, "", errors.Wrapf(err, "in if condition %q", arg)
	}
	body, rem, tag, tagArg, err := parseNodes(rest)
	if err != nil {
		return nil, "", err
	}
	n.branches = append(n.branches, ifBranch{cond: cond, body: body})

	for tag == "elif" {
		cond, err := parseExpr(tagArg)
		if err != nil {
			return nil, "", errors.Wrapf(err, "in elif condition %q", tagArg)
		}
		body, rem2, tag2, tagArg2, err := parseNodes(rem)
		if err != nil {
			return nil, "", err
		}
		n.branches = append(n.branches, ifBranch{cond: cond, body: body})
		rem, tag, tagArg = rem2, tag2, tagArg2
	}

	switch tag {
	case "else":
		body2, rem2, tag2, _, err := parseNodes(rem)
		if err != nil {
			return nil, "", err
		}
		if tag2 != "endif" {
			return nil, "", errors.Errorf("expected endif, got %q", tag2)
		}
		n.branches = append(n.branches, ifBranch{cond: nil, body: body2})
		return n, rem2, nil
	case "endif":
		return n, rem, nil
	}
	return nil, "", errors.Errorf("expected elif/else/endif, got %q", tag)
}

func parseFor(arg, rest string) (Node, string, error) {
	n := &forNode{}
	inIdx := strings.Index(arg, " in ")
	if inIdx < 0 {
		return nil, "", errors.Errorf("malformed for loop %q", arg)
	}
	vars := strings.TrimSpace(arg[:inIdx])
	iterSrc := strings.TrimSpace(arg[inIdx+len(" in "):])

	if comma := strings.Index(vars, ","); comma >= 0 {
		n.keyVar = strings.TrimSpace(vars[:comma])
		n.valVar = strings.TrimSpace(vars[comma+1:])
	} else {
		n.valVar = vars
	}

	iter, err := parseExpr(iterSrc)
	if err != nil {
		return nil, "", errors.Wrapf(err, "in for iterable %q", iterSrc)
	}
	n.iter = iter

	body, rem, tag, _, err := parseNodes(rest)
	if err != nil {
		return nil, "", err
	}
	if tag != "endfor" {
		return nil, "", errors.Errorf("expected endfor, got %q", tag)
	}
	n.body = body
	return n, rem, nil
}

// Render renders t against vars.
func (t *Template) Render(env *Env, vars map[string]Value) (string, error) {
	var out strings.Builder
	if err := renderNodes(t.nodes, env, vars, &out); err != nil {
		return "", err
	}
	return out.String(), nil
}
