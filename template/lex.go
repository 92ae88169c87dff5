package template

import (
	"fmt"
	"strconv"
	"strings"
)

type tokKind int

const (
	tokEOF tokKind = iota
	tokIdent
	tokNumber
	tokString
	tokPunct
)

type token struct {
	kind  tokKind
	str   string
	num   float64
	isInt bool
}

type lexer struct {
	s    string
	pos  int
	toks []token
}

var punctuation = []string{
	"==", "!=", "<=", ">=", "(", ")", "[", "]", "{", "}", ".", ",", ":", "|", "+", "-", "*", "/", "%", "<", ">", "=",
}

func lexExpr(s string) ([]token, error) {
	l := &lexer{s: s}
	for {
		l.skipSpace()
		if l.pos >= len(l.s) {
			break
		}
		c := l.s[l.pos]
		switch {
		case c == '"' || c == '\'':
			tok, err := l.lexString(c)
			if err != nil {
				return nil, err
			}
			l.toks = append(l.toks, tok)
		case c >= '0' && c <= '9':
			l.toks = append(l.toks, l.lexNumber())
		case isIdentStartRune(c):
			l.toks = append(l.toks, l.lexIdent())
		default:
			matched := false
			for _, p := range punctuation {
				if strings.HasPrefix(l.s[l.pos:], p) {
					l.toks = append(l.toks, token{kind: tokPunct, str: p})
					l.pos += len(p)
					matched = true
					break
				}
			}
			if !matched {
				return nil, fmt.Errorf("unexpected character %q in expression", c)
			}
		}
	}
	l.toks = append(l.toks, token{kind: tokEOF})
	return l.toks, nil
}

func isIdentStartRune(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentContRune(c byte) bool {
	return isIdentStartRune(c) || (c >= '0' && c <= '9')
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.s) && (l.s[l.pos] == ' ' || l.s[l.pos] == '\t' || l.s[l.pos] == '\n' || l.s[l.pos] == '\r') {
		l.pos++
	}
}

func (l *lexer) lexIdent() token {
	start := l.pos
	for l.pos < len(l.s) && isIdentContRune(l.s[l.pos]) {
		l.pos++
	}
	return token{kind: tokIdent, str: l.s[start:l.pos]}
}

func (l *lexer) lexNumber() token {
	start := l.pos
	isInt := true
	for l.pos < len(l.s) && (l.s[l.pos] >= '0' && l.s[l.pos] <= '9') {
		l.pos++
	}
	if l.pos < len(l.s) && l.s[l.pos] == '.' {
		isInt = false
		l.pos++
		for l.pos < len(l.s) && (l.s[l.pos] >= '0' && l.s[l.pos] <= '9') {
			l.pos++
		}
	}
	n, _ := strconv.ParseFloat(l.s[start:l.pos], 64)
	return token{kind: tokNumber, num: n, isInt: isInt, str: l.s[start:l.pos]}
}

func (l *lexer) lexString(quote byte) (token, error) {
	l.pos++
	var sb strings.Builder
	for {
		if l.pos >= len(l.s) {
			return token{}, fmt.Errorf("unterminated string literal")
		}
		c := l.s[l.pos]
		if c == quote {
			l.pos++
			return token{kind: tokString, str: sb.String()}, nil
		}
		if c == '\\' && l.pos+1 < len(l.s) {
			switch l.s[l.pos+1] {
			case '\\':
				sb.WriteByte('\\')
			case quote:
				sb.WriteByte(quote)
			case 'n':
				sb.WriteByte('\n')
			default:
				sb.WriteByte(l.s[l.pos+1])
			}
			l.pos += 2
			continue
		}
		sb.WriteByte(c)
		l.pos++
	}
}
