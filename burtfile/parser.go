package burtfile

import (
	"strings"
)

// parser holds the remaining unconsumed input (s) alongside the original
// full text (full), used only to compute (line, col) on error.
type parser struct {
	full string
	s    string
}

// Parse parses a complete build script and returns its Root AST.
func Parse(input string) (*RootSection, error) {
	p := &parser{full: input, s: input}
	p.skipNL()

	root := NewRootSection()
	any := false
	for p.s != "" {
		name, ts, err := p.parseRootChild()
		if err != nil {
			return nil, err
		}
		if err := root.AddTarget(name, ts); err != nil {
			return nil, p.errorf("%s", err)
		}
		any = true
	}
	if !any {
		return nil, p.errorf("expected at least one target")
	}
	return root, nil
}

// --- low level character classes ---

func isHWS(b byte) bool { return b == ' ' || b == '\t' }

func isIdentStart(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || b == '_' || b == '-'
}

func isIdentCont(b byte) bool {
	return isIdentStart(b) || (b >= '0' && b <= '9')
}

func (p *parser) peek() byte {
	if p.s == "" {
		return 0
	}
	return p.s[0]
}

func (p *parser) hasPrefix(s string) bool {
	return strings.HasPrefix(p.s, s)
}

// skipHWS consumes a run of plain spaces/tabs (no line-continuation).
func (p *parser) skipHWS() {
	i := 0
	for i < len(p.s) && isHWS(p.s[i]) {
		i++
	}
	p.s = p.s[i:]
}

func (p *parser) consumeLineEnding() bool {
	if p.hasPrefix("\r\n") {
		p.s = p.s[2:]
		return true
	}
	if p.hasPrefix("\n") {
		p.s = p.s[1:]
		return true
	}
	return false
}

// tryConsumeComment consumes a '#' to end-of-line, if present. It does not
// consume leading whitespace itself (the caller already did that).
func (p *parser) tryConsumeComment() {
	if p.peek() != '#' {
		return
	}
	i := 0
	for i < len(p.s) && p.s[i] != '\n' && p.s[i] != '\r' {
		i++
	}
	p.s = p.s[i:]
}

// skipNL consumes the "newline" production: one or more (horizontal
// whitespace, optional comment, line-ending), or end-of-input with
// optional trailing comment/whitespace.
func (p *parser) skipNL() bool {
	consumedAny := false
	for {
		save := p.s
		p.skipHWS()
		p.tryConsumeComment()
		if p.consumeLineEnding() {
			consumedAny = true
			continue
		}
		p.s = save
		break
	}

	save := p.s
	p.skipHWS()
	p.tryConsumeComment()
	if p.s == "" {
		return true
	}
	p.s = save
	return consumedAny
}

// parseNLRequired consumes the newline production, erroring if it can't.
func (p *parser) parseNLRequired() error {
	if !p.skipNL() {
		return p.errorf("expected newline")
	}
	return nil
}

// some-space: a run of space/tab, OR the two-character continuation
// "\\\n". Used wherever the grammar calls for "space1"/"space0".
func (p *parser) parseSomeSpaceUnit() bool {
	if p.hasPrefix("\\\n") {
		p.s = p.s[2:]
		return true
	}
	if isHWS(p.peek()) {
		i := 0
		for i < len(p.s) && isHWS(p.s[i]) {
			i++
		}
		p.s = p.s[i:]
		return true
	}
	return false
}

func (p *parser) skipSomeSpace0() {
	for p.parseSomeSpaceUnit() {
	}
}

func (p *parser) skipSomeSpace1() bool {
	if !p.parseSomeSpaceUnit() {
		return false
	}
	p.skipSomeSpace0()
	return true
}

// skipMultispace0 consumes any run of space/tab/\r/\n (used inside
// bracketed string lists, where arbitrary whitespace is allowed between
// tokens).
func (p *parser) skipMultispace0() {
	i := 0
	for i < len(p.s) {
		switch p.s[i] {
		case ' ', '\t', '\r', '\n':
			i++
		default:
			goto done
		}
	}
done:
	p.s = p.s[i:]
}

// --- identifiers ---

func (p *parser) parseIdentifier() (string, bool) {
	if p.s == "" || !isIdentStart(p.s[0]) {
		return "", false
	}
	i := 1
	for i < len(p.s) && isIdentCont(p.s[i]) {
		i++
	}
	name := p.s[:i]
	p.s = p.s[i:]
	return name, true
}

// --- quoted / template-quoted text ---

// parseJSONString parses a double-quoted string with \\, \", \n escapes
// and returns its decoded value.
func (p *parser) parseJSONString() (string, bool, error) {
	if p.peek() != '"' {
		return "", false, nil
	}
	save := p.s
	p.s = p.s[1:]
	var sb strings.Builder
	for {
		if p.s == "" {
			p.s = save
			return "", false, p.errorf("unterminated string")
		}
		c := p.s[0]
		if c == '"' {
			p.s = p.s[1:]
			return sb.String(), true, nil
		}
		if c == '\\' {
			if len(p.s) < 2 {
				p.s = save
				return "", false, p.errorf("unterminated escape")
			}
			switch p.s[1] {
			case '\\':
				sb.WriteByte('\\')
			case '"':
				sb.WriteByte('"')
			case 'n':
				sb.WriteByte('\n')
			default:
				p.s = save
				return "", false, p.errorf("invalid escape sequence")
			}
			p.s = p.s[2:]
			continue
		}
		sb.WriteByte(c)
		p.s = p.s[1:]
	}
}

// consumeBalancedBlock consumes a "{{ ... }}" or "{% ... %}" block,
// starting at the current position, returning false if none is present.
// It is a hard (cut) error for the closing delimiter to be missing.
func (p *parser) consumeBalancedBlock() (bool, error) {
	var closer string
	switch {
	case p.hasPrefix("{{"):
		closer = "}}"
	case p.hasPrefix("{%"):
		closer = "%}"
	default:
		return false, nil
	}
	idx := strings.Index(p.s[2:], closer)
	if idx < 0 {
		return false, p.errorf("unterminated template block, expected %q", closer)
	}
	p.s = p.s[2+idx+len(closer):]
	return true, nil
}

// parseTemplateToken parses the "template-quoted token" atom: a
// contiguous run of non-whitespace characters and/or balanced template
// blocks.
func (p *parser) parseTemplateToken() (string, bool, error) {
	start := p.s
	any := false
	for p.s != "" {
		ok, err := p.consumeBalancedBlock()
		if err != nil {
			return "", false, err
		}
		if ok {
			any = true
			continue
		}
		c := p.s[0]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			break
		}
		p.s = p.s[1:]
		any = true
	}
	if !any {
		return "", false, nil
	}
	return start[:len(start)-len(p.s)], true, nil
}

// parseTemplateTokenUntil is like parseTemplateToken but also stops before
// any of the given stop bytes (used for target-ref scanning, where '+' and
// '/' have grammatical meaning).
func (p *parser) parseTemplateTokenUntil(stop string) (string, bool, error) {
	start := p.s
	any := false
	for p.s != "" {
		ok, err := p.consumeBalancedBlock()
		if err != nil {
			return "", false, err
		}
		if ok {
			any = true
			continue
		}
		c := p.s[0]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' || strings.IndexByte(stop, c) >= 0 {
			break
		}
		p.s = p.s[1:]
		any = true
	}
	if !any {
		return "", false, nil
	}
	return start[:len(start)-len(p.s)], true, nil
}

// argString parses an "arg-string": a JSON-quoted string or a bare
// template-quoted token.
func (p *parser) parseArgString() (string, bool, error) {
	if p.peek() == '"' {
		s, ok, err := p.parseJSONString()
		return s, ok, err
	}
	return p.parseTemplateToken()
}

// commandString parses a "command-string": one or more alternations of
// some-space or a template-quoted token, whitespace preserved verbatim.
func (p *parser) parseCommandString() (string, bool, error) {
	start := p.s
	any := false
	for {
		if p.parseSomeSpaceUnit() {
			any = true
			continue
		}
		tok, ok, err := p.parseTemplateToken()
		if err != nil {
			return "", false, err
		}
		if ok {
			_ = tok
			any = true
			continue
		}
		break
	}
	if !any {
		return "", false, nil
	}
	return start[:len(start)-len(p.s)], true, nil
}

// parseBracketedStringList parses "[" JSON-string ("," JSON-string)* "]".
// Once "[" is seen, failure is hard (cut).
func (p *parser) parseBracketedStringList() ([]string, bool, error) {
	if p.peek() != '[' {
		return nil, false, nil
	}
	p.s = p.s[1:]
	var out []string
	p.skipMultispace0()
	if p.peek() == ']' {
		p.s = p.s[1:]
		return out, true, nil
	}
	for {
		p.skipMultispace0()
		s, ok, err := p.parseJSONString()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, p.errorf("expected a quoted string")
		}
		out = append(out, s)
		p.skipMultispace0()
		if p.peek() == ',' {
			p.s = p.s[1:]
			continue
		}
		if p.peek() == ']' {
			p.s = p.s[1:]
			return out, true, nil
		}
		return nil, false, p.errorf("expected ',' or ']'")
	}
}

// --- target references ---

// parseTargetRef attempts to parse a TargetRef. ok is false (no error), and
// nothing is consumed, if the input isn't shaped like a target ref: no '+'
// either at the start or after a leading "/" or "./" path. Once the '+' is
// consumed, failures are hard errors.
func (p *parser) parseTargetRef() (*TargetRef, bool, error) {
	save := p.s
	var path string
	if p.hasPrefix("/") || p.hasPrefix("./") {
		tok, ok, err := p.parseTemplateTokenUntil("+")
		if err != nil {
			return nil, false, err
		}
		if !ok || p.peek() != '+' {
			p.s = save
			return nil, false, nil
		}
		path = tok
	}
	if p.peek() != '+' {
		p.s = save
		return nil, false, nil
	}
	p.s = p.s[1:]

	name, ok, err := p.parseTemplateTokenUntil("/")
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, p.errorf("expected target name after '+'")
	}

	ref := &TargetRef{Path: path, Target: name}
	if p.peek() == '/' {
		p.s = p.s[1:]
		art, ok, err := p.parseArgString()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, p.errorf("expected artifact path after '/'")
		}
		ref.Artifact = art
	}
	return ref, true, nil
}

// --- top level structure ---

func (p *parser) parseRootChild() (string, *TargetSection, error) {
	p.skipNL()

	if p.hasPrefix("TARGET") {
		after := p.s[len("TARGET"):]
		if after != "" && (isHWS(after[0]) || after[0] == '\\') {
			p.s = after
			if !p.skipSomeSpace1() {
				return "", nil, p.errorf("expected whitespace after TARGET")
			}
		}
	}

	name, ok := p.parseIdentifier()
	if !ok {
		return "", nil, p.errorf("expected target or other top level item")
	}
	if p.peek() != ':' {
		return "", nil, p.errorf("expected ':' after target name")
	}
	p.s = p.s[1:]
	if err := p.parseNLRequired(); err != nil {
		return "", nil, err
	}

	ts, err := p.parseTargetSection()
	if err != nil {
		return "", nil, err
	}
	return name, ts, nil
}

func (p *parser) parseTargetSection() (*TargetSection, error) {
	if !p.skipSomeSpace1() {
		return nil, p.errorf("expected an indented block of commands")
	}
	prefixEnd := len(p.full) - len(p.s)
	prefixStart := prefixEnd
	// walk backwards to find where this run of some-space units began
	for prefixStart > 0 && isIndentByte(p.full[prefixStart-1]) {
		prefixStart--
	}
	prefix := p.full[prefixStart:prefixEnd]

	ts := &TargetSection{}
	for {
		cmd, err := p.parseCommand()
		if err != nil {
			return nil, err
		}
		ts.Commands = append(ts.Commands, cmd)

		if !p.hasPrefix(prefix) {
			break
		}
		p.s = p.s[len(prefix):]
	}
	return ts, nil
}

func isIndentByte(b byte) bool { return b == ' ' || b == '\t' }

// --- commands ---

func (p *parser) matchKeyword(kw string) bool {
	if !p.hasPrefix(kw) {
		return false
	}
	rest := p.s[len(kw):]
	// require the keyword to be followed by whitespace (or a continuation),
	// not be a prefix of a longer identifier.
	if rest == "" {
		return false
	}
	return isHWS(rest[0]) || strings.HasPrefix(rest, "\\\n")
}

func (p *parser) parseCommand() (*Command, error) {
	switch {
	case p.matchKeyword("SAVE"):
		return p.parseSaveArtifact()
	case p.matchKeyword("FROM"):
		return p.parseFrom()
	case p.matchKeyword("RUN"):
		return p.parseRun()
	case p.matchKeyword("WORKDIR"):
		return p.parseWorkdir()
	case p.matchKeyword("ARG"):
		return p.parseArg()
	case p.matchKeyword("SET"):
		return p.parseSet()
	case p.matchKeyword("COPY"):
		return p.parseCopy()
	default:
		return nil, p.errorf("expected target command")
	}
}

func (p *parser) consumeKeyword(kw string) {
	p.s = p.s[len(kw):]
	p.skipSomeSpace1()
}

func (p *parser) parseFrom() (*Command, error) {
	p.consumeKeyword("FROM")

	var src FromSrc
	if p.hasPrefix("/") || p.hasPrefix("./") || p.hasPrefix("+") {
		ref, ok, err := p.parseTargetRef()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, p.errorf("expected target reference")
		}
		src = FromSrc{Kind: FromTargetKind, Ref: ref}
	} else {
		img, ok, err := p.parseArgString()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, p.errorf("expected image name")
		}
		src = FromSrc{Kind: FromImageKind, Image: img}
	}

	if err := p.parseNLRequired(); err != nil {
		return nil, err
	}
	return &Command{Tag: CmdFrom, From: &src}, nil
}

func (p *parser) parseRun() (*Command, error) {
	p.consumeKeyword("RUN")

	if list, ok, err := p.parseBracketedStringList(); err != nil {
		return nil, err
	} else if ok {
		if err := p.parseNLRequired(); err != nil {
			return nil, err
		}
		return &Command{Tag: CmdRun, RunIsList: true, RunList: list}, nil
	}

	s, ok, err := p.parseCommandString()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, p.errorf("expected RUN args")
	}
	if err := p.parseNLRequired(); err != nil {
		return nil, err
	}
	return &Command{Tag: CmdRun, RunString: s}, nil
}

func (p *parser) parseWorkdir() (*Command, error) {
	p.consumeKeyword("WORKDIR")
	path, ok, err := p.parseTemplateToken()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, p.errorf("expected WORKDIR path")
	}
	if err := p.parseNLRequired(); err != nil {
		return nil, err
	}
	return &Command{Tag: CmdWorkdir, WorkdirPath: path}, nil
}

func (p *parser) parseArg() (*Command, error) {
	p.consumeKeyword("ARG")
	name, ok := p.parseIdentifier()
	if !ok {
		return nil, p.errorf("expected ARG name")
	}
	cmd := &Command{Tag: CmdSet, SetName: name, SetDefault: true}
	if p.peek() == '=' {
		p.s = p.s[1:]
		v, ok, err := p.parseTemplateToken()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, p.errorf("expected ARG default value")
		}
		cmd.SetValue = v
		cmd.SetHasValue = true
	}
	if err := p.parseNLRequired(); err != nil {
		return nil, err
	}
	return cmd, nil
}

func (p *parser) parseSet() (*Command, error) {
	p.consumeKeyword("SET")
	name, ok := p.parseIdentifier()
	if !ok {
		return nil, p.errorf("expected SET name")
	}
	if p.peek() != '=' {
		return nil, p.errorf("expected '=' after SET name")
	}
	p.s = p.s[1:]
	v, ok, err := p.parseTemplateToken()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, p.errorf("expected SET value")
	}
	if err := p.parseNLRequired(); err != nil {
		return nil, err
	}
	return &Command{Tag: CmdSet, SetName: name, SetValue: v, SetHasValue: true, SetDefault: false}, nil
}

func (p *parser) parseSaveArtifact() (*Command, error) {
	p.s = p.s[len("SAVE"):]
	if !p.skipSomeSpace1() {
		return nil, p.errorf("expected whitespace after SAVE")
	}
	if !p.hasPrefix("ARTIFACT") {
		return nil, p.errorf("expected ARTIFACT")
	}
	p.consumeKeyword("ARTIFACT")

	src, ok, err := p.parseArgString()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, p.errorf("expected SAVE ARTIFACT src")
	}
	cmd := &Command{Tag: CmdSaveArtifact, SaveSrc: src}

	save := p.s
	if p.skipSomeSpace1() {
		dest, ok, err := p.parseArgString()
		if err != nil {
			return nil, err
		}
		if ok {
			cmd.SaveDest = dest
			cmd.SaveHasDest = true
		} else {
			p.s = save
		}
	}

	if err := p.parseNLRequired(); err != nil {
		return nil, err
	}
	return cmd, nil
}

func (p *parser) parseCopy() (*Command, error) {
	p.consumeKeyword("COPY")

	if list, ok, err := p.parseBracketedStringList(); err != nil {
		return nil, err
	} else if ok {
		if len(list) < 2 {
			return nil, p.errorf("incorrect number of arguments")
		}
		dest := list[len(list)-1]
		srcs := make([]CopySource, len(list)-1)
		for i, s := range list[:len(list)-1] {
			srcs[i] = CopySource{Kind: CopyLocalPath, Path: s}
		}
		if err := p.parseNLRequired(); err != nil {
			return nil, err
		}
		return &Command{Tag: CmdCopy, CopySrc: srcs, CopyDest: dest}, nil
	}

	var entries []string
	for {
		s, ok, err := p.parseArgString()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		entries = append(entries, s)
		if !p.skipSomeSpace1() {
			break
		}
	}
	if len(entries) < 2 {
		return nil, p.errorf("incorrect number of arguments")
	}

	dest := entries[len(entries)-1]
	srcs := make([]CopySource, len(entries)-1)
	for i, s := range entries[:len(entries)-1] {
		srcs[i] = parseCopyEntry(s)
	}

	if err := p.parseNLRequired(); err != nil {
		return nil, err
	}
	return &Command{Tag: CmdCopy, CopySrc: srcs, CopyDest: dest}, nil
}

// parseCopyEntry re-parses a single already-tokenized COPY source argument
// to decide whether it denotes a cross-target artifact reference.
func parseCopyEntry(s string) CopySource {
	sub := &parser{full: s, s: s}
	ref, ok, err := sub.parseTargetRef()
	if ok && err == nil && sub.s == "" {
		return CopySource{Kind: CopyArtifact, Ref: ref}
	}
	return CopySource{Kind: CopyLocalPath, Path: s}
}
