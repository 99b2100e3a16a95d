// Package asm implements the textual assembly format: Assemble turns
// source text into named code objects, and Disassemble (disasm.go) turns
// code objects back into that same text.
//
//	$name ARITY:            function header; opens a new function body
//	.lit VALUE                 append VALUE to the literal pool
//	Lname:                      define a label at the current offset
//	mnemonic                   a zero-argument instruction
//	mnemonic ARG                 an instruction with one immediate
//
// VALUE is `true`, `false`, a decimal integer, a quoted string ("…", read
// with strconv.Unquote, so Go backslash escapes are interpreted), or a hex
// hash (0x followed by 32 hex digits).
// Mnemonics and their argument kinds are listed in package code's doc
// comment. A `#` outside a string literal starts a comment that runs to
// end of line.
package asm

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/scanner"

	"github.com/mattnappo/efa/code"
	"github.com/pkg/errors"
)

// maxErrors bounds how many parse errors Assemble accumulates before
// aborting; mirrors the teacher's ErrAsm cap.
const maxErrors = 10

// ErrAsm collects the errors produced by a single Assemble call.
type ErrAsm []struct {
	Pos scanner.Position
	Msg string
}

func (e ErrAsm) Error() string {
	l := make([]string, 0, len(e))
	for _, err := range e {
		l = append(l, fmt.Sprintf("%s: %s", err.Pos, err.Msg))
	}
	return strings.Join(l, "\n")
}

// opcodeIndex maps mnemonics to opcodes, built once from code.Mnemonics.
var opcodeIndex = func() map[string]code.Op {
	m := make(map[string]code.Op, len(code.Mnemonics))
	for op, name := range code.Mnemonics {
		m[name] = code.Op(op)
	}
	return m
}()

type token struct {
	tok  rune
	text string
	pos  scanner.Position
}

// Assemble reads and parses r, returning every function it defines, keyed
// by source-level name (the header's name, without its leading '$'). It
// does not perform link/resolve; LoadDyn instructions stay symbolic.
// filename is used only to annotate error positions.
func Assemble(filename string, r io.Reader) (map[string]*code.CodeObject, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(err, "asm: read %s", filename)
	}
	p := &parser{}
	return p.parse(filename, string(b))
}

type parser struct {
	errs ErrAsm
}

func (p *parser) error(pos scanner.Position, format string, args ...interface{}) {
	p.errs = append(p.errs, struct {
		Pos scanner.Position
		Msg string
	}{pos, fmt.Sprintf(format, args...)})
}

func (p *parser) abort() bool { return len(p.errs) >= maxErrors }

func (p *parser) parse(filename, src string) (map[string]*code.CodeObject, error) {
	toks, err := p.tokenize(filename, src)
	if err != nil {
		return nil, err
	}
	if p.abort() {
		return nil, p.errs
	}

	lines := groupLines(toks)
	funcs := p.partitionFunctions(lines)

	out := make(map[string]*code.CodeObject, len(funcs))
	for _, fn := range funcs {
		if p.abort() {
			break
		}
		obj := p.assembleFunc(fn)
		if obj != nil {
			if _, dup := out[fn.name]; dup {
				p.error(fn.pos, "duplicate function %q", fn.name)
				continue
			}
			out[fn.name] = obj
		}
	}

	if len(p.errs) > 0 {
		return nil, p.errs
	}
	return out, nil
}

// tokenize runs a text/scanner.Scanner, in the teacher's isIdentRune/
// custom-scanner mold, over the (comment-stripped) source and returns its
// full token stream.
func (p *parser) tokenize(filename, src string) ([]token, error) {
	clean := stripComments(src)

	var s scanner.Scanner
	s.Init(strings.NewReader(clean))
	s.Filename = filename
	s.Mode = scanner.ScanIdents | scanner.ScanInts | scanner.ScanStrings
	s.IsIdentRune = isIdentRune
	s.Error = func(_ *scanner.Scanner, msg string) {
		p.error(s.Position, "%s", msg)
	}

	var toks []token
	for tok := s.Scan(); tok != scanner.EOF; tok = s.Scan() {
		if p.abort() {
			break
		}
		toks = append(toks, token{tok: tok, text: s.TokenText(), pos: s.Position})
	}
	if len(p.errs) > 0 {
		return nil, p.errs
	}
	return toks, nil
}

// isIdentRune additionally accepts '$' (function/dyn-dispatch names) and
// '.' (dot directives) as identifier runes, on top of the scanner's usual
// letter/digit/underscore rule.
func isIdentRune(ch rune, i int) bool {
	if ch == '$' || ch == '.' {
		return true
	}
	return ch == '_' || (i > 0 && ch >= '0' && ch <= '9') ||
		(ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

// stripComments removes '#'-to-end-of-line comments, leaving newlines in
// place so scanner.Position line numbers stay meaningful. It understands
// quoted strings well enough not to strip a '#' that appears inside one.
func stripComments(src string) string {
	var b strings.Builder
	b.Grow(len(src))
	inString := false
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case c == '"':
			inString = !inString
			b.WriteByte(c)
		case c == '#' && !inString:
			for i < len(src) && src[i] != '\n' {
				i++
			}
			if i < len(src) {
				b.WriteByte('\n')
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// groupLines splits a flat token stream into statements: runs of tokens
// sharing the same source line. The grammar never spans a statement across
// lines, so this recovers the line-oriented structure the teacher's own
// parser gets from reading input a line at a time.
func groupLines(toks []token) [][]token {
	var lines [][]token
	var cur []token
	lastLine := -1
	for _, t := range toks {
		if t.pos.Line != lastLine && cur != nil {
			lines = append(lines, cur)
			cur = nil
		}
		cur = append(cur, t)
		lastLine = t.pos.Line
	}
	if cur != nil {
		lines = append(lines, cur)
	}
	return lines
}

type rawFunc struct {
	name  string
	arity int
	pos   scanner.Position
	body  [][]token
}

// partitionFunctions splits statements into functions by their
// "$name ARITY:" headers; any statement before the first header is an
// error (nothing to attach it to).
func (p *parser) partitionFunctions(lines [][]token) []rawFunc {
	var funcs []rawFunc
	var cur *rawFunc

	for _, line := range lines {
		if len(line) > 0 && strings.HasPrefix(line[0].text, "$") {
			name, arity, ok := p.parseHeader(line)
			if !ok {
				continue
			}
			funcs = append(funcs, rawFunc{name: name, arity: arity, pos: line[0].pos})
			cur = &funcs[len(funcs)-1]
			continue
		}
		if cur == nil {
			if len(line) > 0 {
				p.error(line[0].pos, "statement outside of any function body")
			}
			continue
		}
		cur.body = append(cur.body, line)
	}
	return funcs
}

func (p *parser) parseHeader(line []token) (name string, arity int, ok bool) {
	if len(line) != 3 {
		p.error(line[0].pos, "malformed function header %q", joinTokens(line))
		return "", 0, false
	}
	name = strings.TrimPrefix(line[0].text, "$")
	if name == "" {
		p.error(line[0].pos, "empty function name")
		return "", 0, false
	}
	if line[1].tok != scanner.Int {
		p.error(line[1].pos, "expected an arity, got %q", line[1].text)
		return "", 0, false
	}
	n, err := strconv.Atoi(line[1].text)
	if err != nil || n < 0 {
		p.error(line[1].pos, "invalid arity %q", line[1].text)
		return "", 0, false
	}
	if line[2].text != ":" {
		p.error(line[2].pos, "expected ':' after arity, got %q", line[2].text)
		return "", 0, false
	}
	return name, n, true
}

func joinTokens(line []token) string {
	parts := make([]string, len(line))
	for i, t := range line {
		parts[i] = t.text
	}
	return strings.Join(parts, " ")
}

// assembleFunc runs three passes over a single function body: literals,
// then labels, then instruction emission.
func (p *parser) assembleFunc(fn rawFunc) *code.CodeObject {
	litpool := p.collectLiterals(fn.body)
	labelIDs, labelOffsets := p.collectLabels(fn.body)
	for name, id := range labelIDs {
		if labelOffsets[id] < 0 {
			p.error(fn.pos, "undefined label %q", name)
		}
	}
	instrs, maxLocal := p.emitInstructions(fn.body, labelIDs)

	numLocals := maxLocal + 1
	names := make([]string, 0, fn.arity+numLocals)
	for i := 0; i < fn.arity; i++ {
		names = append(names, fmt.Sprintf("x%d", i))
	}
	for i := 0; i < numLocals; i++ {
		names = append(names, fmt.Sprintf("x%d", fn.arity+i))
	}

	return &code.CodeObject{
		Argcount:   fn.arity,
		LocalNames: names,
		Litpool:    litpool,
		Labels:     labelOffsets,
		Code:       instrs,
	}
}

// collectLiterals is pass 1: every ".lit VALUE" line, in order.
func (p *parser) collectLiterals(body [][]token) []code.Value {
	var pool []code.Value
	for _, line := range body {
		if len(line) == 0 || line[0].text != ".lit" {
			continue
		}
		if len(line) != 2 {
			p.error(line[0].pos, "malformed .lit directive")
			continue
		}
		v, err := parseLiteral(line[1])
		if err != nil {
			p.error(line[1].pos, "%s", err)
			continue
		}
		pool = append(pool, v)
	}
	return pool
}

func parseLiteral(t token) (code.Value, error) {
	switch {
	case t.tok == scanner.String:
		s, err := strconv.Unquote(t.text)
		if err != nil {
			return code.Value{}, errors.Errorf("invalid string literal %s", t.text)
		}
		return code.String(s), nil
	case t.text == "true":
		return code.Bool(true), nil
	case t.text == "false":
		return code.Bool(false), nil
	case strings.HasPrefix(t.text, "0x"):
		h, err := code.ParseHash(t.text)
		if err != nil {
			return code.Value{}, errors.Wrapf(err, "invalid hash literal %s", t.text)
		}
		return code.HashValue(h), nil
	case t.tok == scanner.Int:
		n, err := strconv.ParseInt(t.text, 0, 32)
		if err != nil {
			return code.Value{}, errors.Errorf("invalid integer literal %s", t.text)
		}
		return code.I32(int32(n)), nil
	}
	return code.Value{}, errors.Errorf("unrecognized literal %s", t.text)
}

// collectLabels is pass 2: scan non-literal statements, assigning each
// instruction the next offset in program order and registering label
// definitions (and any label referenced before its definition) with a
// stable id.
func (p *parser) collectLabels(body [][]token) (ids map[string]int, offsets []int) {
	ids = make(map[string]int)
	offset := 0

	idFor := func(name string) int {
		if id, ok := ids[name]; ok {
			return id
		}
		id := len(ids)
		ids[name] = id
		offsets = append(offsets, -1)
		return id
	}

	for _, line := range body {
		if len(line) == 0 || line[0].text == ".lit" {
			continue
		}
		if isLabelDef(line) {
			id := idFor(strings.TrimSuffix(line[0].text, ":"))
			offsets[id] = offset
			continue
		}
		if op, ok := opcodeIndex[line[0].text]; ok {
			if op.IsJump() && len(line) == 2 {
				idFor(line[1].text)
			}
			offset++
		}
	}
	return ids, offsets
}

func isLabelDef(line []token) bool {
	return len(line) == 2 && line[0].tok == scanner.Ident && line[1].text == ":"
}

// emitInstructions is pass 3: re-walk non-literal statements, translating
// each instruction line into a code.Instr (label names become the ids
// collected in pass 2) and tracking the highest local index referenced so
// assembleFunc can size the local environment.
func (p *parser) emitInstructions(body [][]token, labelIDs map[string]int) ([]code.Instr, int) {
	var out []code.Instr
	maxLocal := -1

	for _, line := range body {
		if len(line) == 0 || line[0].text == ".lit" || isLabelDef(line) {
			continue
		}
		mnemonic := line[0].text
		op, ok := opcodeIndex[mnemonic]
		if !ok {
			p.error(line[0].pos, "unknown mnemonic %q", mnemonic)
			continue
		}

		in := code.Instr{Op: op}
		switch {
		case op == code.OpLoadFunc:
			if len(line) != 2 {
				p.error(line[0].pos, "%s expects a hash argument", mnemonic)
				continue
			}
			h, err := code.ParseHash(line[1].text)
			if err != nil {
				p.error(line[1].pos, "%s", err)
				continue
			}
			in.Hash = h
		case op == code.OpLoadDyn:
			if len(line) != 2 {
				p.error(line[0].pos, "%s expects a name argument", mnemonic)
				continue
			}
			in.Name = strings.TrimPrefix(line[1].text, "$")
		case op.IsJump():
			if len(line) != 2 {
				p.error(line[0].pos, "%s expects a label argument", mnemonic)
				continue
			}
			id, ok := labelIDs[line[1].text]
			if !ok {
				p.error(line[1].pos, "undefined label %q", line[1].text)
				continue
			}
			in.Arg = id
		case op.HasIndexArg():
			if len(line) != 2 {
				p.error(line[0].pos, "%s expects an index argument", mnemonic)
				continue
			}
			n, err := strconv.Atoi(line[1].text)
			if err != nil || n < 0 {
				p.error(line[1].pos, "invalid index %q", line[1].text)
				continue
			}
			in.Arg = n
			if op == code.OpLoadLocal || op == code.OpStoreLocal {
				if n > maxLocal {
					maxLocal = n
				}
			}
		default:
			if len(line) != 1 {
				p.error(line[0].pos, "%s takes no argument", mnemonic)
				continue
			}
		}
		out = append(out, in)
	}
	return out, maxLocal
}
