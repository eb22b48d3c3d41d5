package parser

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	. "swsb/core"
	et "swsb/core/errorkind"
	"swsb/core/gir"
	DT "swsb/core/gir/datatype"
	DK "swsb/core/gir/distkind"
	IT "swsb/core/gir/instrkind"
	RS "swsb/core/gir/regspace"
	SF "swsb/core/gir/sfid"
	SD "swsb/core/gir/syncdir"
	SK "swsb/core/gir/synckind"
	ir "swsb/core/kasm"
	T "swsb/core/kasm/lexkind"
	sv "swsb/core/severity"
	. "swsb/lexer"
)

type pendingFlow struct {
	bb    *gir.BasicBlock
	node  *ir.Node
	True  string
	False string
}

type state struct {
	*Lexer
	k       *gir.Kernel
	curr    *gir.BasicBlock
	labels  map[string]gir.BlockID
	pending []pendingFlow
}

// Parse reads one kernel. Registers are grfSize bytes wide.
func Parse(filename string, s string, grfSize int) (*gir.Kernel, *Error) {
	st := &state{
		Lexer:  NewLexer(filename, s),
		labels: map[string]gir.BlockID{},
	}
	base := filepath.Base(filename)
	st.k = &gir.Kernel{
		Name:    strings.TrimSuffix(base, filepath.Ext(base)),
		File:    filename,
		Aliases: map[int][]gir.Operand{},
		GRFSize: grfSize,
	}
	err := st.Next()
	if err != nil {
		return nil, err
	}
	err = kernel(st)
	if err != nil {
		return nil, err
	}
	err = resolveFlows(st)
	if err != nil {
		return nil, err
	}
	return st.k, nil
}

// Kernel := {nl} ['kernel' id nl] {Line}.
func kernel(s *state) *Error {
	err := newlines(s)
	if err != nil {
		return err
	}
	if s.Word.Lex == T.KERNEL {
		err = s.Next()
		if err != nil {
			return err
		}
		id, err := Expect(s.Lexer, T.IDENTIFIER)
		if err != nil {
			return err
		}
		s.k.Name = id.Text
		err = endLine(s)
		if err != nil {
			return err
		}
	}
	for s.Word.Lex != T.EOF {
		err = line(s)
		if err != nil {
			return err
		}
	}
	return nil
}

func newlines(s *state) *Error {
	for s.Word.Lex == T.NEWLINE {
		err := s.Next()
		if err != nil {
			return err
		}
	}
	return nil
}

func endLine(s *state) *Error {
	if s.Word.Lex == T.EOF {
		return nil
	}
	_, err := Expect(s.Lexer, T.NEWLINE)
	if err != nil {
		return err
	}
	return newlines(s)
}

// Line := Directive | Label | Flow | Instr.
func line(s *state) *Error {
	switch s.Word.Lex {
	case T.DOT:
		return directive(s)
	case T.JMP, T.IF, T.RET, T.EXIT, T.CALL:
		return flow(s)
	case T.LEFTPAREN:
		return instr(s, nil)
	case T.IDENTIFIER:
		id, err := Consume(s.Lexer)
		if err != nil {
			return err
		}
		if s.Word.Lex == T.COLON {
			err = s.Next()
			if err != nil {
				return err
			}
			if s.Word.Lex == T.NEWLINE || s.Word.Lex == T.EOF {
				err = label(s, id)
				if err != nil {
					return err
				}
				return endLine(s)
			}
			return instrWithType(s, id)
		}
		return instr(s, id)
	}
	return ExpectedLine(s.Lexer)
}

// Directive := '.' 'pointsto' addr Operand {',' Operand} nl.
func directive(s *state) *Error {
	_, err := Expect(s.Lexer, T.DOT)
	if err != nil {
		return err
	}
	id, err := Expect(s.Lexer, T.IDENTIFIER)
	if err != nil {
		return err
	}
	if id.Text != "pointsto" {
		return NewCompilerError(s.Lexer, et.InvalidSymbol, "unknown directive ."+id.Text)
	}
	addr, err := Expect(s.Lexer, T.IDENTIFIER)
	if err != nil {
		return err
	}
	a, ok := registerNumber(addr.Text, "a")
	if !ok {
		return NewCompilerError(s.Lexer, et.InvalidOperand, "expected address register, found "+addr.Text)
	}
	ops, err := operands(s, DT.InvalidType)
	if err != nil {
		return err
	}
	for _, op := range ops {
		if !op.IsReg() {
			return NewCompilerError(s.Lexer, et.InvalidOperand, "points-to facts must name registers")
		}
	}
	s.k.Aliases[a] = append(s.k.Aliases[a], ops...)
	return endLine(s)
}

// Label := id ':' nl.
func label(s *state, id *ir.Node) *Error {
	if _, ok := s.labels[id.Text]; ok {
		return &Error{
			Code:     et.DuplicatedLabel,
			Severity: sv.Error,
			Location: &Location{File: s.File, Range: id.Range, Instr: -1},
			Message:  "label " + id.Text + " defined twice",
		}
	}
	bb := newBlock(s, id.Text)
	s.labels[id.Text] = bb.ID
	return nil
}

// newBlock appends a block, making the open block fall through to it
func newBlock(s *state, label string) *gir.BasicBlock {
	bb := &gir.BasicBlock{
		ID:    gir.BlockID(len(s.k.AllBlocks)),
		Label: label,
	}
	if s.curr != nil && !s.curr.HasFlow() {
		s.curr.Jmp(bb.ID)
	}
	s.k.AllBlocks = append(s.k.AllBlocks, bb)
	s.curr = bb
	return bb
}

// current is the block instructions go to, a fresh one after a flow
func current(s *state) *gir.BasicBlock {
	if s.curr == nil || s.curr.HasFlow() {
		name := ".L" + strconv.Itoa(len(s.k.AllBlocks))
		if len(s.k.AllBlocks) == 0 {
			name = ".entry"
		}
		newBlock(s, name)
	}
	return s.curr
}

// Flow := 'jmp' id | 'if' flag '?' id ':' id | 'ret' | 'exit' | 'call' id '->' id.
func flow(s *state) *Error {
	bb := current(s)
	kw, err := Consume(s.Lexer)
	if err != nil {
		return err
	}
	p := pendingFlow{bb: bb, node: kw}
	switch kw.Lex {
	case T.JMP:
		id, err := Expect(s.Lexer, T.IDENTIFIER)
		if err != nil {
			return err
		}
		p.True = id.Text
		bb.Jmp(-1)
	case T.IF:
		cond, err := operand(s, DT.InvalidType)
		if err != nil {
			return err
		}
		_, err = Expect(s.Lexer, T.QUESTION)
		if err != nil {
			return err
		}
		t, err := Expect(s.Lexer, T.IDENTIFIER)
		if err != nil {
			return err
		}
		_, err = Expect(s.Lexer, T.COLON)
		if err != nil {
			return err
		}
		f, err := Expect(s.Lexer, T.IDENTIFIER)
		if err != nil {
			return err
		}
		p.True = t.Text
		p.False = f.Text
		bb.Branch(cond, -1, -1)
	case T.RET:
		bb.Return()
	case T.EXIT:
		bb.Exit()
	case T.CALL:
		callee, err := Expect(s.Lexer, T.IDENTIFIER)
		if err != nil {
			return err
		}
		_, err = Expect(s.Lexer, T.ARROW)
		if err != nil {
			return err
		}
		ret, err := Expect(s.Lexer, T.IDENTIFIER)
		if err != nil {
			return err
		}
		p.True = ret.Text
		bb.Call(callee.Text, -1)
	}
	if p.True != "" {
		s.pending = append(s.pending, p)
	}
	return endLine(s)
}

func resolveFlows(s *state) *Error {
	for _, p := range s.pending {
		t, ok := s.labels[p.True]
		if !ok {
			return unknownLabel(s, p, p.True)
		}
		p.bb.Out.True = t
		if p.False != "" {
			f, ok := s.labels[p.False]
			if !ok {
				return unknownLabel(s, p, p.False)
			}
			p.bb.Out.False = f
		}
	}
	return nil
}

func unknownLabel(s *state, p pendingFlow, label string) *Error {
	return &Error{
		Code:     et.UnknownLabel,
		Severity: sv.Error,
		Location: &Location{File: s.File, Range: p.node.Range, Instr: -1},
		Message:  "unknown label " + label,
	}
}

// Instr := ['(' flag ')'] Mnemonic [Exec] [Operands] ['!' num] [Swsb] nl.
func instr(s *state, id *ir.Node) *Error {
	var pred gir.Operand
	if id == nil {
		first := s.Word
		_, err := Expect(s.Lexer, T.LEFTPAREN)
		if err != nil {
			return err
		}
		pred, err = operand(s, DT.InvalidType)
		if err != nil {
			return err
		}
		_, err = Expect(s.Lexer, T.RIGHTPAREN)
		if err != nil {
			return err
		}
		id, err = Expect(s.Lexer, T.IDENTIFIER)
		if err != nil {
			return err
		}
		id.Range = &Range{Begin: first.Range.Begin, End: id.Range.End}
	}
	i, err := mnemonic(s, id)
	if err != nil {
		return err
	}
	i.Pred = pred
	if s.Word.Lex == T.COLON {
		err = s.Next()
		if err != nil {
			return err
		}
		err = dataType(s, i)
		if err != nil {
			return err
		}
	}
	return instrTail(s, i)
}

// instrWithType continues an instruction written as id ':' type, the
// colon was already consumed
func instrWithType(s *state, id *ir.Node) *Error {
	i, err := mnemonic(s, id)
	if err != nil {
		return err
	}
	err = dataType(s, i)
	if err != nil {
		return err
	}
	return instrTail(s, i)
}

// Mnemonic := id {'.' id}.
func mnemonic(s *state, id *ir.Node) (*gir.Instr, *Error) {
	kind, ok := IT.ByName[id.Text]
	if !ok {
		return nil, &Error{
			Code:     et.UnsupportedInstr,
			Severity: sv.Error,
			Location: &Location{File: s.File, Range: id.Range, Instr: -1},
			Message:  "unsupported instruction " + id.Text,
		}
	}
	i := &gir.Instr{T: kind, Line: id.Line()}
	for s.Word.Lex == T.DOT {
		err := s.Next()
		if err != nil {
			return nil, err
		}
		suffix, err := Expect(s.Lexer, T.IDENTIFIER)
		if err != nil {
			return nil, err
		}
		err = applySuffix(s, i, suffix.Text)
		if err != nil {
			return nil, err
		}
	}
	if kind == IT.Sync && i.Sync == SK.InvalidSync {
		i.Sync = SK.Nop
	}
	return i, nil
}

func applySuffix(s *state, i *gir.Instr, suffix string) *Error {
	if suffix == "fused" {
		i.Fused = true
		return nil
	}
	switch i.T {
	case IT.Sync:
		kind, ok := SK.ByName[suffix]
		if !ok {
			return NewCompilerError(s.Lexer, et.InvalidSymbol, "unknown sync kind "+suffix)
		}
		i.Sync = kind
	case IT.Send:
		sfid, ok := SF.ByName[suffix]
		if !ok {
			return NewCompilerError(s.Lexer, et.InvalidSFID, "unknown shared function "+suffix)
		}
		i.SFID = sfid
	default:
		i.Func = suffix
	}
	return nil
}

func dataType(s *state, i *gir.Instr) *Error {
	id, err := Expect(s.Lexer, T.IDENTIFIER)
	if err != nil {
		return err
	}
	t, ok := DT.ByName[id.Text]
	if !ok {
		return NewCompilerError(s.Lexer, et.InvalidSymbol, "unknown type "+id.Text)
	}
	i.Type = t
	return nil
}

func instrTail(s *state, i *gir.Instr) *Error {
	if s.Word.Lex == T.LEFTPAREN {
		err := s.Next()
		if err != nil {
			return err
		}
		n, err := Expect(s.Lexer, T.NUMBER)
		if err != nil {
			return err
		}
		i.ExecSize = int(n.Value)
		_, err = Expect(s.Lexer, T.RIGHTPAREN)
		if err != nil {
			return err
		}
	}
	var err *Error
	switch {
	case i.T == IT.Sync:
		if s.Word.Lex == T.NUMBER {
			n, _ := Consume(s.Lexer)
			i.Mask = uint32(n.Value)
		}
	case !IT.IsMarker(i.T):
		var ops []gir.Operand
		ops, err = operands(s, i.Type)
		if err != nil {
			return err
		}
		if len(ops) > 0 {
			i.Dst = ops[0]
			i.Srcs = ops[1:]
		}
	}
	if s.Word.Lex == T.BANG {
		err = s.Next()
		if err != nil {
			return err
		}
		n, err := Expect(s.Lexer, T.NUMBER)
		if err != nil {
			return err
		}
		i.Latency = int(n.Value)
	}
	if s.Word.Lex == T.LEFTBRACE {
		err = swsb(s, i)
		if err != nil {
			return err
		}
	}
	current(s).AddInstr(i)
	return endLine(s)
}

// Swsb := '{' {Dist | Token} '}'.
// Dist := kind '@' num.
// Token := '$' num ['.' ('dst' | 'src')].
func swsb(s *state, i *gir.Instr) *Error {
	_, err := Expect(s.Lexer, T.LEFTBRACE)
	if err != nil {
		return err
	}
	for s.Word.Lex != T.RIGHTBRACE {
		switch s.Word.Lex {
		case T.IDENTIFIER:
			kind, ok := DK.ByName[s.Word.Text]
			if !ok {
				return NewCompilerError(s.Lexer, et.InvalidSymbol, "unknown distance kind "+s.Word.Text)
			}
			err = s.Next()
			if err != nil {
				return err
			}
			_, err = Expect(s.Lexer, T.AT)
			if err != nil {
				return err
			}
			n, err := Expect(s.Lexer, T.NUMBER)
			if err != nil {
				return err
			}
			i.SWSB.DistKind = kind
			i.SWSB.Dist = int(n.Value)
		case T.DOLLAR:
			err = s.Next()
			if err != nil {
				return err
			}
			n, err := Expect(s.Lexer, T.NUMBER)
			if err != nil {
				return err
			}
			if s.Word.Lex != T.DOT {
				i.SWSB.HasToken = true
				i.SWSB.Token = int(n.Value)
				continue
			}
			err = s.Next()
			if err != nil {
				return err
			}
			dir, err := Expect(s.Lexer, T.IDENTIFIER)
			if err != nil {
				return err
			}
			i.SWSB.HasWait = true
			i.SWSB.Wait = int(n.Value)
			switch dir.Text {
			case "dst":
				i.SWSB.WaitDir = SD.AfterWrite
			case "src":
				i.SWSB.WaitDir = SD.AfterRead
			default:
				return NewCompilerError(s.Lexer, et.InvalidSymbol, "unknown wait direction "+dir.Text)
			}
		default:
			return Check(s.Lexer, T.IDENTIFIER, T.DOLLAR, T.RIGHTBRACE)
		}
	}
	return s.Next()
}

// Operands := Operand {',' Operand}.
func operands(s *state, t DT.DataType) ([]gir.Operand, *Error) {
	out := []gir.Operand{}
	switch s.Word.Lex {
	case T.NEWLINE, T.EOF, T.BANG, T.LEFTBRACE:
		return out, nil
	}
	op, err := operand(s, t)
	if err != nil {
		return nil, err
	}
	out = append(out, op)
	for s.Word.Lex == T.COMMA {
		err = s.Next()
		if err != nil {
			return nil, err
		}
		op, err = operand(s, t)
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, nil
}

// Operand := 'null' | ['-'] num | 'r' '[' addr ']' | reg ['..' reg | '.' num ':' num].
func operand(s *state, t DT.DataType) (gir.Operand, *Error) {
	switch s.Word.Lex {
	case T.MINUS:
		err := s.Next()
		if err != nil {
			return gir.Operand{}, err
		}
		n, err := Expect(s.Lexer, T.NUMBER)
		if err != nil {
			return gir.Operand{}, err
		}
		return gir.Operand{Imm: true, Value: -n.Value, Type: t}, nil
	case T.NUMBER:
		n, err := Consume(s.Lexer)
		if err != nil {
			return gir.Operand{}, err
		}
		return gir.Operand{Imm: true, Value: n.Value, Type: t}, nil
	case T.IDENTIFIER:
	default:
		return gir.Operand{}, Check(s.Lexer, T.IDENTIFIER, T.NUMBER)
	}
	id, err := Consume(s.Lexer)
	if err != nil {
		return gir.Operand{}, err
	}
	if id.Text == "null" {
		return gir.Operand{}, nil
	}
	if id.Text == "r" && s.Word.Lex == T.LEFTBRACKET {
		return indirect(s, t)
	}
	space, reg, ok := register(id.Text)
	if !ok {
		return gir.Operand{}, NewCompilerError(s.Lexer, et.InvalidOperand, "invalid register "+id.Text)
	}
	unit := gir.Unit(space, s.k.GRFSize)
	op := gir.Operand{Space: space, Reg: reg, Size: unit, Type: t}
	switch s.Word.Lex {
	case T.DOTDOT:
		err = s.Next()
		if err != nil {
			return gir.Operand{}, err
		}
		last, err := Expect(s.Lexer, T.IDENTIFIER)
		if err != nil {
			return gir.Operand{}, err
		}
		lastSpace, lastReg, ok := register(last.Text)
		if !ok || lastSpace != space || lastReg < reg {
			return gir.Operand{}, NewCompilerError(s.Lexer, et.InvalidOperand,
				"invalid register range "+id.Text+".."+last.Text)
		}
		op.Size = (lastReg - reg + 1) * unit
	case T.DOT:
		err = s.Next()
		if err != nil {
			return gir.Operand{}, err
		}
		off, err := Expect(s.Lexer, T.NUMBER)
		if err != nil {
			return gir.Operand{}, err
		}
		_, err = Expect(s.Lexer, T.COLON)
		if err != nil {
			return gir.Operand{}, err
		}
		size, err := Expect(s.Lexer, T.NUMBER)
		if err != nil {
			return gir.Operand{}, err
		}
		op.Off = int(off.Value)
		op.Size = int(size.Value)
	}
	return op, nil
}

func indirect(s *state, t DT.DataType) (gir.Operand, *Error) {
	_, err := Expect(s.Lexer, T.LEFTBRACKET)
	if err != nil {
		return gir.Operand{}, err
	}
	addr, err := Expect(s.Lexer, T.IDENTIFIER)
	if err != nil {
		return gir.Operand{}, err
	}
	a, ok := registerNumber(addr.Text, "a")
	if !ok {
		return gir.Operand{}, NewCompilerError(s.Lexer, et.InvalidOperand, "expected address register, found "+addr.Text)
	}
	_, err = Expect(s.Lexer, T.RIGHTBRACKET)
	if err != nil {
		return gir.Operand{}, err
	}
	return gir.Operand{Indirect: true, Addr: a, Type: t}, nil
}

func register(text string) (RS.RegSpace, int, bool) {
	for _, p := range []struct {
		prefix string
		space  RS.RegSpace
	}{{"acc", RS.ACC}, {"r", RS.GRF}, {"f", RS.FLAG}} {
		if n, ok := registerNumber(text, p.prefix); ok {
			return p.space, n, true
		}
	}
	return RS.InvalidSpace, 0, false
}

func registerNumber(text, prefix string) (int, bool) {
	if !strings.HasPrefix(text, prefix) || len(text) == len(prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(text[len(prefix):])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func Consume(st *Lexer) (*ir.Node, *Error) {
	n := st.Word
	err := st.Next()
	return n, err
}

func Check(st *Lexer, tpList ...T.LexKind) *Error {
	for _, tp := range tpList {
		if st.Word.Lex == tp {
			return nil
		}
	}
	message := fmt.Sprintf("Expected one of %v: instead found '%v'",
		T.FmtTypes(tpList...),
		T.FmtLexKind(st.Word.Lex))

	err := NewCompilerError(st, et.ExpectedSymbol, message)
	return err
}

func Expect(st *Lexer, tpList ...T.LexKind) (*ir.Node, *Error) {
	for _, tp := range tpList {
		if st.Word.Lex == tp {
			return Consume(st)
		}
	}
	message := fmt.Sprintf("Expected one of %v: instead found %v",
		T.FmtTypes(tpList...),
		T.FmtLexKind(st.Word.Lex))

	err := NewCompilerError(st, et.ExpectedSymbol, message)
	return nil, err
}

func ExpectedLine(s *Lexer) *Error {
	message := fmt.Sprintf("expected instruction, label or directive, instead found %v",
		T.FmtLexKind(s.Word.Lex))
	return NewCompilerError(s, et.ExpectedProd, message)
}

func NewCompilerError(st *Lexer, t et.ErrorKind, message string) *Error {
	return &Error{
		Code:     t,
		Severity: sv.Error,
		Location: &Location{Range: st.Word.Range, File: st.File, Instr: -1},
		Message:  message,
	}
}
