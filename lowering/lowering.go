// Package lowering turns pir procedures into kernels so that programs
// produced by the pir front ends can go through the scoreboard pass.
// Every value gets a register of its own and every memory access
// becomes a send, which is enough to reproduce the hazards the program
// would have once compiled for the GPU.
package lowering

import (
	. "swsb/core"
	et "swsb/core/errorkind"
	"swsb/core/gir"
	DT "swsb/core/gir/datatype"
	GIT "swsb/core/gir/instrkind"
	RS "swsb/core/gir/regspace"
	SF "swsb/core/gir/sfid"
	gu "swsb/core/gir/util"
	"swsb/core/hw"
	"swsb/core/util"

	"github.com/padeir0/pir"
	pirc "github.com/padeir0/pir/class"
	FT "github.com/padeir0/pir/flowkind"
	IT "github.com/padeir0/pir/instrkind"
	T "github.com/padeir0/pir/types"

	"strconv"
)

const (
	// r0 and r1 hold literals that sends need in registers
	numScratch = 2
	// arguments and returns of calls go through r2..r9
	callWindow = 8
	firstValue = numScratch + callWindow
)

type valueKey struct {
	class pirc.Class
	num   uint64
}

type state struct {
	p     *pir.Program
	proc  *pir.Procedure
	m     *hw.Model
	k     *gir.Kernel
	curr  *gir.BasicBlock
	index map[pir.BlockID]gir.BlockID

	values map[valueKey]int
	next   int
	// flagOf is the value the last comparison of the block left in f0
	flagOf   valueKey
	flagLive bool
}

// Lower produces one kernel per procedure of p, builtins and data
// declarations are skipped
func Lower(p *pir.Program, m *hw.Model) ([]*gir.Kernel, *Error) {
	out := []*gir.Kernel{}
	for _, sy := range p.Symbols {
		if sy.Builtin || sy.Proc == nil {
			continue
		}
		k, err := LowerProc(p, sy.Proc, m)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}

func LowerProc(p *pir.Program, proc *pir.Procedure, m *hw.Model) (*gir.Kernel, *Error) {
	s := &state{
		p:    p,
		proc: proc,
		m:    m,
		k: &gir.Kernel{
			Name:    proc.Label,
			File:    p.Name,
			Start:   gir.BlockID(proc.Start),
			Aliases: map[int][]gir.Operand{},
			GRFSize: m.GRFSize,
		},
		index:  map[pir.BlockID]gir.BlockID{},
		values: map[valueKey]int{},
		next:   firstValue,
	}
	for i, bb := range proc.AllBlocks {
		label := bb.Label
		if label == "" {
			label = ".L" + strconv.Itoa(i)
		}
		s.k.AllBlocks = append(s.k.AllBlocks, &gir.BasicBlock{
			ID:    gir.BlockID(i),
			Label: label,
		})
		s.index[pir.BlockID(i)] = gir.BlockID(i)
	}
	for i := range proc.Args {
		_, err := s.value(pir.Operand{Class: pirc.Arg, Num: uint64(i)})
		if err != nil {
			return nil, err
		}
	}
	for i := range proc.Vars {
		_, err := s.value(pir.Operand{Class: pirc.Local, Num: uint64(i)})
		if err != nil {
			return nil, err
		}
	}
	for i, bb := range proc.AllBlocks {
		err := lowerBlock(s, s.k.AllBlocks[i], bb)
		if err != nil {
			return nil, err
		}
	}
	return s.k, nil
}

func lowerBlock(s *state, out *gir.BasicBlock, bb *pir.BasicBlock) *Error {
	s.curr = out
	s.flagLive = false
	for i, instr := range bb.Code {
		var err *Error
		if instr.T == IT.Call {
			err = lowerCall(s, bb, i, instr)
		} else {
			err = lowerInstr(s, instr)
		}
		if err != nil {
			return err
		}
	}
	return lowerFlow(s, &bb.Out)
}

func lowerInstr(s *state, instr pir.Instr) *Error {
	switch instr.T {
	case IT.Add:
		return binary(s, GIT.Add, instr)
	case IT.Mult:
		return binary(s, GIT.Mul, instr)
	case IT.And:
		return binary(s, GIT.And, instr)
	case IT.Or:
		return binary(s, GIT.Or, instr)
	case IT.Xor:
		return binary(s, GIT.Xor, instr)
	case IT.ShiftLeft:
		return binary(s, GIT.Shl, instr)
	case IT.ShiftRight:
		return binary(s, GIT.Shr, instr)
	case IT.Sub:
		return sub(s, instr)
	case IT.Div:
		return math(s, "idiv", instr)
	case IT.Rem:
		return math(s, "irem", instr)
	case IT.Eq, IT.Diff, IT.Less, IT.LessEq, IT.More, IT.MoreEq:
		return compare(s, instr)
	case IT.Neg:
		return unary(s, GIT.Mul, instr, gu.Imm(-1))
	case IT.Not:
		mask := int64(-1)
		if instr.Type != nil && T.IsBool(instr.Type) {
			mask = 1
		}
		return unary(s, GIT.Xor, instr, gu.Imm(mask))
	case IT.Copy, IT.Convert:
		return unary(s, GIT.Mov, instr)
	case IT.LoadPtr:
		return load(s, instr)
	case IT.StorePtr:
		return store(s, instr)
	}
	return s.errorf(et.UnsupportedInstr, "cannot lower "+instr.T.String())
}

func binary(s *state, op GIT.InstrKind, instr pir.Instr) *Error {
	a, err := s.source(instr.Operands[0])
	if err != nil {
		return err
	}
	b, err := s.source(instr.Operands[1])
	if err != nil {
		return err
	}
	dst, err := s.dest(instr.Destination[0])
	if err != nil {
		return err
	}
	s.emit(gu.ALU(op, dataType(instr.Type), 1, dst, a, b))
	return nil
}

func unary(s *state, op GIT.InstrKind, instr pir.Instr, extra ...gir.Operand) *Error {
	a, err := s.source(instr.Operands[0])
	if err != nil {
		return err
	}
	dst, err := s.dest(instr.Destination[0])
	if err != nil {
		return err
	}
	srcs := append([]gir.Operand{a}, extra...)
	s.emit(gu.ALU(op, dataType(instr.Destination[0].Type), 1, dst, srcs...))
	return nil
}

// a - b is lowered as a + (b * -1) through the first scratch register
func sub(s *state, instr pir.Instr) *Error {
	a, err := s.source(instr.Operands[0])
	if err != nil {
		return err
	}
	b, err := s.source(instr.Operands[1])
	if err != nil {
		return err
	}
	dst, err := s.dest(instr.Destination[0])
	if err != nil {
		return err
	}
	t := dataType(instr.Type)
	tmp := gu.Sub(0, 0, DT.Size(t))
	s.emit(gu.ALU(GIT.Mul, t, 1, tmp, b, gu.Imm(-1)))
	s.emit(gu.ALU(GIT.Add, t, 1, dst, a, tmp))
	return nil
}

func math(s *state, fn string, instr pir.Instr) *Error {
	a, err := s.inRegister(instr.Operands[0], 0)
	if err != nil {
		return err
	}
	b, err := s.inRegister(instr.Operands[1], 1)
	if err != nil {
		return err
	}
	dst, err := s.dest(instr.Destination[0])
	if err != nil {
		return err
	}
	s.emit(gu.Math(fn, dataType(instr.Type), 1, dst, a, b))
	return nil
}

// comparisons set f0 and materialize the boolean with a predicated sel
func compare(s *state, instr pir.Instr) *Error {
	a, err := s.source(instr.Operands[0])
	if err != nil {
		return err
	}
	b, err := s.source(instr.Operands[1])
	if err != nil {
		return err
	}
	dst, err := s.dest(instr.Destination[0])
	if err != nil {
		return err
	}
	cmp := gu.ALU(GIT.Cmp, dataType(instr.Operands[0].Type), 1, gu.Flag(0), a, b)
	cmp.Func = condition(instr.T)
	s.emit(cmp)
	sel := gu.ALU(GIT.Sel, DT.UB, 1, dst, gu.Imm(1), gu.Imm(0))
	sel.Pred = gu.Flag(0)
	s.emit(sel)
	s.flagOf = key(instr.Destination[0])
	s.flagLive = true
	return nil
}

func condition(k IT.InstrKind) string {
	switch k {
	case IT.Eq:
		return "eq"
	case IT.Diff:
		return "ne"
	case IT.Less:
		return "lt"
	case IT.LessEq:
		return "le"
	case IT.More:
		return "gt"
	case IT.MoreEq:
		return "ge"
	}
	panic("not a comparison: " + k.String())
}

func load(s *state, instr pir.Instr) *Error {
	addr, err := s.inRegister(instr.Operands[0], 0)
	if err != nil {
		return err
	}
	dst, err := s.dest(instr.Destination[0])
	if err != nil {
		return err
	}
	s.emit(gu.Send(SF.UGM, 1, dst, addr, gir.Operand{}))
	return nil
}

func store(s *state, instr pir.Instr) *Error {
	data, err := s.inRegister(instr.Operands[0], 0)
	if err != nil {
		return err
	}
	addr, err := s.inRegister(instr.Operands[1], 1)
	if err != nil {
		return err
	}
	s.emit(gu.Send(SF.UGM, 1, gir.Operand{}, addr, data))
	return nil
}

// lowerCall ends the current block with an external call and
// continues lowering in a fresh block the call returns to
func lowerCall(s *state, bb *pir.BasicBlock, index int, instr pir.Instr) *Error {
	args := instr.Operands[1:]
	if len(args) > callWindow || len(instr.Destination) > callWindow {
		return s.errorf(et.TooManyValues, "call passes more than "+strconv.Itoa(callWindow)+" values")
	}
	for i, arg := range args {
		src, err := s.source(arg)
		if err != nil {
			return err
		}
		s.emit(gu.ALU(GIT.Mov, dataType(arg.Type), 1, window(i, arg.Type), src))
	}
	ret := &gir.BasicBlock{
		ID:    gir.BlockID(len(s.k.AllBlocks)),
		Label: s.curr.Label + "_ret" + strconv.Itoa(index),
	}
	s.k.AllBlocks = append(s.k.AllBlocks, ret)
	s.curr.Call(callee(s, instr.Operands[0]), ret.ID)

	s.curr = ret
	s.flagLive = false
	for i, d := range instr.Destination {
		dst, err := s.dest(d)
		if err != nil {
			return err
		}
		s.emit(gu.ALU(GIT.Mov, dataType(d.Type), 1, dst, window(i, d.Type)))
	}
	return nil
}

func callee(s *state, op pir.Operand) string {
	if op.Class == pirc.Global && int(op.Num) < len(s.p.Symbols) {
		sy := s.p.Symbols[op.Num]
		if sy.Proc != nil {
			return sy.Proc.Label
		}
	}
	return "proc" + strconv.FormatUint(op.Num, 10)
}

func lowerFlow(s *state, out *pir.Flow) *Error {
	switch out.T {
	case FT.Jmp:
		s.curr.Jmp(s.index[out.True])
	case FT.If:
		cond, err := s.flag(out.V[0])
		if err != nil {
			return err
		}
		s.curr.Branch(cond, s.index[out.True], s.index[out.False])
	case FT.Return:
		for i, v := range out.V {
			if i >= callWindow {
				return s.errorf(et.TooManyValues, "procedure returns more than "+strconv.Itoa(callWindow)+" values")
			}
			src, err := s.source(v)
			if err != nil {
				return err
			}
			s.emit(gu.ALU(GIT.Mov, dataType(v.Type), 1, window(i, v.Type), src))
		}
		s.curr.Return()
	case FT.Exit:
		if len(out.V) > 0 {
			src, err := s.source(out.V[0])
			if err != nil {
				return err
			}
			s.emit(gu.ALU(GIT.Mov, dataType(out.V[0].Type), 1, window(0, out.V[0].Type), src))
		}
		s.curr.Exit()
	default:
		return s.errorf(et.NoFlow, "block "+s.curr.Label+" has no flow")
	}
	return nil
}

// flag makes sure f0 holds op before a branch
func (this *state) flag(op pir.Operand) (gir.Operand, *Error) {
	if this.flagLive && isValue(op) && key(op) == this.flagOf {
		return gu.Flag(0), nil
	}
	src, err := this.source(op)
	if err != nil {
		return gir.Operand{}, err
	}
	cmp := gu.ALU(GIT.Cmp, dataType(op.Type), 1, gu.Flag(0), src, gu.Imm(0))
	cmp.Func = "ne"
	this.emit(cmp)
	this.flagLive = false
	return gu.Flag(0), nil
}

func (this *state) emit(i *gir.Instr) {
	if i.Dst.Space == RS.FLAG {
		this.flagLive = false
	}
	this.curr.AddInstr(i)
}

// source is the operand reading op, literals and symbols stay
// immediates
func (this *state) source(op pir.Operand) (gir.Operand, *Error) {
	if !isValue(op) {
		return gu.Imm(int64(op.Num)), nil
	}
	return this.register(op)
}

// inRegister is like source but moves immediates into a scratch
// register first, for instructions that only take registers
func (this *state) inRegister(op pir.Operand, scratch int) (gir.Operand, *Error) {
	if isValue(op) {
		return this.register(op)
	}
	t := dataType(op.Type)
	reg := gu.Sub(scratch, 0, DT.Size(t))
	this.emit(gu.ALU(GIT.Mov, t, 1, reg, gu.Imm(int64(op.Num))))
	return reg, nil
}

// dest is the operand writing op, f0 no longer mirrors op afterwards
func (this *state) dest(op pir.Operand) (gir.Operand, *Error) {
	if this.flagLive && key(op) == this.flagOf {
		this.flagLive = false
	}
	return this.register(op)
}

func (this *state) register(op pir.Operand) (gir.Operand, *Error) {
	reg, err := this.value(op)
	if err != nil {
		return gir.Operand{}, err
	}
	return gu.Sub(reg, 0, DT.Size(dataType(op.Type))), nil
}

func (this *state) value(op pir.Operand) (int, *Error) {
	k := key(op)
	if reg, ok := this.values[k]; ok {
		return reg, nil
	}
	if this.next >= this.m.NumGRF {
		return 0, this.errorf(et.TooManyValues,
			"procedure "+this.proc.Label+" needs more than "+strconv.Itoa(this.m.NumGRF-firstValue)+" registers")
	}
	this.values[k] = this.next
	this.next++
	return this.values[k], nil
}

func (this *state) errorf(t et.ErrorKind, message string) *Error {
	return util.NewKernelError(this.k, this.curr, -1, t, message)
}

func isValue(op pir.Operand) bool {
	switch op.Class {
	case pirc.Temp, pirc.Local, pirc.Arg:
		return true
	}
	return false
}

func key(op pir.Operand) valueKey {
	return valueKey{class: op.Class, num: op.Num}
}

func window(i int, t *T.Type) gir.Operand {
	return gu.Sub(numScratch+i, 0, DT.Size(dataType(t)))
}

var basics = []struct {
	t *T.Type
	d DT.DataType
}{
	{T.T_I8, DT.B}, {T.T_U8, DT.UB},
	{T.T_I16, DT.W}, {T.T_U16, DT.UW},
	{T.T_I32, DT.D}, {T.T_U32, DT.UD},
	{T.T_I64, DT.Q}, {T.T_U64, DT.UQ},
	{T.T_Bool, DT.UB}, {T.T_Ptr, DT.UQ},
}

func dataType(t *T.Type) DT.DataType {
	if t == nil {
		return DT.Q
	}
	for _, b := range basics {
		if t.Equals(b.t) {
			return b.d
		}
	}
	return DT.Q
}
