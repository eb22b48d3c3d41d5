// Package checker validates a kernel before the scoreboard pass runs
// over it. The pass itself panics on malformed input, so everything it
// assumes is checked here first.
package checker

import (
	. "swsb/core"
	et "swsb/core/errorkind"
	"swsb/core/gir"
	FT "swsb/core/gir/flowkind"
	IT "swsb/core/gir/instrkind"
	RS "swsb/core/gir/regspace"
	SF "swsb/core/gir/sfid"
	"swsb/core/hw"
	"swsb/core/util"
	"swsb/footprint"
	"swsb/pointsto"

	"strconv"
	"strings"
)

type state struct {
	k      *gir.Kernel
	m      *hw.Model
	oracle pointsto.Oracle
	bb     *gir.BasicBlock
}

func Check(k *gir.Kernel, m *hw.Model, oracle pointsto.Oracle) *Error {
	if len(k.AllBlocks) == 0 {
		return util.NewKernelError(k, nil, -1, et.EmptyKernel, "kernel "+k.Name+" has no blocks")
	}
	s := &state{k: k, m: m, oracle: oracle}
	for _, bb := range k.AllBlocks {
		s.bb = bb
		err := checkFlow(s)
		if err != nil {
			return err
		}
		err = checkCode(s)
		if err != nil {
			return err
		}
	}
	return checkReachable(k)
}

func checkReachable(k *gir.Kernel) *Error {
	k.ResetBlocks()
	var visit func(bb *gir.BasicBlock)
	visit = func(bb *gir.BasicBlock) {
		if bb.Visited {
			return
		}
		bb.Visited = true
		for _, t := range bb.Targets() {
			visit(k.GetBlock(t))
		}
	}
	visit(k.FirstBlock())
	notVisited := []string{}
	var first *gir.BasicBlock
	for _, bb := range k.AllBlocks {
		if !bb.Visited {
			if first == nil {
				first = bb
			}
			notVisited = append(notVisited, bb.Label)
		}
	}
	k.ResetBlocks()
	if len(notVisited) > 0 {
		return util.NewKernelError(k, first, -1, et.UnreachableBlock,
			"not all blocks are reachable ("+strings.Join(notVisited, ", ")+")")
	}
	return nil
}

func checkFlow(s *state) *Error {
	bb := s.bb
	switch bb.Out.T {
	case FT.Jmp, FT.Call:
		return checkTarget(s, bb.Out.True)
	case FT.If:
		if !bb.Out.Cond.IsReg() || bb.Out.Cond.Space != RS.FLAG {
			return errorAt(s, -1, et.InvalidOperand, "branch condition must be a flag register")
		}
		err := checkTarget(s, bb.Out.True)
		if err != nil {
			return err
		}
		return checkTarget(s, bb.Out.False)
	case FT.Return, FT.Exit:
		return nil
	}
	return errorAt(s, -1, et.NoFlow, "block "+bb.Label+" has no flow")
}

func checkTarget(s *state, id gir.BlockID) *Error {
	if id < 0 || int(id) >= len(s.k.AllBlocks) {
		return errorAt(s, -1, et.UnknownLabel, "jump to unknown block "+strconv.Itoa(int(id)))
	}
	return nil
}

func checkCode(s *state) *Error {
	for i, instr := range s.bb.Code {
		err := checkInstr(s, i, instr)
		if err != nil {
			return err
		}
	}
	return nil
}

func checkInstr(s *state, index int, instr *gir.Instr) *Error {
	switch {
	case instr.T == IT.Sync:
		return nil
	case IT.IsMarker(instr.T):
		return checkMarker(s, index, instr)
	case instr.T == IT.Send:
		return checkSend(s, index, instr)
	case instr.T == IT.Math, instr.T == IT.Dpas, IT.IsALU(instr.T):
		return checkCompute(s, index, instr)
	}
	return errorAt(s, index, et.UnsupportedInstr, "unsupported instruction "+instr.T.String())
}

func checkMarker(s *state, index int, instr *gir.Instr) *Error {
	if !instr.Dst.IsEmpty() || len(instr.Srcs) > 0 {
		return errorAt(s, index, et.UnexpectedDestination, instr.T.String()+" takes no operands")
	}
	if instr.Fused {
		return errorAt(s, index, et.InvalidFusedGroup, instr.T.String()+" cannot be fused")
	}
	return nil
}

func checkSend(s *state, index int, instr *gir.Instr) *Error {
	if instr.SFID == SF.InvalidSFID {
		return errorAt(s, index, et.InvalidSFID, "send without shared function")
	}
	if len(instr.Srcs) < 1 || len(instr.Srcs) > IT.NumSrcs(instr.T) {
		return errorAt(s, index, et.InvalidOperand, "send takes an address and optional data")
	}
	if instr.Fused {
		return errorAt(s, index, et.InvalidFusedGroup, "send cannot be fused")
	}
	err := checkExecSize(s, index, instr)
	if err != nil {
		return err
	}
	return checkOperands(s, index, instr)
}

func checkCompute(s *state, index int, instr *gir.Instr) *Error {
	if !instr.Dst.Touches() {
		return errorAt(s, index, et.MissingDestination, instr.T.String()+" needs a destination")
	}
	n := IT.NumSrcs(instr.T)
	if instr.T == IT.Math {
		if len(instr.Srcs) < 1 || len(instr.Srcs) > n {
			return errorAt(s, index, et.InvalidOperand,
				"math takes 1 or "+strconv.Itoa(n)+" sources, has "+strconv.Itoa(len(instr.Srcs)))
		}
	} else if len(instr.Srcs) != n {
		return errorAt(s, index, et.InvalidOperand,
			instr.T.String()+" takes "+strconv.Itoa(n)+" sources, has "+strconv.Itoa(len(instr.Srcs)))
	}
	if instr.Fused {
		err := checkFused(s, index, instr)
		if err != nil {
			return err
		}
	}
	err := checkExecSize(s, index, instr)
	if err != nil {
		return err
	}
	return checkOperands(s, index, instr)
}

// checkFused requires instr and the one after it to issue in order on
// the same pipe
func checkFused(s *state, index int, instr *gir.Instr) *Error {
	if instr.IsOutOfOrder(s.m.MathUsesToken) {
		return errorAt(s, index, et.InvalidFusedGroup, "out-of-order instructions cannot be fused")
	}
	if index+1 >= len(s.bb.Code) {
		return errorAt(s, index, et.InvalidFusedGroup, "fused instruction ends the block")
	}
	next := s.bb.Code[index+1]
	if next.Pipe() != instr.Pipe() || next.IsOutOfOrder(s.m.MathUsesToken) {
		return errorAt(s, index, et.InvalidFusedGroup, "fused instructions must share a pipe")
	}
	return nil
}

func checkExecSize(s *state, index int, instr *gir.Instr) *Error {
	switch instr.ExecSize {
	case 1, 2, 4, 8, 16, 32:
		return nil
	}
	return errorAt(s, index, et.InvalidExecSize, "invalid execution size "+strconv.Itoa(instr.ExecSize))
}

func checkOperands(s *state, index int, instr *gir.Instr) *Error {
	ops := append([]gir.Operand{}, instr.Srcs...)
	ops = append(ops, instr.Dst, instr.Pred)
	for _, op := range ops {
		err := checkOperand(s, index, op)
		if err != nil {
			return err
		}
	}
	if instr.Pred.Touches() && instr.Pred.Space != RS.FLAG {
		return errorAt(s, index, et.InvalidOperand, "predicate must be a flag register")
	}
	return nil
}

func checkOperand(s *state, index int, op gir.Operand) *Error {
	if !op.Touches() {
		return nil
	}
	if op.IsReg() && op.Size <= 0 {
		return errorAt(s, index, et.InvalidOperand, "empty register region "+op.Format(s.m.GRFSize))
	}
	fp, ok := footprint.FromOperand(op, s.oracle, s.m.GRFSize)
	if !ok {
		return errorAt(s, index, et.UnresolvedIndirect,
			"no points-to facts for a"+strconv.Itoa(op.Addr))
	}
	if !footprint.Fits(fp, s.m) {
		return errorAt(s, index, et.OperandOutOfRange,
			op.Format(s.m.GRFSize)+" is outside of the register file")
	}
	return nil
}

func errorAt(s *state, index int, t et.ErrorKind, message string) *Error {
	return util.NewKernelError(s.k, s.bb, index, t, message)
}
