// Package gir is the GPU kernel representation the scoreboard pass
// works on: scheduled instructions grouped in basic blocks, with
// register operands described by byte extents.
package gir

import (
	"sort"
	"strconv"
	"strings"

	DT "swsb/core/gir/datatype"
	DK "swsb/core/gir/distkind"
	FT "swsb/core/gir/flowkind"
	IT "swsb/core/gir/instrkind"
	P "swsb/core/gir/pipe"
	RS "swsb/core/gir/regspace"
	SF "swsb/core/gir/sfid"
	SD "swsb/core/gir/syncdir"
	SK "swsb/core/gir/synckind"
)

// FlagSize is the width in bytes of a flag register
const FlagSize = 4

type Kernel struct {
	Name      string
	File      string
	Start     BlockID
	AllBlocks []*BasicBlock
	// Aliases maps an address register to the operands an indirect
	// access through it may touch
	Aliases map[int][]Operand
	GRFSize int
}

func (this *Kernel) String() string {
	if this == nil {
		return "nil kernel"
	}
	output := "kernel " + this.Name + "\n"
	addrs := []int{}
	for a := range this.Aliases {
		addrs = append(addrs, a)
	}
	sort.Ints(addrs)
	for _, a := range addrs {
		ops := []string{}
		for _, op := range this.Aliases[a] {
			ops = append(ops, op.Format(this.GRFSize))
		}
		output += ".pointsto a" + strconv.Itoa(a) + " " + strings.Join(ops, ", ") + "\n"
	}
	for _, bb := range this.AllBlocks {
		output += bb.Format(this) + "\n"
	}
	return output
}

func (this *Kernel) FirstBlock() *BasicBlock {
	return this.AllBlocks[this.Start]
}

func (this *Kernel) GetBlock(id BlockID) *BasicBlock {
	return this.AllBlocks[id]
}

func (this *Kernel) ResetBlocks() {
	for _, b := range this.AllBlocks {
		b.Visited = false
	}
}

func (this *Kernel) HasCall() bool {
	for _, b := range this.AllBlocks {
		if b.Out.T == FT.Call {
			return true
		}
	}
	return false
}

// NumInstrs counts every instruction, sync instructions included
func (this *Kernel) NumInstrs() int {
	n := 0
	for _, b := range this.AllBlocks {
		n += len(b.Code)
	}
	return n
}

// index into Kernel.AllBlocks
type BlockID int

type BasicBlock struct {
	ID      BlockID
	Label   string
	Code    []*Instr
	Out     Flow
	Preds   []BlockID
	Succs   []BlockID
	Visited bool
}

func (this *BasicBlock) AddInstr(i *Instr) {
	this.Code = append(this.Code, i)
}

func (this *BasicBlock) Jmp(id BlockID) {
	this.Out = Flow{
		T:    FT.Jmp,
		True: id,
	}
}

func (this *BasicBlock) Branch(cond Operand, True BlockID, False BlockID) {
	this.Out = Flow{
		T:     FT.If,
		Cond:  cond,
		True:  True,
		False: False,
	}
}

func (this *BasicBlock) Return() {
	this.Out = Flow{T: FT.Return}
}

func (this *BasicBlock) Exit() {
	this.Out = Flow{T: FT.Exit}
}

// Call ends the block with a call to a function outside the kernel,
// control comes back at ret
func (this *BasicBlock) Call(callee string, ret BlockID) {
	this.Out = Flow{
		T:      FT.Call,
		Callee: callee,
		True:   ret,
	}
}

func (this *BasicBlock) HasFlow() bool {
	return this.Out.T != FT.InvalidFlow
}

func (this *BasicBlock) IsTerminal() bool {
	return this.Out.T == FT.Return || this.Out.T == FT.Exit
}

// Targets lists the blocks control may reach from the end of this block
func (this *BasicBlock) Targets() []BlockID {
	switch this.Out.T {
	case FT.Jmp, FT.Call:
		return []BlockID{this.Out.True}
	case FT.If:
		if this.Out.True == this.Out.False {
			return []BlockID{this.Out.True}
		}
		return []BlockID{this.Out.True, this.Out.False}
	}
	return nil
}

func (this *BasicBlock) Format(k *Kernel) string {
	output := this.Label + ":\n"
	for _, v := range this.Code {
		output += "\t" + v.Format(k.GRFSize) + "\n"
	}
	output += "\t" + this.Out.Format(k)
	return output
}

type Flow struct {
	T      FT.FlowKind
	Cond   Operand
	True   BlockID
	False  BlockID
	Callee string
}

func (this *Flow) Format(k *Kernel) string {
	label := func(id BlockID) string {
		if int(id) < len(k.AllBlocks) {
			return k.AllBlocks[id].Label
		}
		return ".L" + strconv.Itoa(int(id))
	}
	switch this.T {
	case FT.Jmp:
		return "jmp " + label(this.True)
	case FT.If:
		return "if " + this.Cond.Format(k.GRFSize) + " ? " +
			label(this.True) + " : " + label(this.False)
	case FT.Return:
		return "ret"
	case FT.Exit:
		return "exit"
	case FT.Call:
		return "call " + this.Callee + " -> " + label(this.True)
	}
	return "invalid flow"
}

// Operand describes a register region by register number, byte
// offset inside the register and size in bytes. Immediates and
// indirect operands carry no region.
type Operand struct {
	Space    RS.RegSpace
	Reg      int
	Off      int
	Size     int
	Type     DT.DataType
	Indirect bool
	Addr     int
	Imm      bool
	Value    int64
}

// IsReg is true for direct register operands
func (this Operand) IsReg() bool {
	return this.Space != RS.InvalidSpace && !this.Indirect
}

// Touches is true when the operand reads or writes registers
func (this Operand) Touches() bool {
	return this.IsReg() || this.Indirect
}

func (this Operand) IsEmpty() bool {
	return !this.Touches() && !this.Imm
}

// Left is the first byte of the operand inside its register space
func (this Operand) Left(grfSize int) int {
	return this.Reg*Unit(this.Space, grfSize) + this.Off
}

// Right is the last byte of the operand, inclusive
func (this Operand) Right(grfSize int) int {
	return this.Left(grfSize) + this.Size - 1
}

// Unit is the size of one register of the space
func Unit(space RS.RegSpace, grfSize int) int {
	if space == RS.FLAG {
		return FlagSize
	}
	return grfSize
}

func (this Operand) Format(grfSize int) string {
	if this.Imm {
		return strconv.FormatInt(this.Value, 10)
	}
	if this.Indirect {
		return "r[a" + strconv.Itoa(this.Addr) + "]"
	}
	prefix := ""
	switch this.Space {
	case RS.GRF:
		prefix = "r"
	case RS.ACC:
		prefix = "acc"
	case RS.FLAG:
		prefix = "f"
	default:
		return "null"
	}
	unit := Unit(this.Space, grfSize)
	output := prefix + strconv.Itoa(this.Reg)
	if this.Off == 0 && this.Size%unit == 0 && this.Size > 0 {
		n := this.Size / unit
		if n > 1 {
			output += ".." + prefix + strconv.Itoa(this.Reg+n-1)
		}
		return output
	}
	return output + "." + strconv.Itoa(this.Off) + ":" + strconv.Itoa(this.Size)
}

// SWSB is the synchronization attached to one instruction
type SWSB struct {
	Dist     int
	DistKind DK.DistKind

	HasToken bool
	Token    int

	HasWait bool
	Wait    int
	WaitDir SD.SyncDir
}

func (this SWSB) IsEmpty() bool {
	return this.Dist == 0 && !this.HasToken && !this.HasWait
}

func (this SWSB) String() string {
	parts := []string{}
	if this.Dist > 0 {
		parts = append(parts, this.DistKind.String()+"@"+strconv.Itoa(this.Dist))
	}
	if this.HasToken {
		parts = append(parts, "$"+strconv.Itoa(this.Token))
	}
	if this.HasWait {
		parts = append(parts, "$"+strconv.Itoa(this.Wait)+"."+this.WaitDir.String())
	}
	return "{" + strings.Join(parts, " ") + "}"
}

type Instr struct {
	T        IT.InstrKind
	Type     DT.DataType
	ExecSize int
	// Func is the math function or the send message mnemonic
	Func  string
	SFID  SF.SFID
	Dst   Operand
	Srcs  []Operand
	Pred  Operand
	Fused bool
	// Latency overrides the latency class of an out-of-order
	// instruction, in cycles; zero when unset
	Latency int

	Sync SK.SyncKind
	Mask uint32

	SWSB SWSB
	Line int
}

// Pipe classifies the instruction by the hardware pipe executing it
func (this *Instr) Pipe() P.Pipe {
	switch {
	case this.T == IT.Send:
		return P.Send
	case this.T == IT.Dpas:
		return P.Dpas
	case this.T == IT.Math:
		return P.Math
	case IT.IsALU(this.T):
		if DT.IsLong(this.Type) {
			return P.Long
		}
		if DT.IsFloat(this.Type) {
			return P.Float
		}
		return P.Int
	}
	return P.None
}

// IsOutOfOrder is true for instructions whose completion is not
// implied by issue order and must be tracked with a token
func (this *Instr) IsOutOfOrder(mathUsesToken bool) bool {
	switch this.T {
	case IT.Send, IT.Dpas:
		return true
	case IT.Math:
		return mathUsesToken
	}
	return false
}

// IsOrderPoint is true for barriers and fences
func (this *Instr) IsOrderPoint() bool {
	return this.T == IT.Barrier || this.T == IT.Fence
}

func (this *Instr) Format(grfSize int) string {
	if this == nil {
		return "nil"
	}
	output := ""
	if this.Pred.IsReg() {
		output += "(" + this.Pred.Format(grfSize) + ") "
	}
	output += this.T.String()
	switch {
	case this.T == IT.Sync:
		output += "." + this.Sync.String()
	case this.T == IT.Send:
		output += "." + this.SFID.String()
	case this.Func != "":
		output += "." + this.Func
	}
	if this.Fused {
		output += ".fused"
	}
	if this.Type != DT.InvalidType {
		output += ":" + this.Type.String()
	}
	if this.ExecSize > 0 {
		output += " (" + strconv.Itoa(this.ExecSize) + ")"
	}
	ops := []string{}
	if this.T != IT.Sync && !IT.IsMarker(this.T) {
		ops = append(ops, this.Dst.Format(grfSize))
	}
	for _, src := range this.Srcs {
		ops = append(ops, src.Format(grfSize))
	}
	if this.T == IT.Sync && this.Sync != SK.Nop {
		ops = append(ops, "0x"+strconv.FormatUint(uint64(this.Mask), 16))
	}
	if len(ops) > 0 {
		output += " " + strings.Join(ops, ", ")
	}
	if this.Latency > 0 {
		output += " !" + strconv.Itoa(this.Latency)
	}
	if !this.SWSB.IsEmpty() {
		output += " " + this.SWSB.String()
	}
	return output
}

// Reads lists the register operands the instruction reads
func (this *Instr) Reads() []Operand {
	out := []Operand{}
	for _, src := range this.Srcs {
		if src.Touches() {
			out = append(out, src)
		}
	}
	if this.Pred.Touches() {
		out = append(out, this.Pred)
	}
	return out
}

// Writes lists the register operands the instruction writes
func (this *Instr) Writes() []Operand {
	if this.Dst.Touches() {
		return []Operand{this.Dst}
	}
	return nil
}
