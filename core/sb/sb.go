// Package sb holds the dependence graph of the scoreboard pass and the
// analysis context threaded through every stage of it.
package sb

import (
	"strconv"
	"strings"

	"swsb/cfg"
	. "swsb/core"
	"swsb/core/gir"
	DK "swsb/core/gir/distkind"
	P "swsb/core/gir/pipe"
	"swsb/core/hw"
	DEP "swsb/core/sb/deptype"
	TS "swsb/core/sb/tokenstate"
	"swsb/footprint"
	"swsb/pointsto"
)

// Opnd is one register access of a node
type Opnd struct {
	Write bool
	FP    footprint.Footprint
	// Instr is the index of the accessing instruction inside the node
	Instr int
}

// DistDep is one in-order producer a node must wait for
type DistDep struct {
	Producer int
	Pipe     P.Pipe
	Dist     int
}

type Node struct {
	ID    int
	Block gir.BlockID
	// Instrs has more than one instruction for fused groups
	Instrs     []*gir.Instr
	Pipe       P.Pipe
	PipeID     int
	OutOfOrder bool
	Opnds      []Opnd

	Preds []int
	Succs []int

	LiveStart   int
	LiveEnd     int
	LiveStartBB gir.BlockID
	LiveEndBB   gir.BlockID

	GlobalID   int
	Token      int
	State      TS.TokenState
	ReusedFrom int
	Degraded   bool

	DistDeps []DistDep
	Dist     int
	DistKind DK.DistKind
}

func (this *Node) First() *gir.Instr {
	return this.Instrs[0]
}

// ExtendLive grows the live range so it includes position id of
// block bb. Ranges never shrink.
func (this *Node) ExtendLive(id int, bb gir.BlockID) {
	if id > this.LiveEnd {
		this.LiveEnd = id
		this.LiveEndBB = bb
	}
	if id < this.LiveStart {
		this.LiveStart = id
		this.LiveStartBB = bb
	}
}

func (this *Node) HasToken() bool {
	return this.State != TS.Unassigned && this.Token >= 0
}

func (this *Node) String() string {
	output := "#" + strconv.Itoa(this.ID) + " " + this.Pipe.String()
	if this.PipeID > 0 {
		output += ":" + strconv.Itoa(this.PipeID)
	}
	if this.HasToken() {
		output += " $" + strconv.Itoa(this.Token)
	}
	if this.OutOfOrder {
		output += " [" + strconv.Itoa(this.LiveStart) + "," + strconv.Itoa(this.LiveEnd) + "]"
	}
	if this.Degraded {
		output += " degraded"
	}
	return output
}

type Edge struct {
	ID       int
	From     int
	To       int
	Kind     DEP.DepType
	Implicit bool
	Global   bool
	// LoopCarried is set when the consumer does not follow the producer
	// in program order, the hazard crosses a back edge
	LoopCarried bool
	// Exclusive lists the other out-of-order producers the consumer
	// waits on; they must hold distinct tokens
	Exclusive []int
	Pruned    bool
}

func (this *Edge) String() string {
	output := strconv.Itoa(this.From) + " -> " + strconv.Itoa(this.To) + " " + this.Kind.String()
	flags := []string{}
	if this.Implicit {
		flags = append(flags, "implicit")
	}
	if this.Global {
		flags = append(flags, "global")
	}
	if this.LoopCarried {
		flags = append(flags, "loop")
	}
	if this.Pruned {
		flags = append(flags, "pruned")
	}
	if len(flags) > 0 {
		output += " (" + strings.Join(flags, ", ") + ")"
	}
	return output
}

// LiveOpnd names an operand of a node still live in the bucket index
type LiveOpnd struct {
	Node int
	Opnd int
}

type BlockState struct {
	Nodes []int
	// LiveOut is what the local builder left live at the block end
	LiveOut []LiveOpnd
	// Outstanding lists the out-of-order producers of the block nobody
	// in it waited on for completion, whether or not their registers
	// are still live
	Outstanding []int
	// PipeEnd holds the in-order pipe counters at the block end
	PipeEnd [P.NumPipes]int
	// AfterCall is set when the block is entered from an external call
	AfterCall bool
}

type Profile struct {
	TokenInstructions int
	TokenReuse        int
	AWTokenReuse      int
	ARTokenReuse      int
	AATokenReuse      int
	ForcedReuse       int
	MathInstructions  int
	MathReuse         int
	SyncInstructions  int
	AWSyncInstr       int
	ARSyncInstr       int
	AWSyncAll         int
	ARSyncAll         int
	DistInstructions  int
	PrunedEdges       int
	PrunedGlobalEdges int
	PrunedDiffBB      int
	DegradedNodes     int
}

func (this Profile) String() string {
	rows := [][2]string{
		{"token instructions", strconv.Itoa(this.TokenInstructions)},
		{"token reuse", strconv.Itoa(this.TokenReuse)},
		{"  after write", strconv.Itoa(this.AWTokenReuse)},
		{"  after read", strconv.Itoa(this.ARTokenReuse)},
		{"  after all", strconv.Itoa(this.AATokenReuse)},
		{"forced reuse", strconv.Itoa(this.ForcedReuse)},
		{"math instructions", strconv.Itoa(this.MathInstructions)},
		{"math reuse", strconv.Itoa(this.MathReuse)},
		{"sync instructions", strconv.Itoa(this.SyncInstructions)},
		{"  after write", strconv.Itoa(this.AWSyncInstr)},
		{"  after read", strconv.Itoa(this.ARSyncInstr)},
		{"sync all write", strconv.Itoa(this.AWSyncAll)},
		{"sync all read", strconv.Itoa(this.ARSyncAll)},
		{"distance instructions", strconv.Itoa(this.DistInstructions)},
		{"pruned edges", strconv.Itoa(this.PrunedEdges)},
		{"pruned global edges", strconv.Itoa(this.PrunedGlobalEdges)},
		{"pruned different block edges", strconv.Itoa(this.PrunedDiffBB)},
		{"degraded nodes", strconv.Itoa(this.DegradedNodes)},
	}
	output := ""
	for _, r := range rows {
		output += r[0] + ": " + r[1] + "\n"
	}
	return output
}

// Context is the state of one run of the pass over one kernel
type Context struct {
	Kernel *gir.Kernel
	Model  *hw.Model
	Oracle pointsto.Oracle
	CFG    *cfg.Info

	Nodes  []*Node
	Edges  []*Edge
	Blocks []*BlockState

	// Sends maps a global id to its node
	Sends []int
	In    []*BitSets
	Out   []*BitSets
	Gen   []*BitSets
	Kill  []*BitSets

	Profile     Profile
	Diagnostics []*Error

	edgeIndex map[[2]int]int
}

func NewContext(k *gir.Kernel, m *hw.Model, oracle pointsto.Oracle) *Context {
	ctx := &Context{
		Kernel:    k,
		Model:     m,
		Oracle:    oracle,
		Blocks:    make([]*BlockState, len(k.AllBlocks)),
		edgeIndex: map[[2]int]int{},
	}
	for i := range ctx.Blocks {
		ctx.Blocks[i] = &BlockState{}
	}
	return ctx
}

func (this *Context) AddNode(bb gir.BlockID, instrs []*gir.Instr) *Node {
	n := &Node{
		ID:          len(this.Nodes),
		Block:       bb,
		Instrs:      instrs,
		Pipe:        instrs[0].Pipe(),
		OutOfOrder:  instrs[0].IsOutOfOrder(this.Model.MathUsesToken),
		GlobalID:    -1,
		Token:       -1,
		State:       TS.Unassigned,
		ReusedFrom:  -1,
		LiveStartBB: bb,
		LiveEndBB:   bb,
	}
	n.LiveStart = n.ID
	n.LiveEnd = n.ID
	this.Nodes = append(this.Nodes, n)
	state := this.Blocks[bb]
	state.Nodes = append(state.Nodes, n.ID)
	return n
}

// AddEdge records a dependency from -> to. A second dependency between
// the same pair strengthens the existing edge, so there is at most one
// edge per pair.
func (this *Context) AddEdge(from, to int, kind DEP.DepType, implicit, global bool) *Edge {
	key := [2]int{from, to}
	if id, ok := this.edgeIndex[key]; ok {
		e := this.Edges[id]
		if e.Kind == DEP.WAR && kind != DEP.WAR {
			e.Kind = kind
		}
		e.Implicit = e.Implicit && implicit
		e.Global = e.Global && global
		return e
	}
	e := &Edge{
		ID:          len(this.Edges),
		From:        from,
		To:          to,
		Kind:        kind,
		Implicit:    implicit,
		Global:      global,
		LoopCarried: to <= from,
	}
	this.Edges = append(this.Edges, e)
	this.edgeIndex[key] = e.ID
	this.Nodes[from].Succs = append(this.Nodes[from].Succs, e.ID)
	this.Nodes[to].Preds = append(this.Nodes[to].Preds, e.ID)
	return e
}

func (this *Context) FindEdge(from, to int) (*Edge, bool) {
	id, ok := this.edgeIndex[[2]int{from, to}]
	if !ok {
		return nil, false
	}
	return this.Edges[id], true
}

func (this *Context) Diagnose(e *Error) {
	this.Diagnostics = append(this.Diagnostics, e)
}

// DumpGraph renders every node with its incoming edges
func (this *Context) DumpGraph() string {
	output := ""
	for _, bb := range this.Kernel.AllBlocks {
		output += bb.Label + ":\n"
		for _, id := range this.Blocks[bb.ID].Nodes {
			n := this.Nodes[id]
			output += "\t" + n.String() + "\t" + n.First().Format(this.Kernel.GRFSize) + "\n"
			for _, e := range n.Preds {
				output += "\t\t" + this.Edges[e].String() + "\n"
			}
		}
	}
	return output
}

// DumpLive renders the dataflow sets of every block
func (this *Context) DumpLive() string {
	output := ""
	if len(this.In) == 0 {
		return "no global sends\n"
	}
	for _, bb := range this.Kernel.AllBlocks {
		output += bb.Label + ":\n"
		output += "\tin   " + this.In[bb.ID].String() + "\n"
		output += "\tgen  " + this.Gen[bb.ID].String() + "\n"
		output += "\tkill " + this.Kill[bb.ID].String() + "\n"
		output += "\tout  " + this.Out[bb.ID].String() + "\n"
	}
	return output
}
