// Package dependence builds the dependence graph of a kernel block by
// block, and resolves hazards between in-order producers with
// distances.
package dependence

import (
	"context"
	"strconv"

	"swsb/buckets"
	"swsb/core/gir"
	FT "swsb/core/gir/flowkind"
	IT "swsb/core/gir/instrkind"
	P "swsb/core/gir/pipe"
	RS "swsb/core/gir/regspace"
	SF "swsb/core/gir/sfid"
	"swsb/core/sb"
	DEP "swsb/core/sb/deptype"
	"swsb/footprint"

	"github.com/nikandfor/tlog"
)

type state struct {
	c     *sb.Context
	index *buckets.Index
	// pipes counts the instructions issued so far in each in-order
	// pipe, in kernel order
	pipes [P.NumPipes]int
	kills [][2]int
	// outstanding holds the out-of-order producers of the block not yet
	// known complete. A register kill does not remove them: a write
	// over a send's sources says nothing about its destination.
	outstanding []int
}

func (this *state) complete(id int) {
	remaining := this.outstanding[:0]
	for _, o := range this.outstanding {
		if o != id {
			remaining = append(remaining, o)
		}
	}
	this.outstanding = remaining
}

// Build runs the local builder over every block of the kernel in
// program order, then adds the distance dependencies that cross block
// boundaries and settles the distance of every node.
func Build(ctx context.Context, c *sb.Context) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "local dependences", "kernel", c.Kernel.Name)
	defer tr.Finish()

	s := &state{
		c:     c,
		index: buckets.New(c.Model),
	}
	for _, bb := range c.Kernel.AllBlocks {
		if bb.Out.T == FT.Call {
			c.Blocks[bb.Out.True].AfterCall = true
		}
	}
	for _, bb := range c.Kernel.AllBlocks {
		buildBlock(s, bb)
	}
	crossBlock(ctx, c)
	for _, n := range c.Nodes {
		FinalizeDistance(c, n)
	}
	if tr.If("dump_deps") {
		tr.Printw("dependence graph", "nodes", len(c.Nodes), "edges", len(c.Edges))
		for _, e := range c.Edges {
			tr.Printw("edge", "edge", e.String())
		}
	}
}

func buildBlock(s *state, bb *gir.BasicBlock) {
	s.index.Clear()
	s.outstanding = s.outstanding[:0]
	for i := 0; i < len(bb.Code); i++ {
		first := bb.Code[i]
		if first.T == IT.Sync || first.T == IT.Nop {
			continue
		}
		group := []*gir.Instr{first}
		for group[len(group)-1].Fused && i+1 < len(bb.Code) {
			i++
			group = append(group, bb.Code[i])
		}
		n := s.c.AddNode(bb.ID, group)
		if first.T == IT.Math {
			s.c.Profile.MathInstructions++
		}
		buildNode(s, n)
	}
	state := s.c.Blocks[bb.ID]
	state.LiveOut = nil
	for _, e := range s.index.Live() {
		state.LiveOut = append(state.LiveOut, sb.LiveOpnd{Node: e.Node, Opnd: e.Opnd})
	}
	state.Outstanding = append([]int{}, s.outstanding...)
	state.PipeEnd = s.pipes
	s.index.Check()
}

// Operands computes the register accesses of a node, writes first
func Operands(c *sb.Context, n *sb.Node) []sb.Opnd {
	out := []sb.Opnd{}
	for k, instr := range n.Instrs {
		for _, op := range instr.Writes() {
			out = append(out, sb.Opnd{Write: true, FP: mustFootprint(c, op), Instr: k})
		}
	}
	for k, instr := range n.Instrs {
		for _, op := range instr.Reads() {
			out = append(out, sb.Opnd{Write: false, FP: mustFootprint(c, op), Instr: k})
		}
	}
	return out
}

func mustFootprint(c *sb.Context, op gir.Operand) footprint.Footprint {
	fp, ok := footprint.FromOperand(op, c.Oracle, c.Model.GRFSize)
	if !ok {
		panic("unresolved indirect operand through a" + strconv.Itoa(op.Addr))
	}
	return fp
}

func buildNode(s *state, n *sb.Node) {
	n.Opnds = Operands(s.c, n)
	pos := s.pipes
	s.kills = s.kills[:0]

	if n.First().IsOrderPoint() {
		orderPoint(s, n)
	} else {
		for _, o := range n.Opnds {
			o := o
			s.index.Scan(o.FP, func(e buckets.Entry, live footprint.Footprint) {
				kind := DEP.Classify(o.Write, e.Write)
				if kind == DEP.InvalidDep {
					return
				}
				dependOn(s, n, e, kind, pos)
				if o.Write && footprint.FullyCovers(o.FP, live) {
					s.kills = append(s.kills, [2]int{e.Node, e.Opnd})
				}
			})
		}
	}
	for _, k := range s.kills {
		s.index.Kill(k[0], k[1])
	}
	if isInOrder(n) {
		s.pipes[n.Pipe] += len(n.Instrs)
		n.PipeID = s.pipes[n.Pipe]
	}
	for i, o := range n.Opnds {
		switch {
		case len(o.FP) == 0:
		case WholeRegisters(n, o):
			s.index.AddWhole(n.ID, i, o.Write, o.FP)
		default:
			s.index.Add(n.ID, i, o.Write, o.FP)
		}
	}
	if n.OutOfOrder {
		s.outstanding = append(s.outstanding, n.ID)
	}
}

// WholeRegisters is true for the destination of an out-of-order
// producer: the scoreboard tracks it by GRF register, so touching any
// byte of those registers is a hazard
func WholeRegisters(n *sb.Node, o sb.Opnd) bool {
	if !n.OutOfOrder || !o.Write {
		return false
	}
	for _, r := range o.FP {
		if r.Space != RS.GRF {
			return false
		}
	}
	return true
}

func isInOrder(n *sb.Node) bool {
	if n.OutOfOrder {
		return false
	}
	switch n.Pipe {
	case P.Int, P.Float, P.Long, P.Math:
		return true
	}
	return false
}

func dependOn(s *state, n *sb.Node, e buckets.Entry, kind DEP.DepType, pos [P.NumPipes]int) {
	prod := s.c.Nodes[e.Node]
	if prod.OutOfOrder {
		s.c.AddEdge(prod.ID, n.ID, kind, false, false)
		prod.ExtendLive(n.ID, n.Block)
		if kind != DEP.WAR {
			// n waits for the destination, so for prod to finish
			s.complete(prod.ID)
		}
		return
	}
	if !NeedsDistance(prod, n, kind) {
		return
	}
	dist := pos[prod.Pipe] - prod.PipeID + 1
	if dist > s.c.Model.MaxDist(prod.Pipe) {
		// the pipe has drained the producer already
		s.kills = append(s.kills, [2]int{e.Node, e.Opnd})
		return
	}
	AddDistDep(n, prod, dist)
}

// NeedsDistance decides whether a hazard on an in-order producer has
// to be waited for. In-order sources are read at issue, and writes of
// one pipe retire in order.
func NeedsDistance(prod, n *sb.Node, kind DEP.DepType) bool {
	switch kind {
	case DEP.WAR:
		return false
	case DEP.WAW:
		return n.OutOfOrder || n.Pipe != prod.Pipe
	}
	return true
}

// AddDistDep records that n waits dist instructions back in the pipe of
// prod, keeping the closest one per producer
func AddDistDep(n, prod *sb.Node, dist int) {
	for i, d := range n.DistDeps {
		if d.Producer == prod.ID {
			if dist < d.Dist {
				n.DistDeps[i].Dist = dist
			}
			return
		}
	}
	n.DistDeps = append(n.DistDeps, sb.DistDep{Producer: prod.ID, Pipe: prod.Pipe, Dist: dist})
}

// orderPoint makes a barrier wait for every out-of-order producer that
// is live or outstanding, and a fence for every such memory send
func orderPoint(s *state, n *sb.Node) {
	fence := n.First().T == IT.Fence
	ordered := func(prod *sb.Node) bool {
		return prod.OutOfOrder && (!fence || IsFenced(prod))
	}
	producers := map[int]bool{}
	wait := func(prod *sb.Node) {
		if producers[prod.ID] {
			return
		}
		producers[prod.ID] = true
		s.c.AddEdge(prod.ID, n.ID, DEP.Order, true, false)
		prod.ExtendLive(n.ID, n.Block)
	}
	for _, id := range s.outstanding {
		if prod := s.c.Nodes[id]; ordered(prod) {
			wait(prod)
		}
	}
	for _, e := range s.index.Live() {
		if prod := s.c.Nodes[e.Node]; ordered(prod) {
			wait(prod)
		}
	}
	s.index.KillIf(func(e buckets.Entry) bool {
		return producers[e.Node]
	})
	for id := range producers {
		s.complete(id)
	}
}

// IsFenced is true for producers a memory fence orders
func IsFenced(n *sb.Node) bool {
	first := n.First()
	return first.T == IT.Send && SF.IsMemory(first.SFID)
}
