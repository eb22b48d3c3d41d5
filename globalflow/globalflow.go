// Package globalflow finds the out-of-order producers still in flight
// when control leaves a block, propagates them over the control-flow
// graph and adds the dependencies they cause in other blocks.
package globalflow

import (
	"context"

	et "swsb/core/errorkind"
	"swsb/core/gir"
	FT "swsb/core/gir/flowkind"
	IT "swsb/core/gir/instrkind"
	"swsb/core/sb"
	DEP "swsb/core/sb/deptype"
	"swsb/core/util"
	"swsb/dependence"
	"swsb/footprint"

	"github.com/nikandfor/tlog"
)

// Analyze runs the live-send dataflow of c and adds the global edges.
// It expects the local builder to have run.
func Analyze(ctx context.Context, c *sb.Context) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "global dataflow", "kernel", c.Kernel.Name)
	defer tr.Finish()

	universe(c)
	if len(c.Sends) == 0 {
		tr.Printw("no send outlives its block")
		return
	}
	size := len(c.Sends)
	k := c.Kernel
	c.In = make([]*sb.BitSets, len(k.AllBlocks))
	c.Out = make([]*sb.BitSets, len(k.AllBlocks))
	c.Gen = make([]*sb.BitSets, len(k.AllBlocks))
	c.Kill = make([]*sb.BitSets, len(k.AllBlocks))
	for _, bb := range k.AllBlocks {
		c.In[bb.ID] = sb.NewBitSets(size)
		c.Out[bb.ID] = sb.NewBitSets(size)
		c.Gen[bb.ID] = gen(c, bb)
		c.Kill[bb.ID] = kill(c, bb)
	}
	markDegraded(c)
	rounds := solve(c)
	tr.Printw("dataflow solved", "sends", size, "rounds", rounds)

	for _, bb := range k.AllBlocks {
		replay(c, bb)
	}
	if tr.If("dump_live") {
		tr.Printw("live sends", "sets", c.DumpLive())
	}
}

// universe numbers the out-of-order producers left live or
// outstanding at the end of their block
func universe(c *sb.Context) {
	c.Sends = nil
	number := func(n *sb.Node) {
		if !n.OutOfOrder || n.GlobalID >= 0 {
			return
		}
		n.GlobalID = len(c.Sends)
		c.Sends = append(c.Sends, n.ID)
	}
	for _, state := range c.Blocks {
		for _, l := range state.LiveOut {
			number(c.Nodes[l.Node])
		}
		for _, id := range state.Outstanding {
			number(c.Nodes[id])
		}
	}
}

func gen(c *sb.Context, bb *gir.BasicBlock) *sb.BitSets {
	out := sb.NewBitSets(len(c.Sends))
	for _, l := range c.Blocks[bb.ID].LiveOut {
		n := c.Nodes[l.Node]
		if !n.OutOfOrder {
			continue
		}
		if n.Opnds[l.Opnd].Write {
			out.SetDst(n.GlobalID)
		} else {
			out.SetSrc(n.GlobalID)
		}
	}
	// a send still running leaves its block pending completion even
	// when none of its registers are live any more
	for _, id := range c.Blocks[bb.ID].Outstanding {
		out.SetDst(c.Nodes[id].GlobalID)
	}
	return out
}

// kill holds the sends a block is certain to wait for: a write covering
// the whole operand, a barrier, a fence for memory messages, or the
// full synchronization around a call
func kill(c *sb.Context, bb *gir.BasicBlock) *sb.BitSets {
	out := sb.NewBitSets(len(c.Sends))
	nodes := c.Blocks[bb.ID].Nodes
	for gid, id := range c.Sends {
		send := c.Nodes[id]
		if bb.Out.T == FT.Call {
			out.SetDst(gid)
			out.SetSrc(gid)
			continue
		}
		for _, nid := range nodes {
			n := c.Nodes[nid]
			switch n.First().T {
			case IT.Barrier:
				out.SetDst(gid)
				out.SetSrc(gid)
				continue
			case IT.Fence:
				if dependence.IsFenced(send) {
					out.SetDst(gid)
					out.SetSrc(gid)
				}
				continue
			}
			for _, o := range send.Opnds {
				if covered(n, o.FP) {
					if o.Write {
						out.SetDst(gid)
					} else {
						out.SetSrc(gid)
					}
				}
			}
		}
	}
	return out
}

func covered(n *sb.Node, fp footprint.Footprint) bool {
	for _, o := range n.Opnds {
		if o.Write && footprint.FullyCovers(o.FP, fp) {
			return true
		}
	}
	return false
}

// solve iterates in = U out(pred), out = (in - kill) U gen until
// nothing changes, visiting blocks in reverse post-order. Sets only
// grow.
func solve(c *sb.Context) int {
	k := c.Kernel
	order := append([]gir.BlockID{}, c.CFG.RPO...)
	queued := make([]bool, len(k.AllBlocks))
	for _, b := range order {
		queued[b] = true
	}
	rounds := 0
	for len(order) > 0 {
		b := order[0]
		order = order[1:]
		queued[b] = false
		rounds++
		bb := k.GetBlock(b)

		in := sb.NewBitSets(len(c.Sends))
		for _, p := range bb.Preds {
			in = in.Union(c.Out[p])
		}
		var out *sb.BitSets
		if bb.Out.T == FT.Call {
			out = sb.NewBitSets(len(c.Sends))
		} else {
			out = in.Minus(c.Kill[b]).Union(c.Gen[b])
		}
		if !in.Includes(c.In[b]) || !out.Includes(c.Out[b]) {
			panic("dataflow set of " + bb.Label + " shrank")
		}
		c.In[b] = in
		if out.Equal(c.Out[b]) {
			continue
		}
		c.Out[b] = out
		for _, s := range bb.Succs {
			if !queued[s] {
				queued[s] = true
				order = append(order, s)
			}
		}
	}
	return rounds
}

// tracked is an operand of a live-in send, or with opnd -1 and no
// footprint, the completion of a send no register tracks
type tracked struct {
	send  *sb.Node
	opnd  int
	write bool
	fp    footprint.Footprint
}

// replay walks the block against the sends live at its entry, adding
// an edge for every conflict until the operand is overwritten
func replay(c *sb.Context, bb *gir.BasicBlock) {
	in := c.In[bb.ID]
	list := []*tracked{}
	for _, gid := range in.Members() {
		send := c.Nodes[c.Sends[gid]]
		dst := false
		for i, o := range send.Opnds {
			if len(o.FP) == 0 {
				continue
			}
			if (o.Write && in.IsDst(gid)) || (!o.Write && in.IsSrc(gid)) {
				list = append(list, &tracked{send: send, opnd: i, write: o.Write, fp: o.FP})
				dst = dst || o.Write
			}
		}
		if in.IsDst(gid) && !dst {
			list = append(list, &tracked{send: send, opnd: -1, write: true})
		}
	}
	for _, nid := range c.Blocks[bb.ID].Nodes {
		if len(list) == 0 {
			return
		}
		n := c.Nodes[nid]
		if n.First().IsOrderPoint() {
			list = orderPoint(c, n, list)
			continue
		}
		remaining := list[:0:0]
		for _, t := range list {
			if t.opnd < 0 {
				remaining = append(remaining, t)
				continue
			}
			alive := true
			for _, o := range n.Opnds {
				if !touches(c, t, o.FP) {
					continue
				}
				kind := DEP.Classify(o.Write, t.write)
				if kind == DEP.InvalidDep {
					continue
				}
				c.AddEdge(t.send.ID, n.ID, kind, false, true)
				t.send.ExtendLive(n.ID, n.Block)
				if o.Write && footprint.FullyCovers(o.FP, t.fp) {
					alive = false
				}
			}
			if alive {
				remaining = append(remaining, t)
			}
		}
		list = remaining
	}
}

// touches is true when fp conflicts with the tracked operand, by
// register for a send destination
func touches(c *sb.Context, t *tracked, fp footprint.Footprint) bool {
	if footprint.Overlaps(fp, t.fp) {
		return true
	}
	whole := dependence.WholeRegisters(t.send, t.send.Opnds[t.opnd])
	return whole && footprint.OverlapsAtGranularity(fp, t.fp, c.Model.GRFSize)
}

func orderPoint(c *sb.Context, n *sb.Node, list []*tracked) []*tracked {
	fence := n.First().T == IT.Fence
	remaining := list[:0:0]
	for _, t := range list {
		if fence && !dependence.IsFenced(t.send) {
			remaining = append(remaining, t)
			continue
		}
		c.AddEdge(t.send.ID, n.ID, DEP.Order, true, true)
		t.send.ExtendLive(n.ID, n.Block)
	}
	return remaining
}

// markDegraded flags the sends that may be in flight across an
// external call. Their tokens are released by the full synchronization
// around the call instead of by their consumers.
func markDegraded(c *sb.Context) {
	k := c.Kernel
	reach := make([]*sb.BitSets, len(k.AllBlocks))
	for i := range reach {
		reach[i] = sb.NewBitSets(len(c.Sends))
	}
	// plain propagation without kills, a call synchronizes whatever is
	// still outstanding
	changed := true
	for changed {
		changed = false
		for _, b := range c.CFG.RPO {
			bb := k.GetBlock(b)
			in := sb.NewBitSets(len(c.Sends))
			for _, p := range bb.Preds {
				if k.GetBlock(p).Out.T == FT.Call {
					continue
				}
				in = in.Union(reach[p])
			}
			out := in.Minus(c.Kill[b]).Union(c.Gen[b])
			if bb.Out.T == FT.Call {
				out = in.Union(c.Gen[b])
			}
			if !out.Equal(reach[b]) {
				reach[b] = out
				changed = true
			}
		}
	}
	for _, bb := range k.AllBlocks {
		if bb.Out.T != FT.Call {
			continue
		}
		for _, gid := range reach[bb.ID].Members() {
			n := c.Nodes[c.Sends[gid]]
			if n.Degraded {
				continue
			}
			n.Degraded = true
			c.Profile.DegradedNodes++
			c.Diagnose(util.NewKernelWarning(k, bb, len(bb.Code)-1, et.DegradedCall,
				"send "+n.First().Format(k.GRFSize)+" may be in flight across call to "+bb.Out.Callee))
		}
	}
}
