package dependence

import (
	"context"
	"sort"

	"swsb/core/gir"
	DK "swsb/core/gir/distkind"
	P "swsb/core/gir/pipe"
	"swsb/core/sb"
	DEP "swsb/core/sb/deptype"
	"swsb/footprint"

	"github.com/nikandfor/tlog"
)

// inflight is an in-order write that may still be in its pipe when
// control enters a block, age instructions of its pipe ago
type inflight map[sb.LiveOpnd]int

func (this inflight) merge(other inflight) bool {
	changed := false
	for k, age := range other {
		old, ok := this[k]
		if !ok || age < old {
			this[k] = age
			changed = true
		}
	}
	return changed
}

func (this inflight) sorted() []sb.LiveOpnd {
	out := make([]sb.LiveOpnd, 0, len(this))
	for k := range this {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Node != out[j].Node {
			return out[i].Node < out[j].Node
		}
		return out[i].Opnd < out[j].Opnd
	})
	return out
}

// crossBlock adds the distance dependencies whose producer sits in
// another block. In-flight writes are propagated along every edge of
// the graph, back edges included, aging by the instructions each block
// issues in their pipe, until no block sees a younger write.
func crossBlock(ctx context.Context, c *sb.Context) {
	tr := tlog.SpanFromContext(ctx)
	k := c.Kernel
	in := make([]inflight, len(k.AllBlocks))
	out := make([]inflight, len(k.AllBlocks))
	for i := range in {
		in[i] = inflight{}
		out[i] = local(c, gir.BlockID(i))
	}
	rounds := 0
	changed := true
	for changed {
		changed = false
		rounds++
		for _, bb := range k.AllBlocks {
			for _, p := range bb.Preds {
				if in[bb.ID].merge(out[p]) {
					changed = true
				}
			}
			if out[bb.ID].merge(through(c, bb.ID, in[bb.ID])) {
				changed = true
			}
		}
	}
	tr.Printw("in-flight writes propagated", "rounds", rounds)

	for _, bb := range k.AllBlocks {
		for _, key := range in[bb.ID].sorted() {
			waitIncoming(c, bb.ID, key, in[bb.ID][key])
		}
	}
	afterCall(c)
}

// local lists the in-order writes the block leaves in flight
func local(c *sb.Context, b gir.BlockID) inflight {
	state := c.Blocks[b]
	out := inflight{}
	for _, l := range state.LiveOut {
		prod := c.Nodes[l.Node]
		if !isInOrder(prod) || !prod.Opnds[l.Opnd].Write {
			continue
		}
		age := state.PipeEnd[prod.Pipe] - prod.PipeID
		if age+1 <= c.Model.MaxDist(prod.Pipe) {
			out[l] = age
		}
	}
	return out
}

// through ages the incoming writes across block b, dropping those that
// drain or get overwritten
func through(c *sb.Context, b gir.BlockID, in inflight) inflight {
	out := inflight{}
	for key, age := range in {
		prod := c.Nodes[key.Node]
		fp := prod.Opnds[key.Opnd].FP
		alive := true
		for _, id := range c.Blocks[b].Nodes {
			n := c.Nodes[id]
			if writesOver(n, fp) {
				alive = false
				break
			}
			if isInOrder(n) && n.Pipe == prod.Pipe {
				age += len(n.Instrs)
			}
		}
		if alive && age+1 <= c.Model.MaxDist(prod.Pipe) {
			out[key] = age
		}
	}
	return out
}

func writesOver(n *sb.Node, fp footprint.Footprint) bool {
	for _, o := range n.Opnds {
		if o.Write && footprint.FullyCovers(o.FP, fp) {
			return true
		}
	}
	return false
}

// waitIncoming adds the distance dependencies of block b on a write
// that entered it age instructions old
func waitIncoming(c *sb.Context, b gir.BlockID, key sb.LiveOpnd, age int) {
	prod := c.Nodes[key.Node]
	fp := prod.Opnds[key.Opnd].FP
	max := c.Model.MaxDist(prod.Pipe)
	q := 0
	for _, id := range c.Blocks[b].Nodes {
		n := c.Nodes[id]
		dist := age + q + 1
		if dist > max {
			return
		}
		if !n.First().IsOrderPoint() {
			for _, o := range n.Opnds {
				if !footprint.Overlaps(o.FP, fp) {
					continue
				}
				kind := DEP.Classify(o.Write, true)
				if NeedsDistance(prod, n, kind) {
					AddDistDep(n, prod, dist)
				}
			}
		}
		if writesOver(n, fp) {
			return
		}
		if isInOrder(n) && n.Pipe == prod.Pipe {
			q += len(n.Instrs)
		}
	}
}

// afterCall makes the first node after an external call wait for every
// in-order pipe, the callee may have left anything in flight
func afterCall(c *sb.Context) {
	pending := []gir.BlockID{}
	for i, state := range c.Blocks {
		if state.AfterCall {
			pending = append(pending, gir.BlockID(i))
		}
	}
	seen := map[gir.BlockID]bool{}
	for len(pending) > 0 {
		b := pending[0]
		pending = pending[1:]
		if seen[b] {
			continue
		}
		seen[b] = true
		state := c.Blocks[b]
		if len(state.Nodes) == 0 {
			pending = append(pending, c.Kernel.GetBlock(b).Succs...)
			continue
		}
		n := c.Nodes[state.Nodes[0]]
		n.DistDeps = append(n.DistDeps, sb.DistDep{Producer: -1, Pipe: P.None, Dist: 1})
	}
}

// FinalizeDistance settles the distance annotation of n. With
// producers in a single pipe the closest one is named. Producers spread
// over several pipes make the node wait on all of them.
func FinalizeDistance(c *sb.Context, n *sb.Node) {
	if len(n.DistDeps) == 0 {
		return
	}
	pipe := n.DistDeps[0].Pipe
	dist := n.DistDeps[0].Dist
	many := false
	for _, d := range n.DistDeps[1:] {
		if d.Pipe != pipe {
			many = true
		}
		if d.Dist < dist {
			dist = d.Dist
		}
	}
	if dist > c.Model.MaxDistValue {
		dist = c.Model.MaxDistValue
	}
	n.Dist = dist
	if many || pipe == P.None {
		n.DistKind = DK.All
	} else {
		n.DistKind = DK.FromPipe(pipe)
	}
	c.Profile.DistInstructions++
}
