// Package tokenalloc assigns scoreboard tokens to out-of-order
// producers by linear scan over their live intervals.
package tokenalloc

import (
	"context"
	"sort"
	"strconv"

	"swsb/core/gir"
	FT "swsb/core/gir/flowkind"
	IT "swsb/core/gir/instrkind"
	"swsb/core/hw"
	"swsb/core/sb"
	DEP "swsb/core/sb/deptype"
	TS "swsb/core/sb/tokenstate"

	"github.com/nikandfor/tlog"
)

// Interval is the stretch of node ids a token is held for. An interval
// cut by forced reuse before it got past its start has End < Start and
// holds nothing.
type Interval struct {
	Node  int
	Start int
	End   int
	Token int
	// Took is the node the token was forced away from, -1 if none
	Took int
}

func (this *Interval) Empty() bool {
	return this.End < this.Start
}

func (this *Interval) String() string {
	return "#" + strconv.Itoa(this.Node) + " [" + strconv.Itoa(this.Start) + "," +
		strconv.Itoa(this.End) + "] $" + strconv.Itoa(this.Token)
}

type Allocation struct {
	Intervals []*Interval
	// Peak is the largest number of tokens held at once
	Peak int
}

type allocator struct {
	c      *sb.Context
	active []*Interval
	// lastEnd is the end of the last interval that held the token, -1
	// for tokens never used
	lastEnd  []int
	lastNode []int
	next     int
}

// Allocate computes the exclusive sets of the graph, then the live
// intervals, and assigns a token to every out-of-order node some other
// node depends on. Degraded nodes hold their token until the call
// that degraded them.
func Allocate(ctx context.Context, c *sb.Context) *Allocation {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "token allocation", "kernel", c.Kernel.Name, "tokens", c.Model.TotalTokens)
	defer tr.Finish()

	Exclusive(c)
	intervals := Intervals(c)
	a := &allocator{
		c:        c,
		lastEnd:  make([]int, c.Model.TotalTokens),
		lastNode: make([]int, c.Model.TotalTokens),
	}
	for t := range a.lastEnd {
		a.lastEnd[t] = -1
		a.lastNode[t] = -1
	}
	out := &Allocation{}
	for _, iv := range intervals {
		a.expire(iv.Start)
		a.assign(iv)
		a.active = append(a.active, iv)
		if len(a.active) > out.Peak {
			out.Peak = len(a.active)
		}
		out.Intervals = append(out.Intervals, iv)
	}
	a.expire(len(c.Nodes) + 1)

	if tr.If("dump_tokens") {
		for _, iv := range out.Intervals {
			tr.Printw("interval", "interval", iv.String())
		}
	}
	tr.Printw("tokens assigned", "intervals", len(out.Intervals), "peak", out.Peak, "forced", c.Profile.ForcedReuse)
	return out
}

// Exclusive fills, for every edge from an out-of-order producer, the
// other out-of-order producers its consumer waits on
func Exclusive(c *sb.Context) {
	for _, n := range c.Nodes {
		producers := []int{}
		for _, e := range n.Preds {
			from := c.Nodes[c.Edges[e].From]
			if from.OutOfOrder && from.ID != n.ID {
				producers = append(producers, from.ID)
			}
		}
		for _, e := range n.Preds {
			edge := c.Edges[e]
			edge.Exclusive = nil
			for _, p := range producers {
				if p != edge.From {
					edge.Exclusive = append(edge.Exclusive, p)
				}
			}
		}
	}
}

// Intervals lists the live intervals of the nodes needing a token,
// sorted by start
func Intervals(c *sb.Context) []*Interval {
	loops := loopRanges(c)
	calls := callEnds(c)
	out := []*Interval{}
	for _, n := range c.Nodes {
		if !n.OutOfOrder || (len(n.Succs) == 0 && !n.Degraded) {
			continue
		}
		start, end := n.LiveStart, n.LiveEnd
		carried := false
		for _, e := range n.Succs {
			edge := c.Edges[e]
			if edge.LoopCarried {
				carried = true
			}
			if edge.To > end {
				end = edge.To
			}
		}
		if n.Degraded {
			for _, call := range calls {
				if call >= n.ID {
					if call > end {
						end = call
					}
					break
				}
			}
		}
		start, end = extend(loops, n.ID, start, end, carried)
		n.ExtendLive(start, n.LiveStartBB)
		n.ExtendLive(end, n.LiveEndBB)
		out = append(out, &Interval{Node: n.ID, Start: start, End: end, Token: -1, Took: -1})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].Node < out[j].Node
	})
	return out
}

// loopRanges gives the node id range of every loop that has nodes
func loopRanges(c *sb.Context) [][2]int {
	out := [][2]int{}
	if c.CFG == nil {
		return out
	}
	for _, l := range c.CFG.Loops {
		lo, hi := -1, -1
		for _, b := range l.Blocks {
			nodes := c.Blocks[b].Nodes
			if len(nodes) == 0 {
				continue
			}
			if lo == -1 || nodes[0] < lo {
				lo = nodes[0]
			}
			if last := nodes[len(nodes)-1]; last > hi {
				hi = last
			}
		}
		if lo != -1 {
			out = append(out, [2]int{lo, hi})
		}
	}
	return out
}

// callEnds lists, in order, the last node id of every block ending in
// a call
func callEnds(c *sb.Context) []int {
	out := []int{}
	for _, bb := range c.Kernel.AllBlocks {
		if bb.Out.T != FT.Call {
			continue
		}
		if last := lastNode(c, bb.ID); last >= 0 {
			out = append(out, last)
		}
	}
	sort.Ints(out)
	return out
}

func lastNode(c *sb.Context, b gir.BlockID) int {
	nodes := c.Blocks[b].Nodes
	if len(nodes) == 0 {
		return -1
	}
	return nodes[len(nodes)-1]
}

// extend widens [start, end] to whole loops: a range leaving or entering
// a loop, or a hazard carried around it, holds the token for every
// iteration. A range inside a single iteration is left alone.
func extend(loops [][2]int, id, start, end int, carried bool) (int, int) {
	changed := true
	for changed {
		changed = false
		for _, l := range loops {
			lo, hi := l[0], l[1]
			if end < lo || start > hi {
				continue
			}
			inside := start >= lo && end <= hi
			if inside && !(carried && id >= lo && id <= hi) {
				continue
			}
			if lo < start {
				start = lo
				changed = true
			}
			if hi > end {
				end = hi
				changed = true
			}
		}
	}
	return start, end
}

func (this *allocator) expire(pos int) {
	remaining := this.active[:0]
	for _, iv := range this.active {
		if iv.End < pos {
			this.lastEnd[iv.Token] = iv.End
			this.lastNode[iv.Token] = iv.Node
			this.c.Nodes[iv.Node].State = TS.Expired
			continue
		}
		remaining = append(remaining, iv)
	}
	this.active = remaining
}

func (this *allocator) held(t int) *Interval {
	for _, iv := range this.active {
		if iv.Token == t {
			return iv
		}
	}
	return nil
}

func (this *allocator) assign(iv *Interval) {
	n := this.c.Nodes[iv.Node]
	var t int
	if this.c.Model.Quick {
		t = this.next % this.c.Model.TotalTokens
		this.next++
		if holder := this.held(t); holder != nil {
			this.force(n, holder)
			iv.Took = holder.Node
		}
	} else {
		t = this.free()
		if t < 0 {
			holder := this.victim(n)
			t = holder.Token
			this.force(n, holder)
			iv.Took = holder.Node
		}
	}
	iv.Token = t
	n.Token = t
	n.State = TS.Assigned
	this.c.Profile.TokenInstructions++
	if prev := this.lastNode[t]; prev >= 0 && n.ReusedFrom < 0 {
		n.ReusedFrom = prev
	}
	if n.ReusedFrom >= 0 {
		this.countReuse(n)
	}
}

// free picks a token nobody holds: the one released earliest, then the
// lowest never used one
func (this *allocator) free() int {
	best := -1
	for t := range this.lastEnd {
		if this.held(t) != nil || this.lastEnd[t] < 0 {
			continue
		}
		if best < 0 || this.lastEnd[t] < this.lastEnd[best] {
			best = t
		}
	}
	if best >= 0 {
		return best
	}
	for t := range this.lastEnd {
		if this.held(t) == nil {
			return t
		}
	}
	return -1
}

// victim chooses the held token whose producer is expected to be done
// soonest, avoiding producers that share a consumer with n
func (this *allocator) victim(n *sb.Node) *Interval {
	exclusive := map[int]bool{}
	for _, e := range n.Succs {
		for _, p := range this.c.Edges[e].Exclusive {
			exclusive[p] = true
		}
	}
	var best *Interval
	bestCost := 0
	bestExcl := false
	for _, iv := range this.active {
		cost := Overhead(this.c.Model, this.c.Nodes[iv.Node], n)
		excl := exclusive[iv.Node]
		switch {
		case best == nil,
			bestExcl && !excl,
			bestExcl == excl && cost < bestCost,
			bestExcl == excl && cost == bestCost && iv.Token < best.Token:
			best, bestCost, bestExcl = iv, cost, excl
		}
	}
	if best == nil {
		panic("no token to reuse with " + strconv.Itoa(this.c.Model.TotalTokens) + " tokens")
	}
	return best
}

// Overhead estimates how long n would stall waiting for holder if it
// took its token
func Overhead(m *hw.Model, holder, n *sb.Node) int {
	cost := m.WriteLatency(holder.First()) - (n.ID - holder.ID)
	if cost < 0 {
		return 0
	}
	return cost
}

// force takes the token of holder for n: n waits for holder to finish
// before it issues
func (this *allocator) force(n *sb.Node, holder *Interval) {
	remaining := this.active[:0]
	for _, iv := range this.active {
		if iv != holder {
			remaining = append(remaining, iv)
		}
	}
	this.active = remaining
	if n.LiveStart-1 < holder.End {
		holder.End = n.LiveStart - 1
	}
	this.lastEnd[holder.Token] = holder.End
	this.lastNode[holder.Token] = holder.Node
	this.c.Nodes[holder.Node].State = TS.Expired
	if holder.Node != n.ID {
		this.c.AddEdge(holder.Node, n.ID, DEP.Order, true, false)
	}
	n.ReusedFrom = holder.Node
	this.c.Profile.ForcedReuse++
}

// countReuse classifies the wait a reuse implies by what the consumers
// of the previous holder needed from it
func (this *allocator) countReuse(n *sb.Node) {
	p := this.c.Profile
	prev := this.c.Nodes[n.ReusedFrom]
	write, read := false, false
	for _, e := range prev.Succs {
		if this.c.Edges[e].Kind == DEP.WAR {
			read = true
		} else {
			write = true
		}
	}
	p.TokenReuse++
	switch {
	case write && read:
		p.AATokenReuse++
	case read:
		p.ARTokenReuse++
	default:
		p.AWTokenReuse++
	}
	if n.First().T == IT.Math {
		p.MathReuse++
	}
	this.c.Profile = p
}

// Check panics if more than the available tokens are held at once or a
// token is held by two intervals at the same time. Forced reuse cuts
// the previous holder before the new one starts, so the intervals of a
// token never overlap, however long the chain of reuses.
func (this *Allocation) Check(m *hw.Model) {
	for i, a := range this.Intervals {
		if a.Token < 0 || a.Token >= m.TotalTokens {
			panic("interval " + a.String() + " holds no valid token")
		}
		if a.Empty() {
			continue
		}
		for _, b := range this.Intervals[i+1:] {
			if b.Empty() {
				continue
			}
			if a.Token == b.Token && a.Start <= b.End && b.Start <= a.End {
				panic("token held twice by " + a.String() + " and " + b.String())
			}
		}
	}
	if this.Peak > m.TotalTokens {
		panic("more than " + strconv.Itoa(m.TotalTokens) + " tokens held at once")
	}
}
