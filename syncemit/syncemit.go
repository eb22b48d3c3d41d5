// Package syncemit writes the scoreboard annotations back into the
// kernel: distances and token assignments on the instructions, and the
// waits every consumer needs, either inline or as sync instructions.
package syncemit

import (
	"context"
	"sort"

	"swsb/core/gir"
	FT "swsb/core/gir/flowkind"
	IT "swsb/core/gir/instrkind"
	SD "swsb/core/gir/syncdir"
	SK "swsb/core/gir/synckind"
	gu "swsb/core/gir/util"
	"swsb/core/sb"
	DEP "swsb/core/sb/deptype"

	"github.com/nikandfor/tlog"
)

// synced holds the tokens known to be synchronized on every path
type synced struct {
	dst uint32
	src uint32
}

func (this synced) meet(other synced) synced {
	return synced{dst: this.dst & other.dst, src: this.src & other.src}
}

func (this *synced) waitFor(t int, dir SD.SyncDir) {
	bit := uint32(1) << uint(t)
	this.src |= bit
	if dir == SD.AfterWrite {
		this.dst |= bit
	}
}

func (this *synced) set(t int) {
	bit := uint32(1) << uint(t)
	this.dst &^= bit
	this.src &^= bit
}

func (this synced) has(t int, dir SD.SyncDir) bool {
	bit := uint32(1) << uint(t)
	if dir == SD.AfterWrite {
		return this.dst&bit != 0
	}
	return this.src&bit != 0
}

type wait struct {
	token int
	dir   SD.SyncDir
}

type emitter struct {
	c   *sb.Context
	all synced
	// emit is false while the analysis iterates, nothing is written
	// then
	emit bool
	code []*gir.Instr
}

// Emit annotates the kernel of c in place
func Emit(ctx context.Context, c *sb.Context) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "sync emission", "kernel", c.Kernel.Name)
	defer tr.Finish()

	k := c.Kernel
	mask := AllTokens(c.Model.TotalTokens)
	e := &emitter{c: c, all: synced{dst: mask, src: mask}}

	in := solve(e)

	for _, n := range c.Nodes {
		annotate(n)
	}
	e.emit = true
	for _, bb := range k.AllBlocks {
		e.code = []*gir.Instr{}
		e.block(bb, in[bb.ID])
		bb.Code = e.code
	}
	Merge(k)
	if tr.If("dump_sync") {
		tr.Printw("annotated kernel", "kernel", k.String())
	}
	tr.Printw("syncs emitted", "syncs", c.Profile.SyncInstructions, "pruned", c.Profile.PrunedEdges)
}

// AllTokens is the mask with the first n tokens set
func AllTokens(n int) uint32 {
	if n >= 32 {
		return ^uint32(0)
	}
	return uint32(1)<<uint(n) - 1
}

// solve iterates the forward must analysis of synchronized tokens to
// its fixed point and returns the state at each block entry
func solve(e *emitter) []synced {
	k := e.c.Kernel
	in := make([]synced, len(k.AllBlocks))
	out := make([]synced, len(k.AllBlocks))
	for i := range out {
		in[i] = e.all
		out[i] = e.all
	}
	changed := true
	for changed {
		changed = false
		for _, b := range e.c.CFG.RPO {
			bb := k.GetBlock(b)
			state := e.all
			for _, p := range bb.Preds {
				state = state.meet(out[p])
			}
			in[b] = state
			next := e.block(bb, state)
			if next != out[b] {
				out[b] = next
				changed = true
			}
		}
	}
	return in
}

func annotate(n *sb.Node) {
	first := n.First()
	first.SWSB = gir.SWSB{}
	if n.Dist > 0 {
		first.SWSB.Dist = n.Dist
		first.SWSB.DistKind = n.DistKind
	}
	if n.HasToken() {
		first.SWSB.HasToken = true
		first.SWSB.Token = n.Token
	}
	for _, instr := range n.Instrs[1:] {
		instr.SWSB = gir.SWSB{}
	}
}

// block runs the transfer function over bb starting from state and,
// while emitting, rebuilds its code
func (this *emitter) block(bb *gir.BasicBlock, state synced) synced {
	state = this.enter(bb, state)
	nodes := this.c.Blocks[bb.ID].Nodes
	next := 0
	for _, instr := range bb.Code {
		if instr.T == IT.Sync {
			continue
		}
		if next < len(nodes) && this.c.Nodes[nodes[next]].First() == instr {
			state = this.node(this.c.Nodes[nodes[next]], state)
			next++
		}
		this.push(instr)
	}
	if bb.Out.T == FT.Call {
		this.syncAll()
		state = this.all
	}
	return state
}

// enter handles the return from an external call, the callee may have
// left any token in flight
func (this *emitter) enter(bb *gir.BasicBlock, state synced) synced {
	if !this.c.Blocks[bb.ID].AfterCall {
		return state
	}
	this.syncAll()
	return this.all
}

func (this *emitter) syncAll() {
	if !this.emit {
		return
	}
	this.push(gu.SyncMask(SK.AllWr, this.all.dst))
	this.c.Profile.SyncInstructions++
	this.c.Profile.AWSyncAll++
}

func (this *emitter) push(instr *gir.Instr) {
	if this.emit {
		this.code = append(this.code, instr)
	}
}

// node resolves the waits of n against state, emits them and returns
// the state after n issues
func (this *emitter) node(n *sb.Node, state synced) synced {
	waits := map[int]SD.SyncDir{}
	for _, id := range n.Preds {
		edge := this.c.Edges[id]
		p := this.c.Nodes[edge.From]
		if !p.OutOfOrder || !p.HasToken() {
			continue
		}
		dir := DEP.Dir(edge.Kind)
		if state.has(p.Token, dir) {
			this.prune(edge, p, n)
			continue
		}
		if old, ok := waits[p.Token]; ok {
			dir = SD.Stronger(old, dir)
		}
		waits[p.Token] = dir
	}
	for t, dir := range waits {
		state.waitFor(t, dir)
	}
	setter := n.HasToken()
	if setter && !state.has(n.Token, SD.AfterWrite) {
		waits[n.Token] = SD.AfterWrite
		state.waitFor(n.Token, SD.AfterWrite)
	}
	this.place(n, setter, waits)
	if setter {
		state.set(n.Token)
	}
	return state
}

func (this *emitter) prune(edge *sb.Edge, p, n *sb.Node) {
	if !this.emit {
		return
	}
	edge.Pruned = true
	this.c.Profile.PrunedEdges++
	if edge.Global {
		this.c.Profile.PrunedGlobalEdges++
	}
	if p.Block != n.Block {
		this.c.Profile.PrunedDiffBB++
	}
}

// place puts the waits of n inline when n carries no token and waits
// on a single one, and in sync instructions before it otherwise
func (this *emitter) place(n *sb.Node, setter bool, waits map[int]SD.SyncDir) {
	if !this.emit || len(waits) == 0 {
		return
	}
	list := sorted(waits)
	if !setter && len(list) == 1 {
		first := n.First()
		first.SWSB.HasWait = true
		first.SWSB.Wait = list[0].token
		first.SWSB.WaitDir = list[0].dir
		return
	}
	for _, dir := range []SD.SyncDir{SD.AfterWrite, SD.AfterRead} {
		var mask uint32
		tokens := []int{}
		for _, w := range list {
			if w.dir == dir {
				mask |= 1 << uint(w.token)
				tokens = append(tokens, w.token)
			}
		}
		switch {
		case len(tokens) == 1:
			this.push(gu.SyncToken(tokens[0], dir))
			this.count(dir, false)
		case len(tokens) > 1:
			this.push(gu.SyncMask(gu.MaskKind(dir), mask))
			this.count(dir, true)
		}
	}
}

func (this *emitter) count(dir SD.SyncDir, all bool) {
	p := &this.c.Profile
	p.SyncInstructions++
	switch {
	case dir == SD.AfterWrite && all:
		p.AWSyncAll++
	case dir == SD.AfterWrite:
		p.AWSyncInstr++
	case all:
		p.ARSyncAll++
	default:
		p.ARSyncInstr++
	}
}

func sorted(waits map[int]SD.SyncDir) []wait {
	out := make([]wait, 0, len(waits))
	for t, dir := range waits {
		out = append(out, wait{token: t, dir: dir})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].token < out[j].token })
	return out
}
