// Package cfg computes the control-flow facts the scoreboard pass
// consumes: predecessor and successor lists, reverse post-order,
// dominators, back edges and the loops they close.
package cfg

import (
	"sort"

	"swsb/core/gir"
)

type Loop struct {
	Header  gir.BlockID
	Latches []gir.BlockID
	// Blocks is sorted by block id
	Blocks []gir.BlockID
	// Start and End are the smallest and largest block ids of the loop
	Start gir.BlockID
	End   gir.BlockID
}

func (this *Loop) Contains(b gir.BlockID) bool {
	i := sort.Search(len(this.Blocks), func(i int) bool {
		return this.Blocks[i] >= b
	})
	return i < len(this.Blocks) && this.Blocks[i] == b
}

type Info struct {
	RPO []gir.BlockID
	// RPOIndex is the position of a block in RPO, -1 if unreachable
	RPOIndex  []int
	IDom      []gir.BlockID
	BackEdges [][2]gir.BlockID
	Loops     []*Loop
}

// Build fills the Preds and Succs lists of every block of k and
// computes the dominance and loop facts
func Build(k *gir.Kernel) *Info {
	n := len(k.AllBlocks)
	for i, bb := range k.AllBlocks {
		bb.ID = gir.BlockID(i)
		bb.Preds = nil
		bb.Succs = nil
	}
	for _, bb := range k.AllBlocks {
		for _, t := range bb.Targets() {
			bb.Succs = append(bb.Succs, t)
			succ := k.GetBlock(t)
			succ.Preds = append(succ.Preds, bb.ID)
		}
	}
	info := &Info{
		RPOIndex: make([]int, n),
		IDom:     make([]gir.BlockID, n),
	}
	for i := range info.RPOIndex {
		info.RPOIndex[i] = -1
		info.IDom[i] = -1
	}
	computeRPO(k, info)
	computeDominators(k, info)
	computeLoops(k, info)
	return info
}

func computeRPO(k *gir.Kernel, info *Info) {
	k.ResetBlocks()
	post := []gir.BlockID{}
	var visit func(bb *gir.BasicBlock)
	visit = func(bb *gir.BasicBlock) {
		bb.Visited = true
		for _, s := range bb.Succs {
			succ := k.GetBlock(s)
			if !succ.Visited {
				visit(succ)
			}
		}
		post = append(post, bb.ID)
	}
	visit(k.FirstBlock())
	for i := len(post) - 1; i >= 0; i-- {
		info.RPOIndex[post[i]] = len(info.RPO)
		info.RPO = append(info.RPO, post[i])
	}
	k.ResetBlocks()
}

// computeDominators is the iterative algorithm of Cooper, Harvey and
// Kennedy over reverse post-order
func computeDominators(k *gir.Kernel, info *Info) {
	start := k.Start
	info.IDom[start] = start
	changed := true
	for changed {
		changed = false
		for _, b := range info.RPO[1:] {
			newIDom := gir.BlockID(-1)
			for _, p := range k.GetBlock(b).Preds {
				if info.IDom[p] == -1 {
					continue
				}
				if newIDom == -1 {
					newIDom = p
				} else {
					newIDom = intersect(info, p, newIDom)
				}
			}
			if newIDom != info.IDom[b] {
				info.IDom[b] = newIDom
				changed = true
			}
		}
	}
}

func intersect(info *Info, a, b gir.BlockID) gir.BlockID {
	for a != b {
		for info.RPOIndex[a] > info.RPOIndex[b] {
			a = info.IDom[a]
		}
		for info.RPOIndex[b] > info.RPOIndex[a] {
			b = info.IDom[b]
		}
	}
	return a
}

// Dominates is true when every path from the entry to b passes a
func (this *Info) Dominates(a, b gir.BlockID) bool {
	if this.IDom[b] == -1 {
		return false
	}
	for {
		if a == b {
			return true
		}
		next := this.IDom[b]
		if next == b {
			return false
		}
		b = next
	}
}

func computeLoops(k *gir.Kernel, info *Info) {
	byHeader := map[gir.BlockID]*Loop{}
	for _, b := range info.RPO {
		for _, s := range k.GetBlock(b).Succs {
			if info.RPOIndex[s] > info.RPOIndex[b] {
				continue
			}
			info.BackEdges = append(info.BackEdges, [2]gir.BlockID{b, s})
			loop, ok := byHeader[s]
			if !ok {
				loop = &Loop{Header: s}
				byHeader[s] = loop
				info.Loops = append(info.Loops, loop)
			}
			loop.Latches = append(loop.Latches, b)
			var body []gir.BlockID
			if info.Dominates(s, b) {
				body = naturalLoop(k, s, b)
			} else {
				// irreducible: take everything between the two in RPO
				body = append(body, info.RPO[info.RPOIndex[s]:info.RPOIndex[b]+1]...)
			}
			loop.Blocks = mergeBlocks(loop.Blocks, body)
		}
	}
	for _, loop := range info.Loops {
		loop.Start = loop.Blocks[0]
		loop.End = loop.Blocks[len(loop.Blocks)-1]
	}
}

func naturalLoop(k *gir.Kernel, header, latch gir.BlockID) []gir.BlockID {
	seen := map[gir.BlockID]bool{header: true}
	body := []gir.BlockID{header}
	stack := []gir.BlockID{latch}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[top] {
			continue
		}
		seen[top] = true
		body = append(body, top)
		stack = append(stack, k.GetBlock(top).Preds...)
	}
	return body
}

func mergeBlocks(a, b []gir.BlockID) []gir.BlockID {
	set := map[gir.BlockID]bool{}
	for _, x := range a {
		set[x] = true
	}
	for _, x := range b {
		set[x] = true
	}
	out := make([]gir.BlockID, 0, len(set))
	for x := range set {
		out = append(out, x)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// LoopsOf lists the loops containing b, outermost first
func (this *Info) LoopsOf(b gir.BlockID) []*Loop {
	out := []*Loop{}
	for _, l := range this.Loops {
		if l.Contains(b) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return len(out[i].Blocks) > len(out[j].Blocks)
	})
	return out
}
