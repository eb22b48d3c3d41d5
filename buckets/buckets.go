// Package buckets indexes the live register accesses of the pass by
// register: one bucket per GRF, then the accumulators, then the flags.
// A hazard query only looks at the buckets its footprint spans.
package buckets

import (
	"sort"
	"strconv"

	"swsb/core/hw"
	"swsb/footprint"
)

type Entry struct {
	Node  int
	Opnd  int
	Write bool
	// Whole entries conflict with any access to a register they touch,
	// not only with the bytes they cover
	Whole bool
}

func (this Entry) key() [2]int {
	return [2]int{this.Node, this.Opnd}
}

type live struct {
	entry Entry
	fp    footprint.Footprint
}

type Index struct {
	model   *hw.Model
	buckets [][]Entry
	live    map[[2]int]live
}

func New(m *hw.Model) *Index {
	return &Index{
		model:   m,
		buckets: make([][]Entry, m.NumBuckets()),
		live:    map[[2]int]live{},
	}
}

// Add makes (node, opnd) live in every bucket fp spans
func (this *Index) Add(node, opnd int, write bool, fp footprint.Footprint) {
	this.add(Entry{Node: node, Opnd: opnd, Write: write}, fp)
}

// AddWhole is Add for an access the hardware tracks by whole register
func (this *Index) AddWhole(node, opnd int, write bool, fp footprint.Footprint) {
	this.add(Entry{Node: node, Opnd: opnd, Write: write, Whole: true}, fp)
}

func (this *Index) add(e Entry, fp footprint.Footprint) {
	node, opnd := e.Node, e.Opnd
	if _, ok := this.live[e.key()]; ok {
		panic("operand " + strconv.Itoa(opnd) + " of node " + strconv.Itoa(node) + " added twice")
	}
	this.live[e.key()] = live{entry: e, fp: fp}
	for _, b := range this.span(fp) {
		this.buckets[b] = append(this.buckets[b], e)
	}
}

// span lists the distinct buckets of fp in increasing order
func (this *Index) span(fp footprint.Footprint) []int {
	out := []int{}
	seen := map[int]bool{}
	for _, r := range fp {
		first, last := footprint.Buckets(r, this.model)
		for b := first; b <= last; b++ {
			if !seen[b] {
				seen[b] = true
				out = append(out, b)
			}
		}
	}
	sort.Ints(out)
	return out
}

// Scan visits, once each and in a stable order, the live entries whose
// footprint overlaps fp
func (this *Index) Scan(fp footprint.Footprint, visit func(e Entry, live footprint.Footprint)) {
	seen := map[[2]int]bool{}
	hits := []Entry{}
	for _, b := range this.span(fp) {
		for _, e := range this.buckets[b] {
			if seen[e.key()] {
				continue
			}
			seen[e.key()] = true
			if this.conflicts(e, fp) {
				hits = append(hits, e)
			}
		}
	}
	sortEntries(hits)
	for _, e := range hits {
		visit(e, this.live[e.key()].fp)
	}
}

func (this *Index) conflicts(e Entry, fp footprint.Footprint) bool {
	live := this.live[e.key()].fp
	if footprint.Overlaps(live, fp) {
		return true
	}
	return e.Whole && footprint.OverlapsAtGranularity(live, fp, this.model.GRFSize)
}

// Kill removes (node, opnd) from every bucket it was added to
func (this *Index) Kill(node, opnd int) {
	key := [2]int{node, opnd}
	l, ok := this.live[key]
	if !ok {
		return
	}
	for _, b := range this.span(l.fp) {
		bucket := this.buckets[b]
		for i := 0; i < len(bucket); {
			if bucket[i].key() == key {
				last := len(bucket) - 1
				bucket[i] = bucket[last]
				bucket = bucket[:last]
				continue
			}
			i++
		}
		this.buckets[b] = bucket
	}
	delete(this.live, key)
}

// KillIf kills every live entry satisfying cond
func (this *Index) KillIf(cond func(e Entry) bool) {
	for _, e := range this.Live() {
		if cond(e) {
			this.Kill(e.Node, e.Opnd)
		}
	}
}

// Live lists the live entries sorted by node and operand
func (this *Index) Live() []Entry {
	out := make([]Entry, 0, len(this.live))
	for _, l := range this.live {
		out = append(out, l.entry)
	}
	sortEntries(out)
	return out
}

func (this *Index) Len() int {
	return len(this.live)
}

func (this *Index) Clear() {
	for i := range this.buckets {
		this.buckets[i] = this.buckets[i][:0]
	}
	this.live = map[[2]int]live{}
}

// Check panics unless every live entry sits exactly in the buckets its
// footprint spans, once each
func (this *Index) Check() {
	count := map[[2]int]int{}
	for b, bucket := range this.buckets {
		for _, e := range bucket {
			l, ok := this.live[e.key()]
			if !ok {
				panic("stale entry in bucket " + strconv.Itoa(b))
			}
			if !contains(this.span(l.fp), b) {
				panic("entry of node " + strconv.Itoa(e.Node) + " outside of its span")
			}
			count[e.key()]++
		}
	}
	for key, l := range this.live {
		if count[key] != len(this.span(l.fp)) {
			panic("entry of node " + strconv.Itoa(key[0]) + " missing from its buckets")
		}
	}
}

func contains(list []int, x int) bool {
	i := sort.SearchInts(list, x)
	return i < len(list) && list[i] == x
}

func sortEntries(list []Entry) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Node != list[j].Node {
			return list[i].Node < list[j].Node
		}
		return list[i].Opnd < list[j].Opnd
	})
}
