// Package verifier checks an annotated kernel without looking at how
// the annotations were computed. It replays every block over a may
// state of what can still be in flight and reports each access that
// touches it without a distance or token wait covering it.
package verifier

import (
	"context"
	"strconv"

	"swsb/cfg"
	. "swsb/core"
	et "swsb/core/errorkind"
	"swsb/core/gir"
	DK "swsb/core/gir/distkind"
	FT "swsb/core/gir/flowkind"
	IT "swsb/core/gir/instrkind"
	P "swsb/core/gir/pipe"
	SF "swsb/core/gir/sfid"
	SD "swsb/core/gir/syncdir"
	SK "swsb/core/gir/synckind"
	"swsb/core/hw"
	"swsb/core/util"
	"swsb/footprint"
	"swsb/pointsto"

	"github.com/nikandfor/tlog"
)

type send struct {
	token      int
	memory     bool
	dst        footprint.Footprint
	src        footprint.Footprint
	dstPending bool
	srcPending bool
}

type write struct {
	pipe P.Pipe
	fp   footprint.Footprint
	// age counts the instructions of the pipe issued after the write
	age int
}

type state struct {
	sends  map[*gir.Instr]send
	writes map[*gir.Instr]write
	// set after an external call until the kernel waits for everything
	wildSends  bool
	wildWrites bool
}

func newState() *state {
	return &state{
		sends:  map[*gir.Instr]send{},
		writes: map[*gir.Instr]write{},
	}
}

func (this *state) clone() *state {
	out := newState()
	for k, v := range this.sends {
		out.sends[k] = v
	}
	for k, v := range this.writes {
		out.writes[k] = v
	}
	out.wildSends = this.wildSends
	out.wildWrites = this.wildWrites
	return out
}

// join adds to this whatever may be in flight in other
func (this *state) join(other *state) {
	for k, v := range other.sends {
		old, ok := this.sends[k]
		if ok {
			v.dstPending = v.dstPending || old.dstPending
			v.srcPending = v.srcPending || old.srcPending
		}
		this.sends[k] = v
	}
	for k, v := range other.writes {
		old, ok := this.writes[k]
		if ok && old.age < v.age {
			v = old
		}
		this.writes[k] = v
	}
	this.wildSends = this.wildSends || other.wildSends
	this.wildWrites = this.wildWrites || other.wildWrites
}

func (this *state) equal(other *state) bool {
	if len(this.sends) != len(other.sends) || len(this.writes) != len(other.writes) ||
		this.wildSends != other.wildSends || this.wildWrites != other.wildWrites {
		return false
	}
	for k, v := range this.sends {
		o, ok := other.sends[k]
		if !ok || o.dstPending != v.dstPending || o.srcPending != v.srcPending {
			return false
		}
	}
	for k, v := range this.writes {
		o, ok := other.writes[k]
		if !ok || o.age != v.age {
			return false
		}
	}
	return true
}

type verifier struct {
	k      *gir.Kernel
	m      *hw.Model
	oracle pointsto.Oracle
	report bool
	errs   []*Error
	seen   map[*gir.Instr]bool
}

// Verify returns one diagnostic per instruction that may observe a
// hazard, uses a token it cannot hold, or carries a distance the
// hardware cannot encode
func Verify(ctx context.Context, k *gir.Kernel, m *hw.Model, oracle pointsto.Oracle) []*Error {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "verification", "kernel", k.Name)
	defer tr.Finish()

	info := cfg.Build(k)
	v := &verifier{k: k, m: m, oracle: oracle, seen: map[*gir.Instr]bool{}}
	in := make([]*state, len(k.AllBlocks))
	out := make([]*state, len(k.AllBlocks))
	for i := range in {
		in[i] = newState()
		out[i] = newState()
	}
	changed := true
	for changed {
		changed = false
		for _, b := range info.RPO {
			bb := k.GetBlock(b)
			entry := newState()
			for _, p := range bb.Preds {
				entry.join(out[p])
				if k.GetBlock(p).Out.T == FT.Call {
					entry.wildSends = true
					entry.wildWrites = true
				}
			}
			in[b] = entry
			next := v.block(bb, entry.clone())
			if !next.equal(out[b]) {
				out[b] = next
				changed = true
			}
		}
	}
	v.report = true
	for _, b := range info.RPO {
		v.block(k.GetBlock(b), in[b].clone())
	}
	tr.Printw("kernel verified", "errors", len(v.errs))
	return v.errs
}

func (this *verifier) fail(bb *gir.BasicBlock, index int, kind et.ErrorKind, message string) {
	if !this.report {
		return
	}
	instr := bb.Code[index]
	if this.seen[instr] {
		return
	}
	this.seen[instr] = true
	this.errs = append(this.errs, util.NewKernelError(this.k, bb, index, kind, message))
}

func (this *verifier) block(bb *gir.BasicBlock, s *state) *state {
	for i := 0; i < len(bb.Code); i++ {
		instr := bb.Code[i]
		if instr.T == IT.Sync {
			this.sync(s, instr)
			continue
		}
		if instr.T == IT.Nop {
			continue
		}
		start := i
		for bb.Code[i].Fused && i+1 < len(bb.Code) {
			i++
		}
		this.group(bb, start, i, s)
	}
	if bb.Out.T == FT.Call {
		for _, snd := range s.sends {
			if snd.dstPending || snd.srcPending {
				this.fail(bb, len(bb.Code)-1, et.UnsyncedHazard,
					"out-of-order operation in flight across call to "+bb.Out.Callee)
				break
			}
		}
	}
	return s
}

func (this *verifier) sync(s *state, instr *gir.Instr) {
	switch instr.Sync {
	case SK.AllWr:
		this.waitMask(s, instr.Mask, SD.AfterWrite)
		if instr.Mask == allTokens(this.m.TotalTokens) {
			s.wildSends = false
		}
	case SK.AllRd:
		this.waitMask(s, instr.Mask, SD.AfterRead)
	case SK.Nop:
		if instr.SWSB.HasWait {
			this.waitMask(s, 1<<uint(instr.SWSB.Wait), instr.SWSB.WaitDir)
		}
	}
}

func allTokens(n int) uint32 {
	if n >= 32 {
		return ^uint32(0)
	}
	return uint32(1)<<uint(n) - 1
}

func (this *verifier) waitMask(s *state, mask uint32, dir SD.SyncDir) {
	for k, snd := range s.sends {
		if snd.token < 0 || mask&(1<<uint(snd.token)) == 0 {
			continue
		}
		snd.srcPending = false
		if dir == SD.AfterWrite {
			snd.dstPending = false
		}
		if !snd.dstPending && !snd.srcPending {
			delete(s.sends, k)
			continue
		}
		s.sends[k] = snd
	}
}

// waitDistance retires the in-order writes a distance of kind kind
// and value d waits for
func (this *verifier) waitDistance(s *state, kind DK.DistKind, d int) {
	for k, w := range s.writes {
		if kind.Covers(w.pipe) && w.age+1 >= d {
			delete(s.writes, k)
		}
	}
	if kind == DK.All && d == 1 {
		s.wildWrites = false
	}
}

func (this *verifier) footprints(instr *gir.Instr) (reads, writes []footprint.Footprint) {
	for _, op := range instr.Reads() {
		if fp, ok := footprint.FromOperand(op, this.oracle, this.m.GRFSize); ok {
			reads = append(reads, fp)
		}
	}
	for _, op := range instr.Writes() {
		if fp, ok := footprint.FromOperand(op, this.oracle, this.m.GRFSize); ok {
			writes = append(writes, fp)
		}
	}
	return reads, writes
}

// group checks and then issues bb.Code[first..last], a fused group or a
// single instruction. Only the first instruction carries annotations.
func (this *verifier) group(bb *gir.BasicBlock, first, last int, s *state) {
	head := bb.Code[first]
	sw := head.SWSB
	if sw.HasWait {
		this.waitMask(s, 1<<uint(sw.Wait), sw.WaitDir)
	}
	if sw.Dist > 0 {
		if sw.Dist > this.m.MaxDistValue {
			this.fail(bb, first, et.DistanceOutOfBounds,
				"distance "+strconv.Itoa(sw.Dist)+" beyond "+strconv.Itoa(this.m.MaxDistValue))
		}
		this.waitDistance(s, sw.DistKind, sw.Dist)
	}
	if s.wildSends || s.wildWrites {
		this.fail(bb, first, et.UnsyncedHazard, "issued after a call without waiting for the callee")
	}
	if head.IsOrderPoint() {
		this.orderPoint(bb, first, s)
	}

	outOfOrder := head.IsOutOfOrder(this.m.MathUsesToken)
	pipe := head.Pipe()
	for i := first; i <= last; i++ {
		reads, writes := this.footprints(bb.Code[i])
		this.conflicts(bb, first, s, reads, writes, outOfOrder, pipe)
	}

	if sw.HasToken {
		if sw.Token < 0 || sw.Token >= this.m.TotalTokens {
			this.fail(bb, first, et.TokenOverflow,
				"token $"+strconv.Itoa(sw.Token)+" beyond "+strconv.Itoa(this.m.TotalTokens)+" tokens")
		}
		for _, snd := range s.sends {
			if snd.token == sw.Token && (snd.dstPending || snd.srcPending) {
				this.fail(bb, first, et.TokenDoubleHeld,
					"token $"+strconv.Itoa(sw.Token)+" set while still in use")
				break
			}
		}
	}
	this.issue(s, bb, first, last, outOfOrder, pipe)
}

func (this *verifier) orderPoint(bb *gir.BasicBlock, index int, s *state) {
	fence := bb.Code[index].T == IT.Fence
	for _, snd := range s.sends {
		if fence && !snd.memory {
			continue
		}
		if snd.dstPending {
			this.fail(bb, index, et.UnsyncedHazard, bb.Code[index].T.String()+" with an operation in flight")
			return
		}
	}
}

func (this *verifier) conflicts(bb *gir.BasicBlock, index int, s *state, reads, writes []footprint.Footprint, outOfOrder bool, pipe P.Pipe) {
	touches := append(append([]footprint.Footprint{}, reads...), writes...)
	for _, snd := range s.sends {
		for _, fp := range touches {
			if snd.dstPending && footprint.Overlaps(fp, snd.dst) {
				this.fail(bb, index, et.UnsyncedHazard, "access to "+snd.dst.String()+" before the operation writing it completes")
				return
			}
		}
		for _, fp := range writes {
			if snd.srcPending && footprint.Overlaps(fp, snd.src) {
				this.fail(bb, index, et.UnsyncedHazard, "write to "+fp.String()+" before an operation reads it")
				return
			}
		}
	}
	for _, w := range s.writes {
		for _, fp := range reads {
			if footprint.Overlaps(fp, w.fp) {
				this.fail(bb, index, et.UnsyncedHazard, "read of "+fp.String()+" while a "+w.pipe.String()+" write is in flight")
				return
			}
		}
		if !outOfOrder && pipe == w.pipe {
			continue
		}
		for _, fp := range writes {
			if footprint.Overlaps(fp, w.fp) {
				this.fail(bb, index, et.UnsyncedHazard, "write of "+fp.String()+" while a "+w.pipe.String()+" write is in flight")
				return
			}
		}
	}
}

// issue updates s with the effects of the group
func (this *verifier) issue(s *state, bb *gir.BasicBlock, first, last int, outOfOrder bool, pipe P.Pipe) {
	head := bb.Code[first]
	all := []footprint.Footprint{}
	for i := first; i <= last; i++ {
		_, writes := this.footprints(bb.Code[i])
		all = append(all, writes...)
	}
	for k, w := range s.writes {
		for _, fp := range all {
			if footprint.FullyCovers(fp, w.fp) {
				delete(s.writes, k)
				break
			}
		}
	}
	if outOfOrder {
		snd := send{
			token:      -1,
			memory:     head.T == IT.Send && SF.IsMemory(head.SFID),
			dstPending: true,
			srcPending: true,
		}
		if head.SWSB.HasToken {
			snd.token = head.SWSB.Token
		}
		reads, writes := this.footprints(head)
		for _, fp := range writes {
			snd.dst = append(snd.dst, fp...)
		}
		for _, fp := range reads {
			snd.src = append(snd.src, fp...)
		}
		s.sends[head] = snd
		return
	}
	switch pipe {
	case P.Int, P.Float, P.Long, P.Math:
	default:
		return
	}
	count := last - first + 1
	max := this.m.MaxDist(pipe)
	for k, w := range s.writes {
		if w.pipe != pipe {
			continue
		}
		w.age += count
		if w.age+1 > max {
			delete(s.writes, k)
			continue
		}
		s.writes[k] = w
	}
	for i := first; i <= last; i++ {
		_, writes := this.footprints(bb.Code[i])
		for _, fp := range writes {
			s.writes[bb.Code[i]] = write{pipe: pipe, fp: fp, age: 0}
		}
	}
}
