// Package footprint models the register bytes an operand touches as a
// chain of closed byte ranges, and answers overlap queries on them.
package footprint

import (
	"sort"
	"strconv"
	"strings"

	"swsb/core/gir"
	RS "swsb/core/gir/regspace"
	"swsb/core/hw"
	"swsb/pointsto"
)

type Range struct {
	Space RS.RegSpace
	Left  int
	Right int
}

func (this Range) String() string {
	return this.Space.String() + "[" + strconv.Itoa(this.Left) + "," +
		strconv.Itoa(this.Right) + "]"
}

func (this Range) intersects(other Range) bool {
	return this.Space == other.Space &&
		this.Left <= other.Right && other.Left <= this.Right
}

// Footprint is the chain of ranges of one operand. Indirect operands
// have one link per register the points-to facts allow.
type Footprint []Range

func (this Footprint) String() string {
	out := []string{}
	for _, r := range this {
		out = append(out, r.String())
	}
	return strings.Join(out, "+")
}

// FromOperand computes the footprint of op. ok is false when an
// indirect operand has no points-to facts.
func FromOperand(op gir.Operand, oracle pointsto.Oracle, grfSize int) (fp Footprint, ok bool) {
	if op.Indirect {
		if oracle == nil {
			return nil, false
		}
		targets, found := oracle.Resolve(op.Addr)
		if !found {
			return nil, false
		}
		for _, t := range targets {
			fp = append(fp, direct(t, grfSize))
		}
		return normalize(fp), true
	}
	if !op.IsReg() {
		return nil, true
	}
	return Footprint{direct(op, grfSize)}, true
}

func direct(op gir.Operand, grfSize int) Range {
	return Range{
		Space: op.Space,
		Left:  op.Left(grfSize),
		Right: op.Right(grfSize),
	}
}

// normalize sorts the chain and fuses ranges that touch, so links are
// disjoint
func normalize(fp Footprint) Footprint {
	sort.Slice(fp, func(i, j int) bool {
		if fp[i].Space != fp[j].Space {
			return fp[i].Space < fp[j].Space
		}
		return fp[i].Left < fp[j].Left
	})
	out := Footprint{}
	for _, r := range fp {
		if len(out) > 0 {
			last := &out[len(out)-1]
			if last.Space == r.Space && r.Left <= last.Right+1 {
				if r.Right > last.Right {
					last.Right = r.Right
				}
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

// Overlaps is true when some byte is in both footprints
func Overlaps(a, b Footprint) bool {
	for _, ra := range a {
		for _, rb := range b {
			if ra.intersects(rb) {
				return true
			}
		}
	}
	return false
}

// OverlapsAtGranularity is true when a and b touch a common unit of
// bucketSize bytes
func OverlapsAtGranularity(a, b Footprint, bucketSize int) bool {
	for _, ra := range a {
		for _, rb := range b {
			if ra.Space != rb.Space {
				continue
			}
			if ra.Left/bucketSize <= rb.Right/bucketSize &&
				rb.Left/bucketSize <= ra.Right/bucketSize {
				return true
			}
		}
	}
	return false
}

// FullyCovers is true when every byte of b is inside a
func FullyCovers(a, b Footprint) bool {
	if len(b) == 0 {
		return false
	}
	for _, rb := range b {
		if !covers(a, rb) {
			return false
		}
	}
	return true
}

func covers(a Footprint, target Range) bool {
	parts := []Range{}
	for _, ra := range a {
		if ra.intersects(target) {
			parts = append(parts, ra)
		}
	}
	sort.Slice(parts, func(i, j int) bool {
		return parts[i].Left < parts[j].Left
	})
	next := target.Left
	for _, p := range parts {
		if p.Left > next {
			return false
		}
		if p.Right+1 > next {
			next = p.Right + 1
		}
		if next > target.Right {
			return true
		}
	}
	return next > target.Right
}

// Buckets gives the first and last bucket index range r spans
func Buckets(r Range, m *hw.Model) (int, int) {
	var base, unit, count int
	switch r.Space {
	case RS.GRF:
		base, unit, count = 0, m.GRFSize, m.NumGRF
	case RS.ACC:
		base, unit, count = m.NumGRF, m.GRFSize, m.NumACC
	case RS.FLAG:
		base, unit, count = m.NumGRF+m.NumACC, gir.FlagSize, m.NumFlag
	default:
		panic("footprint in invalid register space")
	}
	first := r.Left / unit
	last := r.Right / unit
	if first < 0 || last >= count {
		panic("footprint " + r.String() + " outside of register file")
	}
	return base + first, base + last
}

// Fits is true when every range lies inside the register file of m
func Fits(fp Footprint, m *hw.Model) bool {
	for _, r := range fp {
		var size int
		switch r.Space {
		case RS.GRF:
			size = m.NumGRF * m.GRFSize
		case RS.ACC:
			size = m.NumACC * m.GRFSize
		case RS.FLAG:
			size = m.NumFlag * gir.FlagSize
		default:
			return false
		}
		if r.Left < 0 || r.Right >= size || r.Left > r.Right {
			return false
		}
	}
	return true
}
