package sb

import (
	"strconv"
	"strings"

	"github.com/xojoc/bitset"
)

// BitSets is a pair of sets over the global send universe: Dst holds
// sends whose destination may still be in flight, Src sends whose
// sources may still be unread.
type BitSets struct {
	Dst  *bitset.BitSet
	Src  *bitset.BitSet
	size int
}

func NewBitSets(size int) *BitSets {
	return &BitSets{
		Dst:  &bitset.BitSet{},
		Src:  &bitset.BitSet{},
		size: size,
	}
}

func (this *BitSets) Size() int {
	return this.size
}

func (this *BitSets) SetDst(i int) {
	this.check(i)
	this.Dst.Set(i)
}

func (this *BitSets) SetSrc(i int) {
	this.check(i)
	this.Src.Set(i)
}

func (this *BitSets) IsDst(i int) bool {
	return this.Dst.Get(i)
}

func (this *BitSets) IsSrc(i int) bool {
	return this.Src.Get(i)
}

func (this *BitSets) check(i int) {
	if i < 0 || i >= this.size {
		panic("bit " + strconv.Itoa(i) + " outside of universe")
	}
}

func (this *BitSets) Clone() *BitSets {
	out := NewBitSets(this.size)
	for i := 0; i < this.size; i++ {
		if this.Dst.Get(i) {
			out.Dst.Set(i)
		}
		if this.Src.Get(i) {
			out.Src.Set(i)
		}
	}
	return out
}

// Union returns a new set holding the members of both
func (this *BitSets) Union(other *BitSets) *BitSets {
	out := NewBitSets(this.size)
	for i := 0; i < this.size; i++ {
		if this.Dst.Get(i) || other.Dst.Get(i) {
			out.Dst.Set(i)
		}
		if this.Src.Get(i) || other.Src.Get(i) {
			out.Src.Set(i)
		}
	}
	return out
}

// Minus returns a new set holding the members of this not in other
func (this *BitSets) Minus(other *BitSets) *BitSets {
	out := NewBitSets(this.size)
	for i := 0; i < this.size; i++ {
		if this.Dst.Get(i) && !other.Dst.Get(i) {
			out.Dst.Set(i)
		}
		if this.Src.Get(i) && !other.Src.Get(i) {
			out.Src.Set(i)
		}
	}
	return out
}

func (this *BitSets) Equal(other *BitSets) bool {
	for i := 0; i < this.size; i++ {
		if this.Dst.Get(i) != other.Dst.Get(i) ||
			this.Src.Get(i) != other.Src.Get(i) {
			return false
		}
	}
	return true
}

// Includes is true when every member of other is in this
func (this *BitSets) Includes(other *BitSets) bool {
	for i := 0; i < this.size; i++ {
		if other.Dst.Get(i) && !this.Dst.Get(i) {
			return false
		}
		if other.Src.Get(i) && !this.Src.Get(i) {
			return false
		}
	}
	return true
}

func (this *BitSets) IsEmpty() bool {
	for i := 0; i < this.size; i++ {
		if this.Dst.Get(i) || this.Src.Get(i) {
			return false
		}
	}
	return true
}

// Members lists the ids present on either side
func (this *BitSets) Members() []int {
	out := []int{}
	for i := 0; i < this.size; i++ {
		if this.Dst.Get(i) || this.Src.Get(i) {
			out = append(out, i)
		}
	}
	return out
}

func (this *BitSets) String() string {
	dst := []string{}
	src := []string{}
	for i := 0; i < this.size; i++ {
		if this.Dst.Get(i) {
			dst = append(dst, strconv.Itoa(i))
		}
		if this.Src.Get(i) {
			src = append(src, strconv.Itoa(i))
		}
	}
	return "dst{" + strings.Join(dst, " ") + "} src{" + strings.Join(src, " ") + "}"
}
