package syncemit

import (
	"math/bits"

	"swsb/core/gir"
	IT "swsb/core/gir/instrkind"
	SD "swsb/core/gir/syncdir"
	SK "swsb/core/gir/synckind"
	gu "swsb/core/gir/util"
)

// Merge coalesces runs of adjacent sync instructions waiting in the same
// direction into one. Running it twice changes nothing.
func Merge(k *gir.Kernel) {
	for _, bb := range k.AllBlocks {
		code := []*gir.Instr{}
		for _, instr := range bb.Code {
			if len(code) > 0 {
				last := code[len(code)-1]
				if merged, ok := mergeSyncs(last, instr); ok {
					code[len(code)-1] = merged
					continue
				}
			}
			code = append(code, instr)
		}
		bb.Code = code
	}
}

// syncWait reads a sync instruction as a direction and a token mask
func syncWait(instr *gir.Instr) (SD.SyncDir, uint32, bool) {
	if instr.T != IT.Sync {
		return SD.InvalidDir, 0, false
	}
	switch instr.Sync {
	case SK.AllWr:
		return SD.AfterWrite, instr.Mask, true
	case SK.AllRd:
		return SD.AfterRead, instr.Mask, true
	case SK.Nop:
		if instr.SWSB.HasWait && instr.SWSB.Dist == 0 {
			return instr.SWSB.WaitDir, 1 << uint(instr.SWSB.Wait), true
		}
	}
	return SD.InvalidDir, 0, false
}

func mergeSyncs(a, b *gir.Instr) (*gir.Instr, bool) {
	dirA, maskA, okA := syncWait(a)
	dirB, maskB, okB := syncWait(b)
	if !okA || !okB || dirA != dirB {
		return nil, false
	}
	mask := maskA | maskB
	if bits.OnesCount32(mask) == 1 {
		return gu.SyncToken(bits.TrailingZeros32(mask), dirA), true
	}
	return gu.SyncMask(gu.MaskKind(dirA), mask), true
}
