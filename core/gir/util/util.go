package util

import (
	"swsb/core/gir"
	DT "swsb/core/gir/datatype"
	IT "swsb/core/gir/instrkind"
	RS "swsb/core/gir/regspace"
	SF "swsb/core/gir/sfid"
	SD "swsb/core/gir/syncdir"
	SK "swsb/core/gir/synckind"
)

// GRF is the region of n whole registers starting at reg
func GRF(reg, n, grfSize int) gir.Operand {
	return gir.Operand{
		Space: RS.GRF,
		Reg:   reg,
		Size:  n * grfSize,
	}
}

// Sub is the region [off, off+size) inside register reg
func Sub(reg, off, size int) gir.Operand {
	return gir.Operand{
		Space: RS.GRF,
		Reg:   reg,
		Off:   off,
		Size:  size,
	}
}

func Acc(reg, grfSize int) gir.Operand {
	return gir.Operand{
		Space: RS.ACC,
		Reg:   reg,
		Size:  grfSize,
	}
}

func Flag(reg int) gir.Operand {
	return gir.Operand{
		Space: RS.FLAG,
		Reg:   reg,
		Size:  gir.FlagSize,
	}
}

func Indirect(addr int) gir.Operand {
	return gir.Operand{
		Indirect: true,
		Addr:     addr,
	}
}

func Imm(v int64) gir.Operand {
	return gir.Operand{
		Imm:   true,
		Value: v,
	}
}

func ALU(op IT.InstrKind, t DT.DataType, exec int, dst gir.Operand, srcs ...gir.Operand) *gir.Instr {
	return &gir.Instr{
		T:        op,
		Type:     t,
		ExecSize: exec,
		Dst:      dst,
		Srcs:     srcs,
	}
}

func Math(fn string, t DT.DataType, exec int, dst gir.Operand, srcs ...gir.Operand) *gir.Instr {
	return &gir.Instr{
		T:        IT.Math,
		Func:     fn,
		Type:     t,
		ExecSize: exec,
		Dst:      dst,
		Srcs:     srcs,
	}
}

// Send builds a send; dst may be empty for stores, data may be
// empty for loads
func Send(s SF.SFID, exec int, dst, addr, data gir.Operand) *gir.Instr {
	srcs := []gir.Operand{addr}
	if !data.IsEmpty() {
		srcs = append(srcs, data)
	}
	return &gir.Instr{
		T:        IT.Send,
		SFID:     s,
		ExecSize: exec,
		Dst:      dst,
		Srcs:     srcs,
	}
}

func Dpas(t DT.DataType, exec int, dst, acc, a, b gir.Operand) *gir.Instr {
	return &gir.Instr{
		T:        IT.Dpas,
		Type:     t,
		ExecSize: exec,
		Dst:      dst,
		Srcs:     []gir.Operand{acc, a, b},
	}
}

func Barrier() *gir.Instr {
	return &gir.Instr{T: IT.Barrier}
}

func Fence() *gir.Instr {
	return &gir.Instr{T: IT.Fence}
}

// SyncMask waits on every token of mask, in direction of kind
func SyncMask(kind SK.SyncKind, mask uint32) *gir.Instr {
	return &gir.Instr{
		T:    IT.Sync,
		Sync: kind,
		Mask: mask,
	}
}

// SyncToken waits on a single token
func SyncToken(token int, dir SD.SyncDir) *gir.Instr {
	i := &gir.Instr{
		T:    IT.Sync,
		Sync: SK.Nop,
	}
	i.SWSB.HasWait = true
	i.SWSB.Wait = token
	i.SWSB.WaitDir = dir
	return i
}

// MaskKind is the sync kind waiting on tokens in direction dir
func MaskKind(dir SD.SyncDir) SK.SyncKind {
	if dir == SD.AfterWrite {
		return SK.AllWr
	}
	return SK.AllRd
}
