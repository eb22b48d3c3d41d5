package instrkind

type InstrKind int

func (this InstrKind) String() string {
	switch this {
	case Mov:
		return "mov"
	case Add:
		return "add"
	case Mul:
		return "mul"
	case Mad:
		return "mad"
	case And:
		return "and"
	case Or:
		return "or"
	case Xor:
		return "xor"
	case Shl:
		return "shl"
	case Shr:
		return "shr"
	case Cmp:
		return "cmp"
	case Sel:
		return "sel"
	case Math:
		return "math"
	case Send:
		return "send"
	case Dpas:
		return "dpas"
	case Sync:
		return "sync"
	case Nop:
		return "nop"
	case Barrier:
		return "barrier"
	case Fence:
		return "fence"
	}
	return "invalid"
}

const (
	InvalidInstr InstrKind = iota

	Mov
	Add
	Mul
	Mad
	And
	Or
	Xor
	Shl
	Shr
	Cmp
	Sel

	Math
	Send
	Dpas

	Sync
	Nop
	Barrier
	Fence
)

var ByName = map[string]InstrKind{
	"mov":     Mov,
	"add":     Add,
	"mul":     Mul,
	"mad":     Mad,
	"and":     And,
	"or":      Or,
	"xor":     Xor,
	"shl":     Shl,
	"shr":     Shr,
	"cmp":     Cmp,
	"sel":     Sel,
	"math":    Math,
	"send":    Send,
	"dpas":    Dpas,
	"sync":    Sync,
	"nop":     Nop,
	"barrier": Barrier,
	"fence":   Fence,
}

// IsALU is true for instructions executed by the in-order ALU pipes
func IsALU(k InstrKind) bool {
	return k >= Mov && k <= Sel
}

// IsMarker is true for instructions that neither read nor write registers
func IsMarker(k InstrKind) bool {
	return k == Sync || k == Nop || k == Barrier || k == Fence
}

// NumSrcs is the maximum number of sources the instruction takes
func NumSrcs(k InstrKind) int {
	switch k {
	case Mov:
		return 1
	case Mad, Dpas:
		return 3
	case Math:
		return 2
	case Send:
		return 2
	case Sync, Nop, Barrier, Fence:
		return 0
	}
	return 2
}
