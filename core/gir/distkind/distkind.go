package distkind

import P "swsb/core/gir/pipe"

type DistKind int

func (this DistKind) String() string {
	switch this {
	case None:
		return ""
	case Int:
		return "I"
	case Float:
		return "F"
	case Long:
		return "L"
	case Math:
		return "M"
	case All:
		return "A"
	}
	return "?"
}

const (
	InvalidDist DistKind = iota
	None
	Int
	Float
	Long
	Math
	All
)

var ByName = map[string]DistKind{
	"I": Int,
	"F": Float,
	"L": Long,
	"M": Math,
	"A": All,
}

func FromPipe(p P.Pipe) DistKind {
	switch p {
	case P.Int:
		return Int
	case P.Float:
		return Float
	case P.Long:
		return Long
	case P.Math:
		return Math
	}
	return All
}

// Covers reports whether a wait of this kind counts instructions of pipe p
func (this DistKind) Covers(p P.Pipe) bool {
	if this == All {
		return true
	}
	return this == FromPipe(p)
}
