package datatype

type DataType int

func (this DataType) String() string {
	switch this {
	case UB:
		return "ub"
	case B:
		return "b"
	case UW:
		return "uw"
	case W:
		return "w"
	case UD:
		return "ud"
	case D:
		return "d"
	case UQ:
		return "uq"
	case Q:
		return "q"
	case HF:
		return "hf"
	case BF:
		return "bf"
	case F:
		return "f"
	case DF:
		return "df"
	}
	return "?"
}

const (
	InvalidType DataType = iota
	UB
	B
	UW
	W
	UD
	D
	UQ
	Q
	HF
	BF
	F
	DF
)

var ByName = map[string]DataType{
	"ub": UB, "b": B,
	"uw": UW, "w": W,
	"ud": UD, "d": D,
	"uq": UQ, "q": Q,
	"hf": HF, "bf": BF,
	"f": F, "df": DF,
}

func Size(t DataType) int {
	switch t {
	case UB, B:
		return 1
	case UW, W, HF, BF:
		return 2
	case UD, D, F:
		return 4
	case UQ, Q, DF:
		return 8
	}
	return 0
}

func IsFloat(t DataType) bool {
	return t == HF || t == BF || t == F || t == DF
}

// IsLong is true for 64-bit types, which run on the long pipe
func IsLong(t DataType) bool {
	return Size(t) == 8
}
