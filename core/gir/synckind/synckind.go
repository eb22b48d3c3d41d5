package synckind

type SyncKind int

func (this SyncKind) String() string {
	switch this {
	case Nop:
		return "nop"
	case AllRd:
		return "allrd"
	case AllWr:
		return "allwr"
	}
	return "?"
}

const (
	InvalidSync SyncKind = iota
	Nop
	AllRd
	AllWr
)

var ByName = map[string]SyncKind{
	"nop":   Nop,
	"allrd": AllRd,
	"allwr": AllWr,
}
