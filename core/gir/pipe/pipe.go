package pipe

type Pipe int

func (this Pipe) String() string {
	switch this {
	case None:
		return "none"
	case Int:
		return "int"
	case Float:
		return "float"
	case Long:
		return "long"
	case Math:
		return "math"
	case Send:
		return "send"
	case Dpas:
		return "dpas"
	}
	return "invalid"
}

const (
	InvalidPipe Pipe = iota
	None
	Int
	Float
	Long
	Math
	Send
	Dpas
)

// NumPipes bounds per-pipe counters, indexable by Pipe
const NumPipes = int(Dpas) + 1
