package flowkind

type FlowKind int

func (this FlowKind) String() string {
	switch this {
	case Jmp:
		return "jmp"
	case If:
		return "if"
	case Return:
		return "ret"
	case Exit:
		return "exit"
	case Call:
		return "call"
	}
	return "invalid"
}

const (
	InvalidFlow FlowKind = iota
	Jmp
	If
	Return
	Exit
	Call
)
