package tokenstate

type TokenState int

func (this TokenState) String() string {
	switch this {
	case Unassigned:
		return "unassigned"
	case Assigned:
		return "assigned"
	case Expired:
		return "expired"
	}
	return "?"
}

const (
	InvalidState TokenState = iota
	Unassigned
	Assigned
	Expired
)
