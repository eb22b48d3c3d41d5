package regspace

type RegSpace int

func (this RegSpace) String() string {
	switch this {
	case GRF:
		return "grf"
	case ACC:
		return "acc"
	case FLAG:
		return "flag"
	}
	return "none"
}

const (
	InvalidSpace RegSpace = iota
	GRF
	ACC
	FLAG
)
