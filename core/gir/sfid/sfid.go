package sfid

// SFID is the shared function a send is routed to. Only the
// latency class matters here, the descriptor itself is opaque.
type SFID int

func (this SFID) String() string {
	switch this {
	case UGM:
		return "ugm"
	case SLM:
		return "slm"
	case Sampler:
		return "sampler"
	case URB:
		return "urb"
	case Gateway:
		return "gateway"
	}
	return "none"
}

const (
	InvalidSFID SFID = iota
	UGM
	SLM
	Sampler
	URB
	Gateway
)

var ByName = map[string]SFID{
	"ugm":     UGM,
	"slm":     SLM,
	"sampler": Sampler,
	"urb":     URB,
	"gateway": Gateway,
}

// IsMemory is true for sends ordered by a memory fence
func IsMemory(s SFID) bool {
	return s == UGM || s == SLM || s == URB
}
