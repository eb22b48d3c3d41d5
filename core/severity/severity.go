package severity

type Severity int

func (this Severity) String() string {
	switch this {
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Information:
		return "info"
	case InternalError:
		return "internal error"
	}
	panic("invalid severity")
}

// IsFatal reports whether a diagnostic of this severity stops the pipeline.
func (this Severity) IsFatal() bool {
	return this == Error || this == InternalError
}

const (
	InvalidSeverity Severity = iota
	Error
	Warning
	Information
	InternalError // should never happen (but will)
)
