package deptype

import SD "swsb/core/gir/syncdir"

type DepType int

func (this DepType) String() string {
	switch this {
	case RAW:
		return "RAW"
	case WAR:
		return "WAR"
	case WAW:
		return "WAW"
	case Order:
		return "ORD"
	}
	return "?"
}

const (
	InvalidDep DepType = iota
	RAW
	WAR
	WAW
	// Order is a plain ordering requirement with no register conflict
	Order
)

// Classify derives the hazard between a new access and a live one.
// Read after read is no hazard.
func Classify(newWrite, liveWrite bool) DepType {
	switch {
	case newWrite && liveWrite:
		return WAW
	case newWrite:
		return WAR
	case liveWrite:
		return RAW
	}
	return InvalidDep
}

// Dir is the token wait direction resolving the dependency
func Dir(d DepType) SD.SyncDir {
	if d == WAR {
		return SD.AfterRead
	}
	return SD.AfterWrite
}
