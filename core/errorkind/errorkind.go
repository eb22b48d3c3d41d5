package errorkind

import (
	"fmt"
)

type ErrorKind int

const (
	InvalidErrType ErrorKind = iota
	InternalCompilerError

	InvalidSymbol

	ExpectedSymbol
	ExpectedProd
	ExpectedEOF

	FileError
	InvalidHardwareModel

	UnknownLabel
	DuplicatedLabel
	UnreachableBlock
	NoFlow
	InvalidOperand
	OperandOutOfRange
	InvalidExecSize
	MissingDestination
	UnexpectedDestination
	InvalidFusedGroup
	UnresolvedIndirect
	InvalidSFID
	EmptyKernel

	UnsupportedInstr
	TooManyValues

	UnsyncedHazard
	TokenOverflow
	DistanceOutOfBounds
	TokenDoubleHeld

	DegradedCall
)

func (et ErrorKind) String() string {
	v, ok := ErrorCodeMap[et]
	if !ok {
		panic(fmt.Sprintf("%d is not stringified", et))
	}
	return v
}

var ErrorCodeMap = map[ErrorKind]string{
	InvalidErrType:        "E101",
	InternalCompilerError: "E102",

	InvalidSymbol: "E104",

	ExpectedSymbol: "E105",
	ExpectedProd:   "E106",
	ExpectedEOF:    "E107",

	FileError:            "E007",
	InvalidHardwareModel: "E008",

	UnknownLabel:          "E010",
	DuplicatedLabel:       "E011",
	UnreachableBlock:      "E012",
	NoFlow:                "E013",
	InvalidOperand:        "E014",
	OperandOutOfRange:     "E015",
	InvalidExecSize:       "E016",
	MissingDestination:    "E017",
	UnexpectedDestination: "E018",
	InvalidFusedGroup:     "E019",
	UnresolvedIndirect:    "E020",
	InvalidSFID:           "E021",
	EmptyKernel:           "E022",

	UnsupportedInstr: "E030",
	TooManyValues:    "E031",

	UnsyncedHazard:      "E040",
	TokenOverflow:       "E041",
	DistanceOutOfBounds: "E042",
	TokenDoubleHeld:     "E043",

	DegradedCall: "E050",
}
