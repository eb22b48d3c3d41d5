package util

import (
	. "swsb/core"
	et "swsb/core/errorkind"
	"swsb/core/gir"
	sv "swsb/core/severity"
)

// Place locates instruction index of block bb, index is -1 for the
// block itself
func Place(k *gir.Kernel, bb *gir.BasicBlock, index int) *Location {
	loc := &Location{
		File:   k.File,
		Kernel: k.Name,
		Instr:  -1,
	}
	if bb != nil {
		loc.Block = bb.Label
		loc.Instr = index
		if index >= 0 && index < len(bb.Code) && bb.Code[index].Line > 0 {
			line := bb.Code[index].Line - 1
			loc.Range = &Range{
				Begin: Position{Line: line},
				End:   Position{Line: line},
			}
		}
	}
	return loc
}

func NewKernelError(k *gir.Kernel, bb *gir.BasicBlock, index int, t et.ErrorKind, message string) *Error {
	return &Error{
		Code:     t,
		Severity: sv.Error,
		Location: Place(k, bb, index),
		Message:  message,
	}
}

func NewKernelWarning(k *gir.Kernel, bb *gir.BasicBlock, index int, t et.ErrorKind, message string) *Error {
	return &Error{
		Code:     t,
		Severity: sv.Warning,
		Location: Place(k, bb, index),
		Message:  message,
	}
}

func NewInternalError(message string) *Error {
	return &Error{
		Code:     et.InternalCompilerError,
		Severity: sv.InternalError,
		Message:  message,
	}
}
