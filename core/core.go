package core

import (
	"os"
	"strconv"

	et "swsb/core/errorkind"
	sv "swsb/core/severity"

	"github.com/fatih/color"
)

type Position struct {
	Line   int
	Column int
}

func (this Position) String() string {
	return strconv.FormatInt(int64(this.Line+1), 10) + ":" +
		strconv.FormatInt(int64(this.Column), 10)
}

func (this Position) LessThan(other Position) bool {
	if this.Line == other.Line {
		return this.Column < other.Column
	}
	return this.Line < other.Line
}

func (this Position) MoreOrEqualsThan(other Position) bool {
	if this.Line == other.Line {
		return this.Column >= other.Column
	}
	return this.Line > other.Line
}

type Range struct {
	Begin Position
	End   Position
}

func (this Range) String() string {
	if this.Begin.MoreOrEqualsThan(this.End) {
		return this.Begin.String()
	}
	return this.Begin.String() + " to " + this.End.String()
}

// Location points either at source text, at an instruction
// inside a kernel, or both. Block and Instr are -1 when unknown.
type Location struct {
	File   string
	Range  *Range
	Kernel string
	Block  string
	Instr  int
}

func (this *Location) String() string {
	if this == nil {
		return ""
	}
	output := this.File
	if this.Range != nil {
		output += ":" + this.Range.String()
	}
	if this.Kernel != "" {
		if output != "" {
			output += " "
		}
		output += "(" + this.Kernel
		if this.Block != "" {
			output += " " + this.Block
			if this.Instr >= 0 {
				output += "#" + strconv.Itoa(this.Instr)
			}
		}
		output += ")"
	}
	return output
}

func (this *Location) Source() string {
	if this == nil || this.Range == nil || this.File == "" {
		return ""
	}
	contents, err := os.ReadFile(this.File)
	if err != nil {
		return ""
	}
	currline := 0
	currcol := 0
	text := color.New(color.FgCyan).SprintFunc()
	mark := color.New(color.FgRed).SprintFunc()
	output := "    "
	inside := false
	line := ""
	flush := func() {
		if inside {
			output += mark(line)
		} else {
			output += text(line)
		}
		line = ""
	}
	for _, r := range string(contents) {
		if currline >= this.Range.Begin.Line &&
			currline <= this.Range.End.Line {
			if currline == this.Range.Begin.Line &&
				currcol == this.Range.Begin.Column {
				flush()
				inside = true
			}
			if currline == this.Range.End.Line &&
				currcol == this.Range.End.Column {
				flush()
				inside = false
			}
			if r == '\n' {
				flush()
				output += "\n    "
			} else if r == '\t' {
				line += "    "
			} else {
				line += string(r)
			}
		}
		if r == '\n' {
			currline++
			currcol = 0
		} else {
			currcol++
		}
	}
	flush()
	return output
}

type Error struct {
	Code     et.ErrorKind
	Severity sv.Severity
	Message  string
	Location *Location
}

func (this *Error) String() string {
	source := this.Location.Source()
	message := this.Severity.String() + ": " + this.Message
	if loc := this.Location.String(); loc != "" {
		message = loc + " " + message
	}
	if source != "" {
		return message + "\n" + source
	}
	return message
}

func (this *Error) Error() string {
	return this.String()
}

func (this *Error) ErrCode() string {
	return this.Code.String()
}

func ProcessFileError(e error) *Error {
	return &Error{
		Code:     et.FileError,
		Severity: sv.Error,
		Message:  e.Error(),
	}
}
