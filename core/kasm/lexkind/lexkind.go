package lexkind

import "strconv"

type LexKind int

const (
	UNDEFINED LexKind = iota

	IDENTIFIER
	NUMBER

	// symbols
	MINUS
	AT
	DOLLAR
	BANG
	QUESTION
	ARROW

	LEFTPAREN
	RIGHTPAREN
	LEFTBRACE
	RIGHTBRACE
	LEFTBRACKET
	RIGHTBRACKET

	COLON
	COMMA
	DOT
	DOTDOT

	// keywords
	KERNEL
	JMP
	IF
	RET
	EXIT
	CALL

	NEWLINE
	EOF
)

func FmtLexKind(t LexKind) string {
	v, ok := Tktosrc[t]
	if ok {
		return v
	}
	panic("unspecified lexKind" + strconv.Itoa(int(t)))
}

func FmtTypes(t ...LexKind) string {
	out := Tktosrc[t[0]]
	for _, t := range t[1:] {
		out += "," + Tktosrc[t]
	}
	return out
}

var Tktosrc = map[LexKind]string{
	UNDEFINED:  "\033[0;31m?\033[0m",
	IDENTIFIER: "identifier",
	NUMBER:     "number",

	MINUS:    "-",
	AT:       "@",
	DOLLAR:   "$",
	BANG:     "!",
	QUESTION: "?",
	ARROW:    "->",

	LEFTPAREN:    "(",
	RIGHTPAREN:   ")",
	LEFTBRACE:    "{",
	RIGHTBRACE:   "}",
	LEFTBRACKET:  "[",
	RIGHTBRACKET: "]",

	COLON:  ":",
	COMMA:  ",",
	DOT:    ".",
	DOTDOT: "..",

	KERNEL: "kernel",
	JMP:    "jmp",
	IF:     "if",
	RET:    "ret",
	EXIT:   "exit",
	CALL:   "call",

	NEWLINE: "newline",
	EOF:     "EOF",
}
