// Package kasm holds the lexemes of the textual kernel format.
package kasm

import (
	. "swsb/core"
	lex "swsb/core/kasm/lexkind"

	"fmt"
)

type Node struct {
	Text  string
	Lex   lex.LexKind
	Value int64 // for numbers
	Range *Range
}

func (this *Node) String() string {
	rng := "nil"
	if this.Range != nil {
		rng = this.Range.String()
	}
	return fmt.Sprintf("{%s, '%s', %s}", lex.FmtLexKind(this.Lex), this.Text, rng)
}

// Line is the 1-based line the lexeme starts at, 0 if unknown
func (this *Node) Line() int {
	if this.Range == nil {
		return 0
	}
	return this.Range.Begin.Line + 1
}
