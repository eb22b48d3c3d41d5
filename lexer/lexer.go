package lexer

import (
	ir "swsb/core/kasm"
	T "swsb/core/kasm/lexkind"

	. "swsb/core"
	et "swsb/core/errorkind"
	sv "swsb/core/severity"

	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

func NewLexerError(st *Lexer, t et.ErrorKind, message string) *Error {
	loc := st.GetSourceLocation()
	return &Error{
		Code:     t,
		Severity: sv.Error,
		Location: loc,
		Message:  message,
	}
}

type Lexer struct {
	Word *ir.Node

	File                string
	BeginLine, BeginCol int
	EndLine, EndCol     int

	Start, End   int
	LastRuneSize int
	Input        string

	Peeked *ir.Node
}

func NewLexer(filename string, s string) *Lexer {
	st := &Lexer{
		File:  filename,
		Input: s,
	}
	return st
}

func (this *Lexer) GetSourceLocation() *Location {
	return &Location{
		File:  this.File,
		Range: this.Range(),
		Instr: -1,
	}
}

func (this *Lexer) Next() *Error {
	if this.Peeked != nil {
		p := this.Peeked
		this.Peeked = nil
		this.Word = p
		return nil
	}
	symbol, err := any(this)
	if err != nil {
		return err
	}
	this.Start = this.End
	this.BeginLine = this.EndLine
	this.BeginCol = this.EndCol
	this.Word = symbol
	return nil
}

func (this *Lexer) Peek() (*ir.Node, *Error) {
	symbol, err := any(this)
	if err != nil {
		return nil, err
	}
	this.Start = this.End
	this.Peeked = symbol
	return symbol, nil
}

func (this *Lexer) ReadAll() ([]*ir.Node, *Error) {
	e := this.Next()
	if e != nil {
		return nil, e
	}
	output := []*ir.Node{}
	for this.Word.Lex != T.EOF {
		output = append(output, this.Word)
		e = this.Next()
		if e != nil {
			return nil, e
		}
	}
	return output, nil
}

func (this *Lexer) Selected() string {
	return this.Input[this.Start:this.End]
}

func (this *Lexer) Range() *Range {
	return &Range{
		Begin: Position{
			Line:   this.BeginLine,
			Column: this.BeginCol,
		},
		End: Position{
			Line:   this.EndLine,
			Column: this.EndCol,
		},
	}
}

func genNode(l *Lexer, tp T.LexKind) *ir.Node {
	text := l.Selected()
	n := &ir.Node{
		Lex:   tp,
		Text:  text,
		Range: l.Range(),
	}
	return n
}

func nextRune(l *Lexer) rune {
	r, size := decode(l)
	l.End += size
	l.LastRuneSize = size

	if r == '\n' {
		l.EndLine++
		l.EndCol = 0
	} else {
		l.EndCol++
	}

	return r
}

func peekRune(l *Lexer) rune {
	r, _ := decode(l)
	return r
}

func decode(l *Lexer) (rune, int) {
	r, size := utf8.DecodeRuneInString(l.Input[l.End:])
	if r == utf8.RuneError && size == 1 {
		panic(fmt.Sprintf("invalid utf8 at byte %v of %v", l.End, l.File))
	}
	return r, size
}

// ignore drops the selected text
func ignore(l *Lexer) {
	l.Start = l.End
	l.BeginLine = l.EndLine
	l.BeginCol = l.EndCol
	l.LastRuneSize = 0
}

func acceptRun(l *Lexer, s string) {
	r := peekRune(l)
	for strings.ContainsRune(s, r) {
		nextRune(l)
		r = peekRune(l)
	}
}

// decoding errors panic in nextRune and peekRune, so RuneError
// only ever means end of input here
const eof rune = utf8.RuneError

const (
	digits     = "0123456789"
	hex_digits = digits + "ABCDEFabcdef"
	letters    = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ_"
)

func isNumber(r rune) bool {
	return strings.ContainsRune(digits, r)
}

func isLetter(r rune) bool {
	return strings.ContainsRune(letters, r)
}

// newlines are lexemes, instructions end at them
func ignoreWhitespace(st *Lexer) {
	r := peekRune(st)
loop:
	for {
		switch r {
		case ' ', '\t', '\r':
			nextRune(st)
		case '#':
			comment(st)
		default:
			break loop
		}
		r = peekRune(st)
	}
	ignore(st)
}

// punctuation that is a lexeme on its own
var single = map[rune]T.LexKind{
	'\n': T.NEWLINE,
	'@':  T.AT,
	'$':  T.DOLLAR,
	'!':  T.BANG,
	'?':  T.QUESTION,
	'(':  T.LEFTPAREN,
	')':  T.RIGHTPAREN,
	'{':  T.LEFTBRACE,
	'}':  T.RIGHTBRACE,
	'[':  T.LEFTBRACKET,
	']':  T.RIGHTBRACKET,
	',':  T.COMMA,
	':':  T.COLON,
}

// punctuation that changes meaning when doubled by a second rune:
// first rune, second rune, lexeme alone, lexeme with the second rune
var pairs = map[rune]struct {
	second       rune
	alone, joint T.LexKind
}{
	'-': {'>', T.MINUS, T.ARROW},
	'.': {'.', T.DOT, T.DOTDOT},
}

func any(st *Lexer) (*ir.Node, *Error) {
	ignoreWhitespace(st)

	r := peekRune(st)
	switch {
	case isNumber(r):
		return number(st)
	case isLetter(r):
		return identifier(st), nil
	case r == eof:
		nextRune(st)
		return &ir.Node{Lex: T.EOF, Range: st.Range()}, nil
	}
	if tp, ok := single[r]; ok {
		nextRune(st)
		return genNode(st, tp), nil
	}
	if pair, ok := pairs[r]; ok {
		nextRune(st)
		if peekRune(st) == pair.second {
			nextRune(st)
			return genNode(st, pair.joint), nil
		}
		return genNode(st, pair.alone), nil
	}
	return nil, InvalidSymbol(st, r)
}

func number(st *Lexer) (*ir.Node, *Error) {
	r := peekRune(st)
	if r == '0' {
		nextRune(st)
		r = peekRune(st)
		if r == 'x' {
			nextRune(st)
			acceptRun(st, hex_digits)
		} else {
			acceptRun(st, digits)
		}
	} else {
		acceptRun(st, digits)
	}
	n := genNode(st, T.NUMBER)
	value, err := strconv.ParseInt(n.Text, 0, 64)
	if err != nil {
		return nil, NewLexerError(st, et.InvalidSymbol, "invalid number: "+n.Text)
	}
	n.Value = value
	return n, nil
}

var keywords = map[string]T.LexKind{
	"kernel": T.KERNEL,
	"jmp":    T.JMP,
	"if":     T.IF,
	"ret":    T.RET,
	"exit":   T.EXIT,
	"call":   T.CALL,
}

// identifiers start with a letter, keywords are identifiers
// found in the table above
func identifier(st *Lexer) *ir.Node {
	if !isLetter(peekRune(st)) {
		panic("identifier does not start with a letter")
	}
	acceptRun(st, digits+letters)
	tp, ok := keywords[st.Selected()]
	if !ok {
		tp = T.IDENTIFIER
	}
	return genNode(st, tp)
}

// comment skips to the end of the line, leaving the newline
func comment(st *Lexer) {
	r := nextRune(st)
	if r != '#' {
		panic("internal error: comment without '#'")
	}
	r = peekRune(st)
	for r != '\n' && r != eof {
		nextRune(st)
		r = peekRune(st)
	}
}

func InvalidSymbol(st *Lexer, r rune) *Error {
	return NewLexerError(st, et.InvalidSymbol, fmt.Sprintf("unexpected %q", r))
}
