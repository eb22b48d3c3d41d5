// Package pointsto answers which registers an indirect operand may
// touch. The facts come from whoever built the kernel; this package
// only stores and serves them.
package pointsto

import (
	"swsb/core/gir"
)

type Oracle interface {
	// Resolve returns the direct operands an access through address
	// register addr may touch
	Resolve(addr int) ([]gir.Operand, bool)
}

type Table struct {
	facts map[int][]gir.Operand
}

func NewTable() *Table {
	return &Table{facts: map[int][]gir.Operand{}}
}

// FromKernel builds a table from the alias facts carried by k
func FromKernel(k *gir.Kernel) *Table {
	t := NewTable()
	for addr, ops := range k.Aliases {
		t.Add(addr, ops...)
	}
	return t
}

func (this *Table) Add(addr int, ops ...gir.Operand) {
	for _, op := range ops {
		if !op.IsReg() {
			panic("points-to facts must be direct registers")
		}
	}
	this.facts[addr] = append(this.facts[addr], ops...)
}

func (this *Table) Resolve(addr int) ([]gir.Operand, bool) {
	ops, ok := this.facts[addr]
	return ops, ok && len(ops) > 0
}
