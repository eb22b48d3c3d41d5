package cfg

import (
	"testing"

	"swsb/core/gir"
	"swsb/parser"
)

const nested = `kernel nested
entry:
    mov:d (8) r2, 0
    jmp outer
outer:
    add:d (8) r3, r3, 1
    jmp inner
inner:
    add:d (8) r4, r4, 1
    if f0 ? inner : latch
latch:
    add:d (8) r5, r5, 1
    if f1 ? outer : done
done:
    exit
`

func build(t *testing.T, src string) (*gir.Kernel, *Info) {
	k, err := parser.Parse("t.kasm", src, 32)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return k, Build(k)
}

func TestEdges(t *testing.T) {
	k, _ := build(t, nested)
	latch := k.GetBlock(3)
	if len(latch.Succs) != 2 || latch.Succs[0] != 1 || latch.Succs[1] != 4 {
		t.Fatalf("expected latch successors [1 4], got %v", latch.Succs)
	}
	outer := k.GetBlock(1)
	if len(outer.Preds) != 2 {
		t.Fatalf("expected 2 predecessors of outer, got %v", outer.Preds)
	}
}

func TestOrder(t *testing.T) {
	_, info := build(t, nested)
	expected := []gir.BlockID{0, 1, 2, 3, 4}
	if len(info.RPO) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, info.RPO)
	}
	for i, b := range expected {
		if info.RPO[i] != b {
			t.Fatalf("expected %v, got %v", expected, info.RPO)
		}
	}
}

func TestDominators(t *testing.T) {
	_, info := build(t, nested)
	idom := map[gir.BlockID]gir.BlockID{1: 0, 2: 1, 3: 2, 4: 3}
	for b, d := range idom {
		if info.IDom[b] != d {
			t.Fatalf("expected idom(%v) = %v, got %v", b, d, info.IDom[b])
		}
	}
	if !info.Dominates(1, 4) || info.Dominates(4, 1) {
		t.Fatalf("expected outer to dominate done and not the reverse")
	}
}

func TestLoops(t *testing.T) {
	_, info := build(t, nested)
	if len(info.BackEdges) != 2 {
		t.Fatalf("expected 2 back edges, got %v", info.BackEdges)
	}
	if len(info.Loops) != 2 {
		t.Fatalf("expected 2 loops, got %v", len(info.Loops))
	}
	loops := info.LoopsOf(2)
	if len(loops) != 2 {
		t.Fatalf("expected block 2 in 2 loops, got %v", len(loops))
	}
	outer, inner := loops[0], loops[1]
	if outer.Header != 1 || outer.Start != 1 || outer.End != 3 {
		t.Fatalf("expected outer loop 1..3 headed by 1, got %v..%v headed by %v", outer.Start, outer.End, outer.Header)
	}
	if inner.Header != 2 || len(inner.Blocks) != 1 {
		t.Fatalf("expected self loop on 2, got %v", inner.Blocks)
	}
	if outer.Contains(4) || outer.Contains(0) {
		t.Fatalf("expected entry and exit outside of the loop")
	}
	if len(info.LoopsOf(4)) != 0 {
		t.Fatalf("expected done outside of every loop")
	}
}

func TestUnreachable(t *testing.T) {
	_, info := build(t, "kernel u\nentry:\n    exit\ndead:\n    exit\n")
	if info.RPOIndex[1] != -1 || info.IDom[1] != -1 {
		t.Fatalf("expected unreachable block to stay out of the order")
	}
	if info.Dominates(0, 1) {
		t.Fatalf("expected nothing to dominate an unreachable block")
	}
}
