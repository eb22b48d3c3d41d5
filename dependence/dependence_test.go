package dependence

import (
	"context"
	"testing"

	"swsb/cfg"
	DK "swsb/core/gir/distkind"
	"swsb/core/hw"
	"swsb/core/sb"
	DEP "swsb/core/sb/deptype"
	"swsb/parser"
	"swsb/pointsto"
)

func build(t *testing.T, src string) *sb.Context {
	t.Helper()
	m := hw.Default()
	k, err := parser.Parse("t.kasm", src, m.GRFSize)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c := sb.NewContext(k, m, pointsto.FromKernel(k))
	c.CFG = cfg.Build(k)
	Build(context.Background(), c)
	return c
}

func edge(t *testing.T, c *sb.Context, from, to int) *sb.Edge {
	t.Helper()
	e, ok := c.FindEdge(from, to)
	if !ok {
		t.Fatalf("expected edge %v -> %v", from, to)
	}
	return e
}

func TestDistance(t *testing.T) {
	c := build(t, `
    add:d (8) r2, r3, r4
    add:d (8) r6, r3, r4
    add:d (8) r5, r2, r6
    exit
`)
	n := c.Nodes[2]
	if n.Dist != 1 || n.DistKind != DK.Int {
		t.Fatalf("expected I@1, got %v@%v", n.DistKind, n.Dist)
	}
	if len(n.DistDeps) != 2 {
		t.Fatalf("expected 2 distance dependencies, got %v", n.DistDeps)
	}
	if c.Profile.DistInstructions != 1 {
		t.Fatalf("expected 1 distance instruction, got %v", c.Profile.DistInstructions)
	}
	if len(c.Edges) != 0 {
		t.Fatalf("expected in-order hazards to make no edges, got %v", c.Edges)
	}
}

func TestCrossPipe(t *testing.T) {
	c := build(t, `
    add:d (8) r2, r3, r4
    add:q (8) r6..r7, r8..r9, r10..r11
    add:f (8) r5, r2, r6
    exit
`)
	n := c.Nodes[2]
	if n.DistKind != DK.All || n.Dist != 1 {
		t.Fatalf("expected A@1 for producers in two pipes, got %v@%v", n.DistKind, n.Dist)
	}
}

func TestWriteAfterRead(t *testing.T) {
	c := build(t, `
    add:d (8) r2, r3, r4
    add:d (8) r3, r5, r6
    exit
`)
	if c.Nodes[1].Dist != 0 {
		t.Fatalf("expected in-order write after read to need nothing, got %v", c.Nodes[1].Dist)
	}
}

func TestSendEdges(t *testing.T) {
	c := build(t, `
    send.ugm (8) r10, r20
    mov:d (8) r20, 0
    add:d (8) r5, r10, r6
    exit
`)
	if e := edge(t, c, 0, 1); e.Kind != DEP.WAR {
		t.Fatalf("expected WAR, got %v", e)
	}
	if e := edge(t, c, 0, 2); e.Kind != DEP.RAW {
		t.Fatalf("expected RAW, got %v", e)
	}
	send := c.Nodes[0]
	if !send.OutOfOrder || send.LiveEnd != 2 {
		t.Fatalf("expected send live until 2, got %v", send)
	}
}

func TestKill(t *testing.T) {
	c := build(t, `
    send.ugm (8) r10, r20
    mov:d (8) r10, 0
    add:d (8) r5, r10, r6
    exit
`)
	if e := edge(t, c, 0, 1); e.Kind != DEP.WAW {
		t.Fatalf("expected WAW, got %v", e)
	}
	if _, ok := c.FindEdge(0, 2); ok {
		t.Fatalf("expected the overwrite to hide the send from the add")
	}
	if c.Nodes[2].Dist != 1 {
		t.Fatalf("expected the add to wait on the mov, got %v", c.Nodes[2].Dist)
	}
	out := c.Blocks[0].LiveOut
	for _, l := range out {
		if l.Node == 0 && l.Opnd == 0 {
			t.Fatalf("expected send destination to be dead at the block end")
		}
	}
}

func TestOrderPoints(t *testing.T) {
	c := build(t, `
    send.ugm (8) r10, r20
    send.sampler (8) r12, r22
    fence
    barrier
    exit
`)
	if e := edge(t, c, 0, 2); e.Kind != DEP.Order || !e.Implicit {
		t.Fatalf("expected implicit order edge, got %v", e)
	}
	if _, ok := c.FindEdge(1, 2); ok {
		t.Fatalf("expected the fence to ignore the sampler")
	}
	edge(t, c, 1, 3)
	if _, ok := c.FindEdge(0, 3); ok {
		t.Fatalf("expected the fence to retire the memory send")
	}
	if len(c.Blocks[0].LiveOut) != 0 {
		t.Fatalf("expected nothing live after the barrier, got %v", c.Blocks[0].LiveOut)
	}
}

func TestSendDestinationByRegister(t *testing.T) {
	c := build(t, `
    send.ugm (4) r10.0:16, r20
    add:d (4) r5, r10.16:16, r6
    exit
`)
	if e := edge(t, c, 0, 1); e.Kind != DEP.RAW {
		t.Fatalf("expected a read of the same register to wait for the send, got %v", e)
	}
}

func TestFenceAfterSourcesOverwritten(t *testing.T) {
	c := build(t, `
    send.slm (8) null, r4, r5
    mov:d (8) r4, r0
    mov:d (8) r5, r0
    fence
    exit
`)
	if e := edge(t, c, 0, 1); e.Kind != DEP.WAR {
		t.Fatalf("expected the overwrite to wait for the read, got %v", e)
	}
	if e := edge(t, c, 0, 3); e.Kind != DEP.Order || !e.Implicit {
		t.Fatalf("expected the fence to wait for the store, got %v", e)
	}
	if c.Nodes[0].LiveEnd != 3 {
		t.Fatalf("expected the store live until the fence, got %v", c.Nodes[0].LiveEnd)
	}
	if len(c.Blocks[0].Outstanding) != 0 {
		t.Fatalf("expected the fence to complete the store, got %v", c.Blocks[0].Outstanding)
	}
}

func TestOutstanding(t *testing.T) {
	c := build(t, `
    send.slm (8) null, r4, r5
    send.ugm (8) r10, r20
    mov:d (8) r4, r0
    mov:d (8) r5, r0
    add:d (8) r6, r10, r0
    exit
`)
	out := c.Blocks[0].Outstanding
	if len(out) != 1 || out[0] != 0 {
		t.Fatalf("expected only the store outstanding, got %v", out)
	}
	for _, l := range c.Blocks[0].LiveOut {
		if l.Node == 0 {
			t.Fatalf("expected the store sources killed, got %v", c.Blocks[0].LiveOut)
		}
	}
}

func TestAcrossBlocks(t *testing.T) {
	c := build(t, `
entry:
    add:d (8) r2, r3, r4
    jmp next
next:
    add:d (8) r5, r2, r6
    exit
`)
	n := c.Nodes[1]
	if n.Dist != 1 || n.DistKind != DK.Int {
		t.Fatalf("expected I@1 across the block boundary, got %v@%v", n.DistKind, n.Dist)
	}
}

func TestAfterCall(t *testing.T) {
	c := build(t, `
entry:
    add:d (8) r2, r3, r4
    call helper -> back
back:
    add:d (8) r5, r6, r7
    exit
`)
	if !c.Blocks[1].AfterCall {
		t.Fatalf("expected back to be marked as entered from a call")
	}
	n := c.Nodes[1]
	if n.DistKind != DK.All || n.Dist != 1 {
		t.Fatalf("expected A@1 after the call, got %v@%v", n.DistKind, n.Dist)
	}
}
