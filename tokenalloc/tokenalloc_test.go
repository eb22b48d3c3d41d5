package tokenalloc

import (
	"context"
	"testing"

	"swsb/cfg"
	"swsb/core/hw"
	"swsb/core/sb"
	DEP "swsb/core/sb/deptype"
	TS "swsb/core/sb/tokenstate"
	"swsb/dependence"
	"swsb/globalflow"
	"swsb/parser"
	"swsb/pointsto"
)

const threeSends = `
    send.ugm (8) r10, r20
    send.ugm (8) r11, r21
    send.ugm (8) r12, r22
    add:d (8) r5, r10, r11
    add:d (8) r6, r12, r5
    exit
`

func allocate(t *testing.T, src string, m *hw.Model) (*sb.Context, *Allocation) {
	t.Helper()
	k, err := parser.Parse("t.kasm", src, m.GRFSize)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c := sb.NewContext(k, m, pointsto.FromKernel(k))
	c.CFG = cfg.Build(k)
	ctx := context.Background()
	dependence.Build(ctx, c)
	globalflow.Analyze(ctx, c)
	a := Allocate(ctx, c)
	a.Check(m)
	return c, a
}

func TestEnoughTokens(t *testing.T) {
	c, a := allocate(t, threeSends, hw.Default())
	if len(a.Intervals) != 3 || a.Peak != 3 {
		t.Fatalf("expected 3 intervals held at once, got %v peak %v", a.Intervals, a.Peak)
	}
	seen := map[int]bool{}
	for _, iv := range a.Intervals {
		if seen[iv.Token] {
			t.Fatalf("expected distinct tokens, got %v", a.Intervals)
		}
		seen[iv.Token] = true
	}
	if c.Profile.ForcedReuse != 0 || c.Profile.TokenInstructions != 3 {
		t.Fatalf("unexpected profile %v", c.Profile)
	}
	if c.Nodes[0].State != TS.Expired {
		t.Fatalf("expected the first send to expire, got %v", c.Nodes[0].State)
	}
}

func TestForcedReuse(t *testing.T) {
	for _, quick := range []bool{false, true} {
		m := hw.Default()
		m.TotalTokens = 2
		m.Quick = quick
		c, a := allocate(t, threeSends, m)
		if a.Peak != 2 {
			t.Fatalf("quick %v: expected peak 2, got %v", quick, a.Peak)
		}
		if c.Profile.ForcedReuse != 1 {
			t.Fatalf("quick %v: expected 1 forced reuse, got %v", quick, c.Profile.ForcedReuse)
		}
		third := a.Intervals[2]
		if third.Node != 2 || third.Took != 0 || third.Token != c.Nodes[0].Token {
			t.Fatalf("quick %v: expected the third send to take the first token, got %v", quick, third)
		}
		if e, ok := c.FindEdge(0, 2); !ok || e.Kind != DEP.Order {
			t.Fatalf("quick %v: expected the reuse to order the sends", quick)
		}
		if a.Intervals[0].End != 1 {
			t.Fatalf("quick %v: expected the first interval to end before the reuse, got %v", quick, a.Intervals[0])
		}
	}
}

const loopPressure = `kernel spill
entry:
    mov:d (8) r30, 0
loop:
    send.ugm (8) r10, r20
    send.ugm (8) r11, r21
    send.ugm (8) r12, r22
    send.ugm (8) r13, r23
    send.ugm (8) r14, r24
    add:d (8) r30, r30, 1
    cmp.lt:d (8) f0, r30, 16
    if f0 ? loop : done
done:
    mov:d (8) r40, r10
    mov:d (8) r41, r11
    mov:d (8) r42, r12
    mov:d (8) r43, r13
    mov:d (8) r44, r14
    exit
`

// every send is read after the loop, so all intervals start at the
// loop head and each reuse takes a token that was itself taken
func TestForcedReuseChain(t *testing.T) {
	for _, quick := range []bool{false, true} {
		m := hw.Default()
		m.TotalTokens = 2
		m.Quick = quick
		c, a := allocate(t, loopPressure, m)
		if len(a.Intervals) != 5 || a.Peak != 2 || c.Profile.ForcedReuse != 3 {
			t.Fatalf("quick %v: expected 5 intervals, peak 2 and 3 forced reuses, got %v peak %v forced %v",
				quick, a.Intervals, a.Peak, c.Profile.ForcedReuse)
		}
		for i, iv := range a.Intervals {
			if iv.Start != 1 || iv.Token != i%2 {
				t.Fatalf("quick %v: expected interval %v from the loop head on $%v, got %v", quick, i, i%2, iv)
			}
			if iv.Empty() != (i < 3) {
				t.Fatalf("quick %v: expected only the cut holders empty, got %v", quick, iv)
			}
		}
		for _, pair := range [][2]int{{1, 3}, {2, 4}, {3, 5}} {
			if e, ok := c.FindEdge(pair[0], pair[1]); !ok || e.Kind != DEP.Order {
				t.Fatalf("quick %v: expected send %v to wait for send %v", quick, pair[1], pair[0])
			}
		}
	}
}

func TestUnconsumed(t *testing.T) {
	_, a := allocate(t, "    send.ugm (8) null, r20, r21\n    exit\n", hw.Default())
	if len(a.Intervals) != 0 {
		t.Fatalf("expected a send nobody waits on to need no token, got %v", a.Intervals)
	}
}

func TestLoopExtension(t *testing.T) {
	loops := [][2]int{{2, 5}}
	tests := []struct {
		id, start, end int
		carried        bool
		lo, hi         int
	}{
		{3, 3, 7, false, 2, 7},
		{0, 0, 3, false, 0, 5},
		{3, 3, 4, false, 3, 4},
		{3, 3, 4, true, 2, 5},
		{6, 6, 8, false, 6, 8},
	}
	for i, test := range tests {
		lo, hi := extend(loops, test.id, test.start, test.end, test.carried)
		if lo != test.lo || hi != test.hi {
			t.Fatalf("case %v: expected [%v,%v], got [%v,%v]", i, test.lo, test.hi, lo, hi)
		}
	}
}

func TestExclusive(t *testing.T) {
	c, _ := allocate(t, threeSends, hw.Default())
	e, ok := c.FindEdge(0, 3)
	if !ok || len(e.Exclusive) != 1 || e.Exclusive[0] != 1 {
		t.Fatalf("expected the first send to exclude the second at the add, got %v", e)
	}
}

func TestCheckSkipsEmpty(t *testing.T) {
	a := &Allocation{Intervals: []*Interval{
		{Node: 0, Start: 1, End: 0, Token: 0, Took: -1},
		{Node: 1, Start: 1, End: 0, Token: 0, Took: 0},
		{Node: 2, Start: 1, End: 9, Token: 0, Took: 1},
	}}
	a.Check(hw.Default())
}

func TestCheck(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected overlapping intervals on one token to panic")
		}
	}()
	a := &Allocation{Intervals: []*Interval{
		{Node: 0, Start: 0, End: 4, Token: 1, Took: -1},
		{Node: 1, Start: 2, End: 6, Token: 1, Took: -1},
	}}
	a.Check(hw.Default())
}
