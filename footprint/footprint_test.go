package footprint

import (
	"testing"

	"swsb/core/gir"
	RS "swsb/core/gir/regspace"
	gu "swsb/core/gir/util"
	"swsb/core/hw"
	"swsb/pointsto"
)

func grf(left, right int) Range {
	return Range{Space: RS.GRF, Left: left, Right: right}
}

func TestFromOperand(t *testing.T) {
	fp, ok := FromOperand(gu.GRF(2, 2, 32), nil, 32)
	if !ok || len(fp) != 1 || fp[0] != grf(64, 127) {
		t.Fatalf("expected GRF[64,127], got %v", fp)
	}
	fp, ok = FromOperand(gu.Sub(3, 8, 4), nil, 32)
	if !ok || fp[0] != grf(104, 107) {
		t.Fatalf("expected GRF[104,107], got %v", fp)
	}
	fp, ok = FromOperand(gu.Imm(3), nil, 32)
	if !ok || len(fp) != 0 {
		t.Fatalf("expected empty footprint for immediate, got %v", fp)
	}
	fp, ok = FromOperand(gu.Flag(1), nil, 32)
	if !ok || fp[0] != (Range{Space: RS.FLAG, Left: 4, Right: 7}) {
		t.Fatalf("expected FLAG[4,7], got %v", fp)
	}
}

func TestIndirect(t *testing.T) {
	if _, ok := FromOperand(gu.Indirect(0), nil, 32); ok {
		t.Fatalf("expected indirect operand without facts to be unresolved")
	}
	table := pointsto.NewTable()
	table.Add(0, gu.GRF(5, 1, 32), gu.GRF(4, 1, 32), gu.GRF(9, 1, 32))
	fp, ok := FromOperand(gu.Indirect(0), table, 32)
	if !ok {
		t.Fatalf("expected indirect operand to resolve")
	}
	expected := Footprint{grf(128, 191), grf(288, 319)}
	if len(fp) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, fp)
	}
	for i := range fp {
		if fp[i] != expected[i] {
			t.Fatalf("expected %v, got %v", expected, fp)
		}
	}
	if _, ok := FromOperand(gu.Indirect(1), table, 32); ok {
		t.Fatalf("expected a1 to be unresolved")
	}
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		a, b     Footprint
		expected bool
	}{
		{Footprint{grf(0, 31)}, Footprint{grf(31, 40)}, true},
		{Footprint{grf(0, 31)}, Footprint{grf(32, 63)}, false},
		{Footprint{grf(0, 3), grf(64, 67)}, Footprint{grf(66, 66)}, true},
		{Footprint{grf(0, 3)}, Footprint{{Space: RS.ACC, Left: 0, Right: 3}}, false},
		{Footprint{}, Footprint{grf(0, 3)}, false},
	}
	for i, test := range tests {
		if Overlaps(test.a, test.b) != test.expected {
			t.Fatalf("case %v: expected %v, got %v", i, test.expected, !test.expected)
		}
		if Overlaps(test.b, test.a) != test.expected {
			t.Fatalf("case %v: overlap is not symmetric", i)
		}
	}
}

func TestGranularity(t *testing.T) {
	a := Footprint{grf(0, 3)}
	b := Footprint{grf(8, 11)}
	if Overlaps(a, b) {
		t.Fatalf("expected disjoint bytes")
	}
	if !OverlapsAtGranularity(a, b, 32) {
		t.Fatalf("expected the same register to conflict at register granularity")
	}
	if OverlapsAtGranularity(a, Footprint{grf(32, 35)}, 32) {
		t.Fatalf("expected different registers not to conflict")
	}
}

func TestFullyCovers(t *testing.T) {
	tests := []struct {
		a, b     Footprint
		expected bool
	}{
		{Footprint{grf(0, 63)}, Footprint{grf(32, 63)}, true},
		{Footprint{grf(0, 31), grf(32, 63)}, Footprint{grf(16, 48)}, true},
		{Footprint{grf(0, 31), grf(33, 63)}, Footprint{grf(16, 48)}, false},
		{Footprint{grf(0, 31)}, Footprint{grf(0, 31), grf(64, 95)}, false},
		{Footprint{grf(0, 31)}, Footprint{}, false},
	}
	for i, test := range tests {
		if FullyCovers(test.a, test.b) != test.expected {
			t.Fatalf("case %v: expected %v, got %v", i, test.expected, !test.expected)
		}
	}
}

func TestBuckets(t *testing.T) {
	m := hw.Default()
	first, last := Buckets(grf(40, 100), m)
	if first != 1 || last != 3 {
		t.Fatalf("expected buckets 1..3, got %v..%v", first, last)
	}
	first, last = Buckets(Range{Space: RS.ACC, Left: 32, Right: 63}, m)
	if first != m.NumGRF+1 || last != m.NumGRF+1 {
		t.Fatalf("expected bucket %v, got %v..%v", m.NumGRF+1, first, last)
	}
	first, _ = Buckets(Range{Space: RS.FLAG, Left: 4, Right: 7}, m)
	if first != m.NumGRF+m.NumACC+1 {
		t.Fatalf("expected flag bucket %v, got %v", m.NumGRF+m.NumACC+1, first)
	}
}

func TestBucketsOutOfRange(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected a panic for a range past the register file")
		}
	}()
	m := hw.Default()
	Buckets(grf(0, m.NumGRF*m.GRFSize), m)
}

func TestFits(t *testing.T) {
	m := hw.Default()
	if !Fits(Footprint{grf(0, m.NumGRF*m.GRFSize-1)}, m) {
		t.Fatalf("expected the whole register file to fit")
	}
	if Fits(Footprint{grf(0, m.NumGRF*m.GRFSize)}, m) {
		t.Fatalf("expected one byte past the file not to fit")
	}
	if Fits(Footprint{{Space: RS.FLAG, Left: 8, Right: 11}}, m) {
		t.Fatalf("expected f2 not to fit with %v flags", m.NumFlag)
	}
	op := gir.Operand{Space: RS.GRF, Reg: 1, Size: 32}
	fp, _ := FromOperand(op, nil, m.GRFSize)
	if !Fits(fp, m) {
		t.Fatalf("expected r1 to fit")
	}
}
