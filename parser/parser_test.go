package parser

import (
	"testing"

	et "swsb/core/errorkind"
	"swsb/core/gir"
	DT "swsb/core/gir/datatype"
	DK "swsb/core/gir/distkind"
	FT "swsb/core/gir/flowkind"
	IT "swsb/core/gir/instrkind"
	RS "swsb/core/gir/regspace"
	SF "swsb/core/gir/sfid"
	SD "swsb/core/gir/syncdir"
	SK "swsb/core/gir/synckind"
)

const sample = `kernel sample
.pointsto a0 r40..r41
entry:
    send.ugm (16) r10..r11, r20 {$1}
    add:d (8) r2.4:4, r3, -1 {I@2 $1.src}
    (f0) mov:d (8) r[a0], acc1
    sync.allwr 0x6
    if f0 ? entry : done
done:
    math.inv:f (8) r5, r6 !30
    exit
`

func parse(t *testing.T, src string) *gir.Kernel {
	k, err := Parse("t.kasm", src, 32)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return k
}

func TestKernel(t *testing.T) {
	k := parse(t, sample)
	if k.Name != "sample" {
		t.Fatalf("expected name sample, got %v", k.Name)
	}
	if len(k.AllBlocks) != 2 {
		t.Fatalf("expected 2 blocks, got %v", len(k.AllBlocks))
	}
	entry := k.AllBlocks[0]
	if entry.Out.T != FT.If || entry.Out.True != 0 || entry.Out.False != 1 {
		t.Fatalf("expected branch to entry and done, got %v", entry.Out.Format(k))
	}
	if k.AllBlocks[1].Out.T != FT.Exit {
		t.Fatalf("expected done to exit")
	}
	aliases := k.Aliases[0]
	if len(aliases) != 1 || aliases[0].Reg != 40 || aliases[0].Size != 64 {
		t.Fatalf("unexpected points-to facts %v", aliases)
	}
}

func TestSend(t *testing.T) {
	send := parse(t, sample).AllBlocks[0].Code[0]
	if send.T != IT.Send || send.SFID != SF.UGM || send.ExecSize != 16 {
		t.Fatalf("unexpected send %v", send.Format(32))
	}
	if send.Dst.Space != RS.GRF || send.Dst.Reg != 10 || send.Dst.Size != 64 {
		t.Fatalf("expected r10..r11, got %v", send.Dst.Format(32))
	}
	if len(send.Srcs) != 1 || send.Srcs[0].Reg != 20 {
		t.Fatalf("expected address r20, got %v", send.Srcs)
	}
	if !send.SWSB.HasToken || send.SWSB.Token != 1 {
		t.Fatalf("expected token 1, got %v", send.SWSB)
	}
}

func TestALU(t *testing.T) {
	add := parse(t, sample).AllBlocks[0].Code[1]
	if add.T != IT.Add || add.Type != DT.ByName["d"] {
		t.Fatalf("unexpected add %v", add.Format(32))
	}
	if add.Dst.Reg != 2 || add.Dst.Off != 4 || add.Dst.Size != 4 {
		t.Fatalf("expected r2.4:4, got %v", add.Dst.Format(32))
	}
	if !add.Srcs[1].Imm || add.Srcs[1].Value != -1 {
		t.Fatalf("expected immediate -1, got %v", add.Srcs[1].Format(32))
	}
	s := add.SWSB
	if s.Dist != 2 || s.DistKind != DK.Int || !s.HasWait || s.Wait != 1 || s.WaitDir != SD.AfterRead {
		t.Fatalf("expected {I@2 $1.src}, got %v", s)
	}
}

func TestPredicatedIndirect(t *testing.T) {
	mov := parse(t, sample).AllBlocks[0].Code[2]
	if mov.Pred.Space != RS.FLAG || mov.Pred.Reg != 0 {
		t.Fatalf("expected predicate f0, got %v", mov.Pred.Format(32))
	}
	if !mov.Dst.Indirect || mov.Dst.Addr != 0 {
		t.Fatalf("expected r[a0], got %v", mov.Dst.Format(32))
	}
	if mov.Srcs[0].Space != RS.ACC || mov.Srcs[0].Reg != 1 {
		t.Fatalf("expected acc1, got %v", mov.Srcs[0].Format(32))
	}
}

func TestSyncAndMath(t *testing.T) {
	k := parse(t, sample)
	sync := k.AllBlocks[0].Code[3]
	if sync.T != IT.Sync || sync.Sync != SK.AllWr || sync.Mask != 6 {
		t.Fatalf("expected sync.allwr 0x6, got %v", sync.Format(32))
	}
	math := k.AllBlocks[1].Code[0]
	if math.T != IT.Math || math.Func != "inv" || math.Latency != 30 {
		t.Fatalf("expected math.inv with latency 30, got %v", math.Format(32))
	}
}

func TestCall(t *testing.T) {
	k := parse(t, "kernel c\nentry:\n    call helper -> back\nback:\n    ret\n")
	out := k.AllBlocks[0].Out
	if out.T != FT.Call || out.Callee != "helper" || out.True != 1 {
		t.Fatalf("expected call to helper returning to back, got %v", out.Format(k))
	}
	if !k.HasCall() {
		t.Fatalf("expected kernel to have a call")
	}
}

func TestErrors(t *testing.T) {
	tests := []struct {
		src  string
		code et.ErrorKind
	}{
		{"entry:\n    jmp nowhere\n", et.UnknownLabel},
		{"a:\n    exit\na:\n    exit\n", et.DuplicatedLabel},
		{"    frobnicate r1, r2\n", et.UnsupportedInstr},
		{"    send.foo (8) r1, r2\n", et.InvalidSFID},
		{"    add:d (8) q1, r2, r3\n", et.InvalidOperand},
		{"    add:d (8) r3..r1, r2\n", et.InvalidOperand},
		{"    add:d (8) r1, r2 {X@1}\n", et.InvalidSymbol},
	}
	for i, test := range tests {
		_, err := Parse("t.kasm", test.src, 32)
		if err == nil {
			t.Fatalf("case %v: expected %v, got nothing", i, test.code)
		}
		if err.Code != test.code {
			t.Fatalf("case %v: expected %v, got %v %v", i, test.code, err.Code, err.Message)
		}
	}
}
