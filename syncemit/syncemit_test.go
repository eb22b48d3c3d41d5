package syncemit

import (
	"context"
	"testing"

	"swsb/cfg"
	"swsb/core/gir"
	DT "swsb/core/gir/datatype"
	IT "swsb/core/gir/instrkind"
	SD "swsb/core/gir/syncdir"
	SK "swsb/core/gir/synckind"
	gu "swsb/core/gir/util"
	"swsb/core/hw"
	"swsb/core/sb"
	"swsb/dependence"
	"swsb/globalflow"
	"swsb/parser"
	"swsb/pointsto"
	"swsb/tokenalloc"
)

func emit(t *testing.T, src string) (*gir.Kernel, *sb.Context) {
	t.Helper()
	m := hw.Default()
	k, err := parser.Parse("t.kasm", src, m.GRFSize)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c := sb.NewContext(k, m, pointsto.FromKernel(k))
	c.CFG = cfg.Build(k)
	ctx := context.Background()
	dependence.Build(ctx, c)
	globalflow.Analyze(ctx, c)
	tokenalloc.Allocate(ctx, c)
	Emit(ctx, c)
	return k, c
}

func TestInlineWait(t *testing.T) {
	k, c := emit(t, "    send.ugm (8) r10, r20\n    mov:d (8) r20, 0\n    exit\n")
	code := k.AllBlocks[0].Code
	if len(code) != 2 {
		t.Fatalf("expected no sync instruction, got %v", k)
	}
	s := code[1].SWSB
	if !s.HasWait || s.Wait != code[0].SWSB.Token || s.WaitDir != SD.AfterRead {
		t.Fatalf("expected the mov to wait for the send sources, got %v", s)
	}
	if c.Profile.SyncInstructions != 0 {
		t.Fatalf("expected no sync instruction counted, got %v", c.Profile.SyncInstructions)
	}
}

func TestTwoTokens(t *testing.T) {
	k, c := emit(t, "    send.ugm (8) r10, r20\n    send.ugm (8) r11, r21\n    add:d (8) r5, r10, r11\n    exit\n")
	code := k.AllBlocks[0].Code
	if len(code) != 4 {
		t.Fatalf("expected one sync before the add, got %v", k)
	}
	sync := code[2]
	if sync.T != IT.Sync || sync.Sync != SK.AllWr || sync.Mask != 0x3 {
		t.Fatalf("expected sync.allwr 0x3, got %v", sync.Format(32))
	}
	if code[3].SWSB.HasWait {
		t.Fatalf("expected the add to carry no wait of its own")
	}
	if c.Profile.AWSyncAll != 1 {
		t.Fatalf("expected one sync on all tokens, got %v", c.Profile.AWSyncAll)
	}
}

func TestMustAnalysis(t *testing.T) {
	k, c := emit(t, `
entry:
    send.ugm (8) r10, r20
    add:d (8) r5, r10, r6
    if f0 ? a : b
a:
    mov:d (8) r7, r10
    exit
b:
    mov:d (8) r8, r10
    exit
`)
	for _, bb := range k.AllBlocks[1:] {
		if bb.Code[0].SWSB.HasWait {
			t.Fatalf("expected %v not to wait again", bb.Label)
		}
	}
	if c.Profile.PrunedGlobalEdges != 2 {
		t.Fatalf("expected both global edges pruned, got %v", c.Profile.PrunedGlobalEdges)
	}
}

func TestMerge(t *testing.T) {
	add := gu.ALU(IT.Add, DT.D, 8, gu.GRF(5, 1, 32), gu.GRF(6, 1, 32), gu.GRF(7, 1, 32))
	bb := &gir.BasicBlock{Label: "entry"}
	bb.Code = []*gir.Instr{
		gu.SyncToken(1, SD.AfterWrite),
		gu.SyncToken(2, SD.AfterWrite),
		gu.SyncToken(3, SD.AfterRead),
		add,
		gu.SyncToken(4, SD.AfterRead),
	}
	k := &gir.Kernel{Name: "m", AllBlocks: []*gir.BasicBlock{bb}}
	Merge(k)
	if len(bb.Code) != 4 {
		t.Fatalf("expected the two writes to merge, got %v", k)
	}
	first := bb.Code[0]
	if first.Sync != SK.AllWr || first.Mask != 0x6 {
		t.Fatalf("expected sync.allwr 0x6, got %v", first.Format(32))
	}
	if !bb.Code[1].SWSB.HasWait || bb.Code[1].SWSB.Wait != 3 {
		t.Fatalf("expected the read wait to stay apart, got %v", bb.Code[1].Format(32))
	}
	Merge(k)
	if len(bb.Code) != 4 || bb.Code[0].Mask != 0x6 {
		t.Fatalf("expected merging twice to change nothing, got %v", k)
	}
}

func TestAllTokens(t *testing.T) {
	if AllTokens(16) != 0xffff || AllTokens(32) != ^uint32(0) || AllTokens(1) != 1 {
		t.Fatalf("unexpected token masks")
	}
}
