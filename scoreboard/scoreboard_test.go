package scoreboard_test

import (
	"context"
	"os"

	et "swsb/core/errorkind"
	"swsb/core/gir"
	IT "swsb/core/gir/instrkind"
	SD "swsb/core/gir/syncdir"
	SK "swsb/core/gir/synckind"
	"swsb/core/hw"
	sv "swsb/core/severity"
	"swsb/parser"
	"swsb/pointsto"
	"swsb/scoreboard"
	"swsb/syncemit"
	"swsb/verifier"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func run(src string) (*gir.Kernel, *scoreboard.Result) {
	return runWith(src, hw.Default())
}

func runWith(src string, m *hw.Model) (*gir.Kernel, *scoreboard.Result) {
	k, err := parser.Parse("t.kasm", src, m.GRFSize)
	Expect(err).To(BeNil())
	res, err := scoreboard.Run(context.Background(), k, m, nil)
	Expect(err).To(BeNil())
	return k, res
}

func runFile(path string) (*gir.Kernel, *scoreboard.Result) {
	text, e := os.ReadFile(path)
	Expect(e).NotTo(HaveOccurred())
	return run(string(text))
}

func block(k *gir.Kernel, label string) *gir.BasicBlock {
	for _, bb := range k.AllBlocks {
		if bb.Label == label {
			return bb
		}
	}
	Fail("no block " + label)
	return nil
}

func find(bb *gir.BasicBlock, kind IT.InstrKind) *gir.Instr {
	for _, instr := range bb.Code {
		if instr.T == kind {
			return instr
		}
	}
	Fail("no " + kind.String() + " in " + bb.Label)
	return nil
}

func countSyncs(k *gir.Kernel) int {
	n := 0
	for _, bb := range k.AllBlocks {
		for _, instr := range bb.Code {
			if instr.T == IT.Sync {
				n++
			}
		}
	}
	return n
}

const crossBlock = `kernel cross
entry:
    send.ugm (8) r10..r11, r20
    add:d (8) r2, r3, r4
    add:d (8) r6, r3, r4
    add:d (8) r7, r3, r4
    add:d (8) r8, r3, r4
    add:d (8) r5, r11, r9
    jmp next
next:
    mov:d (8) r12, r10
    exit
`

const loop = `kernel loop
entry:
    mov:d (8) r30, 0
header:
    add:d (8) r31, r12, r30
    send.ugm (8) r12, r40
    add:d (8) r30, r30, 1
    cmp.lt:d (8) f0, r30, 16
    if f0 ? header : done
done:
    mov:d (8) r50, r12
    exit
`

const call = `kernel callsite
entry:
    send.ugm (8) r10, r20
    add:d (8) r2, r3, r4
    call helper -> back
back:
    add:d (8) r5, r10, r2
    exit
`

const storeFence = `kernel flush
entry:
    send.slm (8) null, r4, r5
    mov:d (8) r4, r0
    mov:d (8) r5, r0
    fence
    exit
`

const storeBarrier = `kernel rendezvous
entry:
    send.slm (8) null, r4, r5
    mov:d (8) r4, r0
    jmp next
next:
    barrier
    exit
`

var _ = Describe("Run", func() {
	Context("with a load consumed in its block and in the next one", func() {
		var (
			k   *gir.Kernel
			res *scoreboard.Result
		)
		BeforeEach(func() {
			k, res = run(crossBlock)
		})

		It("gives the load a token", func() {
			send := block(k, "entry").Code[0]
			Expect(send.SWSB.HasToken).To(BeTrue())
			Expect(res.Context.Nodes[0].HasToken()).To(BeTrue())
		})

		It("waits on the token at the first reader", func() {
			entry := block(k, "entry")
			send := entry.Code[0]
			reader := entry.Code[5]
			Expect(reader.SWSB.HasWait).To(BeTrue())
			Expect(reader.SWSB.Wait).To(Equal(send.SWSB.Token))
			Expect(reader.SWSB.WaitDir).To(Equal(SD.AfterWrite))
		})

		It("carries the load into the successor block", func() {
			c := res.Context
			next := block(k, "next")
			Expect(c.In[next.ID].IsDst(c.Nodes[0].GlobalID)).To(BeTrue())
			edge, ok := c.FindEdge(0, 6)
			Expect(ok).To(BeTrue())
			Expect(edge.Global).To(BeTrue())
		})

		It("holds the token until the last reader", func() {
			Expect(res.Allocation.Intervals).To(HaveLen(1))
			Expect(res.Allocation.Intervals[0].End).To(BeNumerically(">=", 6))
		})

		It("does not wait twice", func() {
			reader := block(k, "next").Code[0]
			Expect(reader.SWSB.HasWait).To(BeFalse())
			Expect(countSyncs(k)).To(Equal(0))
			Expect(res.Profile.PrunedGlobalEdges).To(Equal(1))
		})

		It("leaves a kernel the verifier accepts", func() {
			errs := verifier.Verify(context.Background(), k, hw.Default(), pointsto.FromKernel(k))
			Expect(errs).To(BeEmpty())
		})
	})

	Context("with a load consumed across the back edge", func() {
		It("waits at the loop header and after the loop", func() {
			k, res := run(loop)
			header := block(k, "header")
			send := header.Code[1]
			Expect(send.SWSB.HasToken).To(BeTrue())

			first := header.Code[0]
			Expect(first.SWSB.HasWait).To(BeTrue())
			Expect(first.SWSB.Wait).To(Equal(send.SWSB.Token))

			after := block(k, "done").Code[0]
			Expect(after.SWSB.HasWait).To(BeTrue())
			Expect(after.SWSB.Wait).To(Equal(send.SWSB.Token))

			iv := res.Allocation.Intervals[0]
			Expect(iv.Start).To(BeNumerically("<=", 1))
			Expect(iv.End).To(BeNumerically(">=", 4))
		})
	})

	Context("with a load in flight across a call", func() {
		It("degrades the load and synchronizes around the call", func() {
			k, res := run(call)
			Expect(res.Diagnostics).To(HaveLen(1))
			Expect(res.Diagnostics[0].Code).To(Equal(et.DegradedCall))
			Expect(res.Diagnostics[0].Severity).To(Equal(sv.Warning))
			Expect(res.Profile.DegradedNodes).To(Equal(1))

			entry := block(k, "entry")
			last := entry.Code[len(entry.Code)-1]
			Expect(last.T).To(Equal(IT.Sync))
			Expect(last.Sync).To(Equal(SK.AllWr))

			first := block(k, "back").Code[0]
			Expect(first.T).To(Equal(IT.Sync))
			Expect(first.Sync).To(Equal(SK.AllWr))
		})
	})

	Context("with more loads in flight than tokens", func() {
		var (
			k   *gir.Kernel
			res *scoreboard.Result
		)
		BeforeEach(func() {
			k, res = runFile("../testdata/schedule/pressure.kasm")
		})

		It("never holds more than the available tokens", func() {
			Expect(res.Allocation.Peak).To(Equal(16))
			Expect(res.Profile.ForcedReuse).To(Equal(4))
			for _, iv := range res.Allocation.Intervals {
				Expect(iv.Token).To(BeNumerically("<", 16))
			}
		})

		It("releases a forced token before reusing it", func() {
			Expect(countSyncs(k)).To(Equal(4))
			for _, bb := range k.AllBlocks {
				for i, instr := range bb.Code {
					if instr.T != IT.Sync {
						continue
					}
					next := bb.Code[i+1]
					Expect(next.T).To(Equal(IT.Send))
					Expect(instr.SWSB.Wait).To(Equal(next.SWSB.Token))
				}
			}
		})

		It("is left unchanged by merging again", func() {
			before := k.NumInstrs()
			syncemit.Merge(k)
			Expect(k.NumInstrs()).To(Equal(before))
		})
	})

	Context("with a store whose sources are overwritten before a fence", func() {
		It("waits for the store at the fence", func() {
			k, res := run(storeFence)
			entry := block(k, "entry")
			store := entry.Code[0]
			Expect(store.SWSB.HasToken).To(BeTrue())
			fence := find(entry, IT.Fence)
			Expect(fence.SWSB.HasWait).To(BeTrue())
			Expect(fence.SWSB.Wait).To(Equal(store.SWSB.Token))
			Expect(fence.SWSB.WaitDir).To(Equal(SD.AfterWrite))
			_, ok := res.Context.FindEdge(0, 3)
			Expect(ok).To(BeTrue())
		})
	})

	Context("with a store reaching a barrier in the next block", func() {
		It("waits for the store at the barrier", func() {
			k, res := run(storeBarrier)
			store := block(k, "entry").Code[0]
			Expect(store.SWSB.HasToken).To(BeTrue())
			barrier := find(block(k, "next"), IT.Barrier)
			Expect(barrier.SWSB.HasWait).To(BeTrue())
			Expect(barrier.SWSB.Wait).To(Equal(store.SWSB.Token))
			edge, ok := res.Context.FindEdge(0, 2)
			Expect(ok).To(BeTrue())
			Expect(edge.Global).To(BeTrue())
		})
	})

	DescribeTable("with loads kept in flight around a loop on two tokens",
		func(quick bool) {
			m := hw.Default()
			m.TotalTokens = 2
			m.Quick = quick
			text, e := os.ReadFile("../testdata/schedule/spill.kasm")
			Expect(e).NotTo(HaveOccurred())
			_, res := runWith(string(text), m)
			Expect(res.Allocation.Peak).To(Equal(2))
			Expect(res.Profile.ForcedReuse).To(Equal(3))
			for _, iv := range res.Allocation.Intervals {
				Expect(iv.Token).To(BeNumerically("<", 2))
			}
		},
		Entry("by cost", false),
		Entry("round robin", true),
	)

	It("rejects a kernel without blocks", func() {
		m := hw.Default()
		k, err := parser.Parse("t.kasm", "kernel empty\n", m.GRFSize)
		Expect(err).To(BeNil())
		_, err = scoreboard.Run(context.Background(), k, m, nil)
		Expect(err).NotTo(BeNil())
		Expect(err.Code).To(Equal(et.EmptyKernel))
	})
})
