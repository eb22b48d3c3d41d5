// Package scoreboard runs the software scoreboard pass over a kernel:
// it checks the input, builds the dependence graph, propagates
// out-of-order producers across blocks, assigns tokens, writes the
// annotations back and verifies the result.
package scoreboard

import (
	"context"

	"swsb/cfg"
	. "swsb/core"
	"swsb/core/gir"
	"swsb/core/gir/checker"
	"swsb/core/hw"
	"swsb/core/sb"
	"swsb/dependence"
	"swsb/globalflow"
	"swsb/pointsto"
	"swsb/syncemit"
	"swsb/tokenalloc"
	"swsb/verifier"

	"github.com/nikandfor/tlog"
)

type Result struct {
	Context    *sb.Context
	Allocation *tokenalloc.Allocation
	Profile    sb.Profile
	// Diagnostics are the warnings of the pass, errors stop it
	Diagnostics []*Error
}

// Run annotates k in place. oracle may be nil, in which case the facts
// carried by the kernel itself are used.
func Run(ctx context.Context, k *gir.Kernel, m *hw.Model, oracle pointsto.Oracle) (res *Result, err *Error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "scoreboard", "kernel", k.Name)
	defer tr.Finish("err", &err)

	if oracle == nil {
		oracle = pointsto.FromKernel(k)
	}
	if k.GRFSize == 0 {
		k.GRFSize = m.GRFSize
	}
	err = checker.Check(k, m, oracle)
	if err != nil {
		return nil, err
	}

	c := sb.NewContext(k, m, oracle)
	c.CFG = cfg.Build(k)
	tr.Printw("control flow", "blocks", len(k.AllBlocks), "loops", len(c.CFG.Loops))

	dependence.Build(ctx, c)
	globalflow.Analyze(ctx, c)
	alloc := tokenalloc.Allocate(ctx, c)
	alloc.Check(m)
	syncemit.Emit(ctx, c)

	errs := verifier.Verify(ctx, k, m, oracle)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return &Result{
		Context:     c,
		Allocation:  alloc,
		Profile:     c.Profile,
		Diagnostics: c.Diagnostics,
	}, nil
}
