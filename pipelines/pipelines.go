package pipelines

import (
	"context"
	"io/fs"
	"os"

	. "swsb/core"
	et "swsb/core/errorkind"
	"swsb/core/gir"
	"swsb/core/gir/checker"
	"swsb/core/hw"
	"swsb/core/kasm"
	sv "swsb/core/severity"

	"swsb/lexer"
	"swsb/lowering"
	"swsb/parser"
	"swsb/pointsto"
	"swsb/scoreboard"
	"swsb/verifier"

	"github.com/nikandfor/errors"
	"github.com/nikandfor/tlog"
	"github.com/padeir0/pir"
)

// Model loads the hardware model at path, or the default one when
// path is empty, and applies the environment overrides
func Model(path string) (*hw.Model, *Error) {
	m := hw.Default()
	if path != "" {
		var err error
		m, err = hw.Load(path)
		if err != nil {
			return nil, modelError(err)
		}
	}
	m.ApplyEnv()
	err := m.Validate()
	if err != nil {
		return nil, modelError(err)
	}
	return m, nil
}

// processes a single file and returns all tokens
// or an error
func Lexemes(file string) ([]*kasm.Node, *Error) {
	s, err := getFile(file)
	if err != nil {
		return nil, err
	}
	st := lexer.NewLexer(file, s)
	return st.ReadAll()
}

// processes a single file and returns the kernel it describes
func Kernel(file string, m *hw.Model) (*gir.Kernel, *Error) {
	s, err := getFile(file)
	if err != nil {
		return nil, err
	}
	return parser.Parse(file, s, m.GRFSize)
}

// Check validates a kernel as written, annotations included: the
// kernel must be well formed and its synchronization sound
func Check(ctx context.Context, file string, m *hw.Model) (k *gir.Kernel, err *Error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "check", "file", file)
	defer tr.Finish("err", &err)

	k, err = Kernel(file, m)
	if err != nil {
		return nil, err
	}
	oracle := pointsto.FromKernel(k)
	err = checker.Check(k, m, oracle)
	if err != nil {
		return nil, err
	}
	errs := verifier.Verify(ctx, k, m, oracle)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return k, nil
}

// Schedule runs the scoreboard pass over the kernel in file
func Schedule(ctx context.Context, file string, m *hw.Model) (res *scoreboard.Result, err *Error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "schedule", "file", file)
	defer tr.Finish("err", &err)

	k, err := Kernel(file, m)
	if err != nil {
		return nil, err
	}
	return scoreboard.Run(ctx, k, m, nil)
}

// FromPir lowers every procedure of p and schedules the kernels
func FromPir(ctx context.Context, p *pir.Program, m *hw.Model) (out []*scoreboard.Result, err *Error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "from_pir", "program", p.Name)
	defer tr.Finish("err", &err)

	kernels, err := lowering.Lower(p, m)
	if err != nil {
		return nil, err
	}
	for _, k := range kernels {
		res, err := scoreboard.Run(ctx, k, m, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

func modelError(err error) *Error {
	if errors.Is(err, fs.ErrNotExist) {
		return ProcessFileError(err)
	}
	return &Error{
		Code:     et.InvalidHardwareModel,
		Severity: sv.Error,
		Message:  err.Error(),
	}
}

func getFile(file string) (string, *Error) {
	text, e := os.ReadFile(file)
	if e != nil {
		return "", ProcessFileError(errors.Wrap(e, "read kernel"))
	}
	return string(text), nil
}
