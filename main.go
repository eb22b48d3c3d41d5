package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"

	. "swsb/core"
	"swsb/core/hw"
	"swsb/pipelines"
	"swsb/testing"

	"github.com/fatih/color"
	"github.com/nikandfor/tlog"
)

var lexemes = flag.Bool("lexemes", false, "runs the lexer and prints the tokens")
var kernel = flag.Bool("kernel", false, "runs the parser and prints the kernel")
var check = flag.Bool("check", false, "checks the synchronization already written in the kernel")
var deps = flag.Bool("deps", false, "runs the pass, prints the dependence graph")
var live = flag.Bool("live", false, "runs the pass, prints the live send sets")
var tokens = flag.Bool("tokens", false, "runs the pass, prints the token intervals")
var stats = flag.Bool("stats", false, "runs the pass, prints the profile counters")

var hwFile = flag.String("hw", "", "hardware model file (yaml)")
var quick = flag.Bool("quick", false, "round-robin token assignment")

var test = flag.Bool("test", false, "runs tests for all files in a folder")
var verbose = flag.Bool("v", false, "verbose tests")

var trace = flag.String("trace", "", "trace topics (dump_deps, dump_live, dump_tokens, dump_sync or *)")
var profile = flag.Bool("prof", false, "start profiler")

var (
	warnColor  = color.New(color.FgYellow).SprintFunc()
	enterColor = color.New(color.FgMagenta).SprintFunc()
)

func main() {
	flag.Parse()
	if *profile {
		file := "out.pprof"
		f, err := os.Create(file)
		if err != nil {
			fmt.Println(err)
			os.Exit(0)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}
	args := flag.Args()
	if len(args) != 1 {
		Fatal("invalid number of arguments\n")
	}
	eval(args[0])
}

func eval(filename string) {
	checkValid()
	m, err := pipelines.Model(*hwFile)
	OkOrBurst(err)
	if *quick {
		m.Quick = true
	}
	if *test {
		res := Test(filename, getStage(), m)
		printResults(res)
		return
	}
	normalMode(filename, m)
}

func normalMode(filename string, m *hw.Model) {
	ctx := context.Background()
	if *trace != "" {
		tlog.SetVerbosity(*trace)
		tr := tlog.Start("swsb", "file", filename)
		defer tr.Finish()
		ctx = tlog.ContextWithSpan(ctx, tr)
	}
	switch true {
	case *lexemes:
		lexemes, err := pipelines.Lexemes(filename)
		OkOrBurst(err)
		output := []string{}
		for _, lexeme := range lexemes {
			output = append(output, lexeme.String())
		}
		fmt.Println(strings.Join(output, ", "))
	case *kernel:
		k, err := pipelines.Kernel(filename, m)
		OkOrBurst(err)
		fmt.Println(k)
	case *check:
		_, err := pipelines.Check(ctx, filename, m)
		OkOrBurst(err)
		fmt.Println("ok")
	default:
		res, err := pipelines.Schedule(ctx, filename, m)
		OkOrBurst(err)
		for _, d := range res.Diagnostics {
			Stderr(warnColor(d.String()) + "\n")
		}
		switch true {
		case *deps:
			fmt.Println(res.Context.DumpGraph())
		case *live:
			fmt.Println(res.Context.DumpLive())
		case *tokens:
			for _, iv := range res.Allocation.Intervals {
				fmt.Println(iv)
			}
			fmt.Println("peak: " + strconv.Itoa(res.Allocation.Peak))
		case *stats:
			fmt.Print(res.Profile)
		default:
			fmt.Println(res.Context.Kernel)
		}
	}
}

func checkValid() {
	var selected = []bool{*lexemes, *kernel, *check, *deps, *live, *tokens, *stats}
	var count = 0
	for _, b := range selected {
		if b {
			count++
		}
	}
	if count > 1 {
		Fatal("only one of lexemes, kernel, check, deps, live, tokens or stats flags may be used at a time\n")
	}
}

func printResults(results []*testing.TestResult) {
	failed := 0
	Stdout("\n")
	for _, res := range results {
		if !res.Ok && res.Message != "" {
			Stdout(res.File + "\t" + res.Message + "\n")
		}
		if !res.Ok {
			failed += 1
		}
	}
	Stdout("\n")
	Stdout("failed: " + strconv.Itoa(failed) + "\n")
	Stdout("total: " + strconv.Itoa(len(results)) + "\n")
}

func Test(folder string, st testing.Stage, m *hw.Model) []*testing.TestResult {
	entries, err := os.ReadDir(folder)
	if err != nil {
		Fatal(err.Error() + "\n")
	}
	results := []*testing.TestResult{}
	for _, v := range entries {
		fullpath := folder + "/" + v.Name()
		if v.IsDir() {
			if *verbose {
				Stdout(enterColor(" entering: "+fullpath) + "\n")
			}
			res := Test(fullpath, st, m)
			results = append(results, res...)
			if *verbose {
				Stdout(enterColor(" leaving: "+fullpath) + "\n")
			}
		} else if strings.HasSuffix(v.Name(), ".kasm") {
			res := testing.Test(fullpath, st, m)
			results = append(results, &res)
			if *verbose {
				Stdout("testing: " + fullpath + "\t")
				Stdout(res.String() + "\n")
			}
		}
	}
	return results
}

func getStage() testing.Stage {
	switch {
	case *lexemes:
		return testing.S_Lexer
	case *kernel:
		return testing.S_Parser
	case *check:
		return testing.S_Checker
	default:
		return testing.S_Schedule
	}
}

func OkOrBurst(e *Error) {
	if e != nil {
		Fatal(e.String() + "\n")
	}
}

func Stdout(s string) {
	os.Stdout.Write([]byte(s))
}

func Stderr(s string) {
	os.Stderr.Write([]byte(s))
}

func Fatal(s string) {
	os.Stderr.Write([]byte(s))
	os.Exit(1)
}
