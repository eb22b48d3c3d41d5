package testing

import (
	"context"
	"fmt"
	"strings"

	. "swsb/core"
	et "swsb/core/errorkind"
	"swsb/core/hw"
	"swsb/pipelines"

	"github.com/fatih/color"
)

// files are tested by running a stage over them
//
// the expected outcome is located directly in the name
// of the file:
// 	kernel_name.E012.kasm
// 	            ^ error code
// 	kernel_name.kasm
// 	           ^ no error code (stage must succeed)

type TestResult struct {
	File    string
	Message string
	Ok      bool
}

var (
	okColor   = color.New(color.FgBlue).SprintFunc()
	failColor = color.New(color.FgRed).SprintFunc()
)

func (res *TestResult) String() string {
	if res.Ok {
		return okColor("ok")
	}
	return failColor("fail")
}

type Stage func(filename string, m *hw.Model) *Error

func S_Lexer(filename string, m *hw.Model) *Error {
	_, err := pipelines.Lexemes(filename)
	return err
}

func S_Parser(filename string, m *hw.Model) *Error {
	_, err := pipelines.Kernel(filename, m)
	return err
}

// S_Checker takes the kernel annotations as they are written
func S_Checker(filename string, m *hw.Model) *Error {
	_, err := pipelines.Check(context.Background(), filename, m)
	return err
}

func S_Schedule(filename string, m *hw.Model) *Error {
	_, err := pipelines.Schedule(context.Background(), filename, m)
	return err
}

func Test(file string, st Stage, m *hw.Model) (res TestResult) {
	defer recoverIfFatal(file, &res)
	expectedErr := extractError(file)

	err := st(file, m)

	if err != nil && err.Code == et.InternalCompilerError {
		return TestResult{
			File:    file,
			Ok:      false,
			Message: err.Message,
		}
	}
	return compareError(file, err, expectedErr)
}

func recoverIfFatal(file string, res *TestResult) {
	if r := recover(); r != nil {
		*res = TestResult{
			File:    file,
			Ok:      false,
			Message: failColor(fmt.Sprintf("fatal error: %v", r)),
		}
	}
}

func extractError(file string) string {
	pathlist := strings.Split(file, "/")
	name := pathlist[len(pathlist)-1]
	sections := strings.Split(name, ".")
	if len(sections) < 3 {
		return ""
	}
	err := sections[len(sections)-2]
	return err
}

func compareError(file string, err *Error, expectedErr string) TestResult {
	if err != nil && expectedErr == "" {
		msg := "expected no errors, instead found: " +
			err.ErrCode() + " " + err.Message
		return TestResult{
			File:    file,
			Message: msg,
			Ok:      false,
		}
	} else if err == nil && expectedErr != "" {
		msg := "expected error " + expectedErr +
			", instead found nothing"
		return TestResult{
			File:    file,
			Message: msg,
			Ok:      false,
		}
	} else if err != nil && expectedErr != "" {
		actual := err.ErrCode()
		if actual != expectedErr {
			msg := "expected error " + expectedErr +
				", instead found " + actual + " " + err.Message
			return TestResult{
				File:    file,
				Message: msg,
				Ok:      false,
			}
		}
	}
	return TestResult{
		File: file,
		Ok:   true,
	}
}
