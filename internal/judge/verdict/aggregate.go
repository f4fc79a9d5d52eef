package verdict

import (
	"fmt"
	"math"
	"strings"

	"codearena/internal/judge/judge0"
)

// FaultKind classifies a non-accepted test.
type FaultKind string

const (
	CompileFault FaultKind = "compile-error"
	RuntimeFault FaultKind = "runtime-error"
	WrongAnswer  FaultKind = "wrong-answer"
)

const statusRuntimeFault = 4

// TestCase is one stdin/expected-output pair in judge order.
type TestCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
	Explanation    string `json:"explanation,omitempty"`
}

// CaseResult pairs a test with its judged outcome.
type CaseResult struct {
	Index         int    `json:"index"`
	Input         string `json:"input"`
	Expected      string `json:"expected"`
	Actual        string `json:"actual"`
	Passed        bool   `json:"passed"`
	StatusID      int    `json:"statusId"`
	Status        string `json:"status"`
	RuntimeMs     int64  `json:"runtimeMs"`
	MemoryKB      int64  `json:"memoryKb"`
	Stderr        string `json:"stderr,omitempty"`
	CompileOutput string `json:"compileOutput,omitempty"`
}

// Failure describes the first non-accepted test.
type Failure struct {
	Index    int       `json:"index"`
	Kind     FaultKind `json:"kind"`
	StatusID int       `json:"statusId"`
	Message  string    `json:"message"`
}

// Verdict is the aggregate over a batch.
type Verdict struct {
	AllPassed   bool         `json:"allPassed"`
	TestsPassed int          `json:"testsPassed"`
	TestsTotal  int          `json:"testsTotal"`
	RuntimeMs   int64        `json:"runtimeMs"`
	MemoryKB    int64        `json:"memoryKb"`
	FirstError  *Failure     `json:"firstError,omitempty"`
	Cases       []CaseResult `json:"cases"`
}

// Aggregate visits every result in test order. TestsPassed counts all accepted
// tests, runtime sums and memory peaks over accepted tests only, and only the
// first failure is reported.
func Aggregate(results []judge0.Result, tests []TestCase) Verdict {
	v := Verdict{
		TestsTotal: len(tests),
		Cases:      make([]CaseResult, 0, len(tests)),
	}
	for i, tc := range tests {
		cr := CaseResult{Index: i, Input: tc.Input, Expected: tc.ExpectedOutput}
		if i >= len(results) {
			cr.Status = "Missing"
			v.Cases = append(v.Cases, cr)
			if v.FirstError == nil {
				v.FirstError = &Failure{Index: i, Kind: WrongAnswer, Message: fmt.Sprintf("test %d: no result from judge", i+1)}
			}
			continue
		}

		res := results[i]
		cr.Actual = strings.TrimRight(res.Stdout, "\r\n")
		cr.StatusID = res.Status.ID
		cr.Status = res.Status.Description
		cr.RuntimeMs = toMillis(res.TimeSeconds)
		cr.MemoryKB = res.MemoryKB
		cr.Stderr = res.Stderr
		cr.CompileOutput = res.CompileOutput

		if res.Status.ID == judge0.StatusAccepted {
			cr.Passed = true
			v.TestsPassed++
			v.RuntimeMs += cr.RuntimeMs
			if res.MemoryKB > v.MemoryKB {
				v.MemoryKB = res.MemoryKB
			}
		} else if v.FirstError == nil {
			v.FirstError = classify(i, res)
		}
		v.Cases = append(v.Cases, cr)
	}
	v.AllPassed = v.TestsTotal > 0 && v.TestsPassed == v.TestsTotal
	return v
}

// Kind returns the fault kind of a terminal non-accepted result. Only the status
// id decides: compile_output also carries warnings from successful compiles.
func Kind(res judge0.Result) FaultKind {
	switch res.Status.ID {
	case judge0.StatusCompilationError:
		return CompileFault
	case statusRuntimeFault:
		return RuntimeFault
	default:
		return WrongAnswer
	}
}

func classify(index int, res judge0.Result) *Failure {
	f := &Failure{Index: index, Kind: Kind(res), StatusID: res.Status.ID}
	switch {
	case f.Kind == CompileFault && strings.TrimSpace(res.CompileOutput) != "":
		f.Message = res.CompileOutput
	case strings.TrimSpace(res.Stderr) != "":
		f.Message = res.Stderr
	case strings.TrimSpace(res.Message) != "":
		f.Message = res.Message
	case res.Status.Description != "":
		f.Message = fmt.Sprintf("test %d: %s", index+1, res.Status.Description)
	default:
		f.Message = fmt.Sprintf("test %d: %s", index+1, f.Kind)
	}
	return f
}

func toMillis(seconds float64) int64 {
	return int64(math.Round(seconds * 1000))
}
