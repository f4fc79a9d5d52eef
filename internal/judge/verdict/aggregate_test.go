package verdict

import (
	"testing"

	"codearena/internal/judge/judge0"
)

func accepted(stdout string, seconds float64, mem int64) judge0.Result {
	return judge0.Result{
		Status:      judge0.Status{ID: judge0.StatusAccepted, Description: "Accepted"},
		Stdout:      stdout,
		TimeSeconds: seconds,
		MemoryKB:    mem,
	}
}

func TestAggregateAllAccepted(t *testing.T) {
	tests := []TestCase{{Input: "[1,2,3]", ExpectedOutput: "6"}}
	v := Aggregate([]judge0.Result{accepted("6\n", 0.004, 1200)}, tests)
	if !v.AllPassed || v.TestsPassed != 1 || v.TestsTotal != 1 {
		t.Fatalf("unexpected verdict: %+v", v)
	}
	if v.RuntimeMs != 4 || v.MemoryKB != 1200 || v.FirstError != nil {
		t.Fatalf("unexpected metrics: %+v", v)
	}
	if v.Cases[0].Actual != "6" || !v.Cases[0].Passed {
		t.Fatalf("unexpected case: %+v", v.Cases[0])
	}
}

func TestAggregateFullIteration(t *testing.T) {
	tests := []TestCase{
		{Input: "[1]", ExpectedOutput: "1"},
		{Input: "[2]", ExpectedOutput: "2"},
		{Input: "[3]", ExpectedOutput: "3"},
		{Input: "[4]", ExpectedOutput: "4"},
	}
	results := []judge0.Result{
		accepted("1", 0.010, 900),
		{Status: judge0.Status{ID: 4, Description: "Runtime Error"}, Stderr: "segfault"},
		accepted("3", 0.020, 1500),
		{Status: judge0.Status{ID: 5, Description: "Time Limit Exceeded"}, Stderr: "later"},
	}
	v := Aggregate(results, tests)
	if v.AllPassed {
		t.Fatalf("expected failure")
	}
	if v.TestsPassed != 2 {
		t.Fatalf("passed count should include tests after the first failure, got %d", v.TestsPassed)
	}
	if v.RuntimeMs != 30 || v.MemoryKB != 1500 {
		t.Fatalf("unexpected runtime/memory: %d/%d", v.RuntimeMs, v.MemoryKB)
	}
	if v.FirstError == nil || v.FirstError.Index != 1 || v.FirstError.Kind != RuntimeFault || v.FirstError.Message != "segfault" {
		t.Fatalf("unexpected first error: %+v", v.FirstError)
	}
	if len(v.Cases) != 4 || v.Cases[3].Passed {
		t.Fatalf("unexpected cases: %+v", v.Cases)
	}
}

func TestAggregateCompileOutputWins(t *testing.T) {
	results := []judge0.Result{{
		Status:        judge0.Status{ID: judge0.StatusCompilationError, Description: "Compilation Error"},
		Stderr:        "ignored",
		CompileOutput: "main.cpp:1: error: expected ';'",
	}}
	v := Aggregate(results, []TestCase{{Input: "[1]", ExpectedOutput: "1"}})
	if v.FirstError.Kind != CompileFault || v.FirstError.Message != "main.cpp:1: error: expected ';'" {
		t.Fatalf("unexpected failure: %+v", v.FirstError)
	}
}

func TestAggregateWrongAnswerMessage(t *testing.T) {
	results := []judge0.Result{{Status: judge0.Status{ID: 5, Description: "Time Limit Exceeded"}, Stdout: "2"}}
	v := Aggregate(results, []TestCase{{Input: "[1]", ExpectedOutput: "1"}})
	if v.FirstError.Kind != WrongAnswer || v.FirstError.Message != "test 1: Time Limit Exceeded" {
		t.Fatalf("unexpected failure: %+v", v.FirstError)
	}
}

func TestAggregateMissingResults(t *testing.T) {
	tests := []TestCase{{Input: "[1]", ExpectedOutput: "1"}, {Input: "[2]", ExpectedOutput: "2"}}
	v := Aggregate([]judge0.Result{accepted("1", 0, 0)}, tests)
	if v.AllPassed || v.TestsPassed != 1 || v.FirstError == nil || v.FirstError.Index != 1 {
		t.Fatalf("unexpected verdict: %+v", v)
	}
}

func TestAggregateEmpty(t *testing.T) {
	if v := Aggregate(nil, nil); v.AllPassed {
		t.Fatalf("empty batch must not pass")
	}
}

func TestAggregateRuntimeFaultWithCompilerWarning(t *testing.T) {
	results := []judge0.Result{{
		Status:        judge0.Status{ID: 4, Description: "Runtime Error (SIGSEGV)"},
		Stderr:        "Segmentation fault",
		CompileOutput: "main.cpp:3:9: warning: unused variable 'x' [-Wunused-variable]\n",
	}}
	v := Aggregate(results, []TestCase{{Input: "[1]", ExpectedOutput: "1"}})
	if v.FirstError.Kind != RuntimeFault || v.FirstError.Message != "Segmentation fault" {
		t.Fatalf("unexpected failure: %+v", v.FirstError)
	}
}

func TestFaultKindFollowsStatusID(t *testing.T) {
	const warning = "Main.java:2: warning: [deprecation] Integer(int) has been deprecated\n"
	cases := []struct {
		status        int
		compileOutput string
		stderr        string
		wantKind      FaultKind
		wantMessage   string
	}{
		{4, "", "boom", RuntimeFault, "boom"},
		{4, warning, "boom", RuntimeFault, "boom"},
		{5, "", "", WrongAnswer, "test 1: status"},
		{5, warning, "", WrongAnswer, "test 1: status"},
		{7, warning, "killed", WrongAnswer, "killed"},
		{6, "main.cpp:1: error: expected ';'", "", CompileFault, "main.cpp:1: error: expected ';'"},
		{6, "", "", CompileFault, "test 1: status"},
	}
	for _, tc := range cases {
		res := judge0.Result{
			Status:        judge0.Status{ID: tc.status, Description: "status"},
			Stderr:        tc.stderr,
			CompileOutput: tc.compileOutput,
		}
		if got := Kind(res); got != tc.wantKind {
			t.Fatalf("status %d with compile output %q: kind %s, want %s", tc.status, tc.compileOutput, got, tc.wantKind)
		}
		v := Aggregate([]judge0.Result{res}, []TestCase{{Input: "[1]", ExpectedOutput: "1"}})
		if v.FirstError.Message != tc.wantMessage {
			t.Fatalf("status %d with compile output %q: message %q, want %q", tc.status, tc.compileOutput, v.FirstError.Message, tc.wantMessage)
		}
	}
}
