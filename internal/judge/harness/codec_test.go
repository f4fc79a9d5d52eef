package harness

import "testing"

func TestParseInput(t *testing.T) {
	tests := []struct {
		line    string
		list    string
		scalar  int64
		has     bool
		wantErr bool
	}{
		{line: "[1,2,3]", list: "[1,2,3]"},
		{line: " [ 2, 7 ,11,15 ] , 9 ", list: "[2,7,11,15]", scalar: 9, has: true},
		{line: "[]", list: "[]"},
		{line: "[-4,0]", list: "[-4,0]"},
		{line: "1,2", wantErr: true},
		{line: "[1,2", wantErr: true},
		{line: "[1,a]", wantErr: true},
		{line: "[1] 3", wantErr: true},
		{line: "[1],x", wantErr: true},
	}
	for _, tt := range tests {
		in, err := ParseInput(tt.line)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseInput(%q) expected error", tt.line)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseInput(%q) failed: %v", tt.line, err)
		}
		if got := FormatList(in.List); got != tt.list {
			t.Fatalf("ParseInput(%q) list = %s, want %s", tt.line, got, tt.list)
		}
		if in.HasScalar != tt.has || in.Scalar != tt.scalar {
			t.Fatalf("ParseInput(%q) scalar = %d/%v", tt.line, in.Scalar, in.HasScalar)
		}
	}
}

func TestFormatRoundTrip(t *testing.T) {
	for _, line := range []string{"[0,1]", "[]", "[5]", "[-1,-2,3]"} {
		in, err := ParseInput(line)
		if err != nil {
			t.Fatalf("parse %q: %v", line, err)
		}
		if got := FormatList(in.List); got != line {
			t.Fatalf("round trip %q gave %q", line, got)
		}
	}
}

func TestCheckInput(t *testing.T) {
	if err := TwoArgument.CheckInput("[2,7,11,15],9"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := TwoArgument.CheckInput("[2,7]"); err == nil {
		t.Fatalf("two-argument input without scalar should fail")
	}
	if err := SingleArray.CheckInput("[1],2"); err == nil {
		t.Fatalf("single-array input with scalar should fail")
	}
	if err := LinkedList.CheckInput("[1,2,3]"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCanonicalOutput(t *testing.T) {
	tests := map[string]string{
		"[0, 1]":  "[0,1]",
		" 42\n":   "42",
		"+7":      "7",
		"True":    "true",
		"[[1,2]]": "[[1,2]]",
		"hello":   "hello",
		"[ ]":     "[]",
		"[1, x]":  "[1, x]",
	}
	for in, want := range tests {
		if got := CanonicalOutput(in); got != want {
			t.Fatalf("CanonicalOutput(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFamilyForTags(t *testing.T) {
	tests := []struct {
		tags []string
		want Family
	}{
		{tags: nil, want: SingleArray},
		{tags: []string{"array", "sorting"}, want: SingleArray},
		{tags: []string{"array", "two-pointers"}, want: TwoArgument},
		{tags: []string{"hash-table", "linked-list"}, want: LinkedList},
	}
	for _, tt := range tests {
		if got := FamilyForTags(tt.tags); got != tt.want {
			t.Fatalf("FamilyForTags(%v) = %s, want %s", tt.tags, got, tt.want)
		}
	}
}

func TestParseLanguage(t *testing.T) {
	for name, want := range map[string]Language{"C++": CPP, "python3": Python, " Java ": Java} {
		got, ok := ParseLanguage(name)
		if !ok || got != want {
			t.Fatalf("ParseLanguage(%q) = %s/%v", name, got, ok)
		}
	}
	if _, ok := ParseLanguage("rust"); ok {
		t.Fatalf("rust should not be supported")
	}
	if CPP.JudgeID() != 54 || Java.JudgeID() != 62 || Python.JudgeID() != 71 {
		t.Fatalf("unexpected judge ids")
	}
}
