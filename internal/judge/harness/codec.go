package harness

import (
	"fmt"
	"strconv"
	"strings"
)

// Input is one decoded stdin line.
type Input struct {
	List      []int64
	Scalar    int64
	HasScalar bool
}

// ParseInput decodes "[a,b,c]" or "[a,b,c],k". Whitespace around items is tolerated.
func ParseInput(line string) (Input, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "[") {
		return Input{}, fmt.Errorf("input must start with '['")
	}
	end := strings.IndexByte(line, ']')
	if end < 0 {
		return Input{}, fmt.Errorf("input is missing ']'")
	}
	list, err := parseList(line[1:end])
	if err != nil {
		return Input{}, err
	}
	in := Input{List: list}

	rest := strings.TrimSpace(line[end+1:])
	if rest == "" {
		return in, nil
	}
	if !strings.HasPrefix(rest, ",") {
		return Input{}, fmt.Errorf("unexpected %q after list", rest)
	}
	scalar, err := strconv.ParseInt(strings.TrimSpace(rest[1:]), 10, 64)
	if err != nil {
		return Input{}, fmt.Errorf("invalid scalar argument: %w", err)
	}
	in.Scalar = scalar
	in.HasScalar = true
	return in, nil
}

func parseList(body string) ([]int64, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return []int64{}, nil
	}
	parts := strings.Split(body, ",")
	out := make([]int64, 0, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("list item %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// FormatList renders the canonical bracket form, e.g. "[0,1]".
func FormatList(values []int64) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range values {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(v, 10))
	}
	b.WriteByte(']')
	return b.String()
}

// FormatScalar renders a bare integer.
func FormatScalar(v int64) string {
	return strconv.FormatInt(v, 10)
}

// CheckInput verifies a stdin line has the shape the family reads.
func (f Family) CheckInput(line string) error {
	in, err := ParseInput(line)
	if err != nil {
		return err
	}
	if f == TwoArgument && !in.HasScalar {
		return fmt.Errorf("%s input needs a trailing scalar, e.g. [1,2,3],9", f)
	}
	if f != TwoArgument && in.HasScalar {
		return fmt.Errorf("%s input takes a single list", f)
	}
	return nil
}

// CanonicalOutput rewrites an expected output into the exact form harnesses print.
// Lists and integers are normalized; anything else is only trimmed.
func CanonicalOutput(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") && !strings.Contains(s[1:len(s)-1], "[") {
		if list, err := parseList(s[1 : len(s)-1]); err == nil {
			return FormatList(list)
		}
		return s
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return FormatScalar(v)
	}
	switch strings.ToLower(s) {
	case "true", "false":
		return strings.ToLower(s)
	}
	return s
}
