package judge0

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"
)

// Judge0 status ids. Anything above StatusProcessing is terminal.
const (
	StatusInQueue          = 1
	StatusProcessing       = 2
	StatusAccepted         = 3
	StatusCompilationError = 6
)

// BatchItem is one program execution request.
type BatchItem struct {
	SourceCode     string
	LanguageID     int
	Stdin          string
	ExpectedOutput string
}

// Status is the judge verdict of a single execution.
type Status struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

// Terminal reports whether the execution finished.
func (s Status) Terminal() bool {
	return s.ID > StatusProcessing
}

// Result is the decoded outcome of one execution.
type Result struct {
	Token         string
	Status        Status
	Stdout        string
	Stderr        string
	CompileOutput string
	Message       string
	// TimeSeconds is wall time reported by the judge.
	TimeSeconds float64
	MemoryKB    int64
}

type submissionRequest struct {
	SourceCode     string `json:"source_code"`
	LanguageID     int    `json:"language_id"`
	Stdin          string `json:"stdin,omitempty"`
	ExpectedOutput string `json:"expected_output,omitempty"`
}

type batchRequest struct {
	Submissions []submissionRequest `json:"submissions"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type batchResultResponse struct {
	Submissions []rawResult `json:"submissions"`
}

type rawResult struct {
	Token         string      `json:"token"`
	Status        *Status     `json:"status"`
	StatusID      *int        `json:"status_id"`
	Stdout        *string     `json:"stdout"`
	Stderr        *string     `json:"stderr"`
	CompileOutput *string     `json:"compile_output"`
	Message       *string     `json:"message"`
	Time          flexSeconds `json:"time"`
	Memory        *int64      `json:"memory"`
}

// flexSeconds accepts "0.012", 0.012 or null.
type flexSeconds float64

func (f *flexSeconds) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*f = flexSeconds(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexSeconds(v)
	return nil
}

func (r rawResult) decode() (Result, error) {
	out := Result{
		Token:       r.Token,
		TimeSeconds: float64(r.Time),
	}
	switch {
	case r.Status != nil:
		out.Status = *r.Status
	case r.StatusID != nil:
		out.Status = Status{ID: *r.StatusID}
	}
	if r.Memory != nil {
		out.MemoryKB = *r.Memory
	}
	fields := []struct {
		src *string
		dst *string
	}{
		{r.Stdout, &out.Stdout},
		{r.Stderr, &out.Stderr},
		{r.CompileOutput, &out.CompileOutput},
		{r.Message, &out.Message},
	}
	for _, f := range fields {
		if f.src == nil {
			continue
		}
		text, err := decodeBase64(*f.src)
		if err != nil {
			return Result{}, err
		}
		*f.dst = text
	}
	return out, nil
}

func encodeBase64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

// decodeBase64 tolerates the line breaks Judge0 inserts every 60 characters.
func decodeBase64(s string) (string, error) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, s)
	if clean == "" {
		return "", nil
	}
	b, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
