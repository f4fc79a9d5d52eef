package errors_test

import (
	"errors"
	"fmt"
	"testing"

	. "codearena/pkg/errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code       ErrorCode
		wantStatus int
	}{
		{Success, 200},
		{InvalidParams, 400},
		{ValidationFailed, 400},
		{TokenInvalid, 401},
		{NotAParticipant, 403},
		{RoomNotFound, 404},
		{RoomFull, 409},
		{RoomAlreadyCompleted, 409},
		{HarnessGenerationFailed, 422},
		{ReferenceSolutionFailed, 422},
		{SubmitTooFrequently, 429},
		{JudgeUnavailable, 502},
		{JudgeTimeout, 504},
		{InternalServerError, 500},
	}

	for _, tt := range tests {
		t.Run(tt.code.Message(), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.wantStatus {
				t.Errorf("HTTPStatus() = %v, want %v", got, tt.wantStatus)
			}
		})
	}
}

func TestWrapKeepsCause(t *testing.T) {
	originalErr := errors.New("connection refused")
	wrappedErr := Wrapf(originalErr, JudgeUnavailable, "submit batch failed")

	if wrappedErr.Code != JudgeUnavailable {
		t.Errorf("Code = %v, want %v", wrappedErr.Code, JudgeUnavailable)
	}
	if !errors.Is(wrappedErr, originalErr) {
		t.Error("wrapped error should unwrap to the cause")
	}
}

func TestGetCodeThroughFmtWrapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{name: "nil error", err: nil, want: Success},
		{name: "custom error", err: New(JudgeTimeout), want: JudgeTimeout},
		{name: "fmt wrapped", err: fmt.Errorf("judge: %w", New(RoomFull)), want: RoomFull},
		{name: "standard error", err: errors.New("standard error"), want: InternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.want {
				t.Errorf("GetCode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsAndIsAny(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(NotAParticipant))

	if !Is(err, NotAParticipant) {
		t.Error("Is() should return true for matching code")
	}
	if Is(err, RoomFull) {
		t.Error("Is() should return false for non-matching code")
	}
	if Is(nil, RoomFull) {
		t.Error("Is() should return false for nil error")
	}
	if !IsAny(err, RoomFull, NotAParticipant) {
		t.Error("IsAny() should match one of the codes")
	}
}

func TestFromValidation(t *testing.T) {
	type input struct {
		Language string
		Code     string
	}
	in := input{Language: "cobol"}
	err := validation.ValidateStruct(&in,
		validation.Field(&in.Language, validation.In("cpp", "java", "python")),
		validation.Field(&in.Code, validation.Required),
	)
	if err == nil {
		t.Fatal("expected validation error")
	}

	got := FromValidation(err)
	if got.Code != ValidationFailed {
		t.Fatalf("Code = %v, want %v", got.Code, ValidationFailed)
	}
	if _, ok := got.Details["Language"]; !ok {
		t.Fatalf("missing Language detail: %v", got.Details)
	}
	if _, ok := got.Details["Code"]; !ok {
		t.Fatalf("missing Code detail: %v", got.Details)
	}
	if FromValidation(nil) != nil {
		t.Fatal("nil in, nil out")
	}
}

func TestValidationError(t *testing.T) {
	err := ValidationError("language", "unsupported")
	if err.Code != ValidationFailed {
		t.Error("ValidationError should use ValidationFailed code")
	}
	if err.Details["field"] != "language" {
		t.Error("Field detail not set")
	}
}
