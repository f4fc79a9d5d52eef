package errors

import (
	stderrors "errors"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// FromValidation converts an ozzo-validation result into a ValidationFailed error.
// Each failing field becomes a detail entry; the message names the first field.
func FromValidation(err error) *Error {
	if err == nil {
		return nil
	}
	var internal validation.InternalError
	if stderrors.As(err, &internal) {
		return InternalError(err)
	}
	var fieldErrs validation.Errors
	if !stderrors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return New(ValidationFailed).WithMessage(err.Error())
	}

	fields := make([]string, 0, len(fieldErrs))
	for field := range fieldErrs {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	out := New(ValidationFailed)
	for _, field := range fields {
		out.WithDetail(field, fieldErrs[field].Error())
	}
	out.Message = fields[0] + ": " + fieldErrs[fields[0]].Error()
	return out
}
