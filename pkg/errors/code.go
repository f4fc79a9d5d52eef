package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: Auth errors
// 12000-12999: Problem module errors
// 13000-13999: Submission & Judge module errors
// 14000-14999: Competition module errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	Forbidden           ErrorCode = 10005
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Database errors (10100-10199)
	DatabaseError       ErrorCode = 10100
	RecordNotFound      ErrorCode = 10101
	RecordAlreadyExists ErrorCode = 10102
	TransactionFailed   ErrorCode = 10103

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	RequiredFieldEmpty ErrorCode = 10303

	// ========== Auth Errors (11000-11999) ==========

	TokenExpired ErrorCode = 11003
	TokenInvalid ErrorCode = 11004

	// ========== Problem Module Errors (12000-12999) ==========

	ProblemNotFound         ErrorCode = 12000
	ProblemCreateFailed     ErrorCode = 12002
	ProblemSlugConflict     ErrorCode = 12006
	TestCaseInvalid         ErrorCode = 12102
	InvalidTag              ErrorCode = 12201
	ReferenceSolutionFailed ErrorCode = 12300

	// ========== Submission & Judge Module Errors (13000-13999) ==========

	// Submission (13000-13099)
	SubmissionNotFound     ErrorCode = 13000
	SubmissionCreateFailed ErrorCode = 13001
	CodeTooLarge           ErrorCode = 13002
	LanguageNotSupported   ErrorCode = 13003
	SubmitTooFrequently    ErrorCode = 13004
	DuplicateSubmission    ErrorCode = 13006

	// Judge (13100-13199)
	JudgeSystemError        ErrorCode = 13101
	CompilationError        ErrorCode = 13102
	RuntimeError            ErrorCode = 13103
	WrongAnswer             ErrorCode = 13107
	HarnessGenerationFailed ErrorCode = 13110
	JudgeUnavailable        ErrorCode = 13111
	JudgeTimeout            ErrorCode = 13112

	// ========== Competition Module Errors (14000-14999) ==========

	RoomNotFound         ErrorCode = 14000
	RoomFull             ErrorCode = 14001
	RoomAlreadyCompleted ErrorCode = 14002
	NotAParticipant      ErrorCode = 14003
	RoomCreateFailed     ErrorCode = 14004
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Unauthorized access",
	Forbidden:           "Access forbidden",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	// Database
	DatabaseError:       "Database operation failed",
	RecordNotFound:      "Record not found in database",
	RecordAlreadyExists: "Record already exists",
	TransactionFailed:   "Database transaction failed",

	// Cache
	CacheError: "Cache operation failed",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	RequiredFieldEmpty: "Required field is empty",

	// Auth
	TokenExpired: "Token has expired",
	TokenInvalid: "Invalid token",

	// Problem
	ProblemNotFound:         "Problem not found",
	ProblemCreateFailed:     "Failed to create problem",
	ProblemSlugConflict:     "A problem with this title already exists",
	TestCaseInvalid:         "Invalid test case format",
	InvalidTag:              "Invalid tag",
	ReferenceSolutionFailed: "Reference solution does not pass its own tests",

	// Submission
	SubmissionNotFound:     "Submission not found",
	SubmissionCreateFailed: "Failed to create submission",
	CodeTooLarge:           "Code is too large",
	LanguageNotSupported:   "Programming language not supported",
	SubmitTooFrequently:    "Submitting too frequently, please wait",
	DuplicateSubmission:    "Duplicate submission",

	// Judge
	JudgeSystemError:        "Judge system error",
	CompilationError:        "Compilation error",
	RuntimeError:            "Runtime error",
	WrongAnswer:             "Wrong answer",
	HarnessGenerationFailed: "Could not build a test harness for this code",
	JudgeUnavailable:        "Judge service is unavailable",
	JudgeTimeout:            "Judge did not finish in time",

	// Competition
	RoomNotFound:         "Competition room not found",
	RoomFull:             "Competition room is full",
	RoomAlreadyCompleted: "Competition has already been completed",
	NotAParticipant:      "You are not a participant of this competition",
	RoomCreateFailed:     "Failed to create competition room",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == Unauthorized, c == TokenExpired, c == TokenInvalid:
		return 401
	case c == Forbidden, c == NotAParticipant:
		return 403
	case c == NotFound, c == RecordNotFound, c == ProblemNotFound, c == SubmissionNotFound, c == RoomNotFound:
		return 404
	case c == RoomFull, c == RoomAlreadyCompleted, c == DuplicateSubmission, c == ProblemSlugConflict:
		return 409
	case c == HarnessGenerationFailed, c == ReferenceSolutionFailed, c == TestCaseInvalid, c == InvalidTag:
		return 422
	case c == TooManyRequests, c == SubmitTooFrequently:
		return 429
	case c == JudgeUnavailable:
		return 502
	case c == ServiceUnavailable:
		return 503
	case c == JudgeTimeout, c == Timeout:
		return 504
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c == InvalidParams, c == CodeTooLarge, c == LanguageNotSupported:
		return 400
	default:
		return 500
	}
}
