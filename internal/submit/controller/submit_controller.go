package controller

import (
	"strings"

	"codearena/internal/common/http/middleware"
	"codearena/internal/judge/verdict"
	"codearena/internal/submit/service"
	"codearena/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// SubmitController handles submission HTTP endpoints.
type SubmitController struct {
	submitService   *service.SubmitService
	progressService *service.ProgressService
}

// NewSubmitController creates a new SubmitController.
func NewSubmitController(submitService *service.SubmitService, progressService *service.ProgressService) *SubmitController {
	return &SubmitController{submitService: submitService, progressService: progressService}
}

// SubmitRequest is the body of submission and run requests.
type SubmitRequest struct {
	ProblemID  int64  `json:"problemId"`
	Language   string `json:"language"`
	SourceCode string `json:"sourceCode"`
}

// RunResponse is the visible-test breakdown.
type RunResponse struct {
	AllPassed   bool                 `json:"allPassed"`
	TestsPassed int                  `json:"testsPassed"`
	TestsTotal  int                  `json:"testsTotal"`
	RuntimeMs   int64                `json:"runtimeMs"`
	MemoryKB    int64                `json:"memoryKb"`
	FirstError  *verdict.Failure     `json:"firstError,omitempty"`
	Cases       []verdict.CaseResult `json:"cases"`
}

// Create handles hidden-test submissions.
func (h *SubmitController) Create(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Missing user identity")
		return
	}
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	result, err := h.submitService.Submit(c.Request.Context(), service.SubmitInput{
		ProblemID:      req.ProblemID,
		UserID:         userID,
		Language:       req.Language,
		SourceCode:     req.SourceCode,
		IdempotencyKey: strings.TrimSpace(c.GetHeader("Idempotency-Key")),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// Run handles visible-test runs.
func (h *SubmitController) Run(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Missing user identity")
		return
	}
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	v, err := h.submitService.Run(c.Request.Context(), service.RunInput{
		ProblemID:  req.ProblemID,
		UserID:     userID,
		Language:   req.Language,
		SourceCode: req.SourceCode,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	cases := v.Cases
	if cases == nil {
		cases = []verdict.CaseResult{}
	}
	response.Success(c, RunResponse{
		AllPassed:   v.AllPassed,
		TestsPassed: v.TestsPassed,
		TestsTotal:  v.TestsTotal,
		RuntimeMs:   v.RuntimeMs,
		MemoryKB:    v.MemoryKB,
		FirstError:  v.FirstError,
		Cases:       cases,
	})
}

// Get returns one of the caller's submissions.
func (h *SubmitController) Get(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Missing user identity")
		return
	}
	submissionID := c.Param("id")
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	submission, err := h.submitService.GetSubmission(c.Request.Context(), userID, submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, submission)
}

// GetSource returns the archived source of one of the caller's submissions.
func (h *SubmitController) GetSource(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Missing user identity")
		return
	}
	source, err := h.submitService.GetArchivedSource(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"submissionId": c.Param("id"), "sourceCode": source})
}

// Progress returns the caller's stats, badges and monthly progress.
func (h *SubmitController) Progress(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Missing user identity")
		return
	}
	progress, err := h.progressService.Get(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, progress)
}
