package controller

import (
	"strconv"
	"time"

	"codearena/internal/common/http/middleware"
	"codearena/internal/problem/repository"
	"codearena/internal/problem/service"
	"codearena/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// ProblemController handles problem HTTP endpoints.
type ProblemController struct {
	problemService *service.ProblemService
}

// NewProblemController creates a new ProblemController.
func NewProblemController(problemService *service.ProblemService) *ProblemController {
	return &ProblemController{problemService: problemService}
}

// CreateProblemRequest is the body of POST /problems.
type CreateProblemRequest struct {
	Title              string              `json:"title"`
	Description        string              `json:"description"`
	Difficulty         string              `json:"difficulty"`
	Tags               []string            `json:"tags"`
	StarterCode        map[string]string   `json:"starterCode"`
	VisibleTests       []service.TestInput `json:"visibleTests"`
	HiddenTests        []service.TestInput `json:"hiddenTests"`
	ReferenceSolutions map[string]string   `json:"referenceSolutions"`
}

// ProblemResponse is the public view of a problem. Hidden tests are reduced to a count.
type ProblemResponse struct {
	ID              int64                 `json:"id"`
	Slug            string                `json:"slug"`
	Title           string                `json:"title"`
	Description     string                `json:"description"`
	Difficulty      string                `json:"difficulty"`
	Tags            []string              `json:"tags"`
	StarterCode     map[string]string     `json:"starterCode,omitempty"`
	VisibleTests    []repository.TestCase `json:"visibleTests"`
	HiddenTestCount int                   `json:"hiddenTestCount"`
	CreatedAt       string                `json:"createdAt,omitempty"`
}

// Create handles problem creation.
func (h *ProblemController) Create(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Missing user identity")
		return
	}
	var req CreateProblemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	problem, err := h.problemService.Create(c.Request.Context(), service.CreateInput{
		Title:              req.Title,
		Description:        req.Description,
		Difficulty:         req.Difficulty,
		Tags:               req.Tags,
		StarterCode:        req.StarterCode,
		VisibleTests:       req.VisibleTests,
		HiddenTests:        req.HiddenTests,
		ReferenceSolutions: req.ReferenceSolutions,
		AuthorID:           userID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, toResponse(problem))
}

// Get returns a problem with its visible tests.
func (h *ProblemController) Get(c *gin.Context) {
	problemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || problemID <= 0 {
		response.BadRequest(c, "Invalid problem id")
		return
	}

	problem, err := h.problemService.Get(c.Request.Context(), problemID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toResponse(problem))
}

func toResponse(p *repository.Problem) ProblemResponse {
	resp := ProblemResponse{
		ID:              p.ID,
		Slug:            p.Slug,
		Title:           p.Title,
		Description:     p.Description,
		Difficulty:      string(p.Difficulty),
		Tags:            p.Tags,
		StarterCode:     p.StarterCode,
		VisibleTests:    p.VisibleTests,
		HiddenTestCount: len(p.HiddenTests),
	}
	if resp.VisibleTests == nil {
		resp.VisibleTests = []repository.TestCase{}
	}
	if !p.CreatedAt.IsZero() {
		resp.CreatedAt = p.CreatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}
