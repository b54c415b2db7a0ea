package risk

import (
	"errors"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/edusense/backend/pkg/response"
)

// Handler exposes the dropout-risk endpoints.
type Handler struct {
	repo   *Repository
	scorer *Scorer
}

// NewHandler creates a risk handler.
func NewHandler(repo *Repository, scorer *Scorer) *Handler {
	return &Handler{repo: repo, scorer: scorer}
}

// Predict handles POST /risk/predict: a caller-supplied feature set, missing
// fields defaulted, out-of-domain values rejected with the offending field.
func (h *Handler) Predict(c *gin.Context) {
	var in FeatureInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, "invalid feature payload")
		return
	}
	vec, err := BuildVector(in)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			response.BadRequest(c, verr.Error())
			return
		}
		response.BadRequest(c, err.Error())
		return
	}
	score := h.scorer.Evaluate(vec)
	response.OK(c, gin.H{"features": vec, "risk": score})
}

// StudentRisk handles GET /risk/students/:id: features assembled server-side
// from test scores and session telemetry.
func (h *Handler) StudentRisk(c *gin.Context) {
	studentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid student id")
		return
	}
	sf, err := h.repo.FetchFeatures(c.Request.Context(), studentID)
	if err != nil {
		if errors.Is(err, ErrStudentNotFound) {
			response.NotFound(c, "student not found")
			return
		}
		response.Internal(c, "failed to assemble features")
		return
	}
	vec, err := BuildVector(sf.Input)
	if err != nil {
		// Stored telemetry out of domain is a data fault, not a caller error.
		response.Internal(c, err.Error())
		return
	}
	score := h.scorer.Evaluate(vec)
	response.OK(c, gin.H{
		"student_id": sf.StudentID,
		"full_name":  sf.FullName,
		"features":   vec,
		"risk":       score,
	})
}

type rosterRow struct {
	StudentID uuid.UUID `json:"student_id"`
	FullName  string    `json:"full_name"`
	Risk      Score     `json:"risk"`
}

// Roster handles GET /risk/roster: every student scored, highest risk first,
// for the teacher dashboard overview.
func (h *Handler) Roster(c *gin.Context) {
	list, err := h.repo.ListFeatures(c.Request.Context())
	if err != nil {
		response.Internal(c, "failed to list students")
		return
	}
	out := make([]rosterRow, 0, len(list))
	for _, sf := range list {
		vec, err := BuildVector(sf.Input)
		if err != nil {
			continue
		}
		out = append(out, rosterRow{
			StudentID: sf.StudentID,
			FullName:  sf.FullName,
			Risk:      h.scorer.Evaluate(vec),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Risk.Score > out[j].Risk.Score })
	response.OK(c, gin.H{"students": out})
}

type recordScoreRequest struct {
	Score float64 `json:"score" binding:"min=0,max=100"`
}

// RecordScore handles POST /risk/students/:id/scores: appends a test result
// feeding the performance feature.
func (h *Handler) RecordScore(c *gin.Context) {
	studentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid student id")
		return
	}
	var req recordScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "score must be in [0,100]")
		return
	}
	if err := h.repo.RecordTestScore(c.Request.Context(), studentID, req.Score); err != nil {
		response.Internal(c, "failed to record score")
		return
	}
	response.Created(c, gin.H{"recorded": true})
}
