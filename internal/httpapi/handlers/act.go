package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/secondme-labs/match-backend/internal/act"
	"github.com/secondme-labs/match-backend/internal/common"
	"github.com/secondme-labs/match-backend/internal/httpapi/middleware"
	"github.com/secondme-labs/match-backend/internal/secondme"
	"gorm.io/gorm"
)

type actReq struct {
	Type string `json:"type"`

	// compatibility
	User1Shades []string `json:"user1Shades"`
	User2Shades []string `json:"user2Shades"`
	User1Bio    string   `json:"user1Bio"`
	User2Bio    string   `json:"user2Bio"`

	// custom
	Prompt        string                  `json:"prompt"`
	ActionControl *secondme.ActionControl `json:"actionControl"`
}

func (r *actReq) validate() (act.JobType, string) {
	switch r.Type {
	case string(act.TypeCompatibility):
		if len(r.User1Shades) == 0 || len(r.User2Shades) == 0 {
			return "", "user1Shades and user2Shades are required"
		}
		return act.TypeCompatibility, ""
	case string(act.TypeCustom):
		if strings.TrimSpace(r.Prompt) == "" || r.ActionControl == nil {
			return "", "prompt and actionControl are required"
		}
		return act.TypeCustom, ""
	default:
		return "", `invalid type, must be "compatibility" or "custom"`
	}
}

// Act runs a synchronous structured judgment.
func (h *Handler) Act(c *gin.Context) {
	user, ok := middleware.UserFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var req actReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	jobType, msg := req.validate()
	if msg != "" {
		common.Fail(c, http.StatusBadRequest, msg)
		return
	}

	ctx := c.Request.Context()
	var (
		result any
		err    error
	)
	if jobType == act.TypeCompatibility {
		result, err = h.SM.GetCompatibilityScore(ctx, user.AccessToken, req.User1Shades, req.User2Shades, req.User1Bio, req.User2Bio)
	} else {
		result, err = h.SM.Act(ctx, user.AccessToken, req.Prompt, *req.ActionControl)
	}
	if err != nil {
		h.Log.Error().Err(err).Str("type", string(jobType)).Msg("act call failed")
		common.Fail(c, http.StatusInternalServerError, err.Error())
		return
	}

	common.OK(c, result)
}

// ActAsync queues the judgment for the worker instead of blocking the
// request on the upstream call. Idempotency-Key dedupes per user.
func (h *Handler) ActAsync(c *gin.Context) {
	user, ok := middleware.UserFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var req actReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	jobType, msg := req.validate()
	if msg != "" {
		common.Fail(c, http.StatusBadRequest, msg)
		return
	}

	var payload []byte
	var err error
	if jobType == act.TypeCompatibility {
		payload, err = json.Marshal(act.CompatibilityParams{
			User1Shades: req.User1Shades,
			User2Shades: req.User2Shades,
			User1Bio:    req.User1Bio,
			User2Bio:    req.User2Bio,
		})
	} else {
		payload, err = json.Marshal(act.CustomParams{
			Prompt:        req.Prompt,
			ActionControl: *req.ActionControl,
		})
	}
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, "internal error")
		return
	}

	idempoKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if len(idempoKey) > 128 {
		common.Fail(c, http.StatusBadRequest, "idempotency key too long")
		return
	}
	var idempoKeyPtr *string
	if idempoKey != "" {
		idempoKeyPtr = &idempoKey
	}

	jobID, err := common.NewULID()
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, "internal error")
		return
	}

	j := &act.Job{
		ID:             jobID,
		UserID:         user.ID,
		Type:           jobType,
		Payload:        string(payload),
		IdempotencyKey: idempoKeyPtr,
		Status:         act.JobQueued,
	}

	j, created, err := h.ActRepo.CreateOrGetExisting(c.Request.Context(), j)
	if err != nil {
		h.Log.Error().Err(err).Msg("failed to create act job")
		common.Fail(c, http.StatusInternalServerError, "internal error")
		return
	}

	if created {
		if err := h.Rabbit.PublishJob(c.Request.Context(), j.ID); err != nil {
			h.Log.Error().Err(err).Str("job_id", j.ID).Msg("failed to enqueue act job")
			common.Fail(c, http.StatusInternalServerError, "enqueue failed")
			return
		}
	}

	common.OK(c, gin.H{"job_id": j.ID})
}

// GetActJob returns job status and result; other users' jobs look like 404.
func (h *Handler) GetActJob(c *gin.Context) {
	user, ok := middleware.UserFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, "unauthenticated")
		return
	}

	jobID := c.Param("job_id")
	if jobID == "" {
		common.Fail(c, http.StatusBadRequest, "job_id required")
		return
	}

	j, err := h.ActRepo.GetByID(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, "job not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, "internal error")
		return
	}
	if j.UserID != user.ID {
		common.Fail(c, http.StatusNotFound, "job not found")
		return
	}

	common.OK(c, gin.H{"job": j})
}
