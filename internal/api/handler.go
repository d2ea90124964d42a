package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"placement-credit-sync/internal/breaker"
	"placement-credit-sync/internal/config"
	"placement-credit-sync/internal/credit"
	"placement-credit-sync/internal/db"
	"placement-credit-sync/internal/excel"
	"placement-credit-sync/internal/logger"
	"placement-credit-sync/internal/model"
	"placement-credit-sync/internal/storage"
	"placement-credit-sync/internal/sync"
	"placement-credit-sync/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Ledger is the part of the reconciler the API exposes.
type Ledger interface {
	Apply(ctx context.Context, rec model.CreditRecord) (credit.Action, error)
	CreditsForStudent(ctx context.Context, studentID string) ([]model.CreditRecord, error)
}

// JobProducer publishes background jobs. It is nil when Redis is not configured.
type JobProducer interface {
	EnqueueImportJob(ctx context.Context, job model.ImportJob) error
	EnqueueReplayJob(ctx context.Context, job model.ReplayJob) error
}

// BreakerControl is the operator view of the records breaker.
type BreakerControl interface {
	breaker.Breaker
	OpenFor(d time.Duration)
	OpenUntil() (time.Time, bool)
}

type Handler struct {
	ledger      Ledger
	syncService *sync.Service
	scoreQueue  db.ScoreQueue
	breaker     BreakerControl
	producer    JobProducer
	storage     storage.Storage
	cfg         *config.Config
	log         zerolog.Logger
}

func NewHandler(
	cfg *config.Config,
	ledger Ledger,
	syncService *sync.Service,
	scoreQueue db.ScoreQueue,
	br BreakerControl,
	producer JobProducer,
	store storage.Storage,
) *Handler {
	return &Handler{
		ledger:      ledger,
		syncService: syncService,
		scoreQueue:  scoreQueue,
		breaker:     br,
		producer:    producer,
		storage:     store,
		cfg:         cfg,
		log:         logger.Get(),
	}
}

func (h *Handler) ApplyResult(c *gin.Context) {
	var req model.ApplyResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	action, err := h.ledger.Apply(c.Request.Context(), req.Record())
	if err != nil {
		h.respondError(c, err, "Failed to apply result")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"student_id": req.StudentID,
		"course":     req.CourseID,
		"action":     action,
	})
}

func (h *Handler) GetCredits(c *gin.Context) {
	studentID := c.Param("student_id")

	credits, err := h.ledger.CreditsForStudent(c.Request.Context(), studentID)
	if err != nil {
		h.respondError(c, err, "Failed to load credits")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"student_id": studentID,
		"credits":    credits,
	})
}

func (h *Handler) SubmitChallenge(c *gin.Context) {
	h.submit(c, "challenge", true, func(ctx context.Context, req model.SubmissionRequest) error {
		return h.syncService.SubmitChallengeCredit(ctx, req.StudentKey, req.CourseID, req.FinishedAt)
	})
}

func (h *Handler) SubmitPlacement(c *gin.Context) {
	h.submit(c, "placement", false, func(ctx context.Context, req model.SubmissionRequest) error {
		return h.syncService.SubmitPlacementResults(ctx, req.StudentKey, req.Courses, req.FinishedAt)
	})
}

func (h *Handler) SubmitTutorial(c *gin.Context) {
	h.submit(c, "tutorial", true, func(ctx context.Context, req model.SubmissionRequest) error {
		return h.syncService.SubmitTutorialResult(ctx, req.StudentKey, req.CourseID, req.FinishedAt)
	})
}

func (h *Handler) SubmitELM(c *gin.Context) {
	h.submit(c, "elm", false, func(ctx context.Context, req model.SubmissionRequest) error {
		return h.syncService.SubmitELMResult(ctx, req.StudentKey, req.FinishedAt)
	})
}

func (h *Handler) SubmitUnitReview(c *gin.Context) {
	h.submit(c, "unit_review", false, func(ctx context.Context, req model.SubmissionRequest) error {
		return h.syncService.SubmitUnitReviewPass(ctx, req.StudentKey, req.FinishedAt)
	})
}

// submit answers 202 whether the score was delivered or queued; only local
// failures and unrecognized courses reach the caller.
func (h *Handler) submit(c *gin.Context, flow string, needsCourse bool,
	run func(ctx context.Context, req model.SubmissionRequest) error) {

	var req model.SubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if needsCourse && req.CourseID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "course is required"})
		return
	}

	if err := run(c.Request.Context(), req); err != nil {
		h.respondError(c, err, "Failed to submit "+flow+" result")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message":     "Submission accepted",
		"flow":        flow,
		"student_key": req.StudentKey,
	})
}

func (h *Handler) ListQueue(c *gin.Context) {
	entries, err := h.scoreQueue.QueryAll(c.Request.Context())
	if err != nil {
		h.respondError(c, err, "Failed to list queue")
		return
	}

	c.JSON(http.StatusOK, model.QueueResponse{Count: len(entries), Entries: entries})
}

func (h *Handler) ListQueueForStudent(c *gin.Context) {
	studentKey, ok := parseStudentKey(c)
	if !ok {
		return
	}

	entries, err := h.syncService.ListQueuedForStudent(c.Request.Context(), studentKey)
	if err != nil {
		h.respondError(c, err, "Failed to list queue")
		return
	}

	c.JSON(http.StatusOK, model.QueueResponse{StudentKey: studentKey, Count: len(entries), Entries: entries})
}

// ReplayStudent hands the replay to the sync worker when Redis is available
// and otherwise replays inline.
func (h *Handler) ReplayStudent(c *gin.Context) {
	studentKey, ok := parseStudentKey(c)
	if !ok {
		return
	}

	if h.producer == nil {
		stats, err := h.syncService.ReplayStudent(c.Request.Context(), studentKey)
		if err != nil {
			h.respondError(c, err, "Failed to replay queue")
			return
		}
		c.JSON(http.StatusOK, gin.H{"student_key": studentKey, "stats": stats})
		return
	}

	job := model.ReplayJob{StudentKey: studentKey, RequestID: requestID(c)}
	if err := h.producer.EnqueueReplayJob(c.Request.Context(), job); err != nil {
		h.log.Error().Err(err).Int64("student_key", studentKey).Msg("Failed to enqueue replay job")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to queue replay job"})
		return
	}

	h.log.Info().Int64("student_key", studentKey).Str("request_id", job.RequestID).Msg("Replay job enqueued")

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Replay job queued successfully",
		"job":     job,
	})
}

func (h *Handler) TriggerImport(c *gin.Context) {
	var req model.ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if _, err := excel.StrategyFor(req.S3Path); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if h.producer == nil || h.storage == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Imports are not configured"})
		return
	}

	exists, err := h.storage.Exists(c.Request.Context(), req.S3Path)
	if err != nil {
		h.log.Error().Err(err).Str("s3_path", req.S3Path).Msg("Failed to check import file")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return
	}

	job := model.ImportJob{S3Path: req.S3Path, RequestedBy: requestID(c)}
	if err := h.producer.EnqueueImportJob(c.Request.Context(), job); err != nil {
		h.log.Error().Err(err).Str("s3_path", req.S3Path).Msg("Failed to enqueue import job")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to queue import job"})
		return
	}

	h.log.Info().Str("s3_path", req.S3Path).Msg("Import job enqueued")

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Import job queued successfully",
		"job":     job,
	})
}

func (h *Handler) GetBreaker(c *gin.Context) {
	c.JSON(http.StatusOK, h.breakerStatus())
}

// OpenBreaker lets an operator declare a records system outage ahead of the
// first failed call.
func (h *Handler) OpenBreaker(c *gin.Context) {
	var req model.BreakerOpenRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return
		}
	}

	d := h.cfg.Breaker.Cooldown
	switch {
	case req.Indefinite:
		d = breaker.Indefinitely
	case req.Duration != "":
		parsed, err := time.ParseDuration(req.Duration)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "duration must be a positive Go duration such as 2h30m", "field": "duration"})
			return
		}
		d = parsed
	}

	h.breaker.OpenFor(d)
	h.log.Warn().Str("request_id", requestID(c)).Dur("duration", d).Msg("Records breaker opened by operator")
	c.JSON(http.StatusOK, h.breakerStatus())
}

func (h *Handler) ResetBreaker(c *gin.Context) {
	h.breaker.Close()
	h.log.Warn().Str("request_id", requestID(c)).Msg("Records breaker reset by operator")
	c.JSON(http.StatusOK, h.breakerStatus())
}

func (h *Handler) breakerStatus() model.BreakerResponse {
	resp := model.BreakerResponse{Open: h.breaker.IsOpen()}
	if until, ok := h.breaker.OpenUntil(); ok && resp.Open {
		resp.OpenUntil = &until
	}
	return resp
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": h.cfg.App.Name,
		"version": h.cfg.App.Version,
		"breaker": h.breakerStatus(),
	})
}

// respondError maps domain errors onto status codes: bad input is 400 and
// anything else, local store failures included, is 500.
func (h *Handler) respondError(c *gin.Context, err error, msg string) {
	var verr errors.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field})
	case errors.Is(err, errors.ErrUnmappedCourse):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.log.Error().Err(err).Bool("store_error", errors.IsStoreError(err)).Msg(msg)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func parseStudentKey(c *gin.Context) (int64, bool) {
	key, err := strconv.ParseInt(c.Param("student_key"), 10, 64)
	if err != nil || key <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid student key"})
		return 0, false
	}
	return key, true
}
