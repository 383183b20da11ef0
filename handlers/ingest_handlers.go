package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sitepulse/api/config"
	"sitepulse/api/ingest"
	"sitepulse/api/metrics"
	"sitepulse/api/models"
)

const maxIngestBodyBytes = 5 << 20

// Processor runs one request body through the ingest pipeline.
type Processor interface {
	Process(ctx context.Context, body []byte) (*models.IngestResponse, error)
}

// Pinger checks the database connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// OwnerLookup finds the configured owner record.
type OwnerLookup interface {
	GetOwner(ctx context.Context, id string) (*models.Owner, error)
}

type IngestHandlers struct {
	Pipeline Processor
	DB       Pinger
	Owners   OwnerLookup
	Config   *config.Config
	logger   *zap.Logger
}

func NewIngestHandlers(p Processor, db Pinger, owners OwnerLookup, cfg *config.Config, logger *zap.Logger) *IngestHandlers {
	return &IngestHandlers{
		Pipeline: p,
		DB:       db,
		Owners:   owners,
		Config:   cfg,
		logger:   logger,
	}
}

// Ingest accepts tracker events. Authentication happens in middleware.
func (h *IngestHandlers) Ingest(c *gin.Context) {
	start := time.Now()
	status := http.StatusOK
	defer func() {
		metrics.IngestDuration.WithLabelValues(strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	}()

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxIngestBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
			c.JSON(status, gin.H{"error": "Payload Too Large"})
			return
		}
		status = http.StatusBadRequest
		c.JSON(status, gin.H{"error": "Invalid JSON"})
		return
	}

	// Bounded by the client connection only.
	resp, err := h.Pipeline.Process(c.Request.Context(), body)
	if err != nil {
		status = statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("Ingest request failed", zap.Error(err))
		} else {
			h.logger.Info("Ingest request rejected", zap.Int("status", status), zap.Error(err))
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(status, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ingest.ErrInvalidFormat), errors.Is(err, ingest.ErrInvalidTable):
		return http.StatusBadRequest
	case errors.Is(err, ingest.ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Diagnostics reports which required settings are present, never their
// values, and whether the database answers.
func (h *IngestHandlers) Diagnostics(c *gin.Context) {
	if !h.Config.Ingest.Diagnostics {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not Found"})
		return
	}

	env := gin.H{
		"DATABASE_URL":      presence(h.Config.Database.URL),
		"INGEST_SECRET_KEY": presence(h.Config.Ingest.SecretKey),
		"OWNER_USER_ID":     presence(h.Config.Ingest.OwnerUserID),
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	connection := gin.H{"status": "SUCCESS", "error": nil}
	pingErr := h.DB.Ping(ctx)
	if pingErr != nil {
		connection = gin.H{"status": "FAILED", "error": pingErr.Error()}
	}

	owner := "MISSING"
	switch id := h.Config.Ingest.OwnerUserID; {
	case id == "":
	case pingErr != nil:
		owner = "UNKNOWN"
	default:
		_, err := h.Owners.GetOwner(ctx, id)
		switch {
		case err == nil:
			owner = "FOUND"
		case errors.Is(err, models.ErrOwnerNotFound):
			owner = "NOT_FOUND"
		default:
			owner = "ERROR"
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":            "diagnostic",
		"env":               env,
		"resolution_policy": h.Config.Ingest.ResolutionPolicy,
		"processing_mode":   h.Config.Ingest.ProcessingMode,
		"connection_test":   connection,
		"owner_record":      owner,
		"timestamp":         time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func presence(v string) string {
	if v == "" {
		return "MISSING"
	}
	return "OK"
}
