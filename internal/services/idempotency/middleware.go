package idempotency

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"

	"fieldservice-invoicing-backend/internal/auth"
	"fieldservice-invoicing-backend/internal/logger"
	"fieldservice-invoicing-backend/internal/repository"

	"github.com/gin-gonic/gin"
)

const HeaderKey = "Idempotency-Key"

type recordingWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *recordingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Middleware must run after auth.RequireUser and auth.RequireCompany. Without
// the header the request passes through untouched.
func Middleware(gate *Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(HeaderKey))
		if key == "" {
			c.Next()
			return
		}

		userID, _ := auth.UserID(c)
		companyID, _ := auth.CompanyID(c)
		scope := repository.IdempotencyScope{
			UserID:    userID,
			CompanyID: companyID,
			Route:     c.Request.Method + " " + c.FullPath(),
			Key:       key,
		}

		ctx := c.Request.Context()
		log := logger.WithComponent(ctx, "idempotency")

		claim, replay, err := gate.Begin(ctx, scope)
		switch {
		case errors.Is(err, ErrInvalidKey):
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		case errors.Is(err, ErrInFlight):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		case err != nil:
			log.Error().Err(err).Msg("idempotency gate unavailable")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "could not check idempotency key"})
			return
		case replay != nil:
			log.Debug().Str("idempotency_key", key).Msg("replaying stored response")
			c.Header("Idempotent-Replayed", "true")
			c.Data(replay.StatusCode, "application/json; charset=utf-8", replay.Body)
			c.Abort()
			return
		}

		rw := &recordingWriter{ResponseWriter: c.Writer}
		c.Writer = rw
		c.Next()

		// the claim outlives a cancelled request context
		bg := context.WithoutCancel(ctx)
		status := rw.Status()
		if status >= 200 && status < 300 {
			if err := gate.Complete(bg, claim, status, rw.body.Bytes()); err != nil {
				log.Error().Err(err).Str("idempotency_key", key).Msg("failed to store idempotent response")
			}
			return
		}
		if err := gate.Abandon(bg, claim); err != nil {
			log.Error().Err(err).Str("idempotency_key", key).Msg("failed to release idempotency key")
		}
	}
}
