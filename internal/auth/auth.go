// Package auth adapts the session and company-membership collaborators to
// gin. Sessions are issued elsewhere; this package only resolves them.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"fieldservice-invoicing-backend/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	userKey    = "auth.user_id"
	companyKey = "auth.company_id"

	DefaultUserHeader = "X-User-ID"
)

type SessionResolver interface {
	Resolve(r *http.Request) (uuid.UUID, bool)
}

type MembershipLookup interface {
	CompanyForUser(ctx context.Context, userID uuid.UUID) (uuid.UUID, error)
}

// HeaderResolver trusts a user id set by the gateway in front of the API.
type HeaderResolver struct {
	Header string
}

func (h HeaderResolver) Resolve(r *http.Request) (uuid.UUID, bool) {
	name := h.Header
	if name == "" {
		name = DefaultUserHeader
	}
	raw := strings.TrimSpace(r.Header.Get(name))
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

func RequireUser(resolver SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := resolver.Resolve(c.Request)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Set(userKey, userID)
		c.Next()
	}
}

func RequireCompany(lookup MembershipLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := UserID(c)
		companyID, err := lookup.CompanyForUser(c.Request.Context(), userID)
		if errors.Is(err, repository.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "no company found for the current user"})
			return
		}
		if err != nil {
			zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("company membership lookup failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "could not resolve company"})
			return
		}
		c.Set(companyKey, companyID)
		c.Next()
	}
}

func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

func CompanyID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(companyKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
