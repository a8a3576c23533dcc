package handler

import (
	"errors"
	"net/http"

	"fieldservice-invoicing-backend/internal/auth"
	"fieldservice-invoicing-backend/internal/services/invoicing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type PaymentHandler struct {
	service *invoicing.Service
}

func NewPaymentHandler(s *invoicing.Service) *PaymentHandler {
	return &PaymentHandler{service: s}
}

// Balance handles GET /api/payments/:id/balance
func (h *PaymentHandler) Balance(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment ID"})
		return
	}
	companyID, _ := auth.CompanyID(c)

	bal, err := h.service.DepositBalance(c.Request.Context(), companyID, id)
	if errors.Is(err, invoicing.ErrPaymentNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Str("payment_id", id.String()).Msg("failed to compute deposit balance")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute balance"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"paymentId":  bal.Payment.ID,
		"isDeposit":  bal.Payment.IsDeposit,
		"amount":     bal.Payment.Amount.InexactFloat64(),
		"applied":    bal.Applied.InexactFloat64(),
		"unapplied":  bal.Unapplied.InexactFloat64(),
		"reference":  bal.Payment.Reference,
		"customerId": bal.Payment.CustomerID,
	})
}
