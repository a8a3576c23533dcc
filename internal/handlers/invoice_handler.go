package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"fieldservice-invoicing-backend/internal/auth"
	"fieldservice-invoicing-backend/internal/models"
	"fieldservice-invoicing-backend/internal/repository"
	"fieldservice-invoicing-backend/internal/services/invoicing"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type InvoiceHandler struct {
	service *invoicing.Service
}

func NewInvoiceHandler(s *invoicing.Service) *InvoiceHandler {
	registerJSONFieldNames()
	return &InvoiceHandler{service: s}
}

type lineRequest struct {
	Description string           `json:"description" binding:"required,max=1000"`
	Quantity    *decimal.Decimal `json:"quantity" binding:"required"`
	UnitPrice   *decimal.Decimal `json:"unitPrice" binding:"required"`
	TaxRate     *decimal.Decimal `json:"taxRate"`
	LineType    string           `json:"lineType" binding:"max=50"`
	JobID       *string          `json:"jobId" binding:"omitempty,uuid"`
}

type createInvoiceRequest struct {
	CustomerID string        `json:"customerId" binding:"required,uuid"`
	JobIDs     []string      `json:"jobIds" binding:"omitempty,dive,uuid"`
	Lines      []lineRequest `json:"lines" binding:"required,min=1,dive"`
	DepositIDs []string      `json:"depositIds" binding:"omitempty,dive,uuid"`
	Terms      *string       `json:"terms" binding:"omitempty,max=255"`
	Notes      *string       `json:"notes" binding:"omitempty,max=4000"`
	IssueNow   *bool         `json:"issueNow" binding:"required"`
	DueDate    *string       `json:"dueDate" binding:"omitempty,datetime=2006-01-02"`
}

func (r createInvoiceRequest) toInput(companyID, actorID uuid.UUID) invoicing.CreateInvoiceInput {
	in := invoicing.CreateInvoiceInput{
		CompanyID:  companyID,
		ActorID:    actorID,
		CustomerID: uuid.MustParse(r.CustomerID),
		JobIDs:     parseIDs(r.JobIDs),
		DepositIDs: parseIDs(r.DepositIDs),
		Terms:      r.Terms,
		Notes:      r.Notes,
		IssueNow:   *r.IssueNow,
	}
	if r.DueDate != nil {
		// already checked by the datetime binding
		due, _ := time.Parse(time.DateOnly, *r.DueDate)
		in.DueDate = &due
	}
	for _, l := range r.Lines {
		line := invoicing.LineInput{
			Description: l.Description,
			Quantity:    *l.Quantity,
			UnitPrice:   *l.UnitPrice,
			LineType:    l.LineType,
		}
		if l.TaxRate != nil {
			line.TaxRatePercent = *l.TaxRate
		}
		if l.JobID != nil {
			id := uuid.MustParse(*l.JobID)
			line.JobID = &id
		}
		in.Lines = append(in.Lines, line)
	}
	return in
}

func parseIDs(raw []string) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		ids = append(ids, uuid.MustParse(s))
	}
	return ids
}

// Create handles POST /api/invoices
func (h *InvoiceHandler) Create(c *gin.Context) {
	var req createInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":  "invalid invoice request",
			"issues": bindingIssues(err),
		})
		return
	}

	userID, _ := auth.UserID(c)
	companyID, _ := auth.CompanyID(c)

	created, err := h.service.CreateInvoice(c.Request.Context(), req.toInput(companyID, userID))
	if err != nil {
		h.writeCreateError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"invoiceId":     created.Invoice.ID,
		"invoiceNumber": created.Invoice.Number,
		"summary":       summaryJSON(created.Summary),
	})
}

func (h *InvoiceHandler) writeCreateError(c *gin.Context, err error) {
	var (
		validationErr   *invoicing.ValidationError
		preconditionErr *invoicing.PreconditionError
		writeErr        *invoicing.WriteError
	)
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid invoice request", "issues": validationErr.Issues})
	case errors.Is(err, invoicing.ErrCustomerNotFound):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.As(err, &preconditionErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": preconditionErr.Error()})
	case errors.Is(err, invoicing.ErrDepositConflict):
		c.JSON(http.StatusConflict, gin.H{"error": invoicing.ErrDepositConflict.Error()})
	case errors.As(err, &writeErr):
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Str("stage", writeErr.Stage).Msg("invoice creation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create invoice", "message": writeErr.Error()})
	default:
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("invoice creation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create invoice", "message": err.Error()})
	}
}

// Get handles GET /api/invoices/:id
func (h *InvoiceHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invoice ID"})
		return
	}
	companyID, _ := auth.CompanyID(c)

	view, err := h.service.GetInvoice(c.Request.Context(), companyID, id)
	if errors.Is(err, invoicing.ErrInvoiceNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Str("invoice_id", id.String()).Msg("failed to load invoice")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load invoice"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"invoice": view.Invoice,
		"summary": summaryJSON(view.Summary),
	})
}

// List handles GET /api/invoices
func (h *InvoiceHandler) List(c *gin.Context) {
	companyID, _ := auth.CompanyID(c)
	filter := repository.InvoiceFilter{CompanyID: companyID}

	if status := strings.TrimSpace(c.Query("status")); status != "" {
		for _, s := range strings.Split(status, ",") {
			switch st := models.InvoiceStatus(strings.TrimSpace(s)); st {
			case models.InvoiceStatusDraft, models.InvoiceStatusIssued:
				filter.Statuses = append(filter.Statuses, string(st))
			default:
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid status %q", s)})
				return
			}
		}
	}
	if raw := c.Query("customerId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid customer ID"})
			return
		}
		filter.CustomerID = &id
	}
	if cursor := c.Query("cursor"); cursor != "" {
		if _, err := strconv.ParseInt(cursor, 10, 64); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cursor"})
			return
		}
		filter.Cursor = cursor
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		filter.Limit = limit
	}

	items, nextCursor, hasMore, err := h.service.ListInvoices(c.Request.Context(), filter)
	if err != nil {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("failed to list invoices")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list invoices"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":       items,
		"next_cursor": nextCursor,
		"has_more":    hasMore,
	})
}

func summaryJSON(s invoicing.Summary) gin.H {
	return gin.H{
		"subtotal":       s.Subtotal.InexactFloat64(),
		"tax":            s.Tax.InexactFloat64(),
		"total":          s.Total.InexactFloat64(),
		"depositApplied": s.DepositApplied.InexactFloat64(),
		"balance":        s.Balance.InexactFloat64(),
	}
}

var registerOnce sync.Once

// registerJSONFieldNames makes validator report json names (lines[0].unitPrice)
// instead of Go field names.
func registerJSONFieldNames() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
}

func bindingIssues(err error) []invoicing.Issue {
	var (
		verrs     validator.ValidationErrors
		typeErr   *json.UnmarshalTypeError
		syntaxErr *json.SyntaxError
	)
	switch {
	case errors.As(err, &verrs):
		issues := make([]invoicing.Issue, 0, len(verrs))
		for _, fe := range verrs {
			issues = append(issues, invoicing.Issue{Path: fieldPath(fe.Namespace()), Message: fieldMessage(fe)})
		}
		return issues
	case errors.As(err, &typeErr):
		return []invoicing.Issue{{Path: typeErr.Field, Message: "has the wrong type (got " + typeErr.Value + ")"}}
	case errors.As(err, &syntaxErr), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return []invoicing.Issue{{Path: "body", Message: "must be a valid JSON object"}}
	default:
		return []invoicing.Issue{{Path: "body", Message: err.Error()}}
	}
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "uuid":
		return "must be a valid UUID"
	case "min":
		return fmt.Sprintf("must contain at least %s item(s)", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "datetime":
		return "must be a date in YYYY-MM-DD format"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
