package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"fieldservice-invoicing-backend/internal/models"
	"fieldservice-invoicing-backend/internal/routes"
	"fieldservice-invoicing-backend/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newServer(t *testing.T) (*gin.Engine, *testutil.Fixture) {
	t.Helper()
	db := testutil.NewDB(t)
	f := testutil.Seed(t, db)
	r := gin.New()
	routes.RegisterRoutes(r, db, routes.Options{})
	return r, f
}

type call struct {
	method string
	path   string
	user   uuid.UUID
	key    string
	body   interface{}
}

func do(t *testing.T, r *gin.Engine, c call) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := c.body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(c.method, c.path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.user != uuid.Nil {
		req.Header.Set("X-User-ID", c.user.String())
	}
	if c.key != "" {
		req.Header.Set("Idempotency-Key", c.key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func invoiceBody(customerID uuid.UUID, depositIDs ...uuid.UUID) gin.H {
	deposits := make([]string, 0, len(depositIDs))
	for _, id := range depositIDs {
		deposits = append(deposits, id.String())
	}
	return gin.H{
		"customerId": customerID,
		"lines": []gin.H{
			{"description": "Labor", "quantity": 2, "unitPrice": 50, "taxRate": 8},
			{"description": "Parts", "quantity": 1, "unitPrice": "20.00"},
		},
		"depositIds": deposits,
		"issueNow":   true,
	}
}

func TestCreateInvoiceResponse(t *testing.T) {
	r, f := newServer(t)
	deposit := f.AddDeposit(t, f.Customer.ID, "50", "DEP-1")

	w := do(t, r, call{method: http.MethodPost, path: "/api/invoices", user: f.UserID, body: invoiceBody(f.Customer.ID, deposit.ID)})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	out := decode(t, w)
	assert.Equal(t, "INV-1", out["invoiceNumber"])
	_, err := uuid.Parse(out["invoiceId"].(string))
	require.NoError(t, err)

	summary := out["summary"].(map[string]interface{})
	assert.Equal(t, 120.0, summary["subtotal"])
	assert.Equal(t, 8.0, summary["tax"])
	assert.Equal(t, 128.0, summary["total"])
	assert.Equal(t, 50.0, summary["depositApplied"])
	assert.Equal(t, 78.0, summary["balance"])
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestCreateInvoiceAuth(t *testing.T) {
	r, f := newServer(t)

	w := do(t, r, call{method: http.MethodPost, path: "/api/invoices", body: invoiceBody(f.Customer.ID)})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, r, call{method: http.MethodPost, path: "/api/invoices", user: uuid.New(), body: invoiceBody(f.Customer.ID)})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "no company found for the current user", decode(t, w)["error"])
}

func TestCreateInvoiceForeignCustomer(t *testing.T) {
	r, f := newServer(t)
	foreign := f.AddCustomer(t, uuid.New(), "Elsewhere")

	w := do(t, r, call{method: http.MethodPost, path: "/api/invoices", user: f.UserID, body: invoiceBody(foreign.ID)})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "customer not found or unauthorized", decode(t, w)["error"])
}

func TestCreateInvoiceValidation(t *testing.T) {
	r, f := newServer(t)

	issuePaths := func(w *httptest.ResponseRecorder) []string {
		out := decode(t, w)
		var paths []string
		for _, raw := range out["issues"].([]interface{}) {
			paths = append(paths, raw.(map[string]interface{})["path"].(string))
		}
		return paths
	}

	w := do(t, r, call{method: http.MethodPost, path: "/api/invoices", user: f.UserID, body: gin.H{
		"customerId": f.Customer.ID,
		"jobIds":     []string{"not-a-uuid"},
	}})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.ElementsMatch(t, []string{"jobIds[0]", "lines", "issueNow"}, issuePaths(w))

	body := invoiceBody(f.Customer.ID)
	body["lines"] = []gin.H{{"description": "Labor", "quantity": 0, "unitPrice": 10, "taxRate": 150}}
	w = do(t, r, call{method: http.MethodPost, path: "/api/invoices", user: f.UserID, body: body})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.ElementsMatch(t, []string{"lines[0].quantity", "lines[0].taxRate"}, issuePaths(w))

	body["lines"] = []gin.H{{"description": "Labor", "quantity": 1000000000, "unitPrice": "12.345"}}
	w = do(t, r, call{method: http.MethodPost, path: "/api/invoices", user: f.UserID, body: body})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.ElementsMatch(t, []string{"lines[0].quantity", "lines[0].unitPrice"}, issuePaths(w))
	assert.Zero(t, testutil.Count(t, f.DB, &models.InvoiceSequence{}))

	w = do(t, r, call{method: http.MethodPost, path: "/api/invoices", user: f.UserID, body: "{not json"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, []string{"body"}, issuePaths(w))

	assert.Zero(t, testutil.Count(t, f.DB, &models.Invoice{}))
}

func TestCreateInvoiceJobPrecondition(t *testing.T) {
	r, f := newServer(t)
	job := f.AddJob(t, f.Customer.ID, models.JobStatusInProgress)

	body := invoiceBody(f.Customer.ID)
	body["jobIds"] = []string{job.ID.String()}

	w := do(t, r, call{method: http.MethodPost, path: "/api/invoices", user: f.UserID, body: body})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], job.ID.String())
	assert.Zero(t, testutil.Count(t, f.DB, &models.Invoice{}))
}

func TestCreateInvoiceIdempotentReplay(t *testing.T) {
	r, f := newServer(t)
	deposit := f.AddDeposit(t, f.Customer.ID, "50", "DEP-1")
	req := call{method: http.MethodPost, path: "/api/invoices", user: f.UserID, key: "create-1", body: invoiceBody(f.Customer.ID, deposit.ID)}

	first := do(t, r, req)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	// the deposit is now used up, so executing again would fail
	second := do(t, r, req)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.Bytes(), second.Body.Bytes())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.EqualValues(t, 1, testutil.Count(t, f.DB, &models.Invoice{}))

	// another key runs for real
	req.key = "create-2"
	third := do(t, r, req)
	assert.Equal(t, http.StatusBadRequest, third.Code)
}

func TestCreateInvoiceFailedRequestReleasesKey(t *testing.T) {
	r, f := newServer(t)

	bad := invoiceBody(f.Customer.ID)
	delete(bad, "issueNow")
	w := do(t, r, call{method: http.MethodPost, path: "/api/invoices", user: f.UserID, key: "retry-me", body: bad})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(t, r, call{method: http.MethodPost, path: "/api/invoices", user: f.UserID, key: "retry-me", body: invoiceBody(f.Customer.ID)})
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Empty(t, w.Header().Get("Idempotent-Replayed"))
}

func TestGetAndListInvoices(t *testing.T) {
	r, f := newServer(t)

	created := do(t, r, call{method: http.MethodPost, path: "/api/invoices", user: f.UserID, body: invoiceBody(f.Customer.ID)})
	require.Equal(t, http.StatusCreated, created.Code)
	id := decode(t, created)["invoiceId"].(string)

	w := do(t, r, call{method: http.MethodGet, path: "/api/invoices/" + id, user: f.UserID})
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	invoice := out["invoice"].(map[string]interface{})
	assert.Equal(t, "INV-1", invoice["number"])
	assert.Len(t, invoice["lines"], 2)
	assert.Equal(t, 128.0, out["summary"].(map[string]interface{})["total"])

	w = do(t, r, call{method: http.MethodGet, path: "/api/invoices/" + uuid.NewString(), user: f.UserID})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, call{method: http.MethodGet, path: "/api/invoices?status=issued&limit=10", user: f.UserID})
	require.Equal(t, http.StatusOK, w.Code)
	list := decode(t, w)
	assert.Len(t, list["items"], 1)
	assert.Equal(t, false, list["has_more"])

	w = do(t, r, call{method: http.MethodGet, path: "/api/invoices?status=void", user: f.UserID})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDepositBalanceEndpoint(t *testing.T) {
	r, f := newServer(t)
	deposit := f.AddDeposit(t, f.Customer.ID, "75", "DEP-75")
	f.Apply(t, deposit.ID, "25")

	w := do(t, r, call{method: http.MethodGet, path: "/api/payments/" + deposit.ID.String() + "/balance", user: f.UserID})
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, 25.0, out["applied"])
	assert.Equal(t, 50.0, out["unapplied"])

	w = do(t, r, call{method: http.MethodGet, path: "/api/payments/" + uuid.NewString() + "/balance", user: f.UserID})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
