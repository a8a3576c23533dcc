package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 30, cfg.InvoiceDueDays)
	assert.False(t, cfg.InvoiceLenientPaymentApplications)
	assert.Equal(t, 5*time.Minute, cfg.IdempotencyPendingTTL)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSAllowedOrigins)
	assert.Contains(t, cfg.DSN(), "dbname=fieldservice")
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/app")
	t.Setenv("INVOICE_DUE_DAYS", "14")
	t.Setenv("INVOICE_LENIENT_PAYMENT_APPLICATIONS", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://u:p@db:5432/app", cfg.DSN())
	assert.Equal(t, 14, cfg.InvoiceDueDays)
	assert.True(t, cfg.InvoiceLenientPaymentApplications)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("INVOICE_DUE_DAYS", "soon")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INVOICE_DUE_DAYS")

	t.Setenv("INVOICE_DUE_DAYS", "0")
	_, err = Load()
	require.Error(t, err)
}
