// Package testutil opens throwaway sqlite databases with the invoicing schema
// and seeds fixtures for repository, service and handler tests.
package testutil

import (
	"testing"
	"time"

	"fieldservice-invoicing-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB returns a private in-memory database. A single connection keeps every
// query on the same memory store.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=1"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, models.AutoMigrate(db))
	return db
}

type Fixture struct {
	DB        *gorm.DB
	CompanyID uuid.UUID
	UserID    uuid.UUID
	Customer  models.Customer
}

// Seed creates a company with one member and one customer.
func Seed(t *testing.T, db *gorm.DB) *Fixture {
	t.Helper()

	f := &Fixture{DB: db, CompanyID: uuid.New(), UserID: uuid.New()}
	require.NoError(t, db.Create(&models.CompanyMember{
		UserID:    f.UserID,
		CompanyID: f.CompanyID,
		Role:      "owner",
	}).Error)
	f.Customer = f.AddCustomer(t, f.CompanyID, "Acme Plumbing")
	return f
}

func (f *Fixture) AddCustomer(t *testing.T, companyID uuid.UUID, name string) models.Customer {
	t.Helper()
	c := models.Customer{ID: uuid.New(), CompanyID: companyID, Name: name}
	require.NoError(t, f.DB.Create(&c).Error)
	return c
}

func (f *Fixture) AddJob(t *testing.T, customerID uuid.UUID, status models.JobStatus) models.Job {
	t.Helper()
	job := models.Job{
		ID:         uuid.New(),
		CompanyID:  f.CompanyID,
		CustomerID: customerID,
		Title:      "Water heater install",
		Status:     status,
	}
	if status == models.JobStatusDone {
		done := time.Now()
		job.CompletedAt = &done
	}
	require.NoError(t, f.DB.Create(&job).Error)
	return job
}

func (f *Fixture) AddDeposit(t *testing.T, customerID uuid.UUID, amount, reference string) models.Payment {
	t.Helper()
	return f.addPayment(t, customerID, amount, reference, true)
}

func (f *Fixture) AddPayment(t *testing.T, customerID uuid.UUID, amount, reference string) models.Payment {
	t.Helper()
	return f.addPayment(t, customerID, amount, reference, false)
}

func (f *Fixture) addPayment(t *testing.T, customerID uuid.UUID, amount, reference string, deposit bool) models.Payment {
	p := models.Payment{
		ID:         uuid.New(),
		CompanyID:  f.CompanyID,
		CustomerID: customerID,
		Amount:     decimal.RequireFromString(amount),
		IsDeposit:  deposit,
		Method:     "card",
		Reference:  reference,
		ReceivedAt: time.Now(),
	}
	require.NoError(t, f.DB.Create(&p).Error)
	return p
}

// Apply records an application against a payment outside of invoicing, for
// example a deposit partly used by an older invoice.
func (f *Fixture) Apply(t *testing.T, paymentID uuid.UUID, amount string) {
	t.Helper()
	require.NoError(t, f.DB.Create(&models.PaymentApplication{
		ID:            uuid.New(),
		PaymentID:     paymentID,
		InvoiceID:     uuid.New(),
		AppliedAmount: decimal.RequireFromString(amount),
		AppliedAt:     time.Now(),
		AppliedBy:     f.UserID,
	}).Error)
}

func Count(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}
