package models

import "gorm.io/gorm"

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&CompanyMember{},
		&Customer{},
		&Job{},
		&Payment{},
		&Invoice{},
		&InvoiceLine{},
		&PaymentApplication{},
		&InvoiceSequence{},
		&IdempotencyRecord{},
	)
}
