package store

import "time"

// Account holds the credit balance of one subject
type Account struct {
	ID        uint   `gorm:"primaryKey"`
	Subject   string `gorm:"size:128;not null;uniqueIndex"`
	Balance   int    `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreditEntry is one ledger movement. Consumptions are negative.
type CreditEntry struct {
	ID             uint   `gorm:"primaryKey"`
	Subject        string `gorm:"size:128;not null;index"`
	JobID          string `gorm:"size:64"`
	IdempotencyKey string `gorm:"size:160;uniqueIndex"`
	Amount         int    `gorm:"not null"`
	CreatedAt      time.Time
}

// ArchiveRecord is a finished conversion kept for audit
type ArchiveRecord struct {
	ID             string `gorm:"primaryKey;size:36"`
	IdempotencyKey string `gorm:"size:160;not null;uniqueIndex"`
	Subject        string `gorm:"size:128;index"`
	FileID         string `gorm:"size:26;not null;index"`
	FileName       string
	InvoiceNumber  string `gorm:"size:64;index"`
	VendorName     string
	ClientName     string
	AmountTTC      string `gorm:"size:32"`
	Currency       string `gorm:"size:3"`
	Profile        string `gorm:"size:16"`
	Path           string `gorm:"size:16"`
	PDFA3Valid     bool
	XMLValid       bool
	FacturXValid   bool
	// PDF and XML are the archived artifact
	PDF       []byte `gorm:"not null"`
	XML       string
	CreatedAt time.Time
}

// ConversionLogEntry is one line of the conversion journal
type ConversionLogEntry struct {
	ID         uint   `gorm:"primaryKey"`
	FileID     string `gorm:"size:26;index"`
	Subject    string `gorm:"size:128;index"`
	Path       string `gorm:"size:16"`
	Profile    string `gorm:"size:16"`
	Stage      string `gorm:"size:24;not null"`
	FailedAt   string `gorm:"size:24"`
	Kind       string `gorm:"size:24"`
	Message    string
	DurationMS int64
	CreatedAt  time.Time
}
