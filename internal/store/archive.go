package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/a3tai/facturx-bridge/internal/convert"
	"github.com/a3tai/facturx-bridge/internal/facturx"
)

// ErrNotFound is returned for unknown archive records
var ErrNotFound = errors.New("record not found")

// ArchiveRepo records finished conversions
type ArchiveRepo struct {
	db *gorm.DB
}

// NewArchiveRepo creates an archive on db
func NewArchiveRepo(db *gorm.DB) *ArchiveRepo {
	return &ArchiveRepo{db: db}
}

// Archive stores req and returns its id. Repeating an idempotency key
// returns the id of the first record.
func (r *ArchiveRepo) Archive(ctx context.Context, token string, req convert.ArchiveRequest) (string, error) {
	if existing, err := r.byKey(ctx, req.IdempotencyKey); err == nil {
		return existing.ID, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("archive: %w", err)
	}

	amount := req.AmountTTC
	if d, ok := facturx.ParseAmount(amount); ok {
		amount = d.StringFixed(2)
	}
	rec := ArchiveRecord{
		ID:             uuid.NewString(),
		IdempotencyKey: req.IdempotencyKey,
		Subject:        subject(ctx, token),
		FileID:         req.FileID,
		FileName:       req.FileName,
		InvoiceNumber:  req.InvoiceNumber,
		VendorName:     req.VendorName,
		ClientName:     req.ClientName,
		AmountTTC:      amount,
		Currency:       facturx.Currency,
		Profile:        req.Profile,
		Path:           req.Path,
		PDFA3Valid:     req.Validation.PDFA3Valid,
		XMLValid:       req.Validation.XMLValid,
		FacturXValid:   req.Validation.FacturXValid,
		PDF:            req.PDF,
		XML:            string(req.XML),
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			if existing, err := r.byKey(ctx, req.IdempotencyKey); err == nil {
				return existing.ID, nil
			}
		}
		return "", fmt.Errorf("archive: %w", err)
	}
	return rec.ID, nil
}

// Get returns one archive record
func (r *ArchiveRepo) Get(ctx context.Context, id string) (*ArchiveRecord, error) {
	var rec ArchiveRecord
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// List returns the latest records of subject, newest first, without the
// artifact bytes
func (r *ArchiveRepo) List(ctx context.Context, sub string, limit int) ([]ArchiveRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	var recs []ArchiveRecord
	err := r.db.WithContext(ctx).
		Omit("pdf", "xml").
		Where("subject = ?", sub).
		Order("created_at DESC").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}

func (r *ArchiveRepo) byKey(ctx context.Context, key string) (*ArchiveRecord, error) {
	var rec ArchiveRecord
	if err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}
