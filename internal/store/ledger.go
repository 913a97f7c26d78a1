package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/a3tai/facturx-bridge/internal/auth"
	"github.com/a3tai/facturx-bridge/internal/convert"
)

// Ledger is the local credit billing. New subjects start with the initial
// credit grant; each conversion consumes one credit.
type Ledger struct {
	db      *gorm.DB
	initial int
}

// NewLedger creates a ledger granting initial credits to new subjects
func NewLedger(db *gorm.DB, initial int) *Ledger {
	if initial < 0 {
		initial = 0
	}
	return &Ledger{db: db, initial: initial}
}

// subject identifies the account of a request. Raw tokens are never stored.
func subject(ctx context.Context, token string) string {
	if s, ok := auth.SubjectFromContext(ctx); ok && s != "" {
		return s
	}
	return auth.AnonymousSubject(token)
}

// Consume charges one credit for jobID. A key already in the ledger is a
// successful no-op.
func (l *Ledger) Consume(ctx context.Context, token, jobID, idempotencyKey string) error {
	sub := subject(ctx, token)

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&CreditEntry{}).Where("idempotency_key = ?", idempotencyKey).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return nil
		}

		if _, err := l.account(tx, sub); err != nil {
			return err
		}
		res := tx.Model(&Account{}).
			Where("subject = ? AND balance >= ?", sub, 1).
			Update("balance", gorm.Expr("balance - ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return convert.ErrInsufficientCredits
		}

		return tx.Create(&CreditEntry{
			Subject:        sub,
			JobID:          jobID,
			IdempotencyKey: idempotencyKey,
			Amount:         -1,
		}).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// a concurrent request with the same key won
		return nil
	}
	if err != nil && !errors.Is(err, convert.ErrInsufficientCredits) {
		return fmt.Errorf("credit ledger: %w", err)
	}
	return err
}

// Balance returns the credits left for subject, creating the account
func (l *Ledger) Balance(ctx context.Context, sub string) (int, error) {
	acc, err := l.account(l.db.WithContext(ctx), sub)
	if err != nil {
		return 0, fmt.Errorf("credit ledger: %w", err)
	}
	return acc.Balance, nil
}

// Grant adds amount credits to subject
func (l *Ledger) Grant(ctx context.Context, sub string, amount int, reference string) error {
	if amount <= 0 {
		return fmt.Errorf("grant amount must be positive, got %d", amount)
	}
	if reference == "" {
		reference = uuid.NewString()
	}
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := l.account(tx, sub); err != nil {
			return err
		}
		if err := tx.Model(&Account{}).Where("subject = ?", sub).
			Update("balance", gorm.Expr("balance + ?", amount)).Error; err != nil {
			return err
		}
		return tx.Create(&CreditEntry{Subject: sub, JobID: reference, IdempotencyKey: "grant:" + reference, Amount: amount}).Error
	})
}

func (l *Ledger) account(tx *gorm.DB, sub string) (*Account, error) {
	acc := Account{Subject: sub, Balance: l.initial}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&acc).Error; err != nil {
		return nil, err
	}
	if err := tx.Where("subject = ?", sub).First(&acc).Error; err != nil {
		return nil, err
	}
	return &acc, nil
}
