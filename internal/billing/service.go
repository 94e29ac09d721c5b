package billing

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/genstudio/server/internal/model"
)

// creditService implements Service on GORM.
type creditService struct {
	db        *gorm.DB
	freeLimit int
}

// NewCreditService creates the ledger-backed billing service.
func NewCreditService(db *gorm.DB, dailyFreeLimit int) Service {
	return &creditService{db: db, freeLimit: dailyFreeLimit}
}

func (s *creditService) Balance(ctx context.Context, userID string) (float64, error) {
	var total float64
	err := s.db.WithContext(ctx).
		Model(&CreditTransaction{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}

func (s *creditService) Grant(ctx context.Context, userID string, amount float64, remark string) error {
	if amount <= 0 {
		return fmt.Errorf("grant amount must be positive, got %v", amount)
	}
	tx := CreditTransaction{
		UserID:    userID,
		Amount:    amount,
		Kind:      TxGrant,
		Remark:    remark,
		CreatedAt: time.Now(),
	}
	return s.db.WithContext(ctx).Create(&tx).Error
}

// FreeRemaining counts today's image results for the user (or, for
// anonymous callers, the request IP) against the daily limit.
func (s *creditService) FreeRemaining(ctx context.Context, userID *string, ip string) (int, error) {
	start, end := todayRange()

	q := s.db.WithContext(ctx).
		Model(&model.ImageResult{}).
		Where("created_at >= ? AND created_at < ?", start, end)
	if userID != nil {
		q = q.Where("user_id = ?", *userID)
	} else {
		q = q.Where("user_id IS NULL AND request_ip = ?", ip)
	}

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return 0, err
	}

	remain := s.freeLimit - int(count)
	if remain < 0 {
		remain = 0
	}
	return remain, nil
}

func (s *creditService) Authorize(ctx context.Context, userID *string, ip string, cost float64) (*Charge, error) {
	remain, err := s.FreeRemaining(ctx, userID, ip)
	if err != nil {
		return nil, fmt.Errorf("check free quota: %w", err)
	}
	if remain > 0 {
		return &Charge{UserID: userID, IP: ip, FreeTier: true}, nil
	}

	if userID == nil {
		return nil, ErrQuotaExceeded
	}

	balance, err := s.Balance(ctx, *userID)
	if err != nil {
		return nil, fmt.Errorf("check balance: %w", err)
	}
	if balance < cost {
		return nil, ErrInsufficientCredits
	}

	return &Charge{UserID: userID, IP: ip, Amount: cost}, nil
}

func (s *creditService) Commit(ctx context.Context, charge *Charge, imageID uint) error {
	if charge.FreeTier || charge.UserID == nil || charge.Amount == 0 {
		return nil
	}
	tx := CreditTransaction{
		UserID:    *charge.UserID,
		Amount:    -charge.Amount,
		Kind:      TxSpend,
		Reference: fmt.Sprintf("image:%d", imageID),
		CreatedAt: time.Now(),
	}
	return s.db.WithContext(ctx).Create(&tx).Error
}

func (s *creditService) Transactions(ctx context.Context, userID string, limit int) ([]CreditTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var txs []CreditTransaction
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&txs).Error
	return txs, err
}

func todayRange() (time.Time, time.Time) {
	now := time.Now().UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24 * time.Hour)
}
