package store

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/genstudio/server/internal/auth"
	"github.com/genstudio/server/internal/billing"
	"github.com/genstudio/server/internal/model"
)

var ErrImageNotFound = errors.New("image not found")

// Store provides SQL persistence via GORM. Result records are written
// synchronously (the orchestrator's success contract depends on them);
// generation audit logs go through a buffered async channel.
type Store struct {
	db    *gorm.DB
	logCh chan func()
}

// NewStore opens the database, auto-migrates schemas, and starts the
// background write worker.
func NewStore(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(
		&auth.User{},
		&model.ImageResult{},
		&model.ImageRating{},
		&model.SurveyResponse{},
		&model.GenerationLog{},
		&billing.CreditTransaction{},
	); err != nil {
		return nil, err
	}

	s := &Store{
		db:    db,
		logCh: make(chan func(), 1024),
	}
	go s.writeWorker()

	return s, nil
}

func (s *Store) writeWorker() {
	for fn := range s.logCh {
		fn()
	}
}

// DB returns the underlying GORM database instance.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// ─────────────────────────────────────────────
// Image results (synchronous)
// ─────────────────────────────────────────────

// CreateImageResult persists the record for one relocated artifact.
func (s *Store) CreateImageResult(ctx context.Context, rec *model.ImageResult) error {
	rec.CreatedAt = time.Now()
	return s.db.WithContext(ctx).Create(rec).Error
}

// GetImage fetches one image result by id.
func (s *Store) GetImage(ctx context.Context, id uint) (*model.ImageResult, error) {
	var rec model.ImageResult
	if err := s.db.WithContext(ctx).First(&rec, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrImageNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// RecentImages lists a user's newest image results.
func (s *Store) RecentImages(ctx context.Context, userID string, limit int) ([]model.ImageResult, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var recs []model.ImageResult
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}

// GalleryImages lists the newest image results across all users.
func (s *Store) GalleryImages(ctx context.Context, limit int) ([]model.ImageResult, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var recs []model.ImageResult
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}

// SaveRating creates or updates the caller's rating for an image.
func (s *Store) SaveRating(ctx context.Context, imageID uint, userID *string, rating int, comment string) (*model.ImageRating, error) {
	db := s.db.WithContext(ctx)

	var existing model.ImageRating
	q := db.Where("image_id = ?", imageID)
	if userID != nil {
		q = q.Where("user_id = ?", *userID)
	} else {
		q = q.Where("user_id IS NULL")
	}

	if err := q.First(&existing).Error; err == nil {
		existing.Rating = rating
		existing.Comment = comment
		existing.UpdatedAt = time.Now()
		if err := db.Save(&existing).Error; err != nil {
			return nil, err
		}
		return &existing, nil
	}

	rec := model.ImageRating{
		ImageID:   imageID,
		UserID:    userID,
		Rating:    rating,
		Comment:   comment,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := db.Create(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateSurvey stores a survey response.
func (s *Store) CreateSurvey(ctx context.Context, rec *model.SurveyResponse) error {
	rec.CreatedAt = time.Now()
	return s.db.WithContext(ctx).Create(rec).Error
}

// ─────────────────────────────────────────────
// Generation audit log (async writes)
// ─────────────────────────────────────────────

// LogGenerationStarted records a newly submitted job.
func (s *Store) LogGenerationStarted(promptID string, kind model.Kind, userID *string, ip string, cost float64) {
	s.logCh <- func() {
		gl := model.GenerationLog{
			PromptID:    promptID,
			Kind:        kind,
			UserID:      userID,
			RequestIP:   ip,
			Status:      model.GenerationPending,
			CostCredits: cost,
			CreatedAt:   time.Now(),
		}
		if err := s.db.Create(&gl).Error; err != nil {
			log.Error().Err(err).Str("prompt_id", promptID).Msg("log generation created failed")
		}
	}
}

// LogGenerationFinished updates the job's terminal state.
func (s *Store) LogGenerationFinished(promptID string, status model.GenerationStatus, filename, errMsg string) {
	s.logCh <- func() {
		now := time.Now()
		err := s.db.Model(&model.GenerationLog{}).
			Where("prompt_id = ?", promptID).
			Updates(map[string]any{
				"status":      status,
				"filename":    filename,
				"error":       errMsg,
				"finished_at": &now,
			}).Error
		if err != nil {
			log.Error().Err(err).Str("prompt_id", promptID).Msg("log generation finished failed")
		}
	}
}
