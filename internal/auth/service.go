package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// ─────────────────────────────────────────────
// Errors
// ─────────────────────────────────────────────

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrEmailExists       = errors.New("email already registered")
	ErrInvalidCredential = errors.New("invalid email or password")
	ErrInvalidAPIKey     = errors.New("invalid api key")
	ErrInvalidToken      = errors.New("invalid or expired verification token")
)

const verifyTokenTTL = 48 * time.Hour

// ─────────────────────────────────────────────
// userService implements UserService
// ─────────────────────────────────────────────

type userService struct {
	db        *gorm.DB
	mailer    Mailer
	jwtSecret []byte
	baseURL   string
}

// NewUserService creates a new UserService backed by the given DB.
// mailer may be nil; registration then skips the verification mail.
func NewUserService(db *gorm.DB, mailer Mailer, jwtSecret, baseURL string) UserService {
	return &userService{
		db:        db,
		mailer:    mailer,
		jwtSecret: []byte(jwtSecret),
		baseURL:   strings.TrimRight(baseURL, "/"),
	}
}

// Register creates a new user with email + password.
func (s *userService) Register(ctx context.Context, email, password, nickname string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var existing User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&existing).Error; err == nil {
		return nil, ErrEmailExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	apiKey, err := generateAPIKey()
	if err != nil {
		return nil, err
	}

	user := &User{
		ID:        uuid.NewString(),
		Email:     email,
		Password:  string(hash),
		Nickname:  nickname,
		APIKey:    apiKey,
		Status:    "active",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}

	s.sendVerificationMail(ctx, user)
	return user, nil
}

func (s *userService) sendVerificationMail(ctx context.Context, user *User) {
	if s.mailer == nil {
		return
	}
	token, err := s.issueVerifyToken(user.ID)
	if err != nil {
		log.Error().Err(err).Str("user", user.ID).Msg("issue verification token failed")
		return
	}
	link := s.baseURL + "/auth/verify?token=" + url.QueryEscape(token)
	if err := s.mailer.SendVerification(ctx, user.Email, link); err != nil {
		// Registration still succeeds; the user can request a resend.
		log.Error().Err(err).Str("email", user.Email).Msg("send verification mail failed")
	}
}

// LoginEmail authenticates via email + password.
func (s *userService) LoginEmail(ctx context.Context, email, password string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var user User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredential
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredential
	}

	return &user, nil
}

// GetByAPIKey looks up a user by API key and touches last_used_at.
func (s *userService) GetByAPIKey(ctx context.Context, apiKey string) (*User, error) {
	var user User
	if err := s.db.WithContext(ctx).Where("api_key = ?", apiKey).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidAPIKey
		}
		return nil, err
	}

	now := time.Now()
	s.db.WithContext(ctx).Model(&user).Update("last_used_at", &now)

	return &user, nil
}

func (s *userService) GetByID(ctx context.Context, userID string) (*User, error) {
	var user User
	if err := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// VerifyEmail consumes a signed token and flips email_verified.
func (s *userService) VerifyEmail(ctx context.Context, token string) (*User, error) {
	claims := jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	user, err := s.GetByID(ctx, claims.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}

	if !user.EmailVerified {
		now := time.Now()
		if err := s.db.WithContext(ctx).Model(user).Updates(map[string]any{
			"email_verified": true,
			"verified_at":    &now,
		}).Error; err != nil {
			return nil, err
		}
		user.EmailVerified = true
		user.VerifiedAt = &now
	}
	return user, nil
}

func (s *userService) issueVerifyToken(userID string) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(verifyTokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}

// ResetAPIKey regenerates the user's API key.
func (s *userService) ResetAPIKey(ctx context.Context, userID string) (*User, error) {
	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	apiKey, err := generateAPIKey()
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(user).Updates(map[string]any{
		"api_key":    apiKey,
		"updated_at": time.Now(),
	}).Error; err != nil {
		return nil, err
	}

	user.APIKey = apiKey
	return user, nil
}

func (s *userService) SetStatus(ctx context.Context, userID string, status string) error {
	switch status {
	case "active", "banned", "suspended":
	default:
		return fmt.Errorf("invalid status %q", status)
	}
	res := s.db.WithContext(ctx).Model(&User{}).
		Where("id = ?", userID).
		Updates(map[string]any{"status": status, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// generateAPIKey mints a "sk-" prefixed random key.
func generateAPIKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "sk-" + hex.EncodeToString(buf), nil
}
