package model

import (
	"time"
)

// ─────────────────────────────────────────────
// Request Kinds
// ─────────────────────────────────────────────

// Kind identifies a generation request variant. Each kind maps to one
// workflow template plus a role binding table; the orchestration path is
// the same for all of them.
type Kind string

const (
	KindText2Image  Kind = "text2image"
	KindImg2Img     Kind = "img2img"
	KindInpaint     Kind = "inpaint"
	KindGarmentSwap Kind = "garmentswap"
	KindImg2Vid     Kind = "img2vid"
)

// ParseKind validates a kind string from the URL path.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindText2Image, KindImg2Img, KindInpaint, KindGarmentSwap, KindImg2Vid:
		return Kind(s), true
	}
	return "", false
}

// ─────────────────────────────────────────────
// Generation State Machine
// ─────────────────────────────────────────────

type GenerationStatus string

const (
	GenerationPending   GenerationStatus = "PENDING"
	GenerationCompleted GenerationStatus = "COMPLETED"
	GenerationFailed    GenerationStatus = "FAILED"
)

// ─────────────────────────────────────────────
// SQL Persistence Models
// ─────────────────────────────────────────────

// ImageResult is the persisted record of one successfully relocated
// artifact. Exactly one row is created per successful generation, never on
// failure.
type ImageResult struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Filename    string    `gorm:"size:512;not null" json:"filename"`
	Kind        Kind      `gorm:"size:50;index" json:"kind"`
	SourcePath  string    `gorm:"size:1024" json:"-"`
	OutputPath  string    `gorm:"size:1024" json:"-"`
	UserID      *string   `gorm:"index" json:"user_id,omitempty"`
	CostCredits float64   `json:"cost_credits"`
	RequestIP   string    `gorm:"size:64" json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// ImageRating is a 1..5 star rating with an optional comment.
type ImageRating struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ImageID   uint      `gorm:"index;not null" json:"image_id"`
	UserID    *string   `gorm:"index" json:"user_id,omitempty"`
	Rating    int       `gorm:"not null" json:"rating"`
	Comment   string    `gorm:"type:text" json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SurveyResponse stores the user-experience questionnaire.
type SurveyResponse struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     *string   `gorm:"index" json:"user_id,omitempty"`
	Q1         *int      `json:"q1,omitempty"`
	Q2         *int      `json:"q2,omitempty"`
	Q3         *int      `json:"q3,omitempty"`
	Q4         *int      `json:"q4,omitempty"`
	Q5         *int      `json:"q5,omitempty"`
	Suggestion string    `gorm:"type:text" json:"suggestion,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// GenerationLog records every generation lifecycle event (one row per
// submitted job), written asynchronously by the store.
type GenerationLog struct {
	PromptID    string           `gorm:"primaryKey" json:"prompt_id"`
	Kind        Kind             `gorm:"size:50" json:"kind"`
	UserID      *string          `gorm:"index" json:"user_id,omitempty"`
	RequestIP   string           `gorm:"size:64" json:"-"`
	Status      GenerationStatus `gorm:"size:20" json:"status"`
	CostCredits float64          `json:"cost_credits"`
	Filename    string           `gorm:"size:512" json:"filename,omitempty"`
	Error       string           `gorm:"type:text" json:"error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	FinishedAt  *time.Time       `json:"finished_at,omitempty"`
}

// ─────────────────────────────────────────────
// HTTP Request / Response
// ─────────────────────────────────────────────

// GenerateResponse is returned by every generation endpoint.
type GenerateResponse struct {
	ID          uint    `json:"id"`
	Filename    string  `json:"filename"`
	Download    string  `json:"download"`
	Kind        Kind    `json:"kind"`
	CostCredits float64 `json:"cost_credits"`
	FreeTier    bool    `json:"free_tier"`
}

// RatingRequest is the inbound rating payload.
type RatingRequest struct {
	Rating  int    `json:"rating" binding:"required,min=1,max=5"`
	Comment string `json:"comment"`
}

// SurveyRequest is the inbound survey payload.
type SurveyRequest struct {
	Q1         *int   `json:"q1" binding:"omitempty,min=1,max=5"`
	Q2         *int   `json:"q2" binding:"omitempty,min=1,max=5"`
	Q3         *int   `json:"q3" binding:"omitempty,min=1,max=5"`
	Q4         *int   `json:"q4" binding:"omitempty,min=1,max=5"`
	Q5         *int   `json:"q5" binding:"omitempty,min=1,max=5"`
	Suggestion string `json:"suggestion"`
}
