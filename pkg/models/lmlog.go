package models

import (
	"time"

	"github.com/google/uuid"
)

// APIType says which provider API surface produced a logged call.
type APIType string

const (
	APITypeCompletions APIType = "completions"
	APITypeResponses   APIType = "responses"
)

// LMLog records token accounting for one provider call. Rows land in the
// lm_logs table and a copy is embedded on whatever the call produced.
type LMLog struct {
	ID             uuid.UUID `json:"id"`
	APIType        APIType   `json:"api_type"`
	CallID         string    `json:"call_id"`
	CalledFrom     string    `json:"called_from,omitempty"`
	ModelName      string    `json:"model_name"`
	SystemTokens   int       `json:"system_tokens"`
	UserTokens     int       `json:"user_tokens"`
	ResponseTokens int       `json:"response_tokens"`
	CreatedAt      time.Time `json:"created_at"`
}

// LocaleSubscription is a website-side subscription record. The pipeline
// never writes these; it only lists and counts them.
type LocaleSubscription struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Locale    string    `json:"locale"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
