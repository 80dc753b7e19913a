package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/newsdocket/docket/pkg/dates"
)

// Update is one verification outcome for a claim. model_output holds the
// structured model dump when parsing succeeded, otherwise the raw text.
type Update struct {
	ID          uuid.UUID       `json:"id"`
	ClaimID     uuid.UUID       `json:"claim_id"`
	ClaimText   string          `json:"claim_text"`
	ArticleID   uuid.UUID       `json:"article_id"`
	ArticleLink string          `json:"article_link"`
	ArticleDate *dates.Date     `json:"article_date,omitempty"`
	Verdict     string          `json:"verdict"`
	ModelOutput json.RawMessage `json:"model_output"`
	CreatedAt   time.Time       `json:"created_at"`
	LMLog       *LMLog          `json:"lm_log,omitempty"`
}

// FollowUp is one scheduled future check on a claim. Processed follow-ups
// keep a pointer to the Update their processing produced.
type FollowUp struct {
	ID                uuid.UUID       `json:"id"`
	ClaimID           uuid.UUID       `json:"claim_id"`
	ClaimText         string          `json:"claim_text"`
	ArticleID         uuid.UUID       `json:"article_id"`
	ArticleLink       string          `json:"article_link"`
	FollowUpDate      dates.Date      `json:"follow_up_date"`
	ModelOutput       json.RawMessage `json:"model_output"`
	CreatedAt         time.Time       `json:"created_at"`
	ProcessedAt       *time.Time      `json:"processed_at,omitempty"`
	ProcessedUpdateID *uuid.UUID      `json:"processed_update_id,omitempty"`
	LMLog             *LMLog          `json:"lm_log,omitempty"`
}

// Due reports whether the follow-up is actionable on the given date.
func (f *FollowUp) Due(on dates.Date) bool {
	return f.ProcessedAt == nil && f.FollowUpDate.Equal(on)
}
