package prompts

import (
	"errors"
	"time"
)

// Status is the moderation lifecycle state of a prompt.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// ParseStatus validates a raw status value.
func ParseStatus(raw string) (Status, bool) {
	switch Status(raw) {
	case StatusDraft, StatusPending, StatusApproved, StatusRejected:
		return Status(raw), true
	}
	return "", false
}

var (
	ErrNotFound = errors.New("prompts: not found")
	// ErrForbidden is kept distinct from ErrNotFound so callers can tell an
	// authorization failure from a missing record.
	ErrForbidden = errors.New("prompts: forbidden")
	// ErrInvalidStatus rejects an unknown target status before any mutation.
	ErrInvalidStatus = errors.New("prompts: invalid status")
	// ErrInvalidTransition rejects a review of an item that is not pending.
	ErrInvalidTransition = errors.New("prompts: invalid transition")
	ErrValidation        = errors.New("prompts: validation failed")
)

// Prompt is a shared content item.
type Prompt struct {
	ID              int64      `json:"id"`
	Title           string     `json:"title"`
	Body            string     `json:"body"`
	Description     string     `json:"description,omitempty"`
	Category        string     `json:"category"`
	TargetModel     string     `json:"target_model"`
	Author          string     `json:"author"`
	AuthorID        string     `json:"author_id"`
	Status          Status     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`
	ReviewedBy      string     `json:"reviewed_by,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	Likes           int        `json:"likes"`
	Featured        bool       `json:"is_featured"`
}

// Submission carries the fields of a direct prompt submission. Draft
// saves the item privately instead of entering the review queue; a later
// publish moves it to pending.
type Submission struct {
	Title       string `json:"title"`
	Body        string `json:"body"`
	Description string `json:"description"`
	Category    string `json:"category"`
	TargetModel string `json:"target_model"`
	Draft       bool   `json:"draft,omitempty"`
}

// RawPrompt is one item of a bulk upload before validation. Text is the
// legacy-named alias for Body kept for older export files.
type RawPrompt struct {
	Title       string `json:"title"`
	Body        string `json:"body"`
	Text        string `json:"text"`
	Description string `json:"description"`
	Category    string `json:"category"`
	TargetModel string `json:"target_model"`
	Author      string `json:"author"`
}

// RejectedPrompt reports why a raw item did not pass validation.
type RejectedPrompt struct {
	Index  int    `json:"index"`
	Title  string `json:"title,omitempty"`
	Reason string `json:"reason"`
}

// Filter narrows List results.
type Filter struct {
	Status   Status
	AuthorID string
}
