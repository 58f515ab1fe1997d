package prompts

import (
	"context"
	"fmt"
	"strings"

	"promptdeck.org/internal/access"
	"promptdeck.org/internal/audit"
)

// Defaults applied to optional fields of bulk-uploaded items.
const (
	DefaultTitle       = "Untitled"
	DefaultCategory    = "Uncategorized"
	DefaultTargetModel = "ChatGPT"
	DefaultAuthor      = "anonymous"

	reasonMissingContent = "missing content"
)

// ValidateBatch normalizes raw upload items. Body (or its legacy alias
// field) must be non-empty; every other field falls back to a default.
// Accepted items get ids maxID+1 onward in input order with no gaps,
// computed once per batch, and enter at pending. The batch's creation
// timestamp is stamped by the caller.
func ValidateBatch(maxID int64, raw []RawPrompt) (accepted []Prompt, rejected []RejectedPrompt) {
	next := maxID
	for i, item := range raw {
		body := item.Body
		if strings.TrimSpace(body) == "" {
			body = item.Text
		}
		if strings.TrimSpace(body) == "" {
			rejected = append(rejected, RejectedPrompt{
				Index:  i,
				Title:  strings.TrimSpace(item.Title),
				Reason: reasonMissingContent,
			})
			continue
		}
		next++
		accepted = append(accepted, Prompt{
			ID:          next,
			Title:       defaultString(item.Title, DefaultTitle),
			Body:        body,
			Description: strings.TrimSpace(item.Description),
			Category:    defaultString(item.Category, DefaultCategory),
			TargetModel: defaultString(item.TargetModel, DefaultTargetModel),
			Author:      defaultString(item.Author, DefaultAuthor),
			Status:      StatusPending,
		})
	}
	return accepted, rejected
}

// IngestBatch validates a bulk upload and commits the valid subset. The
// whole batch is rejected only when no item passes validation; rejected
// siblings of committed items are reported back with their reasons.
func (s *Service) IngestBatch(ctx context.Context, callerID string, raw []RawPrompt) ([]Prompt, []RejectedPrompt, error) {
	caller, err := s.caller(ctx, callerID)
	if err != nil {
		return nil, nil, err
	}
	if !caller.Can(access.CategoryContent, access.ActionCreate) {
		return nil, nil, ErrForbidden
	}
	if len(raw) == 0 {
		return nil, nil, fmt.Errorf("%w: empty batch", ErrValidation)
	}
	maxID, err := s.store.MaxID(ctx)
	if err != nil {
		return nil, nil, err
	}
	accepted, rejected := ValidateBatch(maxID, raw)
	if len(accepted) == 0 {
		return nil, rejected, fmt.Errorf("%w: no valid items in batch", ErrValidation)
	}
	now := s.now().UTC()
	for i := range accepted {
		accepted[i].AuthorID = caller.ID
		accepted[i].CreatedAt = now
	}
	committed, err := s.store.Create(ctx, accepted)
	if err != nil {
		return nil, rejected, err
	}
	_ = audit.LogEvent(ctx, "prompt.batch_ingest", map[string]any{
		"accepted": len(committed),
		"rejected": len(rejected),
	})
	return committed, rejected, nil
}
