package prompts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"promptdeck.org/internal/access"
	"promptdeck.org/internal/accounts"
	"promptdeck.org/internal/audit"
)

// Directory loads caller accounts for authorization checks.
type Directory interface {
	Get(ctx context.Context, id string) (accounts.Account, error)
}

// Service runs the moderation state machine over the bound Store. Every
// mutating operation authorizes the caller against the permission matrix
// before touching the collection.
type Service struct {
	store     Store
	directory Directory
	now       func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the prompt service.
func NewService(store Store, directory Directory, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("prompts: store is required")
	}
	if directory == nil {
		return nil, errors.New("prompts: account directory is required")
	}
	s := &Service{store: store, directory: directory, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// caller loads the acting account and fails closed: a missing or disabled
// account authorizes nothing.
func (s *Service) caller(ctx context.Context, callerID string) (accounts.Account, error) {
	callerID = strings.TrimSpace(callerID)
	if callerID == "" {
		return accounts.Account{}, ErrForbidden
	}
	acct, err := s.directory.Get(ctx, callerID)
	if err != nil {
		return accounts.Account{}, ErrForbidden
	}
	if acct.Status != accounts.StatusActive {
		return accounts.Account{}, ErrForbidden
	}
	return acct, nil
}

// Submit creates a prompt via direct submission; it enters the collection
// at pending, or at draft when the submission asks for a private save.
func (s *Service) Submit(ctx context.Context, callerID string, in Submission) (Prompt, error) {
	caller, err := s.caller(ctx, callerID)
	if err != nil {
		return Prompt{}, err
	}
	if !caller.Can(access.CategoryContent, access.ActionCreate) {
		return Prompt{}, ErrForbidden
	}
	if strings.TrimSpace(in.Title) == "" {
		return Prompt{}, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if strings.TrimSpace(in.Body) == "" {
		return Prompt{}, fmt.Errorf("%w: body is required", ErrValidation)
	}
	status := StatusPending
	if in.Draft {
		status = StatusDraft
	}
	p := Prompt{
		Title:       strings.TrimSpace(in.Title),
		Body:        in.Body,
		Description: strings.TrimSpace(in.Description),
		Category:    defaultString(in.Category, DefaultCategory),
		TargetModel: defaultString(in.TargetModel, DefaultTargetModel),
		Author:      caller.Name,
		AuthorID:    caller.ID,
		Status:      status,
		CreatedAt:   s.now().UTC(),
	}
	created, err := s.store.Create(ctx, []Prompt{p})
	if err != nil {
		return Prompt{}, err
	}
	_ = audit.LogEvent(ctx, "prompt.submit", map[string]any{
		"prompt_id": created[0].ID,
		"status":    string(status),
	})
	return created[0], nil
}

// Publish moves a draft into the review queue. Owners need content.edit;
// anyone else needs content.editAny. Publishing anything but a draft fails
// with ErrInvalidTransition.
func (s *Service) Publish(ctx context.Context, callerID string, id int64) (Prompt, error) {
	item, err := s.store.Find(ctx, id)
	if err != nil {
		return Prompt{}, err
	}
	caller, err := s.caller(ctx, callerID)
	if err != nil {
		return Prompt{}, err
	}
	allowed := caller.Can(access.CategoryContent, access.ActionEditAny) ||
		(item.AuthorID == caller.ID && caller.Can(access.CategoryContent, access.ActionEdit))
	if !allowed {
		return Prompt{}, ErrForbidden
	}
	updated, err := s.store.Update(ctx, id, func(p *Prompt) error {
		if p.Status != StatusDraft {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, StatusPending)
		}
		p.Status = StatusPending
		return nil
	})
	if err != nil {
		return Prompt{}, err
	}
	_ = audit.LogEvent(ctx, "prompt.publish", map[string]any{"prompt_id": id})
	return updated, nil
}

// Review moves a pending prompt to approved or rejected and stamps the
// reviewer. The target status is validated before any mutation; reviewing
// an item that is not pending fails with ErrInvalidTransition, including
// approve on an already-approved item.
func (s *Service) Review(ctx context.Context, callerID string, id int64, target Status, reason string) (Prompt, error) {
	if target != StatusApproved && target != StatusRejected {
		return Prompt{}, fmt.Errorf("%w: %q", ErrInvalidStatus, target)
	}
	caller, err := s.caller(ctx, callerID)
	if err != nil {
		return Prompt{}, err
	}
	if !caller.Can(access.CategoryContent, access.ActionReview) {
		return Prompt{}, ErrForbidden
	}
	reviewedAt := s.now().UTC()
	updated, err := s.store.Update(ctx, id, func(p *Prompt) error {
		if p.Status != StatusPending {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, target)
		}
		p.Status = target
		p.ReviewedAt = &reviewedAt
		p.ReviewedBy = caller.ID
		if target == StatusRejected {
			p.RejectionReason = strings.TrimSpace(reason)
		} else {
			p.RejectionReason = ""
		}
		return nil
	})
	if err != nil {
		return Prompt{}, err
	}
	_ = audit.LogEvent(ctx, "prompt.review", map[string]any{
		"prompt_id": id,
		"status":    string(target),
	})
	return updated, nil
}

// SetFeatured toggles the display-priority flag. Featuring is permitted
// only for approved prompts and fails with a validation error otherwise;
// clearing the flag is always allowed.
func (s *Service) SetFeatured(ctx context.Context, callerID string, id int64, featured bool) (Prompt, error) {
	caller, err := s.caller(ctx, callerID)
	if err != nil {
		return Prompt{}, err
	}
	if !caller.Can(access.CategoryContent, access.ActionManage) {
		return Prompt{}, ErrForbidden
	}
	updated, err := s.store.Update(ctx, id, func(p *Prompt) error {
		if featured && p.Status != StatusApproved {
			return fmt.Errorf("%w: only approved prompts can be featured", ErrValidation)
		}
		p.Featured = featured
		return nil
	})
	if err != nil {
		return Prompt{}, err
	}
	_ = audit.LogEvent(ctx, "prompt.feature", map[string]any{
		"prompt_id": id,
		"featured":  featured,
	})
	return updated, nil
}

// Delete removes a prompt permanently, from memory and from the mirror.
// Owners need content.delete; anyone else needs content.deleteAny. An exit
// out of the state machine, allowed from any status.
func (s *Service) Delete(ctx context.Context, callerID string, id int64) error {
	item, err := s.store.Find(ctx, id)
	if err != nil {
		return err
	}
	caller, err := s.caller(ctx, callerID)
	if err != nil {
		return err
	}
	allowed := caller.Can(access.CategoryContent, access.ActionDeleteAny) ||
		(item.AuthorID == caller.ID && caller.Can(access.CategoryContent, access.ActionDelete))
	if !allowed {
		return ErrForbidden
	}
	removed, err := s.store.Remove(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		return ErrNotFound
	}
	_ = audit.LogEvent(ctx, "prompt.delete", map[string]any{"prompt_id": id})
	return nil
}

// Edit updates the content fields of a draft or pending prompt. Owners
// need content.edit; anyone else needs content.editAny. Reviewed prompts
// are immutable.
func (s *Service) Edit(ctx context.Context, callerID string, id int64, in Submission) (Prompt, error) {
	item, err := s.store.Find(ctx, id)
	if err != nil {
		return Prompt{}, err
	}
	caller, err := s.caller(ctx, callerID)
	if err != nil {
		return Prompt{}, err
	}
	allowed := caller.Can(access.CategoryContent, access.ActionEditAny) ||
		(item.AuthorID == caller.ID && caller.Can(access.CategoryContent, access.ActionEdit))
	if !allowed {
		return Prompt{}, ErrForbidden
	}
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Body) == "" {
		return Prompt{}, fmt.Errorf("%w: title and body are required", ErrValidation)
	}
	updated, err := s.store.Update(ctx, id, func(p *Prompt) error {
		if p.Status != StatusDraft && p.Status != StatusPending {
			return fmt.Errorf("%w: reviewed prompts are immutable", ErrValidation)
		}
		p.Title = strings.TrimSpace(in.Title)
		p.Body = in.Body
		p.Description = strings.TrimSpace(in.Description)
		p.Category = defaultString(in.Category, p.Category)
		p.TargetModel = defaultString(in.TargetModel, p.TargetModel)
		return nil
	})
	if err != nil {
		return Prompt{}, err
	}
	_ = audit.LogEvent(ctx, "prompt.edit", map[string]any{"prompt_id": id})
	return updated, nil
}

// Like increments the like counter.
func (s *Service) Like(ctx context.Context, id int64) (Prompt, error) {
	return s.store.Update(ctx, id, func(p *Prompt) error {
		p.Likes++
		return nil
	})
}

// Unlike decrements the like counter, never below zero.
func (s *Service) Unlike(ctx context.Context, id int64) (Prompt, error) {
	return s.store.Update(ctx, id, func(p *Prompt) error {
		if p.Likes > 0 {
			p.Likes--
		}
		return nil
	})
}

// Get returns the prompt with the given id.
func (s *Service) Get(ctx context.Context, id int64) (Prompt, error) {
	return s.store.Find(ctx, id)
}

// List returns prompts matching the filter, in id order as stored.
func (s *Service) List(ctx context.Context, f Filter) ([]Prompt, error) {
	items, err := s.store.All(ctx)
	if err != nil {
		return nil, err
	}
	out := items[:0:0]
	for _, p := range items {
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if f.AuthorID != "" && p.AuthorID != f.AuthorID {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// CountByAuthor implements accounts.OwnedCounter.
func (s *Service) CountByAuthor(ctx context.Context, authorID string) (int, error) {
	return s.store.CountByAuthor(ctx, authorID)
}

func defaultString(v, def string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	return v
}
