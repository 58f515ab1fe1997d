package prompts

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"promptdeck.org/internal/access"
	"promptdeck.org/internal/accounts"
)

type fixture struct {
	svc     *Service
	acctSvc *accounts.Service
	admin   accounts.Account
	user    accounts.Account
	other   accounts.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	acctStore := accounts.NewSnapshotStore(filepath.Join(dir, "accounts.json"), nil)
	acctSvc, err := accounts.NewService(acctStore)
	if err != nil {
		t.Fatalf("accounts.NewService: %v", err)
	}
	ctx := context.Background()
	admin, err := acctSvc.Register(ctx, "Root", "root@example.com", "pw", access.RoleAdmin)
	if err != nil {
		t.Fatalf("register admin: %v", err)
	}
	user, err := acctSvc.Register(ctx, "Ada", "ada@example.com", "pw", access.RoleUser)
	if err != nil {
		t.Fatalf("register user: %v", err)
	}
	other, err := acctSvc.Register(ctx, "Bob", "bob@example.com", "pw", access.RoleUser)
	if err != nil {
		t.Fatalf("register other: %v", err)
	}

	store := NewSnapshotStore(filepath.Join(dir, "prompts.json"), nil)
	svc, err := NewService(store, acctSvc)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return &fixture{svc: svc, acctSvc: acctSvc, admin: admin, user: user, other: other}
}

func (f *fixture) submit(t *testing.T, authorID string) Prompt {
	t.Helper()
	p, err := f.svc.Submit(context.Background(), authorID, Submission{
		Title: "Summarize a paper",
		Body:  "Summarize the following paper in three bullet points: {{paper}}",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return p
}

func TestSubmitStartsPending(t *testing.T) {
	f := newFixture(t)
	p := f.submit(t, f.user.ID)

	if p.Status != StatusPending {
		t.Fatalf("expected pending, got %s", p.Status)
	}
	if p.ID != 1 {
		t.Fatalf("expected first id 1, got %d", p.ID)
	}
	if p.AuthorID != f.user.ID {
		t.Fatalf("author not stamped: %s", p.AuthorID)
	}
	if p.Category != DefaultCategory || p.TargetModel != DefaultTargetModel {
		t.Fatalf("defaults not applied: %+v", p)
	}
	if p.ReviewedAt != nil || p.ReviewedBy != "" {
		t.Fatalf("review fields must be empty on submission: %+v", p)
	}
}

func TestSubmitRequiresBody(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Submit(context.Background(), f.user.ID, Submission{Title: "No body"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestDraftSaveAndPublish(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.Submit(ctx, f.user.ID, Submission{
		Title: "Summarize a paper",
		Body:  "Summarize the following paper in three bullet points: {{paper}}",
		Draft: true,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if p.Status != StatusDraft {
		t.Fatalf("expected draft, got %s", p.Status)
	}

	// A draft is not reviewable yet.
	if _, err := f.svc.Review(ctx, f.admin.ID, p.ID, StatusApproved, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition reviewing a draft, got %v", err)
	}

	// Only the owner can publish it.
	if _, err := f.svc.Publish(ctx, f.other.ID, p.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-owner, got %v", err)
	}
	published, err := f.svc.Publish(ctx, f.user.ID, p.ID)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if published.Status != StatusPending {
		t.Fatalf("expected pending after publish, got %s", published.Status)
	}
	if _, err := f.svc.Publish(ctx, f.user.ID, p.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on second publish, got %v", err)
	}

	// It enters the normal review flow from here.
	if _, err := f.svc.Review(ctx, f.admin.ID, p.ID, StatusApproved, ""); err != nil {
		t.Fatalf("Review after publish: %v", err)
	}
}

func TestApproveStampsReviewer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.submit(t, f.user.ID)

	approved, err := f.svc.Review(ctx, f.admin.ID, p.ID, StatusApproved, "")
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if approved.Status != StatusApproved {
		t.Fatalf("expected approved, got %s", approved.Status)
	}
	if approved.ReviewedAt == nil || approved.ReviewedBy != f.admin.ID {
		t.Fatalf("review stamp missing: %+v", approved)
	}
}

func TestRejectRecordsReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.submit(t, f.user.ID)

	rejected, err := f.svc.Review(ctx, f.admin.ID, p.ID, StatusRejected, "duplicate of #12")
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if rejected.Status != StatusRejected {
		t.Fatalf("expected rejected, got %s", rejected.Status)
	}
	if rejected.RejectionReason != "duplicate of #12" {
		t.Fatalf("reason not recorded: %q", rejected.RejectionReason)
	}
}

func TestApproveApprovedIsInvalidTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.submit(t, f.user.ID)
	if _, err := f.svc.Review(ctx, f.admin.ID, p.ID, StatusApproved, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Review(ctx, f.admin.ID, p.ID, StatusApproved, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	// approved -> pending is not in the table either
	if _, err := f.svc.Review(ctx, f.admin.ID, p.ID, StatusPending, ""); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus for pending target, got %v", err)
	}
}

func TestReviewErrorKindsAreDistinct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.submit(t, f.user.ID)

	// Invalid target status rejected before any lookup.
	if _, err := f.svc.Review(ctx, f.admin.ID, p.ID, Status("archived"), ""); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	// Plain user lacks content.review.
	if _, err := f.svc.Review(ctx, f.user.ID, p.ID, StatusApproved, ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	// Unknown id is not-found, not forbidden.
	if _, err := f.svc.Review(ctx, f.admin.ID, 999, StatusApproved, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	// Nothing mutated along the way.
	got, _ := f.svc.Get(ctx, p.ID)
	if got.Status != StatusPending {
		t.Fatalf("prompt mutated by failed reviews: %s", got.Status)
	}
}

func TestModeratorCanReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.submit(t, f.user.ID)

	role := access.RoleModerator
	if _, err := f.acctSvc.Update(ctx, f.other.ID, accounts.Update{Role: &role}); err != nil {
		t.Fatalf("promote moderator: %v", err)
	}
	if _, err := f.svc.Review(ctx, f.other.ID, p.ID, StatusApproved, ""); err != nil {
		t.Fatalf("moderator review: %v", err)
	}
}

func TestFeatureToggle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.submit(t, f.user.ID)

	// Featuring a pending prompt is a validation error, not a no-op.
	if _, err := f.svc.SetFeatured(ctx, f.admin.ID, p.ID, true); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	got, _ := f.svc.Get(ctx, p.ID)
	if got.Featured {
		t.Fatal("failed feature toggle leaked state")
	}

	if _, err := f.svc.Review(ctx, f.admin.ID, p.ID, StatusApproved, ""); err != nil {
		t.Fatal(err)
	}
	featured, err := f.svc.SetFeatured(ctx, f.admin.ID, p.ID, true)
	if err != nil {
		t.Fatalf("SetFeatured: %v", err)
	}
	if !featured.Featured {
		t.Fatal("expected is_featured true")
	}

	// Plain users cannot manage the flag.
	if _, err := f.svc.SetFeatured(ctx, f.user.ID, p.ID, false); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestDeleteOwnershipRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.submit(t, f.user.ID)

	// A different plain user may not delete someone else's prompt.
	if err := f.svc.Delete(ctx, f.other.ID, p.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	// The owner may.
	if err := f.svc.Delete(ctx, f.user.ID, p.ID); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
	// Second delete reports not found and leaves the collection alone.
	if err := f.svc.Delete(ctx, f.user.ID, p.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	q := f.submit(t, f.user.ID)
	// Admin deleteAny covers foreign prompts from any status.
	if _, err := f.svc.Review(ctx, f.admin.ID, q.ID, StatusApproved, ""); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.Delete(ctx, f.admin.ID, q.ID); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
}

func TestIDsNotReusedAfterDeletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.submit(t, f.user.ID)
	p2 := f.submit(t, f.user.ID)
	if err := f.svc.Delete(ctx, f.user.ID, p2.ID); err != nil {
		t.Fatal(err)
	}
	p3 := f.submit(t, f.user.ID)
	if p3.ID != p2.ID+1 {
		t.Fatalf("id reused after deletion: got %d after deleting %d", p3.ID, p2.ID)
	}
}

func TestLikesNeverNegative(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.submit(t, f.user.ID)

	if _, err := f.svc.Unlike(ctx, p.ID); err != nil {
		t.Fatal(err)
	}
	got, _ := f.svc.Get(ctx, p.ID)
	if got.Likes != 0 {
		t.Fatalf("likes went negative: %d", got.Likes)
	}
	if _, err := f.svc.Like(ctx, p.ID); err != nil {
		t.Fatal(err)
	}
	got, _ = f.svc.Get(ctx, p.ID)
	if got.Likes != 1 {
		t.Fatalf("expected 1 like, got %d", got.Likes)
	}
}

func TestEditReviewedPromptRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.submit(t, f.user.ID)

	if _, err := f.svc.Edit(ctx, f.user.ID, p.ID, Submission{Title: "Better title", Body: "Better body"}); err != nil {
		t.Fatalf("edit pending: %v", err)
	}
	if _, err := f.svc.Review(ctx, f.admin.ID, p.ID, StatusApproved, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Edit(ctx, f.user.ID, p.ID, Submission{Title: "x", Body: "y"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for reviewed prompt, got %v", err)
	}
}

func TestListFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.submit(t, f.user.ID)
	f.submit(t, f.other.ID)
	if _, err := f.svc.Review(ctx, f.admin.ID, p1.ID, StatusApproved, ""); err != nil {
		t.Fatal(err)
	}

	approved, err := f.svc.List(ctx, Filter{Status: StatusApproved})
	if err != nil {
		t.Fatal(err)
	}
	if len(approved) != 1 || approved[0].ID != p1.ID {
		t.Fatalf("approved filter: %+v", approved)
	}
	mine, err := f.svc.List(ctx, Filter{AuthorID: f.other.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 || mine[0].AuthorID != f.other.ID {
		t.Fatalf("author filter: %+v", mine)
	}
}
