package prompts

import (
	"context"
	"strconv"
	"sync"

	"promptdeck.org/internal/store/snapshot"
)

// Store is the capability interface over the durable prompt collection.
// One implementation is bound at startup per deployment target.
type Store interface {
	All(ctx context.Context) ([]Prompt, error)
	Find(ctx context.Context, id int64) (Prompt, error)
	MaxID(ctx context.Context) (int64, error)
	// Create appends the items with ids assigned max(existing)+1 onward, in
	// input order with no gaps. Ids are never reused after deletion.
	Create(ctx context.Context, items []Prompt) ([]Prompt, error)
	Update(ctx context.Context, id int64, fn func(*Prompt) error) (Prompt, error)
	Remove(ctx context.Context, id int64) (bool, error)
	CountByAuthor(ctx context.Context, authorID string) (int, error)
}

// SnapshotStore keeps prompts in a mirrored in-memory collection.
type SnapshotStore struct {
	col *snapshot.Collection[Prompt]
	// idMu serializes id assignment across Create calls; the collection's
	// own mutex only covers individual mutators. lastID is the high-water
	// mark, so deleting the newest prompt does not free its id.
	idMu   sync.Mutex
	lastID int64
}

var _ Store = (*SnapshotStore)(nil)

func promptKey(p Prompt) string { return strconv.FormatInt(p.ID, 10) }

// NewSnapshotStore loads the prompt snapshot at path, seeding from baseline
// when the snapshot is absent or unreadable.
func NewSnapshotStore(path string, baseline []Prompt) *SnapshotStore {
	s := &SnapshotStore{
		col: snapshot.New("prompts", path, promptKey, baseline),
	}
	s.lastID, _ = s.MaxID(context.Background())
	return s
}

func (s *SnapshotStore) All(ctx context.Context) ([]Prompt, error) {
	return s.col.Items(), nil
}

func (s *SnapshotStore) Find(ctx context.Context, id int64) (Prompt, error) {
	p, ok := s.col.Find(strconv.FormatInt(id, 10))
	if !ok {
		return Prompt{}, ErrNotFound
	}
	return p, nil
}

func (s *SnapshotStore) MaxID(ctx context.Context) (int64, error) {
	var max int64
	for _, p := range s.col.Items() {
		if p.ID > max {
			max = p.ID
		}
	}
	return max, nil
}

func (s *SnapshotStore) Create(ctx context.Context, items []Prompt) ([]Prompt, error) {
	if len(items) == 0 {
		return nil, nil
	}
	s.idMu.Lock()
	defer s.idMu.Unlock()
	next, err := s.MaxID(ctx)
	if err != nil {
		return nil, err
	}
	if s.lastID > next {
		next = s.lastID
	}
	out := append([]Prompt(nil), items...)
	for i := range out {
		next++
		out[i].ID = next
	}
	s.lastID = next
	s.col.Append(out...)
	return out, nil
}

func (s *SnapshotStore) Update(ctx context.Context, id int64, fn func(*Prompt) error) (Prompt, error) {
	p, ok, err := s.col.Update(strconv.FormatInt(id, 10), fn)
	if err != nil {
		return Prompt{}, err
	}
	if !ok {
		return Prompt{}, ErrNotFound
	}
	return p, nil
}

func (s *SnapshotStore) Remove(ctx context.Context, id int64) (bool, error) {
	return s.col.Remove(strconv.FormatInt(id, 10)), nil
}

func (s *SnapshotStore) CountByAuthor(ctx context.Context, authorID string) (int, error) {
	return len(s.col.Where(func(p Prompt) bool { return p.AuthorID == authorID })), nil
}
