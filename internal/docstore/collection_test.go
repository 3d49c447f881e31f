package docstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func newTestCollection(t *testing.T, opts ...CollectionOption) *Collection {
	t.Helper()
	store, err := NewStore(NewMemoryBackend())
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	c, err := store.Collection("items", opts...)
	if err != nil {
		t.Fatalf("Collection() error: %v", err)
	}
	return c
}

func mustEncode(t *testing.T, v any) Document {
	t.Helper()
	d, err := Encode(v)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	return d
}

func TestCreateAndFindByID(t *testing.T) {
	ctx := context.Background()
	c := newTestCollection(t, WithIDGenerator(func() string { return "gen-1" }))

	created, err := c.Create(ctx, mustEncode(t, map[string]any{"name": "Bridge simulator"}))
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if created.ID() != "gen-1" {
		t.Fatalf("expected generated id gen-1, got %q", created.ID())
	}

	got, err := c.FindByID(ctx, "gen-1")
	if err != nil {
		t.Fatalf("FindByID() error: %v", err)
	}
	if got.String("name") != "Bridge simulator" {
		t.Fatalf("unexpected name %q", got.String("name"))
	}
}

func TestCreateRejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	c := newTestCollection(t)

	if _, err := c.Create(ctx, mustEncode(t, map[string]any{"id": "a"})); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	_, err := c.Create(ctx, mustEncode(t, map[string]any{"id": "a"}))
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	n, err := c.Count(ctx, nil)
	if err != nil {
		t.Fatalf("Count() error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 document, got %d", n)
	}
}

func TestCreateRejectsNonStringID(t *testing.T) {
	c := newTestCollection(t)
	_, err := c.Create(context.Background(), mustEncode(t, map[string]any{"id": 7}))
	if !errors.Is(err, ErrInvalidDocument) {
		t.Fatalf("expected ErrInvalidDocument, got %v", err)
	}
}

func TestFindByIDMissing(t *testing.T) {
	c := newTestCollection(t)
	_, err := c.FindByID(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateMergesShallowAndKeepsID(t *testing.T) {
	ctx := context.Background()
	c := newTestCollection(t)

	_, err := c.Create(ctx, mustEncode(t, map[string]any{
		"id":     "e1",
		"title":  "Radar course",
		"venue":  map[string]any{"city": "Odesa", "room": "101"},
		"status": "upcoming",
	}))
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	updated, err := c.Update(ctx, "e1", mustEncode(t, map[string]any{
		"id":    "other",
		"venue": map[string]any{"city": "Izmail"},
	}))
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if updated.ID() != "e1" {
		t.Fatalf("expected id to stay e1, got %q", updated.ID())
	}
	if updated.String("title") != "Radar course" {
		t.Fatalf("expected untouched title, got %q", updated.String("title"))
	}
	var got struct {
		Venue map[string]string `json:"venue"`
	}
	if err := updated.Decode(&got); err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	venue := got.Venue
	if _, ok := venue["room"]; ok || venue["city"] != "Izmail" {
		t.Fatalf("expected nested object to be replaced, got %+v", venue)
	}
}

func TestUpdateMissing(t *testing.T) {
	c := newTestCollection(t)
	_, err := c.Update(context.Background(), "ghost", Document{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTimestamps(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c := newTestCollection(t,
		WithTimestamps("created_at", "updated_at"),
		WithClock(func() time.Time { return now }),
	)

	created, err := c.Create(ctx, mustEncode(t, map[string]any{"id": "n1"}))
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if created.String("created_at") != created.String("updated_at") {
		t.Fatalf("expected equal timestamps on create: %v", created)
	}

	now = now.Add(time.Hour)
	updated, err := c.Update(ctx, "n1", mustEncode(t, map[string]any{"created_at": "1999-01-01T00:00:00Z"}))
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if updated.String("created_at") != created.String("created_at") {
		t.Fatalf("created_at changed: %q", updated.String("created_at"))
	}
	if updated.String("updated_at") != now.Format(time.RFC3339Nano) {
		t.Fatalf("expected updated_at %s, got %q", now.Format(time.RFC3339Nano), updated.String("updated_at"))
	}

	// a clock that moves backwards never moves updated_at backwards
	back := now
	now = now.Add(-2 * time.Hour)
	again, err := c.Update(ctx, "n1", Document{})
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if again.String("updated_at") != back.Format(time.RFC3339Nano) {
		t.Fatalf("updated_at went backwards: %q", again.String("updated_at"))
	}
}

func TestDeleteAndDeleteWhere(t *testing.T) {
	ctx := context.Background()
	c := newTestCollection(t)
	for i := 0; i < 4; i++ {
		if _, err := c.Create(ctx, mustEncode(t, map[string]any{"id": fmt.Sprintf("d%d", i), "even": i%2 == 0})); err != nil {
			t.Fatalf("Create() error: %v", err)
		}
	}

	if err := c.Delete(ctx, "d0"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if err := c.Delete(ctx, "d0"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}

	even := func(d Document) bool { v, _ := d.Bool("even"); return v }
	removed, err := c.DeleteWhere(ctx, even)
	if err != nil {
		t.Fatalf("DeleteWhere() error: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	removed, err = c.DeleteWhere(ctx, even)
	if err != nil {
		t.Fatalf("DeleteWhere() second call error: %v", err)
	}
	if removed != 0 {
		t.Fatalf("expected second DeleteWhere to be a no-op, got %d", removed)
	}

	rest, err := c.FindWhere(ctx, nil)
	if err != nil {
		t.Fatalf("FindWhere() error: %v", err)
	}
	if len(rest) != 2 || rest[0].ID() != "d1" || rest[1].ID() != "d3" {
		t.Fatalf("unexpected remaining documents: %v", rest)
	}
}

func TestFindOne(t *testing.T) {
	ctx := context.Background()
	c := newTestCollection(t)
	_, _ = c.Create(ctx, mustEncode(t, map[string]any{"id": "u1", "email": "Chief@Example.com"}))

	got, err := c.FindOne(ctx, FieldEqualFold("email", "chief@example.com"))
	if err != nil {
		t.Fatalf("FindOne() error: %v", err)
	}
	if got.ID() != "u1" {
		t.Fatalf("expected u1, got %q", got.ID())
	}
	if _, err := c.FindOne(ctx, FieldEquals("email", "nobody")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGuardAbortsWrite(t *testing.T) {
	ctx := context.Background()
	c := newTestCollection(t)
	errTaken := fmt.Errorf("%w: slug taken", ErrConflict)
	uniqueSlug := Guard(func(candidate Document, others []Document) error {
		for _, o := range others {
			if o.String("slug") == candidate.String("slug") {
				return errTaken
			}
		}
		return nil
	})

	if _, err := c.Create(ctx, mustEncode(t, map[string]any{"id": "a", "slug": "x"}), uniqueSlug); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if _, err := c.Create(ctx, mustEncode(t, map[string]any{"id": "b", "slug": "x"}), uniqueSlug); !errors.Is(err, errTaken) {
		t.Fatalf("expected guard error, got %v", err)
	}
	if _, err := c.Create(ctx, mustEncode(t, map[string]any{"id": "b", "slug": "y"}), uniqueSlug); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	// updating a record to its own slug is not a conflict with itself
	if _, err := c.Update(ctx, "b", mustEncode(t, map[string]any{"slug": "y"}), uniqueSlug); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if _, err := c.Update(ctx, "b", mustEncode(t, map[string]any{"slug": "x"}), uniqueSlug); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	got, _ := c.FindByID(ctx, "b")
	if got.String("slug") != "y" {
		t.Fatalf("expected rejected update to leave slug y, got %q", got.String("slug"))
	}
}

func TestWriteAllValidates(t *testing.T) {
	ctx := context.Background()
	c := newTestCollection(t)

	err := c.WriteAll(ctx, []Document{mustEncode(t, map[string]any{"id": "a"}), mustEncode(t, map[string]any{"id": "a"})})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	err = c.WriteAll(ctx, []Document{mustEncode(t, map[string]any{"name": "x"})})
	if !errors.Is(err, ErrInvalidDocument) {
		t.Fatalf("expected ErrInvalidDocument, got %v", err)
	}
	if err := c.WriteAll(ctx, []Document{mustEncode(t, map[string]any{"id": "b"})}); err != nil {
		t.Fatalf("WriteAll() error: %v", err)
	}
	all, err := c.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}
	if len(all) != 1 || all[0].ID() != "b" {
		t.Fatalf("unexpected contents after WriteAll: %v", all)
	}
}

func TestConcurrentUpdatesLastWriteWins(t *testing.T) {
	ctx := context.Background()
	c := newTestCollection(t)
	if _, err := c.Create(ctx, mustEncode(t, map[string]any{"id": "s", "name": "start"})); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	var wg sync.WaitGroup
	for _, name := range []string{"X", "Y"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if _, err := c.Update(ctx, "s", mustEncode(t, map[string]any{"name": name})); err != nil {
				t.Errorf("Update(%s) error: %v", name, err)
			}
		}(name)
	}
	wg.Wait()

	got, err := c.FindByID(ctx, "s")
	if err != nil {
		t.Fatalf("FindByID() error: %v", err)
	}
	if name := got.String("name"); name != "X" && name != "Y" {
		t.Fatalf("expected X or Y, got %q", name)
	}
}

func TestConcurrentCreatesAreSerialised(t *testing.T) {
	ctx := context.Background()
	c := newTestCollection(t)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Create(ctx, Document{}); err != nil {
				t.Errorf("Create() error: %v", err)
			}
		}()
	}
	wg.Wait()

	n, err := c.Count(ctx, nil)
	if err != nil {
		t.Fatalf("Count() error: %v", err)
	}
	if n != 25 {
		t.Fatalf("expected 25 documents, got %d", n)
	}
}

type recordingObserver struct {
	mu  sync.Mutex
	ops []string
}

func (r *recordingObserver) ObserveStoreOp(collection, op string, err error, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, fmt.Sprintf("%s.%s:%v", collection, op, err == nil))
}

func TestStoreSharesCollectionsAndObserves(t *testing.T) {
	obs := &recordingObserver{}
	store, err := NewStore(NewMemoryBackend(), WithObserver(obs))
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	a, _ := store.Collection("news")
	b, _ := store.Collection("news")
	if a != b {
		t.Fatalf("expected the same collection instance")
	}
	if _, err := store.Collection("../etc"); !errors.Is(err, ErrInvalidDocument) {
		t.Fatalf("expected invalid collection name error, got %v", err)
	}

	_, _ = a.FindByID(context.Background(), "missing")
	if len(obs.ops) != 1 || obs.ops[0] != "news.find_by_id:false" {
		t.Fatalf("unexpected observed ops: %v", obs.ops)
	}
}
