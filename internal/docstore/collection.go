package docstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"maritimeacademy/site-admin/internal/ids"
)

// Collection is a named set of documents keyed by "id". Reads load the
// whole collection; writes are read-modify-write cycles serialised by the
// collection's mutex.
type Collection struct {
	name     string
	backend  Backend
	observer Observer

	nowFunc      func() time.Time
	newID        func() string
	createdField string
	updatedField string

	mu sync.RWMutex
}

type CollectionOption func(*Collection)

// WithTimestamps stamps createdField on create and refreshes updatedField
// on every write. Either name may be empty.
func WithTimestamps(createdField, updatedField string) CollectionOption {
	return func(c *Collection) {
		c.createdField = createdField
		c.updatedField = updatedField
	}
}

func WithClock(now func() time.Time) CollectionOption {
	return func(c *Collection) { c.nowFunc = now }
}

func WithIDGenerator(gen func() string) CollectionOption {
	return func(c *Collection) { c.newID = gen }
}

func newCollection(name string, backend Backend, observer Observer, opts ...CollectionOption) *Collection {
	c := &Collection{
		name:     name,
		backend:  backend,
		observer: observer,
		nowFunc:  time.Now,
		newID:    ids.New,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewCollection builds a standalone collection on backend. Prefer
// Store.Collection so that all users of a name share one lock.
func NewCollection(name string, backend Backend, opts ...CollectionOption) (*Collection, error) {
	if backend == nil {
		return nil, fmt.Errorf("store backend is required")
	}
	if err := validateCollectionName(name); err != nil {
		return nil, err
	}
	return newCollection(name, backend, nil, opts...), nil
}

func (c *Collection) Name() string {
	return c.name
}

// WriteOption customises a single write.
type WriteOption func(*writeOptions)

type writeOptions struct {
	guards []func(candidate Document, others []Document) error
}

// Guard runs fn under the collection lock with the record about to be
// written and every other record. A non-nil error aborts the write.
func Guard(fn func(candidate Document, others []Document) error) WriteOption {
	return func(o *writeOptions) { o.guards = append(o.guards, fn) }
}

func (c *Collection) ReadAll(ctx context.Context) (docs []Document, err error) {
	defer c.observe("read_all", time.Now(), &err)
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.backend.Load(ctx, c.name)
}

func (c *Collection) WriteAll(ctx context.Context, docs []Document) (err error) {
	defer c.observe("write_all", time.Now(), &err)
	seen := make(map[string]struct{}, len(docs))
	for i, d := range docs {
		id := d.ID()
		if id == "" {
			return fmt.Errorf("%w: document %d has no id", ErrInvalidDocument, i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate id %s", ErrConflict, id)
		}
		seen[id] = struct{}{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backend.Save(ctx, c.name, cloneAll(docs))
}

func (c *Collection) FindByID(ctx context.Context, id string) (doc Document, err error) {
	defer c.observe("find_by_id", time.Now(), &err)
	docs, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	if i := indexOf(docs, id); i >= 0 {
		return docs[i], nil
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, c.name, id)
}

func (c *Collection) FindWhere(ctx context.Context, pred Predicate) (out []Document, err error) {
	defer c.observe("find_where", time.Now(), &err)
	docs, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	out = make([]Document, 0)
	for _, d := range docs {
		if pred == nil || pred(d) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (c *Collection) FindOne(ctx context.Context, pred Predicate) (doc Document, err error) {
	defer c.observe("find_one", time.Now(), &err)
	docs, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		if pred == nil || pred(d) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: no match in %s", ErrNotFound, c.name)
}

func (c *Collection) Count(ctx context.Context, pred Predicate) (n int, err error) {
	defer c.observe("count", time.Now(), &err)
	docs, err := c.load(ctx)
	if err != nil {
		return 0, err
	}
	for _, d := range docs {
		if pred == nil || pred(d) {
			n++
		}
	}
	return n, nil
}

// Create stores doc. The "id" field is used when present, otherwise one is
// generated. An id that already exists is a conflict.
func (c *Collection) Create(ctx context.Context, doc Document, opts ...WriteOption) (created Document, err error) {
	defer c.observe("create", time.Now(), &err)
	if doc == nil {
		return nil, fmt.Errorf("%w: nil document", ErrInvalidDocument)
	}
	doc = doc.Clone()
	if _, ok := doc["id"]; ok && doc.ID() == "" {
		return nil, fmt.Errorf("%w: id must be a non-empty string", ErrInvalidDocument)
	}
	id := doc.ID()
	if id == "" {
		id = c.newID()
		if err := doc.Set("id", id); err != nil {
			return nil, err
		}
	}
	if err := c.stampCreate(doc); err != nil {
		return nil, err
	}

	o := buildWriteOptions(opts)

	c.mu.Lock()
	defer c.mu.Unlock()
	docs, err := c.backend.Load(ctx, c.name)
	if err != nil {
		return nil, err
	}
	if indexOf(docs, id) >= 0 {
		return nil, fmt.Errorf("%w: %s/%s already exists", ErrConflict, c.name, id)
	}
	if err := o.check(doc, docs); err != nil {
		return nil, err
	}
	docs = append(docs, doc)
	if err := c.backend.Save(ctx, c.name, docs); err != nil {
		return nil, err
	}
	return doc.Clone(), nil
}

// Update shallow-merges patch onto the record. The id and timestamp fields
// in patch are ignored.
func (c *Collection) Update(ctx context.Context, id string, patch Document, opts ...WriteOption) (Document, error) {
	return c.apply(ctx, "update", id, func(cur Document) (Document, error) {
		for k, v := range patch {
			if k == "id" || k == c.createdField || k == c.updatedField {
				continue
			}
			cur[k] = append([]byte(nil), v...)
		}
		return cur, nil
	}, opts...)
}

// Apply replaces the record with fn(record) under the collection lock.
func (c *Collection) Apply(ctx context.Context, id string, fn func(Document) (Document, error), opts ...WriteOption) (Document, error) {
	return c.apply(ctx, "apply", id, fn, opts...)
}

func (c *Collection) apply(ctx context.Context, op, id string, fn func(Document) (Document, error), opts ...WriteOption) (updated Document, err error) {
	defer c.observe(op, time.Now(), &err)
	o := buildWriteOptions(opts)

	c.mu.Lock()
	defer c.mu.Unlock()
	docs, err := c.backend.Load(ctx, c.name)
	if err != nil {
		return nil, err
	}
	i := indexOf(docs, id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, c.name, id)
	}
	cur := docs[i]
	next, err := fn(cur.Clone())
	if err != nil {
		return nil, err
	}
	if next == nil {
		return nil, fmt.Errorf("%w: nil document", ErrInvalidDocument)
	}
	next["id"] = cur["id"]
	if err := c.stampUpdate(cur, next); err != nil {
		return nil, err
	}
	if err := o.check(next, docs); err != nil {
		return nil, err
	}
	docs[i] = next
	if err := c.backend.Save(ctx, c.name, docs); err != nil {
		return nil, err
	}
	return next.Clone(), nil
}

func (c *Collection) Delete(ctx context.Context, id string) (err error) {
	defer c.observe("delete", time.Now(), &err)
	c.mu.Lock()
	defer c.mu.Unlock()
	docs, err := c.backend.Load(ctx, c.name)
	if err != nil {
		return err
	}
	i := indexOf(docs, id)
	if i < 0 {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, c.name, id)
	}
	docs = append(docs[:i], docs[i+1:]...)
	return c.backend.Save(ctx, c.name, docs)
}

// DeleteWhere removes every matching record and reports how many went.
// Nothing is written when nothing matches.
func (c *Collection) DeleteWhere(ctx context.Context, pred Predicate) (removed int, err error) {
	defer c.observe("delete_where", time.Now(), &err)
	if pred == nil {
		return 0, fmt.Errorf("%w: predicate is required", ErrInvalidDocument)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	docs, err := c.backend.Load(ctx, c.name)
	if err != nil {
		return 0, err
	}
	kept := make([]Document, 0, len(docs))
	for _, d := range docs {
		if pred(d) {
			removed++
			continue
		}
		kept = append(kept, d)
	}
	if removed == 0 {
		return 0, nil
	}
	if err := c.backend.Save(ctx, c.name, kept); err != nil {
		return 0, err
	}
	return removed, nil
}

func (c *Collection) load(ctx context.Context) ([]Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.backend.Load(ctx, c.name)
}

func (c *Collection) stampCreate(doc Document) error {
	now := c.nowFunc().UTC()
	if c.createdField != "" {
		if created, ok := timeField(doc, c.createdField); ok {
			if now.Before(created) {
				now = created
			}
		} else if err := doc.Set(c.createdField, now.Format(time.RFC3339Nano)); err != nil {
			return err
		}
	}
	if c.updatedField != "" {
		if updated, ok := timeField(doc, c.updatedField); ok && !updated.Before(now) {
			return nil
		}
		return doc.Set(c.updatedField, now.Format(time.RFC3339Nano))
	}
	return nil
}

// stampUpdate keeps the created field from cur and moves the updated field
// forward, never before the previous value or the creation time.
func (c *Collection) stampUpdate(cur, next Document) error {
	if c.createdField != "" {
		if v, ok := cur[c.createdField]; ok {
			next[c.createdField] = v
		}
	}
	if c.updatedField == "" {
		return nil
	}
	now := c.nowFunc().UTC()
	if prev, ok := timeField(cur, c.updatedField); ok && now.Before(prev) {
		now = prev
	}
	if c.createdField != "" {
		if created, ok := timeField(cur, c.createdField); ok && now.Before(created) {
			now = created
		}
	}
	return next.Set(c.updatedField, now.Format(time.RFC3339Nano))
}

func (c *Collection) observe(op string, start time.Time, errp *error) {
	if c.observer == nil {
		return
	}
	c.observer.ObserveStoreOp(c.name, op, *errp, time.Since(start))
}

func buildWriteOptions(opts []WriteOption) writeOptions {
	var o writeOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o writeOptions) check(candidate Document, all []Document) error {
	if len(o.guards) == 0 {
		return nil
	}
	id := candidate.ID()
	others := make([]Document, 0, len(all))
	for _, d := range all {
		if d.ID() != id {
			others = append(others, d)
		}
	}
	for _, g := range o.guards {
		if err := g(candidate, others); err != nil {
			return err
		}
	}
	return nil
}

func indexOf(docs []Document, id string) int {
	if id == "" {
		return -1
	}
	for i, d := range docs {
		if d.ID() == id {
			return i
		}
	}
	return -1
}

func timeField(d Document, field string) (time.Time, bool) {
	s := d.String(field)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
