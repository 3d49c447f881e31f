package content

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"maritimeacademy/site-admin/internal/docstore"
)

// Events manages the training events shown on the public site.
type Events struct {
	coll *docstore.Collection
}

func NewEvents(coll *docstore.Collection) (*Events, error) {
	if coll == nil {
		return nil, fmt.Errorf("events collection is required")
	}
	return &Events{coll: coll}, nil
}

// List returns matching events ordered by start date.
func (s *Events) List(ctx context.Context, f EventFilter) ([]Event, error) {
	docs, err := s.coll.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(docs))
	for _, doc := range docs {
		var e Event
		if err := doc.Decode(&e); err != nil {
			return nil, err
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		if !f.From.IsZero() && e.StartDate.Before(f.From) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return limit(out, f.Limit), nil
}

func (s *Events) Get(ctx context.Context, id string) (Event, error) {
	doc, err := s.coll.FindByID(ctx, id)
	if err != nil {
		return Event{}, notFound(err, ErrEventNotFound)
	}
	var e Event
	if err := doc.Decode(&e); err != nil {
		return Event{}, err
	}
	return e, nil
}

func (s *Events) Create(ctx context.Context, in Event, actor string) (Event, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Location = strings.TrimSpace(in.Location)
	if in.Status == "" {
		in.Status = EventUpcoming
	}
	in.Registered = 0
	in.CreatedBy = actor
	if err := validateEvent(in); err != nil {
		return Event{}, err
	}

	doc, err := encodeNew(in)
	if err != nil {
		return Event{}, err
	}
	created, err := s.coll.Create(ctx, doc)
	if err != nil {
		return Event{}, err
	}
	var e Event
	if err := created.Decode(&e); err != nil {
		return Event{}, err
	}
	return e, nil
}

// Update merges patch into the event and validates the result before it
// is stored.
func (s *Events) Update(ctx context.Context, id string, patch docstore.Document) (Event, error) {
	updated, err := s.coll.Apply(ctx, id, func(cur docstore.Document) (docstore.Document, error) {
		next := mergePatch(cur, patch)
		var e Event
		if err := decodeInto(next, &e); err != nil {
			return nil, err
		}
		if err := validateEvent(e); err != nil {
			return nil, err
		}
		return next, nil
	})
	if err != nil {
		return Event{}, notFound(err, ErrEventNotFound)
	}
	var e Event
	if err := updated.Decode(&e); err != nil {
		return Event{}, err
	}
	return e, nil
}

func (s *Events) Delete(ctx context.Context, id string) error {
	if err := s.coll.Delete(ctx, id); err != nil {
		return notFound(err, ErrEventNotFound)
	}
	return nil
}

// Register takes one seat. A capacity of zero means unlimited.
func (s *Events) Register(ctx context.Context, id string) (Event, error) {
	var out Event
	_, err := s.coll.Apply(ctx, id, func(cur docstore.Document) (docstore.Document, error) {
		var e Event
		if err := cur.Decode(&e); err != nil {
			return nil, err
		}
		if e.Status != EventRegistrationOpen {
			return nil, ErrRegistrationClosed
		}
		if e.Capacity > 0 && e.Registered >= e.Capacity {
			return nil, ErrEventFull
		}
		e.Registered++
		if err := cur.Set("registered", e.Registered); err != nil {
			return nil, err
		}
		out = e
		return cur, nil
	})
	if err != nil {
		return Event{}, notFound(err, ErrEventNotFound)
	}
	return out, nil
}

func validateEvent(e Event) error {
	if strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if e.StartDate.IsZero() {
		return fmt.Errorf("%w: start_date is required", ErrInvalidInput)
	}
	if e.EndDate != nil && e.EndDate.Before(e.StartDate) {
		return fmt.Errorf("%w: end_date must not be before start_date", ErrInvalidInput)
	}
	if _, ok := eventStatuses[e.Status]; !ok {
		return fmt.Errorf("%w: status must be upcoming, registration-open, completed or cancelled", ErrInvalidInput)
	}
	if e.Capacity < 0 {
		return fmt.Errorf("%w: capacity must be >= 0", ErrInvalidInput)
	}
	if e.Capacity > 0 && e.Registered > e.Capacity {
		return fmt.Errorf("%w: capacity is below current registrations", ErrInvalidInput)
	}
	return nil
}
