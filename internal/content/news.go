package content

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"maritimeacademy/site-admin/internal/docstore"
)

// News manages articles. Only published articles are visible publicly and
// each public read counts one view.
type News struct {
	coll    *docstore.Collection
	nowFunc func() time.Time
}

func NewNews(coll *docstore.Collection) (*News, error) {
	if coll == nil {
		return nil, fmt.Errorf("news collection is required")
	}
	return &News{coll: coll, nowFunc: time.Now}, nil
}

// List returns matching articles, newest first.
func (s *News) List(ctx context.Context, f NewsFilter) ([]Article, error) {
	docs, err := s.coll.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Article, 0, len(docs))
	for _, doc := range docs {
		var a Article
		if err := doc.Decode(&a); err != nil {
			return nil, err
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.Tag != "" && !hasTag(a.Tags, f.Tag) {
			continue
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool { return sortKey(out[i]).After(sortKey(out[j])) })
	return limit(out, f.Limit), nil
}

func (s *News) Get(ctx context.Context, id string) (Article, error) {
	doc, err := s.coll.FindByID(ctx, id)
	if err != nil {
		return Article{}, notFound(err, ErrArticleNotFound)
	}
	var a Article
	if err := doc.Decode(&a); err != nil {
		return Article{}, err
	}
	return a, nil
}

// GetPublished finds a published article by id or slug and counts the view.
func (s *News) GetPublished(ctx context.Context, idOrSlug string) (Article, error) {
	idOrSlug = strings.TrimSpace(idOrSlug)
	doc, err := s.coll.FindOne(ctx, func(d docstore.Document) bool {
		if ArticleStatus(d.String("status")) != ArticlePublished {
			return false
		}
		return d.ID() == idOrSlug || strings.EqualFold(d.String("slug"), idOrSlug)
	})
	if err != nil {
		return Article{}, notFound(err, ErrArticleNotFound)
	}

	var out Article
	_, err = s.coll.Apply(ctx, doc.ID(), func(cur docstore.Document) (docstore.Document, error) {
		var a Article
		if err := cur.Decode(&a); err != nil {
			return nil, err
		}
		if a.Status != ArticlePublished {
			return nil, ErrArticleNotFound
		}
		a.Views++
		if err := cur.Set("views", a.Views); err != nil {
			return nil, err
		}
		out = a
		return cur, nil
	})
	if err != nil {
		return Article{}, notFound(err, ErrArticleNotFound)
	}
	return out, nil
}

func (s *News) Create(ctx context.Context, in Article, actor string) (Article, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Slug = strings.TrimSpace(in.Slug)
	if in.Slug == "" {
		in.Slug = Slugify(in.Title)
	}
	if in.Status == "" {
		in.Status = ArticleDraft
	}
	in.Views = 0
	in.PublishedAt = nil
	if in.Status == ArticlePublished {
		now := s.nowFunc().UTC()
		in.PublishedAt = &now
	}
	if in.Tags == nil {
		in.Tags = []string{}
	}
	in.CreatedBy = actor
	if err := validateArticle(in); err != nil {
		return Article{}, err
	}

	doc, err := encodeNew(in)
	if err != nil {
		return Article{}, err
	}
	created, err := s.coll.Create(ctx, doc, uniqueSlug())
	if err != nil {
		return Article{}, err
	}
	var a Article
	if err := created.Decode(&a); err != nil {
		return Article{}, err
	}
	return a, nil
}

// Update merges patch into the article. published_at is set the first time
// the article becomes published and kept afterwards.
func (s *News) Update(ctx context.Context, id string, patch docstore.Document) (Article, error) {
	updated, err := s.coll.Apply(ctx, id, func(cur docstore.Document) (docstore.Document, error) {
		next := mergePatch(cur, patch)
		var a Article
		if err := decodeInto(next, &a); err != nil {
			return nil, err
		}
		if strings.TrimSpace(a.Slug) == "" {
			a.Slug = Slugify(a.Title)
			if err := next.Set("slug", a.Slug); err != nil {
				return nil, err
			}
		}
		if a.Status == ArticlePublished && a.PublishedAt == nil {
			if err := next.Set("published_at", s.nowFunc().UTC()); err != nil {
				return nil, err
			}
		}
		if err := validateArticle(a); err != nil {
			return nil, err
		}
		return next, nil
	}, uniqueSlug())
	if err != nil {
		return Article{}, notFound(err, ErrArticleNotFound)
	}
	var a Article
	if err := updated.Decode(&a); err != nil {
		return Article{}, err
	}
	return a, nil
}

func (s *News) Delete(ctx context.Context, id string) error {
	if err := s.coll.Delete(ctx, id); err != nil {
		return notFound(err, ErrArticleNotFound)
	}
	return nil
}

func uniqueSlug() docstore.WriteOption {
	return docstore.Guard(func(candidate docstore.Document, others []docstore.Document) error {
		slug := candidate.String("slug")
		for _, o := range others {
			if strings.EqualFold(o.String("slug"), slug) {
				return fmt.Errorf("%w: %s", ErrSlugInUse, slug)
			}
		}
		return nil
	})
}

func validateArticle(a Article) error {
	if strings.TrimSpace(a.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if a.Slug == "" || a.Slug != Slugify(a.Slug) {
		return fmt.Errorf("%w: slug must be lowercase letters, digits and dashes", ErrInvalidInput)
	}
	if _, ok := articleStatuses[a.Status]; !ok {
		return fmt.Errorf("%w: status must be draft, published or archived", ErrInvalidInput)
	}
	return nil
}

// Slugify lowercases s and joins its letter and digit runs with dashes.
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
			continue
		}
		dash = true
	}
	return b.String()
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

func sortKey(a Article) time.Time {
	if a.PublishedAt != nil {
		return *a.PublishedAt
	}
	return a.CreatedAt
}
