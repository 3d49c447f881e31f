package content

import "time"

type EventStatus string

const (
	EventUpcoming         EventStatus = "upcoming"
	EventRegistrationOpen EventStatus = "registration-open"
	EventCompleted        EventStatus = "completed"
	EventCancelled        EventStatus = "cancelled"
)

var eventStatuses = map[EventStatus]struct{}{
	EventUpcoming:         {},
	EventRegistrationOpen: {},
	EventCompleted:        {},
	EventCancelled:        {},
}

type Event struct {
	ID          string      `json:"id,omitempty"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Location    string      `json:"location"`
	StartDate   time.Time   `json:"start_date"`
	EndDate     *time.Time  `json:"end_date,omitempty"`
	Status      EventStatus `json:"status"`
	Capacity    int         `json:"capacity"`
	Registered  int         `json:"registered"`
	ImageURL    string      `json:"image_url,omitempty"`
	CreatedBy   string      `json:"created_by,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// EventFilter narrows List. Zero fields match everything.
type EventFilter struct {
	Status EventStatus
	From   time.Time
	Limit  int
}

type ArticleStatus string

const (
	ArticleDraft     ArticleStatus = "draft"
	ArticlePublished ArticleStatus = "published"
	ArticleArchived  ArticleStatus = "archived"
)

var articleStatuses = map[ArticleStatus]struct{}{
	ArticleDraft:     {},
	ArticlePublished: {},
	ArticleArchived:  {},
}

type Article struct {
	ID          string        `json:"id,omitempty"`
	Title       string        `json:"title"`
	Slug        string        `json:"slug"`
	Summary     string        `json:"summary"`
	Content     string        `json:"content"`
	Author      string        `json:"author"`
	ImageURL    string        `json:"image_url,omitempty"`
	Tags        []string      `json:"tags"`
	Status      ArticleStatus `json:"status"`
	Views       int           `json:"views"`
	PublishedAt *time.Time    `json:"published_at,omitempty"`
	CreatedBy   string        `json:"created_by,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

type NewsFilter struct {
	Status ArticleStatus
	Tag    string
	Limit  int
}

const (
	createdField = "created_at"
	updatedField = "updated_at"
)
