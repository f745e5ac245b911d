package domain

import (
	"time"

	"github.com/google/uuid"
)

// PostSummary is the relational view of a post used by analytics responses
type PostSummary struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Title     string    `json:"title"`
	Slug      string    `json:"slug"`
	Status    string    `json:"status"`
	Views     int64     `json:"views"`
	Reads     int64     `json:"reads"`
	Likes     int64     `json:"likes"`
	CreatedAt time.Time `json:"created_at"`
}

// ValidPostID reports whether id has the canonical UUID form of a post
// primary key. Events may reference anything, so IDs read back from the
// event log are checked before they reach the relational store.
func ValidPostID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// PostCounter names a transactionally maintained counter column on posts
type PostCounter string

const (
	CounterViews PostCounter = "views"
	CounterReads PostCounter = "reads"
)

// ViewKind is the dedup namespace for a counted signal
type ViewKind string

const (
	ViewKindView ViewKind = "view"
	ViewKindRead ViewKind = "read"
)

// Counter maps the signal to the post column it increments
func (k ViewKind) Counter() PostCounter {
	if k == ViewKindRead {
		return CounterReads
	}
	return CounterViews
}

// Event maps the signal to the analytics event it emits
func (k ViewKind) Event() EventKind {
	if k == ViewKindRead {
		return EventPostRead
	}
	return EventPostView
}

// CounterChange is published to live subscribers when a post counter moves
type CounterChange struct {
	PostID  string      `json:"post_id"`
	Counter PostCounter `json:"counter"`
	Value   int64       `json:"value"`
}

// ViewOutcome is the result of a deduplicated view/read
type ViewOutcome struct {
	Post    *PostSummary `json:"post"`
	Counted bool         `json:"counted"`
	Hits    int64        `json:"window_hits"`
}
