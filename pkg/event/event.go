// Package event defines the analytics event as it travels from the client
// emitter to the ingestion endpoint.
package event

import "time"

// Kind enumerates the analytics event types
type Kind string

const (
	PageView     Kind = "page_view"
	PostView     Kind = "post_view"
	PostRead     Kind = "post_read"
	Like         Kind = "like"
	Comment      Kind = "comment"
	Share        Kind = "share"
	Save         Kind = "save"
	SearchQuery  Kind = "search_query"
	PostCreated  Kind = "post_created"
	PostApproved Kind = "post_approved"
	PostRejected Kind = "post_rejected"
)

// Kinds lists every accepted kind, in declaration order
var Kinds = []Kind{
	PageView, PostView, PostRead, Like, Comment, Share,
	Save, SearchQuery, PostCreated, PostApproved, PostRejected,
}

// Valid reports whether k is one of the enumerated kinds
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Event is the unit of ingestion
type Event struct {
	Event      Kind       `json:"event" validate:"required,event_kind"`
	ClientID   string     `json:"client_id,omitempty" validate:"omitempty,max=128"`
	UserID     string     `json:"user_id,omitempty"`
	PostID     string     `json:"post_id,omitempty" validate:"omitempty,max=64"`
	PostStatus *string    `json:"post_status,omitempty" validate:"omitempty,max=32"`
	LocationID *int32     `json:"location_id,omitempty"`
	Device     string     `json:"device,omitempty" validate:"omitempty,oneof=mobile tablet web unknown"`
	Duration   *int64     `json:"duration,omitempty" validate:"omitempty,min=0"`
	Metadata   Metadata   `json:"metadata"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
}

// ActorID identifies whoever produced the event: the user when known,
// otherwise the anonymous client
func (e Event) ActorID() string {
	if e.UserID != "" {
		return e.UserID
	}
	return e.ClientID
}

// Batch is the object form accepted by the batch endpoint
type Batch struct {
	Events []Event `json:"events" validate:"dive"`
}
