package domain

import (
	"time"

	"github.com/google/uuid"

	"blogpulse/pkg/event"
)

// The event contract lives in pkg/event so the client emitter can share it
type (
	EventKind      = event.Kind
	AnalyticsEvent = event.Event
	EventMetadata  = event.Metadata
	EventBatch     = event.Batch
)

const (
	EventPageView     = event.PageView
	EventPostView     = event.PostView
	EventPostRead     = event.PostRead
	EventLike         = event.Like
	EventComment      = event.Comment
	EventShare        = event.Share
	EventSave         = event.Save
	EventSearchQuery  = event.SearchQuery
	EventPostCreated  = event.PostCreated
	EventPostApproved = event.PostApproved
	EventPostRejected = event.PostRejected
)

// EventKinds lists every accepted kind, in declaration order
var EventKinds = event.Kinds

const (
	DeviceMobile  = event.DeviceMobile
	DeviceTablet  = event.DeviceTablet
	DeviceWeb     = event.DeviceWeb
	DeviceUnknown = event.DeviceUnknown
)

const (
	MetaIP       = event.MetaIP
	MetaReferrer = event.MetaReferrer
	MetaURL      = event.MetaURL
	MetaPath     = event.MetaPath
	MetaSource   = event.MetaSource
)

// ClassifyDevice maps a user agent to a device class
func ClassifyDevice(userAgent string) string {
	return event.ClassifyDevice(userAgent)
}

// ZeroUserID is written in place of a missing user so the identity column of
// the event log is never null
var ZeroUserID = uuid.Nil

// EventRow is a normalized row of the general event log
type EventRow struct {
	Event      string
	ClientID   string
	UserID     uuid.UUID
	PostID     *string
	PostStatus *string
	LocationID *int32
	Device     string
	Duration   *int64
	Metadata   string
	CreatedAt  time.Time
}

// RawView is the stricter record derived from post_view events, used for
// deduplicatable view counting
type RawView struct {
	EventTime time.Time
	PostID    string
	UserID    *uuid.UUID
	ClientID  string
	Device    string
	Duration  *int64
	IP        string
	Referrer  string
	Metadata  string
}

// NewEventRow normalizes the event for the event log. now stamps events that
// arrive without created_at.
func NewEventRow(e AnalyticsEvent, now time.Time) EventRow {
	row := EventRow{
		Event:      string(e.Event),
		ClientID:   e.ClientID,
		UserID:     parseUserID(e.UserID),
		PostStatus: e.PostStatus,
		LocationID: e.LocationID,
		Device:     e.Device,
		Duration:   e.Duration,
		Metadata:   e.Metadata.String(),
		CreatedAt:  now,
	}
	if e.PostID != "" {
		postID := e.PostID
		row.PostID = &postID
	}
	if row.Device == "" {
		row.Device = DeviceUnknown
	}
	if e.CreatedAt != nil && !e.CreatedAt.IsZero() {
		row.CreatedAt = *e.CreatedAt
	}
	return row
}

// NewRawView derives the raw-view row. ok is false unless the event is a
// post_view with a post and at least one identity.
func NewRawView(e AnalyticsEvent, now time.Time) (RawView, bool) {
	if e.Event != EventPostView || e.PostID == "" {
		return RawView{}, false
	}
	if e.ClientID == "" && e.UserID == "" {
		return RawView{}, false
	}

	identity := e.ClientID
	if identity == "" {
		identity = e.UserID
	}

	view := RawView{
		EventTime: now,
		PostID:    e.PostID,
		ClientID:  identity,
		Device:    e.Device,
		Duration:  e.Duration,
		IP:        e.Metadata.IP,
		Referrer:  e.Metadata.Referrer,
		Metadata:  e.Metadata.String(),
	}
	if e.CreatedAt != nil && !e.CreatedAt.IsZero() {
		view.EventTime = *e.CreatedAt
	}
	if view.Device == "" {
		view.Device = DeviceUnknown
	}
	if id, err := uuid.Parse(e.UserID); err == nil && id != uuid.Nil {
		view.UserID = &id
	}
	return view, true
}

func parseUserID(raw string) uuid.UUID {
	if raw == "" {
		return ZeroUserID
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return ZeroUserID
	}
	return id
}

// ProcessResult is the explicit outcome of writing one event
type ProcessResult struct {
	EventLogged   bool
	RawViewLogged bool
	Err           error
}

// Failed reports whether any write failed
func (r ProcessResult) Failed() bool {
	return r.Err != nil
}
