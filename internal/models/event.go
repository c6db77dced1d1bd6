// Package models - Analytics event types.
// This file defines the inbound event record and the closed sets of event
// names and view modes a client may report.
//
// Event Model:
// - EventName and ViewMode are closed enums; decoding rejects unknown values
// - Optional identifiers are pointers so "absent" and "empty" stay distinct
// - Metadata is a flat map of scalar values (string, number, boolean, null)
// - A payload is never mutated after validation
package models

import (
	"fmt"
	"math"

	"github.com/goccy/go-json"
)

// EventName identifies a recognized client interaction.
type EventName string

const (
	EventModeViewed        EventName = "mode_viewed"
	EventNodeOpened        EventName = "node_opened"
	EventSectionOpened     EventName = "section_opened"
	EventDocProgress       EventName = "doc_progress"
	EventDownloadStarted   EventName = "download_started"
	EventDownloadCompleted EventName = "download_completed"
	EventModeSwitched      EventName = "mode_switched"
)

// EventNames lists every recognized event name in declaration order.
var EventNames = []EventName{
	EventModeViewed,
	EventNodeOpened,
	EventSectionOpened,
	EventDocProgress,
	EventDownloadStarted,
	EventDownloadCompleted,
	EventModeSwitched,
}

// ParseEventName returns the EventName for s, or an error if s is not one of
// the recognized names.
func ParseEventName(s string) (EventName, error) {
	e := EventName(s)
	if !e.Valid() {
		return "", fmt.Errorf("unrecognized event name %q", s)
	}
	return e, nil
}

// Valid reports whether e is a member of the closed event set.
func (e EventName) Valid() bool {
	switch e {
	case EventModeViewed, EventNodeOpened, EventSectionOpened, EventDocProgress,
		EventDownloadStarted, EventDownloadCompleted, EventModeSwitched:
		return true
	}
	return false
}

// Category groups event names for metric labels.
func (e EventName) Category() string {
	switch e {
	case EventModeViewed:
		return "view"
	case EventNodeOpened, EventSectionOpened:
		return "open"
	case EventDocProgress:
		return "progress"
	case EventDownloadStarted, EventDownloadCompleted:
		return "download"
	case EventModeSwitched:
		return "mode_switch"
	}
	return "unknown"
}

func (e *EventName) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("eventName must be a string: %w", err)
	}
	parsed, err := ParseEventName(s)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// ViewMode identifies the presentation context an event was reported from.
type ViewMode string

const (
	ModeNodeMap ViewMode = "node-map"
	ModeFeed    ViewMode = "feed"
	ModeScroll  ViewMode = "scroll"
	ModeReader  ViewMode = "reader"
	ModeArchive ViewMode = "archive"
	ModeAbout   ViewMode = "about"
)

// ViewModes lists every recognized view mode in declaration order.
var ViewModes = []ViewMode{ModeNodeMap, ModeFeed, ModeScroll, ModeReader, ModeArchive, ModeAbout}

// ParseViewMode returns the ViewMode for s, or an error if s is not one of the
// recognized modes.
func ParseViewMode(s string) (ViewMode, error) {
	m := ViewMode(s)
	if !m.Valid() {
		return "", fmt.Errorf("unrecognized mode %q", s)
	}
	return m, nil
}

// Valid reports whether m is a member of the closed mode set.
func (m ViewMode) Valid() bool {
	switch m {
	case ModeNodeMap, ModeFeed, ModeScroll, ModeReader, ModeArchive, ModeAbout:
		return true
	}
	return false
}

func (m *ViewMode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("mode must be a string: %w", err)
	}
	parsed, err := ParseViewMode(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Metadata carries free-form flat context. Values are restricted to string,
// float64, bool or nil after decoding.
type Metadata map[string]any

// Flat reports whether every value in md is a JSON scalar or null.
func (md Metadata) Flat() bool {
	for _, v := range md {
		switch n := v.(type) {
		case float64:
			if math.IsInf(n, 0) || math.IsNaN(n) {
				return false
			}
		case nil, string, bool, json.Number:
		default:
			return false
		}
	}
	return true
}

// EventPayload is a client-reported interaction event.
type EventPayload struct {
	EventName EventName `json:"eventName" validate:"required"`
	Mode      *ViewMode `json:"mode,omitempty"`
	DocSlug   *string   `json:"docSlug,omitempty" validate:"omitnil,min=1"`
	SectionID *string   `json:"sectionId,omitempty" validate:"omitnil,min=1"`
	NodeID    *string   `json:"nodeId,omitempty" validate:"omitnil,min=1"`
	SessionID *string   `json:"sessionId,omitempty" validate:"omitnil,min=1"`
	Timestamp string    `json:"ts" validate:"required,isots"`
	Value     *float64  `json:"value,omitempty"`
	Metadata  Metadata  `json:"metadata,omitempty" validate:"omitnil,flatmeta"`
}

// DistinctID returns the session identifier, or "anonymous" when absent.
func (p *EventPayload) DistinctID() string {
	if p.SessionID == nil {
		return "anonymous"
	}
	return *p.SessionID
}
