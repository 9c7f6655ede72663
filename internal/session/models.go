package session

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"videojoin/internal/join"
)

// ID uniquely identifies a join session.
type ID string

// Variant selects the playback backend of a session.
type Variant string

const (
	// VariantDiscrete plays each segment in its own unit.
	VariantDiscrete Variant = "discrete"
	// VariantStream appends every segment to one continuous pipeline.
	VariantStream Variant = "stream"
	// VariantAudio decodes each segment and plays the decoded audio in order.
	VariantAudio Variant = "audio"
)

// Mode selects how an idle discrete session resumes on ingest.
type Mode string

const (
	ModeRealtime Mode = "realtime"
	ModeBuffered Mode = "buffered"
)

var (
	// ErrInvalidVariant is returned for an unknown variant name.
	ErrInvalidVariant = errors.New("invalid session variant")
	// ErrInvalidMode is returned for an unknown mode name.
	ErrInvalidMode = errors.New("invalid session mode")
)

// ParseVariant parses s. The empty string selects VariantDiscrete.
func ParseVariant(s string) (Variant, error) {
	switch v := Variant(strings.ToLower(s)); v {
	case "":
		return VariantDiscrete, nil
	case VariantDiscrete, VariantStream, VariantAudio:
		return v, nil
	}
	return "", errors.Wrapf(ErrInvalidVariant, "%q", s)
}

// ParseMode parses s. The empty string selects def.
func ParseMode(s string, def Mode) (Mode, error) {
	switch m := Mode(strings.ToLower(s)); m {
	case "":
		return def, nil
	case ModeRealtime, ModeBuffered:
		return m, nil
	}
	return "", errors.Wrapf(ErrInvalidMode, "%q", s)
}

// SegmentRequest is the JSON body registering a segment by reference.
type SegmentRequest struct {
	URL string `json:"url"`
}

// SegmentResponse reports the index assigned to an ingested segment.
type SegmentResponse struct {
	Index int `json:"index"`
}

// Status is the JSON view of a session.
type Status struct {
	ID          ID        `json:"id"`
	Variant     Variant   `json:"variant"`
	Mode        Mode      `json:"mode"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Ended       bool      `json:"ended"`

	Next     int     `json:"next"`
	Current  int     `json:"current"`
	Loaded   int     `json:"loaded"`
	Evicted  int     `json:"evicted"`
	Started  int     `json:"started"`
	Pending  int     `json:"pending"`
	Attached int     `json:"attached"`
	Playing  bool    `json:"playing"`
	Rate     float64 `json:"rate"`

	States map[string]int `json:"states,omitempty"`
}

func (st *Status) apply(s join.Stats) {
	st.Next = s.Next
	st.Current = s.Current
	st.Loaded = s.Loaded
	st.Evicted = s.Evicted
	st.Started = s.Started
	st.Pending = s.Pending
	st.Attached = s.Attached
	st.Playing = s.Playing
	st.Rate = s.Rate
	if len(s.States) > 0 {
		st.States = make(map[string]int, len(s.States))
		for state, n := range s.States {
			st.States[state.String()] = n
		}
	}
}
