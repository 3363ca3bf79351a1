package scantrail

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// RootType is the event type of the synthetic seed event of a scan.
const RootType = "ROOT"

// RootHash is the sentinel hash carried by the seed event, and the
// source hash that marks an event as directly caused by the seed.
const RootHash = "ROOT"

// Event is one fact discovered during a scan.
//
// Events are immutable once stored, with the single exception of the
// FalsePositive flag which can be toggled after the fact. The Hash is derived
// from the content fields and serves as the event's identity within a scan
// instance; SourceHash links the event to its cause.
type Event struct {
	// Hash is the content-derived identity of the event.
	Hash string

	// Type must name an entry in the event taxonomy.
	Type string

	// Data is the discovered payload. Producers serialize structured or
	// binary payloads to text before emission.
	Data string

	// Module identifies the producer. Empty only for the ROOT event.
	Module string

	// Confidence, Visibility and Risk are scores in [0, 100].
	Confidence int
	Visibility int
	Risk       int

	// Generated is the creation time in milliseconds since the Unix epoch.
	Generated int64

	// SourceHash is the hash of the causing event, or RootHash for the
	// seed event itself and for events caused directly by it.
	SourceHash string

	// FalsePositive marks the event as a confirmed false positive.
	FalsePositive bool
}

// ComputeHash derives the identity hash for an event's content fields.
// Identical (type, data, module, source hash) tuples always hash identically.
func ComputeHash(eventType, data, module, sourceHash string) string {
	h := sha256.New()
	h.Write([]byte(eventType))
	h.Write([]byte{'\n'})
	h.Write([]byte(data))
	h.Write([]byte{'\n'})
	h.Write([]byte(module))
	h.Write([]byte{'\n'})
	h.Write([]byte(sourceHash))
	return hex.EncodeToString(h.Sum(nil))
}

// New creates an event caused by source. Confidence and visibility default to
// 100, risk to 0; the hash is computed from the content fields.
func New(eventType, data, module string, source *Event) *Event {
	sourceHash := RootHash
	if source != nil {
		sourceHash = source.Hash
	}
	return &Event{
		Hash:       ComputeHash(eventType, data, module, sourceHash),
		Type:       eventType,
		Data:       data,
		Module:     module,
		Confidence: 100,
		Visibility: 100,
		Risk:       0,
		Generated:  time.Now().UnixMilli(),
		SourceHash: sourceHash,
	}
}

// NewRoot creates the synthetic seed event for a scan of the given target.
// Its hash and source hash are both the ROOT sentinel.
func NewRoot(target string) *Event {
	return &Event{
		Hash:       RootHash,
		Type:       RootType,
		Data:       target,
		Module:     "",
		Confidence: 100,
		Visibility: 100,
		Risk:       0,
		Generated:  time.Now().UnixMilli(),
		SourceHash: RootHash,
	}
}

// IsRoot reports whether the event is the synthetic seed event.
func (e *Event) IsRoot() bool {
	return e.Type == RootType
}

// GeneratedTime returns the creation time as a time.Time.
func (e *Event) GeneratedTime() time.Time {
	return time.UnixMilli(e.Generated)
}

// Validate checks the field-level invariants of the event: non-empty payload,
// scores within range, a module name on every non-root event, a source hash,
// and a generation timestamp. It does not check that the type is known or
// that the source event exists; the store performs those checks against the
// taxonomy and the scan's stored events.
func (e *Event) Validate() error {
	if e.Type == "" {
		return &ValidationError{Field: "type", Message: "must not be empty"}
	}
	if e.Data == "" {
		return &ValidationError{Field: "data", Message: "must not be empty"}
	}
	if e.Module == "" && !e.IsRoot() {
		return &ValidationError{Field: "module", Message: "must not be empty for non-root events"}
	}
	if e.Confidence < 0 || e.Confidence > 100 {
		return &ValidationError{Field: "confidence", Message: "must be in [0, 100]"}
	}
	if e.Visibility < 0 || e.Visibility > 100 {
		return &ValidationError{Field: "visibility", Message: "must be in [0, 100]"}
	}
	if e.Risk < 0 || e.Risk > 100 {
		return &ValidationError{Field: "risk", Message: "must be in [0, 100]"}
	}
	if e.Generated == 0 {
		return &ValidationError{Field: "generated", Message: "must be set"}
	}
	if e.SourceHash == "" {
		return &ValidationError{Field: "source_event_hash", Message: "must not be empty"}
	}
	if e.Hash == "" {
		return &ValidationError{Field: "hash", Message: "must not be empty"}
	}
	return nil
}
