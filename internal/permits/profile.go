package permits

import "fmt"

// StatusInReview is the only status served by [NarrowProfile].
const StatusInReview = "In Review"

// Ordering columns. Results are newest first; records opened at the same
// instant are ordered by record id so the sequence is deterministic.
const (
	orderColumn    = "RECORD_OPEN_DATE"
	tieBreakColumn = "RECORD_ID"
)

// Row bounds.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Predicate restricts rows to those whose storage column equals Value.
type Predicate struct {
	Column string
	Value  string
}

// Profile is one served configuration of the record query.
type Profile struct {
	Name   string
	Fields *FieldSet
	// Predicate is optional.
	Predicate *Predicate
	// DefaultLimit applies when the caller does not supply a limit, or when
	// CallerLimit is false.
	DefaultLimit int
	MaxLimit     int
	// CallerLimit reports whether callers may choose the row bound.
	CallerLimit bool
}

// FullProfile serves every field, newest first, with a caller-chosen bound.
var FullProfile = Profile{
	Name:         "full",
	Fields:       Full,
	DefaultLimit: DefaultLimit,
	MaxLimit:     MaxLimit,
	CallerLimit:  true,
}

// NarrowProfile serves the narrow shape of up to 100 records in review.
var NarrowProfile = Profile{
	Name:   "narrow",
	Fields: Narrow,
	Predicate: &Predicate{
		Column: "RECORD_STATUS",
		Value:  StatusInReview,
	},
	DefaultLimit: DefaultLimit,
	MaxLimit:     DefaultLimit,
	CallerLimit:  false,
}

// ProfileByName resolves a configured profile name.
func ProfileByName(name string) (Profile, error) {
	switch name {
	case FullProfile.Name:
		return FullProfile, nil
	case NarrowProfile.Name:
		return NarrowProfile, nil
	default:
		return Profile{}, fmt.Errorf("unknown query profile %q", name)
	}
}

// ResolveLimit returns the row bound for a request. Out of range caller
// limits are rejected with a [LimitError] rather than clamped. Profiles that
// do not accept a caller limit ignore it.
func (p Profile) ResolveLimit(limit *int) (int, error) {
	if !p.CallerLimit || limit == nil {
		return p.DefaultLimit, nil
	}
	if *limit < 1 || *limit > p.MaxLimit {
		return 0, LimitError{Limit: *limit, Max: p.MaxLimit}
	}
	return *limit, nil
}
