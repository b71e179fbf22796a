package matcher

import "github.com/promnight/prom-match/internal/store"

var (
	// ErrNotFound means the requesting user does not exist.
	ErrNotFound = store.ErrNotFound
	// ErrConflict means every attempt to assign a candidate lost a race.
	ErrConflict = store.ErrConflict
)

// Outcome classifies a FindBestMatch result.
type Outcome string

const (
	// OutcomeMatched means a new mutual match was persisted by this call.
	OutcomeMatched Outcome = "matched"
	// OutcomeAlreadyMatched means the requester was matched earlier; nothing was written.
	OutcomeAlreadyMatched Outcome = "already_matched"
	// OutcomeNoMatch means no candidate qualified; nothing was written.
	OutcomeNoMatch Outcome = "no_match"
)
