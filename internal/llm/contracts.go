package llm

import (
	"context"
	"errors"

	"github.com/joseph-ayodele/keiba-tracker/internal/entity"
)

// ErrMalformedResponse marks provider output that could not be decoded or
// failed schema validation. Callers treat it as "no AI result".
var ErrMalformedResponse = errors.New("llm: malformed structured response")

// ExtractRequest is the input to structured extraction.
type ExtractRequest struct {
	Text string
	// DocumentType is the bet type keyword the deterministic pass saw, if any.
	DocumentType string
}

// TicketExtractor is the interface the pipeline depends on. A nil result with
// a nil error never happens: failures come back as errors.
type TicketExtractor interface {
	ExtractTickets(ctx context.Context, req ExtractRequest) (*entity.ExtractionResult, []byte /*rawJSON*/, error)
}

// RaceLookupRequest identifies one race on one day.
type RaceLookupRequest struct {
	Date       string // YYYY-MM-DD
	Track      string
	RaceNumber int // 1..12
}

// RaceNameResolver finds the official name of a race. A nil name means unknown.
type RaceNameResolver interface {
	LookupRaceName(ctx context.Context, req RaceLookupRequest) (*string, error)
}

// Provider is implemented by every chat backend.
type Provider interface {
	TicketExtractor
	RaceNameResolver
	Name() string
}
