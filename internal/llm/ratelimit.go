package llm

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/joseph-ayodele/keiba-tracker/internal/entity"
)

// RateLimited throttles calls to a Provider. Waiting honours ctx cancellation.
type RateLimited struct {
	next    Provider
	limiter *rate.Limiter
}

// NewRateLimited wraps p. rps <= 0 disables throttling.
func NewRateLimited(p Provider, rps float64, burst int) Provider {
	if rps <= 0 {
		return p
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: p, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (r *RateLimited) Name() string { return r.next.Name() }

func (r *RateLimited) ExtractTickets(ctx context.Context, req ExtractRequest) (*entity.ExtractionResult, []byte, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, nil, eris.Wrap(err, "llm: rate limit wait")
	}
	return r.next.ExtractTickets(ctx, req)
}

func (r *RateLimited) LookupRaceName(ctx context.Context, req RaceLookupRequest) (*string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "llm: rate limit wait")
	}
	return r.next.LookupRaceName(ctx, req)
}
