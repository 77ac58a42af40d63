// Package pipeline composes the normaliser, the extractors and the reconciler
// into one extraction run over raw OCR text.
package pipeline

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/joseph-ayodele/keiba-tracker/constants"
	"github.com/joseph-ayodele/keiba-tracker/internal/common"
	"github.com/joseph-ayodele/keiba-tracker/internal/core/extract"
	"github.com/joseph-ayodele/keiba-tracker/internal/core/ocr"
	"github.com/joseph-ayodele/keiba-tracker/internal/core/reconcile"
	"github.com/joseph-ayodele/keiba-tracker/internal/entity"
	"github.com/joseph-ayodele/keiba-tracker/internal/llm"
)

// Observer receives stage outcomes. *metrics.Metrics satisfies it.
type Observer interface {
	ObserveRun(outcome string)
	ObserveTickets(provenance string, n int)
	ObserveFallback()
	ObserveAIFailure(reason string)
	ObserveConflicts(n int)
}

// Stages are the pure steps of a run. Zero fields use the package defaults.
type Stages struct {
	Normalize     func(raw string) string
	Deterministic func(text string) (entity.ExtractionResult, extract.Report)
	Fallback      func(text, documentType string) []entity.Ticket
}

func defaultStages() Stages {
	return Stages{
		Normalize:     ocr.Normalize,
		Deterministic: extract.DeterministicWithReport,
		Fallback:      extract.Fallback,
	}
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithObserver attaches metrics.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// WithStages overrides individual stages.
func WithStages(s Stages) Option {
	return func(p *Pipeline) {
		if s.Normalize != nil {
			p.stages.Normalize = s.Normalize
		}
		if s.Deterministic != nil {
			p.stages.Deterministic = s.Deterministic
		}
		if s.Fallback != nil {
			p.stages.Fallback = s.Fallback
		}
	}
}

// Pipeline runs normalize, deterministic extraction, fallback, AI extraction
// and reconciliation. It holds no per-run state and is safe for concurrent use.
type Pipeline struct {
	logger   *zap.Logger
	ai       llm.TicketExtractor
	stages   Stages
	observer Observer
}

// New builds a Pipeline. ai may be nil, which disables the AI stage.
func New(logger *zap.Logger, ai llm.TicketExtractor, opts ...Option) *Pipeline {
	p := &Pipeline{
		logger: common.LoggerOrGlobal(logger),
		ai:     ai,
		stages: defaultStages(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RunOptions are per-call switches.
type RunOptions struct {
	UseAI bool
}

// Outcome is the run result plus what each stage did.
type Outcome struct {
	Result         entity.ExtractionResult `json:"result"`
	NormalizedText string                  `json:"normalizedText"`
	DocumentType   string                  `json:"documentType,omitempty"`
	Rows           []extract.RowReport     `json:"rows,omitempty"`
	FallbackUsed   bool                    `json:"fallbackUsed"`
	AIUsed         bool                    `json:"aiUsed"`
	AIError        string                  `json:"aiError,omitempty"`
	Conflicts      []reconcile.Conflict    `json:"conflicts,omitempty"`
	RawAI          []byte                  `json:"-"`
}

// Run never fails. AI errors are logged and the local result is returned.
func (p *Pipeline) Run(ctx context.Context, rawText string, opts RunOptions) Outcome {
	log := common.LoggerFromContext(ctx, p.logger)
	start := time.Now()

	text := p.stages.Normalize(rawText)
	local, rep := p.stages.Deterministic(text)
	out := Outcome{
		NormalizedText: text,
		DocumentType:   rep.DocumentType,
		Rows:           rep.Rows,
	}
	log.Debug("pipeline.start",
		zap.Int("raw_len", len(rawText)),
		zap.Int("text_len", len(text)),
		zap.Int("local_tickets", len(local.Bets)),
		zap.String("document_type", rep.DocumentType),
	)
	for _, row := range rep.Rows {
		if row.IgnoredAmounts > 0 {
			log.Debug("pipeline.row.ignored_amounts",
				zap.Int("row", row.Index), zap.Int("ignored", row.IgnoredAmounts))
		}
	}

	localTickets := local.Bets
	if len(localTickets) == 0 {
		localTickets = p.stages.Fallback(text, rep.DocumentType)
		out.FallbackUsed = true
		p.observeFallback()
		log.Debug("pipeline.fallback", zap.Int("tickets", len(localTickets)))
	}

	var aiRes *entity.ExtractionResult
	if opts.UseAI && p.ai != nil && strings.TrimSpace(text) != "" {
		out.AIUsed = true
		res, raw, err := p.ai.ExtractTickets(ctx, llm.ExtractRequest{Text: text, DocumentType: rep.DocumentType})
		out.RawAI = raw
		if err != nil {
			reason := aiFailureReason(ctx, err)
			out.AIError = reason
			p.observeAIFailure(reason)
			log.Warn("pipeline.ai.failed", zap.String("reason", reason), zap.Error(err))
		} else {
			aiRes = res
		}
	}

	var aiTickets []entity.Ticket
	if aiRes != nil {
		aiTickets = aiRes.Bets
	}
	merged := reconcile.ReconcileWithReport(localTickets, aiTickets)
	for _, c := range merged.Conflicts {
		log.Info("reconcile.amount_conflict",
			zap.String("key", c.Key),
			zap.String("field", c.Field),
			zap.Int64("local", c.Local),
			zap.Int64("proposed", c.Proposed),
		)
	}
	out.Conflicts = merged.Conflicts
	p.observeConflicts(len(merged.Conflicts))

	result := mergeHeader(local, aiRes)
	result.Bets = merged.Tickets
	result.Payout = aggregatePayout(result.Payout, result.Bets)
	out.Result = result

	p.observeTickets(result.Bets)
	outcome := "ok"
	switch {
	case len(result.Bets) == 0:
		outcome = "empty"
	case out.AIError != "":
		outcome = "degraded"
	}
	p.observeRun(outcome)

	log.Info("pipeline.done",
		zap.String("outcome", outcome),
		zap.Int("tickets", len(result.Bets)),
		zap.Int("matched", merged.Matched),
		zap.Int("added", merged.Added),
		zap.Bool("fallback", out.FallbackUsed),
		zap.Bool("ai", out.AIUsed),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)
	return out
}

// mergeHeader prefers local header values and fills gaps from ai.
func mergeHeader(local entity.ExtractionResult, ai *entity.ExtractionResult) entity.ExtractionResult {
	out := local
	if ai != nil {
		out.Date = firstNonEmpty(local.Date, ai.Date)
		out.Track = firstNonEmpty(local.Track, ai.Track)
		out.RaceName = firstNonEmpty(local.RaceName, ai.RaceName)
		out.Memo = firstNonEmpty(local.Memo, ai.Memo)
		if out.Source == constants.SourceUnknown || out.Source == "" {
			out.Source = ai.Source
		}
		if out.Payout == nil && ai.Payout != nil && *ai.Payout > 0 {
			out.Payout = ai.Payout
		}
	}
	if out.Source == "" {
		out.Source = constants.SourceUnknown
	}
	if out.Track == nil {
		if t := TrackFromRaceName(entity.Deref(out.RaceName)); t != "" {
			out.Track = &t
		}
	}
	return out
}

// aggregatePayout keeps the document figure when present, then the sum of
// ticket payouts when positive, else nil.
func aggregatePayout(doc *int64, tickets []entity.Ticket) *int64 {
	if doc != nil {
		return doc
	}
	var sum int64
	for _, t := range tickets {
		sum += t.Payout
	}
	if sum > 0 {
		return &sum
	}
	return nil
}

var reLeadingWord = regexp.MustCompile(`^[^\s(（]+`)

// TrackFromRaceName returns the leading word of a race name, e.g. "東京" from
// "東京 11R". Empty when there is none.
func TrackFromRaceName(raceName string) string {
	return reLeadingWord.FindString(strings.TrimSpace(raceName))
}

func firstNonEmpty(a, b *string) *string {
	if a != nil && strings.TrimSpace(*a) != "" {
		return a
	}
	if b != nil && strings.TrimSpace(*b) != "" {
		return b
	}
	return nil
}

func aiFailureReason(ctx context.Context, err error) string {
	var statusErr *llm.StatusError
	switch {
	case errors.Is(err, llm.ErrMalformedResponse):
		return "malformed"
	case ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.As(err, &statusErr):
		return "status"
	default:
		return "transport"
	}
}

func (p *Pipeline) observeRun(outcome string) {
	if p.observer != nil {
		p.observer.ObserveRun(outcome)
	}
}

func (p *Pipeline) observeFallback() {
	if p.observer != nil {
		p.observer.ObserveFallback()
	}
}

func (p *Pipeline) observeAIFailure(reason string) {
	if p.observer != nil {
		p.observer.ObserveAIFailure(reason)
	}
}

func (p *Pipeline) observeConflicts(n int) {
	if p.observer != nil {
		p.observer.ObserveConflicts(n)
	}
}

func (p *Pipeline) observeTickets(tickets []entity.Ticket) {
	if p.observer == nil {
		return
	}
	counts := make(map[entity.Provenance]int, 3)
	for _, t := range tickets {
		counts[t.Provenance]++
	}
	for prov, n := range counts {
		p.observer.ObserveTickets(string(prov), n)
	}
}
