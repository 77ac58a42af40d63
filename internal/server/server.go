// Package server exposes the extraction pipeline, OCR usage and bets over
// HTTP, and a gRPC health endpoint alongside it.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/keiba-tracker/constants"
	"github.com/joseph-ayodele/keiba-tracker/internal/common"
	"github.com/joseph-ayodele/keiba-tracker/internal/core"
	"github.com/joseph-ayodele/keiba-tracker/internal/core/pipeline"
	"github.com/joseph-ayodele/keiba-tracker/internal/entity"
	"github.com/joseph-ayodele/keiba-tracker/internal/llm"
	"github.com/joseph-ayodele/keiba-tracker/internal/metrics"
	"github.com/joseph-ayodele/keiba-tracker/internal/ocr"
	"github.com/joseph-ayodele/keiba-tracker/internal/quota"
	"github.com/joseph-ayodele/keiba-tracker/internal/repository"
)

// HeaderUserID carries the authenticated user's UUID, set by the fronting proxy.
const HeaderUserID = "X-User-ID"

// Processor runs images and text through OCR and the pipeline.
type Processor interface {
	ProcessImage(ctx context.Context, req core.Request) (core.Result, error)
	ProcessText(ctx context.Context, text string, useAI bool) pipeline.Outcome
}

// UsageService reads and consumes monthly OCR credits.
type UsageService interface {
	Snapshot(ctx context.Context, userID string, plan constants.Plan) (entity.UsageSnapshot, error)
	Consume(ctx context.Context, userID string, plan constants.Plan) error
}

type ProfileStore interface {
	GetRole(ctx context.Context, id uuid.UUID) (string, error)
	Ensure(ctx context.Context, id uuid.UUID) error
}

type BetStore interface {
	Create(ctx context.Context, bet *entity.Bet, maxBets *int) (*entity.Bet, error)
	List(ctx context.Context, userID uuid.UUID, filter repository.BetFilter) ([]entity.Bet, error)
}

type Exporter interface {
	ExportBetsXLSX(ctx context.Context, userID uuid.UUID, from, to *time.Time) ([]byte, error)
}

// Deps are the collaborators of the HTTP API. Nil optional collaborators
// make their routes answer 503.
type Deps struct {
	Logger    *zap.Logger
	Processor Processor
	OCR       ocr.TextSource
	AI        llm.TicketExtractor
	Races     llm.RaceNameResolver
	Usage     UsageService
	Profiles  ProfileStore
	Bets      BetStore
	Exporter  Exporter
	DB        repository.Pool
	Metrics   *metrics.Metrics

	FreeOCRLimit  int
	CORSOrigins   []string
	MaxImageBytes int64
}

type API struct {
	Deps
	logger *zap.Logger
}

// NewRouter builds the HTTP route tree.
func NewRouter(d Deps) http.Handler {
	if d.Usage == nil {
		d.Usage = quota.NewService(nil)
	}
	if d.MaxImageBytes <= 0 {
		d.MaxImageBytes = 10 << 20
	}
	a := &API{Deps: d, logger: common.LoggerOrGlobal(d.Logger)}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(a.requestContext)
	r.Use(chimw.Recoverer)
	r.Use(d.Metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(d.CORSOrigins),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", HeaderUserID, chimw.RequestIDHeader},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", a.readiness)
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler())
	}

	r.Route("/api", func(api chi.Router) {
		api.Post("/vision", a.vision)
		api.Post("/ocr/parse", a.parse)
		api.Post("/races/lookup", a.raceLookup)

		api.Group(func(auth chi.Router) {
			auth.Use(a.requireUser)
			auth.Post("/ocr/structure", a.structure)
			auth.Post("/ocr/image", a.image)
			auth.Get("/ocr/usage", a.usageSnapshot)
			auth.Post("/ocr/usage", a.usageConsume)
			auth.Get("/me/plan", a.plan)

			auth.Route("/bets", func(br chi.Router) {
				br.Get("/", a.listBets)
				br.Post("/", a.createBet)
				br.Get("/summary", a.betSummary)
				br.Get("/export.xlsx", a.exportBets)
			})
		})
	})
	return r
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// requestContext copies the chi request id and the optional user id into the
// request context and logs the request when it completes.
func (a *API) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if rid := chimw.GetReqID(ctx); rid != "" {
			ctx = common.WithRequestID(ctx, rid)
		}
		if uid := r.Header.Get(HeaderUserID); uid != "" {
			if _, err := uuid.Parse(uid); err == nil {
				ctx = common.WithUserID(ctx, uid)
			}
		}
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))

		common.LoggerFromContext(ctx, a.logger).Info("http.request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func (a *API) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if common.UserIDFromContext(r.Context()) == "" {
			a.fail(w, r, common.NewAppError("LOGIN_REQUIRED", msgLoginRequired, common.ErrUnauthorized))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func userUUID(ctx context.Context) uuid.UUID {
	id, _ := uuid.Parse(common.UserIDFromContext(ctx))
	return id
}

// resolvePlan reads the caller's role. Anonymous callers and callers without
// a profile row are on the free plan.
func (a *API) resolvePlan(ctx context.Context) (constants.Plan, error) {
	uid := common.UserIDFromContext(ctx)
	if uid == "" || a.Profiles == nil {
		return constants.ResolvePlan("", a.FreeOCRLimit), nil
	}
	role, err := a.Profiles.GetRole(ctx, userUUID(ctx))
	if err != nil {
		return constants.Plan{}, err
	}
	return constants.ResolvePlan(role, a.FreeOCRLimit), nil
}

func (a *API) readiness(w http.ResponseWriter, r *http.Request) {
	if a.DB != nil {
		if err := repository.HealthCheck(r.Context(), a.DB, 2*time.Second); err != nil {
			a.fail(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
