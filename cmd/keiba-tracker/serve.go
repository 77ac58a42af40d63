package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/keiba-tracker/internal/export"
	"github.com/joseph-ayodele/keiba-tracker/internal/repository"
	"github.com/joseph-ayodele/keiba-tracker/internal/server"
)

var serveMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and gRPC health endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		hasDB := cfg.Database.URL != ""
		e, err := initEnv(ctx, envOptions{
			database:    hasDB,
			ocr:         true,
			ocrOptional: true,
			storage:     true,
			quota:       true,
		})
		if err != nil {
			return err
		}
		defer e.Close()
		log := e.Logger

		deps := server.Deps{
			Logger:        log,
			Processor:     e.Processor,
			Usage:         e.Usage,
			Metrics:       e.Metrics,
			FreeOCRLimit:  cfg.Quota.FreeMonthlyLimit,
			CORSOrigins:   cfg.Server.CORSOrigins,
			MaxImageBytes: cfg.Server.MaxImageBytes,
		}
		if e.OCR != nil {
			deps.OCR = e.OCR
		}
		if e.AI != nil {
			deps.AI = e.AI
			deps.Races = e.AI
		}
		if hasDB {
			if serveMigrate {
				if err := repository.Migrate(ctx, e.Pool, log); err != nil {
					return err
				}
			}
			bets := repository.NewBetRepository(e.Pool, log)
			deps.DB = e.Pool
			deps.Bets = bets
			deps.Profiles = repository.NewProfileRepository(e.Pool, log)
			deps.Exporter = export.NewService(bets, log)
		} else {
			log.Warn("serve.database.disabled")
		}

		httpSrv := &http.Server{
			Addr:              cfg.Server.HTTPAddr,
			Handler:           server.NewRouter(deps),
			ReadHeaderTimeout: 10 * time.Second,
		}
		grpcSrv, health := server.NewGRPCServer(log)
		grpcLis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			return eris.Wrapf(err, "listen %s", cfg.Server.GRPCAddr)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			log.Info("serve.http.listening", zap.String("addr", cfg.Server.HTTPAddr))
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "http serve")
			}
			return nil
		})
		g.Go(func() error {
			log.Info("serve.grpc.listening", zap.String("addr", cfg.Server.GRPCAddr))
			return grpcSrv.Serve(grpcLis)
		})
		if hasDB {
			g.Go(func() error {
				server.WatchDatabase(gctx, health, e.Pool, 15*time.Second, log)
				return nil
			})
		}
		g.Go(func() error {
			<-gctx.Done()
			log.Info("serve.shutdown")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			health.Shutdown()
			grpcSrv.GracefulStop()
			return httpSrv.Shutdown(shutdownCtx)
		})
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "apply pending migrations before serving")
	rootCmd.AddCommand(serveCmd)
}
