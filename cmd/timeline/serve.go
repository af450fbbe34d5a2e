package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"segment-timeline/internal/platform/logger"
	"segment-timeline/internal/platform/metrics"
	"segment-timeline/internal/timeline"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newRouter(log *slog.Logger, met *metrics.Metrics, repo timeline.Repository, svc *timeline.Service) *chi.Mux {
	h := timeline.NewHandler(svc, log)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetActiveOutputs(repo.ActiveOutputCount()) }).ServeHTTP(w, r)
	})
	r.Get("/outputs", h.ListOutputs)
	r.Route("/outputs/{name}", func(r chi.Router) {
		r.Get("/", h.GetOutput)
		r.Get("/playlist.m3u8", h.GetPlaylist)
	})
	return r
}

// serve exposes the published timelines on addr until ctx is cancelled.
func serve(ctx context.Context, addr string, log *slog.Logger, met *metrics.Metrics, repo timeline.Repository, svc *timeline.Service) error {
	srv := &http.Server{Addr: addr, Handler: newRouter(log, met, repo, svc)}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("inspection server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutdown signal received, draining connections")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", slog.String("error", err.Error()))
		return err
	}
	log.Info("server stopped")
	return nil
}
