package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bidwatch/bidcard/internal/search"
	"github.com/bidwatch/bidcard/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		api := newAPIServer(st)
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           api.routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		return g.Wait()
	},
}

type apiServer struct {
	store store.Store
	// crawl runs one crawl synchronously; handleSearch invokes it on a
	// background goroutine. Overridable in tests.
	crawl func(ctx context.Context, keywords []string, params search.Params, maxPages int)
	// scanning enforces single-flight crawls: at most one POST /api/search
	// runs at a time.
	scanning atomic.Bool
}

func newAPIServer(st store.Store) *apiServer {
	s := &apiServer{store: st}
	s.crawl = func(ctx context.Context, keywords []string, params search.Params, maxPages int) {
		run, err := buildPipeline(st, maxPages).Run(ctx, keywords, params)
		if err != nil {
			zap.L().Error("api crawl failed", zap.Error(err))
			return
		}
		logRun(run)
	}
	return s
}

func (s *apiServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/api/search", s.handleSearch)
	r.Get("/api/cards", s.handleCards)
	r.Get("/api/cards/{id}/mentions", s.handleCardMentions)
	r.Get("/api/announcements", s.handleAnnouncements)
	r.Get("/api/stats", s.handleStats)

	return r
}

type searchRequest struct {
	Keywords []string      `json:"keywords"`
	Params   search.Params `json:"params"`
	MaxPages int           `json:"max_pages"`
}

func (s *apiServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if len(req.Keywords) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "keywords are required"})
		return
	}

	params := req.Params
	defaults := search.DefaultParams()
	if params.SearchType == "" {
		params.SearchType = defaults.SearchType
	}
	if params.BidSort == "" {
		params.BidSort = defaults.BidSort
	}
	if params.PinMu == "" {
		params.PinMu = defaults.PinMu
	}
	if params.BidType == "" {
		params.BidType = defaults.BidType
	}
	if params.TimeType == "" {
		params.TimeType = defaults.TimeType
	}

	if !s.scanning.CompareAndSwap(false, true) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "a crawl is already running"})
		return
	}

	go func() {
		defer s.scanning.Store(false)
		s.crawl(context.Background(), req.Keywords, params, req.MaxPages)
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":   "accepted",
		"keywords": req.Keywords,
	})
}

func (s *apiServer) handleCards(w http.ResponseWriter, r *http.Request) {
	q := store.CardQuery{
		Company: r.URL.Query().Get("company"),
		Like:    r.URL.Query().Get("like") == "true",
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		q.Limit = n
	}

	cards, err := s.store.QueryCards(r.Context(), q)
	if err != nil {
		serverError(w, "query cards", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cards": cards, "count": len(cards)})
}

func (s *apiServer) handleCardMentions(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid card id"})
		return
	}

	mentions, err := s.store.ListCardMentions(r.Context(), id)
	if err != nil {
		serverError(w, "list card mentions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"mentions": mentions, "count": len(mentions)})
}

func (s *apiServer) handleAnnouncements(w http.ResponseWriter, r *http.Request) {
	filter := store.AnnouncementFilter{Source: r.URL.Query().Get("source")}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		filter.Limit = n
	}

	anns, err := s.store.ListAnnouncements(r.Context(), filter)
	if err != nil {
		serverError(w, "list announcements", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"announcements": anns, "count": len(anns)})
}

func (s *apiServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		serverError(w, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func serverError(w http.ResponseWriter, op string, err error) {
	zap.L().Error("api: "+op, zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
