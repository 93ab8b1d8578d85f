package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/agri-esg/internal/config"
	"github.com/sells-group/agri-esg/internal/esg"
	"github.com/sells-group/agri-esg/internal/ingest"
	"github.com/sells-group/agri-esg/internal/model"
	"github.com/sells-group/agri-esg/internal/narrative"
	"github.com/sells-group/agri-esg/internal/pipeline"
	"github.com/sells-group/agri-esg/internal/report"
	"github.com/sells-group/agri-esg/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP scoring API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		eng, err := initEngine(cfg)
		if err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var adv *narrative.Advisor
		if cfg.Narrative.Enabled {
			adv = initAdvisor(cfg)
		}

		router := newRouter(&server{
			conf:           cfg,
			scorer:         &recorder{store: st, next: initScorer(cfg, eng, st)},
			registry:       eng.Registry(),
			store:          st,
			advisor:        adv,
			maxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
		}, cfg.Server.CORSOrigins)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// server holds the dependencies of the HTTP handlers. store and advisor may
// be nil.
type server struct {
	conf           *config.Config
	scorer         pipeline.Scorer
	registry       *esg.Registry
	store          store.Store
	advisor        *narrative.Advisor
	maxUploadBytes int64
}

// newRouter builds the API routes.
func newRouter(s *server, origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/policies", s.handlePolicies)
		r.Get("/reports", s.handleReports)
		r.Post("/score", s.handleScore)
		if s.store != nil {
			r.Get("/runs", s.handleListRuns)
			r.Get("/runs/{id}", s.handleGetRun)
		}
	})

	return r
}

func (s *server) handlePolicies(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.List())
}

func (s *server) handleReports(w http.ResponseWriter, _ *http.Request) {
	defs := make([]report.Definition, 0, len(report.Definitions))
	for _, k := range report.Keys() {
		defs = append(defs, report.Definitions[k])
	}
	writeJSON(w, http.StatusOK, defs)
}

// handleScore scores a CSV request body. Query parameters: policy, group_by
// (comma separated) and narrative=true.
func (s *server) handleScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	policy := q.Get("policy")
	if policy == "" {
		policy = pipeline.DefaultPolicy
	}
	if _, err := s.registry.Lookup(policy); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var groupBy []string
	if gb := q.Get("group_by"); gb != "" {
		groupBy = cleanList(strings.Split(gb, ","))
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxUploadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, eris.Errorf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, eris.Wrap(err, "read request body"))
		return
	}
	t, err := ingest.ReadCSV(ctx, "upload", bytes.NewReader(body), ingest.CSVOptions{})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	b := pipeline.Batch{
		Source:  t.Source,
		Header:  t.Header,
		Records: t.Records,
		Policy:  policy,
		GroupBy: groupBy,
	}
	res, err := s.scorer.Run(ctx, b)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	out := newScoreOutput(res)
	out.Emissions = emissionsByFarm(s.conf, b.Records)
	if s.advisor != nil && q.Get("narrative") == "true" {
		out.Advice = s.advisor.AdviseAll(ctx, res.Scored)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	runs, err := s.store.ListRuns(r.Context(), store.RunFilter{
		Status: model.RunStatus(q.Get("status")),
		Policy: q.Get("policy"),
		Limit:  50,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		status := http.StatusInternalServerError
		if eris.Is(err, store.ErrRunNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	scores, err := s.store.GetScores(r.Context(), run.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		*model.Run
		Scores []model.ScoredRecord `json:"scores"`
	}{run, scores})
}

// statusFor maps a scoring error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case model.IsSchemaError(err):
		return http.StatusUnprocessableEntity
	case model.IsInputError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("serve: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		zap.L().Error("serve: request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
