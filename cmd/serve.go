package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/levelx/growth-cli/internal/analysis"
	"github.com/levelx/growth-cli/internal/model"
	"github.com/levelx/growth-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		svc, st, err := initService(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(svc, st),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func newRouter(svc *analysis.Service, st store.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/api/analysis/run", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Handle              string `json:"handle"`
			ForceRefreshProfile bool   `json:"force_refresh_profile"`
			ForceRefreshPeers   bool   `json:"force_refresh_peers"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.Handle == "" {
			writeError(w, http.StatusBadRequest, "handle is required")
			return
		}

		account, err := st.GetAccountByHandle(req.Context(), body.Handle)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if account == nil {
			account, err = st.CreateAccount(req.Context(), body.Handle)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
		}

		result, err := svc.RunFullAnalysis(req.Context(), account.ID, analysis.RunOptions{
			ForceRefreshProfile: body.ForceRefreshProfile,
			ForceRefreshPeers:   body.ForceRefreshPeers,
		})
		if err != nil {
			zap.L().Error("analysis run failed",
				zap.String("handle", account.Handle),
				zap.Error(err),
			)
			status := http.StatusInternalServerError
			if analysis.IsNotFound(err) {
				status = http.StatusNotFound
			}
			writeError(w, status, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, result)
	})

	r.Get("/api/analysis/latest", func(w http.ResponseWriter, req *http.Request) {
		account, ok := resolveAccount(w, req, st)
		if !ok {
			return
		}
		record, err := st.LatestAnalysis(req.Context(), account.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if record == nil {
			writeError(w, http.StatusNotFound, "no analyses yet")
			return
		}
		writeJSON(w, http.StatusOK, record)
	})

	r.Get("/api/analysis/history", func(w http.ResponseWriter, req *http.Request) {
		account, ok := resolveAccount(w, req, st)
		if !ok {
			return
		}
		limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
		records, err := st.ListAnalyses(req.Context(), account.ID, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"handle":   account.Handle,
			"analyses": records,
		})
	})

	r.Get("/api/analysis/{id}", func(w http.ResponseWriter, req *http.Request) {
		record, err := st.GetAnalysis(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if record == nil {
			writeError(w, http.StatusNotFound, "analysis not found")
			return
		}
		peers, err := st.PeersForBatch(req.Context(), record.PeerBatchID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"analysis": record,
			"peers":    peers,
		})
	})

	return r
}

func resolveAccount(w http.ResponseWriter, req *http.Request, st store.Store) (*model.Account, bool) {
	handle := req.URL.Query().Get("handle")
	if handle == "" {
		writeError(w, http.StatusBadRequest, "handle query parameter is required")
		return nil, false
	}
	account, err := st.GetAccountByHandle(req.Context(), handle)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	if account == nil {
		writeError(w, http.StatusNotFound, "account not registered")
		return nil, false
	}
	return account, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
