// Package status serves the live session view over HTTP.
package status

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rustyeddy/marginguard/session"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Source is what the status endpoint reads. *session.Session implements it.
type Source interface {
	Watchlist() session.Watchlist
	WatchRoute(symbol string) (session.WatchRow, bool)
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type Server struct {
	src Source
	log *zap.Logger
}

func New(src Source, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{src: src, log: log}
}

// Router returns the routes:
//
//	GET /metrics          prometheus exposition
//	GET /watchlist        all routes and the account scalars
//	GET /routes/{symbol}  one route
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.recovery)
	r.Use(s.logging)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/watchlist", s.watchlist).Methods(http.MethodGet)
	r.HandleFunc("/routes/{symbol}", s.route).Methods(http.MethodGet)
	return r
}

func (s *Server) watchlist(w http.ResponseWriter, _ *http.Request) {
	s.respondWithJSON(w, http.StatusOK, s.src.Watchlist())
}

func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	sym := mux.Vars(r)["symbol"]
	row, ok := s.src.WatchRoute(sym)
	if !ok {
		s.respondWithJSON(w, http.StatusNotFound, ErrorResponse{Error: "unknown route " + sym})
		return
	}
	s.respondWithJSON(w, http.StatusOK, row)
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Warn("encode status response", zap.Error(err))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug("status request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("code", rec.code),
			zap.Duration("took", time.Since(start)),
		)
	})
}

func (s *Server) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				s.log.Error("status handler panic", zap.Any("panic", v), zap.String("path", r.URL.Path))
				s.respondWithJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info("status endpoint listening", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	}
}
