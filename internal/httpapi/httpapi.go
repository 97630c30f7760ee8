// Package httpapi is the read-path query server: an external
// collaborator that never touches the ingestion pipeline, only the
// Store's four lookup statements, plus health and metrics endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/serfrae/solder/internal/logging"
	"github.com/serfrae/solder/internal/model"
)

// Queryer is the subset of *store.Store the HTTP server depends on.
type Queryer interface {
	BySignature(ctx context.Context, signature string) ([]model.AccountTuple, error)
	ByAccount(ctx context.Context, account string, from, to *int64) ([]model.AccountTuple, error)
	ByBlockhash(ctx context.Context, blockhash string) ([]model.AccountTuple, error)
	BySlot(ctx context.Context, slot int64) ([]model.AccountTuple, error)
}

// NewRouter builds the chi router exposing the query surface.
func NewRouter(store Queryer) http.Handler {
	log := logging.Root().With("component", "httpapi")

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/tx/{signature}", func(w http.ResponseWriter, req *http.Request) {
		signature := chi.URLParam(req, "signature")
		tuples, err := store.BySignature(req.Context(), signature)
		writeResult(w, log, tuples, err)
	})

	r.Get("/account/{account}", func(w http.ResponseWriter, req *http.Request) {
		account := chi.URLParam(req, "account")
		from, to, err := parseTimeBounds(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		tuples, err := store.ByAccount(req.Context(), account, from, to)
		writeResult(w, log, tuples, err)
	})

	r.Get("/block/{blockhash}", func(w http.ResponseWriter, req *http.Request) {
		blockhash := chi.URLParam(req, "blockhash")
		tuples, err := store.ByBlockhash(req.Context(), blockhash)
		writeResult(w, log, tuples, err)
	})

	r.Get("/slot/{slot}", func(w http.ResponseWriter, req *http.Request) {
		slotStr := chi.URLParam(req, "slot")
		slot, err := strconv.ParseInt(slotStr, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid slot")
			return
		}
		tuples, err := store.BySlot(req.Context(), slot)
		writeResult(w, log, tuples, err)
	})

	return r
}

func parseTimeBounds(req *http.Request) (from, to *int64, err error) {
	q := req.URL.Query()
	if v := q.Get("from"); v != "" {
		n, parseErr := strconv.ParseInt(v, 10, 64)
		if parseErr != nil {
			return nil, nil, errors.New("invalid from")
		}
		from = &n
	}
	if v := q.Get("to"); v != "" {
		n, parseErr := strconv.ParseInt(v, 10, 64)
		if parseErr != nil {
			return nil, nil, errors.New("invalid to")
		}
		to = &n
	}
	return from, to, nil
}

func writeResult(w http.ResponseWriter, log logging.Logger, tuples []model.AccountTuple, err error) {
	if err != nil {
		log.Error("query failed", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if tuples == nil {
		tuples = []model.AccountTuple{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(tuples)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func requestLogger(log logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Debug("request", "method", r.Method, "path", r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}
}
