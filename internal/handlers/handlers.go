// package handlers adapts HTTP to the audit library. The routing layer is
// deliberately thin: validation, crypto and chain semantics all live in
// internal/audit.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/veralog/veralog/internal/audit"
	"github.com/veralog/veralog/internal/auth"
	"github.com/veralog/veralog/internal/keys"
)

// Pinger is implemented by stores that can report backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps holds the dependencies the routes need, injected from main.
type Deps struct {
	Ledger   *audit.Ledger
	Verifier *audit.Verifier
	Exporter *audit.Exporter
	Reporter *audit.Reporter
	Archiver audit.Archiver // optional
	Pinger   Pinger         // optional
	// AuthSecret guards the operator endpoints; empty disables auth (dev).
	AuthSecret []byte
}

// RegisterRoutes wires the audit HTTP routes onto r.
func RegisterRoutes(d Deps, r chi.Router) {
	r.Get("/health", handleHealth)
	r.Get("/ready", handleReady(d))

	r.Post("/audit/events", handleEventPost(d))

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireToken(d.AuthSecret))
		r.Get("/audit/verify", handleVerify(d))
		r.Post("/audit/export", handleExport(d))
		r.Get("/audit/report", handleReport(d))
	})
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleReady(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Pinger != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := d.Pinger.Ping(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "store unavailable"})
				return
			}
		}
		block, head := d.Ledger.Head()
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": "ready",
			"block":  block,
			"head":   head,
		})
	}
}

// POST /audit/events
// Accepts { category, actor, resource, result, metadata? } and appends
// fire-and-forget: downstream failures are logged, not surfaced here.
func handleEventPost(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Category audit.Category         `json:"category"`
			Actor    string                 `json:"actor"`
			Resource string                 `json:"resource"`
			Result   audit.Result           `json:"result"`
			Metadata map[string]interface{} `json:"metadata,omitempty"`
		}
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&req); err != nil {
			http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
			return
		}

		id, err := d.Ledger.LogEvent(r.Context(), req.Category, req.Actor, req.Resource, req.Result, req.Metadata)
		if err != nil {
			var ve *audit.ValidationError
			if errors.As(err, &ve) {
				http.Error(w, ve.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if id == "" {
			// Entry was lost downstream; acknowledged per fire-and-forget
			// semantics, failure already routed to the operator log.
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"entryId": id})
	}
}

// GET /audit/verify?start=1&end=100&expectedPrevHash=...&maxEntries=...
func handleVerify(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start, err := queryUint(r, "start", 1)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		end, err := queryUint(r, "end", 0)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		opts := audit.VerifyOptions{
			ExpectedPrevHash: r.URL.Query().Get("expectedPrevHash"),
		}
		if me, err := queryUint(r, "maxEntries", 0); err == nil {
			opts.MaxEntries = int(me)
		}

		res, err := d.Verifier.VerifyChain(r.Context(), start, end, opts)
		if err != nil {
			log.Printf("[handlers] verify [%d,%d]: %v", start, end, err)
			http.Error(w, "verification unavailable", http.StatusServiceUnavailable)
			return
		}
		// Integrity violations are reported data, not errors: always 200.
		writeJSON(w, http.StatusOK, res)
	}
}

// POST /audit/export
// Accepts { startBlock, endBlock, accessKey } where accessKey is a hex or
// base64 encoded 32-byte key held by the receiving archival system.
func handleExport(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			StartBlock uint64 `json:"startBlock"`
			EndBlock   uint64 `json:"endBlock"`
			AccessKey  string `json:"accessKey"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
			return
		}
		if req.StartBlock == 0 || req.EndBlock < req.StartBlock {
			http.Error(w, "startBlock and endBlock required", http.StatusBadRequest)
			return
		}
		accessKey, err := keys.DecodeKey(req.AccessKey)
		if err != nil || len(accessKey) != keys.KeySize {
			http.Error(w, "accessKey must decode to 32 bytes", http.StatusBadRequest)
			return
		}

		bundle, err := d.Exporter.ExportRange(r.Context(), req.StartBlock, req.EndBlock, accessKey)
		if err != nil {
			if errors.Is(err, audit.ErrNotFound) {
				http.Error(w, "range is empty", http.StatusNotFound)
				return
			}
			log.Printf("[handlers] export [%d,%d]: %v", req.StartBlock, req.EndBlock, err)
			http.Error(w, "export failed: "+err.Error(), http.StatusConflict)
			return
		}

		resp := map[string]interface{}{"bundle": bundle}
		if d.Archiver != nil {
			key, err := d.Archiver.ArchiveBundle(r.Context(), bundle)
			if err != nil {
				log.Printf("[handlers] archive bundle %s: %v", bundle.ID, err)
			} else {
				resp["objectKey"] = key
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// GET /audit/report?start=1&end=100
func handleReport(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start, err := queryUint(r, "start", 1)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		end, err := queryUint(r, "end", 0)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		rep, err := d.Reporter.Aggregate(r.Context(), start, end)
		if err != nil {
			log.Printf("[handlers] report [%d,%d]: %v", start, end, err)
			http.Error(w, "report unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}

func queryUint(r *http.Request, name string, def uint64) (uint64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
