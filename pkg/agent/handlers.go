package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/mscrnt/mchconfig/pkg/imc"
)

// Snapshotter produces one decoded memory controller configuration.
// *imc.Introspector satisfies it.
type Snapshotter interface {
	Snapshot() (*imc.Config, error)
}

// SnapshotFunc adapts a function to Snapshotter
type SnapshotFunc func() (*imc.Config, error)

func (f SnapshotFunc) Snapshot() (*imc.Config, error) { return f() }

// IMCResponse is the body of a successful /imc request
type IMCResponse struct {
	Timestamp time.Time   `json:"timestamp"`
	Hostname  string      `json:"hostname,omitempty"`
	Config    *imc.Config `json:"config"`
}

// ErrorResponse is the body of a failed /imc request
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// Error kinds reported in ErrorResponse
const (
	KindUnsupported = "unsupported_platform"
	KindPermission  = "port_access_denied"
	KindPortAccess  = "port_access"
	KindDecode      = "decode"
	KindInternal    = "internal"
)

// classify maps a snapshot error onto an HTTP status and error kind
func classify(err error) (int, string) {
	var unsupported *imc.UnsupportedPlatformError
	if errors.As(err, &unsupported) {
		return http.StatusNotImplemented, KindUnsupported
	}

	// A decode error wrapping a denied read is still a permission problem
	var pae *imc.PortAccessError
	if errors.As(err, &pae) && pae.IsPermission() {
		return http.StatusForbidden, KindPermission
	}

	var de *imc.DecodeError
	if errors.As(err, &de) {
		return http.StatusInternalServerError, KindDecode
	}
	if pae != nil {
		return http.StatusInternalServerError, KindPortAccess
	}
	return http.StatusInternalServerError, KindInternal
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// imcHandler takes a fresh snapshot per request. Register dumps are only
// included with ?raw=true.
func imcHandler(snap Snapshotter, hostname string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		raw := false
		if v := r.URL.Query().Get("raw"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				http.Error(w, fmt.Sprintf("invalid raw parameter: %q", v), http.StatusBadRequest)
				return
			}
			raw = b
		}

		cfg, err := snap.Snapshot()
		if err != nil {
			status, kind := classify(err)
			writeJSON(w, status, ErrorResponse{Error: err.Error(), Kind: kind})
			return
		}

		if !raw {
			trimmed := *cfg
			trimmed.Registers = nil
			cfg = &trimmed
		}

		writeJSON(w, http.StatusOK, IMCResponse{
			Timestamp: time.Now().UTC(),
			Hostname:  hostname,
			Config:    cfg,
		})
	}
}

// healthHandler returns server health status
func healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK\n")
}
