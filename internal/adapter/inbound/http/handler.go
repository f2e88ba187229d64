package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Commandability/commandability-web-sub001/internal/domain/deletion"
	"github.com/Commandability/commandability-web-sub001/internal/domain/document"
	"github.com/Commandability/commandability-web-sub001/internal/domain/session"
	"github.com/Commandability/commandability-web-sub001/internal/domain/subscription"
	"github.com/Commandability/commandability-web-sub001/internal/port/inbound"
	"github.com/Commandability/commandability-web-sub001/internal/port/outbound"
)

// API routes.
const (
	routeSession       = "/v1/session"
	routeSignIn        = "/v1/session/sign-in"
	routeSignOut       = "/v1/session/sign-out"
	routeSync          = "/v1/sync"
	routeStream        = "/v1/sync/stream"
	routeDeleteReports = "/v1/reports/delete"
)

// maxRequestBodySize is the maximum allowed request body size (1 MB).
const maxRequestBodySize = 1 << 20

// defaultHeartbeat is the idle interval between stream keep-alive comments.
const defaultHeartbeat = 25 * time.Second

// api serves the /v1 routes.
type api struct {
	sync      inbound.SyncService
	control   inbound.SessionControl
	metrics   *Metrics
	buffer    int
	heartbeat time.Duration
	// done is closed when the transport shuts down; open streams end.
	done <-chan struct{}
}

func (a *api) register(mux *http.ServeMux) {
	mux.HandleFunc("GET "+routeSession, a.handleSession)
	mux.HandleFunc("POST "+routeSignIn, a.handleSignIn)
	mux.HandleFunc("POST "+routeSignOut, a.handleSignOut)
	mux.HandleFunc("GET "+routeSync, a.handleSync)
	mux.HandleFunc("GET "+routeStream, a.handleStream)
	mux.HandleFunc("POST "+routeDeleteReports, a.handleDeleteReports)
}

// SessionResponse is the JSON form of the session state.
type SessionResponse struct {
	Status   session.Status    `json:"status"`
	Identity *session.Identity `json:"identity"`
	Error    string            `json:"error,omitempty"`
}

func newSessionResponse(st session.State) SessionResponse {
	resp := SessionResponse{Status: st.Status, Identity: st.Identity}
	if st.Err != nil {
		resp.Error = st.Err.Error()
	}
	return resp
}

// EntryResponse is the JSON form of one named subscription. Data is only
// present while the entry is resolved.
type EntryResponse struct {
	Status     subscription.Status `json:"status"`
	Data       *document.Snapshot  `json:"data"`
	Error      string              `json:"error,omitempty"`
	Generation uint64              `json:"generation"`
}

// AggregateResponse is the JSON form of the aggregate state.
type AggregateResponse struct {
	Status  subscription.Status      `json:"status"`
	Error   string                   `json:"error,omitempty"`
	Names   []string                 `json:"names"`
	Entries map[string]EntryResponse `json:"entries"`
}

func newAggregateResponse(agg subscription.Aggregate) AggregateResponse {
	resp := AggregateResponse{
		Status:  agg.Status,
		Names:   agg.Names,
		Entries: make(map[string]EntryResponse, len(agg.Entries)),
	}
	if resp.Names == nil {
		resp.Names = []string{}
	}
	if agg.Err != nil {
		resp.Error = agg.Err.Error()
	}
	for name, st := range agg.Entries {
		entry := EntryResponse{Status: st.Status, Data: agg.Data(name), Generation: st.Generation}
		if st.Err != nil {
			entry.Error = st.Err.Error()
		}
		resp.Entries[name] = entry
	}
	return resp
}

func (a *api) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newSessionResponse(a.sync.Session()))
}

// SignInRequest is the body of POST /v1/session/sign-in.
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *api) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	identity, err := a.control.SignIn(r.Context(), req.Email, req.Password)
	switch {
	case err == nil:
		LoggerFromContext(r.Context()).Info("sign-in succeeded", "identity", identity.ID)
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, outbound.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, outbound.ErrTooManyRequests):
		writeError(w, r, http.StatusTooManyRequests, "too many sign-in attempts")
	default:
		LoggerFromContext(r.Context()).Error("sign-in failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "sign-in failed")
	}
}

func (a *api) handleSignOut(w http.ResponseWriter, r *http.Request) {
	a.control.SignOut()
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) handleSync(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newAggregateResponse(a.sync.Aggregate()))
}

// handleStream writes one "aggregate" event per aggregate change until the
// client goes away or the transport shuts down.
func (a *api) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	updates, release := a.sync.Stream(a.buffer)
	defer release()

	if a.metrics != nil {
		a.metrics.ActiveStreams.Inc()
		defer a.metrics.ActiveStreams.Dec()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(a.heartbeat)
	defer heartbeat.Stop()

	logger := LoggerFromContext(r.Context())
	var seq uint64
	for {
		select {
		case <-r.Context().Done():
			return
		case <-a.done:
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case agg, ok := <-updates:
			if !ok {
				return
			}
			seq++
			data, err := json.Marshal(newAggregateResponse(agg))
			if err != nil {
				logger.Error("failed to encode aggregate", "error", err)
				return
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: aggregate\ndata: %s\n\n", seq, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// DeleteReportsRequest is the body of POST /v1/reports/delete.
type DeleteReportsRequest struct {
	Password  string   `json:"password"`
	ReportIDs []string `json:"report_ids"`
	All       bool     `json:"all"`
}

func (a *api) handleDeleteReports(w http.ResponseWriter, r *http.Request) {
	var req DeleteReportsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	logger := LoggerFromContext(r.Context())
	result, err := a.sync.DeleteReports(r.Context(), req.Password, req.ReportIDs, req.All)
	switch {
	case errors.Is(err, inbound.ErrSignedOut):
		writeError(w, r, http.StatusConflict, "no identity signed in")
		return
	case errors.Is(err, deletion.ErrInvalidRequest):
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		logger.Error("report deletion failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "report deletion failed")
		return
	}

	if result.Rejected() {
		writeJSON(w, http.StatusUnprocessableEntity, struct {
			FieldErrors deletion.FieldErrors `json:"field_errors"`
		}{result.FieldErrors})
		return
	}
	if result.Partial() {
		logger.Warn("report deletion left orphaned objects", "failed", len(result.FailedObjects))
	}
	writeJSON(w, http.StatusOK, result)
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return errors.New("content type must be application/json")
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer func() { _ = r.Body.Close() }()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return errors.New("request body too large (max 1MB)")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg, RequestID: RequestIDFromContext(r.Context())})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
