package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/victorseo0526-a/minister-reservation/internal/reservation"
)

type Server struct {
	svc        *reservation.Service
	adminToken string
	mux        *http.ServeMux
}

type contextKey string

const requestIDKey contextKey = "req_id"

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// NewServer builds the HTTP surface. adminToken guards the decision routes
// (approve/reject/delete); empty disables the guard, for tests only.
func NewServer(svc *reservation.Service, adminToken string) *Server {
	s := &Server{svc: svc, adminToken: adminToken, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return withRequestID(s.mux)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Reservation endpoints (simple path parsing to avoid extra router deps)
	s.mux.HandleFunc("/v1/reservations", s.handleCollection)
	s.mux.HandleFunc("/v1/reservations/", s.handleItem)
	s.mux.HandleFunc("/v1/roles", s.handleRoles)
	s.mux.HandleFunc("/v1/grid", s.handleGrid)
}

func (s *Server) isAdmin(r *http.Request) bool {
	if s.adminToken == "" {
		return true
	}
	got := r.Header.Get("X-Admin-Token")
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.adminToken)) == 1
}

func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSubmit(w, r)
	case http.MethodGet:
		s.handleMy(w, r)
	default:
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleItem(w http.ResponseWriter, r *http.Request) {
	// Expected:
	// /v1/reservations/{id}            (DELETE)
	// /v1/reservations/{id}/approve    (POST)
	// /v1/reservations/{id}/reject     (POST)
	path := strings.TrimPrefix(r.URL.Path, "/v1/reservations/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeErr(w, http.StatusBadRequest, "reservation id required")
		return
	}

	parts := strings.Split(path, "/")
	id := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}
	if len(parts) > 2 {
		writeErr(w, http.StatusNotFound, "invalid path")
		return
	}

	if !s.isAdmin(r) {
		writeErr(w, http.StatusUnauthorized, "admin token required")
		return
	}

	switch r.Method {
	case http.MethodDelete:
		if action != "" {
			writeErr(w, http.StatusNotFound, "invalid path")
			return
		}
		s.handleDelete(w, r, id)

	case http.MethodPost:
		switch action {
		case "approve":
			s.handleApprove(w, r, id)
		case "reject":
			s.handleReject(w, r, id)
		default:
			writeErr(w, http.StatusNotFound, "unknown action")
		}

	default:
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// --- Handlers ---

type submitReq struct {
	Name string `json:"name"`
	Role string `json:"role"`
	Time string `json:"time"`
}

type reservationJSON struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	SlotTime  string `json:"slot_time"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

func toJSON(r reservation.Reservation) reservationJSON {
	return reservationJSON{
		ID:        r.ID,
		Name:      r.Name,
		Role:      r.Role,
		SlotTime:  r.SlotTime.UTC().Format(time.RFC3339),
		Status:    string(r.Status),
		CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitReq
	if err := readJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == "" || req.Role == "" || req.Time == "" {
		writeErr(w, http.StatusBadRequest, "name, role and time required")
		return
	}

	rec, err := s.svc.Submit(r.Context(), reservation.SubmitRequest{
		Name:    req.Name,
		Role:    req.Role,
		RawTime: req.Time,
	})
	if err != nil {
		s.writeSubmitErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toJSON(rec))
}

func (s *Server) handleMy(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeErr(w, http.StatusBadRequest, "name query parameter required")
		return
	}
	recs, err := s.svc.MyReservations(r.Context(), name)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]reservationJSON, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toJSON(rec))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reservations": out})
}

type decisionResp struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request, id string) {
	err := s.svc.Approve(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, decisionResp{ID: id, Status: string(reservation.StatusApproved)})
	case errors.Is(err, reservation.ErrStaleReference):
		writeJSON(w, http.StatusNotFound, decisionResp{ID: id, Reason: "STALE"})
	case errors.Is(err, reservation.ErrNowConflicting):
		writeJSON(w, http.StatusConflict, decisionResp{ID: id, Reason: "NOW_CONFLICTING"})
	default:
		writeErr(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request, id string) {
	err := s.svc.Reject(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, decisionResp{ID: id, Status: string(reservation.StatusRejected)})
	case errors.Is(err, reservation.ErrStaleReference):
		writeJSON(w, http.StatusNotFound, decisionResp{ID: id, Reason: "STALE"})
	default:
		writeErr(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.svc.Delete(r.Context(), id); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, decisionResp{ID: id, Status: "removed"}) // idempotent
}

func (s *Server) handleRoles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	byRole, err := s.svc.ApprovedByRole(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	type roleJSON struct {
		Role         string            `json:"role"`
		Reservations []reservationJSON `json:"reservations"`
	}
	out := make([]roleJSON, 0, len(byRole))
	for _, role := range s.svc.Roles() {
		recs := byRole[role]
		rj := roleJSON{Role: role, Reservations: make([]reservationJSON, 0, len(recs))}
		for _, rec := range recs {
			rj.Reservations = append(rj.Reservations, toJSON(rec))
		}
		out = append(out, rj)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"roles": out})
}

type gridSlotJSON struct {
	Time         string            `json:"time"`
	Reservations []reservationJSON `json:"reservations"`
}

func (s *Server) handleGrid(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	dayStart := reservation.StartOfDay(time.Now().UTC())
	if day := r.URL.Query().Get("day"); day != "" {
		t, err := time.Parse("2006-01-02", day)
		if err != nil {
			writeErr(w, http.StatusBadRequest, "day must be YYYY-MM-DD")
			return
		}
		dayStart = t
	}

	slots, err := s.svc.Grid(r.Context(), dayStart)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]gridSlotJSON, 0, len(slots))
	for _, slot := range slots {
		gj := gridSlotJSON{Time: slot.Label, Reservations: make([]reservationJSON, 0, len(slot.Reservations))}
		for _, rec := range slot.Reservations {
			gj.Reservations = append(gj.Reservations, toJSON(rec))
		}
		out = append(out, gj)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"day":   dayStart.Format("2006-01-02"),
		"slots": out,
	})
}

// writeSubmitErr maps the submit error taxonomy to distinct responses so the
// UI can guide correction.
func (s *Server) writeSubmitErr(w http.ResponseWriter, err error) {
	var ce *reservation.ConflictError
	switch {
	case errors.As(err, &ce):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": ce.Error(),
			"rule":  string(ce.Rule),
		})
	case errors.Is(err, reservation.ErrInvalidTime):
		writeErr(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, reservation.ErrUnknownRole):
		writeErr(w, http.StatusBadRequest, err.Error())
	default:
		writeErr(w, http.StatusInternalServerError, err.Error())
	}
}

// --- helpers ---

func readJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return errors.New("missing body")
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
