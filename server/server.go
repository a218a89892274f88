// Package server exposes registration and the admin dashboard over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"library-members/auth"
	"library-members/library"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type sessionKey struct{}

// Server wires the HTTP routes to the member registry and the dashboard.
type Server struct {
	members       *library.MemberManager
	auth          *auth.Authenticator
	dashboard     *auth.Dashboard
	log           *slog.Logger
	maxPhotoBytes int64
}

func New(members *library.MemberManager, authn *auth.Authenticator, log *slog.Logger, maxPhotoBytes int64) *Server {
	return &Server{
		members:       members,
		auth:          authn,
		dashboard:     auth.NewDashboard(authn, members),
		log:           log,
		maxPhotoBytes: maxPhotoBytes,
	}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.logRequests)

	router.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	router.HandleFunc("/members", s.handleRegister).Methods(http.MethodPost)

	admin := func(path string, h http.HandlerFunc, method string) {
		router.Handle(path, s.requireSession(h)).Methods(method)
	}
	admin("/logout", s.handleLogout, http.MethodPost)
	admin("/members", s.handleList, http.MethodGet)
	admin("/members/{index:[0-9]+}/paid", s.handleMarkPaid, http.MethodPost)
	admin("/members/id/{id}/paid", s.handleMarkPaidByID, http.MethodPost)
	admin("/members/id/{id}/photo", s.handlePhoto, http.MethodGet)
	admin("/export", s.handleExport, http.MethodGet)

	return router
}

// ListenAndServe runs until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Handler:      s.Router(),
		Addr:         addr,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info("listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		token, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "malformed token")
			return
		}
		sess, err := s.auth.Validate(token)
		if err != nil {
			s.fail(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess)))
	})
}

func sessionFrom(r *http.Request) *auth.Session {
	sess, _ := r.Context().Value(sessionKey{}).(*auth.Session)
	return sess
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sess, err := s.auth.Login(r.PostForm.Get("password"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(sessionFrom(r)); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxPhotoBytes+1<<20)
	if err := r.ParseMultipartForm(s.maxPhotoBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := library.RegisterRequest{
		Name:    r.FormValue("name"),
		Phone:   r.FormValue("phone"),
		CNIC:    r.FormValue("cnic"),
		Address: r.FormValue("address"),
		FeePaid: r.FormValue("fee_paid"),
	}

	file, _, err := r.FormFile("photo")
	switch {
	case err == nil:
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, s.maxPhotoBytes+1))
		if err != nil {
			writeError(w, http.StatusBadRequest, "read photo: "+err.Error())
			return
		}
		if int64(len(data)) > s.maxPhotoBytes {
			writeError(w, http.StatusRequestEntityTooLarge, "photo too large")
			return
		}
		req.Photo = data
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	m, err := s.members.Register(req)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.log.Info("member registered", "id", m.ID, "photo", m.Photo != "")
	writeJSON(w, http.StatusCreated, m)
}

type memberView struct {
	Index int `json:"index"`
	*library.Member
	HasPhoto bool `json:"has_photo"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	members, err := s.dashboard.List(sessionFrom(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	views := make([]memberView, 0, len(members))
	for i, m := range members {
		views = append(views, memberView{Index: i, Member: m, HasPhoto: library.PhotoExists(m)})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid index")
		return
	}
	m, err := s.dashboard.MarkPaid(sessionFrom(r), index)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.log.Info("fee marked paid", "index", index, "id", m.ID)
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleMarkPaidByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid member id")
		return
	}
	m, err := s.dashboard.MarkPaidByID(sessionFrom(r), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.log.Info("fee marked paid", "id", m.ID)
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handlePhoto(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid member id")
		return
	}
	path, ok, err := s.dashboard.Photo(sessionFrom(r), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no photo")
		return
	}
	http.ServeFile(w, r, path)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	data, err := s.dashboard.Export(sessionFrom(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="library_members.csv"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// ---------------------------------------------------------------------------
// Responses
// ---------------------------------------------------------------------------

func (s *Server) fail(w http.ResponseWriter, err error) {
	var (
		verr *library.ValidationError
		ierr *library.IndexError
	)
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &ierr), errors.Is(err, library.ErrMemberNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, auth.ErrInvalidPassword), errors.Is(err, auth.ErrSessionInvalid):
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		s.log.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"status":  status,
		"message": msg,
	})
}
