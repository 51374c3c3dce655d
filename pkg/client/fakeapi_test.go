package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
)

const fakePassword = "siena-1347"

// fakeAPI mimics the server's session, CSRF and envelope behaviour.
type fakeAPI struct {
	mu        sync.Mutex
	users     map[string]*CurrentUser
	confirmed map[string]bool
	sessions  map[string]*CurrentUser

	meHits    atomic.Int32
	roleHits  atomic.Int32
	csrfHits  atomic.Int32
	meBlocked chan struct{}
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()

	f := &fakeAPI{
		users:     map[string]*CurrentUser{},
		confirmed: map[string]bool{},
		sessions:  map[string]*CurrentUser{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/auth/csrf", f.csrf)
	mux.HandleFunc("POST /api/v1/auth/login", f.requireCSRF(f.login))
	mux.HandleFunc("POST /api/v1/auth/logout", f.requireCSRF(f.logout))
	mux.HandleFunc("GET /api/v1/account/me", f.me)
	mux.HandleFunc("GET /api/v1/account/role", f.role)
	mux.HandleFunc("GET /api/v1/invites", f.listInvites)
	mux.HandleFunc("GET /api/v1/invites/validate", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, map[string]bool{"valid": r.URL.Query().Get("token") == "good"})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeAPI) addUser(email string, role Role, confirmed bool) *CurrentUser {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &CurrentUser{ID: uuid.New(), FirstName: "Catherine", LastName: "Benincasa", Email: email, Role: role}
	f.users[email] = u
	f.confirmed[email] = confirmed
	return u
}

func (f *fakeAPI) sessionUser(r *http.Request) *CurrentUser {
	c, err := r.Cookie("sc_session")
	if err != nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[c.Value]
}

func (f *fakeAPI) csrf(w http.ResponseWriter, r *http.Request) {
	f.csrfHits.Add(1)
	token := uuid.NewString()
	http.SetCookie(w, &http.Cookie{Name: csrfCookie, Value: token, Path: "/"})
	writeData(w, http.StatusOK, map[string]string{"token": token})
}

func (f *fakeAPI) requireCSRF(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(csrfCookie)
		if err != nil || c.Value == "" || r.Header.Get(csrfHeader) != c.Value {
			writeError(w, http.StatusForbidden, CodeForbidden, "Invalid CSRF token")
			return
		}
		next(w, r)
	}
}

func (f *fakeAPI) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body")
		return
	}

	f.mu.Lock()
	user, ok := f.users[req.Email]
	confirmed := f.confirmed[req.Email]
	f.mu.Unlock()

	switch {
	case !ok || req.Password != fakePassword:
		writeError(w, http.StatusUnauthorized, CodeInvalidCredentials, "invalid email or password")
		return
	case !confirmed:
		writeError(w, http.StatusForbidden, CodeEmailNotConfirmed, "email address has not been confirmed")
		return
	}

	sid := uuid.NewString()
	f.mu.Lock()
	f.sessions[sid] = user
	f.mu.Unlock()
	http.SetCookie(w, &http.Cookie{Name: "sc_session", Value: sid, Path: "/", HttpOnly: true})
	writeData(w, http.StatusOK, user)
}

func (f *fakeAPI) logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie("sc_session"); err == nil {
		f.mu.Lock()
		delete(f.sessions, c.Value)
		f.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{Name: "sc_session", Value: "", Path: "/", MaxAge: -1})
	writeData(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (f *fakeAPI) me(w http.ResponseWriter, r *http.Request) {
	f.meHits.Add(1)
	if f.meBlocked != nil {
		<-f.meBlocked
	}
	user := f.sessionUser(r)
	if user == nil {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Authentication required")
		return
	}
	writeData(w, http.StatusOK, user)
}

func (f *fakeAPI) role(w http.ResponseWriter, r *http.Request) {
	f.roleHits.Add(1)
	user := f.sessionUser(r)
	if user == nil {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Authentication required")
		return
	}
	writeData(w, http.StatusOK, map[string]Role{"role": user.Role})
}

func (f *fakeAPI) listInvites(w http.ResponseWriter, r *http.Request) {
	user := f.sessionUser(r)
	switch {
	case user == nil:
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Authentication required")
	case user.Role != RoleSuperAdmin:
		writeError(w, http.StatusForbidden, CodeForbidden, "Insufficient role")
	default:
		writeData(w, http.StatusOK, map[string]any{"invites": []InviteSummary{}})
	}
}

// expireSessions drops every server-side session, as a restart with a new
// secret would.
func (f *fakeAPI) expireSessions() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = map[string]*CurrentUser{}
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"request_id": "req-1", "data": data})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": code, "message": message, "request_id": "req-1"},
	})
}
