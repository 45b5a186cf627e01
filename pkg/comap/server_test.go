package comap

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"
)

// fakeServer implements the Comap identity provider (on /auth) and API (on /api/).
type fakeServer struct {
	lock         sync.Mutex
	logins       int
	refreshes    int
	counter      int
	accessToken  string
	refreshToken string
	expiresIn    int
	failRefresh  bool
	delay        time.Duration
	calls        []string
	bodies       map[string]string
	requestIDs   []string
	responses    map[string]string
	statuses     map[string][]int
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	t.Helper()
	s := fakeServer{
		expiresIn: 3600,
		bodies:    make(map[string]string),
		responses: map[string]string{
			"GET /api/park/housings": `[ { "id": "h1", "name": "home" }, { "id": "h2", "name": "cottage" } ]`,
		},
		statuses: make(map[string][]int),
	}
	server := httptest.NewServer(&s)
	t.Cleanup(server.Close)
	return &s, server
}

func newTestClient(server *httptest.Server, opts ...Option) *Client {
	opts = append([]Option{
		WithURL(server.URL + "/api/"),
		WithAuthURL(server.URL + "/auth"),
	}, opts...)
	return New(Credentials{Username: "user@example.com", Password: "password"}, opts...)
}

func (s *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/auth" {
		s.serveAuth(w, r)
		return
	}
	s.serveAPI(w, r)
}

func (s *fakeServer) serveAuth(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if r.Header.Get("X-Amz-Target") != initiateAuth || r.Header.Get("Content-Type") != "application/x-amz-json-1.1" {
		http.Error(w, "invalid headers", http.StatusBadRequest)
		return
	}

	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result := authenticationResult{TokenType: "Bearer", ExpiresIn: s.expiresIn}
	switch req.AuthFlow {
	case flowLogin:
		if req.AuthParameters["PASSWORD"] != "password" || req.ClientID != DefaultClientID {
			rejectAuth(w)
			return
		}
		s.logins++
		s.counter++
		s.refreshToken = "refresh_" + strconv.Itoa(s.logins)
		result.RefreshToken = s.refreshToken
	case flowRefreshToken:
		if s.failRefresh || req.AuthParameters["REFRESH_TOKEN"] != s.refreshToken {
			rejectAuth(w)
			return
		}
		s.refreshes++
		s.counter++
	default:
		http.Error(w, "unsupported flow", http.StatusBadRequest)
		return
	}
	s.accessToken = "token_" + strconv.Itoa(s.counter)
	result.AccessToken = s.accessToken

	w.Header().Set("Content-Type", "application/x-amz-json-1.1")
	_ = json.NewEncoder(w).Encode(authResponse{AuthenticationResult: result})
}

func rejectAuth(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/x-amz-json-1.1")
	w.WriteHeader(http.StatusBadRequest)
	_, _ = w.Write([]byte(`{"__type":"NotAuthorizedException","message":"Incorrect username or password."}`))
}

func (s *fakeServer) serveAPI(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	delay := s.delay
	s.lock.Unlock()

	if delay > 0 {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(delay):
		}
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if s.accessToken == "" || r.Header.Get("Authorization") != "Bearer "+s.accessToken {
		http.Error(w, `{"message":"Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	key := r.Method + " " + r.URL.Path
	s.calls = append(s.calls, key)
	s.requestIDs = append(s.requestIDs, r.Header.Get("X-Request-Id"))
	if r.Body != nil {
		var body bytes.Buffer
		_, _ = body.ReadFrom(r.Body)
		if body.Len() > 0 {
			s.bodies[key] = body.String()
		}
	}

	if statuses := s.statuses[key]; len(statuses) > 0 {
		s.statuses[key] = statuses[1:]
		w.WriteHeader(statuses[0])
		_, _ = w.Write([]byte(`{"message":"` + http.StatusText(statuses[0]) + `"}`))
		return
	}

	if response, ok := s.responses[key]; ok {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(response))
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Error(w, "not found: "+key, http.StatusNotFound)
}

func (s *fakeServer) setResponse(key, body string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.responses[key] = body
}

func (s *fakeServer) setStatuses(key string, statuses ...int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.statuses[key] = statuses
}

func (s *fakeServer) getCalls() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *fakeServer) getBody(key string) string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.bodies[key]
}

func (s *fakeServer) getCounts() (int, int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.logins, s.refreshes
}

func (s *fakeServer) resetCalls() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.calls = nil
}
