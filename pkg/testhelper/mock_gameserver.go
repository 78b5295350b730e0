package testhelper

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// MockGameServer is an httptest stand-in for the game server reward plugin.
type MockGameServer struct {
	Server *httptest.Server

	mu            sync.Mutex
	GrantRequests []map[string]any
	ShouldRefuse  bool
	ShouldFail    bool
	RefuseMessage string
}

func NewMockGameServer(t *testing.T) *MockGameServer {
	mock := &MockGameServer{}

	mux := http.NewServeMux()

	mux.HandleFunc("/rewards/grant", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)

		mock.mu.Lock()
		mock.GrantRequests = append(mock.GrantRequests, body)
		refuse, fail, msg := mock.ShouldRefuse, mock.ShouldFail, mock.RefuseMessage
		mock.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if fail {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"code":"unavailable","message":"server restarting"}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"granted": !refuse, "message": msg})
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mock.Server = httptest.NewServer(mux)
	t.Cleanup(mock.Server.Close)

	return mock
}

// URL returns the base URL of the mock server
func (m *MockGameServer) URL() string {
	return m.Server.URL
}

func (m *MockGameServer) Grants() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.GrantRequests)
}

// Refuse makes subsequent grants answer granted=false with msg.
func (m *MockGameServer) Refuse(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ShouldRefuse, m.RefuseMessage = true, msg
}

// Fail toggles 503 answers for grants.
func (m *MockGameServer) Fail(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ShouldRefuse, m.ShouldFail = false, fail
}
