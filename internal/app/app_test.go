package app_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/parley-ai/parley/internal/app"
	"github.com/parley-ai/parley/internal/config"
	"github.com/parley-ai/parley/internal/store"
	llmmock "github.com/parley-ai/parley/pkg/provider/llm/mock"
	sttmock "github.com/parley-ai/parley/pkg/provider/stt/mock"
	"github.com/parley-ai/parley/pkg/types"
)

// testConfig returns a minimal config for wiring tests. No DSN, so the
// in-memory store is used unless one is injected.
func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			ListenAddr: ":0",
			LogLevel:   config.LogInfo,
		},
		Session: config.SessionConfig{
			SampleRate: 16000,
		},
	}
}

func seededStore(t *testing.T) *store.Memory {
	t.Helper()
	mem := store.NewMemory()
	mem.PutDeck(&types.Deck{ID: "deck-1", TenantID: "tenant-1", Title: "Acme Robotics"})
	return mem
}

func newTestApp(t *testing.T, cfg *config.Config, providers *app.Providers, opts ...app.Option) (*app.App, *httptest.Server) {
	t.Helper()
	a, err := app.New(context.Background(), cfg, providers, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	})
	return a, srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatalf("encode body: %v", err)
	}
	resp, err := http.Post(url, "application/json", &buf)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func TestNew_MemoryStoreFallback(t *testing.T) {
	a, srv := newTestApp(t, testConfig(), &app.Providers{})
	if a.Orchestrator() == nil {
		t.Fatal("Orchestrator() = nil")
	}

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/healthz status = %d, want 200", resp.StatusCode)
	}
}

func TestReadyz_DegradedWithoutProviders(t *testing.T) {
	_, srv := newTestApp(t, testConfig(), &app.Providers{})

	resp, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("/readyz status = %d, want 503 without providers", resp.StatusCode)
	}
}

func TestReadyz_HealthyWithProviders(t *testing.T) {
	providers := &app.Providers{
		LLM: &llmmock.Provider{},
		STT: &sttmock.Provider{},
	}
	_, srv := newTestApp(t, testConfig(), providers)

	resp, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/readyz status = %d, want 200", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, srv := newTestApp(t, testConfig(), &app.Providers{})

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/metrics status = %d, want 200", resp.StatusCode)
	}
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	mem := seededStore(t)
	_, srv := newTestApp(t, testConfig(), &app.Providers{}, app.WithStore(mem))

	resp := postJSON(t, srv.URL+"/v1/sessions", map[string]string{"deckId": "deck-1"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	var created struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/v1/sessions/"+created.SessionID+"/stop", struct{}{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stop status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	// Finalization is asynchronous; poll until the session is ended.
	deadline := time.Now().Add(2 * time.Second)
	for {
		sess, err := mem.GetSession(context.Background(), created.SessionID)
		if err != nil {
			t.Fatalf("GetSession() error = %v", err)
		}
		if sess.Status == types.SessionEnded {
			if sess.Summary != nil {
				t.Errorf("Summary = %+v, want nil without a generation provider", sess.Summary)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("session not ended, status = %s", sess.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMCPBridgeMounted(t *testing.T) {
	cfg := testConfig()
	cfg.MCP.Enabled = true
	_, srv := newTestApp(t, cfg, &app.Providers{})

	// Any response but 404 proves the route is mounted; the MCP transport
	// itself rejects plain GETs.
	resp, err := http.Get(srv.URL + "/mcp")
	if err != nil {
		t.Fatalf("GET /mcp: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		t.Error("/mcp route not mounted")
	}
}

func TestTenantKeyRoute_RequiresVault(t *testing.T) {
	mem := seededStore(t)
	_, srv := newTestApp(t, testConfig(), &app.Providers{}, app.WithStore(mem))

	req, err := http.NewRequest(http.MethodPut,
		srv.URL+"/v1/tenants/tenant-1/keys/openai",
		bytes.NewBufferString(`{"apiKey":"sk-test"}`))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT tenant key: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when no vault is configured", resp.StatusCode)
	}
}

func TestTenantKeyStoredEncrypted(t *testing.T) {
	mem := seededStore(t)
	cfg := testConfig()
	cfg.Vault.MasterKey = base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0x42}, 32))
	_, srv := newTestApp(t, cfg, &app.Providers{}, app.WithStore(mem))

	req, err := http.NewRequest(http.MethodPut,
		srv.URL+"/v1/tenants/tenant-1/keys/openai",
		bytes.NewBufferString(`{"apiKey":"sk-tenant-secret"}`))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT tenant key: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}

	blob, err := mem.GetTenantKey(context.Background(), "tenant-1", "openai")
	if err != nil {
		t.Fatalf("GetTenantKey() error = %v", err)
	}
	if bytes.Contains(blob, []byte("sk-tenant-secret")) {
		t.Error("tenant key stored in plaintext, want ciphertext")
	}
}

func TestNew_RejectsBadMasterKey(t *testing.T) {
	cfg := testConfig()
	cfg.Vault.MasterKey = "not-base64!!!"
	if _, err := app.New(context.Background(), cfg, &app.Providers{}); err == nil {
		t.Fatal("New() error = nil, want invalid master key error")
	}
}
