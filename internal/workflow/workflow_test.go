package workflow

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Hunga9k50doker/spheron/internal/client"
	"github.com/Hunga9k50doker/spheron/internal/identity"
	"github.com/Hunga9k50doker/spheron/internal/models"
)

type memTable struct {
	mu sync.Mutex
	m  map[string]string
}

func newMemTable() *memTable { return &memTable{m: map[string]string{}} }

func (t *memTable) Get(_ context.Context, key string) (string, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.m[key]
	return v, ok, nil
}

func (t *memTable) Set(_ context.Context, key, value string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[key] = value
	return nil
}

// fakeAPI is an in-memory rendition of the remote service, recording every
// endpoint hit.
type fakeAPI struct {
	mu      sync.Mutex
	calls   map[string]int
	profile string
	// meFailures makes the first n /auth/me calls fail with a 500.
	meFailures int
}

func newFakeAPI(profile string) *fakeAPI {
	return &fakeAPI{calls: map[string]int{}, profile: profile}
}

func (f *fakeAPI) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func (f *fakeAPI) server() *httptest.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/loginWithFirebase", func(w http.ResponseWriter, r *http.Request) {
		f.record("/auth/loginWithFirebase")
		w.Header().Add("Set-Cookie", "spheron.sid=session-token; Path=/; HttpOnly")
		w.Write([]byte(`{"success":true}`))
	})
	mux.HandleFunc("GET /auth/me", func(w http.ResponseWriter, r *http.Request) {
		n := f.record("/auth/me")
		f.mu.Lock()
		failures := f.meFailures
		profile := f.profile
		f.mu.Unlock()
		if n <= failures {
			http.Error(w, `{"error":"flaky"}`, http.StatusInternalServerError)
			return
		}
		w.Write([]byte(profile))
	})
	mux.HandleFunc("POST /referral/submit", func(w http.ResponseWriter, r *http.Request) {
		f.record("/referral/submit")
		w.Write([]byte(`{"success":true}`))
	})
	mux.HandleFunc("POST /user/spin", func(w http.ResponseWriter, r *http.Request) {
		f.record("/user/spin")
		w.Write([]byte(`{"data":{"message":"You won 5 points"}}`))
	})
	mux.HandleFunc("POST /user/generate-promo-code", func(w http.ResponseWriter, r *http.Request) {
		f.record("/user/generate-promo-code")
		f.mu.Lock()
		f.profile = profileWithUnappliedPromo
		f.mu.Unlock()
		w.Write([]byte(`{"success":true}`))
	})
	mux.HandleFunc("POST /user/apply-promo-code", func(w http.ResponseWriter, r *http.Request) {
		f.record("/user/apply-promo-code")
		w.Write([]byte(`{"success":true}`))
	})

	return httptest.NewServer(mux)
}

func (f *fakeAPI) record(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[path]++
	return f.calls[path]
}

const (
	// Referred, promo applied, no spins left: a fully settled account.
	settledProfile = `{"data":{
		"email":"user@example.com","username":"user","points":42,"xpPoints":7,
		"referralCode":"MYCODE","referredBy":"someone",
		"welcomePromoCode":{"promoCode":"WELCOME","isApplied":true,"promoPoints":10},
		"wheelOfFortune":{"spinsLeft":0,"spinPoints":5,"updatedAt":"2025-01-01T00:00:00Z"}
	}}`

	// No promo generated yet, no referrer, wheel state unknown.
	freshProfile = `{"data":{
		"email":"user@example.com","username":"user","points":0,"xpPoints":0,
		"referralCode":"MYCODE","referredBy":""
	}}`

	profileWithUnappliedPromo = `{"data":{
		"email":"user@example.com","username":"user","points":0,"xpPoints":0,
		"referralCode":"MYCODE","referredBy":"someone",
		"welcomePromoCode":{"promoCode":"NEWCODE","isApplied":false,"promoPoints":10},
		"wheelOfFortune":{"spinsLeft":0,"spinPoints":0,"updatedAt":"2025-01-01T00:00:00Z"}
	}}`
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestWorkflow(baseURL string, tokens *memTable) *Workflow {
	account := models.Account{Key: "user@example.com", Credential: "cred-token", Index: 0}
	noWait := func(context.Context, time.Duration) error { return nil }

	c := client.New(account, baseURL, identity.New("test-agent"), client.Policy{Retries: 0}, client.Deps{
		Tokens: tokens,
		Logger: discardLogger(),
		Sleep:  noWait,
	})

	cfg := Config{RefCode: "FRIEND"}
	return New(account, c, cfg, discardLogger(), Deps{
		Sleep:  noWait,
		Jitter: func() time.Duration { return 0 },
	})
}

func TestRun_LoginOnceAndPersistToken(t *testing.T) {
	api := newFakeAPI(settledProfile)
	server := api.server()
	defer server.Close()

	tokens := newMemTable()
	w := newTestWorkflow(server.URL, tokens)

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}

	if got := api.count("/auth/loginWithFirebase"); got != 1 {
		t.Errorf("expected exactly 1 login, got %d", got)
	}
	if got := api.count("/auth/me"); got != 1 {
		t.Errorf("expected exactly 1 profile fetch, got %d", got)
	}
	if got := tokens.m["user@example.com"]; got != "spheron.sid=session-token" {
		t.Errorf("expected session token persisted, got %q", got)
	}
}

func TestRun_SettledAccountTakesNoActions(t *testing.T) {
	api := newFakeAPI(settledProfile)
	server := api.server()
	defer server.Close()

	w := newTestWorkflow(server.URL, newMemTable())
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}

	if got := api.count("/referral/submit"); got != 0 {
		t.Errorf("expected no referral submit for a referred account, got %d", got)
	}
	if got := api.count("/user/apply-promo-code"); got != 0 {
		t.Errorf("expected no promo apply for an applied promo, got %d", got)
	}
	if got := api.count("/user/spin"); got != 0 {
		t.Errorf("expected no spin with spinsLeft=0, got %d", got)
	}
}

func TestRun_FreshAccountFullSequence(t *testing.T) {
	api := newFakeAPI(freshProfile)
	server := api.server()
	defer server.Close()

	w := newTestWorkflow(server.URL, newMemTable())
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}

	if got := api.count("/referral/submit"); got != 1 {
		t.Errorf("expected referral submitted once, got %d", got)
	}
	if got := api.count("/user/generate-promo-code"); got != 1 {
		t.Errorf("expected promo generation once, got %d", got)
	}
	if got := api.count("/user/apply-promo-code"); got != 1 {
		t.Errorf("expected promo applied once, got %d", got)
	}
	// Initial sync plus the re-fetch after generating the promo code.
	if got := api.count("/auth/me"); got != 2 {
		t.Errorf("expected 2 profile fetches, got %d", got)
	}
	// The fresh profile has no wheel state, so a spin is attempted.
	if got := api.count("/user/spin"); got != 1 {
		t.Errorf("expected 1 spin, got %d", got)
	}
}

func TestRun_UnappliedPromoAppliedDirectly(t *testing.T) {
	api := newFakeAPI(profileWithUnappliedPromo)
	server := api.server()
	defer server.Close()

	w := newTestWorkflow(server.URL, newMemTable())
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}

	if got := api.count("/user/generate-promo-code"); got != 0 {
		t.Errorf("expected no generation for an existing promo, got %d", got)
	}
	if got := api.count("/user/apply-promo-code"); got != 1 {
		t.Errorf("expected direct apply once, got %d", got)
	}
}

func TestSyncProfile_RetriesOnceLocally(t *testing.T) {
	api := newFakeAPI(settledProfile)
	api.meFailures = 1
	server := api.server()
	defer server.Close()

	w := newTestWorkflow(server.URL, newMemTable())
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}

	if got := api.count("/auth/me"); got != 2 {
		t.Errorf("expected failed fetch plus one local retry, got %d", got)
	}
}

func TestSyncProfile_RepeatedFailureSkipsRemainingSteps(t *testing.T) {
	api := newFakeAPI(settledProfile)
	api.meFailures = 10
	server := api.server()
	defer server.Close()

	w := newTestWorkflow(server.URL, newMemTable())
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run() should degrade to a skip, got error: %v", err)
	}

	if got := api.count("/auth/me"); got != 2 {
		t.Errorf("expected exactly 2 sync attempts, got %d", got)
	}
	for _, path := range []string{"/referral/submit", "/user/spin", "/user/apply-promo-code", "/user/generate-promo-code"} {
		if got := api.count(path); got != 0 {
			t.Errorf("expected no call to %s after sync failure, got %d", path, got)
		}
	}
}
