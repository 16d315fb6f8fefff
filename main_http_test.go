package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func doReq(t *testing.T, mux http.Handler, method, target string, form url.Values, pid string, remote string) *httptest.ResponseRecorder {
	t.Helper()
	var bodyReader *strings.Reader
	if form != nil {
		bodyReader = strings.NewReader(form.Encode())
	} else {
		bodyReader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, bodyReader)
	if remote == "" {
		remote = "127.0.0.1:12345"
	}
	req.RemoteAddr = remote
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if pid != "" {
		req.AddCookie(&http.Cookie{Name: cookieName, Value: pid})
	}
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func cookieFromResponse(rr *httptest.ResponseRecorder, name string) string {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func TestHomeIssuesCookieAndShowsRoleChoice(t *testing.T) {
	s := newTestStore()
	tmpl := parseTemplates()
	mux := newMux(s, tmpl)

	r := doReq(t, mux, http.MethodGet, "/", nil, "", "127.0.0.1:1111")
	if r.Code != http.StatusOK {
		t.Fatalf("GET / status=%d", r.Code)
	}
	pid := cookieFromResponse(r, cookieName)
	if pid == "" {
		t.Fatalf("expected pid cookie on first visit")
	}
	body := r.Body.String()
	if !strings.Contains(body, "Choose your trade") {
		t.Fatalf("home without a game should show role selection")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Players[pid] == nil {
		t.Fatalf("first visit should register the player")
	}
}

func TestRoleSelectionCreatesGameOnce(t *testing.T) {
	s := newTestStore()
	tmpl := parseTemplates()
	mux := newMux(s, tmpl)

	r := doReq(t, mux, http.MethodPost, "/role", url.Values{"role": {"farmer"}}, "p1", "")
	if r.Code != http.StatusOK {
		t.Fatalf("POST /role status=%d", r.Code)
	}

	s.mu.Lock()
	g := s.Games["p1"]
	s.mu.Unlock()
	if g == nil || g.Role != RoleFarmer {
		t.Fatalf("expected a farmer game for p1")
	}

	// A second role post must not replace the running game.
	doReq(t, mux, http.MethodPost, "/role", url.Values{"role": {"merchant"}}, "p1", "")
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Games["p1"] != g || g.Role != RoleFarmer {
		t.Fatalf("role selection must be one-shot per game")
	}
}

func TestRoleSelectionRejectsUnknownRole(t *testing.T) {
	s := newTestStore()
	tmpl := parseTemplates()
	mux := newMux(s, tmpl)

	doReq(t, mux, http.MethodPost, "/role", url.Values{"role": {"alchemist"}}, "p1", "")
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Games["p1"] != nil {
		t.Fatalf("unknown role must not create a game")
	}
}

func TestActionPlantThroughHTTP(t *testing.T) {
	s := newTestStore()
	tmpl := parseTemplates()
	mux := newMux(s, tmpl)

	doReq(t, mux, http.MethodPost, "/role", url.Values{"role": {"farmer"}}, "p1", "")
	r := doReq(t, mux, http.MethodPost, "/action", url.Values{"action": {"plant"}, "plot_id": {"0"}}, "p1", "")
	if r.Code != http.StatusOK {
		t.Fatalf("POST /action status=%d", r.Code)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.Games["p1"]
	if g.Plots[0].State != PlotGrowing || g.Coins != 990 {
		t.Fatalf("plant action not applied: state=%s coins=%d", g.Plots[0].State, g.Coins)
	}
}

func TestActionCooldownSwallowsSecondAction(t *testing.T) {
	s := newTestStore()
	tmpl := parseTemplates()
	mux := newMux(s, tmpl)

	doReq(t, mux, http.MethodPost, "/role", url.Values{"role": {"farmer"}}, "p1", "")
	doReq(t, mux, http.MethodPost, "/action", url.Values{"action": {"plant"}, "plot_id": {"0"}}, "p1", "")
	doReq(t, mux, http.MethodPost, "/action", url.Values{"action": {"plant"}, "plot_id": {"1"}}, "p1", "")

	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.Games["p1"]
	if g.Plots[1].State != PlotEmpty {
		t.Fatalf("second action inside the cooldown should be dropped")
	}
}

func TestActionResponseIncludesOOBFragments(t *testing.T) {
	s := newTestStore()
	tmpl := parseTemplates()
	mux := newMux(s, tmpl)

	doReq(t, mux, http.MethodPost, "/role", url.Values{"role": {"merchant"}}, "p1", "")

	s.mu.Lock()
	s.LastActionAt = map[string]time.Time{}
	s.mu.Unlock()

	body := doReq(t, mux, http.MethodPost, "/action", url.Values{"action": {"hold"}}, "p1", "").Body.String()
	for _, want := range []string{
		`id="header" hx-swap-oob="true"`,
		`hx-swap-oob="outerHTML:#toast"`,
		"Stock protected until tomorrow.",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("action response missing %q", want)
		}
	}
}

func TestFragGameDoesNotConsumeToast(t *testing.T) {
	s := newTestStore()
	tmpl := parseTemplates()
	mux := newMux(s, tmpl)

	doReq(t, mux, http.MethodPost, "/role", url.Values{"role": {"farmer"}}, "p1", "")
	s.mu.Lock()
	setToastLocked(s, "p1", "Tulip planted.")
	s.mu.Unlock()

	body := doReq(t, mux, http.MethodGet, "/frag/game", nil, "p1", "").Body.String()
	if !strings.Contains(body, "Tulip planted.") {
		t.Fatalf("fragment poll should include the current toast")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ToastByPlayer["p1"] != "Tulip planted." {
		t.Fatalf("fragment poll must not consume the toast")
	}
}

func TestAPIStateEndpoint(t *testing.T) {
	s := newTestStore()
	tmpl := parseTemplates()
	mux := newMux(s, tmpl)

	if r := doReq(t, mux, http.MethodGet, "/api/state", nil, "", ""); r.Code != http.StatusUnauthorized {
		t.Fatalf("state without cookie should be 401, got %d", r.Code)
	}
	if r := doReq(t, mux, http.MethodGet, "/api/state", nil, "p1", ""); r.Code != http.StatusNotFound {
		t.Fatalf("state without game should be 404, got %d", r.Code)
	}

	doReq(t, mux, http.MethodPost, "/role", url.Values{"role": {"merchant"}}, "p1", "")
	r := doReq(t, mux, http.MethodGet, "/api/state", nil, "p1", "")
	if r.Code != http.StatusOK {
		t.Fatalf("GET /api/state status=%d", r.Code)
	}
	var snap Snapshot
	if err := json.Unmarshal(r.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if snap.Role != "merchant" || snap.Coins != 1000 || snap.Day != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestRankingWithoutDatabase(t *testing.T) {
	s := newTestStore()
	tmpl := parseTemplates()
	mux := newMux(s, tmpl)

	r := doReq(t, mux, http.MethodGet, "/ranking", nil, "", "")
	if r.Code != http.StatusOK {
		t.Fatalf("GET /ranking status=%d", r.Code)
	}
	if !strings.Contains(r.Body.String(), "not available") {
		t.Fatalf("ranking without a repository should say so")
	}
}

func TestAdminAccessControl(t *testing.T) {
	s := newTestStore()
	tmpl := parseTemplates()
	mux := newMux(s, tmpl)

	if r := doReq(t, mux, http.MethodGet, "/admin", nil, "", "10.1.2.3:555"); r.Code != http.StatusForbidden {
		t.Fatalf("remote admin without token should be 403, got %d", r.Code)
	}
	if r := doReq(t, mux, http.MethodGet, "/admin?token="+adminToken, nil, "", "10.1.2.3:555"); r.Code != http.StatusOK {
		t.Fatalf("admin with token should be 200, got %d", r.Code)
	}
	if r := doReq(t, mux, http.MethodGet, "/admin", nil, "", "127.0.0.1:555"); r.Code != http.StatusOK {
		t.Fatalf("loopback admin should be 200, got %d", r.Code)
	}
}

func TestAdminForceTickAdvancesGames(t *testing.T) {
	s := newTestStore()
	tmpl := parseTemplates()
	mux := newMux(s, tmpl)

	doReq(t, mux, http.MethodPost, "/role", url.Values{"role": {"farmer"}}, "p1", "")
	r := doReq(t, mux, http.MethodPost, "/admin/tick", nil, "", "127.0.0.1:555")
	if r.Code != http.StatusSeeOther {
		t.Fatalf("POST /admin/tick status=%d", r.Code)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Games["p1"].Day != 2 {
		t.Fatalf("force tick should advance the day, got %d", s.Games["p1"].Day)
	}
}

func TestUnknownPathIs404(t *testing.T) {
	s := newTestStore()
	tmpl := parseTemplates()
	mux := newMux(s, tmpl)

	if r := doReq(t, mux, http.MethodGet, "/nope", nil, "", ""); r.Code != http.StatusNotFound {
		t.Fatalf("unknown path should 404, got %d", r.Code)
	}
}
