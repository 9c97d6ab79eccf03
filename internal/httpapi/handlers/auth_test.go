package handlers_test

import (
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/secondme-labs/match-backend/internal/auth"
	"github.com/secondme-labs/match-backend/internal/config"
	"github.com/secondme-labs/match-backend/internal/httpapi/middleware"
	"github.com/secondme-labs/match-backend/internal/models"
)

func TestLogin_RedirectsToAuthorizeURL(t *testing.T) {
	up := newUpstream(t)
	e := newEnv(t, up.URL)

	w := e.do(t, http.MethodGet, "/auth/login", "")
	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", w.Code)
	}

	loc, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	if !strings.HasPrefix(loc.String(), up.URL+"/oauth/authorize") {
		t.Fatalf("unexpected authorize url: %s", loc)
	}

	q := loc.Query()
	if q.Get("client_id") != "client-id" || q.Get("response_type") != "code" {
		t.Fatalf("missing oauth params: %v", q)
	}
	if q.Get("scope") != "user.info user.info.shades chat" {
		t.Fatalf("unexpected scope: %q", q.Get("scope"))
	}

	stateCk := findCookie(w, "oauth_state")
	if stateCk == nil || stateCk.Value == "" {
		t.Fatalf("state cookie not set")
	}
	if q.Get("state") != stateCk.Value {
		t.Fatalf("state param %q does not match cookie %q", q.Get("state"), stateCk.Value)
	}
}

func callback(t *testing.T, e *env, query string, cookies ...*http.Cookie) *http.Cookie {
	t.Helper()
	w := e.do(t, http.MethodGet, "/auth/callback?"+query, "", cookies...)
	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d: %s", w.Code, w.Body.String())
	}
	if loc := w.Header().Get("Location"); loc != "/" {
		t.Fatalf("unexpected redirect: %s", loc)
	}
	sessCk := findCookie(w, middleware.SessionCookie)
	if sessCk == nil || sessCk.Value == "" {
		t.Fatalf("session cookie not set")
	}
	return sessCk
}

func TestCallback_CreatesUserAndSession(t *testing.T) {
	e := newEnv(t, newUpstream(t).URL)

	stateCk := &http.Cookie{Name: "oauth_state", Value: "xyz"}
	sessCk := callback(t, e, "code=abc&state=xyz", stateCk)

	sid, err := auth.ParseSessionToken(e.cfg.SessionSecret, sessCk.Value)
	if err != nil {
		t.Fatalf("session cookie not a valid token: %v", err)
	}
	if _, ok := e.sessions[sid]; !ok {
		t.Fatalf("session %q not saved in the store", sid)
	}

	var user models.User
	if err := e.db.Where("secondme_user_id = ?", "sm-1").First(&user).Error; err != nil {
		t.Fatalf("user not created: %v", err)
	}
	if user.AccessToken != "at-1" || user.RefreshToken != "rt-1" {
		t.Fatalf("tokens not stored: %q %q", user.AccessToken, user.RefreshToken)
	}
	if user.Nickname != "Niko" {
		t.Fatalf("profile not stored: %q", user.Nickname)
	}
}

func TestCallback_RepeatLoginUpsertsOneRow(t *testing.T) {
	e := newEnv(t, newUpstream(t).URL)

	stateCk := &http.Cookie{Name: "oauth_state", Value: "xyz"}
	callback(t, e, "code=abc&state=xyz", stateCk)
	callback(t, e, "code=def&state=xyz", stateCk)

	var cnt int64
	if err := e.db.Model(&models.User{}).Count(&cnt).Error; err != nil {
		t.Fatalf("count users: %v", err)
	}
	if cnt != 1 {
		t.Fatalf("expected one user row after two logins, got %d", cnt)
	}
	if len(e.sessions) != 2 {
		t.Fatalf("each login should mint its own session, got %d", len(e.sessions))
	}
}

func TestCallback_MissingCode(t *testing.T) {
	e := newEnv(t, newUpstream(t).URL)

	w := e.do(t, http.MethodGet, "/auth/callback?state=xyz", "",
		&http.Cookie{Name: "oauth_state", Value: "xyz"})
	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/?error=no_code" {
		t.Fatalf("unexpected redirect: %s", loc)
	}
}

func TestCallback_LenientStateMismatchContinues(t *testing.T) {
	e := newEnv(t, newUpstream(t).URL)

	// no state cookie at all, as WebViews are wont to do
	callback(t, e, "code=abc&state=xyz")

	var cnt int64
	if err := e.db.Model(&models.User{}).Count(&cnt).Error; err != nil {
		t.Fatalf("count users: %v", err)
	}
	if cnt != 1 {
		t.Fatalf("lenient mode should still log the user in, got %d rows", cnt)
	}
}

func TestCallback_StrictStateMismatchRejects(t *testing.T) {
	e := newEnv(t, newUpstream(t).URL, func(cfg *config.Config) {
		cfg.OAuthStateStrict = true
	})

	w := e.do(t, http.MethodGet, "/auth/callback?code=abc&state=xyz", "",
		&http.Cookie{Name: "oauth_state", Value: "other"})
	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/?error=state_mismatch" {
		t.Fatalf("unexpected redirect: %s", loc)
	}

	var cnt int64
	if err := e.db.Model(&models.User{}).Count(&cnt).Error; err != nil {
		t.Fatalf("count users: %v", err)
	}
	if cnt != 0 {
		t.Fatalf("strict mode must not create users, got %d rows", cnt)
	}
}

func TestLogout_ClearsSession(t *testing.T) {
	e := newEnv(t, newUpstream(t).URL)
	_, cookie := e.login(t)
	if len(e.sessions) != 1 {
		t.Fatalf("expected one live session")
	}

	w := e.do(t, http.MethodPost, "/auth/logout", "", cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("logout: %d %s", w.Code, w.Body.String())
	}
	if env := decodeEnvelope(t, w); env.Code != 0 {
		t.Fatalf("unexpected envelope code %d", env.Code)
	}
	if len(e.sessions) != 0 {
		t.Fatalf("session not deleted from the store")
	}

	cleared := findCookie(w, middleware.SessionCookie)
	if cleared == nil || cleared.Value != "" || cleared.MaxAge >= 0 {
		t.Fatalf("session cookie not cleared: %+v", cleared)
	}

	// the old cookie must no longer authenticate
	w = e.do(t, http.MethodGet, "/sessions", "", cookie)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", w.Code)
	}
}

func TestPing(t *testing.T) {
	e := newEnv(t, newUpstream(t).URL)

	w := e.do(t, http.MethodGet, "/ping", "")
	if w.Code != http.StatusOK {
		t.Fatalf("ping: %d", w.Code)
	}
	if env := decodeEnvelope(t, w); env.Code != 0 {
		t.Fatalf("unexpected envelope code %d", env.Code)
	}
}
