package handlers_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gormsqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/secondme-labs/match-backend/internal/act"
	"github.com/secondme-labs/match-backend/internal/auth"
	"github.com/secondme-labs/match-backend/internal/chat"
	"github.com/secondme-labs/match-backend/internal/config"
	"github.com/secondme-labs/match-backend/internal/httpapi"
	"github.com/secondme-labs/match-backend/internal/httpapi/middleware"
	"github.com/secondme-labs/match-backend/internal/models"
	"github.com/secondme-labs/match-backend/internal/secondme"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memSessions map[string]uint64

func (m memSessions) Save(ctx context.Context, sessionID string, userID uint64, ttl time.Duration) error {
	m[sessionID] = userID
	return nil
}

func (m memSessions) UserID(ctx context.Context, sessionID string) (uint64, error) {
	uid, ok := m[sessionID]
	if !ok {
		return 0, auth.ErrNoSession
	}
	return uid, nil
}

func (m memSessions) Delete(ctx context.Context, sessionID string) error {
	delete(m, sessionID)
	return nil
}

type stubPublisher struct {
	published []string
}

func (s *stubPublisher) PublishJob(ctx context.Context, jobID string) error {
	s.published = append(s.published, jobID)
	return nil
}

// newUpstream serves a canned SecondMe API: token exchange, profile, shades
// and the chat endpoint in both streaming and judgment form.
func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"code":0,"data":{"access_token":"at-1","refresh_token":"rt-1","expires_in":3600}}`)
	})
	mux.HandleFunc("/oauth/refresh", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"code":0,"data":{"access_token":"at-2","refresh_token":"rt-2","expires_in":3600}}`)
	})
	mux.HandleFunc("/api/secondme/user/info", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"code":0,"data":{"user_id":"sm-1","nickname":"Niko","avatar":"http://cdn/a.png"}}`)
	})
	mux.HandleFunc("/api/secondme/user/shades", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"code":0,"data":{"shades":[{"name":"hiking"},{"name":"jazz"}]}}`)
	})
	mux.HandleFunc("/api/secondme/v2/chat", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Stream bool `json:"stream"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Stream {
			io.WriteString(w, "Hi there")
			return
		}
		io.WriteString(w, `{"code":0,"data":{"result":{"score":88,"reasoning":"good overlap","strengths":["hiking"],"challenges":[]}}}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type env struct {
	router   *gin.Engine
	db       *gorm.DB
	sessions memSessions
	pub      *stubPublisher
	cfg      config.Config
}

func newEnv(t *testing.T, upstreamURL string, opts ...func(*config.Config)) *env {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &chat.Session{}, &chat.Message{}, &act.Job{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	cfg := config.Config{
		AppEnv:          "local",
		SessionSecret:   "test-secret",
		SessionTTL:      time.Hour,
		ClientID:        "client-id",
		ClientSecret:    "client-secret",
		RedirectURI:     "http://localhost:8080/auth/callback",
		OAuthURL:        upstreamURL + "/oauth/authorize",
		TokenEndpoint:   upstreamURL + "/oauth/token",
		RefreshEndpoint: upstreamURL + "/oauth/refresh",
		APIBaseURL:      upstreamURL,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	sessions := memSessions{}
	pub := &stubPublisher{}
	sm := secondme.NewClient(cfg, zerolog.Nop())
	router := httpapi.NewRouter(db, cfg, sessions, sm, pub, zerolog.Nop())

	return &env{router: router, db: db, sessions: sessions, pub: pub, cfg: cfg}
}

// login seeds a user with valid upstream tokens and returns the session
// cookie an authenticated browser would carry.
func (e *env) login(t *testing.T) (*models.User, *http.Cookie) {
	t.Helper()

	u := &models.User{
		SecondmeUserID: fmt.Sprintf("sm-%s-%d", t.Name(), len(e.sessions)+1),
		AccessToken:    "at-1",
		RefreshToken:   "rt-1",
		TokenExpiresAt: time.Now().Add(time.Hour),
		Nickname:       "Niko",
	}
	if err := e.db.Create(u).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}

	sid := fmt.Sprintf("sid-%d", u.ID)
	e.sessions[sid] = u.ID

	signed, err := auth.SignSessionToken(e.cfg.SessionSecret, sid, time.Hour)
	if err != nil {
		t.Fatalf("sign session token: %v", err)
	}
	return u, &http.Cookie{Name: middleware.SessionCookie, Value: signed}
}

func (e *env) do(t *testing.T, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	return e.doWithHeader(t, method, path, body, "", "", cookies...)
}

func (e *env) doWithHeader(t *testing.T, method, path, body, headerKey, headerVal string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if headerKey != "" {
		req.Header.Set(headerKey, headerVal)
	}
	for _, ck := range cookies {
		req.AddCookie(ck)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body: %s)", err, w.Body.String())
	}
	return env
}

func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, ck := range w.Result().Cookies() {
		if ck.Name == name {
			return ck
		}
	}
	return nil
}
