package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/gigmarket/internal/app"
	"github.com/pscheid92/gigmarket/internal/domain"
	"github.com/pscheid92/gigmarket/internal/platform/config"
	"github.com/stretchr/testify/require"
)

const (
	testSigningSecret  = "httpserver-signing-secret-0123456789"
	testInternalSecret = "httpserver-internal-secret-012345678"
	csrfCookieName     = "csrf_token"
)

// --- Mock implementations ---

type mockAppService struct {
	getUserFn            func(ctx context.Context, userID int64) (*domain.User, error)
	issueRealtimeTokenFn func(ctx context.Context, userID int64, entityID, role string) (*app.RealtimeToken, error)
	listCartFn           func(ctx context.Context, actorID, ownerID int64) ([]domain.CartItem, error)
	addCartItemFn        func(ctx context.Context, actorID, ownerID int64, item domain.NewCartItem) (*domain.CartItem, error)
	updateCartItemFn     func(ctx context.Context, actorID, ownerID, itemID int64, quantity int) (*domain.CartItem, error)
	removeCartItemFn     func(ctx context.Context, actorID, ownerID, itemID int64) error
	clearCartFn          func(ctx context.Context, actorID, ownerID int64) (int64, error)
	listMessagesFn       func(ctx context.Context, userID, conversationID, beforeID int64, limit int) ([]domain.Message, error)
	postMessageFn        func(ctx context.Context, userID, conversationID int64, body string) (*domain.Message, error)
	markReadFn           func(ctx context.Context, userID, conversationID, messageID int64) (*domain.ReadState, error)
}

func (m *mockAppService) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	if m.getUserFn != nil {
		return m.getUserFn(ctx, userID)
	}
	return &domain.User{ID: userID}, nil
}

func (m *mockAppService) IssueRealtimeToken(ctx context.Context, userID int64, entityID, role string) (*app.RealtimeToken, error) {
	if m.issueRealtimeTokenFn != nil {
		return m.issueRealtimeTokenFn(ctx, userID, entityID, role)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAppService) ListCart(ctx context.Context, actorID, ownerID int64) ([]domain.CartItem, error) {
	if m.listCartFn != nil {
		return m.listCartFn(ctx, actorID, ownerID)
	}
	return []domain.CartItem{}, nil
}

func (m *mockAppService) AddCartItem(ctx context.Context, actorID, ownerID int64, item domain.NewCartItem) (*domain.CartItem, error) {
	if m.addCartItemFn != nil {
		return m.addCartItemFn(ctx, actorID, ownerID, item)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAppService) UpdateCartItem(ctx context.Context, actorID, ownerID, itemID int64, quantity int) (*domain.CartItem, error) {
	if m.updateCartItemFn != nil {
		return m.updateCartItemFn(ctx, actorID, ownerID, itemID, quantity)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAppService) RemoveCartItem(ctx context.Context, actorID, ownerID, itemID int64) error {
	if m.removeCartItemFn != nil {
		return m.removeCartItemFn(ctx, actorID, ownerID, itemID)
	}
	return errors.New("not implemented")
}

func (m *mockAppService) ClearCart(ctx context.Context, actorID, ownerID int64) (int64, error) {
	if m.clearCartFn != nil {
		return m.clearCartFn(ctx, actorID, ownerID)
	}
	return 0, errors.New("not implemented")
}

func (m *mockAppService) ListMessages(ctx context.Context, userID, conversationID, beforeID int64, limit int) ([]domain.Message, error) {
	if m.listMessagesFn != nil {
		return m.listMessagesFn(ctx, userID, conversationID, beforeID, limit)
	}
	return []domain.Message{}, nil
}

func (m *mockAppService) PostMessage(ctx context.Context, userID, conversationID int64, body string) (*domain.Message, error) {
	if m.postMessageFn != nil {
		return m.postMessageFn(ctx, userID, conversationID, body)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAppService) MarkRead(ctx context.Context, userID, conversationID, messageID int64) (*domain.ReadState, error) {
	if m.markReadFn != nil {
		return m.markReadFn(ctx, userID, conversationID, messageID)
	}
	return nil, errors.New("not implemented")
}

// --- Test helpers ---

func newTestServer(t *testing.T, app appService, opts ...func(*Server)) *Server {
	t.Helper()

	store := sessions.NewCookieStore([]byte("test-secret-key-32-bytes-long!!!"))
	store.Options = &sessions.Options{Path: "/", MaxAge: 3600}

	cfg := &config.Config{
		AppURL:                  "http://localhost:8080",
		SessionMaxAge:           time.Hour,
		RealtimeSigningSecret:   testSigningSecret,
		InternalBroadcastSecret: testInternalSecret,
	}

	srv := &Server{
		echo:         echo.New(),
		config:       cfg,
		app:          app,
		upgrader:     newUpgrader(cfg),
		sessionStore: store,
		startTime:    time.Now(),
	}

	for _, opt := range opts {
		opt(srv)
	}

	srv.registerRoutes()
	return srv
}

func withHealthChecks(checks ...HealthCheck) func(*Server) {
	return func(s *Server) {
		s.healthChecks = checks
	}
}

func withRealtime(rt Realtime) func(*Server) {
	return func(s *Server) {
		s.realtime = rt
	}
}

func withConfig(mutate func(*config.Config)) func(*Server) {
	return func(s *Server) {
		mutate(s.config)
	}
}

// setSessionUserID attaches a session to req. gorilla/sessions caches it in
// the request context, so the handler sees it without a cookie round trip.
func setSessionUserID(t *testing.T, srv *Server, req *http.Request, rec *httptest.ResponseRecorder, userID int64) {
	t.Helper()
	session, err := srv.sessionStore.Get(req, sessionName)
	require.NoError(t, err)
	session.Values[sessionKeyUserID] = userID
	require.NoError(t, session.Save(req, rec))
}

// fetchCSRFToken performs an authenticated GET and returns the CSRF cookie value.
func fetchCSRFToken(t *testing.T, srv *Server, path string, userID int64) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	setSessionUserID(t, srv, req, rec, userID)

	srv.echo.ServeHTTP(rec, req)

	for _, c := range rec.Result().Cookies() {
		if c.Name == csrfCookieName {
			return c.Value
		}
	}
	t.Fatalf("no %s cookie on GET %s (status %d)", csrfCookieName, path, rec.Code)
	return ""
}

// serveAuthenticated sends a mutating request with a session and a valid CSRF token.
func serveAuthenticated(t *testing.T, srv *Server, method, path, body string, userID int64, csrfPath string) *httptest.ResponseRecorder {
	t.Helper()
	token := fetchCSRFToken(t, srv, csrfPath, userID)

	req := httptest.NewRequest(method, path, stringsReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("X-CSRF-Token", token)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: token})
	rec := httptest.NewRecorder()
	setSessionUserID(t, srv, req, rec, userID)

	srv.echo.ServeHTTP(rec, req)
	return rec
}

func stringsReader(s string) *strings.Reader {
	return strings.NewReader(s)
}
