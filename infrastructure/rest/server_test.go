package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nexchat/auth"
	"nexchat/domain"
	"nexchat/domain/chat"
	"nexchat/observability"
	"nexchat/repositories"
	"nexchat/runtime"
	"nexchat/services"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

const strongPassword = "Str0ng!pass"

type testAPI struct {
	server *httptest.Server
	chat   *services.ChatService
}

type fixedStats struct{}

func (fixedStats) GetLatest() observability.ProcessStats {
	return observability.ProcessStats{PID: 42, Status: "running"}
}

func newTestAPI(t *testing.T, registerLimit int) *testAPI {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	registry := runtime.NewRegistry(false)
	promRegistry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(promRegistry)
	messages := repositories.NewMessageRepository(db, log, nil)
	chatService := services.NewChatService(log, registry,
		runtime.NewPresenceBroadcaster(registry, log, metrics),
		runtime.NewMessageRouter(log, registry, messages, nil, nil, nil, runtime.RetryConfig{MaxAttempts: 1}, metrics),
		runtime.NewMutationAuthorizer(log, registry, messages, nil, nil, 0, metrics),
		messages,
	)
	tokens := auth.NewJWTService("test-secret", time.Hour)
	accounts := services.NewAuthService(
		repositories.NewUserRepository(db),
		repositories.NewThrottleRepository(db),
		tokens,
		registerLimit,
	)
	server := NewServer(log, tokens, accounts, chatService, fixedStats{}, Options{
		Environment:   "test",
		TokenDuration: time.Hour,
		Gatherer:      promRegistry,
	})
	httpServer := httptest.NewServer(server.Handler())
	t.Cleanup(httpServer.Close)
	return &testAPI{server: httpServer, chat: chatService}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, a.server.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token})
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	content, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, content
}

func (a *testAPI) register(t *testing.T, username string) services.Session {
	t.Helper()
	resp, body := a.do(t, http.MethodPost, "/register", "", auth.RegisterRequest{Username: username, Password: strongPassword})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var session services.Session
	require.NoError(t, json.Unmarshal(body, &session))
	return session
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func TestRegister_Issues_Session_Cookie(t *testing.T) {
	req := require.New(t)
	api := newTestAPI(t, 0)

	// When alice registers with surrounding spaces in her name
	resp, body := api.do(t, http.MethodPost, "/register", "", auth.RegisterRequest{Username: "  alice ", Password: strongPassword})

	// Then she gets a token for the trimmed name, also set as cookie
	req.Equal(http.StatusCreated, resp.StatusCode)
	session := decode[services.Session](t, body)
	req.Equal("alice", session.Identity.Username)
	req.NotEmpty(session.Identity.UserID)
	req.NotEmpty(session.Token)

	cookies := resp.Cookies()
	req.Len(cookies, 1)
	req.Equal(auth.CookieName, cookies[0].Name)
	req.Equal(session.Token, cookies[0].Value)
	req.True(cookies[0].HttpOnly)
	req.Equal(3600, cookies[0].MaxAge)
}

func TestRegister_Rejections(t *testing.T) {
	api := newTestAPI(t, 0)
	api.register(t, "alice")

	tests := []struct {
		name     string
		body     any
		status   int
		expected string
	}{
		{name: "taken username", body: auth.RegisterRequest{Username: "alice", Password: strongPassword}, status: http.StatusConflict, expected: "user already exists"},
		{name: "uppercase username", body: auth.RegisterRequest{Username: "Alice", Password: strongPassword}, status: http.StatusBadRequest, expected: "username should be in small letters only (a-z, 0-9, underscores allowed)"},
		{name: "weak password", body: auth.RegisterRequest{Username: "bob", Password: "password"}, status: http.StatusBadRequest, expected: "password must be at least 8 characters long and include uppercase, lowercase, number, and special character"},
		{name: "not json", body: "{", status: http.StatusBadRequest, expected: "invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			resp, body := api.do(t, http.MethodPost, "/register", "", tt.body)
			req.Equal(tt.status, resp.StatusCode)
			req.Equal(map[string]string{"message": tt.expected}, decode[map[string]string](t, body))
		})
	}
}

func TestRegister_Throttled_Per_Address(t *testing.T) {
	req := require.New(t)

	// Given one registration per address and day
	api := newTestAPI(t, 1)
	api.register(t, "alice")

	// When the same address registers again
	resp, body := api.do(t, http.MethodPost, "/register", "", auth.RegisterRequest{Username: "bob", Password: strongPassword})

	// Then it is refused
	req.Equal(http.StatusTooManyRequests, resp.StatusCode)
	req.Equal("too many accounts created from this address today", decode[map[string]string](t, body)["message"])
}

func TestLogin_And_Profile(t *testing.T) {
	req := require.New(t)
	api := newTestAPI(t, 0)
	registered := api.register(t, "alice")

	// Given a wrong password, login fails without telling why
	resp, body := api.do(t, http.MethodPost, "/login", "", auth.LoginRequest{Username: "alice", Password: "Wr0ng!pass"})
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
	req.Equal("invalid credentials", decode[map[string]string](t, body)["message"])

	// When the right password is given
	resp, body = api.do(t, http.MethodPost, "/login", "", auth.LoginRequest{Username: "alice", Password: strongPassword})
	req.Equal(http.StatusOK, resp.StatusCode)
	session := decode[services.Session](t, body)
	req.Equal(registered.Identity, session.Identity)

	// Then the profile is reachable with the token only
	resp, _ = api.do(t, http.MethodGet, "/profile", "", nil)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
	resp, body = api.do(t, http.MethodGet, "/profile", session.Token, nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal(registered.Identity, decode[domain.Identity](t, body))
}

func TestLogout_Clears_Cookie(t *testing.T) {
	req := require.New(t)
	api := newTestAPI(t, 0)

	resp, _ := api.do(t, http.MethodPost, "/logout", "", nil)

	req.Equal(http.StatusOK, resp.StatusCode)
	cookies := resp.Cookies()
	req.Len(cookies, 1)
	req.Empty(cookies[0].Value)
	req.Negative(cookies[0].MaxAge)
}

func TestPeople_Lists_Registered_Users(t *testing.T) {
	req := require.New(t)
	api := newTestAPI(t, 0)
	alice := api.register(t, "alice")
	bob := api.register(t, "bob")

	resp, body := api.do(t, http.MethodGet, "/people", alice.Token, nil)

	req.Equal(http.StatusOK, resp.StatusCode)
	req.ElementsMatch([]domain.Person{
		{ID: alice.Identity.UserID, Username: "alice"},
		{ID: bob.Identity.UserID, Username: "bob"},
	}, decode[[]domain.Person](t, body))
}

func TestMessages_History_Edit_And_Delete(t *testing.T) {
	req := require.New(t)
	api := newTestAPI(t, 0)
	alice := api.register(t, "alice")
	bob := api.register(t, "bob")

	// Given alice sent bob a message over the live channel
	sent, err := api.chat.SendMessage(context.Background(), alice.Identity,
		chat.SendMessageCommand{Recipient: bob.Identity.UserID, Text: "hello"})
	req.NoError(err)
	path := "/messages/" + sent.ID.String()

	// Then bob sees it in his history with alice
	resp, body := api.do(t, http.MethodGet, "/messages/"+alice.Identity.UserID, bob.Token, nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	history := decode[[]domain.Message](t, body)
	req.Len(history, 1)
	req.Equal(sent.ID, history[0].ID)

	// When bob tries to edit it, he is refused
	resp, body = api.do(t, http.MethodPut, path, bob.Token, map[string]string{"newText": "hijacked"})
	req.Equal(http.StatusForbidden, resp.StatusCode)
	req.Equal("only the sender can modify this message", decode[map[string]string](t, body)["message"])

	// When alice edits it
	resp, body = api.do(t, http.MethodPut, path, alice.Token, map[string]string{"newText": "hello there"})
	req.Equal(http.StatusOK, resp.StatusCode)
	edited := decode[domain.Message](t, body)
	req.Equal("hello there", edited.Text)
	req.True(edited.IsEdited)

	// And then deletes it
	resp, body = api.do(t, http.MethodDelete, path, alice.Token, nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.True(decode[domain.Message](t, body).IsDeleted)

	// Then the history keeps a tombstone
	_, body = api.do(t, http.MethodGet, "/messages/"+bob.Identity.UserID, alice.Token, nil)
	history = decode[[]domain.Message](t, body)
	req.Len(history, 1)
	req.True(history[0].IsDeleted)
	req.Empty(history[0].Text)

	// And a second delete reports the tombstone
	resp, _ = api.do(t, http.MethodDelete, path, alice.Token, nil)
	req.Equal(http.StatusForbidden, resp.StatusCode)
}

func TestMessages_Unknown_Id_Is_Not_Found(t *testing.T) {
	req := require.New(t)
	api := newTestAPI(t, 0)
	alice := api.register(t, "alice")

	resp, _ := api.do(t, http.MethodDelete, "/messages/0190d7a4-0000-7000-8000-000000000000", alice.Token, nil)

	req.Equal(http.StatusNotFound, resp.StatusCode)
}

func TestHealth_And_Metrics(t *testing.T) {
	req := require.New(t)
	api := newTestAPI(t, 0)
	alice := api.register(t, "alice")
	_, err := api.chat.SendMessage(context.Background(), alice.Identity, chat.SendMessageCommand{Recipient: "someone", Text: "hi"})
	req.NoError(err)

	// Health reports the environment and the last process sample
	resp, body := api.do(t, http.MethodGet, "/health", "", nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	health := decode[map[string]any](t, body)
	req.Equal("ok", health["status"])
	req.Equal("test", health["environment"])
	req.Equal(float64(42), health["process"].(map[string]any)["pid"])

	// Metrics expose the message counter
	resp, body = api.do(t, http.MethodGet, "/metrics", "", nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Contains(string(body), `nexchat_messages_total{kind="text"} 1`)
}
