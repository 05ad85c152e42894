package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nexchat/domain"
	"nexchat/domain/chat"
	"nexchat/domain/event"

	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

// echoServer answers every send intent with the confirmed message, the way
// the server echoes to the sender's own connections.
func echoServer(t *testing.T, token string) *httptest.Server {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws" || r.Header.Get("Authorization") != "Bearer "+token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		send := func(evt event.ServerEvent) {
			frame, _ := event.Encode(evt)
			_ = conn.WriteMessage(websocket.TextMessage, frame)
		}
		send(event.OnlineUsers{alice})
		for {
			_, frame, err := conn.ReadMessage()
			if err != nil {
				return
			}
			typ, intent, err := event.DecodeIntent(frame)
			if err != nil || typ != event.SendMessage {
				continue
			}
			cmd := intent.(chat.SendMessageCommand)
			m, _ := domain.NewMessage(alice.UserID, cmd.Recipient, cmd.Text, nil, time.Now())
			send(event.NewReceiveMessage(m))
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestClient_Send_Is_Reconciled_With_Echo(t *testing.T) {
	req := require.New(t)
	server := echoServer(t, "secret-token")
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	// Given a connected client
	c, err := Dial(context.Background(), log, server.URL, "secret-token", alice)
	req.NoError(err)
	defer c.Close()

	echoed := make(chan domain.Message, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = c.Listen(ctx, func(evt event.ServerEvent) {
			if received, ok := evt.(event.ReceiveMessage); ok {
				echoed <- received.Message
			}
		})
	}()

	// When a message is sent
	tempID, err := c.Send(chat.SendMessageCommand{Recipient: "b", Text: "hi"})
	req.NoError(err)
	req.True(IsTempID(tempID))

	// Then once the echo is in, the conversation holds only the confirmed entry
	var m domain.Message
	select {
	case m = <-echoed:
	case <-time.After(3 * time.Second):
		t.Fatal("no echo received")
	}
	entries := c.Reconciler().Conversation("b")
	req.Len(entries, 1)
	req.Equal(Confirmed, entries[0].State)
	req.Equal(m.ID, entries[0].Message.ID)
	req.Equal(event.OnlineUsers{alice}, event.OnlineUsers(c.Reconciler().Online()))
}

func TestDial_Reports_Rejected_Handshake(t *testing.T) {
	server := echoServer(t, "secret-token")

	_, err := Dial(context.Background(), logs.GetLoggerFromLevel(slog.LevelDebug), server.URL, "wrong", alice)

	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.ErrorContains(t, err, "status 401")
}

func TestAPI_History_And_Errors(t *testing.T) {
	req := require.New(t)
	m, err := domain.NewMessage("a", "b", "hi", nil, time.Now())
	req.NoError(err)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"authentication failed: invalid or expired token"}`))
			return
		}
		_ = json.NewEncoder(w).Encode([]domain.Message{m})
	}))
	defer server.Close()

	history, err := NewAPI(server.URL, "tok").History(context.Background(), "b")
	req.NoError(err)
	req.Len(history, 1)
	req.Equal(m.ID, history[0].ID)

	_, err = NewAPI(server.URL, "bad").History(context.Background(), "b")
	req.ErrorContains(err, "invalid or expired token")
}

func TestWebsocketURL(t *testing.T) {
	tests := map[string]string{
		"http://localhost:8080":   "ws://localhost:8080/ws",
		"https://chat.example/":   "wss://chat.example/ws",
		"https://chat.example/v1": "wss://chat.example/v1/ws",
	}
	for in, expected := range tests {
		got, err := websocketURL(in)
		require.NoError(t, err)
		require.Equal(t, expected, got)
	}
}
