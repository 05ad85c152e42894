package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"nexchat/domain"
	"nexchat/domain/chat"
	"nexchat/domain/event"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Client is one live connection plus the local state it feeds.
type Client struct {
	log        *slog.Logger
	conn       *websocket.Conn
	reconciler *Reconciler
	writeMu    sync.Mutex
}

// Dial opens the persistent channel. serverURL is the http(s) base URL of
// the server; the token travels as a bearer header.
func Dial(ctx context.Context, log *slog.Logger, serverURL, token string, self domain.Identity) (*Client, error) {
	endpoint, err := websocketURL(serverURL)
	if err != nil {
		return nil, err
	}
	header := http.Header{"Authorization": []string{"Bearer " + token}}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, header)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", endpoint, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	return &Client{log: log, conn: conn, reconciler: NewReconciler(self)}, nil
}

func websocketURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

func (c *Client) Reconciler() *Reconciler { return c.reconciler }

// Send adds the optimistic entry then emits the intent. The temporary id
// is returned so callers can follow the entry until it is confirmed.
func (c *Client) Send(cmd chat.SendMessageCommand) (string, error) {
	tempID := c.reconciler.AddPending(cmd)
	if err := c.emit(event.SendMessage, cmd); err != nil {
		c.reconciler.Reject(event.Error{Action: event.SendMessage, Recipient: cmd.Recipient})
		return "", err
	}
	return tempID, nil
}

func (c *Client) Update(id uuid.UUID, text string) error {
	c.reconciler.EditLocally(id, text)
	if err := c.emit(event.UpdateMessage, chat.UpdateMessageCommand{MessageID: id.String(), NewText: text}); err != nil {
		c.reconciler.Reject(event.Error{Action: event.UpdateMessage, MessageID: id.String()})
		return err
	}
	return nil
}

func (c *Client) Delete(id uuid.UUID) error {
	c.reconciler.DeleteLocally(id)
	if err := c.emit(event.DeleteMessage, chat.DeleteMessageCommand{MessageID: id.String()}); err != nil {
		c.reconciler.Reject(event.Error{Action: event.DeleteMessage, MessageID: id.String()})
		return err
	}
	return nil
}

func (c *Client) emit(t event.Type, intent any) error {
	frame, err := event.EncodeIntent(t, intent)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

// Listen reads server events until ctx ends or the connection drops. Each
// event is merged into the reconciler before onEvent sees it.
func (c *Client) Listen(ctx context.Context, onEvent func(event.ServerEvent)) error {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}
		evt, err := event.Decode(frame)
		if err != nil {
			c.log.Debug("Ignoring undecodable frame", "error", err)
			continue
		}
		c.reconciler.Apply(evt)
		if onEvent != nil {
			onEvent(evt)
		}
	}
}

func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.conn.Close()
}

// API is the REST side used for history and directory lookups.
type API struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewAPI(baseURL, token string) *API {
	return &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (a *API) Profile(ctx context.Context) (domain.Identity, error) {
	var identity domain.Identity
	return identity, a.get(ctx, "/profile", &identity)
}

func (a *API) People(ctx context.Context) ([]domain.Person, error) {
	var people []domain.Person
	return people, a.get(ctx, "/people", &people)
}

func (a *API) History(ctx context.Context, peer string) ([]domain.Message, error) {
	var messages []domain.Message
	return messages, a.get(ctx, "/messages/"+url.PathEscape(peer), &messages)
}

func (a *API) get(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Message string `json:"message"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &body) != nil || body.Message == "" {
			body.Message = strings.TrimSpace(string(raw))
		}
		return fmt.Errorf("GET %s: %s: %s", path, resp.Status, body.Message)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}
