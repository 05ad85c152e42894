package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"nexchat/auth"
	"nexchat/contract"
	"nexchat/domain/chat"
	"nexchat/domain/event"
	"nexchat/errors"
	"nexchat/observability"
	"nexchat/services"

	"github.com/gorilla/websocket"
)

// Handler upgrades authenticated requests into live connections.
// The credential is verified before the upgrade: a request without a valid
// token never becomes a connection and never reaches the registry.
type Handler struct {
	log      *slog.Logger
	verifier contract.TokenVerifier
	chat     services.IChatService
	upgrader websocket.Upgrader
	config   Config
	metrics  *observability.Metrics
	ctx      context.Context
	pumps    sync.WaitGroup
}

// NewHandler builds the websocket endpoint. ctx bounds the work started by
// intents (uploads included); a client disconnecting does not cancel it.
func NewHandler(
	ctx context.Context,
	log *slog.Logger,
	verifier contract.TokenVerifier,
	chat services.IChatService,
	origins *OriginPolicy,
	config Config,
	metrics *observability.Metrics,
) *Handler {
	return &Handler{
		log:      log,
		verifier: verifier,
		chat:     chat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.Check,
		},
		config:  config.withDefaults(),
		metrics: metrics,
		ctx:     ctx,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	identity, err := auth.Authenticate(r, h.verifier)
	if err != nil {
		h.log.Info("Rejected unauthenticated connection", "remote_addr", r.RemoteAddr, "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": errors.PublicMessage(err)})
		return
	}

	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	conn := newConnection(socket, identity, h.config, h.log, h.metrics)
	h.chat.Connect(identity, conn)
	conn.log.Info("Connection established")

	go conn.writePump()
	h.pumps.Add(1)
	go func() {
		defer h.pumps.Done()
		conn.readPump(func(frame []byte) { h.dispatch(conn, frame) })
		h.chat.Disconnect(conn)
		conn.log.Info("Connection closed")
	}()
}

// dispatch applies one client intent. A failure is reported to this
// connection only, with enough context for the client to roll back.
func (h *Handler) dispatch(conn *Connection, frame []byte) {
	typ, intent, err := event.DecodeIntent(frame)
	failure := event.Error{Action: typ}

	if err == nil {
		switch cmd := intent.(type) {
		case chat.SendMessageCommand:
			failure.Recipient = cmd.Recipient
			_, err = h.chat.SendMessage(h.ctx, conn.Identity(), cmd)
		case chat.UpdateMessageCommand:
			failure.MessageID = cmd.MessageID
			_, err = h.chat.UpdateMessage(conn.Identity(), cmd)
		case chat.DeleteMessageCommand:
			failure.MessageID = cmd.MessageID
			_, err = h.chat.DeleteMessage(conn.Identity(), cmd)
		}
	}
	if err == nil {
		return
	}

	conn.log.Warn("Intent rejected", "action", typ, "message_id", failure.MessageID,
		"recipient", failure.Recipient, "error", err)
	failure.Message = errors.PublicMessage(err)
	if sendErr := conn.Send(failure); sendErr != nil {
		conn.log.Debug("Error event not delivered", "error", sendErr)
	}
}

// Wait blocks until every read pump has returned, meaning no intent is
// being dispatched anymore, or until ctx ends.
func (h *Handler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.pumps.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
