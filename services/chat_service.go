package services

import (
	"context"
	"log/slog"
	"sync"

	"nexchat/contract"
	"nexchat/domain"
	"nexchat/domain/chat"
	"nexchat/errors"
	"nexchat/repositories"
	"nexchat/runtime"
)

// IChatService is the single entry point of both transports: the
// persistent channel and the REST companion surface share the same rules.
type IChatService interface {
	Connect(identity domain.Identity, conn contract.Connection)
	Disconnect(conn contract.Connection)
	SendMessage(ctx context.Context, sender domain.Identity, cmd chat.SendMessageCommand) (domain.Message, error)
	UpdateMessage(requester domain.Identity, cmd chat.UpdateMessageCommand) (domain.Message, error)
	DeleteMessage(requester domain.Identity, cmd chat.DeleteMessageCommand) (domain.Message, error)
	GetMessages(cmd chat.GetMessagesCommand) ([]domain.Message, error)
	OnlineUsers() []domain.Identity
	Shutdown()
}

type ChatService struct {
	// membership serializes a registry change with the snapshot it
	// announces, so connections receive presence in membership order.
	membership sync.Mutex
	log        *slog.Logger
	registry   contract.IRegistry
	presence   *runtime.PresenceBroadcaster
	router     *runtime.MessageRouter
	authorizer *runtime.MutationAuthorizer
	repository repositories.IMessageRepository
}

func NewChatService(
	log *slog.Logger,
	registry contract.IRegistry,
	presence *runtime.PresenceBroadcaster,
	router *runtime.MessageRouter,
	authorizer *runtime.MutationAuthorizer,
	repository repositories.IMessageRepository,
) *ChatService {
	return &ChatService{
		log:        log,
		registry:   registry,
		presence:   presence,
		router:     router,
		authorizer: authorizer,
		repository: repository,
	}
}

// Connect admits an authenticated connection and announces the new
// presence to everyone. Connections evicted in single-connection mode are
// closed before the announcement.
func (s *ChatService) Connect(identity domain.Identity, conn contract.Connection) {
	s.membership.Lock()
	defer s.membership.Unlock()

	for _, evicted := range s.registry.Register(identity, conn) {
		s.log.Info("Connection evicted", "user_id", identity.UserID, "connection_id", evicted.ID())
		_ = evicted.Close()
	}
	s.log.Info("User connected", "user_id", identity.UserID, "connection_id", conn.ID())
	s.presence.Broadcast()
}

// Disconnect is safe to call more than once for the same connection.
func (s *ChatService) Disconnect(conn contract.Connection) {
	s.membership.Lock()
	defer s.membership.Unlock()

	if !s.registry.Unregister(conn) {
		return
	}
	s.log.Info("User disconnected", "user_id", conn.Identity().UserID, "connection_id", conn.ID())
	s.presence.Broadcast()
}

func (s *ChatService) SendMessage(ctx context.Context, sender domain.Identity, cmd chat.SendMessageCommand) (domain.Message, error) {
	return s.router.Send(ctx, sender, cmd)
}

func (s *ChatService) UpdateMessage(requester domain.Identity, cmd chat.UpdateMessageCommand) (domain.Message, error) {
	if !requester.Valid() {
		return domain.Message{}, errors.ErrAuthentication
	}
	return s.authorizer.Update(cmd.MessageID, cmd.NewText, requester.UserID)
}

func (s *ChatService) DeleteMessage(requester domain.Identity, cmd chat.DeleteMessageCommand) (domain.Message, error) {
	if !requester.Valid() {
		return domain.Message{}, errors.ErrAuthentication
	}
	return s.authorizer.Delete(cmd.MessageID, requester.UserID)
}

// GetMessages returns the pair's history, tombstones included.
func (s *ChatService) GetMessages(cmd chat.GetMessagesCommand) ([]domain.Message, error) {
	if cmd.PeerID == "" {
		return nil, errors.ErrMissingRecipient
	}
	return s.repository.FindConversation(cmd.UserID, cmd.PeerID)
}

func (s *ChatService) OnlineUsers() []domain.Identity {
	return s.registry.OnlineUsers()
}

// Shutdown closes every live connection. Their transports then stop reading
// intents and unregister through Disconnect.
func (s *ChatService) Shutdown() {
	connections := s.registry.All()
	for _, conn := range connections {
		_ = conn.Close()
	}
	s.log.Info("Live connections closed", "count", len(connections))
}
