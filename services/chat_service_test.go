package services

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"nexchat/contract"
	"nexchat/domain"
	"nexchat/domain/chat"
	"nexchat/domain/event"
	"nexchat/errors"
	"nexchat/mocks"
	"nexchat/repositories"
	"nexchat/runtime"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newChatService(t *testing.T, registry contract.IRegistry) *ChatService {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	repository := repositories.NewMessageRepository(db, log, nil)
	return NewChatService(log, registry,
		runtime.NewPresenceBroadcaster(registry, log, nil),
		runtime.NewMessageRouter(log, registry, repository, nil, nil, nil, runtime.DefaultRetryConfig(), nil),
		runtime.NewMutationAuthorizer(log, registry, repository, nil, nil, domain.MutabilityWindow, nil),
		repository,
	)
}

func TestChatService_Connect_Closes_Evicted_And_Broadcasts(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	registry := mocks.NewMockIRegistry(ctrl)
	svc := newChatService(t, registry)

	alice := domain.Identity{UserID: "a", Username: "alice"}
	previous := mocks.NewMockConnection(ctrl)
	current := mocks.NewMockConnection(ctrl)
	current.EXPECT().ID().Return("c2").AnyTimes()
	previous.EXPECT().ID().Return("c1").AnyTimes()

	// Given a previous connection is evicted
	registry.EXPECT().Register(alice, current).Return([]contract.Connection{previous}).Times(1)
	previous.EXPECT().Close().Return(nil).Times(1)

	// Then presence is recomputed and pushed to every live connection
	snapshot := []domain.Identity{alice}
	registry.EXPECT().OnlineUsers().Return(snapshot).Times(1)
	registry.EXPECT().All().Return([]contract.Connection{current}).Times(1)
	current.EXPECT().Send(event.OnlineUsers(snapshot)).Return(nil).Times(1)

	svc.Connect(alice, current)
}

func TestChatService_Disconnect_Broadcasts_Only_Once(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	registry := mocks.NewMockIRegistry(ctrl)
	svc := newChatService(t, registry)

	conn := mocks.NewMockConnection(ctrl)
	conn.EXPECT().ID().Return("c1").AnyTimes()
	conn.EXPECT().Identity().Return(domain.Identity{UserID: "a", Username: "alice"}).AnyTimes()

	gomock.InOrder(
		registry.EXPECT().Unregister(conn).Return(true),
		registry.EXPECT().OnlineUsers().Return(nil),
		registry.EXPECT().All().Return(nil),
		registry.EXPECT().Unregister(conn).Return(false),
	)

	svc.Disconnect(conn)
	svc.Disconnect(conn)
}

func TestChatService_Presence_Follows_Membership_Order(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := runtime.NewRegistry(false)
	svc := newChatService(t, registry)

	alice := domain.Identity{UserID: "a", Username: "alice"}
	watcherIdentity := domain.Identity{UserID: "w", Username: "watcher"}

	var (
		mu        sync.Mutex
		snapshots []event.OnlineUsers
		entered   = make(chan struct{})
		release   = make(chan struct{})
		held      bool
	)
	watcher := mocks.NewMockConnection(ctrl)
	watcher.EXPECT().ID().Return("cw").AnyTimes()
	watcher.EXPECT().Identity().Return(watcherIdentity).AnyTimes()
	watcher.EXPECT().Send(gomock.Any()).DoAndReturn(func(evt event.ServerEvent) error {
		snapshot := evt.(event.OnlineUsers)
		mu.Lock()
		snapshots = append(snapshots, snapshot)
		hold := len(snapshot) == 2 && !held
		held = held || hold
		mu.Unlock()
		if hold {
			close(entered)
			<-release
		}
		return nil
	}).AnyTimes()

	aliceConn := mocks.NewMockConnection(ctrl)
	aliceConn.EXPECT().ID().Return("ca").AnyTimes()
	aliceConn.EXPECT().Identity().Return(alice).AnyTimes()
	aliceConn.EXPECT().Send(gomock.Any()).Return(nil).AnyTimes()

	// Given the watcher is online
	svc.Connect(watcherIdentity, watcher)

	// When alice connects and disconnects while the watcher is slow to take
	// the first announcement
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		svc.Connect(alice, aliceConn)
	}()
	<-entered
	go func() {
		defer wg.Done()
		svc.Disconnect(aliceConn)
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	// Then the last snapshot the watcher received matches the registry
	mu.Lock()
	defer mu.Unlock()
	req.Len(snapshots, 3)
	req.Equal(event.OnlineUsers{watcherIdentity}, snapshots[len(snapshots)-1])
	req.Equal([]domain.Identity{watcherIdentity}, registry.OnlineUsers())
}

func TestChatService_Send_Edit_Delete_And_History(t *testing.T) {
	req := require.New(t)
	registry := runtime.NewRegistry(false)
	svc := newChatService(t, registry)
	alice := domain.Identity{UserID: "a", Username: "alice"}
	bob := domain.Identity{UserID: "b", Username: "bob"}

	message, err := svc.SendMessage(context.Background(), alice, chat.SendMessageCommand{Recipient: "b", Text: "hi"})
	req.NoError(err)

	_, err = svc.UpdateMessage(bob, chat.UpdateMessageCommand{MessageID: message.ID.String(), NewText: "hijack"})
	req.ErrorIs(err, errors.ErrUnauthorized)
	_, err = svc.UpdateMessage(alice, chat.UpdateMessageCommand{MessageID: message.ID.String(), NewText: "hello"})
	req.NoError(err)
	_, err = svc.DeleteMessage(domain.Identity{}, chat.DeleteMessageCommand{MessageID: message.ID.String()})
	req.ErrorIs(err, errors.ErrAuthentication)

	history, err := svc.GetMessages(chat.GetMessagesCommand{UserID: "b", PeerID: "a"})
	req.NoError(err)
	req.Len(history, 1)
	req.Equal("hello", history[0].Text)
	req.True(history[0].IsEdited)

	_, err = svc.GetMessages(chat.GetMessagesCommand{UserID: "b"})
	req.ErrorIs(err, errors.ErrMissingRecipient)
}
