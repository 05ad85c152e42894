//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"time"

	"nexchat/domain"
	"nexchat/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Connection is one live, authenticated bidirectional channel.
// Send must not block: a connection that cannot keep up is dropped by its
// transport rather than stalling the fan-out.
type Connection interface {
	ID() string
	Identity() domain.Identity
	Send(evt event.ServerEvent) error
	Close() error
}

// IRegistry tracks the live connections of every online user.
type IRegistry interface {
	// Register adds conn to the user's set and returns the connections it
	// evicted (only in single-connection mode).
	Register(identity domain.Identity, conn Connection) []Connection
	// Unregister removes conn and reports whether it was still registered.
	Unregister(conn Connection) bool
	ConnectionsFor(userID string) []Connection
	All() []Connection
	OnlineUsers() []domain.Identity
}

// TokenVerifier turns an opaque credential into the identity it was issued for.
type TokenVerifier interface {
	Verify(token string) (domain.Identity, error)
}

// BlobUploader stores file content and returns a durable public URL.
type BlobUploader interface {
	Upload(ctx context.Context, name, contentType string, data []byte) (string, error)
}

// Censor rewrites message text before it is stored.
type Censor interface {
	Censor(text string) string
}

// Clock returns the current time. Injected so time windows can be tested.
type Clock func() time.Time
