//go:generate go run go.uber.org/mock/mockgen -source=throttle.go -destination=../mocks/mock_throttle_repository.go -package=mocks
package repositories

import (
	"encoding/binary"
	"time"

	"nexchat/errors"

	"github.com/dgraph-io/badger/v4"
)

type IThrottleRepository interface {
	// Hit counts one attempt for key and reports whether it is still within
	// limit for the current window.
	Hit(key string, limit int, window time.Duration) (bool, error)
}

// ThrottleRepository keeps fixed-window counters in badger. Entries carry a
// TTL equal to the window so that they expire on their own.
type ThrottleRepository struct {
	db  *badger.DB
	now func() time.Time
}

func NewThrottleRepository(db *badger.DB) ThrottleRepository {
	return ThrottleRepository{db: db, now: time.Now}
}

func (t ThrottleRepository) Hit(key string, limit int, window time.Duration) (bool, error) {
	bucket := t.now().UnixNano() / int64(window)
	k := binary.BigEndian.AppendUint64([]byte("throttle:"+key+":"), uint64(bucket))

	var allowed bool
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = t.db.Update(func(txn *badger.Txn) error {
			var count uint64
			item, err := txn.Get(k)
			switch {
			case err == nil:
				if err = item.Value(func(val []byte) error {
					count = binary.BigEndian.Uint64(val)
					return nil
				}); err != nil {
					return err
				}
			case !errors.Is(err, badger.ErrKeyNotFound):
				return err
			}
			if count >= uint64(limit) {
				allowed = false
				return nil
			}
			allowed = true
			entry := badger.NewEntry(k, binary.BigEndian.AppendUint64(nil, count+1)).WithTTL(window)
			return txn.SetEntry(entry)
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	return allowed, err
}
