package runtime

import (
	"fmt"
	"log/slog"
	"time"

	"nexchat/contract"
	"nexchat/domain"
	"nexchat/domain/event"
	"nexchat/errors"
	"nexchat/observability"
	"nexchat/repositories"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	actionUpdate = "update"
	actionDelete = "delete"
)

// MutationAuthorizer applies edits and deletions on behalf of a message's
// sender, within the mutability window, and re-broadcasts the outcome.
type MutationAuthorizer struct {
	log        *slog.Logger
	registry   contract.IRegistry
	repository repositories.IMessageRepository
	censor     contract.Censor
	clock      contract.Clock
	window     time.Duration
	metrics    *observability.Metrics
}

func NewMutationAuthorizer(
	log *slog.Logger,
	registry contract.IRegistry,
	repository repositories.IMessageRepository,
	censor contract.Censor,
	clock contract.Clock,
	window time.Duration,
	metrics *observability.Metrics,
) *MutationAuthorizer {
	return &MutationAuthorizer{
		log:        log,
		registry:   registry,
		repository: repository,
		censor:     lo.Ternary[contract.Censor](censor == nil, noCensor{}, censor),
		clock:      lo.Ternary(clock == nil, contract.Clock(time.Now), clock),
		window:     lo.Ternary(window <= 0, domain.MutabilityWindow, window),
		metrics:    metrics,
	}
}

// Update replaces the text of a message. Checks run against the stored
// record inside the same transaction as the write.
func (a *MutationAuthorizer) Update(messageID, newText, requester string) (domain.Message, error) {
	if newText == "" {
		return domain.Message{}, fmt.Errorf("%w: new text is required", errors.ErrInvalidIntent)
	}
	text := a.censor.Censor(newText)
	updated, err := a.mutate(actionUpdate, messageID, requester, func(m *domain.Message, now time.Time) {
		m.Edit(text, now)
	})
	if err != nil {
		return domain.Message{}, err
	}
	fanout(a.registry, a.log, a.metrics, event.NewMessageUpdated(updated), updated.Sender, updated.Recipient)
	return updated, nil
}

// Delete turns a message into a tombstone. The record stays in history.
func (a *MutationAuthorizer) Delete(messageID, requester string) (domain.Message, error) {
	deleted, err := a.mutate(actionDelete, messageID, requester, func(m *domain.Message, now time.Time) {
		m.Tombstone(now)
	})
	if err != nil {
		return domain.Message{}, err
	}
	fanout(a.registry, a.log, a.metrics, event.NewMessageDeleted(deleted), deleted.Sender, deleted.Recipient)
	return deleted, nil
}

func (a *MutationAuthorizer) mutate(action, messageID, requester string, apply func(m *domain.Message, now time.Time)) (domain.Message, error) {
	id, err := uuid.Parse(messageID)
	if err != nil {
		a.metrics.Mutation(action, "not_found")
		return domain.Message{}, errors.ErrMessageNotFound
	}

	result, err := a.repository.Mutate(id, func(m *domain.Message) error {
		now := a.clock()
		if err := a.authorize(*m, requester, now); err != nil {
			return err
		}
		apply(m, now)
		return nil
	})
	if err != nil {
		a.metrics.Mutation(action, outcome(err))
		a.log.Warn("Mutation rejected", "action", action, "message_id", messageID, "user_id", requester, "error", err)
		return domain.Message{}, err
	}
	a.metrics.Mutation(action, "ok")
	return result, nil
}

// authorize reports the first rule the requester breaks, checked in the
// order: ownership, tombstone, window.
func (a *MutationAuthorizer) authorize(m domain.Message, requester string, now time.Time) error {
	switch {
	case m.Sender != requester:
		return errors.ErrUnauthorized
	case m.IsDeleted:
		return errors.ErrMessageDeleted
	case !domain.WithinWindow(m, now, a.window):
		return errors.ErrMutationWindowExpired
	}
	return nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, errors.ErrMessageNotFound):
		return "not_found"
	case errors.Is(err, errors.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, errors.ErrMessageDeleted):
		return "deleted"
	case errors.Is(err, errors.ErrMutationWindowExpired):
		return "expired"
	default:
		return "error"
	}
}
