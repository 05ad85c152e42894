package runtime

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"nexchat/contract"
	"nexchat/domain"
	"nexchat/domain/chat"
	"nexchat/domain/event"
	"nexchat/errors"
	"nexchat/observability"
	"nexchat/repositories"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

var validate = validator.New()

// MessageRouter turns a send intent into a persisted message and delivers
// it to every live connection of both participants.
type MessageRouter struct {
	log        *slog.Logger
	registry   contract.IRegistry
	repository repositories.IMessageRepository
	uploader   contract.BlobUploader
	censor     contract.Censor
	clock      contract.Clock
	retry      RetryConfig
	metrics    *observability.Metrics
}

func NewMessageRouter(
	log *slog.Logger,
	registry contract.IRegistry,
	repository repositories.IMessageRepository,
	uploader contract.BlobUploader,
	censor contract.Censor,
	clock contract.Clock,
	retry RetryConfig,
	metrics *observability.Metrics,
) *MessageRouter {
	return &MessageRouter{
		log:        log,
		registry:   registry,
		repository: repository,
		uploader:   uploader,
		censor:     lo.Ternary[contract.Censor](censor == nil, noCensor{}, censor),
		clock:      lo.Ternary(clock == nil, contract.Clock(time.Now), clock),
		retry:      retry,
		metrics:    metrics,
	}
}

// Send validates, uploads the attachment if any, persists and only then
// fans out. Any error means nothing was persisted nor delivered.
func (r *MessageRouter) Send(ctx context.Context, sender domain.Identity, cmd chat.SendMessageCommand) (domain.Message, error) {
	if !sender.Valid() {
		return domain.Message{}, errors.ErrAuthentication
	}
	if cmd.File != nil && cmd.File.Data == "" {
		cmd.File = nil
	}
	if err := validateSend(cmd); err != nil {
		return domain.Message{}, err
	}

	var fileURL *string
	if cmd.File != nil {
		url, err := r.upload(ctx, sender, *cmd.File)
		if err != nil {
			return domain.Message{}, err
		}
		fileURL = &url
	}

	message, err := domain.NewMessage(sender.UserID, cmd.Recipient, r.censor.Censor(cmd.Text), fileURL, r.clock())
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}
	if err = r.repository.Insert(message); err != nil {
		r.log.Error("Message not persisted", "user_id", sender.UserID, "recipient", cmd.Recipient, "error", err)
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}
	r.metrics.MessageSent(fileURL != nil)

	delivered := fanout(r.registry, r.log, r.metrics, event.NewReceiveMessage(message), message.Sender, message.Recipient)
	r.log.Debug("Message routed", "message_id", message.ID, "user_id", sender.UserID,
		"recipient", message.Recipient, "deliveries", delivered)
	return message, nil
}

func validateSend(cmd chat.SendMessageCommand) error {
	if strings.TrimSpace(cmd.Recipient) == "" {
		return errors.ErrMissingRecipient
	}
	if !cmd.HasContent() {
		return errors.ErrEmptyMessage
	}
	if err := validate.Struct(cmd); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidIntent, err)
	}
	return nil
}

func (r *MessageRouter) upload(ctx context.Context, sender domain.Identity, file chat.FileAttachment) (string, error) {
	data, err := DecodeFileData(file.Data)
	if err != nil {
		return "", err
	}
	contentType := mimetype.Detect(data).String()

	start := time.Now()
	url, err := Retry(ctx, r.retry, func(ctx context.Context) (string, error) {
		return r.uploader.Upload(ctx, file.Name, contentType, data)
	})
	r.metrics.ObserveUpload(time.Since(start))
	if err != nil {
		r.log.Warn("Upload failed", "user_id", sender.UserID, "file", file.Name, "error", err)
		if errors.Is(err, errors.ErrUpload) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", errors.ErrUpload, err)
	}
	return url, nil
}

// DecodeFileData accepts a data URL ("data:<mime>;base64,<payload>") or
// bare base64 and returns the raw bytes.
func DecodeFileData(data string) ([]byte, error) {
	payload := data
	if strings.HasPrefix(data, "data:") {
		header, body, ok := strings.Cut(data, ",")
		if !ok || !strings.HasSuffix(header, ";base64") {
			return nil, errors.ErrInvalidFile
		}
		payload = body
	}
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		if decoded, err = base64.RawStdEncoding.DecodeString(payload); err != nil {
			return nil, errors.ErrInvalidFile
		}
	}
	if len(decoded) == 0 {
		return nil, errors.ErrInvalidFile
	}
	return decoded, nil
}

type noCensor struct{}

func (noCensor) Censor(text string) string { return text }
