package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"ledger/internal/notify"
)

// NotificationMessage carries a rendered notification from the API to the
// notifier worker.
type NotificationMessage struct {
	ID        string         `json:"id"`
	Message   notify.Message `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
}

func NewNotificationMessage(msg notify.Message) *NotificationMessage {
	return &NotificationMessage{
		ID:        uuid.NewString(),
		Message:   msg,
		Timestamp: time.Now().UTC(),
	}
}

func (m *NotificationMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// NotificationMessageFromJSON decodes a message and rejects one without a
// recipient, since it could never be delivered.
func NotificationMessageFromJSON(data []byte) (*NotificationMessage, error) {
	var msg NotificationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, errors.New("notification message has no id")
	}
	if err := msg.Message.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
