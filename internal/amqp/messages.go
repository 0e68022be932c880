package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"budgetflow/internal/core"
)

// AlertNotificationMessage carries a rendered alert from the API process to
// the notifier worker. It is self-contained so the worker needs no database.
type AlertNotificationMessage struct {
	AlertID   string    `json:"alert_id"`
	Owner     string    `json:"owner"`
	Type      string    `json:"type"`
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	Timestamp time.Time `json:"timestamp"`
}

func NewAlertNotificationMessage(n core.Notification) *AlertNotificationMessage {
	return &AlertNotificationMessage{
		AlertID:   n.AlertID,
		Owner:     n.Owner,
		Type:      string(n.Type),
		Recipient: n.Recipient,
		Subject:   n.Subject,
		Body:      n.Body,
		CreatedAt: n.CreatedAt,
		Timestamp: time.Now(),
	}
}

// Notification converts the message back to the domain form.
func (m *AlertNotificationMessage) Notification() core.Notification {
	return core.Notification{
		AlertID:   m.AlertID,
		Owner:     m.Owner,
		Type:      core.AlertType(m.Type),
		Recipient: m.Recipient,
		Subject:   m.Subject,
		Body:      m.Body,
		CreatedAt: m.CreatedAt,
	}
}

func (m *AlertNotificationMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func AlertNotificationMessageFromJSON(data []byte) (*AlertNotificationMessage, error) {
	var msg AlertNotificationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.AlertID == "" || msg.Owner == "" {
		return nil, errors.New("alert notification missing alert id or owner")
	}
	return &msg, nil
}
