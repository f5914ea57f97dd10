package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"gastos/internal/core"
)

const (
	EventExpenseCreated = "expense.created"
	EventExpenseDeleted = "expense.deleted"
)

// ExpenseEvent is published after an expense is created or deleted.
// It carries the fields a consumer needs without a round trip to the store.
type ExpenseEvent struct {
	Type       string     `json:"type"`
	ID         int64      `json:"id"`
	CategoryID int64      `json:"categoria_id"`
	Amount     core.Money `json:"monto"`
	Date       core.Date  `json:"fecha"`
	Timestamp  time.Time  `json:"timestamp"`
}

// NewExpenseEvent builds an event of the given type for e
func NewExpenseEvent(eventType string, e core.Expense, now time.Time) *ExpenseEvent {
	return &ExpenseEvent{
		Type:       eventType,
		ID:         e.ID,
		CategoryID: e.CategoryID,
		Amount:     e.Amount,
		Date:       e.Date,
		Timestamp:  now.UTC(),
	}
}

// ToJSON converts the event to JSON bytes
func (m *ExpenseEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExpenseEventFromJSON creates an event from JSON bytes
func ExpenseEventFromJSON(data []byte) (*ExpenseEvent, error) {
	var msg ExpenseEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Type {
	case EventExpenseCreated, EventExpenseDeleted:
	default:
		return nil, fmt.Errorf("unknown event type %q", msg.Type)
	}
	return &msg, nil
}
