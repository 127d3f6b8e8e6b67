package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// Operations carried by TransactionChangedMessage.
const (
	OpCreated = "created"
	OpDeleted = "deleted"
)

// TransactionChangedMessage tells other processes that a user's collection
// changed. It carries no transaction data; receivers reload from the store.
type TransactionChangedMessage struct {
	UserID        string    `json:"user_id"`
	Op            string    `json:"op"`
	TransactionID string    `json:"transaction_id"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewTransactionChangedMessage creates a message stamped with the current time
func NewTransactionChangedMessage(userID, op, transactionID string) *TransactionChangedMessage {
	return &TransactionChangedMessage{
		UserID:        userID,
		Op:            op,
		TransactionID: transactionID,
		Timestamp:     time.Now(),
	}
}

func (m *TransactionChangedMessage) Validate() error {
	if m.UserID == "" {
		return errors.New("message without user_id")
	}
	if m.Op != OpCreated && m.Op != OpDeleted {
		return errors.New("message with unknown op " + m.Op)
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (m *TransactionChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransactionChangedMessageFromJSON parses and validates a message
func TransactionChangedMessageFromJSON(data []byte) (*TransactionChangedMessage, error) {
	var msg TransactionChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
