package events

import (
	"encoding/json"
	"time"
)

// Operations a transaction event can describe. The mirror worker replays
// them against the spreadsheet in order of arrival.
const (
	OpUpsert = "upsert"
	OpDelete = "delete"
)

// TransactionEvent is a lightweight notification that a transaction changed.
// It carries only the id and the operation; consumers fetch the current
// record from the store, so a stale event after later edits is harmless.
type TransactionEvent struct {
	Op            string    `json:"op"`
	TransactionID string    `json:"transaction_id"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewTransactionEvent(op, transactionID string) *TransactionEvent {
	return &TransactionEvent{
		Op:            op,
		TransactionID: transactionID,
		Timestamp:     time.Now(),
	}
}

func (e *TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func TransactionEventFromJSON(data []byte) (*TransactionEvent, error) {
	var e TransactionEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
