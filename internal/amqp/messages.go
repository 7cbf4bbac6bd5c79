package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"receipts/internal/core"
)

// PeriodReconciledMessage announces that a period's aggregate was rewritten
// or removed. Consumers treat it as a hint and re-read the record store.
type PeriodReconciledMessage struct {
	Year         int       `json:"year"`
	Month        int       `json:"month"`
	Present      bool      `json:"present"`
	TotalAmount  int64     `json:"total_amount"`
	ReceiptCount int       `json:"receipt_count"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewPeriodReconciledMessage builds the message for p. A nil agg marks the
// record as removed.
func NewPeriodReconciledMessage(p core.Period, agg *core.Aggregate) *PeriodReconciledMessage {
	msg := &PeriodReconciledMessage{
		Year:      p.Year,
		Month:     p.Month,
		Timestamp: time.Now().UTC(),
	}
	if agg != nil {
		msg.Present = true
		msg.TotalAmount = agg.TotalAmount
		msg.ReceiptCount = agg.ReceiptCount
	}
	return msg
}

func (m *PeriodReconciledMessage) Period() core.Period {
	return core.Period{Year: m.Year, Month: m.Month}
}

func (m *PeriodReconciledMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// PeriodReconciledMessageFromJSON decodes and validates a message body.
func PeriodReconciledMessageFromJSON(data []byte) (*PeriodReconciledMessage, error) {
	var msg PeriodReconciledMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Period().Validate(); err != nil {
		return nil, fmt.Errorf("invalid period %d-%d: %w", msg.Year, msg.Month, err)
	}
	return &msg, nil
}
