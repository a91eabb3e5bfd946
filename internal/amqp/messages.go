package amqp

import (
	"encoding/json"
	"time"

	"costwatch/internal/core"

	"github.com/shopspring/decimal"
)

// IngestRequestMessage asks a provider collector to backfill a date
// range. Published by the API when a query hits a coverage gap.
type IngestRequestMessage struct {
	JobID     string    `json:"job_id"`
	Provider  string    `json:"provider"`
	Start     core.Date `json:"start"`
	End       core.Date `json:"end"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

func NewIngestRequestMessage(jobID string, provider core.Cloud, start, end core.Date, reason string) *IngestRequestMessage {
	return &IngestRequestMessage{
		JobID:     jobID,
		Provider:  string(provider),
		Start:     start,
		End:       end,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

func (m *IngestRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func IngestRequestMessageFromJSON(data []byte) (*IngestRequestMessage, error) {
	var msg IngestRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// CostRecordPayload is one daily cost line as carried on the wire.
// Amounts travel as decimal strings so collectors in any language can
// emit them without float drift.
type CostRecordPayload struct {
	Date            core.Date           `json:"date"`
	ScopeKey        string              `json:"scope_key"`
	ScopeName       string              `json:"scope_name,omitempty"`
	ServiceKey      string              `json:"service_key"`
	ServiceName     string              `json:"service_name,omitempty"`
	RegionKey       string              `json:"region_key,omitempty"`
	Currency        string              `json:"currency"`
	Amount          decimal.Decimal     `json:"amount"`
	AmountSecondary decimal.NullDecimal `json:"amount_secondary,omitempty"`
}

// CostBatchMessage carries a batch of cost lines for one provider and
// job. Final marks the last batch of the job.
type CostBatchMessage struct {
	JobID     string              `json:"job_id"`
	Provider  string              `json:"provider"`
	Source    string              `json:"source"`
	Records   []CostRecordPayload `json:"records"`
	Final     bool                `json:"final"`
	Timestamp time.Time           `json:"timestamp"`
}

func (m *CostBatchMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func CostBatchMessageFromJSON(data []byte) (*CostBatchMessage, error) {
	var msg CostBatchMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
