package amqp

import (
	"encoding/json"
	"time"
)

// ReportEventMessage announces a ledger mutation to downstream consumers
// (dashboards, backup mirrors). It carries only identifiers; consumers fetch
// the full report from the ledger if they need it.
type ReportEventMessage struct {
	ReportID  string    `json:"reportId"`
	Action    string    `json:"action"` // create, edit, delete
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}

func NewReportEventMessage(reportID, action, username string) *ReportEventMessage {
	return &ReportEventMessage{
		ReportID:  reportID,
		Action:    action,
		Username:  username,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes.
func (m *ReportEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ReportEventMessageFromJSON creates a message from JSON bytes.
func ReportEventMessageFromJSON(data []byte) (*ReportEventMessage, error) {
	var msg ReportEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
