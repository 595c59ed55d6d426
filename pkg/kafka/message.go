package kafka

import (
	"encoding/json"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Message types carried on the import topic.
const (
	MessageTypeMemberImport   = "member.import"
	MessageTypeBatchCompleted = "batch.completed"
)

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	// Parsed content
	Import *ImportMessage
}

// ImportMessage is one raw member record arriving on the import topic.
// Flat sources put their column values straight into Fields. Sources with
// nested payloads ship the payload plus a path-to-field mapping instead,
// and the processor extracts the fields before normalization.
type ImportMessage struct {
	Type           string            `json:"type"` // "member.import"
	BatchID        string            `json:"batch_id,omitempty"`
	SourceName     string            `json:"source_name"`
	SourceRecordID string            `json:"source_record_id,omitempty"`
	CollectedAt    *time.Time        `json:"collected_at,omitempty"`
	Fields         map[string]any    `json:"fields,omitempty"`
	Payload        map[string]any    `json:"payload,omitempty"`
	FieldMappings  map[string]string `json:"field_mappings,omitempty"`
}

// HasNestedPayload reports whether the record's fields still need to be
// extracted from a nested payload.
func (m *ImportMessage) HasNestedPayload() bool {
	return len(m.Payload) > 0 && len(m.FieldMappings) > 0
}

// ToRawRecord converts the message into the builder's input shape. Fields
// must already be flat; nested payloads go through the extractor first.
func (m *ImportMessage) ToRawRecord() *models.RawMemberRecord {
	record := &models.RawMemberRecord{
		SourceName:     m.SourceName,
		SourceRecordID: m.SourceRecordID,
		Fields:         m.Fields,
	}
	if m.BatchID != "" {
		batchID := m.BatchID
		record.ImportBatchID = &batchID
	}
	return record
}

// ParseImportMessage parses the message value as a member import message
func (m *IncomingMessage) ParseImportMessage() error {
	var msg ImportMessage
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		return err
	}
	m.Import = &msg
	return nil
}

// GetSourceName returns the import source name, falling back to the
// message header when the body omits it.
func (m *IncomingMessage) GetSourceName() string {
	if m.Import != nil && m.Import.SourceName != "" {
		return m.Import.SourceName
	}
	return m.Headers["source_name"]
}

// GetBatchID returns the import batch this record belongs to, if any.
func (m *IncomingMessage) GetBatchID() string {
	if m.Import != nil && m.Import.BatchID != "" {
		return m.Import.BatchID
	}
	return m.Headers["batch_id"]
}

// GetSourceRecordID returns the source's identifier for the record. Falls
// back to the Kafka key so replayed messages stay idempotent even when the
// source never assigned row ids.
func (m *IncomingMessage) GetSourceRecordID() string {
	if m.Import != nil && m.Import.SourceRecordID != "" {
		return m.Import.SourceRecordID
	}
	return m.Key
}

// BatchCompletedMessage signals that an import source finished publishing
// a batch. The processor finalizes the batch counters and kicks off a
// duplicate detection run over the refreshed directory.
type BatchCompletedMessage struct {
	Type       string     `json:"type"` // "batch.completed"
	BatchID    string     `json:"batch_id"`
	SourceName string     `json:"source_name,omitempty"`
	Status     string     `json:"status"` // "success", "partial", "failed"
	Timestamp  time.Time  `json:"timestamp"`
	Stats      BatchStats `json:"stats,omitempty"`
}

// BatchStats contains statistics reported by the import source
type BatchStats struct {
	TotalRecords int   `json:"total_records"`
	SourceFiles  int   `json:"source_files"`
	DurationMs   int64 `json:"duration_ms"`
}

// IsBatchCompleted checks if the message is a batch.completed event
func (m *IncomingMessage) IsBatchCompleted() bool {
	// Check header first
	if msgType := m.Headers["type"]; msgType == MessageTypeBatchCompleted {
		return true
	}

	// Try parsing as batch completed
	var evt BatchCompletedMessage
	if err := json.Unmarshal(m.Value, &evt); err == nil {
		return evt.Type == MessageTypeBatchCompleted
	}

	return false
}

// ParseBatchCompleted parses the message as a batch.completed event
func (m *IncomingMessage) ParseBatchCompleted() (*BatchCompletedMessage, error) {
	var evt BatchCompletedMessage
	if err := json.Unmarshal(m.Value, &evt); err != nil {
		return nil, err
	}
	return &evt, nil
}
