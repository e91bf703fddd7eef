package audit

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Entry is one adjudication event as recorded in the audit trail.
type Entry struct {
	EventID    string                 `json:"event_id"`
	Type       string                 `json:"type"`
	PatientID  string                 `json:"patient_id"`
	Actor      string                 `json:"actor"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
	RecordedAt time.Time              `json:"recorded_at"`
}

type auditEventModel struct {
	EventID    string         `gorm:"primaryKey;column:event_id"`
	Type       string         `gorm:"column:type"`
	PatientID  string         `gorm:"column:patient_id;index"`
	Actor      string         `gorm:"column:actor"`
	Payload    datatypes.JSON `gorm:"column:payload"`
	OccurredAt time.Time      `gorm:"column:occurred_at;index"`
	RecordedAt time.Time      `gorm:"column:recorded_at"`
}

func (auditEventModel) TableName() string { return "adjudication_audit_events" }

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&auditEventModel{})
}

// Append stores entry once; a redelivered event id is ignored.
func (r *Repository) Append(ctx context.Context, entry Entry) error {
	payload, _ := json.Marshal(entry.Payload)
	row := &auditEventModel{
		EventID:    entry.EventID,
		Type:       entry.Type,
		PatientID:  entry.PatientID,
		Actor:      entry.Actor,
		Payload:    datatypes.JSON(payload),
		OccurredAt: entry.OccurredAt,
		RecordedAt: time.Now().UTC(),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error
}

func (r *Repository) ListByPatient(ctx context.Context, patientID string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows []auditEventModel
	if err := r.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("occurred_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, Entry{
			EventID:    row.EventID,
			Type:       row.Type,
			PatientID:  row.PatientID,
			Actor:      row.Actor,
			Payload:    jsonMap(row.Payload),
			OccurredAt: row.OccurredAt,
			RecordedAt: row.RecordedAt,
		})
	}
	return entries, nil
}

func jsonMap(data datatypes.JSON) map[string]interface{} {
	if len(data) == 0 {
		return nil
	}
	var result map[string]interface{}
	_ = json.Unmarshal(data, &result)
	return result
}
