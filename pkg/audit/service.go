package audit

import (
	"context"

	"github.com/synaptica-ai/chartreview/pkg/common/logger"
	"github.com/synaptica-ai/chartreview/pkg/common/models"
	"github.com/synaptica-ai/chartreview/pkg/observability/metrics"
)

type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListByPatient(ctx context.Context, patientID string, limit int) ([]Entry, error)
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// HandleEvent records an adjudication event. Events without a patient are
// acknowledged and skipped.
func (s *Service) HandleEvent(ctx context.Context, event models.Event) error {
	patientID, _ := event.Data["patient_id"].(string)
	if event.ID == "" || patientID == "" {
		logger.Log.WithField("event_type", event.Type).Warn("audit event missing id or patient")
		return nil
	}

	actor, _ := event.Data["actor"].(string)
	if actor == "" {
		actor = "system"
	}

	payload := make(map[string]interface{}, len(event.Data))
	for k, v := range event.Data {
		if k == "patient_id" || k == "actor" {
			continue
		}
		payload[k] = v
	}

	if err := s.store.Append(ctx, Entry{
		EventID:    event.ID,
		Type:       event.Type,
		PatientID:  patientID,
		Actor:      actor,
		Payload:    payload,
		OccurredAt: event.Timestamp,
	}); err != nil {
		return err
	}
	metrics.ObserveAuditEvent(event.Type)
	return nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID string, limit int) ([]Entry, error) {
	return s.store.ListByPatient(ctx, patientID, limit)
}
