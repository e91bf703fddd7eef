package tagger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/synaptica-ai/chartreview/pkg/common/logger"
	"github.com/synaptica-ai/chartreview/pkg/common/models"
)

const EventNoteIngested = "note_ingested"

// NoteStore is implemented by review.Repository.
type NoteStore interface {
	SaveNote(ctx context.Context, note models.Note) error
	SaveAnnotations(ctx context.Context, annotations []models.Annotation) error
}

type Service struct {
	tagger *Tagger
	store  NoteStore
}

func NewService(tagger *Tagger, store NoteStore) *Service {
	return &Service{tagger: tagger, store: store}
}

// HandleEvent consumes note_ingested events. Malformed payloads are logged
// and acknowledged; storage failures are returned so the message is retried.
func (s *Service) HandleEvent(ctx context.Context, event models.Event) error {
	if event.Type != EventNoteIngested {
		return nil
	}

	payload, err := decodeNote(event.Data)
	if err != nil {
		logger.Log.WithError(err).WithField("event_id", event.ID).Warn("dropping malformed note event")
		return nil
	}

	count, err := s.TagNote(ctx, payload.Note)
	if err != nil {
		return err
	}

	logger.WithPatient(payload.Note.PatientID).WithFields(map[string]interface{}{
		"event_id":    event.ID,
		"note_id":     payload.Note.NoteID,
		"annotations": count,
	}).Info("note tagged")
	return nil
}

// TagNote stores the note and its candidate annotations.
func (s *Service) TagNote(ctx context.Context, note models.Note) (int, error) {
	annotations := s.tagger.Tag(note)
	if err := s.store.SaveNote(ctx, note); err != nil {
		return 0, fmt.Errorf("save note %s: %w", note.NoteID, err)
	}
	if err := s.store.SaveAnnotations(ctx, annotations); err != nil {
		return 0, fmt.Errorf("save annotations for note %s: %w", note.NoteID, err)
	}
	return len(annotations), nil
}

func decodeNote(data map[string]interface{}) (models.NoteIngested, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return models.NoteIngested{}, err
	}
	var payload models.NoteIngested
	if err := json.Unmarshal(raw, &payload); err != nil {
		return models.NoteIngested{}, err
	}
	if payload.Note.NoteID == "" || payload.Note.PatientID == "" {
		return models.NoteIngested{}, fmt.Errorf("note_id and patient_id are required")
	}
	if payload.Note.TextDate.IsZero() {
		return models.NoteIngested{}, fmt.Errorf("note %s has no text_date", payload.Note.NoteID)
	}
	return payload, nil
}
