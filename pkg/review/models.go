package review

import (
	"encoding/json"
	"time"

	"github.com/synaptica-ai/chartreview/pkg/adjudication"
	"github.com/synaptica-ai/chartreview/pkg/common/models"
	"gorm.io/datatypes"
)

type noteModel struct {
	NoteID    string         `gorm:"primaryKey;column:note_id"`
	PatientID string         `gorm:"column:patient_id;index"`
	Text      string         `gorm:"column:text"`
	TextDate  time.Time      `gorm:"column:text_date"`
	Tags      datatypes.JSON `gorm:"column:tags"`
	CreatedAt time.Time      `gorm:"column:created_at"`
}

func (noteModel) TableName() string { return "notes" }

type annotationModel struct {
	ID             string     `gorm:"primaryKey;column:id"`
	NoteID         string     `gorm:"column:note_id;index"`
	PatientID      string     `gorm:"column:patient_id;index"`
	Sentence       string     `gorm:"column:sentence"`
	StartIndex     int        `gorm:"column:start_index"`
	EndIndex       int        `gorm:"column:end_index"`
	NoteStartIndex int        `gorm:"column:note_start_index"`
	NoteEndIndex   int        `gorm:"column:note_end_index"`
	Reviewed       bool       `gorm:"column:reviewed"`
	Duplicate      bool       `gorm:"column:duplicate"`
	Comment        string     `gorm:"column:comment"`
	EventDate      *time.Time `gorm:"column:event_date"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	UpdatedAt      time.Time  `gorm:"column:updated_at"`
}

func (annotationModel) TableName() string { return "annotations" }

// patientStateModel is the persisted adjudication snapshot, one row per patient.
type patientStateModel struct {
	PatientID         string         `gorm:"primaryKey;column:patient_id"`
	EventDate         *time.Time     `gorm:"column:event_date"`
	EventAnnotationID string         `gorm:"column:event_annotation_id"`
	AnnotationIDs     datatypes.JSON `gorm:"column:annotation_ids"`
	ReviewStatuses    datatypes.JSON `gorm:"column:review_statuses"`
	CurrentIndex      int            `gorm:"column:current_index"`
	UpdatedAt         time.Time      `gorm:"column:updated_at"`
}

func (patientStateModel) TableName() string { return "patient_states" }

func toNoteModel(note models.Note) noteModel {
	m := noteModel{
		NoteID:    note.NoteID,
		PatientID: note.PatientID,
		Text:      note.Text,
		TextDate:  note.TextDate,
		CreatedAt: time.Now().UTC(),
	}
	if data, err := json.Marshal(note.Tags); err == nil {
		m.Tags = datatypes.JSON(data)
	}
	return m
}

func (m noteModel) toNote() models.Note {
	note := models.Note{
		NoteID:    m.NoteID,
		PatientID: m.PatientID,
		Text:      m.Text,
		TextDate:  m.TextDate,
	}
	if len(m.Tags) > 0 {
		_ = json.Unmarshal(m.Tags, &note.Tags)
	}
	return note
}

func toAnnotationModel(a models.Annotation) annotationModel {
	now := time.Now().UTC()
	return annotationModel{
		ID:             a.ID,
		NoteID:         a.NoteID,
		PatientID:      a.PatientID,
		Sentence:       a.Sentence,
		StartIndex:     a.StartIndex,
		EndIndex:       a.EndIndex,
		NoteStartIndex: a.NoteStartIndex,
		NoteEndIndex:   a.NoteEndIndex,
		Reviewed:       a.Reviewed,
		Comment:        a.Comment,
		EventDate:      a.EventDate,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (m annotationModel) toAnnotation() models.Annotation {
	return models.Annotation{
		ID:             m.ID,
		NoteID:         m.NoteID,
		PatientID:      m.PatientID,
		Sentence:       m.Sentence,
		StartIndex:     m.StartIndex,
		EndIndex:       m.EndIndex,
		NoteStartIndex: m.NoteStartIndex,
		NoteEndIndex:   m.NoteEndIndex,
		Reviewed:       m.Reviewed,
		Comment:        m.Comment,
		EventDate:      m.EventDate,
	}
}

func toStateModel(patientID string, state adjudication.State) (patientStateModel, error) {
	ids, err := json.Marshal(state.AnnotationIDs)
	if err != nil {
		return patientStateModel{}, err
	}
	statuses, err := json.Marshal(state.ReviewStatuses)
	if err != nil {
		return patientStateModel{}, err
	}
	return patientStateModel{
		PatientID:         patientID,
		EventDate:         state.EventDate,
		EventAnnotationID: state.EventAnnotationID,
		AnnotationIDs:     datatypes.JSON(ids),
		ReviewStatuses:    datatypes.JSON(statuses),
		CurrentIndex:      state.CurrentIndex,
		UpdatedAt:         time.Now().UTC(),
	}, nil
}

func (m patientStateModel) toState() (adjudication.State, error) {
	state := adjudication.State{
		EventDate:         m.EventDate,
		EventAnnotationID: m.EventAnnotationID,
		AnnotationIDs:     []string{},
		ReviewStatuses:    []adjudication.ReviewStatus{},
		CurrentIndex:      m.CurrentIndex,
	}
	if len(m.AnnotationIDs) > 0 {
		if err := json.Unmarshal(m.AnnotationIDs, &state.AnnotationIDs); err != nil {
			return adjudication.State{}, err
		}
	}
	if len(m.ReviewStatuses) > 0 {
		if err := json.Unmarshal(m.ReviewStatuses, &state.ReviewStatuses); err != nil {
			return adjudication.State{}, err
		}
	}
	return state, nil
}
