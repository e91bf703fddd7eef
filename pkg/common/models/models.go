package models

import (
	"time"
)

// Event Bus models
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // note_ingested, annotation_adjudicated, event_date_marked, ...
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

// Annotation is one candidate occurrence of a query pattern inside a note.
// StartIndex/EndIndex are rune offsets within Sentence, NoteStartIndex/NoteEndIndex
// rune offsets within the note text.
type Annotation struct {
	ID             string     `json:"id"`
	NoteID         string     `json:"note_id"`
	PatientID      string     `json:"patient_id"`
	Sentence       string     `json:"sentence"`
	StartIndex     int        `json:"start_index"`
	EndIndex       int        `json:"end_index"`
	NoteStartIndex int        `json:"note_start_index"`
	NoteEndIndex   int        `json:"note_end_index"`
	Reviewed       bool       `json:"reviewed"`
	Comment        string     `json:"comments,omitempty"`
	EventDate      *time.Time `json:"event_date,omitempty"`
}

type Note struct {
	NoteID    string    `json:"note_id"`
	PatientID string    `json:"patient_id"`
	Text      string    `json:"text"`
	TextDate  time.Time `json:"text_date"`
	Tags      []string  `json:"tags,omitempty"` // up to five free-form tags
}

// NoteIngested is the payload of a note_ingested event.
type NoteIngested struct {
	Note Note `json:"note"`
}

const MaxNoteTags = 5
