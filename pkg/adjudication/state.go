package adjudication

import (
	"fmt"
	"time"
)

// State is the persisted adjudication snapshot of one patient.
// AnnotationIDs and ReviewStatuses are index aligned; CurrentIndex is -1
// only while AnnotationIDs is empty.
type State struct {
	EventDate         *time.Time     `json:"event_date,omitempty"`
	EventAnnotationID string         `json:"event_annotation_id,omitempty"`
	AnnotationIDs     []string       `json:"annotation_ids"`
	ReviewStatuses    []ReviewStatus `json:"review_statuses"`
	CurrentIndex      int            `json:"current_index"`
}

func NewState() State {
	return State{
		AnnotationIDs:  []string{},
		ReviewStatuses: []ReviewStatus{},
		CurrentIndex:   -1,
	}
}

// Validate checks the structural shape only.
func (s State) Validate() error {
	if len(s.AnnotationIDs) != len(s.ReviewStatuses) {
		return fmt.Errorf("%d annotation ids but %d statuses: %w", len(s.AnnotationIDs), len(s.ReviewStatuses), ErrInvalidState)
	}
	if len(s.AnnotationIDs) == 0 {
		if s.CurrentIndex != -1 && s.CurrentIndex != 0 {
			return fmt.Errorf("current index %d on empty state: %w", s.CurrentIndex, ErrInvalidState)
		}
		return nil
	}
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.AnnotationIDs) {
		return fmt.Errorf("current index %d out of [0,%d): %w", s.CurrentIndex, len(s.AnnotationIDs), ErrInvalidState)
	}
	for i, status := range s.ReviewStatuses {
		switch status {
		case Unreviewed, Reviewed, Skipped:
		default:
			return fmt.Errorf("status %d at index %d: %w", int(status), i, ErrInvalidState)
		}
	}
	return nil
}

// Clone returns a deep copy so callers never alias the handler's slices.
func (s State) Clone() State {
	out := s
	out.AnnotationIDs = append([]string{}, s.AnnotationIDs...)
	out.ReviewStatuses = append([]ReviewStatus{}, s.ReviewStatuses...)
	if s.EventDate != nil {
		d := *s.EventDate
		out.EventDate = &d
	}
	return out
}

// IndexOf returns the position of id in AnnotationIDs or -1.
func (s State) IndexOf(id string) int {
	for i, candidate := range s.AnnotationIDs {
		if candidate == id {
			return i
		}
	}
	return -1
}

// StatusCounts tallies statuses, always reporting all three keys.
func (s State) StatusCounts() map[ReviewStatus]int {
	counts := map[ReviewStatus]int{Unreviewed: 0, Reviewed: 0, Skipped: 0}
	for _, status := range s.ReviewStatuses {
		counts[status]++
	}
	return counts
}
