package adjudication

import (
	"fmt"
	"strings"

	"github.com/synaptica-ai/chartreview/pkg/common/models"
)

// FilterResult is the reviewer-facing view of a raw annotation list.
type FilterResult struct {
	// Annotations are the survivors in their original order.
	Annotations    []models.Annotation
	AnnotationIDs  []string
	ReviewStatuses []ReviewStatus
	// Duplicates holds the ids of dropped annotations, highest input index first.
	Duplicates []string
	// DuplicateOf maps each dropped id to the id of the occurrence that was kept.
	DuplicateOf map[string]string
}

// ValidateAnnotation checks the fields every adjudication step relies on.
func ValidateAnnotation(a models.Annotation) error {
	switch {
	case a.ID == "":
		return ValidationError{Record: "annotation", reason: fmt.Errorf("id: %w", ErrMissingField)}
	case a.NoteID == "":
		return ValidationError{Record: "annotation", ID: a.ID, reason: fmt.Errorf("note_id: %w", ErrMissingField)}
	case a.StartIndex < 0 || a.EndIndex < a.StartIndex:
		return ValidationError{Record: "annotation", ID: a.ID, reason: fmt.Errorf("sentence span [%d,%d): %w", a.StartIndex, a.EndIndex, ErrInvalidOffsets)}
	case a.NoteStartIndex < 0 || a.NoteEndIndex < a.NoteStartIndex:
		return ValidationError{Record: "annotation", ID: a.ID, reason: fmt.Errorf("note span [%d,%d): %w", a.NoteStartIndex, a.NoteEndIndex, ErrInvalidOffsets)}
	case strings.TrimSpace(a.Sentence) == "":
		return ValidationError{Record: "annotation", ID: a.ID, reason: fmt.Errorf("sentence: %w", ErrMissingField)}
	}
	return nil
}

// FilterAnnotations drops later occurrences of an already seen sentence.
// With hideDuplicates the seen set spans the whole patient; otherwise it is
// cleared whenever the note id changes between consecutive entries.
// The first occurrence always survives, whatever its review flag.
func FilterAnnotations(annotations []models.Annotation, hideDuplicates bool) (FilterResult, error) {
	for _, a := range annotations {
		if err := ValidateAnnotation(a); err != nil {
			return FilterResult{}, err
		}
	}

	dropped := make([]bool, len(annotations))
	keptBy := make(map[string]string)
	duplicateOf := make(map[string]string)
	prevNote := ""
	for i, a := range annotations {
		if !hideDuplicates && i > 0 && a.NoteID != prevNote {
			keptBy = make(map[string]string)
		}
		prevNote = a.NoteID

		key := normalizeSentence(a.Sentence)
		if original, seen := keptBy[key]; seen {
			dropped[i] = true
			duplicateOf[a.ID] = original
			continue
		}
		keptBy[key] = a.ID
	}

	result := FilterResult{
		Annotations:    make([]models.Annotation, 0, len(annotations)),
		AnnotationIDs:  make([]string, 0, len(annotations)),
		ReviewStatuses: make([]ReviewStatus, 0, len(annotations)),
		Duplicates:     make([]string, 0, len(duplicateOf)),
		DuplicateOf:    duplicateOf,
	}
	for i := len(annotations) - 1; i >= 0; i-- {
		if dropped[i] {
			result.Duplicates = append(result.Duplicates, annotations[i].ID)
		}
	}
	for i, a := range annotations {
		if dropped[i] {
			continue
		}
		status := Unreviewed
		if a.Reviewed {
			status = Reviewed
		}
		result.Annotations = append(result.Annotations, a)
		result.AnnotationIDs = append(result.AnnotationIDs, a.ID)
		result.ReviewStatuses = append(result.ReviewStatuses, status)
	}

	return result, nil
}

func normalizeSentence(sentence string) string {
	return strings.ToLower(strings.TrimSpace(sentence))
}
