package adjudication

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/chartreview/pkg/common/models"
)

func anno(id, noteID, sentence string, reviewed bool) models.Annotation {
	return models.Annotation{
		ID:        id,
		NoteID:    noteID,
		PatientID: "p1",
		Sentence:  sentence,
		Reviewed:  reviewed,
	}
}

func TestFilterAnnotationsPatientScope(t *testing.T) {
	input := []models.Annotation{
		anno("1", "N1", "S1", true),
		anno("2", "N1", "S1", false),
		anno("3", "N2", "S2", false),
	}

	result, err := FilterAnnotations(input, true)
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "3"}, result.AnnotationIDs)
	assert.Equal(t, []ReviewStatus{Reviewed, Unreviewed}, result.ReviewStatuses)
	assert.Equal(t, []string{"2"}, result.Duplicates)
	assert.Len(t, result.Annotations, 2)
}

func TestFilterAnnotationsNormalizesSentences(t *testing.T) {
	input := []models.Annotation{
		anno("a", "N1", "Chest pain", false),
		anno("b", "N2", "  chest PAIN ", false),
		anno("c", "N1", "chest pain", true),
		anno("d", "N3", "Dyspnea", false),
	}

	result, err := FilterAnnotations(input, true)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "d"}, result.AnnotationIDs)
	assert.Equal(t, []string{"c", "b"}, result.Duplicates, "duplicates come highest index first")
	assert.Equal(t, map[string]string{"b": "a", "c": "a"}, result.DuplicateOf)
}

func TestFilterAnnotationsNoteScopeResetsOnNoteChange(t *testing.T) {
	input := []models.Annotation{
		anno("a", "N1", "chest pain", false),
		anno("b", "N2", "chest pain", false),
		anno("c", "N1", "chest pain", false),
	}

	result, err := FilterAnnotations(input, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, result.AnnotationIDs)
	assert.Empty(t, result.Duplicates)
}

func TestFilterAnnotationsNoteScopeWithinRun(t *testing.T) {
	input := []models.Annotation{
		anno("a", "N1", "x", false),
		anno("b", "N1", "X ", true),
		anno("c", "N2", "x", false),
		anno("d", "N2", "x", false),
	}

	result, err := FilterAnnotations(input, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "c"}, result.AnnotationIDs)
	assert.Equal(t, []ReviewStatus{Unreviewed, Unreviewed}, result.ReviewStatuses)
	assert.Equal(t, []string{"d", "b"}, result.Duplicates)
}

func TestFilterAnnotationsEmpty(t *testing.T) {
	result, err := FilterAnnotations(nil, true)
	require.NoError(t, err)

	assert.Empty(t, result.AnnotationIDs)
	assert.Empty(t, result.ReviewStatuses)
	assert.Empty(t, result.Duplicates)
}

func TestFilterAnnotationsRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		in   models.Annotation
		want error
	}{
		{"missing id", anno("", "N1", "s", false), ErrMissingField},
		{"missing note", anno("1", "", "s", false), ErrMissingField},
		{"inverted sentence span", models.Annotation{ID: "1", NoteID: "N1", StartIndex: 4, EndIndex: 2}, ErrInvalidOffsets},
		{"negative note span", models.Annotation{ID: "1", NoteID: "N1", NoteStartIndex: -1}, ErrInvalidOffsets},
		{"empty sentence", anno("1", "N1", "", false), ErrMissingField},
		{"blank sentence", anno("1", "N1", " \n\t", false), ErrMissingField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FilterAnnotations([]models.Annotation{anno("ok", "N1", "s", false), tt.in}, true)
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFilterAnnotationsBlankSentencesAreNotDuplicates(t *testing.T) {
	_, err := FilterAnnotations([]models.Annotation{
		anno("1", "N1", "  ", false),
		anno("2", "N1", "", false),
	}, true)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingField)
	assert.Contains(t, err.Error(), "sentence")
}
