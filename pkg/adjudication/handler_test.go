package adjudication

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/chartreview/pkg/common/models"
)

func loadedHandler(t *testing.T, statuses []ReviewStatus, current int) *Handler {
	t.Helper()
	ids := make([]string, len(statuses))
	for i := range statuses {
		ids[i] = string(rune('a' + i))
	}
	h := NewHandler()
	require.NoError(t, h.LoadFromPatientData("p1", State{
		AnnotationIDs:  ids,
		ReviewStatuses: append([]ReviewStatus{}, statuses...),
		CurrentIndex:   current,
	}))
	return h
}

func assertAligned(t *testing.T, h *Handler) {
	t.Helper()
	state := h.PatientData()
	assert.Equal(t, len(state.AnnotationIDs), len(state.ReviewStatuses))
	require.NoError(t, state.Validate())
}

func TestInitPatientDataStartsAtFirstUnreviewed(t *testing.T) {
	h := NewHandler()
	state, duplicates, err := h.InitPatientData("p1", []models.Annotation{
		anno("1", "N1", "S1", true),
		anno("2", "N1", "S1", false),
		anno("3", "N2", "S2", false),
	}, true, nil, "")
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "3"}, state.AnnotationIDs)
	assert.Equal(t, []ReviewStatus{Reviewed, Unreviewed}, state.ReviewStatuses)
	assert.Equal(t, 1, state.CurrentIndex)
	assert.Equal(t, []string{"2"}, duplicates)
	assert.Equal(t, UnderReview, h.PatientStatus())
}

func TestInitPatientDataResumesAtEventAnnotation(t *testing.T) {
	eventDate := time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC)
	h := NewHandler()
	state, _, err := h.InitPatientData("p1", []models.Annotation{
		anno("1", "N1", "S1", true),
		anno("2", "N1", "S2", true),
		anno("3", "N2", "S3", true),
	}, true, &eventDate, "2")
	require.NoError(t, err)

	assert.Equal(t, 1, state.CurrentIndex)
	assert.Equal(t, "2", state.EventAnnotationID)
	require.NotNil(t, state.EventDate)
	assert.True(t, state.EventDate.Equal(eventDate))
	assert.Equal(t, ReviewedWithEvent, h.PatientStatus())
}

func TestInitPatientDataAllReviewedWithoutEvent(t *testing.T) {
	h := NewHandler()
	state, _, err := h.InitPatientData("p1", []models.Annotation{
		anno("1", "N1", "S1", true),
		anno("2", "N1", "S2", true),
	}, true, nil, "2")
	require.NoError(t, err)

	assert.Equal(t, 0, state.CurrentIndex)
	assert.Equal(t, ReviewedNoEvent, h.PatientStatus())
}

func TestInitPatientDataRemapsDuplicateEventAnnotation(t *testing.T) {
	eventDate := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	h := NewHandler()
	state, duplicates, err := h.InitPatientData("p1", []models.Annotation{
		anno("1", "N1", "S1", true),
		anno("2", "N2", "s1", true),
		anno("3", "N2", "S3", true),
	}, true, &eventDate, "2")
	require.NoError(t, err)

	assert.Equal(t, []string{"2"}, duplicates)
	assert.Equal(t, "1", state.EventAnnotationID)
	assert.Equal(t, 0, state.CurrentIndex)
}

func TestInitPatientDataUnknownEventAnnotationFallsBackToFirst(t *testing.T) {
	eventDate := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	h := NewHandler()
	state, _, err := h.InitPatientData("p1", []models.Annotation{
		anno("1", "N1", "S1", true),
		anno("2", "N1", "S2", true),
	}, true, &eventDate, "gone")
	require.NoError(t, err)

	assert.Equal(t, 0, state.CurrentIndex)
	assert.Equal(t, "gone", state.EventAnnotationID)
}

func TestInitPatientDataEmpty(t *testing.T) {
	h := NewHandler()
	state, duplicates, err := h.InitPatientData("p1", nil, true, nil, "")
	require.NoError(t, err)

	assert.Equal(t, -1, state.CurrentIndex)
	assert.Empty(t, duplicates)
	assert.Equal(t, NoAnnotations, h.PatientStatus())
	assert.True(t, h.IsPatientReviewed())

	_, err = h.CurrentAnnotationID()
	assert.ErrorIs(t, err, ErrNoAnnotations)
	assert.ErrorIs(t, h.MarkReviewed(), ErrNoAnnotations)
	assert.ErrorIs(t, h.MarkEventDate(time.Now(), "x", nil), ErrNoAnnotations)

	h.PerformShift(ShiftNext1)
	h.DeleteEventDate()
	assert.Equal(t, -1, h.CurrentIndex())
}

func TestInitPatientDataRejectsMalformed(t *testing.T) {
	h := NewHandler()
	_, _, err := h.InitPatientData("p1", []models.Annotation{{ID: "1"}}, true, nil, "")
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestPerformShift(t *testing.T) {
	six := []ReviewStatus{Unreviewed, Unreviewed, Unreviewed, Unreviewed, Unreviewed, Unreviewed}
	tests := []struct {
		name    string
		current int
		action  ShiftAction
		want    int
	}{
		{"next_10 clamps to last", 2, ShiftNext10, 5},
		{"prev_10 clamps to first", 3, ShiftPrev10, 0},
		{"next_1", 2, ShiftNext1, 3},
		{"next_1 at end", 5, ShiftNext1, 5},
		{"prev_1", 2, ShiftPrev1, 1},
		{"prev_1 at start", 0, ShiftPrev1, 0},
		{"first", 4, ShiftFirst, 0},
		{"last", 1, ShiftLast, 5},
		{"unknown is a no-op", 3, ShiftAction("sideways"), 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := loadedHandler(t, six, tt.current)
			h.PerformShift(tt.action)
			assert.Equal(t, tt.want, h.CurrentIndex())
			assert.Equal(t, six, h.PatientData().ReviewStatuses)
		})
	}
}

func TestMarkReviewedAdvancesToNextUnreviewed(t *testing.T) {
	h := loadedHandler(t, []ReviewStatus{Unreviewed, Reviewed, Unreviewed, Unreviewed}, 0)

	require.NoError(t, h.MarkReviewed())

	assert.Equal(t, []ReviewStatus{Reviewed, Reviewed, Unreviewed, Unreviewed}, h.PatientData().ReviewStatuses)
	assert.Equal(t, 2, h.CurrentIndex())
	assertAligned(t, h)
}

func TestMarkReviewedWrapsAround(t *testing.T) {
	h := loadedHandler(t, []ReviewStatus{Unreviewed, Reviewed, Unreviewed}, 2)

	require.NoError(t, h.MarkReviewed())

	assert.Equal(t, 0, h.CurrentIndex())
	assert.False(t, h.IsPatientReviewed())
}

func TestMarkReviewedCompletesPatient(t *testing.T) {
	h := loadedHandler(t, []ReviewStatus{Unreviewed, Reviewed, Reviewed}, 0)
	require.NoError(t, h.MarkReviewed())
	assert.Equal(t, 1, h.CurrentIndex())
	assert.Equal(t, ReviewedNoEvent, h.PatientStatus())

	last := loadedHandler(t, []ReviewStatus{Reviewed, Unreviewed}, 1)
	require.NoError(t, last.MarkReviewed())
	assert.Equal(t, 1, last.CurrentIndex(), "stays on the last annotation")
}

func TestMarkEventDateSkipsOnlyUnreviewed(t *testing.T) {
	eventDate := time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC)
	h := loadedHandler(t, []ReviewStatus{Reviewed, Unreviewed, Unreviewed, Unreviewed}, 1)

	require.NoError(t, h.MarkEventDate(eventDate, "b", []string{"a", "c", "d"}))

	state := h.PatientData()
	assert.Equal(t, []ReviewStatus{Reviewed, Reviewed, Skipped, Skipped}, state.ReviewStatuses)
	assert.Equal(t, "b", state.EventAnnotationID)
	assert.Equal(t, 2, state.CurrentIndex)
	assert.True(t, h.IsPatientReviewed())
	assert.Equal(t, ReviewedWithEvent, h.PatientStatus())
	assertAligned(t, h)
}

func TestMarkEventDateLeavesEarlierAnnotationsOpen(t *testing.T) {
	h := loadedHandler(t, []ReviewStatus{Unreviewed, Unreviewed, Unreviewed}, 1)

	require.NoError(t, h.MarkEventDate(time.Now(), "b", []string{"b", "c"}))

	assert.Equal(t, []ReviewStatus{Unreviewed, Reviewed, Skipped}, h.PatientData().ReviewStatuses)
	assert.Equal(t, 0, h.CurrentIndex())
	assert.Equal(t, UnderReview, h.PatientStatus())
}

func TestDeleteEventDateReopensSkippedAndCurrent(t *testing.T) {
	h := loadedHandler(t, []ReviewStatus{Reviewed, Unreviewed, Unreviewed, Unreviewed}, 1)
	after := []string{"a", "c", "d"}
	require.NoError(t, h.MarkEventDate(time.Now(), "b", after))

	h.DeleteEventDate()

	state := h.PatientData()
	assert.Nil(t, state.EventDate)
	assert.Empty(t, state.EventAnnotationID)
	assert.Equal(t, []ReviewStatus{Reviewed, Reviewed, Unreviewed, Unreviewed}, state.ReviewStatuses)
	assert.Equal(t, UnderReview, h.PatientStatus())

	h.PerformShift(ShiftPrev1)
	require.NoError(t, h.MarkEventDate(time.Now(), "b", after))
	assert.Equal(t, []ReviewStatus{Reviewed, Reviewed, Skipped, Skipped}, h.PatientData().ReviewStatuses)
}

func TestDeleteEventDateForcesCurrentOpenEvenIfReviewed(t *testing.T) {
	h := loadedHandler(t, []ReviewStatus{Reviewed, Reviewed}, 0)
	h.DeleteEventDate()
	assert.Equal(t, []ReviewStatus{Unreviewed, Reviewed}, h.PatientData().ReviewStatuses)
}

func TestResetAllSkipped(t *testing.T) {
	h := loadedHandler(t, []ReviewStatus{Skipped, Reviewed, Unreviewed, Skipped}, 0)
	assert.True(t, loadedHandler(t, []ReviewStatus{Skipped, Reviewed}, 0).IsPatientReviewed())

	h.ResetAllSkipped()

	assert.Equal(t, []ReviewStatus{Unreviewed, Reviewed, Unreviewed, Unreviewed}, h.PatientData().ReviewStatuses)
}

func TestLoadFromPatientDataRejectsBadShape(t *testing.T) {
	h := NewHandler()

	err := h.LoadFromPatientData("p1", State{AnnotationIDs: []string{"a"}, ReviewStatuses: nil})
	assert.ErrorIs(t, err, ErrInvalidState)

	err = h.LoadFromPatientData("p1", State{AnnotationIDs: []string{"a"}, ReviewStatuses: []ReviewStatus{Reviewed}, CurrentIndex: 3})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestPatientDataIsACopy(t *testing.T) {
	h := loadedHandler(t, []ReviewStatus{Unreviewed, Unreviewed}, 0)

	state := h.PatientData()
	state.ReviewStatuses[0] = Skipped
	state.AnnotationIDs[1] = "zzz"

	assert.Equal(t, []ReviewStatus{Unreviewed, Unreviewed}, h.PatientData().ReviewStatuses)
	id, err := h.CurrentAnnotationID()
	require.NoError(t, err)
	assert.Equal(t, "a", id)
}

func TestActionSequenceKeepsStateAligned(t *testing.T) {
	h := loadedHandler(t, []ReviewStatus{Unreviewed, Unreviewed, Reviewed, Unreviewed, Unreviewed}, 0)

	steps := []func(){
		func() { h.PerformShift(ShiftNext10) },
		func() { _ = h.MarkReviewed() },
		func() { _ = h.MarkEventDate(time.Now(), "b", []string{"c", "d", "e"}) },
		func() { h.PerformShift(ShiftPrev1) },
		func() { h.DeleteEventDate() },
		func() { h.PerformShift(ShiftFirst) },
		func() { _ = h.MarkReviewed() },
		func() { h.ResetAllSkipped() },
	}
	for _, step := range steps {
		step()
		assertAligned(t, h)
	}
}
