package review

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/synaptica-ai/chartreview/pkg/adjudication"
	"github.com/synaptica-ai/chartreview/pkg/common/kafka"
	"github.com/synaptica-ai/chartreview/pkg/common/logger"
	"github.com/synaptica-ai/chartreview/pkg/common/models"
	"github.com/synaptica-ai/chartreview/pkg/observability/metrics"
)

const eventSource = "adjudication-service"

const (
	EventPatientOpened         = "patient_opened"
	EventAnnotationShifted     = "annotation_shifted"
	EventAnnotationAdjudicated = "annotation_adjudicated"
	EventDateMarked            = "event_date_marked"
	EventDateDeleted           = "event_date_deleted"
	EventCommentUpdated        = "comment_updated"
	EventStateReset            = "state_reset"
)

// Store is the persistence the service needs; *Repository implements it.
type Store interface {
	ListNotes(ctx context.Context, patientID string) ([]models.Note, error)
	ListAnnotations(ctx context.Context, patientID string) ([]models.Annotation, error)
	MarkDuplicates(ctx context.Context, ids []string) error
	SetReviewed(ctx context.Context, ids []string, reviewed bool) error
	SetEventDate(ctx context.Context, patientID, annotationID string, date *time.Time) error
	UpdateComment(ctx context.Context, patientID, annotationID, comment string) error
	LoadState(ctx context.Context, patientID string) (adjudication.State, error)
	SaveState(ctx context.Context, patientID string, state adjudication.State) error
	DeleteState(ctx context.Context, patientID string) error
}

type Publisher interface {
	PublishEvent(ctx context.Context, partitionKey string, event models.Event) error
}

// View is returned by every patient operation.
type View struct {
	PatientID     string                            `json:"patient_id"`
	PatientStatus adjudication.PatientStatus        `json:"patient_status"`
	Counts        map[adjudication.ReviewStatus]int `json:"counts"`
	Details       *adjudication.AnnotationDetails   `json:"details,omitempty"`
}

type Service struct {
	store          Store
	locker         Locker
	publisher      Publisher
	hideDuplicates bool
}

// NewService wires the adjudication workflow. publisher may be nil.
func NewService(store Store, locker Locker, publisher Publisher, hideDuplicates bool) *Service {
	return &Service{
		store:          store,
		locker:         locker,
		publisher:      publisher,
		hideDuplicates: hideDuplicates,
	}
}

type actorKey struct{}

// WithActor attaches the reviewer identity recorded on published events.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func actorFrom(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return "system"
}

// session is one patient's data loaded under the lock.
type session struct {
	patientID   string
	handler     *adjudication.Handler
	annotations []models.Annotation
	byID        map[string]models.Annotation
	notes       map[string]models.Note
}

func (s *Service) OpenPatient(ctx context.Context, patientID string) (View, error) {
	return s.mutate(ctx, patientID, EventPatientOpened, func(*session) (map[string]interface{}, error) {
		return nil, nil
	})
}

func (s *Service) Navigate(ctx context.Context, patientID string, action adjudication.ShiftAction) (View, error) {
	return s.mutate(ctx, patientID, EventAnnotationShifted, func(sess *session) (map[string]interface{}, error) {
		sess.handler.PerformShift(action)
		metrics.ObserveAction(string(action))
		return map[string]interface{}{"action": string(action)}, nil
	})
}

func (s *Service) Adjudicate(ctx context.Context, patientID string) (View, error) {
	return s.mutate(ctx, patientID, EventAnnotationAdjudicated, func(sess *session) (map[string]interface{}, error) {
		adjudicated, err := sess.handler.CurrentAnnotationID()
		if err != nil {
			return nil, err
		}
		if err := sess.handler.MarkReviewed(); err != nil {
			return nil, err
		}
		metrics.ObserveAction("adjudicate")
		return map[string]interface{}{"annotation_id": adjudicated}, nil
	})
}

// MarkEventDate dates the patient's event from the current annotation.
// Annotations dated on or after eventDate are skipped.
func (s *Service) MarkEventDate(ctx context.Context, patientID string, eventDate time.Time) (View, error) {
	return s.mutate(ctx, patientID, EventDateMarked, func(sess *session) (map[string]interface{}, error) {
		source, err := sess.handler.CurrentAnnotationID()
		if err != nil {
			return nil, err
		}
		day := dateOnly(eventDate)
		after := sess.annotationsOnOrAfter(day)
		if err := sess.handler.MarkEventDate(day, source, after); err != nil {
			return nil, err
		}
		metrics.ObserveAction("mark_event_date")
		metrics.ObserveEventDate("marked")
		return map[string]interface{}{
			"annotation_id": source,
			"event_date":    day.Format(adjudication.DateLayout),
			"skipped":       len(after),
		}, nil
	})
}

func (s *Service) DeleteEventDate(ctx context.Context, patientID string) (View, error) {
	return s.mutate(ctx, patientID, EventDateDeleted, func(sess *session) (map[string]interface{}, error) {
		sess.handler.DeleteEventDate()
		metrics.ObserveAction("delete_event_date")
		metrics.ObserveEventDate("deleted")
		return nil, nil
	})
}

// UpdateComment stores a reviewer comment; review state is unchanged.
func (s *Service) UpdateComment(ctx context.Context, patientID, annotationID, comment string) error {
	release, err := s.locker.Acquire(ctx, patientID)
	if err != nil {
		return err
	}
	defer release()

	if err := s.store.UpdateComment(ctx, patientID, annotationID, comment); err != nil {
		return err
	}
	metrics.ObserveAction("comment")
	s.publish(ctx, patientID, EventCommentUpdated, map[string]interface{}{
		"annotation_id": annotationID,
	})
	return nil
}

func (s *Service) Status(ctx context.Context, patientID string) (View, error) {
	view, err := s.mutate(ctx, patientID, "", func(*session) (map[string]interface{}, error) {
		return nil, nil
	})
	view.Details = nil
	return view, err
}

func (s *Service) Details(ctx context.Context, patientID string) (View, error) {
	return s.mutate(ctx, patientID, "", func(*session) (map[string]interface{}, error) {
		return nil, nil
	})
}

// Reset discards the snapshot. The next open rebuilds it from the stored
// review flags and event date.
func (s *Service) Reset(ctx context.Context, patientID string) error {
	release, err := s.locker.Acquire(ctx, patientID)
	if err != nil {
		return err
	}
	defer release()

	if err := s.store.DeleteState(ctx, patientID); err != nil {
		return fmt.Errorf("delete state: %w", err)
	}
	metrics.ObserveAction("reset")
	s.publish(ctx, patientID, EventStateReset, nil)
	return nil
}

// mutate runs apply under the patient lock, persists the outcome and
// publishes eventType when it is set.
func (s *Service) mutate(ctx context.Context, patientID, eventType string, apply func(*session) (map[string]interface{}, error)) (View, error) {
	release, err := s.locker.Acquire(ctx, patientID)
	if err != nil {
		return View{}, err
	}
	defer release()

	sess, err := s.load(ctx, patientID)
	if err != nil {
		return View{}, err
	}

	before := sess.handler.PatientData()
	data, err := apply(sess)
	if err != nil {
		return View{}, err
	}
	after := sess.handler.PatientData()

	if err := s.persist(ctx, patientID, before, after); err != nil {
		return View{}, err
	}

	view, err := sess.view()
	if err != nil {
		return View{}, err
	}

	if eventType != "" {
		if data == nil {
			data = map[string]interface{}{}
		}
		if _, ok := data["annotation_id"]; !ok && view.Details != nil {
			data["annotation_id"] = view.Details.AnnotationID
		}
		data["current_index"] = after.CurrentIndex
		data["patient_status"] = view.PatientStatus.String()
		s.publish(ctx, patientID, eventType, data)
	}
	return view, nil
}

func (s *Service) load(ctx context.Context, patientID string) (*session, error) {
	annotations, err := s.store.ListAnnotations(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}
	notes, err := s.store.ListNotes(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}

	sess := &session{
		patientID:   patientID,
		handler:     adjudication.NewHandler(),
		annotations: annotations,
		byID:        make(map[string]models.Annotation, len(annotations)),
		notes:       make(map[string]models.Note, len(notes)),
	}
	for _, a := range annotations {
		sess.byID[a.ID] = a
	}
	for _, n := range notes {
		sess.notes[n.NoteID] = n
	}

	snapshot, err := s.store.LoadState(ctx, patientID)
	switch {
	case err == nil:
		current, err := s.snapshotIsCurrent(snapshot, annotations)
		if err != nil {
			return nil, err
		}
		if current {
			if err := sess.handler.LoadFromPatientData(patientID, snapshot); err != nil {
				return nil, err
			}
			return sess, nil
		}
		logger.WithPatient(patientID).Info("annotations changed since last session, rebuilding state")
		if err := s.initialize(ctx, sess, &snapshot); err != nil {
			return nil, err
		}
	case errors.Is(err, ErrNotFound):
		if err := s.initialize(ctx, sess, nil); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("load state: %w", err)
	}
	return sess, nil
}

// snapshotIsCurrent reports whether the stored snapshot still lists exactly
// the annotations the filter would keep today.
func (s *Service) snapshotIsCurrent(snapshot adjudication.State, annotations []models.Annotation) (bool, error) {
	filtered, err := adjudication.FilterAnnotations(annotations, s.hideDuplicates)
	if err != nil {
		return false, err
	}
	if len(filtered.AnnotationIDs) != len(snapshot.AnnotationIDs) {
		return false, nil
	}
	for i, id := range filtered.AnnotationIDs {
		if snapshot.AnnotationIDs[i] != id {
			return false, nil
		}
	}
	return true, nil
}

// initialize builds a fresh state. When previous is set, statuses, the event
// and the cursor of annotations that are still present carry over.
func (s *Service) initialize(ctx context.Context, sess *session, previous *adjudication.State) error {
	eventDate, eventAnnotationID := storedEvent(sess.annotations)
	fresh, duplicates, err := sess.handler.InitPatientData(sess.patientID, sess.annotations, s.hideDuplicates, eventDate, eventAnnotationID)
	if err != nil {
		return err
	}

	if previous != nil {
		merged := mergeState(fresh, *previous)
		if err := sess.handler.LoadFromPatientData(sess.patientID, merged); err != nil {
			return err
		}
		fresh = merged
	}

	if err := s.store.MarkDuplicates(ctx, duplicates); err != nil {
		return fmt.Errorf("mark duplicates: %w", err)
	}
	metrics.ObserveDuplicates(len(duplicates))

	if err := s.store.SaveState(ctx, sess.patientID, fresh); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

func mergeState(fresh, previous adjudication.State) adjudication.State {
	merged := fresh.Clone()
	for i, id := range merged.AnnotationIDs {
		if j := previous.IndexOf(id); j >= 0 {
			merged.ReviewStatuses[i] = previous.ReviewStatuses[j]
		}
	}
	if previous.EventDate != nil && merged.IndexOf(previous.EventAnnotationID) >= 0 {
		d := *previous.EventDate
		merged.EventDate = &d
		merged.EventAnnotationID = previous.EventAnnotationID
	}
	if previous.CurrentIndex >= 0 && previous.CurrentIndex < len(previous.AnnotationIDs) {
		if idx := merged.IndexOf(previous.AnnotationIDs[previous.CurrentIndex]); idx >= 0 {
			merged.CurrentIndex = idx
		}
	}
	return merged
}

// storedEvent finds the annotation carrying the patient's event date.
func storedEvent(annotations []models.Annotation) (*time.Time, string) {
	for _, a := range annotations {
		if a.EventDate != nil {
			d := *a.EventDate
			return &d, a.ID
		}
	}
	return nil, ""
}

// persist writes the snapshot and mirrors review flags and the event date
// onto the annotation rows.
func (s *Service) persist(ctx context.Context, patientID string, before, after adjudication.State) error {
	if reflect.DeepEqual(before, after) {
		return nil
	}

	var nowReviewed, nowOpen []string
	for i, id := range after.AnnotationIDs {
		wasReviewed := false
		if j := before.IndexOf(id); j >= 0 {
			wasReviewed = before.ReviewStatuses[j] == adjudication.Reviewed
		}
		isReviewed := after.ReviewStatuses[i] == adjudication.Reviewed
		switch {
		case isReviewed && !wasReviewed:
			nowReviewed = append(nowReviewed, id)
		case !isReviewed && wasReviewed:
			nowOpen = append(nowOpen, id)
		}
	}
	if err := s.store.SetReviewed(ctx, nowReviewed, true); err != nil {
		return fmt.Errorf("set reviewed: %w", err)
	}
	if err := s.store.SetReviewed(ctx, nowOpen, false); err != nil {
		return fmt.Errorf("set unreviewed: %w", err)
	}

	if eventChanged(before, after) {
		if err := s.store.SetEventDate(ctx, patientID, after.EventAnnotationID, after.EventDate); err != nil {
			return fmt.Errorf("set event date: %w", err)
		}
	}

	if err := s.store.SaveState(ctx, patientID, after); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

func eventChanged(before, after adjudication.State) bool {
	if before.EventAnnotationID != after.EventAnnotationID {
		return true
	}
	if (before.EventDate == nil) != (after.EventDate == nil) {
		return true
	}
	return before.EventDate != nil && !before.EventDate.Equal(*after.EventDate)
}

func (s *Service) publish(ctx context.Context, patientID, eventType string, data map[string]interface{}) {
	if s.publisher == nil {
		return
	}
	if data == nil {
		data = map[string]interface{}{}
	}
	data["patient_id"] = patientID
	actor := actorFrom(ctx)
	data["actor"] = actor

	event := kafka.NewEvent(eventType, eventSource, data)
	if err := s.publisher.PublishEvent(ctx, patientID, event); err != nil {
		logger.WithActor(actor).WithError(err).WithFields(logrus.Fields{
			"patient_id": patientID,
			"event_type": eventType,
		}).Error("failed to publish adjudication event")
	}
}

func (sess *session) view() (View, error) {
	state := sess.handler.PatientData()
	view := View{
		PatientID:     sess.patientID,
		PatientStatus: sess.handler.PatientStatus(),
		Counts:        state.StatusCounts(),
	}
	if len(state.AnnotationIDs) == 0 {
		return view, nil
	}

	currentID, err := sess.handler.CurrentAnnotationID()
	if err != nil {
		return View{}, err
	}
	current, ok := sess.byID[currentID]
	if !ok {
		return View{}, fmt.Errorf("annotation %s: %w", currentID, ErrNotFound)
	}
	note, ok := sess.notes[current.NoteID]
	if !ok {
		return View{}, fmt.Errorf("note %s: %w", current.NoteID, ErrNotFound)
	}

	var noteAnnotations []models.Annotation
	for _, a := range sess.annotations {
		if a.NoteID == note.NoteID {
			noteAnnotations = append(noteAnnotations, a)
		}
	}

	details, err := sess.handler.AnnotationDetails(current, note, noteAnnotations)
	if err != nil {
		return View{}, err
	}
	view.Details = &details
	return view, nil
}

// annotationsOnOrAfter lists the reviewable annotations dated on or after
// day, by their own event date or else their note's date.
func (sess *session) annotationsOnOrAfter(day time.Time) []string {
	var ids []string
	for _, id := range sess.handler.PatientData().AnnotationIDs {
		a, ok := sess.byID[id]
		if !ok {
			continue
		}
		var dated time.Time
		if a.EventDate != nil {
			dated = *a.EventDate
		} else if note, ok := sess.notes[a.NoteID]; ok {
			dated = note.TextDate
		} else {
			continue
		}
		if !dateOnly(dated).Before(day) {
			ids = append(ids, id)
		}
	}
	return ids
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
