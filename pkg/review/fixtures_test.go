package review

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/synaptica-ai/chartreview/pkg/adjudication"
	"github.com/synaptica-ai/chartreview/pkg/common/models"
)

type memStore struct {
	mu          sync.Mutex
	notes       []models.Note
	annotations []models.Annotation
	states      map[string]adjudication.State
	duplicates  map[string]bool
	stateSaves  int
}

func newMemStore(notes []models.Note, annotations []models.Annotation) *memStore {
	return &memStore{
		notes:       notes,
		annotations: annotations,
		states:      map[string]adjudication.State{},
		duplicates:  map[string]bool{},
	}
}

func (m *memStore) ListNotes(_ context.Context, patientID string) ([]models.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Note
	for _, n := range m.notes {
		if n.PatientID == patientID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *memStore) ListAnnotations(_ context.Context, patientID string) ([]models.Annotation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Annotation
	for _, a := range m.annotations {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) MarkDuplicates(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.duplicates[id] = true
	}
	return nil
}

func (m *memStore) SetReviewed(_ context.Context, ids []string, reviewed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		for i := range m.annotations {
			if m.annotations[i].ID == id {
				m.annotations[i].Reviewed = reviewed
			}
		}
	}
	return nil
}

func (m *memStore) SetEventDate(_ context.Context, patientID, annotationID string, date *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := false
	for i := range m.annotations {
		a := &m.annotations[i]
		if a.PatientID != patientID {
			continue
		}
		a.EventDate = nil
		if annotationID != "" && date != nil && a.ID == annotationID {
			d := *date
			a.EventDate = &d
			found = true
		}
	}
	if annotationID != "" && date != nil && !found {
		return ErrNotFound
	}
	return nil
}

func (m *memStore) UpdateComment(_ context.Context, patientID, annotationID, comment string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.annotations {
		if m.annotations[i].ID == annotationID && m.annotations[i].PatientID == patientID {
			m.annotations[i].Comment = comment
			return nil
		}
	}
	return ErrNotFound
}

func (m *memStore) LoadState(_ context.Context, patientID string) (adjudication.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[patientID]
	if !ok {
		return adjudication.State{}, ErrNotFound
	}
	return state.Clone(), nil
}

func (m *memStore) SaveState(_ context.Context, patientID string, state adjudication.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[patientID] = state.Clone()
	m.stateSaves++
	return nil
}

func (m *memStore) DeleteState(_ context.Context, patientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, patientID)
	return nil
}

func (m *memStore) annotation(id string) models.Annotation {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.annotations {
		if a.ID == id {
			return a
		}
	}
	return models.Annotation{}
}

type mockLocker struct {
	mock.Mock
	released int
}

func (m *mockLocker) Acquire(ctx context.Context, patientID string) (func(), error) {
	args := m.Called(ctx, patientID)
	if err := args.Error(0); err != nil {
		return nil, err
	}
	return func() { m.released++ }, nil
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishEvent(ctx context.Context, partitionKey string, event models.Event) error {
	args := m.Called(ctx, partitionKey, event)
	return args.Error(0)
}

func (m *mockPublisher) types() []string {
	var out []string
	for _, call := range m.Calls {
		out = append(out, call.Arguments.Get(2).(models.Event).Type)
	}
	return out
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// patientFixture: a2 repeats a1's sentence in a later note.
func patientFixture() ([]models.Note, []models.Annotation) {
	notes := []models.Note{
		{NoteID: "N1", PatientID: "p1", Text: "Chest pain at rest.", TextDate: day(2023, 1, 10)},
		{NoteID: "N2", PatientID: "p1", Text: "Chest pain at rest. Dyspnea noted.", TextDate: day(2023, 3, 1)},
		{NoteID: "N3", PatientID: "p1", Text: "Angina again.", TextDate: day(2023, 5, 20)},
	}
	annotations := []models.Annotation{
		{ID: "a1", NoteID: "N1", PatientID: "p1", Sentence: "Chest pain at rest.", StartIndex: 0, EndIndex: 10, NoteStartIndex: 0, NoteEndIndex: 10},
		{ID: "a2", NoteID: "N2", PatientID: "p1", Sentence: "Chest pain at rest.", StartIndex: 0, EndIndex: 10, NoteStartIndex: 0, NoteEndIndex: 10},
		{ID: "a3", NoteID: "N2", PatientID: "p1", Sentence: "Dyspnea noted.", StartIndex: 0, EndIndex: 7, NoteStartIndex: 20, NoteEndIndex: 27},
		{ID: "a4", NoteID: "N3", PatientID: "p1", Sentence: "Angina again.", StartIndex: 0, EndIndex: 6, NoteStartIndex: 0, NoteEndIndex: 6},
	}
	return notes, annotations
}

type testEnv struct {
	store     *memStore
	locker    *mockLocker
	publisher *mockPublisher
	service   *Service
}

func newTestEnv() *testEnv {
	notes, annotations := patientFixture()
	env := &testEnv{
		store:     newMemStore(notes, annotations),
		locker:    &mockLocker{},
		publisher: &mockPublisher{},
	}
	env.locker.On("Acquire", mock.Anything, mock.Anything).Return(nil)
	env.publisher.On("PublishEvent", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	env.service = NewService(env.store, env.locker, env.publisher, true)
	return env
}
