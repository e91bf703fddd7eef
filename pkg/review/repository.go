package review

import (
	"context"
	"errors"
	"time"

	"github.com/synaptica-ai/chartreview/pkg/adjudication"
	"github.com/synaptica-ai/chartreview/pkg/common/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(
		&noteModel{},
		&annotationModel{},
		&patientStateModel{},
	)
}

// SaveNote upserts the note body and date, keeping the original created_at.
func (r *Repository) SaveNote(ctx context.Context, note models.Note) error {
	m := toNoteModel(note)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "note_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"patient_id", "text", "text_date", "tags"}),
	}).Create(&m).Error
}

// SaveAnnotations inserts new annotations. Existing ids are left untouched so
// that reviewer flags and comments survive a re-tag of the same note.
func (r *Repository) SaveAnnotations(ctx context.Context, annotations []models.Annotation) error {
	if len(annotations) == 0 {
		return nil
	}
	rows := make([]annotationModel, 0, len(annotations))
	for _, a := range annotations {
		rows = append(rows, toAnnotationModel(a))
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

func (r *Repository) ListNotes(ctx context.Context, patientID string) ([]models.Note, error) {
	var rows []noteModel
	if err := r.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("text_date ASC, note_id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	notes := make([]models.Note, 0, len(rows))
	for _, row := range rows {
		notes = append(notes, row.toNote())
	}
	return notes, nil
}

// ListAnnotations returns every annotation of the patient, suppressed
// duplicates included, in note date order.
func (r *Repository) ListAnnotations(ctx context.Context, patientID string) ([]models.Annotation, error) {
	var rows []annotationModel
	if err := r.db.WithContext(ctx).
		Model(&annotationModel{}).
		Select("annotations.*").
		Joins("JOIN notes ON notes.note_id = annotations.note_id").
		Where("annotations.patient_id = ?", patientID).
		Order("notes.text_date ASC, annotations.note_id ASC, annotations.note_start_index ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	annotations := make([]models.Annotation, 0, len(rows))
	for _, row := range rows {
		annotations = append(annotations, row.toAnnotation())
	}
	return annotations, nil
}

func (r *Repository) MarkDuplicates(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&annotationModel{}).Where("id IN ?", ids).Updates(map[string]interface{}{
		"duplicate":  true,
		"updated_at": time.Now().UTC(),
	}).Error
}

func (r *Repository) SetReviewed(ctx context.Context, ids []string, reviewed bool) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&annotationModel{}).Where("id IN ?", ids).Updates(map[string]interface{}{
		"reviewed":   reviewed,
		"updated_at": time.Now().UTC(),
	}).Error
}

// SetEventDate keeps at most one dated annotation per patient. An empty
// annotationID only clears.
func (r *Repository) SetEventDate(ctx context.Context, patientID, annotationID string, date *time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		if err := tx.Model(&annotationModel{}).
			Where("patient_id = ? AND event_date IS NOT NULL", patientID).
			Updates(map[string]interface{}{"event_date": nil, "updated_at": now}).Error; err != nil {
			return err
		}
		if annotationID == "" || date == nil {
			return nil
		}
		res := tx.Model(&annotationModel{}).
			Where("id = ? AND patient_id = ?", annotationID, patientID).
			Updates(map[string]interface{}{"event_date": *date, "updated_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *Repository) UpdateComment(ctx context.Context, patientID, annotationID, comment string) error {
	res := r.db.WithContext(ctx).Model(&annotationModel{}).
		Where("id = ? AND patient_id = ?", annotationID, patientID).
		Updates(map[string]interface{}{"comment": comment, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) LoadState(ctx context.Context, patientID string) (adjudication.State, error) {
	var m patientStateModel
	if err := r.db.WithContext(ctx).Where("patient_id = ?", patientID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return adjudication.State{}, ErrNotFound
		}
		return adjudication.State{}, err
	}
	return m.toState()
}

func (r *Repository) SaveState(ctx context.Context, patientID string, state adjudication.State) error {
	m, err := toStateModel(patientID, state)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "patient_id"}},
		UpdateAll: true,
	}).Create(&m).Error
}

func (r *Repository) DeleteState(ctx context.Context, patientID string) error {
	return r.db.WithContext(ctx).Where("patient_id = ?", patientID).Delete(&patientStateModel{}).Error
}
