package store

import (
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"batch-delete/pkg/model"
)

type runRow struct {
	ID          string    `gorm:"primaryKey;size:36"`
	Kind        string    `gorm:"size:16"`
	Actor       string    `gorm:"size:128"`
	StartedAt   time.Time `gorm:"index"`
	CompletedAt *time.Time
	Total       int
	Queued      int
	Running     int
	Succeeded   int
	Failed      int
	Done        bool
	Errors      string `gorm:"type:text"`
}

func (runRow) TableName() string { return "runs" }

// GormStore persists run history in a SQL database.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore migrates the runs table and returns a store backed by db.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&runRow{}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func (g *GormStore) SaveRun(r model.RunRecord) error {
	row, err := toRow(r)
	if err != nil {
		return err
	}
	return g.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

func (g *GormStore) ListRuns(limit int) ([]model.RunRecord, error) {
	var rows []runRow
	q := g.db.Order("started_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.RunRecord, 0, len(rows))
	for _, row := range rows {
		r, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (g *GormStore) LatestRun() (model.RunRecord, bool, error) {
	var row runRow
	err := g.db.Order("started_at desc").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.RunRecord{}, false, nil
	}
	if err != nil {
		return model.RunRecord{}, false, err
	}
	r, err := fromRow(row)
	return r, err == nil, err
}

func toRow(r model.RunRecord) (runRow, error) {
	errs, err := json.Marshal(r.Errors)
	if err != nil {
		return runRow{}, err
	}
	c := r.Counters
	return runRow{
		ID:          r.ID,
		Kind:        string(r.Kind),
		Actor:       r.Actor,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		Total:       c.Total,
		Queued:      c.Queued,
		Running:     c.Running,
		Succeeded:   c.Succeeded,
		Failed:      c.Failed,
		Done:        c.Done,
		Errors:      string(errs),
	}, nil
}

func fromRow(row runRow) (model.RunRecord, error) {
	r := model.RunRecord{
		ID:          row.ID,
		Kind:        model.RunKind(row.Kind),
		Actor:       row.Actor,
		StartedAt:   row.StartedAt,
		CompletedAt: row.CompletedAt,
		Counters: model.Counters{
			RunID:     row.ID,
			Kind:      model.RunKind(row.Kind),
			Total:     row.Total,
			Queued:    row.Queued,
			Running:   row.Running,
			Succeeded: row.Succeeded,
			Failed:    row.Failed,
			Done:      row.Done,
		},
	}
	if row.Errors != "" {
		if err := json.Unmarshal([]byte(row.Errors), &r.Errors); err != nil {
			return r, err
		}
	}
	return r, nil
}
