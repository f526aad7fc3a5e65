package store

import (
	"database/sql"
	"fmt"
	"time"
)

type Run struct {
	ID         int64
	Model      string
	Params     string
	Status     string
	BestMAP3   float64
	Checkpoint string
	StartedAt  time.Time
}

type EpochMetrics struct {
	RunID           int64
	Epoch           int
	Cycle           int
	TrainLoss       float64
	ValLoss         float64
	ValMAP3         float64
	ValAcc1         float64
	ValAcc3         float64
	ValAcc5         float64
	ValAcc10        float64
	LR              float64
	Duration        time.Duration
	CheckpointSaved bool
}

type EvalReport struct {
	Model     string
	Dataset   string
	Samples   int
	MAP3      float64
	Acc1      float64
	Acc3      float64
	Acc5      float64
	Acc10     float64
	Ambiguous int
}

type RunStore interface {
	CreateRun(model, params string) (int64, error)
	CompleteRun(id int64, status string, bestMAP3 float64, checkpoint string) error
	SaveEpoch(m EpochMetrics) error
	ListRuns(limit int) ([]Run, error)
	GetEpochs(runID int64) ([]EpochMetrics, error)
	SaveEvalReport(r EvalReport) error
}

type SQLRunStore struct {
	db *sql.DB
}

func NewSQLRunStore(db *sql.DB) RunStore {
	return &SQLRunStore{db: db}
}

func (s *SQLRunStore) CreateRun(model, params string) (int64, error) {
	res, err := s.db.Exec(`INSERT INTO runs (model, params) VALUES (?, ?)`, model, params)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	return res.LastInsertId()
}

func (s *SQLRunStore) CompleteRun(id int64, status string, bestMAP3 float64, checkpoint string) error {
	_, err := s.db.Exec(`
		UPDATE runs
		SET status = ?, best_map3 = ?, checkpoint = ?, finished_at = CURRENT_TIMESTAMP
		WHERE id = ?`, status, bestMAP3, checkpoint, id)
	if err != nil {
		return fmt.Errorf("failed to complete run %d: %w", id, err)
	}
	return nil
}

func (s *SQLRunStore) SaveEpoch(m EpochMetrics) error {
	_, err := s.db.Exec(`
		INSERT INTO epoch_metrics (
			run_id, epoch, cycle, train_loss, val_loss, val_map3,
			val_acc1, val_acc3, val_acc5, val_acc10, lr, duration_ms, checkpoint_saved
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, epoch) DO UPDATE SET
			cycle = excluded.cycle,
			train_loss = excluded.train_loss,
			val_loss = excluded.val_loss,
			val_map3 = excluded.val_map3,
			val_acc1 = excluded.val_acc1,
			val_acc3 = excluded.val_acc3,
			val_acc5 = excluded.val_acc5,
			val_acc10 = excluded.val_acc10,
			lr = excluded.lr,
			duration_ms = excluded.duration_ms,
			checkpoint_saved = excluded.checkpoint_saved`,
		m.RunID, m.Epoch, m.Cycle, m.TrainLoss, m.ValLoss, m.ValMAP3,
		m.ValAcc1, m.ValAcc3, m.ValAcc5, m.ValAcc10, m.LR,
		m.Duration.Milliseconds(), boolToInt(m.CheckpointSaved))
	if err != nil {
		return fmt.Errorf("failed to save epoch metrics: %w", err)
	}
	return nil
}

func (s *SQLRunStore) ListRuns(limit int) ([]Run, error) {
	rows, err := s.db.Query(`
		SELECT id, model, params, status, best_map3, checkpoint, started_at
		FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Model, &r.Params, &r.Status, &r.BestMAP3, &r.Checkpoint, &r.StartedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *SQLRunStore) GetEpochs(runID int64) ([]EpochMetrics, error) {
	rows, err := s.db.Query(`
		SELECT run_id, epoch, cycle, train_loss, val_loss, val_map3,
		       val_acc1, val_acc3, val_acc5, val_acc10, lr, duration_ms, checkpoint_saved
		FROM epoch_metrics WHERE run_id = ? ORDER BY epoch`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load epoch metrics: %w", err)
	}
	defer rows.Close()

	var epochs []EpochMetrics
	for rows.Next() {
		var m EpochMetrics
		var durationMS int64
		var saved int
		if err := rows.Scan(&m.RunID, &m.Epoch, &m.Cycle, &m.TrainLoss, &m.ValLoss, &m.ValMAP3,
			&m.ValAcc1, &m.ValAcc3, &m.ValAcc5, &m.ValAcc10, &m.LR, &durationMS, &saved); err != nil {
			return nil, err
		}
		m.Duration = time.Duration(durationMS) * time.Millisecond
		m.CheckpointSaved = saved != 0
		epochs = append(epochs, m)
	}
	return epochs, rows.Err()
}

func (s *SQLRunStore) SaveEvalReport(r EvalReport) error {
	_, err := s.db.Exec(`
		INSERT INTO eval_reports (model, dataset, samples, map3, acc1, acc3, acc5, acc10, ambiguous)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Model, r.Dataset, r.Samples, r.MAP3, r.Acc1, r.Acc3, r.Acc5, r.Acc10, r.Ambiguous)
	if err != nil {
		return fmt.Errorf("failed to save eval report: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
