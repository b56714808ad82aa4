package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kdimtricp/leafcheck/internal/models"
)

var ErrPredictionNotFound = errors.New("prediction not found")

type PredictionRepository struct {
	db *DB
}

func NewPredictionRepository(db *DB) *PredictionRepository {
	return &PredictionRepository{db: db}
}

func (r *PredictionRepository) Insert(ctx context.Context, p *models.Prediction) error {
	query := `
		INSERT INTO predictions (
			id, session_id, filename, content_type, size, label, confidence, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.conn.ExecContext(ctx, query,
		p.ID,
		p.SessionID,
		p.Filename,
		p.ContentType,
		p.Size,
		p.Label,
		p.Confidence,
		p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert prediction: %w", err)
	}
	return nil
}

func (r *PredictionRepository) GetByID(ctx context.Context, id string) (*models.Prediction, error) {
	query := `
		SELECT id, session_id, filename, content_type, size, label, confidence, created_at
		FROM predictions
		WHERE id = ?`

	p, err := scanPrediction(r.db.conn.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPredictionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction: %w", err)
	}
	return p, nil
}

// ListRecent returns the newest predictions first.
func (r *PredictionRepository) ListRecent(ctx context.Context, limit int) ([]models.Prediction, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, session_id, filename, content_type, size, label, confidence, created_at
		FROM predictions
		ORDER BY created_at DESC
		LIMIT ?`

	rows, err := r.db.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list predictions: %w", err)
	}
	defer rows.Close()

	var predictions []models.Prediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		predictions = append(predictions, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return predictions, nil
}

func (r *PredictionRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM predictions").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count predictions: %w", err)
	}
	return count, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPrediction(row scanner) (*models.Prediction, error) {
	var p models.Prediction
	err := row.Scan(
		&p.ID,
		&p.SessionID,
		&p.Filename,
		&p.ContentType,
		&p.Size,
		&p.Label,
		&p.Confidence,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
