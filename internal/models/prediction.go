package models

import (
	"time"

	"github.com/google/uuid"
)

// Prediction is one classification result kept in the history table.
type Prediction struct {
	ID          string
	SessionID   string
	Filename    string
	ContentType string
	Size        int64
	Label       string
	Confidence  float64
	CreatedAt   time.Time
}

func NewPrediction(sessionID, filename, contentType string, size int64, label string, confidence float64) *Prediction {
	return &Prediction{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		Filename:    filename,
		ContentType: contentType,
		Size:        size,
		Label:       label,
		Confidence:  confidence,
		CreatedAt:   time.Now().UTC(),
	}
}
