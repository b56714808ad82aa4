package predict

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

var ErrMalformedResponse = errors.New("malformed prediction response")

// Predictor classifies a single image.
type Predictor interface {
	Predict(ctx context.Context, filename, contentType string, image io.Reader) (*Prediction, error)
}

type Prediction struct {
	Label      string  `json:"class"`
	Confidence float64 `json:"confidence"`
}

// Percent renders the confidence the way the result table shows it.
func (p *Prediction) Percent() string {
	return FormatConfidence(p.Confidence)
}

// FormatConfidence turns a fraction in [0,1] into a percentage with two
// decimals, e.g. 0.8734 -> "87.34%".
func FormatConfidence(confidence float64) string {
	return fmt.Sprintf("%.2f%%", confidence*100)
}

type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("prediction service returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("prediction service returned status %d: %s", e.StatusCode, body)
}

type rawPrediction struct {
	Class      *string  `json:"class"`
	Confidence *float64 `json:"confidence"`
}

func (r rawPrediction) validate() (*Prediction, error) {
	if r.Class == nil || strings.TrimSpace(*r.Class) == "" {
		return nil, fmt.Errorf("%w: missing class", ErrMalformedResponse)
	}
	if r.Confidence == nil {
		return nil, fmt.Errorf("%w: missing confidence", ErrMalformedResponse)
	}
	c := *r.Confidence
	if c < 0 || c > 1 {
		return nil, fmt.Errorf("%w: confidence %v outside [0,1]", ErrMalformedResponse, c)
	}
	return &Prediction{Label: *r.Class, Confidence: c}, nil
}
