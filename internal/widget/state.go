package widget

import (
	"io"

	"github.com/kdimtricp/leafcheck/internal/predict"
)

type Phase int

const (
	PhaseEmpty Phase = iota
	PhaseSelected
	PhaseLoading
	PhaseResult
)

func (p Phase) String() string {
	switch p {
	case PhaseEmpty:
		return "empty"
	case PhaseSelected:
		return "selected"
	case PhaseLoading:
		return "loading"
	case PhaseResult:
		return "result"
	default:
		return "unknown"
	}
}

// File is one candidate from a drop or picker event. Open is only called
// for the candidate that is kept.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// FileInfo describes the selected file once it has been stored.
type FileInfo struct {
	Name        string
	ContentType string
	Size        int64
	StoredName  string
}

// State is a snapshot of the widget. Callers get copies; mutating one has
// no effect on the widget.
type State struct {
	SelectedFile  *FileInfo
	PreviewURL    string
	Prediction    *predict.Prediction
	ImageUploaded bool
	IsLoading     bool
}

func (s State) Phase() Phase {
	switch {
	case !s.ImageUploaded:
		return PhaseEmpty
	case s.IsLoading:
		return PhaseLoading
	case s.Prediction != nil:
		return PhaseResult
	default:
		return PhaseSelected
	}
}

func (s State) clone() State {
	out := s
	if s.SelectedFile != nil {
		f := *s.SelectedFile
		out.SelectedFile = &f
	}
	if s.Prediction != nil {
		p := *s.Prediction
		out.Prediction = &p
	}
	return out
}
