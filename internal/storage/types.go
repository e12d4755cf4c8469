package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDisabled is returned by a nil/disabled store.
	ErrDisabled = errors.New("storage disabled")
	// ErrUnknownField is returned by Search for an unrecognized column.
	ErrUnknownField = errors.New("unknown search field")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled and Open returns
// (nil, nil).
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Prediction is one classified image: its batch date/time, the file name and
// the top-3 labels with confidences.
type Prediction struct {
	ID        int64   `json:"-"`
	TakenDate string  `json:"date"` // YYYY-MM-DD
	TakenTime string  `json:"time"` // HH:MM:SS
	Image     string  `json:"image"`
	Class1    string  `json:"class_1"`
	Conf1     float64 `json:"conf_1"`
	Class2    string  `json:"class_2"`
	Conf2     float64 `json:"conf_2"`
	Class3    string  `json:"class_3"`
	Conf3     float64 `json:"conf_3"`
}

// Query filters prediction rows. Zero-valued fields are not applied.
// Image matches by substring; the class fields match exactly.
type Query struct {
	Date   string
	Time   string
	Image  string
	Class1 string
	Class2 string
	Class3 string
	Limit  int
}

// Store is the persistence API used by the classify runner and the HTTP
// layer.
type Store interface {
	InsertPrediction(ctx context.Context, p Prediction) error
	// LatestBatch returns the date and time of the newest row; ok is false
	// when the table is empty.
	LatestBatch(ctx context.Context) (date, tm string, ok bool, err error)
	QueryPredictions(ctx context.Context, q Query) ([]Prediction, error)
	// Search runs either a targeted "field=value" LIKE match or, for a bare
	// term, a broad LIKE across all string columns.
	Search(ctx context.Context, q string) ([]Prediction, error)
	DeletePrediction(ctx context.Context, date, tm, image string) (int64, error)
	Close() error
}
