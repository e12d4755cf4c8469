package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	logx "chilivault/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver {
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) InsertPrediction(ctx context.Context, p Prediction) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO predictions(taken_date, taken_time, image, class_1, conf_1, class_2, conf_2, class_3, conf_3)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		p.TakenDate, p.TakenTime, p.Image,
		p.Class1, p.Conf1, p.Class2, p.Conf2, p.Class3, p.Conf3,
	)
	return err
}

func (s *sqliteStore) LatestBatch(ctx context.Context) (string, string, bool, error) {
	if s == nil || s.db == nil {
		return "", "", false, ErrDisabled
	}
	var date, tm string
	err := s.db.QueryRowContext(ctx,
		`SELECT taken_date, taken_time FROM predictions
		 ORDER BY taken_date DESC, taken_time DESC LIMIT 1`).Scan(&date, &tm)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, err
	}
	return date, tm, true, nil
}

func (s *sqliteStore) QueryPredictions(ctx context.Context, q Query) ([]Prediction, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}

	var sb strings.Builder
	sb.WriteString(`SELECT id, taken_date, taken_time, image, class_1, conf_1, class_2, conf_2, class_3, conf_3
		FROM predictions WHERE 1=1`)
	args := []any{}

	if q.Date != "" {
		sb.WriteString(" AND taken_date = ?")
		args = append(args, q.Date)
	}
	if q.Time != "" {
		sb.WriteString(" AND taken_time = ?")
		args = append(args, q.Time)
	}
	if q.Image != "" {
		sb.WriteString(" AND image LIKE ?")
		args = append(args, "%"+q.Image+"%")
	}
	if q.Class1 != "" {
		sb.WriteString(" AND class_1 = ?")
		args = append(args, q.Class1)
	}
	if q.Class2 != "" {
		sb.WriteString(" AND class_2 = ?")
		args = append(args, q.Class2)
	}
	if q.Class3 != "" {
		sb.WriteString(" AND class_3 = ?")
		args = append(args, q.Class3)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 30
	}
	sb.WriteString(" ORDER BY taken_time DESC LIMIT ?")
	args = append(args, limit)

	return s.queryRows(ctx, sb.String(), args...)
}

// searchColumns are the columns a targeted "field=value" search may name.
var searchColumns = map[string]string{
	"date":    "taken_date",
	"time":    "taken_time",
	"image":   "image",
	"class_1": "class_1",
	"class_2": "class_2",
	"class_3": "class_3",
}

func (s *sqliteStore) Search(ctx context.Context, q string) ([]Prediction, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	q = strings.TrimSpace(q)

	var sb strings.Builder
	sb.WriteString(`SELECT id, taken_date, taken_time, image, class_1, conf_1, class_2, conf_2, class_3, conf_3
		FROM predictions`)
	args := []any{}

	if field, value, found := strings.Cut(q, "="); found {
		col, ok := searchColumns[strings.TrimSpace(field)]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownField, strings.TrimSpace(field))
		}
		sb.WriteString(" WHERE " + col + " LIKE ?")
		args = append(args, "%"+strings.TrimSpace(value)+"%")
	} else if q != "" {
		clauses := make([]string, 0, len(searchColumns))
		for _, col := range []string{"taken_date", "taken_time", "image", "class_1", "class_2", "class_3"} {
			clauses = append(clauses, col+" LIKE ?")
			args = append(args, "%"+q+"%")
		}
		sb.WriteString(" WHERE " + strings.Join(clauses, " OR "))
	}

	sb.WriteString(" ORDER BY taken_date DESC, taken_time DESC LIMIT 30")
	return s.queryRows(ctx, sb.String(), args...)
}

func (s *sqliteStore) DeletePrediction(ctx context.Context, date, tm, image string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM predictions WHERE taken_date = ? AND taken_time = ? AND image = ?`,
		date, tm, image)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *sqliteStore) queryRows(ctx context.Context, query string, args ...any) ([]Prediction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Prediction{}
	for rows.Next() {
		var p Prediction
		var c1, c2, c3 sql.NullString
		var f1, f2, f3 sql.NullFloat64
		if err := rows.Scan(&p.ID, &p.TakenDate, &p.TakenTime, &p.Image,
			&c1, &f1, &c2, &f2, &c3, &f3); err != nil {
			return nil, err
		}
		p.Class1, p.Conf1 = c1.String, f1.Float64
		p.Class2, p.Conf2 = c2.String, f2.Float64
		p.Class3, p.Conf3 = c3.String, f3.Float64
		out = append(out, p)
	}
	return out, rows.Err()
}
