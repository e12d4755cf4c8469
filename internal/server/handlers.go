package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"chilivault/internal/classify"
	"chilivault/internal/schedule"
	"chilivault/internal/storage"
	"chilivault/internal/vault"
	logx "chilivault/pkg/logx"
)

func (s *Server) handleUpload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, errResp("no file part"))
	}
	name := filepath.Base(fh.Filename)
	if name == "" || name == "." || name == string(filepath.Separator) {
		return c.JSON(http.StatusBadRequest, errResp("no selected file"))
	}

	src, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errResp(err.Error()))
	}
	defer src.Close()

	if err := os.MkdirAll(s.deps.TempDir, 0o755); err != nil {
		return c.JSON(http.StatusInternalServerError, errResp(err.Error()))
	}
	dst, err := os.Create(filepath.Join(s.deps.TempDir, name))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errResp(err.Error()))
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return c.JSON(http.StatusInternalServerError, errResp(err.Error()))
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "uploaded " + name})
}

func (s *Server) handleClassify(c echo.Context) error {
	report, err := s.deps.Runner.Run(c.Request().Context())
	if err != nil {
		if errors.Is(err, classify.ErrNoImages) {
			return c.JSON(http.StatusNotFound, errResp("no image files in staging area"))
		}
		return c.JSON(http.StatusInternalServerError, errResp(err.Error()))
	}
	return c.JSON(http.StatusOK, report)
}

func (s *Server) handleMove(c echo.Context) error {
	res, err := s.deps.Alloc.Archive(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errResp(err.Error()))
	}
	return c.JSON(http.StatusOK, res)
}

type getDataRequest struct {
	Date   string `json:"date"`
	Time   string `json:"time"`
	Image  string `json:"image"`
	Class1 string `json:"class_1"`
	Class2 string `json:"class_2"`
	Class3 string `json:"class_3"`
}

type getDataRow struct {
	storage.Prediction
	ImageData string `json:"image_data,omitempty"`
}

func (s *Server) handleGetData(c echo.Context) error {
	if s.deps.Store == nil {
		return c.JSON(http.StatusServiceUnavailable, errResp("storage is disabled"))
	}
	var req getDataRequest
	// A missing or empty body means "latest batch".
	_ = c.Bind(&req)

	ctx := c.Request().Context()
	if req.Date == "" {
		date, tm, ok, err := s.deps.Store.LatestBatch(ctx)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, errResp(err.Error()))
		}
		if ok {
			req.Date, req.Time = date, tm
		}
	}

	rows, err := s.deps.Store.QueryPredictions(ctx, storage.Query{
		Date: req.Date, Time: req.Time, Image: req.Image,
		Class1: req.Class1, Class2: req.Class2, Class3: req.Class3,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errResp(err.Error()))
	}

	out := make([]getDataRow, 0, len(rows))
	for _, row := range rows {
		item := getDataRow{Prediction: row}
		item.ImageData = s.resolveRowImage(row)
		out = append(out, item)
	}
	return c.JSON(http.StatusOK, out)
}

// resolveRowImage locates the archived image behind a prediction row and
// returns it as a base64 data URI. An unresolvable image yields "", not an
// error; the row is still returned.
func (s *Server) resolveRowImage(row storage.Prediction) string {
	t, err := time.ParseInLocation("2006-01-02 15:04:05", row.TakenDate+" "+row.TakenTime, time.Local)
	if err != nil {
		return ""
	}
	dir, ok, err := s.deps.Resolver.FindByMinute(t, vault.DefaultTolerance)
	if err != nil || !ok {
		return ""
	}
	b, mt, err := s.deps.Resolver.ReadFile(dir, row.Image)
	if err != nil {
		s.log.Debug("row image unreadable", logx.String("folder", dir), logx.String("image", row.Image))
		return ""
	}
	return dataURI(mt, b)
}

func (s *Server) handleSearch(c echo.Context) error {
	if s.deps.Store == nil {
		return c.JSON(http.StatusServiceUnavailable, errResp("storage is disabled"))
	}
	q := strings.TrimSpace(c.QueryParam("q"))
	rows, err := s.deps.Store.Search(c.Request().Context(), q)
	if err != nil {
		if errors.Is(err, storage.ErrUnknownField) {
			return c.JSON(http.StatusBadRequest, errResp(err.Error()))
		}
		return c.JSON(http.StatusInternalServerError, errResp(err.Error()))
	}
	return c.JSON(http.StatusOK, rows)
}

type deleteRequest struct {
	Date  string `json:"date"`
	Time  string `json:"time"`
	Image string `json:"image"`
}

func (s *Server) handleDelete(c echo.Context) error {
	if s.deps.Store == nil {
		return c.JSON(http.StatusServiceUnavailable, errResp("storage is disabled"))
	}
	var req deleteRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errResp("invalid JSON body"))
	}
	if req.Date == "" || req.Time == "" || req.Image == "" {
		return c.JSON(http.StatusBadRequest, errResp("date, time and image are all required"))
	}
	n, err := s.deps.Store.DeletePrediction(c.Request().Context(), req.Date, req.Time, req.Image)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errResp(err.Error()))
	}
	return c.JSON(http.StatusOK, map[string]any{"message": "data deleted", "deleted": n})
}

func (s *Server) handleCleanOldDirs(c echo.Context) error {
	deleted, err := s.deps.Sweeper.Sweep(s.deps.MaxAgeDays)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errResp(err.Error()))
	}
	return c.JSON(http.StatusOK, map[string]any{"deleted_directories": deleted})
}

type deleteDirRequest struct {
	Directory string `json:"directory"`
}

func (s *Server) handleDeleteDir(c echo.Context) error {
	var req deleteDirRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errResp("invalid JSON body"))
	}
	if strings.TrimSpace(req.Directory) == "" {
		return c.JSON(http.StatusBadRequest, errResp("body must include a 'directory' field"))
	}
	deleted, err := s.deps.Sweeper.DeleteByKeyword(req.Directory)
	if err != nil {
		if vault.IsValidation(err) {
			return c.JSON(http.StatusBadRequest, errResp(err.Error()))
		}
		return c.JSON(http.StatusInternalServerError, errResp(err.Error()))
	}
	return c.JSON(http.StatusOK, map[string]any{
		"keyword":             req.Directory,
		"deleted_directories": deleted,
	})
}

func (s *Server) handleUpdateSchedule(c echo.Context) error {
	var body map[string]json.RawMessage
	if err := c.Bind(&body); err != nil || body == nil {
		return c.JSON(http.StatusBadRequest, errResp("invalid JSON body"))
	}

	runNow := false
	if raw, ok := body["run_now"]; ok {
		_ = json.Unmarshal(raw, &runNow)
		delete(body, "run_now")
	}

	rs := schedule.RuleSet{}
	for name, raw := range body {
		var rule schedule.Rule
		if err := json.Unmarshal(raw, &rule); err != nil {
			return c.JSON(http.StatusBadRequest, errResp("invalid rule for task "+name))
		}
		rs[name] = rule
	}

	if err := s.deps.Rules.Save(rs); err != nil {
		return c.JSON(http.StatusInternalServerError, errResp(err.Error()))
	}

	msg := "schedule updated"
	if runNow {
		if _, err := s.deps.Sched.RunOnce(c.Request().Context()); err != nil {
			return c.JSON(http.StatusInternalServerError, errResp(err.Error()))
		}
		msg += "; poll executed"
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "success", "message": msg})
}

func (s *Server) handleCheckSchedule(c echo.Context) error {
	res, err := s.deps.Sched.RunOnce(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errResp(err.Error()))
	}
	if res.NoConfig {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "no_config",
			"message": "no schedule configuration found",
		})
	}
	return c.JSON(http.StatusOK, res)
}

type filterRequest struct {
	Year  any `json:"year"`
	Month any `json:"month"`
	Week  any `json:"week"`
	Date  any `json:"date"`
}

func (s *Server) handleFilterDirectories(c echo.Context) error {
	var req filterRequest
	// An empty body is the "trailing 7 days" spec.
	_ = c.Bind(&req)

	spec, err := vault.NewPeriodSpec(req.Year, req.Month, req.Week, req.Date)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errResp(err.Error()))
	}
	matched, err := s.deps.Filter.Match(spec)
	if err != nil {
		if vault.IsValidation(err) {
			return c.JSON(http.StatusBadRequest, errResp(err.Error()))
		}
		return c.JSON(http.StatusInternalServerError, errResp(err.Error()))
	}

	resp := map[string]any{"matched_directories": matched}
	if spec.Kind == vault.PeriodRecent {
		resp["info"] = "directories for the trailing 7 days"
	}
	return c.JSON(http.StatusOK, resp)
}

type fullImageRequest struct {
	Date string `json:"date"` // YYYY-MM-DD
	Time string `json:"time"` // HH:MM:SS
}

func (s *Server) handleGetFullImage(c echo.Context) error {
	var req fullImageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errResp("invalid JSON body"))
	}
	if req.Date == "" || req.Time == "" {
		return c.JSON(http.StatusBadRequest, errResp("missing 'date' or 'time'"))
	}
	t, err := time.ParseInLocation("2006-01-02 15:04:05", req.Date+" "+req.Time, time.Local)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errResp("invalid date or time format"))
	}

	dir, ok, err := s.deps.Resolver.FindByWindow(t, vault.DefaultTolerance)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errResp(err.Error()))
	}
	if !ok {
		return c.JSON(http.StatusNotFound, errResp("no matching directory found"))
	}

	name, ok := s.deps.Resolver.SelectFile(dir, "full")
	if !ok {
		return c.JSON(http.StatusNotFound, errResp("no image containing 'full' found"))
	}

	b, mt, err := s.deps.Resolver.ReadFile(dir, name)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errResp("failed to read image: "+err.Error()))
	}
	return c.JSON(http.StatusOK, map[string]string{
		"image_name": name,
		"image_data": dataURI(mt, b),
	})
}

func dataURI(mimeType string, b []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(b)
}
