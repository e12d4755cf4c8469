package classify

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"chilivault/internal/clock"
	"chilivault/internal/storage"
	"chilivault/internal/vault"
	logx "chilivault/pkg/logx"
)

// ErrNoImages reports an empty staging area; the caller branches on it, it
// is not a failure.
var ErrNoImages = errors.New("no image files in staging area")

// Deferrer schedules a one-shot delayed job. Implemented by the schedule
// poll service; the delay mechanism is opaque to this package.
type Deferrer interface {
	Defer(name string, d time.Duration, fn func(ctx context.Context))
}

// ItemResult is one classified image in a run report.
type ItemResult struct {
	Date  string       `json:"date"`
	Time  string       `json:"time"`
	Image string       `json:"image"`
	Top3  []Prediction `json:"top3"`
}

// RunReport summarizes one classification run.
type RunReport struct {
	Results     []ItemResult `json:"classification_result"`
	ResultsFile string       `json:"results_file,omitempty"`
}

// Runner orchestrates a classification run: classify every staged image,
// persist prediction rows, write a results file, then hand the batch to the
// allocator (optionally after a delay).
type Runner struct {
	temp       string
	resultsDir string

	classifier Classifier
	store      storage.Store
	alloc      *vault.Allocator
	deferrer   Deferrer
	clk        clock.Clock
	log        logx.Logger

	archiveDelay time.Duration
}

func NewRunner(tempDir, resultsDir string, cl Classifier, st storage.Store, alloc *vault.Allocator,
	def Deferrer, clk clock.Clock, archiveDelay time.Duration, log logx.Logger) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{
		temp:         tempDir,
		resultsDir:   resultsDir,
		classifier:   cl,
		store:        st,
		alloc:        alloc,
		deferrer:     def,
		clk:          clk,
		archiveDelay: archiveDelay,
		log:          log,
	}
}

// Run classifies every staged image. A single image that fails to classify
// or persist is skipped and omitted from the report; the run continues.
// Returns ErrNoImages when the staging area holds no images.
func (r *Runner) Run(ctx context.Context) (RunReport, error) {
	if r.classifier == nil {
		return RunReport{}, errors.New("classifier not configured")
	}
	images, err := listImages(r.temp)
	if err != nil {
		return RunReport{}, err
	}
	if len(images) == 0 {
		return RunReport{}, ErrNoImages
	}

	now := r.clk.Now()
	date := now.Format(vault.DateLayout)
	tm := now.Format("15:04:05")

	report := RunReport{Results: make([]ItemResult, 0, len(images))}
	for _, img := range images {
		preds, err := r.classifier.Classify(ctx, filepath.Join(r.temp, img))
		if err != nil {
			r.log.Warn("classification failed, skipping image", logx.String("image", img), logx.Err(err))
			continue
		}
		top3 := padTop3(preds)

		if r.store != nil {
			p := storage.Prediction{
				TakenDate: date, TakenTime: tm, Image: img,
				Class1: top3[0].Label, Conf1: top3[0].Confidence,
				Class2: top3[1].Label, Conf2: top3[1].Confidence,
				Class3: top3[2].Label, Conf3: top3[2].Confidence,
			}
			if err := r.store.InsertPrediction(ctx, p); err != nil {
				r.log.Warn("prediction insert failed", logx.String("image", img), logx.Err(err))
			}
		}

		report.Results = append(report.Results, ItemResult{
			Date: date, Time: tm, Image: img, Top3: top3,
		})
	}

	if path, err := r.writeResultsFile(now, report.Results); err != nil {
		r.log.Warn("results file write failed", logx.Err(err))
	} else {
		report.ResultsFile = path
	}

	r.scheduleArchive(ctx)
	return report, nil
}

// scheduleArchive hands the batch to the allocator, after the configured
// delay when a deferrer is available.
func (r *Runner) scheduleArchive(ctx context.Context) {
	if r.deferrer != nil {
		r.deferrer.Defer("post-classify-archive", r.archiveDelay, func(ctx context.Context) {
			if _, err := r.alloc.Archive(ctx); err != nil {
				r.log.Warn("post-classification archive failed", logx.Err(err))
			}
		})
		return
	}
	if _, err := r.alloc.Archive(ctx); err != nil {
		r.log.Warn("post-classification archive failed", logx.Err(err))
	}
}

func (r *Runner) writeResultsFile(now time.Time, results []ItemResult) (string, error) {
	if err := os.MkdirAll(r.resultsDir, 0o755); err != nil {
		return "", err
	}
	name := "results_" + now.Format("2006-01-02_15-04-05") + ".json"
	path := filepath.Join(r.resultsDir, name)
	b, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func listImages(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	out := []string{}
	for _, e := range ents {
		if !e.Type().IsRegular() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			out = append(out, e.Name())
		}
	}
	return out, nil
}

func padTop3(preds []Prediction) []Prediction {
	top := make([]Prediction, 3)
	copy(top, preds)
	return top
}
