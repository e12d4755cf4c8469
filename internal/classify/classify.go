// Package classify runs the image-classification boundary and ties its
// results to the prediction store and the archival pipeline. The model
// itself lives behind the Classifier interface; the production
// implementation shells out to a configured external command.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"time"

	logx "chilivault/pkg/logx"
)

// Prediction is one label/confidence pair.
type Prediction struct {
	Label      string  `json:"class"`
	Confidence float64 `json:"confidence"`
}

// Classifier produces the top predictions for one image.
type Classifier interface {
	Classify(ctx context.Context, imagePath string) ([]Prediction, error)
}

// CommandClassifier execs an external command with the image path appended
// as the last argument. The command must print a JSON array of
// {"class": ..., "confidence": ...} objects, best first, on stdout.
type CommandClassifier struct {
	command []string
	timeout time.Duration
	log     logx.Logger
}

func NewCommandClassifier(command []string, timeout time.Duration, log logx.Logger) (*CommandClassifier, error) {
	if len(command) == 0 {
		return nil, errors.New("classifier command is required")
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &CommandClassifier{command: command, timeout: timeout, log: log}, nil
}

func (c *CommandClassifier) Classify(ctx context.Context, imagePath string) ([]Prediction, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	args := append(append([]string{}, c.command[1:]...), imagePath)
	cmd := exec.CommandContext(ctx, c.command[0], args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("classifier command failed: %w (stderr: %s)", err, stderr.String())
	}
	c.log.Debug("classifier finished",
		logx.String("image", imagePath), logx.Duration("took", time.Since(start)))

	var preds []Prediction
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &preds); err != nil {
		return nil, fmt.Errorf("classifier output is not a prediction array: %w", err)
	}
	return preds, nil
}
