package index

import (
	"encoding/json"
	"os"
	"time"

	"gitlab.com/tozd/go/errors"
)

// 📋 Summary is the JSON run report written when a summary path is set
type Summary struct {
	Date            string          `json:"date"`
	Plugin          string          `json:"plugin"`
	BuildBase       string          `json:"build_base"`
	Processed       int             `json:"processed"`
	Failed          int             `json:"failed"`
	DurationSeconds float64         `json:"duration_seconds"`
	Targets         []TargetSummary `json:"targets"`
}

// TargetSummary is one target's line in the run report
type TargetSummary struct {
	Target          string  `json:"target"`
	Sources         int     `json:"sources,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// WriteSummary persists a batch outcome for build diagnostics
func WriteSummary(path string, batch *Batch, pluginName, buildBase string) error {
	s := Summary{
		Date:            time.Now().Format(time.RFC3339),
		Plugin:          pluginName,
		BuildBase:       buildBase,
		Processed:       batch.Processed,
		Failed:          batch.Failed,
		DurationSeconds: batch.Duration.Seconds(),
	}
	for _, res := range batch.Results {
		s.Targets = append(s.Targets, TargetSummary{
			Target:          res.Target,
			Sources:         res.Sources,
			DurationSeconds: res.Duration.Seconds(),
		})
	}
	for _, terr := range batch.Errors {
		s.Targets = append(s.Targets, TargetSummary{
			Target: terr.Target,
			Error:  terr.Error(),
		})
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.Errorf("encoding summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Errorf("writing summary %s: %w", path, err)
	}
	return nil
}
