package results

import (
	"fmt"
	"os"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Artifact is the offline-analysis bundle written at the end of a run: the
// full ordered step-result list, the asset identifiers in the order used
// throughout the run, and the complete log-return history.
type Artifact struct {
	RunID          string      `msgpack:"run_id"`
	CreatedAt      time.Time   `msgpack:"created_at"`
	Horizon        int         `msgpack:"horizon"`
	SequenceLength int         `msgpack:"sequence_length"`
	Seed           int64       `msgpack:"seed"`
	Assets         []string    `msgpack:"assets"`
	Results        []StepResult `msgpack:"results"`
	ReturnDates    []string    `msgpack:"return_dates"`
	ReturnHistory  [][]float64 `msgpack:"return_history"` // rows aligned to ReturnDates, columns to Assets
}

// Save writes the artifact to path using msgpack encoding.
func (a *Artifact) Save(path string) error {
	data, err := msgpack.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode artifact: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	return nil
}

// LoadArtifact reads an artifact previously written by Save.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	var a Artifact
	if err := msgpack.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to decode artifact: %w", err)
	}
	return &a, nil
}
