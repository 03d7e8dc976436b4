// Package dataset slices the aligned feature/target tables into fixed-length
// sequence windows and provides the feature-wise standardizers fitted per
// walk-forward step.
package dataset

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/volcast/internal/features"
)

// Window is one training or prediction sample: sequence_length consecutive
// feature rows paired with the target vector of the window's last covered
// date.
type Window struct {
	Index    int
	Date     string      // Anchor date, the last row the window covers
	Features [][]float64 // length L, each row of width F
	Target   []float64   // width A
}

// Windower slices an aligned feature set into overlapping windows of a
// fixed length.
type Windower struct {
	length int
	log    zerolog.Logger
}

// NewWindower creates a windower with the given sequence length.
func NewWindower(length int, log zerolog.Logger) *Windower {
	return &Windower{
		length: length,
		log:    log.With().Str("component", "windower").Logger(),
	}
}

// Slice emits rows-L windows: window i covers feature rows [i, i+L) and its
// target is the target row at index i+L-1. Producing zero windows is a
// fatal configuration error, reported as such to the caller.
func (w *Windower) Slice(set *features.Set) ([]Window, error) {
	rows := set.Rows()
	_, fCols := set.Features.Dims()
	_, tCols := set.Targets.Dims()

	count := rows - w.length
	if count <= 0 {
		return nil, fmt.Errorf("cannot build windows: %d aligned rows with sequence length %d", rows, w.length)
	}

	windows := make([]Window, count)
	for i := 0; i < count; i++ {
		feat := make([][]float64, w.length)
		for k := 0; k < w.length; k++ {
			row := make([]float64, fCols)
			copy(row, set.Features.RawRowView(i+k))
			feat[k] = row
		}
		target := make([]float64, tCols)
		copy(target, set.Targets.RawRowView(i+w.length-1))

		windows[i] = Window{
			Index:    i,
			Date:     set.Dates[i+w.length-1],
			Features: feat,
			Target:   target,
		}
	}

	w.log.Debug().Int("windows", count).Int("length", w.length).Msg("Sliced windows")
	return windows, nil
}
