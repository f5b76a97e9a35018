package evolution

import (
	"context"
	"runtime"
	"slices"
	"time"

	"github.com/goccy/go-json"
	"github.com/okian/tablewire/internal/domain/model"
)

const defaultBatchSize = 50

// ConvertFunc maps one raw table onto a Game.
type ConvertFunc func(id string, raw json.RawMessage) (model.Game, error)

// BatchError records one entry that failed conversion.
type BatchError struct {
	ID  string
	Err error
}

// ConvertBatches converts tables in fixed-size batches, yielding the
// scheduler between batches. A failing entry is recorded and skipped; only
// ctx cancellation stops the run early, returning what was converted so far.
func ConvertBatches(ctx context.Context, tables map[string]json.RawMessage, size int, convert ConvertFunc) ([]model.Game, []BatchError, model.BatchSummary, error) {
	if size <= 0 {
		size = defaultBatchSize
	}
	start := time.Now()

	ids := make([]string, 0, len(tables))
	for id := range tables {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	games := make([]model.Game, 0, len(ids))
	var failed []BatchError
	summary := model.BatchSummary{Total: len(ids)}

	for chunk := range slices.Chunk(ids, size) {
		for _, id := range chunk {
			g, err := convert(id, tables[id])
			if err != nil {
				failed = append(failed, BatchError{ID: id, Err: err})
				continue
			}
			games = append(games, g)
		}
		summary.Batches++

		runtime.Gosched()
		if err := ctx.Err(); err != nil {
			summary.Converted = len(games)
			summary.Failed = len(failed)
			summary.Took = time.Since(start)
			summary.At = time.Now().UTC()
			return games, failed, summary, err
		}
	}

	summary.Converted = len(games)
	summary.Failed = len(failed)
	summary.Took = time.Since(start)
	summary.At = time.Now().UTC()
	return games, failed, summary, nil
}
