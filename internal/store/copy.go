package store

import (
	"context"

	"github.com/rotisserie/eris"
)

// Copy upserts every record of src matching batchID into dst, keeping batch
// tags and creation times. It is used to publish a local SQLite run to a
// shared Postgres database.
func Copy(ctx context.Context, src, dst Store, batchID string) (int64, error) {
	results, err := src.All(ctx, ResultFilter{BatchID: batchID})
	if err != nil {
		return 0, eris.Wrap(err, "copy: load source")
	}
	n, err := dst.SaveMany(ctx, results)
	return n, eris.Wrap(err, "copy: save destination")
}
