package main

import (
	"context"

	"dexflow/logger"
	"dexflow/models"
)

// pairsFanout duplicates decoded pair batches to every enabled writer. With
// a single consumer it hands the source channel through untouched; with more
// it copies each batch to one buffered channel per writer, dropping for a
// writer that has fallen behind rather than blocking the rest.
type pairsFanout struct {
	outs   []chan models.BatchPairsMessage
	direct <-chan models.BatchPairsMessage
	cursor int
}

func newPairsFanout(ctx context.Context, src chan models.BatchPairsMessage, consumers, bufferSize int, log *logger.Log) *pairsFanout {
	if consumers <= 1 {
		return &pairsFanout{direct: src}
	}
	if bufferSize < 1 {
		bufferSize = 1
	}

	f := &pairsFanout{outs: make([]chan models.BatchPairsMessage, consumers)}
	for i := range f.outs {
		f.outs[i] = make(chan models.BatchPairsMessage, bufferSize)
	}

	go func() {
		defer func() {
			for _, out := range f.outs {
				close(out)
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case batch, ok := <-src:
				if !ok {
					return
				}
				for i, out := range f.outs {
					select {
					case out <- batch:
					default:
						log.WithComponent("pairs_fanout").WithFields(logger.Fields{
							"consumer": i,
							"batch_id": batch.BatchID,
						}).Warn("writer feed full, batch dropped")
					}
				}
			}
		}
	}()

	return f
}

// next returns the feed for the next writer. Call exactly once per consumer
// declared to newPairsFanout.
func (f *pairsFanout) next() <-chan models.BatchPairsMessage {
	if f.direct != nil {
		return f.direct
	}
	out := f.outs[f.cursor]
	f.cursor++
	return out
}
