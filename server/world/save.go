package world

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/brickgame/brickworld/server/brick/cube"
	"golang.org/x/sync/errgroup"
)

// Save stores all modified chunks and the metadata of the World in the
// Provider. The contents of each chunk are copied under the chunk's lock and
// written after it is released, so edits may continue while saving. Save
// stops between chunks when ctx is done or the World starts closing, and
// returns the context error in that case. Errors storing individual chunks
// are joined and returned once all chunks were attempted.
func (w *World) Save(ctx context.Context) error {
	ctx, cancel := w.closingContext(ctx)
	defer cancel()
	return w.save(ctx)
}

// closingContext returns a context that is cancelled when ctx is done or the
// World starts closing.
func (w *World) closingContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-w.closing:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// save saves all modified chunks and the metadata of the World.
func (w *World) save(ctx context.Context) error {
	if w.conf.ReadOnly {
		return nil
	}
	w.conf.Log.Debug("Saving chunks in memory to disk...")
	refs := w.columns(func(_ cube.ChunkPos, col *Column) bool {
		return col.Modified()
	})

	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.conf.SaveWorkers)
	for _, ref := range refs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := w.saveColumn(ref.pos, ref.col); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	w.conf.Log.Debug("Updating world metadata...")
	if err := w.saveMetadata(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// saveColumn stores a snapshot of the chunk in col. The chunk is considered
// saved only if it did not change while it was written.
func (w *World) saveColumn(pos cube.ChunkPos, col *Column) error {
	snap := col.Snapshot()
	if err := w.conf.Provider.StoreChunk(pos, snap); err != nil {
		w.conf.Log.Error("save chunk: "+err.Error(), "X", pos[0], "Y", pos[1], "Z", pos[2])
		return fmt.Errorf("save chunk %v: %w", pos, err)
	}
	col.MarkSaved(snap.Revision)
	w.saved.Add(1)
	return nil
}

// saveMetadata stores the metadata of the World with an updated save time.
func (w *World) saveMetadata() error {
	w.metaMu.Lock()
	w.meta.LastSaved = time.Now()
	meta := w.meta
	w.metaMu.Unlock()
	if err := w.conf.Provider.SaveMetadata(meta); err != nil {
		return fmt.Errorf("save world metadata: %w", err)
	}
	return nil
}

// Close closes the world and saves all chunks currently loaded.
func (w *World) Close() error {
	w.o.Do(func() {
		w.closeErr = w.close()
	})
	return w.closeErr
}

// close stops the generator workers and autosaving, saves all chunks to the
// Provider and closes it.
func (w *World) close() error {
	w.conf.Handler.HandleClose()

	w.queueMu.Lock()
	w.queueClosed = true
	w.queueMu.Unlock()

	close(w.closing)
	w.running.Wait()
	w.pending.Wait()
	// Tasks sent after the workers drained the queue.
	w.drainGenerationQueue()

	err := w.save(context.Background())

	w.conf.Log.Debug("Closing provider...")
	if cerr := w.conf.Provider.Close(); cerr != nil {
		w.conf.Log.Error("close world provider: " + cerr.Error())
		err = errors.Join(err, fmt.Errorf("close provider: %w", cerr))
	}
	return err
}

// autoSave runs until the world closes, saving modified chunks on every
// interval.
func (w *World) autoSave() {
	defer w.running.Done()

	save := &time.Ticker{C: make(<-chan time.Time)}
	if w.conf.SaveInterval > 0 {
		save = time.NewTicker(w.conf.SaveInterval)
		defer save.Stop()
	}
	for {
		select {
		case <-save.C:
			if err := w.Save(context.Background()); err != nil && !errors.Is(err, context.Canceled) {
				w.conf.Log.Error("autosave: " + err.Error())
			}
		case <-w.closing:
			return
		}
	}
}
