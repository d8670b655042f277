package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"docsync/internal/logger"
	"docsync/internal/model"
	"docsync/internal/pipeline"
	"docsync/internal/watcher"

	"go.uber.org/zap"
)

// Watch runs an initial full pass, then regenerates sources as they change
// until ctx is cancelled. Only a watcher that cannot start or a metadata
// persistence failure ends it early.
func (o *Orchestrator) Watch(ctx context.Context) error {
	sum, err := o.SyncAll(ctx, Options{})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		return err
	}
	o.logFailures(sum)

	w, err := watcher.New(o.cfg.BufferSize)
	if err != nil {
		return err
	}
	if err := w.Watch(o.configDir); err != nil {
		w.Stop()
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	o.watching.Store(true)
	defer o.watching.Store(false)

	filtered := pipeline.Filter(w.Events(), o.cfg.IgnoreList, o.detector.Owns)
	coord := pipeline.NewCoordinator(o.cfg.Watch.Debounce, o.cfg.BufferSize)
	go coord.Run(filtered)

	// A fatal error from a worker cancels the rest of the loop.
	wctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var wg sync.WaitGroup
	for range o.cfg.Watch.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for req := range coord.Requests() {
				if err := o.handleRequest(wctx, req); err != nil {
					cancel(err)
				}
			}
		}()
	}

	logger.Log.Info("watching for configuration changes",
		zap.String("dir", o.configDir),
		zap.Duration("debounce", o.cfg.Watch.Debounce),
		zap.Int("workers", o.cfg.Watch.Workers))

	<-wctx.Done()

	w.Stop()
	coord.Stop()
	wg.Wait()

	logger.Log.Info("watch stopped")

	if cause := context.Cause(wctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return nil
}

func (o *Orchestrator) handleRequest(ctx context.Context, req model.FileEvent) error {
	log := logger.Log.With(
		zap.String("path", req.Path),
		zap.String("event", string(req.Type)))
	log.Debug("regeneration requested")

	var (
		sum *Summary
		err error
	)
	if req.Type == model.EventDelete {
		sum, err = o.HandleDeletion(ctx, req.Path)
	} else {
		sum, err = o.SyncFile(ctx, req.Path, Options{})
	}

	if err != nil {
		if errors.Is(err, model.ErrMetadataPersist) {
			return err
		}
		if errors.Is(err, model.ErrSourceNotFound) {
			log.Debug("source gone before regeneration")
			return nil
		}
		log.Error("failed to handle change", zap.Error(err))
		return nil
	}
	o.logFailures(sum)
	return nil
}

func (o *Orchestrator) logFailures(sum *Summary) {
	for _, f := range sum.Failures {
		logger.Log.Error("sync failed",
			zap.String("source", f.Source),
			zap.String("kind", f.Kind),
			zap.Error(f.Err))
	}
}
