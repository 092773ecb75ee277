// Package maintenance runs scheduled upkeep against the access caches.
//
// The only job today is the bulk flush: on a cron schedule it drops every
// cached permission set and every cached branch set, so grants changed
// outside the API (manual SQL, batch imports) surface within one period
// instead of one TTL.
package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// PermissionInvalidator drops cached permission sets
type PermissionInvalidator interface {
	InvalidateAllUserPermissions(ctx context.Context)
}

// BranchInvalidator drops cached branch sets
type BranchInvalidator interface {
	InvalidateAllUserBranchCache(ctx context.Context)
}

// CacheFlusher periodically invalidates both caches
type CacheFlusher struct {
	cron        *cron.Cron
	permissions PermissionInvalidator
	branches    BranchInvalidator
	timeout     time.Duration
	log         *logrus.Logger
}

// NewCacheFlusher schedules a flush on spec, a standard five-field cron
// expression or a descriptor such as "@every 1h".
func NewCacheFlusher(spec string, permissions PermissionInvalidator, branches BranchInvalidator, log *logrus.Logger) (*CacheFlusher, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	f := &CacheFlusher{
		cron:        cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		permissions: permissions,
		branches:    branches,
		timeout:     30 * time.Second,
		log:         log,
	}

	if _, err := f.cron.AddFunc(spec, f.run); err != nil {
		return nil, fmt.Errorf("invalid flush schedule %q: %w", spec, err)
	}

	return f, nil
}

// Start begins running the schedule in the background
func (f *CacheFlusher) Start() {
	f.cron.Start()
	f.log.WithField("next_run", f.cron.Entries()[0].Next).Info("Cache flusher started")
}

// Stop halts the schedule and waits for a running flush to finish or ctx to end
func (f *CacheFlusher) Stop(ctx context.Context) {
	done := f.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		f.log.Warn("Cache flusher stop timed out with a flush in progress")
		return
	}
	f.log.Info("Cache flusher stopped")
}

// Flush invalidates both caches immediately
func (f *CacheFlusher) Flush(ctx context.Context) {
	start := time.Now()
	f.permissions.InvalidateAllUserPermissions(ctx)
	f.branches.InvalidateAllUserBranchCache(ctx)
	f.log.WithField("duration", time.Since(start)).Info("Flushed access caches")
}

func (f *CacheFlusher) run() {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()
	f.Flush(ctx)
}
