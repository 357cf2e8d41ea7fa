// Package refresh keeps an up to date snapshot of a content repository in
// memory and reloads it on a cron schedule.
package refresh

import (
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "pantallita/internal/log"
	"pantallita/internal/model"
	"pantallita/internal/repo"
)

// Status is the outcome of the latest reload.
type Status struct {
	// Snapshot is the last snapshot that loaded cleanly, nil until one has.
	Snapshot *repo.Snapshot
	// LoadedAt is when Snapshot was loaded.
	LoadedAt time.Time
	// Err is the error of the latest reload, nil if it succeeded.
	Err error
}

// Refresher reloads a repository for the current date.
type Refresher struct {
	repo *repo.Repository
	loc  *time.Location
	now  func() time.Time

	mu     sync.RWMutex
	status Status

	cronMu sync.Mutex
	cron   *cron.Cron
}

// New returns a Refresher for r that reads "today" in loc. If loc is nil,
// time.Local is used.
func New(r *repo.Repository, loc *time.Location) *Refresher {
	if loc == nil {
		loc = time.Local
	}
	return &Refresher{repo: r, loc: loc, now: time.Now}
}

// Repository returns the repository being refreshed.
func (f *Refresher) Repository() *repo.Repository { return f.repo }

// Location returns the location the current date is read in.
func (f *Refresher) Location() *time.Location { return f.loc }

// SetClock replaces the time source. It must be called before Start.
func (f *Refresher) SetClock(now func() time.Time) { f.now = now }

// Now returns the current time in the refresher's location.
func (f *Refresher) Now() time.Time { return f.now().In(f.loc) }

// Reload loads the snapshot for today. On failure the previous snapshot is
// kept and the error is recorded in the status.
func (f *Refresher) Reload() (*repo.Snapshot, error) {
	now := f.Now()
	snap, err := f.repo.Load(now)

	f.mu.Lock()
	defer f.mu.Unlock()

	if err != nil {
		f.status.Err = err
		appLog.Error("reload failed; keeping previous snapshot", err,
			"root", f.repo.Root(),
			"has_previous", f.status.Snapshot != nil,
		)
		return nil, err
	}

	f.status = Status{Snapshot: snap, LoadedAt: now}
	appLog.Info("snapshot reloaded",
		"root", f.repo.Root(),
		"date", now.Format(model.DateLayout),
		"events", len(snap.Events),
		"schedule", snap.Schedule.Source,
		"warnings", len(snap.Warnings),
	)
	return snap, nil
}

// Current returns the latest status.
func (f *Refresher) Current() Status {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.status
}

// Start reloads on the standard 5-field cron spec, evaluated in the
// refresher's location. Calling Start twice is an error.
func (f *Refresher) Start(spec string) error {
	f.cronMu.Lock()
	defer f.cronMu.Unlock()

	if f.cron != nil {
		return errors.New("refresh: already started")
	}

	c := cron.New(cron.WithLocation(f.loc), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(spec, func() { _, _ = f.Reload() }); err != nil {
		return err
	}
	c.Start()
	f.cron = c

	appLog.Info("refresh scheduled", "spec", spec, "timezone", f.loc.String())
	return nil
}

// Stop stops the schedule and waits for a running reload to finish.
func (f *Refresher) Stop() {
	f.cronMu.Lock()
	c := f.cron
	f.cron = nil
	f.cronMu.Unlock()

	if c == nil {
		return
	}
	ctx := c.Stop()
	<-ctx.Done()
}
