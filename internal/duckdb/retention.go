package duckdb

import (
	"fmt"
	"sync"
	"time"

	"github.com/tinytelemetry/diaglog/internal/model"
	"github.com/tinytelemetry/diaglog/internal/mlog"
)

// Expirer deletes submissions older than a cutoff and reports their IDs.
type Expirer interface {
	DeleteBefore(cutoff time.Time) ([]string, error)
}

// RetentionConfig holds configuration for the retention cleaner.
type RetentionConfig struct {
	RetentionDays int
	// Interval between sweeps. Defaults to one hour.
	Interval time.Duration
	// OnExpired receives the IDs removed by each sweep, e.g. to delete blobs.
	OnExpired func(ids []string)
	Log       *mlog.Facade
}

// RetentionCleaner periodically deletes submissions older than the configured retention period.
type RetentionCleaner struct {
	store         Expirer
	retentionDays int
	interval      time.Duration
	onExpired     func(ids []string)
	log           *mlog.Facade
	now           func() time.Time
	done          chan struct{}
	wg            sync.WaitGroup
	stopOnce      sync.Once
}

// NewRetentionCleaner creates a retention cleaner that deletes expired submissions.
// Returns nil when retention is 0 (disabled).
func NewRetentionCleaner(store Expirer, conf ...RetentionConfig) *RetentionCleaner {
	cfg := RetentionConfig{RetentionDays: model.DefaultRetentionDays}
	if len(conf) > 0 {
		cfg = conf[0]
	}
	if cfg.RetentionDays <= 0 {
		return nil
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Log == nil {
		cfg.Log = mlog.Default()
	}

	rc := &RetentionCleaner{
		store:         store,
		retentionDays: cfg.RetentionDays,
		interval:      cfg.Interval,
		onExpired:     cfg.OnExpired,
		log:           cfg.Log,
		now:           time.Now,
		done:          make(chan struct{}),
	}

	// Startup cleanup to catch up after downtime.
	rc.cleanup()

	rc.wg.Add(1)
	go rc.tickLoop()

	return rc
}

func (rc *RetentionCleaner) tickLoop() {
	defer rc.wg.Done()
	ticker := time.NewTicker(rc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rc.cleanup()
		case <-rc.done:
			return
		}
	}
}

func (rc *RetentionCleaner) cleanup() {
	cutoff := rc.now().Add(-time.Duration(rc.retentionDays) * 24 * time.Hour)

	ids, err := rc.store.DeleteBefore(cutoff)
	if err != nil {
		rc.log.Exception(err, "duckdb: retention cleanup failed", false)
		return
	}
	if len(ids) == 0 {
		return
	}
	rc.log.Information(fmt.Sprintf("duckdb: retention cleanup deleted %d expired submissions (older than %d days)", len(ids), rc.retentionDays))
	if rc.onExpired != nil {
		rc.onExpired(ids)
	}
}

// Stop signals the cleaner to stop and waits for it to finish.
// It is safe to call more than once and on a nil cleaner.
func (rc *RetentionCleaner) Stop() {
	if rc == nil {
		return
	}
	rc.stopOnce.Do(func() {
		close(rc.done)
		rc.wg.Wait()
	})
}
