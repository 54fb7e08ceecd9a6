package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/andresuchdata/autopo-servicelevel/internal/closedloop"
	"github.com/andresuchdata/autopo-servicelevel/internal/metrics"
	"github.com/andresuchdata/autopo-servicelevel/internal/storage"
	"github.com/rs/zerolog/log"
)

// RunClosedLoop reviews every SKU as of asOf, then caches, archives and
// records the report. Only archive failures are returned; the cache is best effort.
func (s *ServiceLevelService) RunClosedLoop(ctx context.Context, asOf time.Time) (*closedloop.Report, error) {
	engine := closedloop.NewEngine(s.store,
		closedloop.WithConcurrency(s.concurrency),
		closedloop.WithAuditUser(s.auditUser),
		closedloop.WithClock(s.now),
	)

	start := time.Now()
	report, err := engine.Run(ctx, asOf)
	if err != nil {
		metrics.ObserveRunFailure(failedRunMode(err))
		return nil, err
	}

	actions := make(map[string]int)
	for _, d := range report.Decisions {
		actions[string(d.Action)]++
	}
	metrics.ObserveRun(metrics.RunResult{
		ActionMode: string(report.ActionMode),
		Actions:    actions,
		Applied:    report.Summary.SKUsApplied,
		Duration:   time.Since(start),
	})

	payload, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}

	if err := s.cache.SetReport(ctx, report.AsOf, payload); err != nil {
		log.Warn().Err(err).Str("run_id", report.RunID).Msg("closed loop: cache set report failed")
	}

	if s.archive != nil {
		key, err := storage.ArchiveReport(ctx, s.archive, s.archivePrefix, report.AsOf, report.RunID, payload)
		if err != nil {
			return nil, err
		}
		log.Info().Str("run_id", report.RunID).Str("key", key).Msg("closed loop: report archived")
	}

	return report, nil
}

// failedRunMode is the action mode of a failed run, or "unknown" when the
// run failed before its settings were read.
func failedRunMode(err error) string {
	var runErr *closedloop.RunError
	if errors.As(err, &runErr) {
		return string(runErr.ActionMode)
	}
	return "unknown"
}

// GetReport returns the encoded report of the last run for asOf. A cache miss
// falls back to the newest archived report for that day, which is then cached
// again. Without an archive a cache error is returned as is.
func (s *ServiceLevelService) GetReport(ctx context.Context, asOf time.Time) ([]byte, bool, error) {
	payload, ok, err := s.cache.GetReport(ctx, asOf)
	if err != nil {
		if s.archive == nil {
			return nil, false, fmt.Errorf("get cached report: %w", err)
		}
		log.Warn().Err(err).Str("as_of", asOf.Format("2006-01-02")).Msg("closed loop: cache get report failed, reading archive")
	}
	if ok {
		return payload, true, nil
	}
	if s.archive == nil {
		return nil, false, nil
	}

	payload, ok, err = storage.LatestReport(ctx, s.archive, s.archivePrefix, asOf)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	if err := s.cache.SetReport(ctx, asOf, payload); err != nil {
		log.Warn().Err(err).Str("as_of", asOf.Format("2006-01-02")).Msg("closed loop: cache refill failed")
	}
	return payload, true, nil
}
