// Package service orchestrates one pipeline tick: fetch, snapshot, diff,
// persist, aggregate.
package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"ais-diff-events/internal/aggregate"
	"ais-diff-events/internal/config"
	"ais-diff-events/internal/diff"
	"ais-diff-events/internal/fetcher"
	"ais-diff-events/internal/scheduler"
	"ais-diff-events/internal/storage"
	"ais-diff-events/internal/vessel"
)

// Service wires the feed, the diff engine, and the stores into the
// periodic pipeline.
type Service struct {
	scheduler *scheduler.Scheduler
	feed      fetcher.VesselFetcher
	store     storage.Store
	engine    *diff.Engine
	logger    zerolog.Logger

	portCode      string
	loc           *time.Location
	lookback      time.Duration
	lookahead     time.Duration
	arrivedWindow time.Duration

	locker  storage.AdvisoryLocker
	lockKey int64

	// running enforces the Idle/Running overlap guard: the previous
	// snapshot must never be read while a new one is being written.
	running atomic.Bool
}

// New constructs the pipeline service.
func New(cfg *config.Config, sched *scheduler.Scheduler, feed fetcher.VesselFetcher, store storage.Store, engine *diff.Engine, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler:     sched,
		feed:          feed,
		store:         store,
		engine:        engine,
		logger:        logger.With().Str("component", "service").Logger(),
		portCode:      cfg.Port.Code,
		loc:           cfg.Port.Location(),
		lookback:      cfg.Port.Lookback,
		lookahead:     cfg.Port.Lookahead,
		arrivedWindow: cfg.Rules.ArrivedWindow,
		locker:        locker,
		lockKey:       cfg.Scheduler.AdvisoryLockKey,
	}
}

// Run begins the periodic pipeline loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessTick)
}

// ProcessTick 执行单次抓取-对比-汇总流程。
// A tick never starts while the previous one is still running.
func (s *Service) ProcessTick(ctx context.Context, now time.Time) error {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn().Time("tick", now).Msg("skip tick: previous tick still running")
		return nil
	}
	defer s.running.Store(false)

	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("tick", now).Msg("skip tick because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	return s.executeTick(ctx, now)
}

func (s *Service) executeTick(ctx context.Context, now time.Time) error {
	fromS := now.Add(-s.lookback).Unix()
	toS := now.Add(s.lookahead).Unix()

	records, err := s.feed.FetchVessels(ctx, s.portCode, fromS, toS)
	if err != nil {
		// Fetch failure aborts before any write; the prior snapshot
		// stays the reference for the next tick.
		return fmt.Errorf("fetch vessels: %w", err)
	}

	prev, err := s.store.GetLatestSnapshot(ctx, s.portCode)
	if err != nil {
		return fmt.Errorf("load previous snapshot: %w", err)
	}

	snap := vessel.Snapshot{
		PortCode:   s.portCode,
		FetchedAt:  now.UnixMilli(),
		WindowFrom: fromS,
		WindowTo:   toS,
		Vessels:    records,
	}
	// An empty vessel list is valid data, not an error.
	if err := s.store.SaveSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	if prev != nil {
		prevFetchedAt := prev.FetchedAt
		events, err := s.engine.Diff(ctx, prev, snap, &prevFetchedAt, now)
		if err != nil {
			return fmt.Errorf("diff snapshots: %w", err)
		}
		if err := s.store.SaveEvents(ctx, events); err != nil {
			return fmt.Errorf("save events: %w", err)
		}
		s.logger.Info().
			Str("port", s.portCode).
			Int("vessels", len(records)).
			Int("events", len(events)).
			Msg("tick diffed")
	} else {
		s.logger.Info().
			Str("port", s.portCode).
			Int("vessels", len(records)).
			Msg("baseline snapshot recorded")
	}

	arrivals := aggregate.BuildArrivals(snap, now, s.arrivedWindow, s.loc)
	if err := s.store.UpsertArrivals(ctx, arrivals); err != nil {
		return fmt.Errorf("upsert arrivals: %w", err)
	}

	return s.RecomputeAggregates(ctx, now)
}

// RecomputeAggregates rebuilds the daily and weekly rollups containing ref
// purely from the stored event log. Safe to call repeatedly.
func (s *Service) RecomputeAggregates(ctx context.Context, ref time.Time) error {
	now := time.Now().UTC()

	day := aggregate.Day(ref, s.loc)
	if err := s.recomputeWindow(ctx, day, now, s.store.UpsertDailyAggregate); err != nil {
		return fmt.Errorf("recompute daily aggregate: %w", err)
	}

	week := aggregate.Week(ref, s.loc)
	if err := s.recomputeWindow(ctx, week, now, s.store.UpsertWeeklyAggregate); err != nil {
		return fmt.Errorf("recompute weekly aggregate: %w", err)
	}
	return nil
}

func (s *Service) recomputeWindow(ctx context.Context, w aggregate.Window, now time.Time, upsert func(context.Context, string, vessel.AggregateRow) error) error {
	events, err := s.store.ListEventsBetween(ctx, w.Start.UnixMilli(), w.End.UnixMilli())
	if err != nil {
		return err
	}
	row := aggregate.Fold(events, w, now)
	return upsert(ctx, s.portCode, row)
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
