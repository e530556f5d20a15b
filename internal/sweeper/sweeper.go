// Package sweeper expires pending orders whose auction window has passed.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"gorod-bot/internal/metrics"
	"gorod-bot/internal/repo"
)

// CustomerSender delivers expiry notices to customers.
type CustomerSender interface {
	SendText(ctx context.Context, phone, text string) error
}

// Sweeper periodically cancels pending orders with expired auction timers.
// Expiry is a conditional update, so a concurrent claim always beats the
// sweep and an already-claimed order is never cancelled.
type Sweeper struct {
	repo     repo.Repository
	sender   CustomerSender
	interval time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a Sweeper.
func New(r repo.Repository, sender CustomerSender, interval time.Duration, m *metrics.Metrics, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{
		repo:     r,
		sender:   sender,
		interval: interval,
		metrics:  m,
		logger:   logger.With("component", "sweeper"),
	}
}

// Run sweeps on the configured interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("sweep failed", "error", err)
				s.metrics.Errors.WithLabelValues("sweeper").Inc()
			}
		}
	}
}

// RunOnce processes every expired timer. Safe to call repeatedly: a timer is
// marked processed after handling, and the cancellation itself is
// conditional, so reruns are no-ops.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	s.metrics.SweeperRuns.Inc()

	timers, err := s.repo.ListExpiredTimers(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("list expired timers: %w", err)
	}
	for _, timer := range timers {
		if err := s.expire(ctx, timer); err != nil {
			s.logger.Error("failed expiring order", "error", err, "order_id", timer.OrderID)
			s.metrics.Errors.WithLabelValues("sweeper").Inc()
			continue
		}
		if err := s.repo.MarkTimerProcessed(ctx, timer.ID); err != nil {
			s.logger.Error("failed marking timer processed", "error", err, "timer_id", timer.ID)
			s.metrics.Errors.WithLabelValues("sweeper").Inc()
		}
	}
	return nil
}

func (s *Sweeper) expire(ctx context.Context, timer repo.AuctionTimer) error {
	order, err := s.repo.GetOrder(ctx, timer.OrderID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.logger.Warn("timer references missing order", "order_id", timer.OrderID)
			return nil
		}
		return fmt.Errorf("load order %s: %w", timer.OrderID, err)
	}
	if order.Status != repo.StatusPending {
		// Claimed or cancelled before the window closed; nothing to do.
		return nil
	}

	cancelled, err := s.repo.AdvanceOrderStatus(ctx, order.ID, repo.StatusPending, repo.StatusCancelled)
	if err != nil {
		return fmt.Errorf("cancel order %s: %w", order.ID, err)
	}
	if !cancelled {
		// Lost the race to a claim between the load and the update.
		return nil
	}
	s.metrics.SweeperCancelled.WithLabelValues(string(order.Type)).Inc()
	s.metrics.OrderTransitions.WithLabelValues(string(order.Type), string(repo.StatusCancelled)).Inc()
	s.logger.Info("order expired", "order_id", order.ID, "type", order.Type)

	if err := s.sender.SendText(ctx, order.ClientPhone, fmt.Sprintf(
		"К сожалению, на заказ %s никто не откликнулся. Попробуйте оформить его ещё раз.", order.ID)); err != nil {
		s.logger.Error("failed notifying customer about expiry", "error", err, "order_id", order.ID)
	}
	return nil
}
