package app

import (
	"context"
	"fmt"
	"time"

	"replay_worker/internal/replay/domain"
	"replay_worker/internal/replay/repository"
	"replay_worker/pkg/logger"
	"replay_worker/pkg/metrics"

	"go.uber.org/zap"
)

const (
	// 收到非逾時的讀取錯誤後等待多久再重試
	readErrorBackoff = time.Second

	strategyAutoClaim  = "autoclaim"
	strategyOwnPending = "own-pending"
)

// MessageDispatcher processes the fields of one request
type MessageDispatcher interface {
	Dispatch(ctx context.Context, values map[string]interface{}) error
}

// ConsumerConfig consumer tuning
type ConsumerConfig struct {
	BlockTimeout time.Duration
	ClaimMinIdle time.Duration
	ClaimBatch   int64
}

// Consumer one blocking consumption loop over the request stream
type Consumer struct {
	stream     repository.StreamRepo
	dispatcher MessageDispatcher
	cfg        ConsumerConfig
	recovery   recoveryStrategy
	liveness   *Liveness
	metrics    *metrics.WorkerMetrics
	log        *logger.LogInfo
}

// NewConsumer 建構 Consumer 實例
func NewConsumer(stream repository.StreamRepo, dispatcher MessageDispatcher, cfg ConsumerConfig, liveness *Liveness, m *metrics.WorkerMetrics, log *logger.LogInfo) *Consumer {
	if cfg.ClaimBatch <= 0 {
		cfg.ClaimBatch = 10
	}
	if liveness == nil {
		liveness = NewLiveness(cfg.BlockTimeout)
	}
	return &Consumer{
		stream:     stream,
		dispatcher: dispatcher,
		cfg:        cfg,
		liveness:   liveness,
		metrics:    m,
		log:        log,
	}
}

// Start joins the group, probes the recovery strategy once, drains recoverable
// entries, then reads new messages until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.stream.EnsureGroup(ctx); err != nil {
		return err
	}
	c.recovery = c.selectRecovery(ctx)
	c.liveness.setStrategy(c.recovery.name())

	if _, err := c.Recover(ctx); err != nil && ctx.Err() == nil {
		c.log.Errorf("startup recovery failed:", err)
	}

	c.log.Info("consumer started, waiting for replay export jobs", zap.String("recovery", c.recovery.name()))
	for {
		if ctx.Err() != nil {
			c.log.Info("consumer received stop signal")
			return nil
		}
		c.liveness.polled()
		msgs, err := c.stream.ReadNew(ctx, 1, c.cfg.BlockTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			c.log.Errorf("read request stream failed:", err)
			sleepCtx(ctx, readErrorBackoff)
			continue
		}
		if len(msgs) == 0 {
			// 逾時代表目前沒有新工作，順便接手其他 consumer 遺留的訊息
			if _, err := c.Recover(ctx); err != nil && ctx.Err() == nil {
				c.log.Errorf("recovery pass failed:", err)
			}
			continue
		}
		for _, msg := range msgs {
			_ = c.handle(ctx, msg)
		}
	}
}

// Recover runs one recovery pass and returns how many entries were acknowledged
func (c *Consumer) Recover(ctx context.Context) (int, error) {
	if c.recovery == nil {
		c.recovery = c.selectRecovery(ctx)
		c.liveness.setStrategy(c.recovery.name())
	}
	n, err := c.recovery.recover(ctx, c)
	c.metrics.AddRecovered(c.recovery.name(), n)
	if n > 0 {
		c.log.Info("recovered pending requests", zap.Int("count", n), zap.String("strategy", c.recovery.name()))
	}
	return n, err
}

func (c *Consumer) selectRecovery(ctx context.Context) recoveryStrategy {
	ok, err := c.stream.SupportsAutoClaim(ctx)
	if err != nil {
		c.log.Warn("xautoclaim probe failed, falling back to own pending entries", zap.Error(err))
	}
	if ok {
		return &autoClaimRecovery{minIdle: c.cfg.ClaimMinIdle, batch: c.cfg.ClaimBatch}
	}
	return &ownPendingRecovery{batch: c.cfg.ClaimBatch}
}

// handle acks only after the dispatcher returned normally
func (c *Consumer) handle(ctx context.Context, msg domain.StreamMessage) error {
	c.liveness.begin()
	defer c.liveness.end()

	log := c.log.With(zap.String("messageId", msg.ID))
	log.Debug("dispatching request")
	if err := c.dispatcher.Dispatch(ctx, msg.Values); err != nil {
		log.Errorf("dispatch failed, message stays pending:", err)
		return err
	}
	if err := c.stream.Ack(ctx, msg.ID); err != nil {
		log.Errorf("ack failed:", err)
		return fmt.Errorf("ack %s: %w", msg.ID, err)
	}
	return nil
}

// recoveryStrategy chosen once per process
type recoveryStrategy interface {
	name() string
	recover(ctx context.Context, c *Consumer) (int, error)
}

// autoClaimRecovery takes over entries that stayed idle longer than minIdle,
// after first re-reading entries already assigned to this consumer.
type autoClaimRecovery struct {
	minIdle time.Duration
	batch   int64
}

func (r *autoClaimRecovery) name() string { return strategyAutoClaim }

func (r *autoClaimRecovery) recover(ctx context.Context, c *Consumer) (int, error) {
	handled, err := drainOwnPending(ctx, c, r.batch)
	if err != nil {
		return handled, err
	}

	start := "0-0"
	for ctx.Err() == nil {
		msgs, next, err := c.stream.AutoClaim(ctx, r.minIdle, start, r.batch)
		if err != nil {
			return handled, err
		}
		for _, msg := range msgs {
			if c.handle(ctx, msg) == nil {
				handled++
			}
		}
		// 空批次不代表掃完，XAUTOCLAIM 每次只掃 COUNT*10 筆
		if next == "" || next == "0-0" {
			break
		}
		start = next
	}
	return handled, ctx.Err()
}

// ownPendingRecovery for servers without XAUTOCLAIM
type ownPendingRecovery struct {
	batch int64
}

func (r *ownPendingRecovery) name() string { return strategyOwnPending }

func (r *ownPendingRecovery) recover(ctx context.Context, c *Consumer) (int, error) {
	return drainOwnPending(ctx, c, r.batch)
}

// drainOwnPending walks this consumer's pending list from the start. The cursor
// moves past every returned entry, so an entry that fails again is left for the
// next pass instead of being retried forever.
func drainOwnPending(ctx context.Context, c *Consumer, batch int64) (int, error) {
	handled := 0
	cursor := "0"
	for ctx.Err() == nil {
		msgs, err := c.stream.ReadOwnPending(ctx, cursor, batch)
		if err != nil {
			return handled, err
		}
		if len(msgs) == 0 {
			return handled, nil
		}
		for _, msg := range msgs {
			if c.handle(ctx, msg) == nil {
				handled++
			}
		}
		cursor = msgs[len(msgs)-1].ID
	}
	return handled, ctx.Err()
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
