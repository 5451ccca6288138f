package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultMaxBatchRetries = 3
	DefaultMaxItemRetries  = 3
	DefaultBaseDelay       = 2 * time.Second
	DefaultMaxDelay        = 10 * time.Minute
)

var errNoOutput = errors.New("model returned no output")

// RetryPolicy bounds the batch and per-item retry loops.
type RetryPolicy struct {
	MaxBatchRetries    int
	MaxItemRetries     int
	BaseDelay          time.Duration
	RateLimitBaseDelay time.Duration
	// MaxDelay caps every backoff wait; zero means DefaultMaxDelay.
	MaxDelay time.Duration
}

func (p RetryPolicy) normalized() RetryPolicy {
	out := p
	if out.MaxBatchRetries <= 0 {
		out.MaxBatchRetries = DefaultMaxBatchRetries
	}
	if out.MaxItemRetries < 0 {
		out.MaxItemRetries = 0
	}
	if out.BaseDelay < 0 {
		out.BaseDelay = 0
	}
	if out.RateLimitBaseDelay <= 0 {
		out.RateLimitBaseDelay = out.BaseDelay
	}
	return out
}

// BatchDelay is the wait before retry number attempt+1 after a generic failure.
func (p RetryPolicy) BatchDelay(attempt int) time.Duration {
	return p.backoff(p.BaseDelay, attempt)
}

// RateLimitDelay is the wait before retry number attempt+1 after a throttling failure.
func (p RetryPolicy) RateLimitDelay(attempt int) time.Duration {
	return p.backoff(p.RateLimitBaseDelay, attempt)
}

// backoff doubles base attempt-1 times, stopping at the cap before it can overflow.
func (p RetryPolicy) backoff(base time.Duration, attempt int) time.Duration {
	limit := p.MaxDelay
	if limit <= 0 {
		limit = DefaultMaxDelay
	}
	if base <= 0 {
		return 0
	}
	wait := base
	for doubling := 1; doubling < attempt; doubling++ {
		if wait >= limit/2 {
			return limit
		}
		wait *= 2
	}
	return min(wait, limit)
}

// BatchOutcome is what the controller salvaged from one batch.
type BatchOutcome struct {
	Records []Record
	// Dropped counts prompts that produced no record.
	Dropped int
	// Exhausted is set when every batch attempt failed.
	Exhausted bool
	// Interrupted is set when cancellation cut the retry loops short.
	Interrupted bool
}

// Controller wraps a BatchInvoker with bounded batch retries, per-item fallback and backoff.
type Controller struct {
	Invoker BatchInvoker
	Decoder RecordDecoder
	Policy  RetryPolicy
	Logger  *zap.Logger
	Sleep   func(ctx context.Context, d time.Duration) error
}

// Process runs one batch. It never fails: exhausted batches yield no records and
// undecodable items are dropped. notify, when set, receives human-readable progress lines.
// Model calls run detached from ctx cancellation so an in-flight call completes; ctx is
// honoured between attempts and during backoff.
func (c Controller) Process(ctx context.Context, requests []LLMRequest, notify func(string)) BatchOutcome {
	policy := c.Policy.normalized()
	logger := c.logger()
	say := func(format string, args ...any) {
		if notify != nil {
			notify(fmt.Sprintf(format, args...))
		}
	}
	if len(requests) == 0 {
		return BatchOutcome{}
	}

	var raws []string
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return BatchOutcome{Dropped: len(requests), Interrupted: true}
		}
		var invokeErr error
		raws, invokeErr = c.Invoker.InvokeBatch(context.WithoutCancel(ctx), requests)
		if invokeErr == nil {
			break
		}
		rateLimited := IsRateLimit(invokeErr)
		logger.Warn("batch invocation failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", policy.MaxBatchRetries),
			zap.Int("size", len(requests)),
			zap.Bool("rate_limited", rateLimited),
			zap.Error(invokeErr))
		if attempt >= policy.MaxBatchRetries {
			logger.Error("batch retries exhausted, dropping batch", zap.Int("dropped", len(requests)))
			say("Batch failed after %d attempts, dropping %d rows: %v", attempt, len(requests), invokeErr)
			return BatchOutcome{Dropped: len(requests), Exhausted: true}
		}

		var wait time.Duration
		if rateLimited {
			wait = policy.RateLimitDelay(attempt)
			say("Rate limited (attempt %d/%d), retrying in %s", attempt, policy.MaxBatchRetries, wait)
		} else {
			wait = policy.BatchDelay(attempt)
			say("Batch error (attempt %d/%d), retrying in %s: %v", attempt, policy.MaxBatchRetries, wait, invokeErr)
		}
		if err := c.sleep(ctx, wait); err != nil {
			return BatchOutcome{Dropped: len(requests), Interrupted: true}
		}
	}

	outcome := BatchOutcome{Records: make([]Record, 0, len(requests))}
	if len(raws) < len(requests) {
		logger.Warn("batch returned fewer outputs than prompts", zap.Int("prompts", len(requests)), zap.Int("outputs", len(raws)))
	}
	for index, request := range requests {
		if index < len(raws) {
			record, decodeErr := c.Decoder.Decode(raws[index])
			if decodeErr == nil {
				outcome.Records = append(outcome.Records, record)
				continue
			}
			logger.Info("item output rejected, retrying alone", zap.Int("item", index), zap.Error(decodeErr))
		}
		if ctx.Err() != nil {
			outcome.Dropped += len(requests) - index
			outcome.Interrupted = true
			return outcome
		}
		record, ok, interrupted := c.retryItem(ctx, policy, index, request)
		if ok {
			outcome.Records = append(outcome.Records, record)
			continue
		}
		outcome.Dropped++
		if interrupted {
			outcome.Dropped += len(requests) - index - 1
			outcome.Interrupted = true
			return outcome
		}
		logger.Warn("item dropped after retries", zap.Int("item", index), zap.Int("attempts", policy.MaxItemRetries))
		say("Row %d dropped after %d retries", index, policy.MaxItemRetries)
	}
	return outcome
}

func (c Controller) retryItem(ctx context.Context, policy RetryPolicy, index int, request LLMRequest) (Record, bool, bool) {
	logger := c.logger()
	for attempt := 1; attempt <= policy.MaxItemRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, false, true
		}
		raws, err := c.Invoker.InvokeBatch(context.WithoutCancel(ctx), []LLMRequest{request})
		if err == nil {
			if len(raws) == 0 {
				err = errNoOutput
			} else {
				record, decodeErr := c.Decoder.Decode(raws[0])
				if decodeErr == nil {
					return record, true, false
				}
				err = decodeErr
			}
		}
		logger.Debug("item retry failed", zap.Int("item", index), zap.Int("attempt", attempt), zap.Error(err))

		var parseErr *ParseError
		if attempt == policy.MaxItemRetries || errors.As(err, &parseErr) {
			continue
		}
		wait := policy.BatchDelay(attempt)
		if IsRateLimit(err) {
			wait = policy.RateLimitDelay(attempt)
		}
		if sleepErr := c.sleep(ctx, wait); sleepErr != nil {
			return nil, false, true
		}
	}
	return nil, false, false
}

func (c Controller) sleep(ctx context.Context, d time.Duration) error {
	if c.Sleep != nil {
		return c.Sleep(ctx, d)
	}
	return SleepContext(ctx, d)
}

func (c Controller) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
