package billing

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

// RetryConfig конфигурация для retry логики.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	// Jitter размывает задержку в диапазоне [delay/2, delay], чтобы конкурирующие
	// запросы не повторяли попытки синхронно.
	Jitter bool
}

// DefaultRetryConfig используется для компенсирующего удаления при откате создания счёта.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
	}
}

// DefaultConflictRetryConfig используется при конфликте версий во время пересчёта оплат.
func DefaultConflictRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   8,
		InitialDelay:  5 * time.Millisecond,
		MaxDelay:      200 * time.Millisecond,
		BackoffFactor: 2.0,
		Jitter:        true,
	}
}

func (c RetryConfig) normalized() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay < 0 {
		c.InitialDelay = 0
	}
	if c.BackoffFactor < 1 {
		c.BackoffFactor = 1
	}
	if c.MaxDelay > 0 && c.InitialDelay > c.MaxDelay {
		c.InitialDelay = c.MaxDelay
	}
	return c
}

// retryAll повторяет операцию при любой ошибке.
func retryAll(error) bool { return true }

// retryVersionConflict повторяет только конфликт optimistic locking.
func retryVersionConflict(err error) bool { return domain.IsVersionConflict(err) }

// withRetry выполняет fn с экспоненциальной задержкой между попытками.
// Ошибки, для которых shouldRetry возвращает false, возвращаются сразу.
func withRetry(ctx context.Context, cfg RetryConfig, logger *log.Entry, operation string, shouldRetry func(error) bool, fn func() error) error {
	cfg = cfg.normalized()

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				logger.WithFields(log.Fields{
					"operation": operation,
					"attempt":   attempt,
				}).Info("operation succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if !shouldRetry(err) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		wait := delay
		if cfg.Jitter && wait > 1 {
			wait = wait/2 + rand.N(wait/2+1)
		}
		logger.WithError(err).WithFields(log.Fields{
			"operation": operation,
			"attempt":   attempt,
			"delay":     wait,
		}).Warn("operation failed, retrying")

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("%s interrupted: %w (last error: %v)", operation, ctx.Err(), lastErr)
			case <-timer.C:
			}
		}

		delay = time.Duration(float64(delay) * cfg.BackoffFactor)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	logger.WithError(lastErr).WithFields(log.Fields{
		"operation":    operation,
		"max_attempts": cfg.MaxAttempts,
	}).Error("operation failed after all retry attempts")

	return lastErr
}
