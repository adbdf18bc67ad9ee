package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/campusrewards/ledger-service/internal/domain"
)

// FlagCommandConsumer applies suspicious-flag commands published by the
// moderation tooling.
type FlagCommandConsumer struct {
	service *Service
	logger  *slog.Logger
}

func NewFlagCommandConsumer(service *Service, logger *slog.Logger) *FlagCommandConsumer {
	return &FlagCommandConsumer{service: service, logger: logger.With("component", "flag_consumer")}
}

// HandleMessage returns true when the message should be acknowledged. Malformed
// payloads and business rejections are acknowledged so they are not redelivered
// forever; only unexpected failures are re-queued.
func (c *FlagCommandConsumer) HandleMessage(body []byte) bool {
	var cmd domain.FlagCommand
	if err := json.Unmarshal(body, &cmd); err != nil {
		c.logger.Warn("failed to unmarshal flag command", "error", err)
		return true
	}
	if cmd.TransactionID <= 0 {
		c.logger.Warn("flag command without transaction id")
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if _, err := c.service.SetSuspicious(ctx, cmd.TransactionID, cmd.Suspicious); err != nil {
		if isRejection(err) {
			c.logger.Warn("flag command rejected",
				"transaction_id", cmd.TransactionID,
				"suspicious", cmd.Suspicious,
				"error", err,
			)
			return true
		}
		c.logger.Error("flag command failed",
			"transaction_id", cmd.TransactionID,
			"error", err,
		)
		return false
	}
	return true
}

func isRejection(err error) bool {
	for _, kind := range []error{
		domain.ErrValidation,
		domain.ErrNotFound,
		domain.ErrWrongType,
		domain.ErrInsufficientFunds,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
