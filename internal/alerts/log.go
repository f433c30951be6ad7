package alerts

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogSender sends alerts to the logger
type LogSender struct {
	log *logrus.Logger
}

// NewLogSender creates a new log sender
func NewLogSender(log *logrus.Logger) *LogSender {
	return &LogSender{log: log}
}

// Send logs the alert
func (s *LogSender) Send(ctx context.Context, payload *AlertPayload) error {
	s.log.WithFields(logrus.Fields{
		"severity":         payload.Severity,
		"group_key":        payload.GroupKey,
		"market":           payload.MarketName,
		"direction":        payload.Direction,
		"wallet_count":     payload.WalletCount,
		"has_elite":        payload.HasElite,
		"alpha_score":      payload.AlphaScore,
		"recommended_size": payload.RecommendedSize,
	}).Info("Consensus alert")
	return nil
}
