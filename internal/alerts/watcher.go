package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/liamashdown/whaleconsensus/internal/config"
	"github.com/liamashdown/whaleconsensus/internal/processor"
	"github.com/sirupsen/logrus"
)

// Ranker produces the current ranked consensus
type Ranker interface {
	RankSignals(ctx context.Context, req processor.Request) ([]processor.RankedSignal, error)
}

// SettingsSource loads the stored user settings
type SettingsSource interface {
	GetSettings(ctx context.Context, userID string, defaults config.UserSettings) (config.UserSettings, error)
}

// Watcher re-ranks the consensus periodically and alerts on signals that
// newly qualify. The first check only records what is already there.
type Watcher struct {
	ranker      Ranker
	settings    SettingsSource
	sender      Sender
	userID      string
	defaults    config.UserSettings
	minAlpha    int
	environment string
	log         *logrus.Logger
	now         func() time.Time

	primed bool
	seen   map[string]struct{}
}

// NewWatcher creates a watcher. Signals alert when their alpha score is at
// least minAlpha or an ELITE wallet backs them.
func NewWatcher(ranker Ranker, settings SettingsSource, sender Sender, userID string, defaults config.UserSettings, minAlpha int, environment string, log *logrus.Logger) *Watcher {
	return &Watcher{
		ranker:      ranker,
		settings:    settings,
		sender:      sender,
		userID:      userID,
		defaults:    defaults,
		minAlpha:    minAlpha,
		environment: environment,
		log:         log,
		now:         time.Now,
		seen:        make(map[string]struct{}),
	}
}

// Qualifies reports whether a signal is worth an alert
func (w *Watcher) Qualifies(sig processor.RankedSignal) bool {
	return sig.AlphaScore >= w.minAlpha || sig.Consensus.HasElite
}

// Check ranks once and sends an alert for every qualifying signal not seen
// on the previous check. It returns the number of alerts sent.
func (w *Watcher) Check(ctx context.Context) (int, error) {
	settings, err := w.settings.GetSettings(ctx, w.userID, w.defaults)
	if err != nil {
		return 0, fmt.Errorf("load settings: %w", err)
	}

	ranked, err := w.ranker.RankSignals(ctx, processor.RequestFor(settings))
	if err != nil {
		return 0, fmt.Errorf("rank signals: %w", err)
	}

	current := make(map[string]struct{}, len(ranked))
	var fresh []processor.RankedSignal
	for _, sig := range ranked {
		if !w.Qualifies(sig) {
			continue
		}
		current[sig.GroupKey] = struct{}{}
		if _, ok := w.seen[sig.GroupKey]; !ok {
			fresh = append(fresh, sig)
		}
	}

	// A signal that drops out and comes back alerts again
	w.seen = current

	if !w.primed {
		w.primed = true
		w.log.WithField("qualifying", len(current)).Info("Alert watcher primed")
		return 0, nil
	}

	sent := 0
	now := w.now()
	for _, sig := range fresh {
		if err := w.sender.Send(ctx, NewPayload(sig, w.environment, now)); err != nil {
			w.log.WithError(err).WithField("group_key", sig.GroupKey).Error("Failed to send alert")
			// retry on the next check
			delete(w.seen, sig.GroupKey)
			continue
		}
		sent++
	}
	return sent, nil
}
