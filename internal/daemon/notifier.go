package daemon

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jmylchreest/glint/internal/model"
	"github.com/jmylchreest/glint/internal/store"
	"github.com/jmylchreest/glint/internal/timer"
)

// NotificationLevel indicates the severity of an internal notification.
type NotificationLevel int

const (
	// NotificationLevelInfo is for informational messages (low urgency).
	NotificationLevelInfo NotificationLevel = iota
	// NotificationLevelWarning is for warning messages (normal urgency).
	NotificationLevelWarning
	// NotificationLevelError is for error messages (critical urgency).
	NotificationLevelError
)

const internalAppName = "glintd"

// InternalNotifier posts notifications about the daemon itself through the
// normal notify path. Each key is rate limited independently.
type InternalNotifier struct {
	mu     sync.Mutex
	logger *slog.Logger
	clock  timer.Clock

	handler     func(spec store.Spec) uint32
	limiters    map[string]*rate.Limiter
	minInterval time.Duration
	enabled     bool
}

// NewInternalNotifier creates an enabled notifier.
func NewInternalNotifier(clock timer.Clock, logger *slog.Logger) *InternalNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = timer.SystemClock()
	}
	return &InternalNotifier{
		logger:      logger,
		clock:       clock,
		limiters:    make(map[string]*rate.Limiter),
		minInterval: 5 * time.Second,
		enabled:     true,
	}
}

// SetNotifyHandler sets the function that inserts a notification.
func (n *InternalNotifier) SetNotifyHandler(handler func(spec store.Spec) uint32) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handler = handler
}

// SetEnabled enables or disables internal notifications.
func (n *InternalNotifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled = enabled
}

// SetMinInterval sets the minimum interval between notifications with the
// same key. Existing limiters are discarded.
func (n *InternalNotifier) SetMinInterval(interval time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.minInterval = interval
	clear(n.limiters)
}

// Notify posts a notification unless key fired within the minimum interval.
// It returns the new id, or 0 when nothing was posted.
func (n *InternalNotifier) Notify(key, summary, body string, level NotificationLevel) uint32 {
	n.mu.Lock()
	if !n.enabled {
		n.mu.Unlock()
		return 0
	}
	handler := n.handler
	if handler == nil {
		n.mu.Unlock()
		n.logger.Debug("internal notification skipped: no handler", "summary", summary)
		return 0
	}
	lim, ok := n.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(n.minInterval), 1)
		n.limiters[key] = lim
	}
	allowed := lim.AllowN(n.clock.Now(), 1)
	n.mu.Unlock()

	if !allowed {
		n.logger.Debug("internal notification rate-limited", "key", key, "summary", summary)
		return 0
	}

	hints := model.DefaultHints()
	hints.Category = "device"
	hints.Transient = true
	hints.DesktopEntry = internalAppName

	spec := store.Spec{
		AppName: internalAppName,
		Summary: summary,
		Body:    body,
		Hints:   hints,
		Timeout: model.Timeout{Kind: model.TimeoutExplicit, Duration: 5 * time.Second},
	}
	switch level {
	case NotificationLevelInfo:
		spec.Hints.Urgency = model.UrgencyLow
		spec.Icon = "dialog-information"
	case NotificationLevelWarning:
		spec.Hints.Urgency = model.UrgencyNormal
		spec.Icon = "dialog-warning"
	default:
		spec.Hints.Urgency = model.UrgencyCritical
		spec.Icon = "dialog-error"
	}

	n.logger.Debug("sending internal notification", "key", key, "summary", summary, "level", level)
	return handler(spec)
}

// NotifyConfigReloaded reports a successful configuration reload.
func (n *InternalNotifier) NotifyConfigReloaded() uint32 {
	return n.Notify(
		"config-reload",
		"Configuration Reloaded",
		"glintd configuration has been successfully reloaded.",
		NotificationLevelInfo,
	)
}

// NotifyConfigError reports a configuration that failed to load.
func (n *InternalNotifier) NotifyConfigError(err error) uint32 {
	return n.Notify(
		"config-error",
		"Configuration Error",
		"Failed to reload configuration: "+err.Error(),
		NotificationLevelWarning,
	)
}
