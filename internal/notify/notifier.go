// Package notify delivers monitoring alerts to operator channels. Alerts below
// the configured minimum level are dropped.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/orbitflash/internal/domain"
)

// Sender is a single delivery channel.
type Sender interface {
	Send(ctx context.Context, alert domain.MonitoringAlert) error
	Name() string
}

// Notifier fans alerts out to every Sender.
type Notifier struct {
	senders  []Sender
	minLevel domain.AlertLevel
	service  string
	logger   *slog.Logger
}

// NewNotifier creates a Notifier. service is stamped on alerts that do not
// name one. An unknown minLevel falls back to warning.
func NewNotifier(senders []Sender, minLevel domain.AlertLevel, service string, logger *slog.Logger) *Notifier {
	if minLevel.Rank() < 0 {
		minLevel = domain.AlertWarning
	}
	return &Notifier{
		senders:  senders,
		minLevel: minLevel,
		service:  service,
		logger:   logger.With(slog.String("component", "notifier")),
	}
}

// Alert builds and sends an alert stamped with the current time.
func (n *Notifier) Alert(ctx context.Context, level domain.AlertLevel, message string) error {
	return n.Send(ctx, domain.MonitoringAlert{
		Level:     level,
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
	})
}

// Send delivers alert to all senders. A failing sender does not stop delivery
// to the rest; their errors are joined.
func (n *Notifier) Send(ctx context.Context, alert domain.MonitoringAlert) error {
	if n == nil {
		return nil
	}
	if alert.Level.Rank() < n.minLevel.Rank() {
		n.logger.DebugContext(ctx, "alert below minimum level",
			slog.String("level", string(alert.Level)),
		)
		return nil
	}
	if alert.Service == "" {
		alert.Service = n.service
	}
	if alert.Timestamp == 0 {
		alert.Timestamp = time.Now().UnixMilli()
	}

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, alert); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "alert sent", slog.String("sender", s.Name()))
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

func title(a domain.MonitoringAlert) string {
	return fmt.Sprintf("[%s] %s", strings.ToUpper(string(a.Level)), a.Service)
}
