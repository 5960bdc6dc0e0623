// Package notification provides alert delivery to external channels
// (Telegram, webhooks, logs) for contract analysis events.
package notification

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// ErrDisabled is returned by New when no delivery channel is configured.
var ErrDisabled = errors.New("alerts disabled")

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the log instead of delivering them.
type LogNotifier struct {
	log *zap.Logger
}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier(log *zap.Logger) *LogNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Send(_ context.Context, alert Alert) error {
	n.log.Info("alert",
		zap.String("level", string(alert.Level)),
		zap.String("title", alert.Title),
		zap.String("message", alert.Message))
	return nil
}

// Multi delivers to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Options selects the delivery channels.
type Options struct {
	SendAlerts  bool
	BotToken    string
	ChatID      string
	WebhookURL  string
	LogFallback bool

	// TelegramEndpoint overrides tgbot.APIEndpoint when set.
	TelegramEndpoint string
}

// New builds a notifier for opts. Telegram is used only when SendAlerts is
// set and both token and chat id are present. When nothing is configured
// it returns a LogNotifier if LogFallback is set, otherwise ErrDisabled.
// An unreachable Bot API is logged and treated like a missing channel.
func New(opts Options, log *zap.Logger) (Notifier, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var out Multi
	if opts.SendAlerts {
		if opts.BotToken == "" || opts.ChatID == "" {
			log.Warn("telegram alerts requested but bot token or chat id missing")
		} else {
			tg, err := newTelegramFromOptions(opts, log)
			if err != nil {
				log.Warn("telegram unavailable, alerts not sent there", zap.Error(err))
			} else {
				out = append(out, tg)
			}
		}
	}
	if opts.WebhookURL != "" {
		out = append(out, NewWebhookNotifier(opts.WebhookURL, log))
	}

	switch {
	case len(out) == 1:
		return out[0], nil
	case len(out) > 1:
		return out, nil
	case opts.LogFallback:
		return NewLogNotifier(log), nil
	default:
		return nil, ErrDisabled
	}
}

func newTelegramFromOptions(opts Options, log *zap.Logger) (*TelegramNotifier, error) {
	if opts.TelegramEndpoint != "" {
		return NewTelegramNotifierWithEndpoint(opts.BotToken, opts.ChatID, opts.TelegramEndpoint, http.DefaultClient, log)
	}
	return NewTelegramNotifier(opts.BotToken, opts.ChatID, log)
}
