package alerting

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

const defaultTemplate = "[{{severity}}] {{title}}: {{message}} ({{type}} {{id}} at {{createdAt}})"

// Channel delivers a rendered notification. Implementations fail with an
// error; the engine owns retries and bookkeeping.
type Channel interface {
	Send(ctx context.Context, message string, cfg ChannelConfig) error
}

func renderTemplate(tmpl string, alert Alert) string {
	if tmpl == "" {
		tmpl = defaultTemplate
	}
	replacer := strings.NewReplacer(
		"{{title}}", alert.Details.Title,
		"{{message}}", alert.Details.Message,
		"{{severity}}", alert.Details.Severity,
		"{{type}}", string(alert.Type),
		"{{id}}", alert.ID,
		"{{createdAt}}", alert.CreatedAt.UTC().Format(time.RFC3339),
	)
	return replacer.Replace(tmpl)
}

// dispatchNotifications delivers to every enabled channel independently: one
// channel's failure never blocks the others or the alert lifecycle.
func (e *Engine) dispatchNotifications(alertID string, channels []ChannelConfig) {
	e.notifyWG.Add(1)
	go func() {
		defer e.notifyWG.Done()
		for _, chCfg := range channels {
			if !chCfg.Enabled {
				continue
			}
			e.deliver(alertID, chCfg)
		}
	}()
}

func (e *Engine) deliver(alertID string, chCfg ChannelConfig) {
	e.mu.Lock()
	alert := e.lookupLocked(alertID)
	if alert == nil {
		e.mu.Unlock()
		return
	}
	alert.Notifications = append(alert.Notifications, NotificationRecord{
		Channel: chCfg.Type,
		Status:  "pending",
	})
	recIdx := len(alert.Notifications) - 1
	message := renderTemplate(chCfg.Template, *alert)
	impl, ok := e.channels[chCfg.Type]
	e.mu.Unlock()

	if !ok {
		e.finishNotification(alertID, recIdx, 0, errUnknownChannel(chCfg.Type))
		return
	}

	var lastErr error
	attempts := 0
	delay := chCfg.Retry.InitialDelay
	if delay <= 0 {
		delay = time.Second
	}
	for attempt := 0; attempt <= chCfg.Retry.MaxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		lastErr = impl.Send(ctx, message, chCfg)
		cancel()
		attempts++
		if lastErr == nil {
			break
		}
		if attempt == chCfg.Retry.MaxRetries {
			break
		}
		select {
		case <-time.After(delay):
		case <-e.stop:
			e.finishNotification(alertID, recIdx, attempts, lastErr)
			return
		}
		delay *= 2
		if chCfg.Retry.MaxDelay > 0 && delay > chCfg.Retry.MaxDelay {
			delay = chCfg.Retry.MaxDelay
		}
	}
	e.finishNotification(alertID, recIdx, attempts, lastErr)
}

func (e *Engine) finishNotification(alertID string, recIdx, attempts int, sendErr error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	alert := e.lookupLocked(alertID)
	if alert == nil || recIdx >= len(alert.Notifications) {
		return
	}
	rec := &alert.Notifications[recIdx]
	rec.Attempts = attempts
	if sendErr != nil {
		rec.Status = "failed"
		rec.Error = sendErr.Error()
		e.metrics.NotificationsFailed++
		e.logger.Error("notification failed",
			slog.String("alert_id", alertID),
			slog.String("channel", rec.Channel),
			slog.String("error", sendErr.Error()))
		return
	}
	rec.Status = "sent"
	rec.SentAt = e.now()
	e.metrics.NotificationsSent++
}

// lookupLocked finds an alert in the active map or history. Caller holds the
// lock.
func (e *Engine) lookupLocked(id string) *Alert {
	if alert, ok := e.active[id]; ok {
		return alert
	}
	for _, alert := range e.history {
		if alert.ID == id {
			return alert
		}
	}
	return nil
}

type unknownChannelError string

func (u unknownChannelError) Error() string { return "unknown channel type " + string(u) }

func errUnknownChannel(name string) error { return unknownChannelError(name) }

// Flush waits for in-flight notification dispatches. Test hook.
func (e *Engine) Flush() {
	e.notifyWG.Wait()
}
