package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"corpusd/internal/config"
)

const userAgent = "corpusd/0.1.0"

// Event identifies a notification type understood by the notifier implementation.
type Event string

const (
	EventRunStarted        Event = "run_started"
	EventRunCompleted      Event = "run_completed"
	EventSourceSkipped     Event = "source_skipped"
	EventSourceDone        Event = "source_done"
	EventError             Event = "error"
	EventBudgetExhausted   Event = "budget_exhausted"
	EventTestNotification  Event = "test"
)

// Payload carries contextual fields associated with a notification event.
type Payload map[string]any

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.NtfyRequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &http.Client{Timeout: timeout}
	host, _ := os.Hostname()
	return &ntfyService{
		endpoint: topic,
		client:   client,
		cfg:      buildNotifyConfig(cfg),
		host:     strings.TrimSpace(host),
		lastSent: make(map[string]time.Time),
	}
}

type payload struct {
	title    string
	message  string
	priority string
	tags     []string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	cfg      notifyConfig
	host     string

	mu       sync.Mutex
	lastSent map[string]time.Time
}

type notifyConfig struct {
	notifyRunLifecycle bool
	notifySkips        bool
	notifyErrors       bool
	notifyBudget       bool
	dedupeWindow       time.Duration
}

func (n *ntfyService) Publish(ctx context.Context, event Event, data Payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	switch event {
	case EventRunStarted:
		if !n.cfg.notifyRunLifecycle {
			return nil
		}
		count := payloadInt(data, "candidate_count")
		return n.sendOnce(ctx, event, data, payload{
			title:   "corpusd - Run Started",
			message: fmt.Sprintf("Candidates: %d\nHost: %s", count, n.host),
			tags:    []string{"run"},
		})
	case EventRunCompleted:
		if !n.cfg.notifyRunLifecycle {
			return nil
		}
		done := payloadInt(data, "done")
		skipped := payloadInt(data, "skipped")
		failed := payloadInt(data, "failed")
		cost := payloadFloat(data, "cost_usd")
		duration := payloadDuration(data, "duration")
		lines := []string{
			fmt.Sprintf("Done: %d", done),
			fmt.Sprintf("Skipped: %d", skipped),
			fmt.Sprintf("Failed: %d", failed),
		}
		if cost > 0 {
			lines = append(lines, fmt.Sprintf("Cost: $%.2f", cost))
		}
		if duration > 0 {
			lines = append(lines, fmt.Sprintf("Elapsed: %s", duration.Truncate(time.Second)))
		}
		return n.sendOnce(ctx, event, data, payload{
			title:   "corpusd - Run Completed",
			message: strings.Join(lines, "\n"),
			tags:    []string{"run"},
		})
	case EventSourceSkipped:
		if !n.cfg.notifySkips {
			return nil
		}
		title := strings.TrimSpace(payloadString(data, "source_title"))
		reason := strings.TrimSpace(payloadString(data, "reason"))
		msg := fmt.Sprintf("Skipped: %s", title)
		if reason != "" {
			msg = fmt.Sprintf("%s\nReason: %s", msg, reason)
		}
		return n.sendOnce(ctx, event, data, payload{
			title:   "corpusd - Source Skipped",
			message: msg,
			tags:    []string{"skip"},
		})
	case EventSourceDone:
		// Per-source completion is too noisy for push notifications; the run
		// summary at EventRunCompleted is the user-facing signal.
		return nil
	case EventError:
		if !n.cfg.notifyErrors {
			return nil
		}
		sourceTitle := strings.TrimSpace(payloadString(data, "source_title"))
		errVal := payloadError(data, "error")
		var builder strings.Builder
		builder.WriteString("Error")
		if sourceTitle != "" {
			builder.WriteString(" processing ")
			builder.WriteString(sourceTitle)
		}
		builder.WriteString(": ")
		if errVal != "" {
			builder.WriteString(errVal)
		} else {
			builder.WriteString("unknown")
		}
		return n.sendOnce(ctx, event, data, payload{
			title:    "corpusd - Error",
			message:  builder.String(),
			priority: "high",
			tags:     []string{"error"},
		})
	case EventBudgetExhausted:
		if !n.cfg.notifyBudget {
			return nil
		}
		spent := payloadFloat(data, "cost_usd")
		limit := payloadFloat(data, "max_cost_per_run")
		return n.sendOnce(ctx, event, data, payload{
			title:    "corpusd - Budget Exhausted",
			message:  fmt.Sprintf("Spent $%.2f of $%.2f run budget; remaining candidates deferred", spent, limit),
			priority: "high",
			tags:     []string{"budget"},
		})
	case EventTestNotification:
		return n.sendOnce(ctx, event, data, payload{
			title:    "corpusd - Test",
			message:  "Notification system test",
			priority: "low",
			tags:     []string{"test"},
		})
	default:
		return fmt.Errorf("unsupported notification event: %s", event)
	}
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }

func (n *ntfyService) sendOnce(ctx context.Context, event Event, data Payload, built payload) error {
	if n.isDuplicate(event, data) {
		return nil
	}
	return n.send(ctx, built)
}

func buildNotifyConfig(cfg *config.Config) notifyConfig {
	if cfg == nil {
		return notifyConfig{
			notifyRunLifecycle: true,
			notifySkips:        true,
			notifyErrors:       true,
			notifyBudget:       true,
			dedupeWindow:       10 * time.Minute,
		}
	}
	window := time.Duration(cfg.NotifyDedupWindowSeconds) * time.Second
	if window < 0 {
		window = 0
	}
	return notifyConfig{
		notifyRunLifecycle: cfg.NotifyRunLifecycle,
		notifySkips:        cfg.NotifySkips,
		notifyErrors:       cfg.NotifyErrors,
		notifyBudget:       cfg.NotifyBudget,
		dedupeWindow:       window,
	}
}

func (n *ntfyService) isDuplicate(event Event, data Payload) bool {
	if n.cfg.dedupeWindow <= 0 {
		return false
	}
	key := dedupeKey(event, data)
	if key == "" {
		return false
	}
	now := time.Now()
	n.mu.Lock()
	defer n.mu.Unlock()
	if prev, ok := n.lastSent[key]; ok && now.Sub(prev) < n.cfg.dedupeWindow {
		return true
	}
	n.lastSent[key] = now
	return false
}

func dedupeKey(event Event, data Payload) string {
	labelFields := []string{"source_title", "external_id"}
	parts := []string{string(event)}
	for _, field := range labelFields {
		if val := strings.TrimSpace(payloadString(data, field)); val != "" {
			parts = append(parts, val)
			break
		}
	}
	return strings.Join(parts, "|")
}

func payloadString(data Payload, key string) string {
	if data == nil {
		return ""
	}
	if value, ok := data[key]; ok && value != nil {
		switch typed := value.(type) {
		case string:
			return typed
		case fmt.Stringer:
			return typed.String()
		default:
			return fmt.Sprintf("%v", typed)
		}
	}
	return ""
}

func payloadError(data Payload, key string) string {
	if data == nil {
		return ""
	}
	if value, ok := data[key]; ok && value != nil {
		switch typed := value.(type) {
		case error:
			return strings.TrimSpace(typed.Error())
		case string:
			return strings.TrimSpace(typed)
		case fmt.Stringer:
			return strings.TrimSpace(typed.String())
		}
	}
	return ""
}

func payloadDuration(data Payload, key string) time.Duration {
	if data == nil {
		return 0
	}
	if value, ok := data[key]; ok && value != nil {
		switch typed := value.(type) {
		case time.Duration:
			return typed
		case int64:
			return time.Duration(typed)
		case int:
			return time.Duration(typed)
		}
	}
	return 0
}

func payloadInt(data Payload, key string) int {
	if data == nil {
		return 0
	}
	if value, ok := data[key]; ok && value != nil {
		switch typed := value.(type) {
		case int:
			return typed
		case int64:
			return int(typed)
		case float64:
			return int(typed)
		}
	}
	return 0
}

func payloadFloat(data Payload, key string) float64 {
	if data == nil {
		return 0
	}
	if value, ok := data[key]; ok && value != nil {
		switch typed := value.(type) {
		case float64:
			return typed
		case float32:
			return float64(typed)
		case int:
			return float64(typed)
		case int64:
			return float64(typed)
		}
	}
	return 0
}
