package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Notifier 通知分发器
//
// 分发是 fire-and-forget 的：单个渠道的失败只记录日志，
// 不会阻塞告警操作，也不影响其他渠道。
type Notifier struct {
	mu       sync.RWMutex
	channels map[string]Channel

	// 分发限速，防止告警风暴打爆下游 webhook
	limiter *rate.Limiter
}

// NewNotifier 创建通知分发器
func NewNotifier() *Notifier {
	return &Notifier{
		channels: make(map[string]Channel),
		limiter:  rate.NewLimiter(rate.Every(time.Second), 10),
	}
}

// Register 注册通知渠道，同名覆盖
func (n *Notifier) Register(ch Channel) {
	n.mu.Lock()
	n.channels[ch.Name()] = ch
	n.mu.Unlock()
}

// Channels 已注册的渠道名列表
func (n *Notifier) Channels() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	names := make([]string, 0, len(n.channels))
	for name := range n.channels {
		names = append(names, name)
	}
	return names
}

// Dispatch 异步分发告警到指定渠道，names 为空时发往所有已注册渠道
func (n *Notifier) Dispatch(alert Alert, names []string) {
	n.mu.RLock()
	targets := make([]Channel, 0, len(n.channels))
	if len(names) == 0 {
		for _, ch := range n.channels {
			targets = append(targets, ch)
		}
	} else {
		for _, name := range names {
			if ch, ok := n.channels[name]; ok {
				targets = append(targets, ch)
			} else {
				log.Printf("[Alerts] notification channel not registered: %s", name)
			}
		}
	}
	n.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[Alerts] notification dispatch panicked: %v", r)
			}
		}()
		for _, ch := range targets {
			if !n.limiter.Allow() {
				log.Printf("[Alerts] notification rate limited, skipping channel %s for alert %s", ch.Name(), alert.ID)
				continue
			}
			if err := ch.Send(alert); err != nil {
				log.Printf("[Alerts] failed to notify via %s: %v", ch.Name(), err)
			}
		}
	}()
}

// ============================================================================
//  内置渠道
// ============================================================================

// WebhookChannel 通过 HTTP POST 推送告警，payload 兼容 Slack/Discord
type WebhookChannel struct {
	URL        string
	httpClient *http.Client
}

// NewWebhookChannel 创建 webhook 渠道
func NewWebhookChannel(url string) *WebhookChannel {
	return &WebhookChannel{
		URL: url,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name 渠道名
func (w *WebhookChannel) Name() string { return "webhook" }

// Send 推送告警
func (w *WebhookChannel) Send(alert Alert) error {
	if w.URL == "" {
		return fmt.Errorf("webhook URL not configured")
	}

	payload := map[string]interface{}{
		"text": formatWebhookMessage(alert),
		"alert": map[string]interface{}{
			"id":               alert.ID,
			"type":             alert.Type,
			"source":           alert.Source,
			"status":           alert.Status,
			"severity":         alert.Severity,
			"title":            alert.Title,
			"escalation_level": alert.EscalationLevel,
			"metrics":          alert.Metrics,
			"timestamp":        alert.Timestamp.Format(time.RFC3339),
		},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := w.httpClient.Post(w.URL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// LogChannel 把告警写入日志，主要用于开发和兜底
type LogChannel struct{}

// Name 渠道名
func (l *LogChannel) Name() string { return "log" }

// Send 记录告警
func (l *LogChannel) Send(alert Alert) error {
	log.Printf("[Alerts] notification: [%s] %s (%s from %s, level %d)",
		alert.Severity, alert.Title, alert.Status, alert.Source, alert.EscalationLevel)
	return nil
}

// formatWebhookMessage 格式化 webhook 消息
func formatWebhookMessage(alert Alert) string {
	severityEmoji := "⚠️"
	if alert.Severity == SeverityCritical {
		severityEmoji = "🚨"
	}

	return fmt.Sprintf(`%s **OpsPulse Alert**

**Title:** %s
**Severity:** %s
**Status:** %s
**Source:** %s
**Escalation level:** %d
**Time:** %s`,
		severityEmoji,
		alert.Title,
		alert.Severity,
		alert.Status,
		alert.Source,
		alert.EscalationLevel,
		alert.Timestamp.Format("2006-01-02 15:04:05"),
	)
}
