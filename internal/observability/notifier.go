package observability

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Notifier sends alert notifications to external channels.
type Notifier interface {
	Notify(alerts []Alert) error
}

// slackNotifier sends alert notifications to a Slack webhook.
type slackNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewSlackNotifier creates a Notifier that sends alerts to the given Slack webhook URL.
func NewSlackNotifier(webhookURL string) Notifier {
	return &slackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type slackMessage struct {
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string       `json:"type"`
	Text     *slackText   `json:"text,omitempty"`
	Elements []*slackText `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Notify posts the alerts to the configured webhook. An empty slice sends
// nothing.
func (s *slackNotifier) Notify(alerts []Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	body, err := json.Marshal(buildSlackMessage(alerts))
	if err != nil {
		return fmt.Errorf("marshaling slack message: %w", err)
	}

	resp, err := s.client.Post(s.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("posting to slack webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}

	return nil
}

func buildSlackMessage(alerts []Alert) slackMessage {
	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: "medic-conf rule evaluation alerts"},
		},
	}

	for i, alert := range alerts {
		if i > 0 {
			blocks = append(blocks, slackBlock{Type: "divider"})
		}
		text := fmt.Sprintf("%s *[%s]* `%s` %s",
			severityEmoji(alert.Severity),
			strings.ToUpper(string(alert.Severity)),
			alert.Condition,
			alert.Message,
		)
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: text},
		})

		if len(alert.Details) > 0 {
			blocks = append(blocks, slackBlock{
				Type: "section",
				Text: &slackText{Type: "mrkdwn", Text: detailList(alert.Details)},
			})
		}

		ctx := alert.TriggeredAt.Format("2006-01-02 15:04 UTC")
		if alert.Run != "" {
			ctx += " | run " + alert.Run
		}
		blocks = append(blocks, slackBlock{
			Type:     "context",
			Elements: []*slackText{{Type: "mrkdwn", Text: ctx}},
		})
	}

	return slackMessage{Blocks: blocks}
}

// maxSlackDetails caps the contacts listed per alert.
const maxSlackDetails = 10

// detailList renders one bullet per contact.
func detailList(details []AlertDetail) string {
	var b strings.Builder
	for i, d := range details {
		if i == maxSlackDetails {
			fmt.Fprintf(&b, "and %d more", len(details)-maxSlackDetails)
			break
		}
		fmt.Fprintf(&b, "• `%s`", d.ContactID)
		if d.Detail != "" {
			fmt.Fprintf(&b, " %s", d.Detail)
		}
		b.WriteByte('\n')
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func severityEmoji(severity AlertSeverity) string {
	switch severity {
	case SeverityHigh:
		return "\U0001f534"
	case SeverityMedium:
		return "\U0001f7e1"
	case SeverityLow:
		return "\U0001f535"
	default:
		return "❓"
	}
}
