package main

import (
	"fmt"
	"log"

	"github.com/slack-go/slack"
)

// Notifier is the messaging collaborator boundary. Implementations never
// return an error: a transient outage yields ok=false so the promotion
// path can log and move on, and the autonomy loop retries later.
type Notifier interface {
	// PostSignalAlert pushes an immediate-tier alert. Returns the delivery
	// token and whether delivery succeeded.
	PostSignalAlert(subjectName, title string, score int, sourceURL string) (string, bool)

	// PostMessage posts free-form text to a channel.
	PostMessage(channel, text string) (string, bool)
}

type slackNotifier struct {
	api     *slack.Client
	channel string
}

func NewSlackNotifier(cfg Config) Notifier {
	if !cfg.SlackConfigured() {
		return &logNotifier{}
	}
	return &slackNotifier{
		api:     slack.New(cfg.SlackBotToken),
		channel: cfg.SlackChannel,
	}
}

func severityMarker(score int) string {
	switch {
	case score >= 80:
		return "🔴"
	case score >= 60:
		return "🟡"
	default:
		return "⚪"
	}
}

func (n *slackNotifier) PostSignalAlert(subjectName, title string, score int, sourceURL string) (string, bool) {
	text := fmt.Sprintf("%s *%s* [%d/100]: %s", severityMarker(score), subjectName, score, title)
	blocks := []slack.Block{
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil),
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType,
			fmt.Sprintf("<%s|View source>", sourceURL), false, false), nil, nil),
	}

	_, ts, err := n.api.PostMessage(n.channel,
		slack.MsgOptionText(text, false),
		slack.MsgOptionBlocks(blocks...),
	)
	if err != nil {
		log.Printf("slack alert error: %v", err)
		return "", false
	}
	return ts, true
}

func (n *slackNotifier) PostMessage(channel, text string) (string, bool) {
	if channel == "" {
		channel = n.channel
	}
	_, ts, err := n.api.PostMessage(channel, slack.MsgOptionText(text, false))
	if err != nil {
		log.Printf("slack post error: %v", err)
		return "", false
	}
	return ts, true
}

// logNotifier stands in when no bot token is configured. Deliveries are
// logged and reported as successful so signals don't pile up un-notified
// forever on an intentionally notification-less deployment.
type logNotifier struct{}

func (n *logNotifier) PostSignalAlert(subjectName, title string, score int, sourceURL string) (string, bool) {
	log.Printf("[notify disabled] alert subject=%s score=%d title=%q url=%s", subjectName, score, title, sourceURL)
	return "", true
}

func (n *logNotifier) PostMessage(channel, text string) (string, bool) {
	log.Printf("[notify disabled] %s: %.100s", channel, text)
	return "", true
}
