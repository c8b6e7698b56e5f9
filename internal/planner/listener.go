package planner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"planforge/internal/channel"
	"planforge/internal/eventbus"
	"planforge/internal/logging"
)

const usageText = "Send /plan <task> to get an implementation plan."

// Listener answers plan commands arriving on chat channels.
type Listener struct {
	service *Service
	chanMgr *channel.Manager
	bus     *eventbus.Bus
	logger  *slog.Logger
}

// NewListener creates a listener that routes channel messages to svc.
func NewListener(svc *Service, chanMgr *channel.Manager, bus *eventbus.Bus, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		service: svc,
		chanMgr: chanMgr,
		bus:     bus,
		logger:  logger.With("component", "listener"),
	}
}

// Start wires every running channel to the listener.
func (l *Listener) Start(ctx context.Context) {
	for name, running := range l.chanMgr.List() {
		if !running {
			continue
		}
		ch, ok := l.chanMgr.Get(name)
		if !ok {
			continue
		}
		ch.OnMessage(func(msg channel.InboundMessage) {
			l.bus.Publish(eventbus.TopicInboundMessage, msg)
			l.handleMessage(ctx, msg)
		})
	}
	l.logger.Info("listening for plan requests")
}

func (l *Listener) handleMessage(ctx context.Context, msg channel.InboundMessage) {
	log := l.logger.With("channel", msg.Channel, "sender", msg.SenderID)

	task, reply := parseCommand(msg.Text)
	if task != "" {
		log.Info("plan requested", "task_len", len(task))
		plan, err := l.service.Generate(ctx, PlanRequest{Task: task})
		if err != nil {
			reply = "Could not generate a plan: " + err.Error()
			l.bus.Publish(eventbus.TopicError, err)
		} else {
			reply = formatPlan(plan)
		}
	}

	ch, ok := l.chanMgr.Get(msg.Channel)
	if !ok {
		log.Warn("channel not found")
		return
	}

	out := msg.Reply(reply)
	l.bus.Publish(eventbus.TopicOutboundMessage, out)
	if err := ch.Send(ctx, out); err != nil {
		log.Error("send reply failed", logging.Err(err))
	}
}

// parseCommand returns the task to plan, or the reply to send when the
// message is not a plan request. Plain text is treated as a task.
func parseCommand(text string) (task, reply string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", usageText
	}
	if !strings.HasPrefix(text, "/") {
		return text, ""
	}

	cmd, rest, _ := strings.Cut(text, " ")
	// Telegram appends the bot name in groups: /plan@planforge_bot
	cmd, _, _ = strings.Cut(cmd, "@")
	switch strings.ToLower(cmd) {
	case "/plan":
		if task := strings.TrimSpace(rest); task != "" {
			return task, ""
		}
		return "", "Usage: /plan <task>"
	case "/start", "/help":
		return "", usageText
	default:
		return "", "Unknown command. " + usageText
	}
}

func formatPlan(p *Plan) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(p.Content, "\n"))
	fmt.Fprintf(&b, "\n\nGenerated by %s (%s) in %s", p.Provider, p.Model, p.Duration.Round(100*time.Millisecond))
	if p.FallbackUsed {
		fmt.Fprintf(&b, ", after %s failed", p.FallbackFrom)
	}
	return b.String()
}
