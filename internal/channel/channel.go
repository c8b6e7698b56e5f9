// Package channel connects chat front-ends to the planner. Each front-end
// turns chat traffic into InboundMessages and delivers plan replies back.
package channel

import (
	"context"
	"time"
)

// Front-end names, also used as Manager keys.
const (
	KindConsole  = "console"
	KindTelegram = "telegram"
)

// InboundMessage is a chat message that may carry a plan request.
type InboundMessage struct {
	Channel   string
	ChatID    string
	MessageID string
	SenderID  string
	Sender    string
	Text      string
	Received  time.Time
}

// Reply addresses text back to the chat m came from.
func (m InboundMessage) Reply(text string) OutboundMessage {
	return OutboundMessage{ChatID: m.ChatID, ReplyTo: m.MessageID, Text: text}
}

// OutboundMessage is a reply delivered through a channel.
type OutboundMessage struct {
	ChatID string
	// ReplyTo quotes the request message on front-ends that support it.
	ReplyTo string
	Text    string
}

// Channel is a chat front-end. Stop must be safe to call before Start.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg OutboundMessage) error
	OnMessage(handler func(InboundMessage))
	IsRunning() bool
}
