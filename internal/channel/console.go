package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	consolePrompt = "plan> "
	// A trailing backslash continues the task on the next line.
	consoleContinuation = `\`
	consoleMaxLine      = 64 * 1024
)

// ConsoleChannel reads plan requests from a terminal and prints the replies.
type ConsoleChannel struct {
	mu      sync.Mutex
	in      io.Reader
	out     io.Writer
	handler func(InboundMessage)
	cancel  context.CancelFunc
	running bool
	seq     int
}

// NewConsoleChannel creates a console channel on stdin and stdout.
func NewConsoleChannel() *ConsoleChannel {
	return NewConsoleChannelIO(os.Stdin, os.Stdout)
}

// NewConsoleChannelIO creates a console channel on the given streams.
func NewConsoleChannelIO(in io.Reader, out io.Writer) *ConsoleChannel {
	return &ConsoleChannel{in: in, out: out}
}

func (c *ConsoleChannel) Name() string { return KindConsole }

func (c *ConsoleChannel) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.running = true
	go c.readLoop(ctx)
	return nil
}

func (c *ConsoleChannel) Stop(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.running = false
	return nil
}

func (c *ConsoleChannel) Send(_ context.Context, msg OutboundMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.out, "\n%s\n\n%s", strings.TrimRight(msg.Text, "\n"), consolePrompt)
	return err
}

func (c *ConsoleChannel) OnMessage(handler func(InboundMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

func (c *ConsoleChannel) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *ConsoleChannel) write(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.out, s)
}

// readLoop exits at EOF, or once ctx is done and the next line arrives.
func (c *ConsoleChannel) readLoop(ctx context.Context) {
	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 0, 4096), consoleMaxLine)
	c.write(consolePrompt)

	var pending []string
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if strings.HasSuffix(line, consoleContinuation) {
			pending = append(pending, strings.TrimSpace(strings.TrimSuffix(line, consoleContinuation)))
			c.write("... ")
			continue
		}
		text := strings.TrimSpace(strings.Join(append(pending, line), "\n"))
		pending = pending[:0]
		if text == "" {
			c.write(consolePrompt)
			continue
		}
		c.dispatch(text)
	}
}

func (c *ConsoleChannel) dispatch(text string) {
	c.mu.Lock()
	handler := c.handler
	c.seq++
	id := strconv.Itoa(c.seq)
	c.mu.Unlock()

	if handler == nil {
		return
	}
	handler(InboundMessage{
		Channel:   KindConsole,
		ChatID:    KindConsole,
		MessageID: id,
		SenderID:  "local",
		Sender:    os.Getenv("USER"),
		Text:      text,
		Received:  time.Now(),
	})
}
