package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"vendor-chat/internal/chat"
	"vendor-chat/internal/models"
	"vendor-chat/internal/notify"
	"vendor-chat/internal/transport"
)

const shellHelp = `commands:
  /open <id> [name]  open a conversation
  /list              list conversations
  /history           show the open conversation
  /unread            show unread totals
  /delete <id>       delete a conversation
  /refresh <id>      reload a counterpart's profile
  /status [state]    show or set presence (online, away, offline)
  /quit              leave
anything else is sent to the open conversation`

// session is the part of the chat controller the shell drives.
type session interface {
	UserID() string
	State() transport.State
	Presence() models.PresenceStatus
	Selected() string
	Conversations() []models.Conversation
	Messages(counterpart string) []models.Message
	Open(ctx context.Context, counterpart, name string) ([]models.Message, error)
	Keystroke()
	Send(ctx context.Context, text string) (models.Message, error)
	Unread(ctx context.Context) (models.UnreadCount, error)
	DeleteChat(ctx context.Context, counterpart string) error
	SetPresence(ctx context.Context, status models.PresenceStatus) error
	RefreshParticipant(ctx context.Context, counterpart string) error
}

type shell struct {
	session session
	out     io.Writer
	timeout time.Duration
}

func newShell(s session, out io.Writer, timeout time.Duration) *shell {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &shell{session: s, out: out, timeout: timeout}
}

// run executes lines from in until /quit, end of input or ctx is done.
func (s *shell) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		errc <- scanner.Err()
	}()

	fmt.Fprintln(s.out, "type /help for commands")
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errc:
					return errors.Wrap(err, "read input")
				default:
					return nil
				}
			}
			if s.exec(ctx, line) {
				return nil
			}
		}
	}
}

// exec runs one input line and reports whether the shell should stop.
func (s *shell) exec(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if !strings.HasPrefix(line, "/") {
		s.session.Keystroke()
		msg, err := s.session.Send(ctx, line)
		if err != nil {
			s.printError(err)
			return false
		}
		s.printMessage(msg)
		return false
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(s.out, shellHelp)
	case "/open":
		if len(fields) < 2 {
			fmt.Fprintln(s.out, "usage: /open <id> [name]")
			return false
		}
		msgs, err := s.session.Open(ctx, fields[1], strings.Join(fields[2:], " "))
		if err != nil {
			s.printError(err)
			return false
		}
		fmt.Fprintf(s.out, "-- %s --\n", s.name(fields[1]))
		for _, m := range msgs {
			s.printMessage(m)
		}
	case "/list":
		s.printConversations()
	case "/history":
		counterpart := s.session.Selected()
		if counterpart == "" {
			s.printError(chat.ErrNoConversation)
			return false
		}
		for _, m := range s.session.Messages(counterpart) {
			s.printMessage(m)
		}
	case "/unread":
		count, err := s.session.Unread(ctx)
		if err != nil {
			s.printError(err)
			return false
		}
		fmt.Fprintf(s.out, "%d unread in %d chats\n", count.TotalUnreadCount, count.UnreadChatsCount)
	case "/delete":
		if len(fields) != 2 {
			fmt.Fprintln(s.out, "usage: /delete <id>")
			return false
		}
		if err := s.session.DeleteChat(ctx, fields[1]); err != nil {
			s.printError(err)
			return false
		}
		fmt.Fprintf(s.out, "deleted %s\n", fields[1])
	case "/refresh":
		if len(fields) != 2 {
			fmt.Fprintln(s.out, "usage: /refresh <id>")
			return false
		}
		if err := s.session.RefreshParticipant(ctx, fields[1]); err != nil {
			s.printError(err)
			return false
		}
		fmt.Fprintf(s.out, "refreshed %s\n", fields[1])
	case "/status":
		if len(fields) == 1 {
			fmt.Fprintf(s.out, "connection %s, presence %s\n", s.session.State(), s.session.Presence())
			return false
		}
		status := models.PresenceStatus(strings.ToUpper(fields[1]))
		if err := s.session.SetPresence(ctx, status); err != nil {
			s.printError(err)
			return false
		}
		fmt.Fprintf(s.out, "presence %s\n", status)
	default:
		fmt.Fprintf(s.out, "unknown command %s, type /help\n", fields[0])
	}
	return false
}

func (s *shell) name(counterpart string) string {
	for _, c := range s.session.Conversations() {
		if c.CounterpartID == counterpart {
			return c.Name
		}
	}
	return counterpart
}

func (s *shell) printConversations() {
	if state := s.session.State(); state != transport.StateConnected {
		fmt.Fprintf(s.out, "connection %s, live updates paused\n", state)
	}
	convs := s.session.Conversations()
	if len(convs) == 0 {
		fmt.Fprintln(s.out, "no conversations")
		return
	}
	selected := s.session.Selected()
	for _, c := range convs {
		marker := " "
		if c.CounterpartID == selected {
			marker = "*"
		}
		line := fmt.Sprintf("%s %s (%s) %s", marker, c.Name, c.CounterpartID, c.Presence)
		if c.UnreadCount > 0 {
			line += fmt.Sprintf(" [%d unread]", c.UnreadCount)
		}
		if c.Typing {
			line += " typing..."
		}
		fmt.Fprintln(s.out, line)
	}
}

func (s *shell) printMessage(m models.Message) {
	who := m.SenderID
	if who == s.session.UserID() {
		who = "you"
	}
	state := string(m.Status)
	if m.Pending {
		state = "sending"
	}
	fmt.Fprintf(s.out, "[%s] %s: %s (%s)\n", m.Timestamp.Local().Format("15:04"), who, m.Content, state)
}

func (s *shell) printError(err error) {
	switch {
	case errors.Is(err, chat.ErrNoConversation):
		fmt.Fprintln(s.out, "no conversation open, use /open <id> [name]")
	case errors.Is(err, transport.ErrNotConnected):
		fmt.Fprintln(s.out, "not connected, nothing sent")
	case errors.Is(err, chat.ErrInvalidPresence):
		fmt.Fprintln(s.out, "usage: /status [online|away|offline]")
	case errors.Is(err, chat.ErrEmptyMessage):
	default:
		fmt.Fprintf(s.out, "error: %v\n", err)
	}
}

// syncWriter serializes writes from the shell and from event callbacks.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Write(p)
}

// consoleNotifier prints new messages and failures to the terminal.
type consoleNotifier struct {
	out io.Writer
}

func (n consoleNotifier) NewMessage(_ context.Context, msg notify.Message) {
	fmt.Fprintf(n.out, "<- %s: %s\n", msg.Name, msg.Preview)
}

func (n consoleNotifier) Failure(_ context.Context, op string, err error) {
	fmt.Fprintf(n.out, "! %s failed: %v\n", op, err)
}
