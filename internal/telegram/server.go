package telegram

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/RedCat17/mudrets-bot/internal/bot"
)

const transportName = "telegram"

// Handler learns a chat message and produces the reply it decided on.
// Decide runs in update order before the offset moves past the message;
// Respond runs after the decision's delay.
type Handler interface {
	Decide(ctx context.Context, msg bot.Message) (bot.Decision, error)
	Respond(ctx context.Context, d bot.Decision) (*bot.Reply, error)
}

// StateStore persists the polling offset across restarts.
type StateStore interface {
	SaveState(ctx context.Context, transport, key, value string) error
	LoadState(ctx context.Context, transport, key string) (string, error)
}

// Server long-polls for updates and hands every text message to a Handler.
type Server struct {
	client  *Client
	handler Handler
	state   StateStore
	log     *slog.Logger

	// PollTimeout is the long-poll duration. Defaults to 30s.
	PollTimeout time.Duration
	// DrainTimeout bounds how long Run waits for pending replies on shutdown.
	DrainTimeout time.Duration
	// Commit, when set, persists what a batch of updates taught the handler
	// before the offset is saved. If it fails the offset is not saved and
	// the batch is delivered again after a restart.
	Commit func(ctx context.Context) error

	wg sync.WaitGroup
}

// NewServer creates a server. state may be nil, in which case the offset
// starts from zero on every run.
func NewServer(client *Client, handler Handler, state StateStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		client:       client,
		handler:      handler,
		state:        state,
		log:          logger,
		PollTimeout:  30 * time.Second,
		DrainTimeout: 5 * time.Second,
	}
}

// Run polls until ctx is cancelled, then waits up to DrainTimeout for
// in-flight replies.
func (s *Server) Run(ctx context.Context) error {
	offset := s.loadOffset(ctx)
	s.log.Info("telegram: polling started", "offset", offset)

	// Replies outlive ctx so they can be delivered during the drain.
	hctx, hcancel := context.WithCancel(context.WithoutCancel(ctx))
	defer hcancel()

	backoff := time.Second
	for ctx.Err() == nil {
		updates, err := s.client.GetUpdates(ctx, offset, int(s.PollTimeout/time.Second))
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			s.log.Warn("telegram: getUpdates failed", "err", err, "retry_in", backoff)
			select {
			case <-ctx.Done():
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, time.Minute)
			continue
		}
		backoff = time.Second

		for _, u := range updates {
			offset = u.UpdateID + 1
			if u.Message == nil || u.Message.Text == nil || *u.Message.Text == "" {
				continue
			}
			if u.Message.From != nil && u.Message.From.IsBot {
				continue
			}
			s.handle(hctx, *u.Message)
		}
		if len(updates) > 0 {
			s.commit(hctx, offset)
		}
	}

	s.log.Info("telegram: polling stopped, draining replies")
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.DrainTimeout):
		s.log.Warn("telegram: drain timed out, dropping pending replies")
		hcancel()
		<-done
	}
	return nil
}

func (s *Server) handle(ctx context.Context, m Message) {
	log := s.log.With("trace_id", uuid.NewString(), "chat_id", m.Chat.ID, "message_id", m.MessageID)

	d, err := s.handler.Decide(ctx, bot.Message{
		Transport: transportName,
		ChatID:    strconv.FormatInt(m.Chat.ID, 10),
		Text:      *m.Text,
		Private:   m.Chat.Type == "private",
	})
	if err != nil {
		log.Error("telegram: handle message", "err", err)
		return
	}
	if d.Kind == bot.Ignore {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.reply(ctx, log, m, d)
	}()
}

func (s *Server) reply(ctx context.Context, log *slog.Logger, m Message, d bot.Decision) {
	if err := bot.Wait(ctx, d); err != nil {
		return
	}
	reply, err := s.handler.Respond(ctx, d)
	if err != nil {
		log.Error("telegram: build reply", "err", err)
		return
	}
	if reply == nil {
		return
	}

	text, opts := reply.Text, SendOptions{ReplyTo: m.MessageID}
	if reply.HTML != "" {
		text, opts.ParseMode = reply.HTML, "HTML"
	}
	if err := s.client.SendMessage(ctx, m.Chat.ID, text, opts); err != nil {
		log.Error("telegram: send reply", "err", err)
		return
	}
	log.Debug("telegram: replied", "delay", reply.Delay)
}

func (s *Server) commit(ctx context.Context, offset int64) {
	if s.Commit != nil {
		if err := s.Commit(ctx); err != nil {
			s.log.Warn("telegram: commit failed, offset not saved", "offset", offset, "err", err)
			return
		}
	}
	s.saveOffset(ctx, offset)
}

func (s *Server) loadOffset(ctx context.Context) int64 {
	if s.state == nil {
		return 0
	}
	v, err := s.state.LoadState(ctx, transportName, "offset")
	if err != nil {
		s.log.Warn("telegram: load offset", "err", err)
		return 0
	}
	n, _ := strconv.ParseInt(v, 10, 64)
	return n
}

func (s *Server) saveOffset(ctx context.Context, offset int64) {
	if s.state == nil {
		return
	}
	if err := s.state.SaveState(ctx, transportName, "offset", strconv.FormatInt(offset, 10)); err != nil {
		s.log.Warn("telegram: save offset", "err", err)
	}
}
