// Package matrix connects the bot to Matrix rooms.
package matrix

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/RedCat17/mudrets-bot/internal/bot"
)

const transportName = "matrix"

// Config holds Matrix client configuration.
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string
	// Rooms are joined on start. When non-empty, messages from other rooms
	// are ignored.
	Rooms []string
	// DirectRooms are treated as private conversations.
	DirectRooms []string
}

// Handler learns a chat message and produces the reply it decided on.
// Decide runs inside the sync handler, before the sync position is saved;
// Respond runs after the decision's delay.
type Handler interface {
	Decide(ctx context.Context, msg bot.Message) (bot.Decision, error)
	Respond(ctx context.Context, d bot.Decision) (*bot.Reply, error)
}

// Server syncs with the homeserver and answers room messages.
type Server struct {
	client  *mautrix.Client
	cfg     Config
	handler Handler
	log     *slog.Logger

	rooms  map[id.RoomID]bool
	direct map[id.RoomID]bool

	// DrainTimeout bounds how long Run waits for pending replies on shutdown.
	DrainTimeout time.Duration
	// Commit, when set, persists what a sync taught the handler before the
	// next_batch token is saved. A failed commit fails the sync, which is
	// retried from the previous token.
	Commit func(ctx context.Context) error

	sync *SyncStore
	hctx context.Context
	wg   sync.WaitGroup
}

// New creates a server. With a nil state store the sync position is kept in
// memory and history since the last run is skipped on start.
func New(cfg Config, handler Handler, state StateStore, logger *slog.Logger) (*Server, error) {
	if cfg.Homeserver == "" || cfg.UserID == "" || cfg.AccessToken == "" {
		return nil, errors.New("matrix: homeserver, user_id and access_token are required")
	}
	client, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Matrix client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	var store *SyncStore
	if state != nil {
		store = NewSyncStore(state)
		client.Store = store
	} else {
		logger.Warn("matrix: no state store, sync position will not survive restarts")
	}

	s := &Server{
		client:       client,
		cfg:          cfg,
		handler:      handler,
		log:          logger,
		rooms:        roomSet(cfg.Rooms),
		direct:       roomSet(cfg.DirectRooms),
		sync:         store,
		DrainTimeout: 5 * time.Second,
	}
	return s, nil
}

func roomSet(rooms []string) map[id.RoomID]bool {
	out := make(map[id.RoomID]bool, len(rooms))
	for _, r := range rooms {
		out[id.RoomID(r)] = true
	}
	return out
}

// Run joins the configured rooms and syncs until ctx is cancelled,
// reconnecting with exponential backoff. It then waits up to DrainTimeout
// for pending replies.
func (s *Server) Run(ctx context.Context) error {
	hctx, hcancel := context.WithCancel(context.WithoutCancel(ctx))
	defer hcancel()
	s.hctx = hctx
	if s.sync != nil {
		s.sync.Commit = s.Commit
	}

	syncer, ok := s.client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return errors.New("matrix: unexpected syncer type")
	}
	syncer.OnSync(s.client.DontProcessOldEvents)
	syncer.OnEventType(event.EventMessage, s.onMessage)

	for _, room := range s.cfg.Rooms {
		if err := s.joinRoom(ctx, id.RoomID(room)); err != nil {
			return fmt.Errorf("failed to join room %s: %w", room, err)
		}
	}
	for _, room := range s.cfg.DirectRooms {
		if err := s.joinRoom(ctx, id.RoomID(room)); err != nil {
			return fmt.Errorf("failed to join room %s: %w", room, err)
		}
	}

	const (
		backoffMin = 2 * time.Second
		backoffMax = 5 * time.Minute
	)
	backoff := backoffMin
	s.log.Info("matrix: sync started", "user_id", s.cfg.UserID, "rooms", len(s.cfg.Rooms))
	for ctx.Err() == nil {
		start := time.Now()
		err := s.client.SyncWithContext(ctx)
		if ctx.Err() != nil {
			break
		}
		if time.Since(start) > backoffMax {
			backoff = backoffMin
		}
		s.log.Error("matrix: sync stopped, reconnecting", "err", err, "backoff", backoff)
		select {
		case <-ctx.Done():
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, backoffMax)
	}

	s.log.Info("matrix: sync stopped, draining replies")
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.DrainTimeout):
		s.log.Warn("matrix: drain timed out, dropping pending replies")
		hcancel()
		<-done
	}
	return nil
}

func (s *Server) joinRoom(ctx context.Context, room id.RoomID) error {
	_, err := s.client.JoinRoomByID(ctx, room)
	if err != nil {
		if errors.Is(err, mautrix.MForbidden) {
			s.log.Warn("matrix: join refused, continuing", "room", room)
			return nil
		}
		return err
	}
	return nil
}

func (s *Server) onMessage(_ context.Context, evt *event.Event) {
	msg, ok := s.toMessage(evt)
	if !ok {
		return
	}
	log := s.log.With("trace_id", uuid.NewString(), "room", evt.RoomID, "event_id", evt.ID)

	d, err := s.handler.Decide(s.hctx, msg)
	if err != nil {
		log.Error("matrix: handle message", "err", err)
		return
	}
	if d.Kind == bot.Ignore {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.reply(s.hctx, log, evt.RoomID, evt.ID, d)
	}()
}

// toMessage filters and converts an incoming event.
func (s *Server) toMessage(evt *event.Event) (bot.Message, bool) {
	if evt.Sender == id.UserID(s.cfg.UserID) {
		return bot.Message{}, false
	}
	content := evt.Content.AsMessage()
	if content == nil || content.MsgType != event.MsgText {
		return bot.Message{}, false
	}
	if len(s.rooms) > 0 && !s.rooms[evt.RoomID] && !s.direct[evt.RoomID] {
		return bot.Message{}, false
	}

	body := content.Body
	if content.RelatesTo != nil && content.RelatesTo.InReplyTo != nil {
		body = stripReplyFallback(body)
	}
	if strings.TrimSpace(body) == "" {
		return bot.Message{}, false
	}
	return bot.Message{
		Transport: transportName,
		ChatID:    evt.RoomID.String(),
		Text:      body,
		Private:   s.direct[evt.RoomID],
	}, true
}

func (s *Server) reply(ctx context.Context, log *slog.Logger, room id.RoomID, eventID id.EventID, d bot.Decision) {
	if err := bot.Wait(ctx, d); err != nil {
		return
	}
	reply, err := s.handler.Respond(ctx, d)
	if err != nil {
		log.Error("matrix: build reply", "err", err)
		return
	}
	if reply == nil {
		return
	}
	if _, err := s.client.SendMessageEvent(ctx, room, event.EventMessage, replyContent(reply, eventID)); err != nil {
		log.Error("matrix: send reply", "err", err)
		return
	}
	log.Debug("matrix: replied", "delay", reply.Delay)
}

// replyContent builds an m.text reply to eventID.
func replyContent(reply *bot.Reply, eventID id.EventID) *event.MessageEventContent {
	content := &event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    reply.Text,
		RelatesTo: &event.RelatesTo{
			InReplyTo: &event.InReplyTo{EventID: eventID},
		},
	}
	if reply.HTML != "" {
		content.Format = event.FormatHTML
		content.FormattedBody = strings.ReplaceAll(reply.HTML, "\n", "<br>")
	} else if strings.Contains(reply.Text, "\n") {
		content.Format = event.FormatHTML
		content.FormattedBody = strings.ReplaceAll(html.EscapeString(reply.Text), "\n", "<br>")
	}
	return content
}

// stripReplyFallback drops the quoted "> " lines some clients prepend to
// reply bodies.
func stripReplyFallback(body string) string {
	lines := strings.Split(body, "\n")
	i := 0
	for i < len(lines) && strings.HasPrefix(lines[i], "> ") {
		i++
	}
	if i > 0 && i < len(lines) && lines[i] == "" {
		i++
	}
	return strings.Join(lines[i:], "\n")
}
