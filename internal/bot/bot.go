// Package bot decides how a chat bot reacts to incoming messages: which
// messages are learned, when a generated reply is sent and how the stats
// command is answered. Transports feed it Messages and deliver the Replies.
package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/RedCat17/mudrets-bot/internal/markov"
	"github.com/RedCat17/mudrets-bot/internal/model"
)

// Engine is the part of the model engine the bot drives.
type Engine interface {
	OnTextReceived(ctx context.Context, ns, text string) (int, error)
	RequestGeneration(ctx context.Context, ns string, maxWords int) (string, error)
	Stats(ctx context.Context, ns string) (model.Stats, error)
}

// Policy configures when the bot replies.
type Policy struct {
	// Name is the bot's account name without the leading @. Messages
	// mentioning it always get a reply.
	Name string
	// Keyword triggers a reply when a message consists of it alone.
	Keyword string
	// ReplyChance is the probability of replying to any other group message.
	ReplyChance float64
	// Replies wait a uniformly random time in [MinDelay, MaxDelay].
	MinDelay time.Duration
	MaxDelay time.Duration
	// MaxWords bounds generated replies.
	MaxWords int
	// Namespace holds the shared model. With PerChat each chat learns into
	// its own "<transport>:<chat>" namespace instead.
	Namespace string
	PerChat   bool
	// StatsCommands are the first words that ask for statistics.
	StatsCommands []string
}

// DefaultPolicy mirrors the classic deployment.
var DefaultPolicy = Policy{
	Name:          "mudrets_robot",
	Keyword:       "мудрец",
	ReplyChance:   0.1,
	MinDelay:      time.Second,
	MaxDelay:      3 * time.Second,
	MaxWords:      100,
	Namespace:     "default",
	StatsCommands: []string{"/wisdom", "/мудрость", "мудрость"},
}

// Message is an incoming chat message.
type Message struct {
	Transport string
	ChatID    string
	Text      string
	// Private is set for one-to-one conversations.
	Private bool
}

// Reply is what the bot sends back. HTML, when set, is a formatted
// rendering of Text.
type Reply struct {
	Text  string
	HTML  string
	Delay time.Duration
}

// Kind classifies a decision.
type Kind int

const (
	// Ignore means the message was learned and needs no answer.
	Ignore Kind = iota
	// Stats asks for the statistics report.
	Stats
	// Generate asks for a generated reply after Delay.
	Generate
)

func (k Kind) String() string {
	switch k {
	case Stats:
		return "stats"
	case Generate:
		return "generate"
	default:
		return "ignore"
	}
}

// Decision is the outcome of Decide.
type Decision struct {
	Kind      Kind
	Namespace string
	Delay     time.Duration
}

// Bot applies a Policy to messages. It is safe for concurrent use.
type Bot struct {
	engine Engine
	policy Policy
	log    *slog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Option configures a Bot.
type Option func(*Bot)

// WithRand sets the random source for reply chance and delays.
func WithRand(rng *rand.Rand) Option {
	return func(b *Bot) { b.rng = rng }
}

// New creates a bot. A nil logger uses slog.Default().
func New(engine Engine, policy Policy, logger *slog.Logger, opts ...Option) *Bot {
	if policy.MaxDelay < policy.MinDelay {
		policy.MaxDelay = policy.MinDelay
	}
	if policy.Namespace == "" {
		policy.Namespace = DefaultPolicy.Namespace
	}
	if policy.MaxWords == 0 {
		policy.MaxWords = DefaultPolicy.MaxWords
	}
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bot{engine: engine, policy: policy, log: logger}
	for _, opt := range opts {
		opt(b)
	}
	if b.rng == nil {
		b.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return b
}

// Policy returns the active policy.
func (b *Bot) Policy() Policy { return b.policy }

// Namespace returns the model namespace for msg.
func (b *Bot) Namespace(msg Message) string {
	if b.policy.PerChat && msg.ChatID != "" {
		return msg.Transport + ":" + msg.ChatID
	}
	return b.policy.Namespace
}

// IsStatsCommand reports whether text asks for statistics. A command may be
// addressed to the bot as "/wisdom@name".
func (b *Bot) IsStatsCommand(text string) bool {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false
	}
	cmd := strings.ToLower(fields[0])
	if at := strings.IndexByte(cmd, '@'); at > 0 && strings.HasPrefix(cmd, "/") {
		if b.policy.Name != "" && !strings.EqualFold(cmd[at+1:], b.policy.Name) {
			return false
		}
		cmd = cmd[:at]
	}
	for _, c := range b.policy.StatsCommands {
		if cmd == strings.ToLower(c) {
			return true
		}
	}
	return false
}

// Triggered reports whether msg always gets a reply: private chats, the bare
// keyword and mentions of the bot.
func (b *Bot) Triggered(msg Message) bool {
	if msg.Private {
		return true
	}
	text := strings.ToLower(strings.TrimSpace(msg.Text))
	if b.policy.Keyword != "" && text == strings.ToLower(b.policy.Keyword) {
		return true
	}
	return b.policy.Name != "" && strings.Contains(text, "@"+strings.ToLower(b.policy.Name))
}

// Decide learns msg unless it is a stats command and decides how to answer.
func (b *Bot) Decide(ctx context.Context, msg Message) (Decision, error) {
	d := Decision{Namespace: b.Namespace(msg)}
	if b.IsStatsCommand(msg.Text) {
		d.Kind = Stats
		return d, nil
	}

	if _, err := b.engine.OnTextReceived(ctx, d.Namespace, msg.Text); err != nil {
		return d, fmt.Errorf("learn: %w", err)
	}

	b.rngMu.Lock()
	defer b.rngMu.Unlock()
	if !b.Triggered(msg) && b.rng.Float64() >= b.policy.ReplyChance {
		return d, nil
	}
	d.Kind = Generate
	d.Delay = b.policy.MinDelay
	if spread := b.policy.MaxDelay - b.policy.MinDelay; spread > 0 {
		d.Delay += time.Duration(b.rng.Int63n(int64(spread) + 1))
	}
	return d, nil
}

// Respond produces the reply for a decision. It returns nil when there is
// nothing to send, including while the model is still empty.
func (b *Bot) Respond(ctx context.Context, d Decision) (*Reply, error) {
	switch d.Kind {
	case Stats:
		st, err := b.engine.Stats(ctx, d.Namespace)
		if err != nil {
			return nil, fmt.Errorf("stats: %w", err)
		}
		return &Reply{Text: FormatStats(st), HTML: FormatStatsHTML(st)}, nil
	case Generate:
		text, err := b.engine.RequestGeneration(ctx, d.Namespace, b.policy.MaxWords)
		if errors.Is(err, markov.ErrEmptyModel) {
			b.log.Debug("bot: nothing learned yet", "ns", d.Namespace)
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("generate: %w", err)
		}
		if text == "" {
			return nil, nil
		}
		return &Reply{Text: text, Delay: d.Delay}, nil
	default:
		return nil, nil
	}
}

// Handle decides, waits out the reply delay and responds. It returns early
// with ctx's error when ctx ends during the delay.
func (b *Bot) Handle(ctx context.Context, msg Message) (*Reply, error) {
	d, err := b.Decide(ctx, msg)
	if err != nil || d.Kind == Ignore {
		return nil, err
	}
	if err := Wait(ctx, d); err != nil {
		return nil, err
	}
	return b.Respond(ctx, d)
}

// Wait sleeps for the reply delay of d, returning ctx's error if ctx ends
// first.
func Wait(ctx context.Context, d Decision) error {
	if d.Delay <= 0 {
		return nil
	}
	t := time.NewTimer(d.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var statsLabels = [...]string{
	"Total Messages",
	"Generated Messages",
	"Total Combinations",
	"Markov Chain Size",
	"Variability",
}

func statsValues(st model.Stats) [5]string {
	return [5]string{
		fmt.Sprint(st.MessagesLearned),
		fmt.Sprint(st.MessagesGenerated),
		fmt.Sprint(st.ContextCount),
		fmt.Sprint(st.SuccessorCount),
		fmt.Sprintf("%.2f", st.Variability),
	}
}

// FormatStats renders st as plain text, one "Label: value" line each.
func FormatStats(st model.Stats) string {
	var b strings.Builder
	for i, v := range statsValues(st) {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", statsLabels[i], v)
	}
	return b.String()
}

// FormatStatsHTML renders st with bold labels.
func FormatStatsHTML(st model.Stats) string {
	var b strings.Builder
	for i, v := range statsValues(st) {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "<b>%s:</b> %s", html.EscapeString(statsLabels[i]), html.EscapeString(v))
	}
	return b.String()
}
