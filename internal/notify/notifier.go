package notify

import (
	"fmt"
	"strings"
	"sync"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"market_terminal/internal/models"
	"market_terminal/internal/store"
)

const queueSize = 64

type Notifier interface {
	Send(msg string)
}

// Conn is the stream client as seen by the forwarder.
type Conn interface {
	Stopped() bool
}

// Telegram posts plain messages to one chat.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64
	log    *zap.Logger
}

func NewTelegram(token string, chatID int64, log *zap.Logger) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Telegram{bot: b, chatID: chatID, log: log}, nil
}

func (t *Telegram) Send(msg string) {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return
	}
	if _, err := t.bot.Send(tgbot.NewMessage(t.chatID, msg)); err != nil {
		t.log.Warn("telegram send failed", zap.Error(err))
	}
}

// Log writes notifications to the service log.
type Log struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *Log { return &Log{log: log} }

func (l *Log) Send(msg string) {
	l.log.Info("notification", zap.String("message", msg))
}

// Forwarder turns store changes into notifications: actionable signals at or
// above MinScore, and one alert per stream outage plus its recovery.
// The disconnect that follows a deliberate stop of conn is not reported.
// Delivery happens on a worker goroutine so store writers never wait on the
// network; when the queue is full the message is dropped.
type Forwarder struct {
	n        Notifier
	conn     Conn
	minScore float64
	log      *zap.Logger

	queue chan string
	done  chan struct{}

	mu   sync.Mutex
	down bool
	offs []func()
	once sync.Once
}

func NewForwarder(n Notifier, conn Conn, minScore float64, log *zap.Logger) *Forwarder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Forwarder{
		n:        n,
		conn:     conn,
		minScore: minScore,
		log:      log,
		queue:    make(chan string, queueSize),
		done:     make(chan struct{}),
	}
}

// Start subscribes to the stores and starts delivery.
func (f *Forwarder) Start(signals *store.Signals, market *store.Market) {
	go f.deliver()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.offs = append(f.offs,
		signals.SubscribeAdded(f.onSignals),
		market.SubscribeStatus(f.onStatus),
	)
}

// Stop unsubscribes and flushes what is already queued.
func (f *Forwarder) Stop() {
	f.once.Do(func() {
		f.mu.Lock()
		offs := f.offs
		f.offs = nil
		f.mu.Unlock()
		for _, off := range offs {
			off()
		}
		close(f.queue)
		<-f.done
	})
}

func (f *Forwarder) deliver() {
	defer close(f.done)
	for msg := range f.queue {
		f.n.Send(msg)
	}
}

func (f *Forwarder) enqueue(msg string) {
	select {
	case f.queue <- msg:
	default:
		f.log.Warn("notification queue full, dropping", zap.String("message", msg))
	}
}

func (f *Forwarder) onSignals(added []models.AgentSignal) {
	for _, s := range added {
		if s.Action == models.ActionHold || s.Score < f.minScore {
			continue
		}
		f.enqueue(FormatSignal(s))
	}
}

func (f *Forwarder) onStatus(st models.ConnectionStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch st {
	case models.StatusDisconnected:
		if f.conn != nil && f.conn.Stopped() {
			return
		}
		if !f.down {
			f.down = true
			f.enqueue("market stream disconnected, reconnecting")
		}
	case models.StatusConnected:
		if f.down {
			f.down = false
			f.enqueue("market stream reconnected")
		}
	}
}

func FormatSignal(s models.AgentSignal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s score %.2f", s.Action, s.Symbol, s.Score)
	if s.Reason != "" {
		b.WriteString("\n")
		b.WriteString(s.Reason)
	}
	return b.String()
}
