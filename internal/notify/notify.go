package notify

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"vrcinvited/internal/eventbus"
	"vrcinvited/internal/invite"
	rtsup "vrcinvited/internal/runtime/supervisor"
	"vrcinvited/internal/storage"
	logx "vrcinvited/pkg/logx"

	"golang.org/x/time/rate"

	tele "gopkg.in/telebot.v4"
)

var (
	ErrDisabled  = errors.New("notify disabled")
	ErrQueueFull = errors.New("notify queue full")
	ErrStopped   = errors.New("notify stopped")
)

// Config controls the summary pipeline.
type Config struct {
	Enabled     bool
	Token       string
	ChatID      int64
	QueueSize   int
	RatePerSec  int
	RetryMax    int
	RetryBase   time.Duration
	DedupWindow time.Duration
}

// Sender abstracts the Telegram send call so tests can run without a bot.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

type job struct {
	text string
	// dedupKey is computed at enqueue time for cheap per-worker processing.
	dedupKey string
}

// Service is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log    logx.Logger
	sender Sender
	bus    eventbus.Bus
	store  storage.Store

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	queue     chan job
	sup       *rtsup.Supervisor
	busUnsub  func()

	// In-memory dedup cache: key -> suppress until
	dmu   sync.Mutex
	dedup map[string]time.Time
}

func New(cfg Config, sender Sender, log logx.Logger, bus eventbus.Bus, store storage.Store) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		sender: sender,
		log:    log.With(logx.String("comp", "notify")),
		bus:    bus,
		store:  store,
		dedup:  map[string]time.Time{},
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	s.cfg = cfg
	// Burst = rate per sec so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Start spins up the sender worker and subscribes to run-finished events.
// Idempotent; a disabled service is a no-op.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.queue != nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}
	s.queue = make(chan job, s.cfg.QueueSize)
	s.accepting = true
	var sub <-chan eventbus.Event
	if s.bus != nil {
		sub, s.busUnsub = s.bus.Subscribe(16)
	}
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		// Summary delivery is best-effort; failures never take down the app.
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	q := s.queue
	s.mu.Unlock()

	sup.Go0("notify.worker", func(c context.Context) {
		s.workerLoop(c, q)
	})
	if sub != nil {
		sup.Go0("notify.bus", func(c context.Context) {
			s.busLoop(c, sub)
		})
	}
}

// Stop stops intake and cancels the worker. Queued summaries may be dropped.
func (s *Service) Stop(timeout time.Duration) {
	s.mu.Lock()
	sup := s.sup
	unsub := s.busUnsub
	s.accepting = false
	s.queue = nil
	s.sup = nil
	s.busUnsub = nil
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if sup != nil {
		_ = sup.Stop(timeout)
	}
}

// Notify enqueues a summary text for delivery.
func (s *Service) Notify(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	s.mu.Lock()
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return ErrDisabled
	}
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	chatID := s.cfg.ChatID
	window := s.cfg.DedupWindow
	s.mu.Unlock()

	key := dedupKey(chatID, text)
	if window > 0 && !s.dedupAllow(key, window) {
		s.log.Debug("summary suppressed by dedup window", logx.String("key", key))
		return nil
	}

	select {
	case q <- job{text: text, dedupKey: key}:
		return nil
	default:
		s.log.Warn("summary dropped, queue full")
		return ErrQueueFull
	}
}

func (s *Service) busLoop(ctx context.Context, sub <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if ev.Type != eventbus.TypeRunFinished {
				continue
			}
			sum, ok := ev.Data.(invite.RunSummary)
			if !ok {
				continue
			}
			_ = s.Notify(FormatSummary(sum))
		}
	}
}

// FormatSummary renders one run-finished event as a Telegram message.
func FormatSummary(sum invite.RunSummary) string {
	var b strings.Builder
	if sum.Stopped {
		b.WriteString("Invitation run stopped.\n")
	} else {
		b.WriteString("Invitation run completed.\n")
	}
	fmt.Fprintf(&b, "Group: %s\n", sum.GroupID)
	fmt.Fprintf(&b, "Invited %d/%d, failed %d, skipped %d", sum.Invited, sum.Total, sum.Failed, sum.Skipped)
	if sum.Took > 0 {
		fmt.Fprintf(&b, " in %s", sum.Took.Round(time.Second))
	}
	return b.String()
}

func (s *Service) workerLoop(ctx context.Context, q <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			s.sendWithRetry(ctx, j)
		}
	}
}

func (s *Service) sendWithRetry(ctx context.Context, j job) {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	sender := s.sender
	s.mu.Unlock()

	if sender == nil {
		return
	}

	maxAttempts := 1 + cfg.RetryMax
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := sender.SendText(callCtx, cfg.ChatID, j.text)
		cancel()
		if err == nil {
			return
		}
		s.log.Debug("summary send failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", maxAttempts))

		if attempt >= maxAttempts {
			s.log.Warn("summary delivery failed", logx.Err(err))
			return
		}

		// Exponential backoff: base * 2^(attempt-1).
		delay := cfg.RetryBase
		for i := 1; i < attempt; i++ {
			delay *= 2
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func dedupKey(chatID int64, text string) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|", chatID)
	_, _ = h.Write([]byte(text))
	return fmt.Sprintf("%x", h.Sum64())
}

// dedupAllow reports whether the key is outside its suppression window and,
// if so, opens a new window. Checks memory first, then the persistent store
// for cross-restart suppression.
func (s *Service) dedupAllow(key string, window time.Duration) bool {
	now := time.Now()

	s.dmu.Lock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		s.dmu.Unlock()
		return false
	}
	s.dmu.Unlock()

	if s.store != nil {
		cctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
		until, ok, err := s.store.GetDedup(cctx, key)
		cancel()
		if err == nil && ok && now.Before(until) {
			s.dmu.Lock()
			s.dedup[key] = until
			s.dmu.Unlock()
			return false
		}
	}

	until := now.Add(window)
	s.dmu.Lock()
	s.dedup[key] = until
	for k, u := range s.dedup {
		if !now.Before(u) {
			delete(s.dedup, k)
		}
	}
	s.dmu.Unlock()

	if s.store != nil {
		cctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
		_ = s.store.PutDedup(cctx, key, until)
		cancel()
	}
	return true
}

// TelegramSender is the production Sender backed by telebot. The bot is
// send-only; no update poller is started.
type TelegramSender struct {
	bot *tele.Bot
}

func NewTelegramSender(token string) (*TelegramSender, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, err
	}
	return &TelegramSender{bot: b}, nil
}

func (t *TelegramSender) SendText(ctx context.Context, chatID int64, text string) error {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	_, err := t.bot.Send(&tele.Chat{ID: chatID}, text)
	return err
}
