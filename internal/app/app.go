// Package app wires the daemon together: config, logging, the log watcher,
// the invite engine, and the optional schedule/notify/storage services.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"vrcinvited/internal/config"
	"vrcinvited/internal/eventbus"
	"vrcinvited/internal/invite"
	"vrcinvited/internal/logwatch"
	"vrcinvited/internal/notify"
	"vrcinvited/internal/presence"
	rtsup "vrcinvited/internal/runtime/supervisor"
	"vrcinvited/internal/schedule"
	"vrcinvited/internal/storage"
	"vrcinvited/internal/vrc"
	"vrcinvited/internal/watcher"
	logx "vrcinvited/pkg/logx"
)

// ErrNotInGroupInstance aborts an invite run started while the acting user is
// not inside an instance of the target group.
var ErrNotInGroupInstance = errors.New("current instance does not belong to the target group")

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	client  *vrc.Client
	tracker *presence.Tracker
	engine  *invite.Engine
	sched   *schedule.Service
	notif   *notify.Service

	wmu   sync.Mutex
	watch *watcher.Watcher
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	// Storage (optional)
	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	timeout, err := cfg.VRChat.RequestTimeoutOrDefault()
	if err != nil {
		return nil, err
	}
	client := vrc.New(vrc.Config{
		AuthCookie: cfg.VRChat.AuthCookie,
		UserAgent:  cfg.VRChat.UserAgent,
		BaseURL:    cfg.VRChat.BaseURL,
		RatePerSec: cfg.VRChat.RatePerSec,
		Timeout:    timeout,
	}, log.With(logx.String("comp", "vrc")))

	tracker := presence.NewTracker()

	engine := invite.NewEngine(client, log, bus)
	if store != nil {
		engine.SetRecorder(storeRecorder{store})
	}

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		client:  client,
		tracker: tracker,
		engine:  engine,
	}

	// Notify (optional): Telegram summaries per finished run.
	ncfg, err := mapNotifyConfig(cfg)
	if err != nil {
		return nil, err
	}
	var sender notify.Sender
	if ncfg.Enabled {
		s, err := notify.NewTelegramSender(ncfg.Token)
		if err != nil {
			return nil, fmt.Errorf("notify: %w", err)
		}
		sender = s
	}
	a.notif = notify.New(ncfg, sender, log, bus, store)

	// Schedule (optional): unattended runs.
	a.sched = schedule.New(mapScheduleConfig(cfg), func(ctx context.Context) {
		if _, err := a.RunInvites(ctx); err != nil {
			log.Warn("scheduled invite run failed", logx.Err(err))
		}
	}, log)

	return a, nil
}

// Done is closed when the app supervisor context is canceled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := config.Validate(cfg); err != nil {
			return err
		}
		if cfg.Schedule != nil && cfg.Schedule.Enabled {
			if _, err := schedule.ParseSpec(cfg.Schedule.Spec); err != nil {
				return err
			}
			if tz := strings.TrimSpace(cfg.Schedule.Timezone); tz != "" {
				if _, err := time.LoadLocation(tz); err != nil {
					return fmt.Errorf("schedule.timezone: invalid %q: %w", tz, err)
				}
			}
		}
		return nil
	})

	cfg := a.cfgm.Get()

	// Mirror warnings and above into the summary chat when notify is enabled.
	if a.notif.Enabled() && cfg.Logging.Mirror.Enabled {
		a.logs.SetMirror(func(_ logx.Level, line string) {
			_ = a.notif.Notify(line)
		})
	}

	if a.notif.Enabled() {
		a.notif.Start(a.sup.Context())
	}
	if a.sched.Enabled() {
		a.sched.Start(a.sup.Context())
	}

	// Begin watching the log. A missing log file is not fatal: the daemon may
	// be started before VRChat, and StartWatching can be retried.
	if !a.StartWatching(cfg.Watcher.BackfillOrDefault()) {
		a.log.Warn("log watching not started; call StartWatching again once a log file exists")
	}

	// Config hot reload fan-out.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(c, newCfg)
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// applyConfig applies a hot-reloaded config to the live services. Sections
// that cannot change at runtime (storage, the API client's auth) only warn.
func (a *App) applyConfig(ctx context.Context, cfg *config.Config) {
	if cfg == nil {
		return
	}
	a.logs.Apply(mapLoggingConfig(cfg))

	if ncfg, err := mapNotifyConfig(cfg); err != nil {
		a.log.Warn("invalid notify config; keeping previous", logx.Err(err))
	} else {
		wasEnabled := a.notif.Enabled()
		a.notif.Apply(ncfg)
		if wasEnabled && !ncfg.Enabled {
			a.log.Info("notify disabled via config")
			a.notif.Stop(3 * time.Second)
		} else if !wasEnabled && ncfg.Enabled {
			a.log.Info("notify enabled via config")
			a.notif.Start(ctx)
		}
	}

	wasSched := a.sched.Enabled()
	a.sched.Apply(mapScheduleConfig(cfg))
	if wasSched && !a.sched.Enabled() {
		a.log.Info("schedule disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.sched.Stop(stopCtx)
		cancel()
	} else if !wasSched && a.sched.Enabled() {
		a.log.Info("schedule enabled via config")
		a.sched.Start(ctx)
	}

	a.log.Info("config reloaded")
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")
	a.sup.Cancel()

	a.StopWatching()
	a.engine.Stop()

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	a.sched.Stop(stopCtx)
	cancel()
	a.notif.Stop(2 * time.Second)

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
	}

	if !a.sup.Stop(2 * time.Second) {
		a.log.Warn("supervised goroutines did not exit in time")
	}

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// StartWatching resolves the log source and starts the session watcher.
// Returns false when already watching or no log source is available.
func (a *App) StartWatching(backfill bool) bool {
	cfg := a.cfgm.Get()

	path, err := a.resolveLogPath(cfg)
	if err != nil {
		a.log.Warn("no log file to watch", logx.Err(err))
		return false
	}

	pollInterval, err := cfg.Watcher.PollIntervalOrDefault()
	if err != nil {
		pollInterval = config.DefaultPollInterval
	}

	a.wmu.Lock()
	if a.watch != nil {
		st := a.watch.State()
		if st == watcher.StateScanning || st == watcher.StateFollowing {
			a.wmu.Unlock()
			a.log.Info("already watching log file")
			return false
		}
	}
	w := watcher.New(path, pollInterval, a.tracker, a.log, a.bus)
	a.watch = w
	a.wmu.Unlock()

	return w.Start(backfill)
}

// StopWatching stops the session watcher. Returns false when nothing ran.
func (a *App) StopWatching() bool {
	a.wmu.Lock()
	w := a.watch
	a.wmu.Unlock()
	if w == nil {
		return false
	}
	return w.Stop()
}

// Watching reports the current watcher state.
func (a *App) Watching() watcher.State {
	a.wmu.Lock()
	w := a.watch
	a.wmu.Unlock()
	if w == nil {
		return watcher.StateIdle
	}
	return w.State()
}

// Snapshot returns the current present-user view.
func (a *App) Snapshot() presence.Snapshot {
	return a.tracker.Snapshot(time.Now())
}

func (a *App) resolveLogPath(cfg *config.Config) (string, error) {
	if p := strings.TrimSpace(cfg.Watcher.LogPath); p != "" {
		return p, nil
	}
	path, mod, err := logwatch.FindLatestLog()
	if err != nil {
		return "", err
	}
	if age := time.Since(mod); age > logwatch.StaleAfter {
		a.log.Warn("newest log file looks stale; is VRChat running?",
			logx.String("path", path), logx.Duration("age", age.Round(time.Minute)))
	}
	return path, nil
}

// RunInvites performs one full invitation run: verify the acting user is in
// an instance of the target group, snapshot presence, fetch the member and
// pending-invite lists, filter, and dispatch.
func (a *App) RunInvites(ctx context.Context) (invite.Result, error) {
	cfg := a.cfgm.Get()
	groupID := cfg.VRChat.GroupID

	user, err := a.client.CurrentUser(ctx)
	if err != nil {
		return invite.Result{}, fmt.Errorf("fetch current user: %w", err)
	}

	instance, err := vrc.InstanceFromLocation(user.Location)
	if err != nil {
		return invite.Result{}, err
	}
	if !vrc.IsGroupInstance(instance, groupID) {
		a.log.Warn("not in an instance of the target group",
			logx.String("instance", instance), logx.String("group", groupID))
		return invite.Result{}, ErrNotInGroupInstance
	}

	// Self-membership check: inviting on behalf of a group you are not in
	// fails downstream anyway; fail fast with a clear message.
	if _, err := a.client.GroupMember(ctx, groupID, user.ID); err != nil {
		if vrc.IsNotFound(err) {
			return invite.Result{}, fmt.Errorf("account %s is not a member of group %s", user.ID, groupID)
		}
		a.log.Warn("self membership check failed; continuing", logx.Err(err))
	}

	now := time.Now()
	snap := a.tracker.Snapshot(now)
	a.log.Info("presence snapshot", logx.String("session", snap.SessionID), logx.Int("present", len(snap.Present)))

	members, err := a.client.GroupMembers(ctx, groupID)
	if err != nil {
		return invite.Result{}, fmt.Errorf("fetch group members: %w", err)
	}
	pending, err := a.client.GroupInvites(ctx, groupID)
	if err != nil {
		return invite.Result{}, fmt.Errorf("fetch pending invites: %w", err)
	}

	minDwell, err := cfg.Invite.MinDwellOrDefault()
	if err != nil {
		minDwell = config.DefaultMinDwell
	}
	cands := invite.Filter(snap.Present, members, pending, user.ID, minDwell, now)
	a.log.Info("candidate set built",
		logx.Int("present", len(snap.Present)), logx.Int("members", len(members)),
		logx.Int("pending", len(pending)), logx.Int("candidates", len(cands)))

	delay, err := cfg.Invite.DelayOrDefault()
	if err != nil {
		delay = config.DefaultInviteDelay
	}
	return a.engine.Dispatch(ctx, groupID, cands, cfg.Invite.WorkersOrDefault(), delay)
}

// StopInvites requests cooperative cancellation of the current run.
func (a *App) StopInvites() bool { return a.engine.Stop() }

// InvitesRunning reports whether a dispatch run is in flight.
func (a *App) InvitesRunning() bool { return a.engine.Running() }

// SetProgress forwards a progress callback to the engine.
func (a *App) SetProgress(fn invite.Progress) { a.engine.SetProgress(fn) }

// storeRecorder adapts storage.Store to the engine's Recorder.
type storeRecorder struct {
	st storage.Store
}

func (r storeRecorder) RecordInvite(ctx context.Context, groupID, userID, displayName, outcome, detail string) error {
	return r.st.AppendInvite(ctx, storage.InviteRecord{
		At:          time.Now(),
		GroupID:     groupID,
		UserID:      userID,
		DisplayName: displayName,
		Outcome:     outcome,
		Detail:      detail,
	})
}
