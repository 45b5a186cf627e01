package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/clambin/comap-monitor/internal/zonestate"
	"github.com/clambin/comap-monitor/pkg/comap"
	"github.com/clambin/comap-monitor/pkg/pubsub"
	"golang.org/x/sync/errgroup"
)

type Poller interface {
	Subscribe() <-chan Update
	Unsubscribe(ch <-chan Update)
	Refresh()
}

type ComapGetter interface {
	HousingID() string
	GetThermalDetails(ctx context.Context) (comap.ThermalDetails, error)
	GetCustomTemperatures(ctx context.Context) (comap.TemperatureLookup, error)
	GetPrograms(ctx context.Context) (comap.Programs, error)
	GetSchedules(ctx context.Context) ([]comap.Schedule, error)
	GetConnectedObjects(ctx context.Context) ([]comap.ConnectedObject, error)
}

var _ Poller = &ComapPoller{}

// ComapPoller periodically collects the state of a housing and publishes it to its subscribers.
//
// Thermal details and temperatures are polled every interval. Programs, schedules and connected objects change
// less frequently and are only polled every slowInterval, or when a refresh is requested.
type ComapPoller struct {
	Client ComapGetter
	*pubsub.Publisher[Update]
	Resolver     zonestate.Resolver
	interval     time.Duration
	slowInterval time.Duration
	logger       *slog.Logger
	refresh      chan struct{}
	lock         sync.RWMutex
	last         Update
	lastSlowPoll time.Time
	err          error
}

func New(client ComapGetter, interval, slowInterval time.Duration, logger *slog.Logger) *ComapPoller {
	return &ComapPoller{
		Client:       client,
		Publisher:    pubsub.New[Update](logger.With(slog.String("component", "pubsub"))),
		interval:     interval,
		slowInterval: slowInterval,
		logger:       logger,
		refresh:      make(chan struct{}, 1),
	}
}

func (p *ComapPoller) Run(ctx context.Context) error {
	p.logger.Debug("started", slog.Duration("interval", p.interval), slog.Duration("slowInterval", p.slowInterval))
	defer p.logger.Debug("stopped")

	p.poll(ctx, true)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.poll(ctx, false)
		case <-p.refresh:
			p.poll(ctx, true)
		}
	}
}

// Refresh requests an immediate, full poll. Refresh does not block: if a refresh is already pending, the request is dropped.
func (p *ComapPoller) Refresh() {
	select {
	case p.refresh <- struct{}{}:
	default:
	}
}

// Err returns the error of the last poll, or nil if the last poll succeeded.
func (p *ComapPoller) Err() error {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.err
}

func (p *ComapPoller) poll(ctx context.Context, full bool) {
	start := time.Now()
	update, err := p.update(ctx, full)

	p.lock.Lock()
	p.err = err
	if err == nil {
		p.last = update
	}
	p.lock.Unlock()

	if err != nil {
		p.logger.Error("failed to get comap state", slog.Any("err", err))
		return
	}
	p.Publish(update)
	p.logger.Debug("poll completed", slog.Duration("duration", time.Since(start)), slog.Any("update", update))
}

func (p *ComapPoller) update(ctx context.Context, full bool) (Update, error) {
	p.lock.RLock()
	update := p.last
	slowDue := full || p.lastSlowPoll.IsZero() || time.Since(p.lastSlowPoll) >= p.slowInterval
	p.lock.RUnlock()

	update.HousingID = p.Client.HousingID()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		if update.ThermalDetails, err = p.Client.GetThermalDetails(ctx); err != nil {
			err = fmt.Errorf("thermal details: %w", err)
		}
		return err
	})
	g.Go(func() (err error) {
		if update.Temperatures, err = p.Client.GetCustomTemperatures(ctx); err != nil {
			err = fmt.Errorf("custom temperatures: %w", err)
		}
		return err
	})
	if slowDue {
		g.Go(func() (err error) {
			if update.Programs, err = p.Client.GetPrograms(ctx); err != nil {
				err = fmt.Errorf("programs: %w", err)
			}
			return err
		})
		g.Go(func() (err error) {
			if update.Schedules, err = p.Client.GetSchedules(ctx); err != nil {
				err = fmt.Errorf("schedules: %w", err)
			}
			return err
		})
		g.Go(func() (err error) {
			if update.ConnectedObjects, err = p.Client.GetConnectedObjects(ctx); err != nil {
				err = fmt.Errorf("connected objects: %w", err)
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Update{}, err
	}
	if slowDue {
		p.lock.Lock()
		p.lastSlowPoll = time.Now()
		p.lock.Unlock()
	}

	snapshot := zonestate.Snapshot{
		ThermalDetails: update.ThermalDetails,
		Temperatures:   update.Temperatures,
	}
	if program, ok := update.ActiveProgram(); ok {
		snapshot.Schedules = zonestate.NewScheduleIndex(program, update.Schedules)
	} else if slowDue {
		p.logger.Warn("no active program found. zones are reported without schedule")
	}
	var err error
	if update.Zones, err = p.Resolver.ResolveAll(snapshot); err != nil {
		p.logger.Warn("not all zones could be resolved", slog.Any("err", err))
	}
	update.Timestamp = time.Now()
	return update, nil
}
