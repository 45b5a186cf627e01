package bot

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/clambin/comap-monitor/internal/poller"
	"github.com/clambin/comap-monitor/internal/zonestate"
	"github.com/clambin/comap-monitor/pkg/comap"
	"github.com/clambin/go-common/slackbot"
	"github.com/slack-go/slack"
)

type Bot struct {
	thermostat Thermostat
	slack      SlackBot
	poller     poller.Poller
	channel    string
	logger     *slog.Logger
	lock       sync.RWMutex
	update     poller.Update
	updated    bool
}

type Thermostat interface {
	SetTemperature(ctx context.Context, zoneID string, temperature float64, duration time.Duration) error
	SetPreset(ctx context.Context, zoneID string, preset string, duration time.Duration) error
	ClearOverride(ctx context.Context, zoneID string)
	AssignSchedule(ctx context.Context, zoneID, scheduleID string) (zonestate.State, error)
	AssignScheduleToAllZones(ctx context.Context, scheduleID string) error
	SetProgram(ctx context.Context, programID string) error
	SetAway(ctx context.Context) error
	SetHome(ctx context.Context) error
	ScheduleByTitle(ctx context.Context, title string) (comap.Schedule, error)
	ProgramByTitle(ctx context.Context, title string) (comap.Program, error)
}

type SlackBot interface {
	Register(name string, command slackbot.HandlerFunc)
	Run(ctx context.Context) error
	Send(channel string, attachments []slack.Attachment) error
}

// New returns a Bot. If channel isn't blank, the Bot posts changes in overrides and housing events to that channel.
func New(thermostat Thermostat, slackBot SlackBot, p poller.Poller, channel string, logger *slog.Logger) *Bot {
	b := Bot{
		thermostat: thermostat,
		slack:      slackBot,
		poller:     p,
		channel:    channel,
		logger:     logger,
	}
	slackBot.Register("rooms", b.ReportRooms)
	slackBot.Register("set", b.SetRoom)
	slackBot.Register("schedule", b.SetSchedule)
	slackBot.Register("program", b.SetProgram)
	slackBot.Register("away", b.SetAway)
	slackBot.Register("home", b.SetHome)
	slackBot.Register("refresh", b.DoRefresh)

	return &b
}

func (b *Bot) Run(ctx context.Context) error {
	b.logger.Debug("started")
	defer b.logger.Debug("stopped")

	ch := b.poller.Subscribe()
	defer b.poller.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return nil
		case update := <-ch:
			b.process(update)
		}
	}
}

func (b *Bot) process(update poller.Update) {
	b.lock.Lock()
	previous, hadUpdate := b.update, b.updated
	b.update = update
	b.updated = true
	b.lock.Unlock()

	if !hadUpdate || b.channel == "" {
		return
	}
	if events := changes(previous, update); len(events) > 0 {
		attachments := []slack.Attachment{{Color: "good", Text: strings.Join(events, "\n")}}
		if err := b.slack.Send(b.channel, attachments); err != nil {
			b.logger.Warn("failed to post changes", slog.Any("err", err))
		}
	}
}

func (b *Bot) getUpdate() (poller.Update, bool) {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.update, b.updated
}

// changes reports the overrides and housing events that started or ended between two updates.
func changes(previous, current poller.Update) []string {
	var events []string
	for _, zone := range current.SortedZones() {
		before, ok := previous.Zones[zone.ZoneID]
		if !ok {
			continue
		}
		switch {
		case before.Override == nil && zone.Override != nil:
			events = append(events, zone.Title+": override set to "+zone.Override.Instruction.String())
		case before.Override != nil && zone.Override == nil:
			events = append(events, zone.Title+": override removed")
		}
	}

	for _, event := range current.ThermalDetails.Events.Active() {
		if !previous.ThermalDetails.Events.Has(event) {
			events = append(events, "housing event started: "+event)
		}
	}
	for _, event := range previous.ThermalDetails.Events.Active() {
		if !current.ThermalDetails.Events.Has(event) {
			events = append(events, "housing event ended: "+event)
		}
	}
	return events
}
