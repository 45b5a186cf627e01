package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/clambin/comap-monitor/internal/zonestate"
	"github.com/slack-go/slack"
)

func (b *Bot) ReportRooms(_ context.Context, _ ...string) []slack.Attachment {
	update, ok := b.getUpdate()
	if !ok {
		return noUpdate()
	}

	zones := update.SortedZones()
	if len(zones) == 0 {
		return []slack.Attachment{{Color: "bad", Text: "no rooms found"}}
	}

	text := make([]string, 0, len(zones))
	for _, zone := range zones {
		line := zone.Title
		if zone.Temperature != nil {
			line += fmt.Sprintf(": %.1fºC", *zone.Temperature)
		}
		text = append(text, line+" ("+zoneState(zone)+")")
	}

	return []slack.Attachment{{
		Color: "good",
		Title: "rooms:",
		Text:  strings.Join(text, "\n"),
	}}
}

func zoneState(zone zonestate.State) string {
	state := []string{string(zone.HVACMode)}
	if zone.Preset != "" {
		state = append(state, "preset: "+zone.Preset)
	}
	if zone.TargetTemperature != nil {
		state = append(state, fmt.Sprintf("target: %.1f", *zone.TargetTemperature))
	}
	if zone.Override != nil {
		override := "override"
		if !zone.Override.EndAt.IsZero() {
			override += " until " + zone.Override.EndAt.Local().Format("15:04")
		}
		state = append(state, override)
	}
	if zone.Schedule != nil {
		state = append(state, "schedule: "+zone.Schedule.Title)
	}
	return strings.Join(state, ", ")
}

func (b *Bot) SetRoom(ctx context.Context, args ...string) []slack.Attachment {
	cmd, err := parseSetCommand(args...)
	if err != nil {
		return failed(fmt.Errorf("invalid command: %w", err))
	}
	zoneID, err := b.zoneID(cmd.zoneName)
	if err != nil {
		return failed(err)
	}

	var text string
	switch {
	case cmd.auto:
		b.thermostat.ClearOverride(ctx, zoneID)
		text = "Setting " + cmd.zoneName + " to automatic mode"
	case cmd.temperature != nil:
		err = b.thermostat.SetTemperature(ctx, zoneID, *cmd.temperature, cmd.duration)
		text = fmt.Sprintf("Setting target temperature for %s to %.1fºC", cmd.zoneName, *cmd.temperature)
	default:
		err = b.thermostat.SetPreset(ctx, zoneID, cmd.preset, cmd.duration)
		text = "Setting " + cmd.zoneName + " to " + cmd.preset
	}
	if err != nil {
		return failed(err)
	}
	if cmd.duration > 0 {
		text += " for " + cmd.duration.String()
	}

	b.poller.Refresh()
	return []slack.Attachment{{Color: "good", Text: text}}
}

func (b *Bot) SetSchedule(ctx context.Context, args ...string) []slack.Attachment {
	if len(args) != 2 {
		return failed(errors.New("invalid command: missing parameters\nUsage: schedule <room>|all <schedule>"))
	}
	var zoneID string
	allZones := strings.EqualFold(args[0], "all")
	if !allZones {
		var err error
		if zoneID, err = b.zoneID(args[0]); err != nil {
			return failed(err)
		}
	}
	schedule, err := b.thermostat.ScheduleByTitle(ctx, args[1])
	if err != nil {
		return failed(err)
	}
	if allZones {
		err = b.thermostat.AssignScheduleToAllZones(ctx, schedule.ID)
	} else {
		_, err = b.thermostat.AssignSchedule(ctx, zoneID, schedule.ID)
	}
	if err != nil {
		return failed(err)
	}

	b.poller.Refresh()
	if allZones {
		return []slack.Attachment{{Color: "good", Text: "all rooms now follow schedule " + schedule.Title}}
	}
	return []slack.Attachment{{Color: "good", Text: args[0] + " now follows schedule " + schedule.Title}}
}

func (b *Bot) SetProgram(ctx context.Context, args ...string) []slack.Attachment {
	if len(args) != 1 {
		return failed(errors.New("invalid command: missing parameters\nUsage: program <program>"))
	}
	program, err := b.thermostat.ProgramByTitle(ctx, args[0])
	if err != nil {
		return failed(err)
	}
	if err = b.thermostat.SetProgram(ctx, program.ID); err != nil {
		return failed(err)
	}

	b.poller.Refresh()
	return []slack.Attachment{{Color: "good", Text: "activated program " + program.Title}}
}

func (b *Bot) SetAway(ctx context.Context, _ ...string) []slack.Attachment {
	if err := b.thermostat.SetAway(ctx); err != nil {
		return failed(err)
	}
	b.poller.Refresh()
	return []slack.Attachment{{Color: "good", Text: "set home to away mode"}}
}

func (b *Bot) SetHome(ctx context.Context, _ ...string) []slack.Attachment {
	if err := b.thermostat.SetHome(ctx); err != nil {
		return failed(err)
	}
	b.poller.Refresh()
	return []slack.Attachment{{Color: "good", Text: "set home to home mode"}}
}

func (b *Bot) DoRefresh(_ context.Context, _ ...string) []slack.Attachment {
	b.poller.Refresh()
	return []slack.Attachment{{Text: "refreshing Comap data"}}
}

func (b *Bot) zoneID(name string) (string, error) {
	update, ok := b.getUpdate()
	if !ok {
		return "", errNoUpdate
	}
	zoneID, ok := update.GetZoneID(name)
	if !ok {
		return "", fmt.Errorf("invalid room name: %q", name)
	}
	return zoneID, nil
}

var errNoUpdate = errors.New("no updates yet. please check back later")

func noUpdate() []slack.Attachment {
	return failed(errNoUpdate)
}

func failed(err error) []slack.Attachment {
	return []slack.Attachment{{Color: "bad", Text: err.Error()}}
}
