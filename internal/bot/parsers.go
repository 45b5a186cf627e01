package bot

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/clambin/comap-monitor/internal/zonestate"
)

type setCommand struct {
	zoneName    string
	auto        bool
	temperature *float64
	preset      string
	duration    time.Duration
}

func parseSetCommand(args ...string) (setCommand, error) {
	if len(args) < 2 {
		return setCommand{}, errors.New("missing parameters\nUsage: set <room> [auto|<temperature>|<preset> [<duration>]]")
	}

	cmd := setCommand{zoneName: args[0]}

	switch {
	case args[1] == "auto":
		cmd.auto = true
		return cmd, nil
	case isPreset(args[1]):
		cmd.preset = args[1]
	default:
		temperature, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return setCommand{}, fmt.Errorf("invalid target: %q", args[1])
		}
		cmd.temperature = &temperature
	}

	if len(args) > 2 {
		var err error
		if cmd.duration, err = time.ParseDuration(args[2]); err != nil || cmd.duration < 0 {
			return setCommand{}, fmt.Errorf("invalid duration: %q", args[2])
		}
	}
	return cmd, nil
}

func isPreset(value string) bool {
	_, err := zonestate.KeyForPreset(value)
	return err == nil
}
