package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/clambin/comap-monitor/pkg/comap"
	"github.com/clambin/go-common/charmer"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var (
	asJSON bool
	Cmd    = cobra.Command{
		Use:   "config",
		Short: "Show the housings, zones, programs and schedules of a Comap account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := comap.New(
				comap.Credentials{
					Username: viper.GetString("comap.username"),
					Password: viper.GetString("comap.password"),
					ClientID: viper.GetString("comap.clientID"),
				},
				comap.WithTimeout(viper.GetDuration("comap.timeout")),
				comap.WithHousing(viper.GetString("comap.housing")),
				comap.WithLogger(charmer.GetLogger(cmd).With("component", "comap")),
			)
			if err := client.Connect(cmd.Context()); err != nil {
				return fmt.Errorf("comap: %w", err)
			}

			var e Encoder
			if asJSON {
				e = json.NewEncoder(os.Stdout)
			} else {
				e = yaml.NewEncoder(os.Stdout)
			}
			return ShowConfig(cmd.Context(), client, e)
		},
	}
)

func init() {
	Cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
}

type Encoder interface {
	Encode(any) error
}

type ComapGetter interface {
	GetHousings(context.Context) ([]comap.Housing, error)
	GetThermalDetails(context.Context) (comap.ThermalDetails, error)
	GetPrograms(context.Context) (comap.Programs, error)
	GetSchedules(context.Context) ([]comap.Schedule, error)
}

type entry struct {
	ID   string
	Name string
}

type programEntry struct {
	ID     string
	Name   string
	Active bool
}

type report struct {
	Housings  []entry
	Zones     []entry
	Programs  []programEntry
	Schedules []entry
}

// ShowConfig writes the housings of the account, and the zones, programs and schedules of the selected housing.
func ShowConfig(ctx context.Context, c ComapGetter, e Encoder) error {
	var r report

	housings, err := c.GetHousings(ctx)
	if err != nil {
		return fmt.Errorf("comap: housings: %w", err)
	}
	for _, housing := range housings {
		r.Housings = append(r.Housings, entry{ID: housing.ID, Name: housing.Name})
	}

	details, err := c.GetThermalDetails(ctx)
	if err != nil {
		return fmt.Errorf("comap: thermal details: %w", err)
	}
	for _, zone := range details.Zones {
		r.Zones = append(r.Zones, entry{ID: zone.ID, Name: zone.Title})
	}

	programs, err := c.GetPrograms(ctx)
	if err != nil {
		return fmt.Errorf("comap: programs: %w", err)
	}
	for _, program := range programs.Programs {
		r.Programs = append(r.Programs, programEntry{ID: program.ID, Name: program.Title, Active: program.IsActivated})
	}

	schedules, err := c.GetSchedules(ctx)
	if err != nil {
		return fmt.Errorf("comap: schedules: %w", err)
	}
	for _, schedule := range schedules {
		r.Schedules = append(r.Schedules, entry{ID: schedule.ID, Name: schedule.Title})
	}

	return e.Encode(r)
}
