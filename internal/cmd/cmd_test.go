package cmd

import (
	"log/slog"
	"testing"

	"github.com/clambin/go-common/charmer"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestRootCmd_Logger(t *testing.T) {
	t.Cleanup(func() { viper.Set("debug", false) })

	for _, debug := range []bool{false, true} {
		viper.Set("debug", debug)
		cmd := &cobra.Command{Use: "test"}
		cmd.SetContext(t.Context())
		RootCmd.PersistentPreRun(cmd, nil)

		logger := charmer.GetLogger(cmd)
		assert.NotSame(t, slog.Default(), logger)
		assert.Equal(t, debug, logger.Enabled(t.Context(), slog.LevelDebug))
	}
}

func TestRootCmd_Flags(t *testing.T) {
	for name := range args {
		assert.NotNil(t, RootCmd.PersistentFlags().Lookup(name), name)
	}
}
