// cmd/root.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ColonelBlimp/wklink/internal/cli/run"
	"github.com/ColonelBlimp/wklink/internal/config"
	"github.com/ColonelBlimp/wklink/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "wklink",
	Short: "Bridge a WinKeyer's paddles to a remote keyer",
	Long: `wklink connects to a K1EL WinKeyer over its serial port and turns paddle
contact changes into key presses (left Ctrl = dit, right Ctrl = dah), so a
hardware keyer can drive a software keyer such as VBand.`,
	SilenceUsage: true,
	RunE:         runBridge,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags (override config file)
	rootCmd.PersistentFlags().StringP("port", "p", "auto", "serial port of the keyer, or auto")
	rootCmd.PersistentFlags().BoolP("swap", "s", false, "swap dit and dah paddles")
	rootCmd.PersistentFlags().BoolP("mute", "m", true, "mute the keyer sidetone while connected")
	rootCmd.PersistentFlags().Int("min-wpm", 10, "speed at the pot minimum")
	rootCmd.PersistentFlags().Int("range-wpm", 20, "speed span of the pot")
	rootCmd.PersistentFlags().StringP("injector", "i", "keyboard", "key injector: keyboard or log")
	rootCmd.PersistentFlags().String("mqtt", "", "MQTT broker URL for telemetry, e.g. tcp://localhost:1883")
	rootCmd.PersistentFlags().BoolP("debug", "D", false, "enable debug output")

	bindFlags()
}

// bindFlags binds the persistent flags to their config keys.
func bindFlags() {
	viper.BindPFlag("port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("swap_paddles", rootCmd.PersistentFlags().Lookup("swap"))
	viper.BindPFlag("mute_sidetone", rootCmd.PersistentFlags().Lookup("mute"))
	viper.BindPFlag("min_wpm", rootCmd.PersistentFlags().Lookup("min-wpm"))
	viper.BindPFlag("range_wpm", rootCmd.PersistentFlags().Lookup("range-wpm"))
	viper.BindPFlag("injector", rootCmd.PersistentFlags().Lookup("injector"))
	viper.BindPFlag("mqtt_broker", rootCmd.PersistentFlags().Lookup("mqtt"))
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
}

func initConfig() {
	if err := config.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
}

func runBridge(cmd *cobra.Command, _ []string) error {
	settings, err := config.Get()
	if err != nil {
		return err
	}

	log := logger.NewSlog(cmd.ErrOrStderr(), settings.LogFormat, settings.LogLevel())
	logger.SetDefault(log)

	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return run.Run(ctx, settings, run.Options{
		In:  cmd.InOrStdin(),
		Out: cmd.OutOrStdout(),
		Log: log,
	})
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
