// Command ctylookup resolves amateur-radio callsigns to DXCC entities using a
// CTY prefix database.
package main

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ctydat/config"
	"ctydat/cty"
	"ctydat/logging"
	"ctydat/refresh"
)

// app carries what every subcommand needs once flags and config are resolved.
type app struct {
	configPath string
	dataPath   string
	format     string
	logLevel   string

	cfg      *config.Config
	logger   *zap.Logger
	closeLog func() error
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "ctylookup",
		Short: "Resolve callsigns to DXCC entities using cty.dat",
		Long: `ctylookup loads a CTY prefix database (cty.dat or cty.plist) and resolves
callsigns to their DXCC entity, CQ/ITU zones, continent and position.

Examples:
  ctylookup lookup DL1ABC S6ABC     # resolve callsigns given as arguments
  ctylookup lookup                  # interactive, one callsign per line
  ctylookup keys BS7                # list table keys starting with BS7
  ctylookup fetch                   # download the configured cty file
  ctylookup config                  # show the effective configuration
  ctylookup watch                   # interactive with daily background refresh`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.closeLog != nil {
				return a.closeLog()
			}
			return nil
		},
	}
	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "YAML config file or directory")
	flags.StringVarP(&a.dataPath, "data", "d", "", "path to cty.dat or cty.plist (overrides config)")
	flags.StringVar(&a.format, "format", "", "data format: auto, dat or plist (overrides config)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level (overrides config)")

	root.AddCommand(newLookupCmd(a), newKeysCmd(a), newFetchCmd(a), newWatchCmd(a), newConfigCmd(a))
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg := config.Default()
	if a.configPath != "" {
		loaded, err := config.Load(a.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if a.dataPath != "" {
		cfg.CTY.File = a.dataPath
	}
	if a.format != "" {
		cfg.CTY.Format = a.format
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closeLog, err := logging.New(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return errors.Wrap(err, "failed to initialize logger")
	}
	a.cfg = cfg
	a.logger = logger
	a.closeLog = closeLog
	return nil
}

func (a *app) holder() (*refresh.Holder, error) {
	return refresh.New(a.cfg.CTY, a.logger)
}

func (a *app) station() *stationInfo {
	if a.cfg.Station.Locator == "" {
		return nil
	}
	p, err := cty.LatLonFromGrid(a.cfg.Station.Locator)
	if err != nil {
		return nil
	}
	return &stationInfo{call: a.cfg.Station.Callsign, point: p}
}
