package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/spf13/cobra"

	"github.com/mscrnt/mchconfig/internal/config"
	"github.com/mscrnt/mchconfig/pkg/cpuident"
	"github.com/mscrnt/mchconfig/pkg/db"
	"github.com/mscrnt/mchconfig/pkg/imc"
	"github.com/mscrnt/mchconfig/pkg/pciconf"
	"github.com/mscrnt/mchconfig/pkg/physmem"
)

// loadSettings layers defaults, the config file, the environment and
// explicitly set flags, in that order
func loadSettings(cmd *cobra.Command, flags globalFlags) (config.Config, error) {
	settings := config.Default()
	if flags.configPath != "" {
		loaded, err := config.Load(flags.configPath)
		if err != nil {
			return settings, err
		}
		settings = loaded
	}

	if err := settings.ApplyEnv(); err != nil {
		return settings, err
	}

	changed := cmd.Flags().Changed
	if changed("backend") {
		settings.Backend = flags.backend
	}
	if changed("replay") {
		settings.Replay = flags.replay
		// --replay alone implies the replay backend
		if !changed("backend") {
			settings.Backend = config.BackendReplay
		}
	}
	if changed("db") {
		settings.DBPath = flags.dbPath
	}
	if changed("verbose") {
		settings.Verbose = flags.verbose
	}

	if err := settings.Validate(); err != nil {
		return settings, fmt.Errorf("invalid configuration: %w", err)
	}
	return settings, nil
}

// loggers returns the warning and debug loggers plus a closer for the log
// file, if one is configured
func (a *app) loggers() (*log.Logger, *log.Logger, io.Closer, error) {
	var out io.Writer = a.stderr
	var closer io.Closer = nopCloser{}

	if a.settings.LogFile != "" {
		f, err := os.OpenFile(a.settings.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = f
		closer = f
	}

	logger := log.New(out, "[imc] ", log.LstdFlags)
	debug := log.New(io.Discard, "", 0)
	if a.settings.Verbose {
		debug = log.New(out, "[imc] debug: ", log.LstdFlags)
	}
	return logger, debug, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// source is the hardware (or replayed hardware) a snapshot is decoded from
type source struct {
	port     pciconf.ConfigSpacePort
	mapper   physmem.Mapper
	identity cpuident.Identity
	close    func() error
}

// openSource opens the configured register backend
func (a *app) openSource() (*source, error) {
	switch a.settings.Backend {
	case config.BackendReplay:
		fx, err := loadFixture(a.settings.Replay)
		if err != nil {
			return nil, err
		}
		return &source{
			port:     fx.config,
			mapper:   fx.memory,
			identity: fx.identity,
			close:    func() error { return nil },
		}, nil

	case config.BackendSysfs:
		identity, err := cpuident.Detect()
		if err != nil {
			return nil, err
		}
		port := &pciconf.SysfsPort{Root: a.settings.SysfsRoot}
		return &source{port: port, mapper: physmem.Devmem{}, identity: identity, close: port.Close}, nil

	default:
		identity, err := cpuident.Detect()
		if err != nil {
			return nil, err
		}
		// Skip opening the ports for processors that cannot be decoded
		if imc.NewResolver(identity).Resolve() == imc.Unsupported {
			return &source{identity: identity, close: func() error { return nil }}, nil
		}
		port, err := pciconf.Open()
		if err != nil {
			return nil, err
		}
		return &source{port: port, mapper: physmem.Devmem{}, identity: identity, close: port.Close}, nil
	}
}

// snapshot decodes one configuration from the configured backend
func (a *app) snapshot() (*imc.Config, error) {
	logger, debug, logCloser, err := a.loggers()
	if err != nil {
		return nil, err
	}
	defer func() { _ = logCloser.Close() }()

	src, err := a.openSource()
	if err != nil {
		return nil, err
	}
	defer func() { _ = src.close() }()

	in := imc.NewIntrospector(src.port, src.mapper, src.identity,
		imc.WithLogger(logger),
		imc.WithDebugLogger(debug),
	)
	return in.Snapshot()
}

// openDB opens the history database, creating the schema if needed
func (a *app) openDB() (*db.DB, error) {
	database, err := db.Open(a.settings.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return database, nil
}

// hostname names the machine in the history; replayed snapshots are
// recorded under the fixture's file name
func (a *app) hostname() string {
	if a.settings.Backend == config.BackendReplay {
		return "replay:" + a.settings.Replay
	}
	if info, err := host.Info(); err == nil && info.Hostname != "" {
		return info.Hostname
	}
	name, _ := os.Hostname()
	return name
}

func openOutput(path string, stdout io.Writer) (io.Writer, func() error, error) {
	if path == "" {
		return stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path) // #nosec G304 -- path is a user-specified output file from a command line flag
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, f.Close, nil
}
