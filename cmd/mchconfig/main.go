package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mscrnt/mchconfig/internal/config"
	"github.com/mscrnt/mchconfig/internal/version"
	"github.com/mscrnt/mchconfig/pkg/agent"
	"github.com/mscrnt/mchconfig/pkg/imc"
)

var (
	// Build variables set by ldflags
	buildVersion string
	buildCommit  string
	buildTime    string
)

// Exit codes distinguishing the snapshot failure kinds
const (
	exitOK          = 0
	exitFailure     = 1
	exitUnsupported = 2
	exitPermission  = 3
	exitDecode      = 4
)

// globalFlags are the persistent flags shared by every subcommand
type globalFlags struct {
	configPath string
	backend    string
	replay     string
	dbPath     string
	verbose    bool
}

// app carries the resolved configuration into subcommands
type app struct {
	flags    globalFlags
	settings config.Config
	stderr   io.Writer
}

func main() {
	root := newRootCmd(os.Stdout, os.Stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stderr: stderr}
	info := version.Info{Version: buildVersion, Commit: buildCommit, BuildTime: buildTime}

	rootCmd := &cobra.Command{
		Use:   "mchconfig",
		Short: "Read the memory controller configuration of Intel client processors",
		Long: `mchconfig reads the integrated memory controller registers of Sandy Bridge,
Ivy Bridge, Haswell and Broadwell client processors and reports the DIMM
population, DRAM frequency, ECC state and system address map.

Reading hardware registers requires root. A saved lspci -xxx dump can be
replayed with --backend replay.`,
		Version:       info.Short(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := loadSettings(cmd, a.flags)
			if err != nil {
				return err
			}
			a.settings = settings
			return nil
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.flags.configPath, "config", "", "Config file (YAML)")
	pf.StringVar(&a.flags.backend, "backend", config.BackendPort, "Register access backend: port, sysfs or replay")
	pf.StringVar(&a.flags.replay, "replay", "", "Replay fixture for --backend replay")
	pf.StringVar(&a.flags.dbPath, "db", "", "History database path (default: ~/.mchconfig/history.db)")
	pf.BoolVarP(&a.flags.verbose, "verbose", "v", false, "Log every register read")

	rootCmd.AddCommand(versionCmd(info))
	rootCmd.AddCommand(snapshotCmd(a))
	rootCmd.AddCommand(generationsCmd())
	rootCmd.AddCommand(historyCmd(a))
	rootCmd.AddCommand(exportCmd(a))
	rootCmd.AddCommand(verifyCmd(a))
	rootCmd.AddCommand(agentCmd(a))
	rootCmd.AddCommand(certCmd())

	return rootCmd
}

func versionCmd(info version.Info) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), info.Detailed())
		},
	}
}

// exitCode maps snapshot failures onto distinct process exit codes
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}

	var unsupported *imc.UnsupportedPlatformError
	if errors.As(err, &unsupported) {
		return exitUnsupported
	}
	var pae *imc.PortAccessError
	if errors.As(err, &pae) && pae.IsPermission() {
		return exitPermission
	}
	var de *imc.DecodeError
	if errors.As(err, &de) {
		return exitDecode
	}

	// Remote failures keep the agent's classification
	var se *agent.StatusError
	if errors.As(err, &se) {
		switch se.Kind {
		case agent.KindUnsupported:
			return exitUnsupported
		case agent.KindPermission:
			return exitPermission
		case agent.KindDecode:
			return exitDecode
		}
	}
	return exitFailure
}
