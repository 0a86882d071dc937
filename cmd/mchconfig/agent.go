package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mscrnt/mchconfig/pkg/agent"
	"github.com/mscrnt/mchconfig/pkg/imc"
)

func agentCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Remote snapshot agent",
		Long:  "Serve memory controller snapshots over mTLS, or query a remote agent.",
	}

	cmd.AddCommand(agentServeCmd(a))
	cmd.AddCommand(agentQueryCmd(a))

	return cmd
}

// agentFlags override the agent section of the config file
type agentFlags struct {
	host     string
	port     int
	certFile string
	keyFile  string
	caFile   string
}

func (f *agentFlags) register(cmd *cobra.Command, hostUsage string) {
	cmd.Flags().StringVar(&f.host, "host", "", hostUsage)
	cmd.Flags().IntVar(&f.port, "port", agent.DefaultPort, "Agent port")
	cmd.Flags().StringVar(&f.certFile, "cert", "", "Certificate file")
	cmd.Flags().StringVar(&f.keyFile, "key", "", "Private key file")
	cmd.Flags().StringVar(&f.caFile, "ca", "", "CA certificate file")
}

func (f *agentFlags) apply(cmd *cobra.Command, a *app) {
	changed := cmd.Flags().Changed
	ac := &a.settings.Agent
	if changed("host") {
		ac.Host = f.host
	}
	if changed("port") {
		ac.Port = f.port
	}
	if changed("cert") {
		ac.CertFile = f.certFile
	}
	if changed("key") {
		ac.KeyFile = f.keyFile
	}
	if changed("ca") {
		ac.CAFile = f.caFile
	}
}

func agentServeCmd(a *app) *cobra.Command {
	var (
		flags   agentFlags
		logFile string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the snapshot agent",
		Long: `Start the agent with mTLS authentication. Every request decodes afresh.

The agent exposes the following endpoints:
  /imc     - Decoded configuration (add ?raw=true for registers)
  /health  - Health check endpoint

Failures map to 501 (unsupported processor), 403 (register access
denied) and 500 (decode failure).

Examples:
  sudo mchconfig agent serve --cert server.pem --key server.key --ca ca.pem

  # Using environment variables
  export MCHCONFIG_AGENT_PORT=2224
  export MCHCONFIG_AGENT_CERT=server.pem
  export MCHCONFIG_AGENT_KEY=server.key
  export MCHCONFIG_AGENT_CA=ca.pem
  sudo mchconfig agent serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags.apply(cmd, a)
			config := a.settings.Agent.Server()
			if cmd.Flags().Changed("log") {
				config.LogFile = logFile
			}

			server, err := agent.NewServer(config, agent.SnapshotFunc(func() (*imc.Config, error) {
				return a.snapshot()
			}))
			if err != nil {
				return fmt.Errorf("failed to create server: %w", err)
			}

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigChan)

			errChan := make(chan error, 1)
			go func() {
				errChan <- server.Start()
			}()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Agent listening on %s with mTLS (backend %s)\n", config.Addr(), a.settings.Backend)
			fmt.Fprintln(out, "Press Ctrl+C to stop...")

			select {
			case sig := <-sigChan:
				fmt.Fprintf(out, "\nReceived signal: %v\n", sig)
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Shutdown(ctx); err != nil {
					return fmt.Errorf("shutdown error: %w", err)
				}
				fmt.Fprintln(out, "Server stopped gracefully")
				return nil

			case err := <-errChan:
				return fmt.Errorf("server error: %w", err)
			}
		},
	}

	flags.register(cmd, "Address to bind (default: all interfaces)")
	cmd.Flags().StringVar(&logFile, "log", "", "Request log file (optional)")

	return cmd
}

func agentQueryCmd(a *app) *cobra.Command {
	var (
		flags  agentFlags
		asJSON bool
		raw    bool
		health bool
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Fetch a snapshot from a remote agent",
		Long: `Connect to a remote agent and print its memory controller configuration.

Examples:
  mchconfig agent query --host bench-01 --cert client.pem --key client.key --ca ca.pem

  # Just check that the agent answers
  mchconfig agent query --host bench-01 --health`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags.apply(cmd, a)
			host := a.settings.Agent.Host
			if host == "" {
				host = "localhost"
			}

			client, err := agent.NewClient(a.settings.Agent.Client(host))
			if err != nil {
				return fmt.Errorf("failed to create client: %w", err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			out := cmd.OutOrStdout()
			if health {
				if err := client.CheckHealth(ctx); err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: healthy\n", host)
				return nil
			}

			resp, err := client.Snapshot(ctx, raw)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			fmt.Fprintf(out, "Host:        %s\n", resp.Hostname)
			fmt.Fprintf(out, "Taken:       %s\n", resp.Timestamp.Local().Format(time.RFC3339))
			printConfig(out, resp.Config, raw)
			return nil
		},
	}

	flags.register(cmd, "Agent host")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw JSON response")
	cmd.Flags().BoolVar(&raw, "raw", false, "Request the raw registers")
	cmd.Flags().BoolVar(&health, "health", false, "Only check agent health")

	return cmd
}
