package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mscrnt/mchconfig/pkg/cert"
)

func defaultPKIDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "pki"
	}
	return filepath.Join(homeDir, ".mchconfig", "pki")
}

func certCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cert",
		Short: "Certificate management",
		Long:  "Create the certificate authority and the server and client certificates the agent uses for mTLS.",
	}

	cmd.AddCommand(certInitCmd())
	cmd.AddCommand(certIssueCmd())
	cmd.AddCommand(certVerifyCmd())

	return cmd
}

func certInitCmd() *cobra.Command {
	var (
		dir   string
		org   string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize certificate authority",
		Long: `Create a self-signed certificate authority (ca.pem, ca.key) that signs
agent and client certificates.

Examples:
  # Initialize CA in ~/.mchconfig/pki
  mchconfig cert init

  # Force overwrite existing CA
  mchconfig cert init --force`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dir == "" {
				dir = defaultPKIDir()
			}
			certPath := filepath.Join(dir, "ca.pem")
			keyPath := filepath.Join(dir, "ca.key")

			if !force {
				if _, err := os.Stat(certPath); err == nil {
					return fmt.Errorf("CA already exists at %s (use --force to overwrite)", certPath)
				}
			}
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return fmt.Errorf("failed to create CA directory: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Generating CA key...")
			ca, err := cert.NewAuthority(org, cert.DefaultCAKeyBits)
			if err != nil {
				return err
			}
			if err := ca.SaveCA(certPath, keyPath); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "CA certificate: %s\nCA key:         %s\n", certPath, keyPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "PKI directory (default: ~/.mchconfig/pki)")
	cmd.Flags().StringVar(&org, "org", "mchconfig", "Organization name in the CA subject")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing CA")

	return cmd
}

func certIssueCmd() *cobra.Command {
	var (
		dir   string
		role  string
		name  string
		hosts []string
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a server or client certificate",
		Long: `Issue a certificate signed by the CA in the PKI directory. The files are
written as <name>.pem and <name>.key next to the CA.

Examples:
  # Certificate for the agent on bench-01
  mchconfig cert issue --role server --name bench-01 --host bench-01 --host 10.0.0.12

  # Certificate for an operator querying agents
  mchconfig cert issue --role client --name operator`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := cert.ParseRole(role)
			if err != nil {
				return err
			}
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			if dir == "" {
				dir = defaultPKIDir()
			}
			if r == cert.RoleServer && len(hosts) == 0 {
				hosts = []string{name}
			}

			ca, err := cert.LoadAuthority(filepath.Join(dir, "ca.pem"), filepath.Join(dir, "ca.key"))
			if err != nil {
				return fmt.Errorf("failed to load CA (run 'mchconfig cert init' first): %w", err)
			}

			leaf, err := ca.Issue(r, name, hosts)
			if err != nil {
				return err
			}

			certPath := filepath.Join(dir, name+".pem")
			keyPath := filepath.Join(dir, name+".key")
			if err := leaf.Save(certPath, keyPath); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Issued %s certificate for %s\n  Certificate: %s\n  Key:         %s\n",
				r, name, certPath, keyPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "PKI directory (default: ~/.mchconfig/pki)")
	cmd.Flags().StringVar(&role, "role", string(cert.RoleServer), "Certificate role: server or client")
	cmd.Flags().StringVar(&name, "name", "", "Common name and file name")
	cmd.Flags().StringArrayVar(&hosts, "host", nil, "DNS name or IP for a server certificate (repeatable)")

	return cmd
}

func certVerifyCmd() *cobra.Command {
	var caPath string

	cmd := &cobra.Command{
		Use:   "verify [certificate]",
		Short: "Verify a certificate against the CA",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if caPath == "" {
				caPath = filepath.Join(defaultPKIDir(), "ca.pem")
			}

			result, err := cert.VerifyCertificateFile(args[0], caPath)
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), cert.FormatVerifyResult(result))
			if !result.Valid {
				return fmt.Errorf("certificate is not valid")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&caPath, "ca", "", "CA certificate (default: ~/.mchconfig/pki/ca.pem)")
	return cmd
}
