package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aspect-build/jingui/internal/atls"
)

// newAtlsCmd creates the "atls" command group: connect (dial + verify a
// peer against a policy) and policy-check (validate a policy document
// without touching the network).
func newAtlsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "atls",
		Short: "Attested TLS: connect to and verify a TDX-hosted peer",
	}
	cmd.AddCommand(newAtlsConnectCmd())
	cmd.AddCommand(newAtlsPolicyCheckCmd())
	return cmd
}

func newAtlsConnectCmd() *cobra.Command {
	var (
		policyPath string
		timeout    time.Duration
		alpn       []string
	)

	cmd := &cobra.Command{
		Use:   "connect <host:port>",
		Short: "Dial a peer, run the aTLS handshake and attestation pipeline, print the verified report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := loadPolicyFile(policyPath)
			if err != nil {
				return err
			}
			return atlsConnect(args[0], policy, timeout, alpn)
		},
	}

	cmd.Flags().StringVar(&policyPath, "policy", "", "Path to a policy JSON document (required)")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall deadline for the connect + verify pipeline")
	cmd.Flags().StringSliceVar(&alpn, "alpn", nil, "ALPN protocols to offer during the TLS handshake")
	_ = cmd.MarkFlagRequired("policy")

	return cmd
}

func newAtlsPolicyCheckCmd() *cobra.Command {
	var policyPath string

	cmd := &cobra.Command{
		Use:   "policy-check",
		Short: "Validate a policy JSON document without touching the network",
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := loadPolicyFile(policyPath)
			if err != nil {
				return err
			}
			if _, err := policy.IntoVerifier(); err != nil {
				return fmt.Errorf("policy invalid: %w", err)
			}
			fmt.Println("policy is valid")
			return nil
		},
	}

	cmd.Flags().StringVar(&policyPath, "policy", "", "Path to a policy JSON document (required)")
	_ = cmd.MarkFlagRequired("policy")

	return cmd
}

func loadPolicyFile(path string) (atls.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return atls.Policy{}, fmt.Errorf("read policy file: %w", err)
	}
	policy, err := atls.PolicyFromJSON(data)
	if err != nil {
		return atls.Policy{}, err
	}
	return policy, nil
}

func atlsConnect(addr string, policy atls.Policy, timeout time.Duration, alpn []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	tlsConn, report, err := atls.Connect(ctx, atls.WrapConn(conn), host, policy, alpn)
	if err != nil {
		return fmt.Errorf("atls connect: %w", err)
	}
	defer tlsConn.Close()

	collected := report.Collect()
	out, err := json.MarshalIndent(collected, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
