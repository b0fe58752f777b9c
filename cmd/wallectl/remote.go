package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/scrogson/walle/pkg/rpc"
)

const remoteURLEnv = "WALLECTL_NODE_URL"

type remoteOptions struct {
	url         string
	nodeAddress string
	timeout     time.Duration
}

// dial connects to the signer node. When --node-address is set every response
// must be signed by it.
func (o *remoteOptions) dial(ctx context.Context, a *app) (*rpc.Client, error) {
	url := o.url
	if url == "" {
		url = os.Getenv(remoteURLEnv)
	}
	if url == "" {
		return nil, fmt.Errorf("node URL is required, use --url or %s", remoteURLEnv)
	}

	cfg := rpc.ClientConfig{Logger: a.logger}
	if o.nodeAddress != "" {
		if !common.IsHexAddress(o.nodeAddress) {
			return nil, fmt.Errorf("invalid node address: %s", o.nodeAddress)
		}
		cfg.NodeAddress = common.HexToAddress(o.nodeAddress)
	}
	return rpc.Dial(ctx, url, cfg)
}

// run dials, calls fn and closes the client.
func (o *remoteOptions) run(cmd *cobra.Command, a *app, fn func(ctx context.Context, client *rpc.Client) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
	defer cancel()

	client, err := o.dial(ctx, a)
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(ctx, client)
}

func newRemoteCmd(a *app) *cobra.Command {
	opts := &remoteOptions{}

	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Talk to a walle signer node",
	}
	cmd.PersistentFlags().StringVar(&opts.url, "url", "", "node WebSocket URL, e.g. ws://localhost:8000/ws (default $"+remoteURLEnv+")")
	cmd.PersistentFlags().StringVar(&opts.nodeAddress, "node-address", "", "expected signer of node responses")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall request timeout")

	pingCmd := &cobra.Command{
		Use:   "ping",
		Short: "Check that the node answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, a, func(ctx context.Context, client *rpc.Client) error {
				start := time.Now()
				res, err := client.Call(ctx, rpc.PingMethod, nil)
				if err != nil {
					return err
				}
				if err := res.Error(); err != nil {
					return err
				}
				signers, err := res.GetSigners()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s in %s\n", res.Res.Method, time.Since(start).Round(time.Millisecond))
				for _, signer := range signers {
					fmt.Fprintf(cmd.OutOrStdout(), "signed by %s\n", signer.Hex())
				}
				return nil
			})
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List wallets stored on the node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, a, func(ctx context.Context, client *rpc.Client) error {
				var resp rpc.ListWalletsResponse
				if err := client.CallInto(ctx, rpc.ListWalletsMethod, nil, &resp); err != nil {
					return err
				}

				t := table.NewWriter()
				t.SetOutputMirror(cmd.OutOrStdout())
				t.AppendHeader(table.Row{"Name", "Address", "Created"})
				t.AppendSeparator()
				for _, w := range resp.Wallets {
					t.AppendRow(table.Row{w.Name, w.Address, time.Unix(w.CreatedAt, 0).Format(time.RFC3339)})
				}
				t.Render()
				return nil
			})
		},
	}

	var hexInput bool
	signCmd := &cobra.Command{
		Use:   "sign <address> <message>",
		Short: "Sign a message with a wallet held by the node",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := a.secrets.ReadSecret("Password for " + args[0])
			if err != nil {
				return err
			}
			req := rpc.SignMessageRequest{Address: args[0], Password: password, Message: args[1]}
			if hexInput {
				req.Encoding = rpc.EncodingHex
			}

			return opts.run(cmd, a, func(ctx context.Context, client *rpc.Client) error {
				var resp rpc.SignatureResponse
				if err := client.CallInto(ctx, rpc.SignMessageMethod, req, &resp); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), resp)
			})
		},
	}
	signCmd.Flags().BoolVar(&hexInput, "hex", false, "treat the message as hex bytes")

	cmd.AddCommand(pingCmd, listCmd, signCmd)
	return cmd
}
