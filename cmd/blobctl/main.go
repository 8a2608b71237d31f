package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"blobgw/internal/rpc"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// options holds the flags shared by every subcommand.
type options struct {
	addr    string
	usecase string
	scope   string
	key     string
	timeout time.Duration
}

func (o *options) scopeMessage() *rpc.Scope {
	return &rpc.Scope{Usecase: o.usecase, Scope: o.scope}
}

// dial connects to the gateway and returns a context bounded by the
// configured timeout.
func (o *options) dial(ctx context.Context) (*rpc.Client, context.Context, context.CancelFunc, error) {
	client, err := rpc.NewClient(o.addr)
	if err != nil {
		return nil, nil, nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	return client, ctx, cancel, nil
}

func describe(err error) error {
	if reason := rpc.Reason(err); reason != "" {
		return fmt.Errorf("%s: %w", reason, err)
	}
	return err
}

func newPutCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "put FILE|-",
		Short: "Store a file and print its storage key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			contents, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			client, ctx, cancel, err := opts.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()
			defer cancel()

			req := &rpc.PutBlobRequest{Scope: opts.scopeMessage(), Contents: contents}
			if opts.key != "" {
				req.Key = &opts.key
			}

			resp, err := client.PutBlob(ctx, req)
			if err != nil {
				return describe(err)
			}

			slog.Debug("Stored blob", "key", resp.Key, "bytes", len(contents))
			_, err = fmt.Fprintln(cmd.OutOrStdout(), resp.Key)
			return err
		},
	}
}

func newGetCmd(opts *options) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Fetch a blob and write it to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.key == "" {
				return errors.New("--key is required")
			}

			client, ctx, cancel, err := opts.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()
			defer cancel()

			resp, err := client.GetBlob(ctx, &rpc.GetBlobRequest{Scope: opts.scopeMessage(), Key: opts.key})
			if err != nil {
				return describe(err)
			}

			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(resp.Contents)
				return err
			}
			if err := os.WriteFile(out, resp.Contents, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "write contents to this file instead of stdout")
	return cmd
}

func readInput(stdin io.Reader, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(stdin)
	}
	contents, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return contents, nil
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("BLOBCTL")
	v.AutomaticEnv()

	opts := &options{}
	var verbose bool

	cmd := &cobra.Command{
		Use:           "blobctl",
		Short:         "Command line client for blobgw",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := log.InfoLevel
			if verbose {
				level = log.DebugLevel
			}
			slog.SetDefault(slog.New(log.NewWithOptions(os.Stderr, log.Options{Level: level})))

			// flags win over BLOBCTL_* variables
			opts.addr = v.GetString("addr")
			opts.usecase = v.GetString("usecase")
			opts.scope = v.GetString("scope")
			opts.key = v.GetString("key")
			opts.timeout = v.GetDuration("timeout")
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.addr, "addr", "localhost:50051", "gateway address")
	flags.StringVar(&opts.usecase, "usecase", "", "usecase of the blob scope")
	flags.StringVar(&opts.scope, "scope", "", "scope within the usecase")
	flags.StringVarP(&opts.key, "key", "k", "", "blob identifier")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "per-call timeout")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	for _, name := range []string{"addr", "usecase", "scope", "key", "timeout"} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}

	cmd.AddCommand(newPutCmd(opts), newGetCmd(opts))
	return cmd
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		slog.Error("blobctl failed", "error", err)
		os.Exit(1)
	}
}
