package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// resolveOutput is printed to stdout by the resolve subcommand.
type resolveOutput struct {
	Found     bool     `json:"found"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Source    string   `json:"source,omitempty"`
	Reason    string   `json:"reason,omitempty"`
	Error     string   `json:"error,omitempty"`
}

func resolveSubcommand(opts *globalOptions) *cobra.Command {
	var (
		timeout time.Duration
		strict  bool
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve the location once and print it as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver, err := newResolver(opts.config, opts.logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			res := resolver.Locate(ctx)

			out := resolveOutput{
				Found:  res.Found,
				Source: res.Source,
				Reason: string(res.Reason),
			}
			if c := res.CoordinateOrNil(); c != nil {
				out.Latitude, out.Longitude = &c.Latitude, &c.Longitude
			}
			if res.Err != nil {
				out.Error = res.Err.Error()
			}

			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(out); err != nil {
				return err
			}

			if strict && !res.Found {
				return errors.New("location unavailable: " + string(res.Reason))
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Give up after this long (0 waits forever on native platforms)")
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit with an error when no location is found")
	return cmd
}
