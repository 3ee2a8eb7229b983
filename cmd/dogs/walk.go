package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/dogquery/internal/app"
	"github.com/mohammed-shakir/dogquery/internal/dogapi"
)

func newWalkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "walk",
		Short: "Run a scripted tour of the demo and print each step",
		Long: `walk lists the breeds, selects two of them, returns to the first,
refetches it and finally triggers the lazy query, printing the fetch policy
in effect after every step.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			local, _ := cmd.Flags().GetBool("local")
			breeds, _ := cmd.Flags().GetStringSlice("breeds")
			if len(breeds) < 2 {
				return errors.New("walk needs two breeds")
			}
			log := newLogger(cfg, "walk")
			ctx := cmd.Context()

			if local {
				url, stop, err := serveLocalAPI()
				if err != nil {
					return err
				}
				defer stop()
				cfg.GraphQLURL = url
			}

			rt, err := app.Build(ctx, cfg, log, nil)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			return walk(ctx, cmd.OutOrStdout(), rt.App, breeds[0], breeds[1])
		},
	}
	cmd.Flags().Bool("local", true, "Serve the dog API in-process instead of calling --graphql-url")
	cmd.Flags().StringSlice("breeds", []string{"husky", "poodle"}, "The two breeds to select")
	return cmd
}

func walk(ctx context.Context, out io.Writer, a *app.App, first, second string) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tSTATUS\tFETCH\tNEXT\tSOURCE\tDETAIL")

	row := func(step string, v app.View) {
		detail := v.Image
		switch {
		case len(v.Dogs) > 0:
			names := make([]string, len(v.Dogs))
			for i, d := range v.Dogs {
				names[i] = d.Breed
			}
			detail = strings.Join(names, ",")
		case v.Error != "":
			detail = v.Error
		case len(v.Errors) > 0:
			detail = strings.Join(v.Errors, "; ")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", step, v.Status, v.FetchPolicy, v.NextPolicy, v.Source, detail)
	}

	row("dogs", a.Dogs(ctx))
	for _, b := range []string{first, second, first} {
		v, err := a.Select(ctx, b)
		if err != nil {
			return err
		}
		row("select "+b, v)
	}
	v, err := a.Refetch(ctx)
	if err != nil {
		return err
	}
	row("refetch", v)
	row("delayed", a.Delayed(ctx, ""))
	return tw.Flush()
}

// serveLocalAPI starts the dog GraphQL API on a loopback port.
func serveLocalAPI() (string, func(), error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, fmt.Errorf("listen: %w", err)
	}
	srv := &http.Server{Handler: dogapi.NewServer().Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	return "http://" + ln.Addr().String() + "/graphql", stop, nil
}
