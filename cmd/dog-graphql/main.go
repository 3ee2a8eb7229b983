// Command dog-graphql serves the dog GraphQL API the demo queries.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mohammed-shakir/dogquery/internal/core/server"
	"github.com/mohammed-shakir/dogquery/internal/dogapi"
	"github.com/mohammed-shakir/dogquery/internal/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	addr := flag.String("addr", envOr("DOG_API_ADDR", ":8081"), "listen address")
	breeds := flag.String("breeds", strings.Join(dogapi.DefaultBreeds, ","), "comma separated breeds to serve")
	level := flag.String("log-level", envOr("LOG_LEVEL", "info"), "log level")
	flag.Parse()

	zl := logger.Build(logger.Config{
		Level:     *level,
		Console:   strings.ToLower(os.Getenv("LOG_CONSOLE")) == "true",
		Component: "dog-graphql",
	}, os.Stdout)
	log := logger.NewSlog(&zl)

	api := dogapi.NewServer(splitBreeds(*breeds)...)
	r := server.NewRouter(log)
	r.Mount("/", api.Handler())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx, *addr, r, log); err != nil {
		log.Error("server stopped", "err", err)
		return 1
	}
	dogs, dog := api.Resolver.Calls()
	log.Info("dog api stopped", "requests", api.Requests(), "dogs_calls", dogs, "dog_calls", dog)
	return 0
}

func splitBreeds(s string) []string {
	var out []string
	for b := range strings.SplitSeq(s, ",") {
		if b = strings.ToLower(strings.TrimSpace(b)); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
