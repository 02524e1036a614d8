package main

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/desertthunder/opsync/internal/server"
	"github.com/desertthunder/opsync/internal/shared"
	"github.com/urfave/cli/v3"
)

// Serve runs the HTTP API until the command's context is cancelled.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	engine, err := r.Engine()
	if err != nil {
		return err
	}

	addr := cmd.String("addr")
	if addr == "" {
		addr = net.JoinHostPort(r.config.Server.Host, strconv.Itoa(r.config.Server.Port))
	}

	logger := shared.WithLogger(r.logger, "component", "server")
	handler := server.NewServer(engine,
		server.WithGatherer(r.metrics),
		server.WithLogger(logger),
		server.WithMiddlewares(server.LoggingMiddleware(logger)),
	)

	if err := server.Serve(ctx, addr, handler, logger); err != nil {
		return fmt.Errorf("serve %s: %w", addr, err)
	}
	return nil
}
