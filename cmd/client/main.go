package main

import (
	"bufio"
	"chat-relay/client"
	"chat-relay/errors"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
)

var errQuit = fmt.Errorf("quit requested")

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	config, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := client.Dial(ctx, config.ServerAddr, config.Username)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	renderer := client.NewRenderer(os.Stdout, config.Colours)
	renderer.Notice("Connected to %s as %s (/w <user> <text>, /who, /quit)", config.ServerAddr, config.Username)

	// Stdin cannot be interrupted, so it is read outside the group.
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return conn.Close()
	})
	g.Go(func() error {
		return receiveLoop(conn, renderer)
	})
	g.Go(func() error {
		return commandLoop(gctx, conn, renderer, lines)
	})

	if err = g.Wait(); err != nil && !errors.Is(err, errQuit) && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

func receiveLoop(conn *client.Client, renderer *client.Renderer) error {
	for {
		msg, err := conn.Receive()
		switch {
		case err == nil:
			renderer.Render(msg)
		case errors.Is(err, errors.ErrProtocol):
			continue
		case errors.Is(err, io.EOF):
			return fmt.Errorf("server closed the connection")
		default:
			return err
		}
	}
}

func commandLoop(ctx context.Context, conn *client.Client, renderer *client.Renderer, lines <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				_ = conn.Leave()
				return errQuit
			}
			cmd, err := client.ParseCommand(line)
			if err != nil {
				renderer.Notice("%v", err)
				continue
			}
			if cmd.Who {
				renderer.Roster()
				continue
			}
			if err = conn.Send(cmd.Message); err != nil {
				return fmt.Errorf("send failed: %w", err)
			}
			if cmd.Quit {
				return errQuit
			}
		}
	}
}
