// Command lobby is a terminal client for one live session: it binds the
// synchronizer to a session id, tails roster and notification updates, and
// prints them until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mzelenov/backstage/internal/api"
	"github.com/mzelenov/backstage/internal/auth"
	"github.com/mzelenov/backstage/internal/config"
	"github.com/mzelenov/backstage/internal/domain"
	"github.com/mzelenov/backstage/internal/notify"
	"github.com/mzelenov/backstage/internal/session"
	"github.com/mzelenov/backstage/internal/transport"
)

func main() {
	sessionID := flag.String("session", "", "session id to watch")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}
	if *sessionID == "" {
		fmt.Fprintln(os.Stderr, "usage: lobby -session <id>")
		os.Exit(2)
	}

	tokens := auth.NewStore(cfg.Token)
	client := api.NewClient(cfg.ServerURL, tokens)

	wsURL, err := transport.WSURL(cfg.ServerURL, "/api/ws")
	if err != nil {
		log.Fatal().Err(err).Msg("bad server url")
	}

	connect := func(ctx context.Context) (session.EventConn, error) {
		return transport.Dial(ctx, transport.Options{
			URL:         wsURL,
			Tokens:      tokens,
			MinDelay:    cfg.RetryMinDelay,
			MaxDelay:    cfg.RetryMaxDelay,
			MaxAttempts: cfg.RetryAttempts,
			PingPeriod:  cfg.PingPeriod,
			ReadLimit:   cfg.ReadLimit,
		})
	}

	sync := session.New(client, connect)
	if err := sync.Bind(ctx, domain.SessionID(*sessionID)); err != nil {
		log.Fatal().Err(err).Msg("bind failed")
	}
	defer sync.Close()

	// Notifications ride their own user-scoped connection, independent of
	// the session synchronizer's lifecycle.
	userConn, err := transport.Dial(ctx, transport.Options{
		URL:         wsURL,
		Tokens:      tokens,
		MinDelay:    cfg.RetryMinDelay,
		MaxDelay:    cfg.RetryMaxDelay,
		MaxAttempts: cfg.RetryAttempts,
		PingPeriod:  cfg.PingPeriod,
		ReadLimit:   cfg.ReadLimit,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("notification transport failed")
	}
	defer userConn.Close()

	// The center is process-wide; anything below ctx reaches the same
	// instance via notify.FromContext.
	center := notify.NewCenter()
	detach := center.Attach(userConn)
	defer detach()
	ctx = notify.NewContext(ctx, center)

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Println("bye")
			return
		case <-ticker.C:
			printState(ctx, sync)
		}
	}
}

func printState(ctx context.Context, sync *session.Synchronizer) {
	center := notify.FromContext(ctx)

	if msg := sync.LastError(); msg != "" {
		fmt.Printf("! %s\n", msg)
	}
	sess := sync.Snapshot()
	if sess == nil {
		fmt.Println("(waiting for session...)")
		return
	}
	fmt.Printf("%s [%s] — %d participant(s), %d unread\n",
		sess.Title, sess.Status, len(sync.Roster()), center.Unread())
	for _, p := range sync.Roster() {
		mark := " "
		if p.IsMuted {
			mark = "m"
		}
		fmt.Printf("  [%s] %-20s %s\n", mark, p.Username, p.Role)
	}
}
