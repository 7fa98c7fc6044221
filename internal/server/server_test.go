package server_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/mzelenov/backstage/internal/api"
	"github.com/mzelenov/backstage/internal/auth"
	"github.com/mzelenov/backstage/internal/config"
	"github.com/mzelenov/backstage/internal/domain"
	"github.com/mzelenov/backstage/internal/notify"
	"github.com/mzelenov/backstage/internal/server"
	"github.com/mzelenov/backstage/internal/session"
	"github.com/mzelenov/backstage/internal/transport"
)

func startStub(t *testing.T) (*httptest.Server, *server.Store) {
	t.Helper()
	store := server.NewStore()
	hub := server.NewHub()
	cfg := &config.Config{Mode: "release"}
	router := server.SetupRouter(context.Background(), cfg, store, hub)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, store
}

func dialStub(t *testing.T, baseURL, token string) *transport.Conn {
	t.Helper()
	wsURL, err := transport.WSURL(baseURL, "/api/ws")
	if err != nil {
		t.Fatal(err)
	}
	conn, err := transport.Dial(context.Background(), transport.Options{
		URL:      wsURL,
		Tokens:   auth.StaticToken(token),
		MinDelay: 20 * time.Millisecond,
		MaxDelay: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(conn.Close)
	return conn
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout: %s", msg)
}

func TestRosterSyncsAcrossClients(t *testing.T) {
	srv, store := startStub(t)
	created, err := store.CreateSession("Launch Party", "org-1", time.Now())
	if err != nil {
		t.Fatal(err)
	}

	// Ann watches the session through a synchronizer over a real socket.
	annAPI := api.NewClient(srv.URL, auth.StaticToken("u-ann"))
	sync := session.New(annAPI, func(ctx context.Context) (session.EventConn, error) {
		return dialStub(t, srv.URL, "u-ann"), nil
	})
	t.Cleanup(sync.Close)
	if err := sync.Bind(context.Background(), created.ID); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	waitFor(t, func() bool { return sync.Snapshot() != nil }, "initial snapshot")
	waitFor(t, func() bool { return sync.Connected() }, "transport connected")

	// Bob joins over plain REST; the push event must reconcile Ann's roster.
	bobAPI := api.NewClient(srv.URL, auth.StaticToken("u-bob"))
	if err := bobAPI.JoinSession(context.Background(), created.ID); err != nil {
		t.Fatalf("JoinSession: %v", err)
	}
	waitFor(t, func() bool {
		for _, p := range sync.Roster() {
			if p.UserID == "u-bob" {
				return true
			}
		}
		return false
	}, "bob appears in ann's roster")

	// Server-side mute reaches Ann as an in-place media patch.
	if err := bobAPI.MuteParticipant(context.Background(), created.ID, "u-bob"); err != nil {
		t.Fatalf("MuteParticipant: %v", err)
	}
	waitFor(t, func() bool {
		for _, p := range sync.Roster() {
			if p.UserID == "u-bob" {
				return p.IsMuted
			}
		}
		return false
	}, "bob shows muted")

	// Ending the session propagates as a metadata update.
	if err := bobAPI.EndSession(context.Background(), created.ID); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	waitFor(t, func() bool {
		s := sync.Snapshot()
		return s != nil && s.Status == domain.StatusEnded
	}, "session shows ended")
}

func TestNotificationsReachAttachedCenter(t *testing.T) {
	srv, _ := startStub(t)

	conn := dialStub(t, srv.URL, "u-ann")
	center := notify.NewCenter()
	detach := center.Attach(conn)
	defer detach()

	waitFor(t, func() bool { return center.Connected() }, "center sees connection")

	if err := pushNotification(srv.URL, "Session starting", "Launch Party begins in 5 minutes"); err != nil {
		t.Fatalf("push notification: %v", err)
	}

	waitFor(t, func() bool { return center.Unread() == 1 }, "notification arrives")
	got := center.Notifications()
	if len(got) != 1 || got[0].Title != "Session starting" {
		t.Fatalf("notifications = %+v", got)
	}

	center.MarkAsRead(got[0].ID)
	if center.Unread() != 0 {
		t.Fatalf("unread = %d after read", center.Unread())
	}
}

// pushNotification pokes the stub's notification endpoint the way a backend
// trigger would.
func pushNotification(baseURL, title, message string) error {
	body := strings.NewReader(`{"title":` + strconv.Quote(title) + `,"message":` + strconv.Quote(message) + `}`)
	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/notifications", body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer backend")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("notification push status %d", resp.StatusCode)
	}
	return nil
}
