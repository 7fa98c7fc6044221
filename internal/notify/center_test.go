package notify

import (
	"fmt"
	"testing"
	"time"

	"github.com/mzelenov/backstage/internal/domain"
)

func note(id, title string) domain.Notification {
	return domain.Notification{
		ID:        domain.NotificationID(id),
		Title:     title,
		Message:   title + " body",
		CreatedAt: time.Now(),
	}
}

func TestAppendPreservesArrivalOrder(t *testing.T) {
	c := NewCenter()
	c.Append(note("n1", "first"))
	c.Append(note("n2", "second"))
	c.Append(note("n3", "third"))

	list := c.Notifications()
	if len(list) != 3 {
		t.Fatalf("len = %d", len(list))
	}
	for i, want := range []string{"n1", "n2", "n3"} {
		if string(list[i].ID) != want {
			t.Fatalf("list[%d].ID = %s, want %s", i, list[i].ID, want)
		}
	}
}

func TestDuplicateIDReplacesInPlace(t *testing.T) {
	c := NewCenter()
	c.Append(note("n1", "first"))
	c.Append(note("n2", "second"))
	c.Append(note("n1", "first, revised"))

	list := c.Notifications()
	if len(list) != 2 {
		t.Fatalf("duplicate doubled the list, len = %d", len(list))
	}
	if list[0].Title != "first, revised" {
		t.Fatalf("entry not replaced: %q", list[0].Title)
	}
	if string(list[0].ID) != "n1" || string(list[1].ID) != "n2" {
		t.Fatal("replacement changed ordering")
	}
}

func TestMarkAsReadIdempotent(t *testing.T) {
	c := NewCenter()
	c.Append(note("n1", "first"))
	c.Append(note("n2", "second"))

	c.MarkAsRead("n1")
	once := c.Notifications()
	c.MarkAsRead("n1")
	twice := c.Notifications()

	if len(once) != len(twice) {
		t.Fatal("second MarkAsRead changed list length")
	}
	for i := range once {
		if once[i] != twice[i] {
			t.Fatalf("state differs after repeat: %+v vs %+v", once[i], twice[i])
		}
	}
	if c.Unread() != 1 {
		t.Fatalf("unread = %d, want 1", c.Unread())
	}

	// Unknown id is a no-op.
	c.MarkAsRead("nope")
	if c.Unread() != 1 {
		t.Fatalf("unread = %d after no-op", c.Unread())
	}
}

func TestUnreadTracksListThroughAnySequence(t *testing.T) {
	c := NewCenter()
	check := func(stage string) {
		t.Helper()
		want := 0
		for _, n := range c.Notifications() {
			if !n.Read {
				want++
			}
		}
		if got := c.Unread(); got != want {
			t.Fatalf("%s: Unread() = %d, list says %d", stage, got, want)
		}
	}

	for i := 0; i < 5; i++ {
		c.Append(note(fmt.Sprintf("n%d", i), "event update"))
		check("append")
	}
	c.MarkAsRead("n0")
	check("read n0")
	c.MarkAsRead("n3")
	check("read n3")
	c.Append(note("n3", "revised"))
	check("replace n3")
	c.ClearAll()
	check("clear")
	if c.Unread() != 0 {
		t.Fatalf("unread after clear = %d", c.Unread())
	}
	c.Append(note("n0", "again"))
	check("append after clear")
	if len(c.Notifications()) != 1 {
		t.Fatal("clear did not reset the index")
	}
}

func TestClearAllEmptiesLocally(t *testing.T) {
	c := NewCenter()
	c.Append(note("n1", "first"))
	c.ClearAll()
	if len(c.Notifications()) != 0 {
		t.Fatal("list not empty")
	}
}

func TestReplaceResetsReadFlag(t *testing.T) {
	c := NewCenter()
	c.Append(note("n1", "first"))
	c.MarkAsRead("n1")
	if c.Unread() != 0 {
		t.Fatalf("unread = %d", c.Unread())
	}
	// The server re-pushed the same id; the fresh copy wins wholesale.
	c.Append(note("n1", "first, revised"))
	if c.Unread() != 1 {
		t.Fatalf("unread = %d after replace", c.Unread())
	}
}
