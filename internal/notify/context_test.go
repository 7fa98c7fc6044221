package notify

import (
	"context"
	"testing"
)

func TestFromContextReturnsSameInstance(t *testing.T) {
	c := NewCenter()
	ctx := NewContext(context.Background(), c)

	if FromContext(ctx) != c {
		t.Fatal("nested consumer got a different instance")
	}

	// Deeper derivation still resolves to the same center.
	child, cancel := context.WithCancel(ctx)
	defer cancel()
	if FromContext(child) != c {
		t.Fatal("derived context lost the center")
	}
}

func TestFromContextPanicsOutsideScope(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("FromContext outside a scope must panic, not return defaults")
		}
	}()
	FromContext(context.Background())
}
