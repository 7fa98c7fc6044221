package auth

import "testing"

func TestStoreLoginLogout(t *testing.T) {
	s := NewStore("")
	if _, err := s.Token(); err != ErrNoToken {
		t.Fatalf("got %v, want ErrNoToken before login", err)
	}

	s.Set("tok-123")
	tok, err := s.Token()
	if err != nil || tok != "tok-123" {
		t.Fatalf("after login: %q, %v", tok, err)
	}

	s.Clear()
	if _, err := s.Token(); err != ErrNoToken {
		t.Fatalf("got %v, want ErrNoToken after logout", err)
	}
}

func TestStaticToken(t *testing.T) {
	if _, err := StaticToken("").Token(); err != ErrNoToken {
		t.Fatalf("empty static token: %v", err)
	}
	tok, err := StaticToken("abc").Token()
	if err != nil || tok != "abc" {
		t.Fatalf("static token: %q, %v", tok, err)
	}
}
