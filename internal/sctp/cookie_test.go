package sctp

import (
	"testing"
	"time"
)

func TestCookieSignVerifyRoundTrip(t *testing.T) {
	s := newCookieSigner()
	cookie := s.sign(fixedNow)
	if len(cookie) != cookieLength {
		t.Fatalf("cookie length = %d, want %d", len(cookie), cookieLength)
	}
	if err := s.verify(cookie, fixedNow); err != nil {
		t.Errorf("verify: %v", err)
	}
}

func TestCookieVerifyRejectsStaleTimestamp(t *testing.T) {
	s := newCookieSigner()
	cookie := s.sign(fixedNow)
	if err := s.verify(cookie, fixedNow.Add(cookieValidWindow+time.Second)); err != ErrStaleCookie {
		t.Fatalf("err = %v, want ErrStaleCookie", err)
	}
}

func TestCookieVerifyRejectsFutureTimestamp(t *testing.T) {
	s := newCookieSigner()
	cookie := s.sign(fixedNow.Add(time.Minute))
	if err := s.verify(cookie, fixedNow); err != ErrStaleCookie {
		t.Fatalf("err = %v, want ErrStaleCookie", err)
	}
}

func TestCookieVerifyRejectsTamperedHMAC(t *testing.T) {
	s := newCookieSigner()
	cookie := s.sign(fixedNow)
	cookie[cookieLength-1] ^= 0xFF
	if err := s.verify(cookie, fixedNow); err != ErrCookieMismatch {
		t.Fatalf("err = %v, want ErrCookieMismatch", err)
	}
}

func TestCookieVerifyRejectsWrongKey(t *testing.T) {
	s1 := newCookieSigner()
	s2 := newCookieSigner()
	cookie := s1.sign(fixedNow)
	if err := s2.verify(cookie, fixedNow); err != ErrCookieMismatch {
		t.Fatalf("err = %v, want ErrCookieMismatch", err)
	}
}

func TestCookieVerifyRejectsWrongLength(t *testing.T) {
	s := newCookieSigner()
	if err := s.verify([]byte("short"), fixedNow); err != ErrCookieMismatch {
		t.Fatalf("err = %v, want ErrCookieMismatch", err)
	}
}
