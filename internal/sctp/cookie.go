package sctp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/binary"
	"time"
)

// cookieLength is the state cookie's wire size: a 4-byte big-endian unix
// timestamp followed by a 20-byte HMAC-SHA1 over those four bytes.
const cookieLength = 24

// cookieValidWindow bounds how old a COOKIE_ECHO's timestamp may be; the
// spec fixes this at 60 seconds and rejects anything older (or from the
// future) as stale.
const cookieValidWindow = 60 * time.Second

// cookieSigner holds the process-local key the server signs state cookies
// with, generated once at association construction so the server need not
// retain any other per-attempt state before COOKIE_ECHO arrives.
type cookieSigner struct {
	key [16]byte
}

func newCookieSigner() cookieSigner {
	var s cookieSigner
	rand.Read(s.key[:])
	return s
}

// sign produces a fresh 24-byte cookie stamped at now.
func (s cookieSigner) sign(now time.Time) []byte {
	cookie := make([]byte, cookieLength)
	binary.BigEndian.PutUint32(cookie[0:4], uint32(now.Unix()))
	mac := hmac.New(sha1.New, s.key[:])
	mac.Write(cookie[0:4])
	copy(cookie[4:24], mac.Sum(nil))
	return cookie
}

// verify checks a COOKIE_ECHO's cookie: the HMAC must match exactly and the
// embedded timestamp must fall within [now-window, now].
func (s cookieSigner) verify(cookie []byte, now time.Time) error {
	if len(cookie) != cookieLength {
		return ErrCookieMismatch
	}
	mac := hmac.New(sha1.New, s.key[:])
	mac.Write(cookie[0:4])
	want := mac.Sum(nil)
	if !hmac.Equal(want, cookie[4:24]) {
		return ErrCookieMismatch
	}

	stamped := time.Unix(int64(binary.BigEndian.Uint32(cookie[0:4])), 0)
	if stamped.After(now) || stamped.Before(now.Add(-cookieValidWindow)) {
		return ErrStaleCookie
	}
	return nil
}
