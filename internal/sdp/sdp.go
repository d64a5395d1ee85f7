package sdp

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Implements (in part or in full) the following specifications:
// - RFC 4566 (https://tools.ietf.org/html/rfc4566)
// - RFC 3264 (https://tools.ietf.org/html/rfc3264)
// - https://tools.ietf.org/html/draft-ietf-mmusic-ice-sip-sdp-21

type Session struct {
	Version    int
	Origin     Origin
	Name       string
	Info       string      // Optional
	Uri        string      // Optional
	Email      string      // Optional
	Phone      string      // Optional
	Connection *Connection // Optional
	//	bandwidth []string
	Time []Time
	//	timezone string  // Optional
	//	encryptionKey string  // Optional
	Attributes []Attribute
	Media      []Media

	// Initialized on first call to GetAttr()
	attributeCache map[string]string
}

type Origin struct {
	Username       string
	SessionId      string
	SessionVersion uint64
	NetworkType    string
	AddressType    string
	Address        string
}

type Connection struct {
	NetworkType string
	AddressType string
	Address     string
}

type Time struct {
	Start *time.Time
	Stop  *time.Time // Optional
	//	repeat []string
}

type Attribute struct {
	Key   string
	Value string
}

type Media struct {
	Type   string
	Port   int
	Proto  string
	Format []string

	Info       string      // Optional
	Connection *Connection // Optional
	//	bandwidth []string
	//	encryptionKey string  // Optional
	Attributes []Attribute

	// Initialized on first call to GetAttr()
	attributeCache map[string]string
}

type writer strings.Builder

func (w *writer) Write(fragments ...string) {
	for _, s := range fragments {
		(*strings.Builder)(w).WriteString(s)
	}
}

func (w *writer) Writef(format string, args ...interface{}) {
	fmt.Fprintf((*strings.Builder)(w), format, args...)
}

func (w *writer) String() string {
	return (*strings.Builder)(w).String()
}

type sdpParseError struct {
	which string
	value string
	cause error
}

func (e *sdpParseError) Error() (msg string) {
	msg = fmt.Sprintf("SDP parser: Invalid %s description: %q", e.which, e.value)
	if e.cause != nil {
		msg += "\nCaused by: " + e.cause.Error()
	}
	return
}

func (o *Origin) String() string {
	return fmt.Sprintf("%s %s %d %s %s %s",
		o.Username, o.SessionId, o.SessionVersion, o.NetworkType, o.AddressType, o.Address)
}

func parseOrigin(s string) (o Origin, err error) {
	_, err = fmt.Sscanf(s, "%s %s %d %s %s %s",
		&o.Username, &o.SessionId, &o.SessionVersion, &o.NetworkType, &o.AddressType, &o.Address)
	if err != nil {
		err = &sdpParseError{"origin", s, err}
	}
	return
}

func (c *Connection) String() string {
	return fmt.Sprintf("%s %s %s", c.NetworkType, c.AddressType, c.Address)
}

func parseConnection(s string) (c Connection, err error) {
	_, err = fmt.Sscanf(s, "%s %s %s", &c.NetworkType, &c.AddressType, &c.Address)
	if err != nil {
		err = &sdpParseError{"connection", s, err}
	}
	return
}

func (t Time) String() string {
	return fmt.Sprintf("%d %d", toNtp(t.Start), toNtp(t.Stop))
}

func parseTime(s string) (t Time, err error) {
	var start, stop int64
	_, err = fmt.Sscanf(s, "%d %d", &start, &stop)
	t.Start = fromNtp(start)
	t.Stop = fromNtp(stop)
	if err != nil {
		err = &sdpParseError{"time", s, err}
	}
	return
}

// Difference between NTP timestamps (measure from 1900) and Unix timestamps (measured from 1970).
const ntpOffset = 2208988800

func toNtp(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.Unix() + ntpOffset
}

func fromNtp(ntp int64) *time.Time {
	if ntp == 0 {
		return nil
	}
	t := time.Unix(ntp-ntpOffset, 0)
	return &t
}

func (a Attribute) String() string {
	if a.Value == "" {
		return a.Key
	}
	return fmt.Sprintf("%s:%s", a.Key, a.Value)
}

func parseAttribute(s string) (a Attribute, err error) {
	f := strings.SplitN(s, ":", 2)
	a.Key = f[0]
	if len(f) == 2 {
		a.Value = f[1]
	} else {
		a.Value = ""
	}
	return
}

func (m *Media) GetAttr(key string) string {
	if m.attributeCache == nil {
		m.attributeCache = make(map[string]string)
		for _, a := range m.Attributes {
			m.attributeCache[a.Key] = a.Value
		}
	}
	return m.attributeCache[key]
}

// HasAttr reports whether a property attribute (one with no ":value", e.g.
// a=end-of-candidates) is present on the media section.
func (m *Media) HasAttr(key string) bool {
	for _, a := range m.Attributes {
		if a.Key == key {
			return true
		}
	}
	return false
}

// SetAttr replaces the value of the first attribute matching key, or
// appends a new one if none exists. It invalidates the attribute cache so a
// subsequent GetAttr reflects the change.
func (m *Media) SetAttr(key, value string) {
	for i := range m.Attributes {
		if m.Attributes[i].Key == key {
			m.Attributes[i].Value = value
			m.attributeCache = nil
			return
		}
	}
	m.Attributes = append(m.Attributes, Attribute{Key: key, Value: value})
	m.attributeCache = nil
}

// AddAttr appends an attribute without checking for an existing one of the
// same key, for attributes repeated per RFC (a=candidate, a=rtpmap, ...).
func (m *Media) AddAttr(key, value string) {
	m.Attributes = append(m.Attributes, Attribute{Key: key, Value: value})
	m.attributeCache = nil
}

// ICEUfrag, ICEPwd, Setup, Mid, Fingerprint, and SCTPPort read the handful
// of media-level attributes a "m=application" section carries in an
// ICE/DTLS/SCTP offer or answer (draft-ietf-mmusic-ice-sip-sdp,
// RFC 8122 §5, RFC 8841/8866). Each returns "" when the attribute is
// absent; callers that require it report their own invalid-sdp error.
func (m *Media) ICEUfrag() string  { return m.GetAttr("ice-ufrag") }
func (m *Media) ICEPwd() string    { return m.GetAttr("ice-pwd") }
func (m *Media) Setup() string     { return m.GetAttr("setup") }
func (m *Media) Mid() string       { return m.GetAttr("mid") }
func (m *Media) Fingerprint() string {
	return m.GetAttr("fingerprint")
}

// SCTPPort returns the a=sctp-port value, or 0 if absent or malformed.
func (m *Media) SCTPPort() int {
	v := m.GetAttr("sctp-port")
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// MaxMessageSize returns the a=max-message-size value, or 0 if absent or
// malformed.
func (m *Media) MaxMessageSize() int {
	v := m.GetAttr("max-message-size")
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// Candidates returns every a=candidate attribute value on this media
// section, without the "a=candidate:" prefix stripped any further than the
// generic attribute parser already does.
func (m *Media) Candidates() []string {
	var out []string
	for _, a := range m.Attributes {
		if a.Key == "candidate" {
			out = append(out, a.Value)
		}
	}
	return out
}

func (m *Media) String() string {
	var w writer
	w.Writef("m=%s %d %s %s\r\n", m.Type, m.Port, m.Proto, strings.Join(m.Format, " "))
	if m.Info != "" {
		w.Write("i=", m.Info, "\r\n")
	}
	if m.Connection != nil {
		w.Write("c=", m.Connection.String(), "\r\n")
	}
	for _, a := range m.Attributes {
		w.Write("a=", a.String(), "\r\n")
	}
	return w.String()
}

// Returns the remaining unparsed SDP text as 'rtext'.
func parseMedia(text string) (m Media, rtext string, err error) {
	line, more := nextLine(text)
	if line[0:2] != "m=" {
		return m, text, fmt.Errorf("Invalid media line: %s", line)
	}

	fields := strings.Fields(line[2:])
	if len(fields) < 3 {
		return m, text, fmt.Errorf("Invalid media line: %s", line)
	}
	m.Type = fields[0]
	m.Port, err = strconv.Atoi(fields[1])
	m.Proto = fields[2]
	m.Format = fields[3:]

	var typecode byte
	var value string
	for text = more; text != ""; text = more {
		line, more = nextLine(text)
		typecode, value, err = splitTypeValue(line)
		switch typecode {
		case 'm':
			return m, text, err
		case 'i':
			m.Info = value
		case 'c':
			var c Connection
			c, err = parseConnection(value)
			m.Connection = &c
		case 'a':
			var a Attribute
			a, err = parseAttribute(value)
			m.Attributes = append(m.Attributes, a)
		}

		if err != nil {
			err = &sdpParseError{"media", line, err}
			break
		}
	}
	return m, text, err
}

func (s *Session) GetAttr(key string) string {
	if s.attributeCache == nil {
		s.attributeCache = make(map[string]string)
		for _, a := range s.Attributes {
			s.attributeCache[a.Key] = a.Value
		}
	}
	return s.attributeCache[key]
}

// HasAttr reports whether a session-level property attribute is present
// (e.g. a=ice-lite).
func (s *Session) HasAttr(key string) bool {
	for _, a := range s.Attributes {
		if a.Key == key {
			return true
		}
	}
	return false
}

// AddAttr appends a session-level attribute and invalidates the cache.
func (s *Session) AddAttr(key, value string) {
	s.Attributes = append(s.Attributes, Attribute{Key: key, Value: value})
	s.attributeCache = nil
}

// BundleGroup returns the mid list of the first a=group:BUNDLE attribute,
// or nil if none is present.
func (s *Session) BundleGroup() []string {
	v := s.GetAttr("group")
	fields := strings.Fields(v)
	if len(fields) == 0 || fields[0] != "BUNDLE" {
		return nil
	}
	return fields[1:]
}

// ICELite reports whether the session advertises a=ice-lite.
func (s *Session) ICELite() bool {
	return s.HasAttr("ice-lite")
}

func (s *Session) String() string {
	var w writer
	w.Writef("v=%d\r\n", s.Version)
	w.Write("o=", s.Origin.String(), "\r\n")
	w.Write("s=", s.Name, "\r\n")
	if s.Info != "" {
		w.Write("i=", s.Info, "\r\n")
	}
	if s.Uri != "" {
		w.Write("u=", s.Uri, "\r\n")
	}
	if s.Email != "" {
		w.Write("e=", s.Email, "\r\n")
	}
	if s.Phone != "" {
		w.Write("p=", s.Phone, "\r\n")
	}
	if s.Connection != nil {
		w.Write("c=", s.Connection.String(), "\r\n")
	}
	for _, t := range s.Time {
		w.Write("t=", t.String(), "\r\n")
	}
	for _, a := range s.Attributes {
		w.Write("a=", a.String(), "\r\n")
	}
	for _, m := range s.Media {
		w.Write(m.String())
	}
	return w.String()
}

func ParseSession(text string) (s Session, err error) {
	var typecode byte
	var line, more, value string
	for ; text != ""; text = more {
		line, more = nextLine(text)
		typecode, value, err = splitTypeValue(line)
		switch typecode {
		case 'v':
			s.Version, err = strconv.Atoi(value)
		case 'o':
			s.Origin, err = parseOrigin(value)
		case 's':
			s.Name = value
		case 'i':
			s.Info = value
		case 'u':
			s.Uri = value
		case 'e':
			s.Email = value
		case 'p':
			s.Phone = value
		case 'c':
			var c Connection
			c, err = parseConnection(value)
			s.Connection = &c
		case 't':
			var t Time
			t, err = parseTime(value)
			s.Time = append(s.Time, t)
		case 'a':
			var a Attribute
			a, err = parseAttribute(value)
			s.Attributes = append(s.Attributes, a)
		case 'm':
			var m Media
			m, more, err = parseMedia(text)
			s.Media = append(s.Media, m)
		}

		if err != nil {
			return s, &sdpParseError{"session", line, err}
			break
		}
	}
	return
}

func nextLine(input string) (line string, remainder string) {
	n := strings.IndexByte(input, '\n')
	if n == -1 {
		line = input
	} else {
		if n > 0 && input[n-1] == '\r' {
			// Leave off the carriage return.
			line = input[:n-1]
		} else {
			line = input[:n]
		}
		remainder = input[n+1:]
	}
	return
}

func splitTypeValue(line string) (typecode byte, value string, err error) {
	if len(line) < 2 || line[1] != '=' {
		err = fmt.Errorf("Invalid SDP line: %s", line)
		return
	}
	typecode = line[0]
	value = line[2:]
	return
}
