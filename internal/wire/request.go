package wire

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// DefaultBufferSize is the historical single-read limit.
const DefaultBufferSize = 2048

var ErrEmptyRequest = errors.New("empty request")

// Request is what survives a single bounded read of the connection.
type Request struct {
	Method     string
	Target     string
	Path       string
	RawQuery   string
	Version    string
	RemoteAddr string

	headers map[string]string
	query   map[string]string
}

// ReadRequest does exactly one Read of at most size bytes. Anything past the
// buffer is dropped on the floor; there is no loop to assemble a full message.
func ReadRequest(r io.Reader, size int) (*Request, error) {
	if size <= 0 {
		size = DefaultBufferSize
	}
	buf := make([]byte, size)
	n, err := r.Read(buf)
	if n == 0 {
		if err == nil || errors.Is(err, io.EOF) {
			return nil, ErrEmptyRequest
		}
		return nil, fmt.Errorf("%w: %v", ErrEmptyRequest, err)
	}
	return ParseRequest(buf[:n])
}

// ParseRequest splits raw bytes into the request line and header lines.
// Header names are matched case-insensitively, first occurrence wins.
func ParseRequest(raw []byte) (*Request, error) {
	text := strings.ToValidUTF8(string(raw), "�")
	lines := splitLines(text)
	if len(lines) == 0 || strings.TrimSpace(text) == "" {
		return nil, ErrEmptyRequest
	}

	req := &Request{headers: map[string]string{}}
	parts := strings.Split(lines[0], " ")
	req.Method = parts[0]
	req.Target = "/"
	if len(parts) > 1 && parts[1] != "" {
		req.Target = parts[1]
	}
	if len(parts) > 2 {
		req.Version = parts[2]
	}
	req.Path, req.RawQuery, _ = strings.Cut(req.Target, "?")
	if req.Path == "" {
		req.Path = "/"
	}

	for _, line := range lines[1:] {
		if line == "" {
			// end of headers, the rest is body
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		if _, seen := req.headers[name]; !seen {
			req.headers[name] = strings.TrimSpace(value)
		}
	}
	return req, nil
}

func splitLines(s string) []string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	// a trailing newline does not start a new line
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}

// Header returns the trimmed value of the named header.
func (r *Request) Header(name string) (string, bool) {
	v, ok := r.headers[strings.ToLower(name)]
	return v, ok
}

// BearerToken returns the Authorization value with a leading "Bearer " marker
// stripped. ok is false when the header is absent.
func (r *Request) BearerToken() (token string, ok bool) {
	v, ok := r.Header("Authorization")
	if !ok {
		return "", false
	}
	const prefix = "bearer "
	if len(v) >= len(prefix) && strings.EqualFold(v[:len(prefix)], prefix) {
		v = v[len(prefix):]
	}
	return strings.TrimSpace(v), true
}

// HasQuery reports whether the target carried a '?'.
func (r *Request) HasQuery() bool {
	return strings.Contains(r.Target, "?")
}

// Param returns a single query parameter.
func (r *Request) Param(key string) (string, bool) {
	if r.query == nil {
		r.query = ParseQuery(r.RawQuery)
	}
	v, ok := r.query[key]
	return v, ok
}

// ParseQuery splits key=value pairs on '&'. Pairs that do not split into
// exactly two parts are ignored and the last duplicate wins.
func ParseQuery(raw string) map[string]string {
	out := map[string]string{}
	if raw == "" {
		return out
	}
	for _, pair := range strings.Split(raw, "&") {
		kv := strings.Split(pair, "=")
		if len(kv) != 2 {
			continue
		}
		out[unescape(kv[0])] = unescape(kv[1])
	}
	return out
}

func unescape(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	v, err := url.PathUnescape(s)
	if err != nil {
		return s
	}
	return v
}
