package wire

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequestLine(t *testing.T) {
	req, err := ParseRequest([]byte("GET /api/event/7?x=1 HTTP/1.1\r\nHost: localhost\r\n\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "/api/event/7?x=1", req.Target)
	assert.Equal(t, "/api/event/7", req.Path)
	assert.Equal(t, "x=1", req.RawQuery)
	assert.Equal(t, "HTTP/1.1", req.Version)
}

func TestParseRequestMissingPath(t *testing.T) {
	req, err := ParseRequest([]byte("GET\r\n\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "/", req.Path)
	assert.False(t, req.HasQuery())
}

func TestParseRequestMethodNotValidated(t *testing.T) {
	req, err := ParseRequest([]byte("BREW /api/events HTTP/1.1\r\n\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "BREW", req.Method)
	assert.Equal(t, "/api/events", req.Path)
}

func TestParseRequestEmpty(t *testing.T) {
	_, err := ParseRequest([]byte("\r\n"))
	assert.ErrorIs(t, err, ErrEmptyRequest)
}

func TestReadRequestEmptyStream(t *testing.T) {
	_, err := ReadRequest(bytes.NewReader(nil), 64)
	assert.ErrorIs(t, err, ErrEmptyRequest)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestReadRequestReadError(t *testing.T) {
	_, err := ReadRequest(failingReader{}, 64)
	assert.ErrorIs(t, err, ErrEmptyRequest)
}

func TestReadRequestTruncates(t *testing.T) {
	raw := "GET /api/events HTTP/1.1\r\nAuthorization: Bearer " + strings.Repeat("a", 200) + "\r\n\r\n"
	req, err := ReadRequest(strings.NewReader(raw), 35)
	require.NoError(t, err)
	assert.Equal(t, "/api/events", req.Path)
	// the header line was cut before the colon
	_, ok := req.Header("authorization")
	assert.False(t, ok)
}

// one Read only, even if more bytes are immediately available
func TestReadRequestSingleRead(t *testing.T) {
	r := io.MultiReader(strings.NewReader("GET /a HTTP/1.1\r\n"), strings.NewReader("Authorization: Bearer t\r\n\r\n"))
	req, err := ReadRequest(r, 1024)
	require.NoError(t, err)
	_, ok := req.BearerToken()
	assert.False(t, ok)
}

func TestHeaderCaseInsensitive(t *testing.T) {
	req, err := ParseRequest([]byte("GET / HTTP/1.1\r\nauthorization: Bearer abc.def.ghi \r\nX-User-Id: u1\r\n\r\n"))
	require.NoError(t, err)

	tok, ok := req.BearerToken()
	require.True(t, ok)
	assert.Equal(t, "abc.def.ghi", tok)

	v, ok := req.Header("x-user-id")
	require.True(t, ok)
	assert.Equal(t, "u1", v)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"bearer marker", "Authorization: Bearer tok", "tok"},
		{"lowercase marker", "AUTHORIZATION: bearer tok", "tok"},
		{"no marker", "Authorization: tok", "tok"},
		{"marker only leading", "Authorization: tokBearer x", "tokBearer x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseRequest([]byte("GET / HTTP/1.1\r\n" + tt.header + "\r\n\r\n"))
			require.NoError(t, err)
			got, ok := req.BearerToken()
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBodyNotScannedForHeaders(t *testing.T) {
	req, err := ParseRequest([]byte("POST / HTTP/1.1\r\n\r\nAuthorization: Bearer sneaky"))
	require.NoError(t, err)
	_, ok := req.BearerToken()
	assert.False(t, ok)
}

func TestParseQuery(t *testing.T) {
	got := ParseQuery("title=Party&date=2024-06-01&broken&a=b=c&title=Later&description=")
	assert.Equal(t, map[string]string{
		"title":       "Later",
		"date":        "2024-06-01",
		"description": "",
	}, got)
}

func TestParseQueryDecodes(t *testing.T) {
	got := ParseQuery("title=Summer%20Party&location=Piazza+Duomo&bad=%zz")
	assert.Equal(t, "Summer Party", got["title"])
	assert.Equal(t, "Piazza+Duomo", got["location"])
	assert.Equal(t, "%zz", got["bad"])
}

func TestParseQueryLastDuplicateWins(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789-_."
	word := func() string {
		n := 1 + rng.Intn(8)
		b := make([]byte, n)
		for i := range b {
			b[i] = alphabet[rng.Intn(len(alphabet))]
		}
		return string(b)
	}

	for i := 0; i < 200; i++ {
		want := map[string]string{}
		var pairs []string
		for j := 0; j < 1+rng.Intn(6); j++ {
			k, v := word(), word()
			pairs = append(pairs, k+"="+v)
			want[k] = v
		}
		// a duplicate appended at the end must win
		if rng.Intn(2) == 0 {
			k := strings.SplitN(pairs[0], "=", 2)[0]
			v := word()
			pairs = append(pairs, k+"="+v)
			want[k] = v
		}
		raw := strings.Join(pairs, "&")
		assert.Equal(t, want, ParseQuery(raw), fmt.Sprintf("query %q", raw))
	}
}

func TestParam(t *testing.T) {
	req, err := ParseRequest([]byte("GET /api/delete-event?uid=12 HTTP/1.1\r\n\r\n"))
	require.NoError(t, err)
	assert.True(t, req.HasQuery())
	v, ok := req.Param("uid")
	assert.True(t, ok)
	assert.Equal(t, "12", v)
	_, ok = req.Param("missing")
	assert.False(t, ok)
}
