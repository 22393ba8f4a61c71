package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

// Response is a fully materialized reply; the connection is closed after it
// is written so there is no keep-alive or chunking to worry about.
type Response struct {
	Status int
	Body   []byte
}

// StatusBody is the two-field shape shared by acknowledgements and errors.
type StatusBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func Success(msg string) StatusBody {
	return StatusBody{Status: "success", Message: msg}
}

// StatusText names only the four historical codes; anything else reads "Error".
func StatusText(code int) string {
	switch code {
	case http.StatusOK:
		return "OK"
	case http.StatusUnauthorized:
		return "Unauthorized"
	case http.StatusForbidden:
		return "Forbidden"
	case http.StatusNotFound:
		return "Not Found"
	default:
		return "Error"
	}
}

// JSON encodes v without HTML escaping so only the characters JSON requires
// (backslash, quote and control characters) are escaped.
func JSON(code int, v any) (*Response, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	return &Response{Status: code, Body: bytes.TrimSuffix(buf.Bytes(), []byte("\n"))}, nil
}

// Error builds {"status":"error","message":msg}. Encoding two strings cannot
// fail, so there is no error to return.
func Error(code int, msg string) *Response {
	resp, err := JSON(code, StatusBody{Status: "error", Message: msg})
	if err != nil {
		return &Response{Status: code, Body: []byte(`{"status":"error","message":""}`)}
	}
	return resp
}

// Bytes renders status line, the fixed header set and the body.
func (r *Response) Bytes() []byte {
	var buf bytes.Buffer
	buf.Grow(128 + len(r.Body))
	buf.WriteString("HTTP/1.1 ")
	buf.WriteString(strconv.Itoa(r.Status))
	buf.WriteByte(' ')
	buf.WriteString(StatusText(r.Status))
	buf.WriteString("\r\nContent-Type: application/json\r\n")
	buf.WriteString("Content-Length: ")
	buf.WriteString(strconv.Itoa(len(r.Body)))
	buf.WriteString("\r\nAccess-Control-Allow-Origin: *\r\n\r\n")
	buf.Write(r.Body)
	return buf.Bytes()
}

func (r *Response) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(r.Bytes())
	return int64(n), err
}
