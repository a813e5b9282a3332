package rawhttp

import (
	"bytes"
	"errors"
	"testing"

	"github.com/datallboy/rangefetch/internal/domain"
)

func TestFrame(t *testing.T) {
	raw := []byte("HTTP/1.1 200 OK\r\nContent-Length: 8\r\n\r\nab\r\n\r\ncd")

	resp, err := Frame(raw)
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if resp.HeaderBlock != "HTTP/1.1 200 OK\r\nContent-Length: 8" {
		t.Errorf("HeaderBlock = %q", resp.HeaderBlock)
	}
	// Only the first separator splits; the body may contain another one
	if !bytes.Equal(resp.Body, []byte("ab\r\n\r\ncd")) {
		t.Errorf("Body = %q", resp.Body)
	}
}

func TestFrameEmptyBody(t *testing.T) {
	resp, err := Frame([]byte("HTTP/1.1 204 No Content\r\n\r\n"))
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if len(resp.Body) != 0 {
		t.Errorf("Body = %q", resp.Body)
	}
}

func TestFrameMissingSeparator(t *testing.T) {
	tests := [][]byte{
		nil,
		[]byte("HTTP/1.1 200 OK\r\nContent-Length: 3\r\n"),
		[]byte("HTTP/1.1 200 OK\n\nabc"),
	}

	for _, raw := range tests {
		if _, err := Frame(raw); !errors.Is(err, domain.ErrMissingSeparator) {
			t.Errorf("Frame(%q) error = %v, want ErrMissingSeparator", raw, err)
		}
	}
}

func TestHeader(t *testing.T) {
	resp := Response{HeaderBlock: "HTTP/1.1 200 OK\r\ncontent-length: 1\r\nContent-Length:   42  \r\nContent-Type: text/plain"}

	v, ok := resp.Header("Content-Length")
	if !ok || v != "42" {
		t.Errorf("Header = %q, %v; want 42, true", v, ok)
	}

	if _, ok := resp.Header("Accept-Ranges"); ok {
		t.Error("Accept-Ranges should be absent")
	}

	lines := resp.HeaderLines()
	if len(lines) != 4 || lines[0] != "HTTP/1.1 200 OK" {
		t.Errorf("HeaderLines = %q", lines)
	}
}

func TestHeaderFirstOccurrenceWins(t *testing.T) {
	resp := Response{HeaderBlock: "HTTP/1.1 200 OK\r\nContent-Length: 10\r\nContent-Length: 20"}

	v, ok := resp.Header("Content-Length")
	if !ok || v != "10" {
		t.Errorf("Header = %q, %v; want 10, true", v, ok)
	}
}
