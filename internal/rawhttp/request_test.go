package rawhttp

import (
	"testing"

	"github.com/datallboy/rangefetch/internal/domain"
)

func TestBuildRequest(t *testing.T) {
	got := string(BuildRequest("127.0.0.1:8080", nil))
	want := "GET / HTTP/1.1\r\nHost: 127.0.0.1:8080\r\nConnection: close\r\n\r\n"
	if got != want {
		t.Errorf("BuildRequest = %q, want %q", got, want)
	}

	got = string(BuildRequest("127.0.0.1:8080", &ByteRange{Start: 64000, End: 127999}))
	want = "GET / HTTP/1.1\r\nHost: 127.0.0.1:8080\r\nConnection: close\r\nRange: bytes=64000-127999\r\n\r\n"
	if got != want {
		t.Errorf("BuildRequest = %q, want %q", got, want)
	}
}

func TestRangeFor(t *testing.T) {
	w := domain.Window{Start: 64000, Length: 64000}

	if got := RangeInclusive.RangeFor(w); got != (ByteRange{Start: 64000, End: 127999}) {
		t.Errorf("inclusive = %+v", got)
	}
	if got := RangeLegacy.RangeFor(w); got != (ByteRange{Start: 64000, End: 128000}) {
		t.Errorf("legacy = %+v", got)
	}
}

func TestParseRangeMode(t *testing.T) {
	tests := []struct {
		in      string
		want    RangeMode
		wantErr bool
	}{
		{"", RangeInclusive, false},
		{"inclusive", RangeInclusive, false},
		{"legacy", RangeLegacy, false},
		{"exclusive", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseRangeMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseRangeMode(%q) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseRangeMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
