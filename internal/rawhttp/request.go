package rawhttp

import (
	"fmt"
	"strings"
)

// ByteRange is the value of a Range header; End is inclusive on the wire.
type ByteRange struct {
	Start int64
	End   int64
}

func (r ByteRange) String() string {
	return fmt.Sprintf("bytes=%d-%d", r.Start, r.End)
}

// BuildRequest renders a GET / request for host, with a Range header when rng is set.
func BuildRequest(host string, rng *ByteRange) []byte {
	var b strings.Builder
	b.WriteString("GET / HTTP/1.1\r\n")
	fmt.Fprintf(&b, "Host: %s\r\n", host)
	b.WriteString("Connection: close\r\n")
	if rng != nil {
		fmt.Fprintf(&b, "Range: %s\r\n", rng)
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}
