package rawhttp

import (
	"bytes"
	"strings"

	"github.com/datallboy/rangefetch/internal/domain"
)

var headerTerminator = []byte("\r\n\r\n")

// Response is one framed response: the header block as text and the body as
// opaque bytes. Body aliases the raw response it was framed from.
type Response struct {
	HeaderBlock string
	Body        []byte
}

// Frame splits raw at the first blank line.
func Frame(raw []byte) (Response, error) {
	i := bytes.Index(raw, headerTerminator)
	if i < 0 {
		return Response{}, domain.ErrMissingSeparator
	}

	return Response{
		HeaderBlock: string(raw[:i]),
		Body:        raw[i+len(headerTerminator):],
	}, nil
}

// HeaderLines returns the header block split into lines, status line first.
func (r Response) HeaderLines() []string {
	return strings.Split(r.HeaderBlock, "\r\n")
}

// Header returns the trimmed value of the first line starting with "name:".
// The match is case-sensitive. When a header repeats, the first occurrence
// wins and later ones are ignored, so a response carrying two Content-Length
// lines is sized by the earlier one.
func (r Response) Header(name string) (string, bool) {
	prefix := name + ":"
	for _, line := range r.HeaderLines() {
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(line[len(prefix):]), true
		}
	}
	return "", false
}
