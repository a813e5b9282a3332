package rawhttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/datallboy/rangefetch/internal/domain"
)

// maxHeaderBytes bounds the header block of any response.
const maxHeaderBytes = 64 << 10

// Options controls how a Session connects and how long each I/O step may block.
type Options struct {
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// MaxResponseBytes caps a buffered response. Segment fetches lower it
	// further to fit their window. Header-only exchanges ignore it.
	MaxResponseBytes int64
}

// DefaultOptions uses 5 second deadlines and an 80 MiB response cap.
func DefaultOptions() Options {
	return Options{
		DialTimeout:      5 * time.Second,
		ReadTimeout:      5 * time.Second,
		WriteTimeout:     5 * time.Second,
		MaxResponseBytes: 80 << 20,
	}
}

// Session is one TCP connection carrying exactly one request/response pair.
type Session struct {
	endpoint string
	opts     Options
	conn     net.Conn
}

// Dial opens a fresh connection to endpoint.
func Dial(ctx context.Context, endpoint string, opts Options) (*Session, error) {
	d := net.Dialer{Timeout: opts.DialTimeout}

	conn, err := d.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, classify(KindConnect, endpoint, err)
	}

	return &Session{endpoint: endpoint, opts: opts, conn: conn}, nil
}

// Exchange writes req and reads the response until the server closes the
// stream. The session is closed when Exchange returns.
func (s *Session) Exchange(ctx context.Context, req []byte) ([]byte, error) {
	defer s.Close()

	stop := s.watch(ctx)
	defer stop()

	if err := s.send(ctx, req); err != nil {
		return nil, err
	}

	var resp bytes.Buffer
	err := s.receive(ctx, func(p []byte) error {
		resp.Write(p)
		if s.opts.MaxResponseBytes > 0 && int64(resp.Len()) > s.opts.MaxResponseBytes {
			return s.tooLarge(s.opts.MaxResponseBytes)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return resp.Bytes(), nil
}

// ExchangeHead is Exchange for callers that only need the header block. The
// body is still read until the server closes the stream, but it is discarded
// as it arrives, so its size is not limited by MaxResponseBytes.
func (s *Session) ExchangeHead(ctx context.Context, req []byte) (Response, error) {
	defer s.Close()

	stop := s.watch(ctx)
	defer stop()

	if err := s.send(ctx, req); err != nil {
		return Response{}, err
	}

	var head bytes.Buffer
	found := false
	err := s.receive(ctx, func(p []byte) error {
		if found {
			return nil
		}
		head.Write(p)
		if i := bytes.Index(head.Bytes(), headerTerminator); i >= 0 {
			head.Truncate(i + len(headerTerminator))
			found = true
			return nil
		}
		if head.Len() > maxHeaderBytes {
			return s.tooLarge(maxHeaderBytes)
		}
		return nil
	})
	if err != nil {
		return Response{}, err
	}
	if !found {
		return Response{}, domain.ErrMissingSeparator
	}

	return Frame(head.Bytes())
}

// watch unblocks pending I/O if the caller gives up.
func (s *Session) watch(ctx context.Context) (stop func() bool) {
	return context.AfterFunc(ctx, func() {
		s.conn.SetDeadline(time.Now())
	})
}

func (s *Session) send(ctx context.Context, req []byte) error {
	if s.opts.WriteTimeout > 0 {
		s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	}
	if _, err := s.conn.Write(req); err != nil {
		return s.wrap(ctx, KindWrite, err)
	}
	return nil
}

// receive hands every chunk read to sink until EOF, a read error or a sink error.
func (s *Session) receive(ctx context.Context, sink func([]byte) error) error {
	buf := make([]byte, 32*1024)
	for {
		// The deadline bounds each read, not the whole response
		if s.opts.ReadTimeout > 0 {
			s.conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
		}
		// Re-arming may have replaced the expired deadline set on cancellation
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := s.conn.Read(buf)
		if n > 0 {
			if serr := sink(buf[:n]); serr != nil {
				return serr
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return s.wrap(ctx, KindRead, err)
		}
	}
}

func (s *Session) tooLarge(limit int64) error {
	return &Error{
		Kind:     KindTooLarge,
		Endpoint: s.endpoint,
		Err:      fmt.Errorf("exceeded %d bytes", limit),
	}
}

func (s *Session) wrap(ctx context.Context, kind Kind, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return classify(kind, s.endpoint, err)
}

func (s *Session) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// RoundTrip dials endpoint, exchanges req and closes the connection.
func RoundTrip(ctx context.Context, endpoint string, req []byte, opts Options) ([]byte, error) {
	s, err := Dial(ctx, endpoint, opts)
	if err != nil {
		return nil, err
	}
	return s.Exchange(ctx, req)
}

// RoundTripHead dials endpoint, exchanges req and returns only the framed
// header block.
func RoundTripHead(ctx context.Context, endpoint string, req []byte, opts Options) (Response, error) {
	s, err := Dial(ctx, endpoint, opts)
	if err != nil {
		return Response{}, err
	}
	return s.ExchangeHead(ctx, req)
}
