package engine

import (
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"

	"github.com/datallboy/rangefetch/internal/domain"
)

const (
	DigestFinal     = "final"
	DigestStreaming = "streaming"
)

// Digester fingerprints the reassembled resource. In final mode the whole
// buffer is hashed once at the end. In streaming mode windows are hashed as
// soon as every byte before them is in, so each byte is hashed exactly once
// and in resource order regardless of completion order.
type Digester struct {
	algorithm string
	streaming bool
	h         hash.Hash

	next    int64
	pending map[int64][]byte
}

func NewDigester(algorithm, mode string) (*Digester, error) {
	h, err := newHash(algorithm)
	if err != nil {
		return nil, err
	}

	d := &Digester{algorithm: algorithm, h: h}
	switch mode {
	case "", DigestFinal:
	case DigestStreaming:
		d.streaming = true
		d.pending = make(map[int64][]byte)
	default:
		return nil, fmt.Errorf("unknown digest mode %q", mode)
	}
	return d, nil
}

func newHash(algorithm string) (hash.Hash, error) {
	switch algorithm {
	case "", "sha256":
		return sha256.New(), nil
	case "sha512":
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("unsupported digest algorithm %q", algorithm)
	}
}

// Complete records that w has been filled with data. It is a no-op in final
// mode. data must not change afterwards.
func (d *Digester) Complete(w domain.Window, data []byte) {
	if !d.streaming {
		return
	}

	d.pending[w.Start] = data
	for {
		chunk, ok := d.pending[d.next]
		if !ok {
			return
		}
		delete(d.pending, d.next)
		d.h.Write(chunk)
		d.next += int64(len(chunk))
	}
}

// Finish returns the digest of buf, the complete destination buffer.
func (d *Digester) Finish(buf []byte) (domain.Digest, error) {
	if d.streaming {
		if d.next != int64(len(buf)) || len(d.pending) != 0 {
			return domain.Digest{}, fmt.Errorf("streaming digest covered %d of %d bytes", d.next, len(buf))
		}
	} else {
		d.h.Write(buf)
	}

	algo := d.algorithm
	if algo == "" {
		algo = "sha256"
	}
	return domain.Digest{Algorithm: algo, Sum: d.h.Sum(nil)}, nil
}

// Sum hashes data in one pass. Useful for checking a download against a
// known source.
func Sum(algorithm string, data []byte) (domain.Digest, error) {
	d, err := NewDigester(algorithm, DigestFinal)
	if err != nil {
		return domain.Digest{}, err
	}
	return d.Finish(data)
}
