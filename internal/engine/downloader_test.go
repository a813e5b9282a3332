package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"gocloud.dev/blob/memblob"

	"github.com/datallboy/rangefetch/internal/domain"
	"github.com/datallboy/rangefetch/internal/rawhttp"
)

func TestDownloadSequential(t *testing.T) {
	data := testData(150000)
	src := newMemSource(data)

	res, err := newTestDownloader(t, testConfig(1), src).Download(t.Context())
	if err != nil {
		t.Fatalf("Download: %v", err)
	}

	if !bytes.Equal(res.Data, data) {
		t.Fatal("reassembled bytes differ from source")
	}

	want, _ := Sum("sha256", data)
	if res.Digest.Hex() != want.Hex() {
		t.Errorf("digest = %s, want %s", res.Digest.Hex(), want.Hex())
	}

	fetched := src.fetched()
	if len(fetched) != 3 {
		t.Fatalf("fetched %d windows, want 3", len(fetched))
	}
	for i, w := range fetched {
		if w.Index != i {
			t.Errorf("fetch %d was window %s, want ascending order", i, w)
		}
	}
	if res.RunID == "" {
		t.Error("missing run id")
	}
}

func TestDownloadOverTCP(t *testing.T) {
	data := testData(150000)
	addr := originServer(t, data)

	for _, mode := range []rawhttp.RangeMode{rawhttp.RangeInclusive, rawhttp.RangeLegacy} {
		t.Run(mode.String(), func(t *testing.T) {
			client := rawhttp.NewClient(addr, mode, rawhttp.DefaultOptions())
			res, err := newTestDownloader(t, testConfig(1), client).Download(t.Context())
			if err != nil {
				t.Fatalf("Download: %v", err)
			}
			if !bytes.Equal(res.Data, data) {
				t.Fatal("reassembled bytes differ from source")
			}
			if res.Resource.TotalLength != 150000 {
				t.Errorf("TotalLength = %d", res.Resource.TotalLength)
			}
		})
	}
}

func TestDownloadResourceLargerThanResponseCap(t *testing.T) {
	data := testData(300000)
	addr := originServer(t, data)

	opts := rawhttp.DefaultOptions()
	opts.MaxResponseBytes = 100000

	client := rawhttp.NewClient(addr, rawhttp.RangeInclusive, opts)
	res, err := newTestDownloader(t, testConfig(2), client).Download(t.Context())
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if !bytes.Equal(res.Data, data) {
		t.Fatal("reassembled bytes differ from source")
	}
	if len(res.Windows) != 5 {
		t.Errorf("windows = %d, want 5", len(res.Windows))
	}
}

func TestDownloadIsRepeatable(t *testing.T) {
	data := testData(70000)
	dl := newTestDownloader(t, testConfig(1), newMemSource(data))

	first, err := dl.Download(t.Context())
	if err != nil {
		t.Fatalf("first Download: %v", err)
	}
	second, err := dl.Download(t.Context())
	if err != nil {
		t.Fatalf("second Download: %v", err)
	}

	if first.Digest.Hex() != second.Digest.Hex() {
		t.Errorf("digests differ: %s vs %s", first.Digest.Hex(), second.Digest.Hex())
	}
	if first.RunID == second.RunID {
		t.Error("runs share an id")
	}
}

func TestDownloadMissingContentLengthFetchesNothing(t *testing.T) {
	src := newMemSource(testData(1000))
	src.discoverErr = domain.ErrMissingContentLength

	_, err := newTestDownloader(t, testConfig(1), src).Download(t.Context())
	if !errors.Is(err, domain.ErrMissingContentLength) {
		t.Fatalf("err = %v, want ErrMissingContentLength", err)
	}
	if n := len(src.fetched()); n != 0 {
		t.Errorf("%d segment fetches after failed discovery", n)
	}
}

func TestDownloadLengthMismatchAborts(t *testing.T) {
	for _, workers := range []int{1, 3} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			data := testData(150000)
			src := newMemSource(data)
			src.failWith(2, fmt.Errorf("window 128000-150000: %w", domain.ErrLengthMismatch))
			// Keep the failing window last to finish so the others are filled
			src.delay = func(w domain.Window) time.Duration {
				if w.Index == 2 {
					return 20 * time.Millisecond
				}
				return 0
			}

			res, err := newTestDownloader(t, testConfig(workers), src).Download(t.Context())
			if !errors.Is(err, domain.ErrLengthMismatch) {
				t.Fatalf("err = %v, want ErrLengthMismatch", err)
			}
			if res != nil {
				t.Error("expected no result on failure")
			}
			if n := src.attempts(2); n != 1 {
				t.Errorf("permanent failure attempted %d times", n)
			}

			// Regions filled before the failure are intact
			src.mu.Lock()
			defer src.mu.Unlock()
			for _, idx := range []int{0, 1} {
				dst := src.dsts[idx]
				start := int64(idx) * 64000
				if !bytes.Equal(dst, data[start:start+64000]) {
					t.Errorf("window %d corrupted", idx)
				}
			}
		})
	}
}

func TestDownloadRetriesTransientErrors(t *testing.T) {
	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			data := testData(150000)
			src := newMemSource(data)
			src.failWith(1, transientErr{}, transientErr{})

			res, err := newTestDownloader(t, testConfig(workers), src).Download(t.Context())
			if err != nil {
				t.Fatalf("Download: %v", err)
			}
			if !bytes.Equal(res.Data, data) {
				t.Fatal("reassembled bytes differ from source")
			}
			if n := src.attempts(1); n != 3 {
				t.Errorf("window 1 attempted %d times, want 3", n)
			}
		})
	}
}

func TestDownloadRetriesExhausted(t *testing.T) {
	for _, workers := range []int{1, 2} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			src := newMemSource(testData(150000))
			src.failWith(0, transientErr{}, transientErr{}, transientErr{}, transientErr{})

			_, err := newTestDownloader(t, testConfig(workers), src).Download(t.Context())
			if !errors.Is(err, domain.ErrRetriesExhausted) {
				t.Fatalf("err = %v, want ErrRetriesExhausted", err)
			}
			if n := src.attempts(0); n != 3 {
				t.Errorf("window 0 attempted %d times, want 3", n)
			}
		})
	}
}

func TestDownloadWorkerPoolOutOfOrder(t *testing.T) {
	data := testData(1 << 20)
	src := newMemSource(data)
	rng := rand.New(rand.NewSource(1))
	delays := make(map[int]time.Duration)
	for i := range Partition(uint32(len(data)), 64000) {
		delays[i] = time.Duration(rng.Intn(5)) * time.Millisecond
	}
	src.delay = func(w domain.Window) time.Duration { return delays[w.Index] }

	cfg := testConfig(6)
	cfg.Digest.Mode = DigestStreaming

	res, err := newTestDownloader(t, cfg, src).Download(t.Context())
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if !bytes.Equal(res.Data, data) {
		t.Fatal("reassembled bytes differ from source")
	}

	want, _ := Sum("sha256", data)
	if res.Digest.Hex() != want.Hex() {
		t.Errorf("streaming digest = %s, want %s", res.Digest.Hex(), want.Hex())
	}
}

func TestDownloadStreamingMatchesFinal(t *testing.T) {
	data := testData(300001)

	final := testConfig(1)
	streaming := testConfig(1)
	streaming.Digest.Mode = DigestStreaming

	a, err := newTestDownloader(t, final, newMemSource(data)).Download(t.Context())
	if err != nil {
		t.Fatalf("final: %v", err)
	}
	b, err := newTestDownloader(t, streaming, newMemSource(data)).Download(t.Context())
	if err != nil {
		t.Fatalf("streaming: %v", err)
	}
	if a.Digest.Hex() != b.Digest.Hex() {
		t.Errorf("final %s != streaming %s", a.Digest.Hex(), b.Digest.Hex())
	}
}

func TestDownloadCancelled(t *testing.T) {
	src := newMemSource(testData(150000))
	src.delay = func(domain.Window) time.Duration { return time.Second }

	ctx, cancel := context.WithCancel(t.Context())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := newTestDownloader(t, testConfig(2), src).Download(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestDownloadRecordsRunAndPayload(t *testing.T) {
	data := testData(5000)
	store := newMemStore()

	var put atomic.Int32
	cache := cacheFunc(func(ctx context.Context, id string, payload []byte, d domain.Digest) error {
		put.Add(1)
		if !bytes.Equal(payload, data) {
			t.Error("cached payload differs")
		}
		return nil
	})

	dl := newTestDownloader(t, testConfig(1), newMemSource(data))
	dl.ctx.Store = store
	dl.ctx.Cache = cache

	var started domain.Resource
	dl.OnStart(func(r domain.Resource, windows []domain.Window) { started = r })

	res, err := dl.Download(t.Context())
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if got := store.status(res.RunID); got != domain.StatusCompleted {
		t.Errorf("stored status = %q", got)
	}
	if put.Load() != 1 {
		t.Errorf("payload stored %d times", put.Load())
	}
	if started.TotalLength != 5000 {
		t.Errorf("OnStart saw %+v", started)
	}

	failing := newMemSource(data)
	failing.discoverErr = domain.ErrMissingContentLength
	run := dl.NewRun()
	dl = dl.WithSource("mem", failing)
	if _, err := dl.Execute(t.Context(), run); err == nil {
		t.Fatal("expected failure")
	}
	if got := store.status(run.ID); got != domain.StatusFailed {
		t.Errorf("stored status = %q", got)
	}
}

func TestDownloadWritesBlobCache(t *testing.T) {
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	data := testData(4096)
	dl := newTestDownloader(t, testConfig(1), newMemSource(data))
	dl.ctx.Cache = cacheFunc(func(ctx context.Context, id string, payload []byte, d domain.Digest) error {
		return bucket.WriteAll(ctx, id+".bin", payload, nil)
	})

	res, err := dl.Download(t.Context())
	if err != nil {
		t.Fatalf("Download: %v", err)
	}

	got, err := bucket.ReadAll(t.Context(), res.RunID+".bin")
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("blob differs from source")
	}
}

type cacheFunc func(ctx context.Context, id string, data []byte, d domain.Digest) error

func (f cacheFunc) Put(ctx context.Context, id string, data []byte, d domain.Digest) error {
	return f(ctx, id, data, d)
}
