package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/datallboy/rangefetch/internal/app"
	"github.com/datallboy/rangefetch/internal/domain"
	"github.com/datallboy/rangefetch/internal/infra/config"
	"github.com/datallboy/rangefetch/internal/infra/logger"
)

type transientErr struct{}

func (transientErr) Error() string   { return "connection reset" }
func (transientErr) Transient() bool { return true }

// memSource serves data from memory and can inject per-window failures.
type memSource struct {
	data        []byte
	discoverErr error
	delay       func(w domain.Window) time.Duration

	mu       sync.Mutex
	fetches  []domain.Window
	failures map[int][]error
	dsts     map[int][]byte
}

func newMemSource(data []byte) *memSource {
	return &memSource{
		data:     data,
		failures: make(map[int][]error),
		dsts:     make(map[int][]byte),
	}
}

func (s *memSource) failWith(index int, errs ...error) {
	s.failures[index] = append(s.failures[index], errs...)
}

func (s *memSource) Discover(ctx context.Context) (domain.Resource, error) {
	if s.discoverErr != nil {
		return domain.Resource{}, s.discoverErr
	}
	return domain.Resource{Endpoint: "mem", TotalLength: uint32(len(s.data))}, nil
}

func (s *memSource) Fetch(ctx context.Context, w domain.Window, dst []byte) error {
	if s.delay != nil {
		if err := sleep(ctx, s.delay(w)); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.fetches = append(s.fetches, w)
	var err error
	if errs := s.failures[w.Index]; len(errs) > 0 {
		err = errs[0]
		if !errors.Is(err, domain.ErrLengthMismatch) {
			s.failures[w.Index] = errs[1:]
		}
	}
	s.dsts[w.Index] = dst
	s.mu.Unlock()

	if err != nil {
		return err
	}
	if int64(len(dst)) != w.Length {
		return fmt.Errorf("dst is %d bytes for window %s", len(dst), w)
	}
	copy(dst, s.data[w.Start:w.End()])
	return nil
}

func (s *memSource) fetched() []domain.Window {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Window(nil), s.fetches...)
}

func (s *memSource) attempts(index int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, w := range s.fetches {
		if w.Index == index {
			n++
		}
	}
	return n
}

// memStore keeps the last saved status per run.
type memStore struct {
	mu   sync.Mutex
	runs map[string]domain.RunStatus
	errs map[string]string
}

func newMemStore() *memStore {
	return &memStore{runs: make(map[string]domain.RunStatus), errs: make(map[string]string)}
}

func (s *memStore) SaveRun(run *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run.Status
	s.errs[run.ID] = run.Error
	return nil
}

func (s *memStore) GetRun(id string) (*domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.runs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return &domain.Run{ID: id, Status: status, Error: s.errs[id]}, nil
}

func (s *memStore) ListRuns(limit int) ([]*domain.Run, error) {
	return nil, nil
}

func (s *memStore) status(id string) domain.RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs[id]
}

func testConfig(workers int) *config.Config {
	cfg := config.Default()
	cfg.Download.Workers = workers
	cfg.Store.Enabled = false
	cfg.Retry.InitialBackoff = time.Millisecond
	cfg.Retry.MaxBackoff = 5 * time.Millisecond
	return cfg
}

func newTestDownloader(t *testing.T, cfg *config.Config, src app.Source) *Downloader {
	t.Helper()
	appCtx := app.NewContext(cfg, logger.NewNop())
	appCtx.Source = src
	return NewDownloader(appCtx)
}

func testData(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i*13 + i/509)
	}
	return data
}

// originServer serves data with net/http's own Range handling.
func originServer(t *testing.T, data []byte) string {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "resource.bin", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(srv.Close)

	return strings.TrimPrefix(srv.URL, "http://")
}
