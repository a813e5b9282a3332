package app

import (
	"context"

	"github.com/datallboy/rangefetch/internal/domain"
	"github.com/datallboy/rangefetch/internal/infra/config"
	"github.com/datallboy/rangefetch/internal/infra/logger"
)

type Source interface {
	// Discover and Fetch each open their own connection; the engine never
	// shares one between calls.
	Discover(ctx context.Context) (domain.Resource, error)
	Fetch(ctx context.Context, w domain.Window, dst []byte) error
}

type Store interface {
	SaveRun(run *domain.Run) error
	GetRun(id string) (*domain.Run, error)
	ListRuns(limit int) ([]*domain.Run, error)
}

type PayloadCache interface {
	Put(ctx context.Context, id string, data []byte, digest domain.Digest) error
}

// Queue runs submitted downloads in the background (serve mode).
type Queue interface {
	Submit(endpoint string) (*domain.Run, error)
	Get(id string) (*domain.Run, bool)
	Active() *domain.Run
	Pending() []*domain.Run
	Cancel(id string) bool
}

// Context hold the core environment and shared resources for rangefetch.
// Store, Cache and Queue are optional and may be nil.
type Context struct {
	Config *config.Config
	Logger *logger.Logger

	Source Source
	Store  Store
	Cache  PayloadCache
	Queue  Queue
}

// NewContext initializes the base environment.
func NewContext(cfg *config.Config, log *logger.Logger) *Context {
	return &Context{
		Config: cfg,
		Logger: log,
	}
}
