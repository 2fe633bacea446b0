package app

import (
	"context"
	"sync"

	"github.com/mselser95/arena-settle/pkg/cache"
	"github.com/mselser95/arena-settle/pkg/config"
	"github.com/mselser95/arena-settle/pkg/healthprobe"
	"github.com/mselser95/arena-settle/pkg/httpserver"
	"go.uber.org/zap"
)

// App is the main application orchestrator.
type App struct {
	cfg           *config.Config
	logger        *zap.Logger
	opts          *Options
	core          *Core
	healthChecker *healthprobe.HealthChecker
	dedup         cache.Cache
	httpServer    *httpserver.Server
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// Options holds application options.
type Options struct {
	Migrate       bool // apply schema migrations before starting (postgres only)
	DisablePoller bool // serve webhooks and admin routes without polling venues
}
