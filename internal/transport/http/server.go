package statushttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dort5bot/debot2/internal/cache"
	"github.com/dort5bot/debot2/internal/market"
)

// QueueStats exposes the live pipeline counters the status page reports.
type QueueStats interface {
	QueueDepth() int
}

type ProcessorStats interface {
	Processed() int64
	Published() int64
}

type SourceStats interface {
	Stats() market.SourceStats
}

// Server is the keep-alive endpoint: /healthz for liveness probes, /status
// for a small operational snapshot. Read-only; it never mutates core state.
type Server struct {
	addr   string
	router *gin.Engine
}

type ServerConfig struct {
	Addr      string
	Store     *cache.Store
	Queue     QueueStats
	Processor ProcessorStats
	Source    SourceStats
	CacheKeys []string
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/status", func(c *gin.Context) {
		out := gin.H{"time": time.Now().UTC().Format(time.RFC3339)}
		if cfg.Queue != nil {
			out["queue_depth"] = cfg.Queue.QueueDepth()
		}
		if cfg.Processor != nil {
			out["processed"] = cfg.Processor.Processed()
			out["published"] = cfg.Processor.Published()
		}
		if cfg.Source != nil {
			stats := cfg.Source.Stats()
			out["source"] = gin.H{
				"reconnects":       stats.Reconnects,
				"subscribe_errors": stats.SubscribeErrors,
				"last_error":       stats.LastError,
			}
		}
		if cfg.Store != nil {
			keys := gin.H{}
			for _, key := range cfg.CacheKeys {
				_, ok, err := cfg.Store.GetLatest(key)
				if err != nil {
					keys[key] = "error"
					continue
				}
				if ok {
					keys[key] = "live"
				} else {
					keys[key] = "absent"
				}
			}
			out["cache"] = keys
		}
		c.JSON(http.StatusOK, out)
	})

	return &Server{addr: cfg.Addr, router: router}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until ctx is cancelled, then shuts down with a short grace
// period.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
