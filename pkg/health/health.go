package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var Module = fx.Module("health", fx.Provide(ProvideHealth))

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
)

type Dependency struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type Health struct {
	Status  string       `json:"status"`
	Message string       `json:"message"`
	Deps    []Dependency `json:"deps,omitempty"`
}

type HealthService interface {
	Liveness(c *gin.Context)
	Readiness(c *gin.Context)
}

type pinger struct {
	name string
	ping func(ctx context.Context) error
}

type health struct {
	checks  []pinger
	timeout time.Duration
}

type HealthParams struct {
	fx.In
	DB    *gorm.DB      `optional:"true"`
	Redis *redis.Client `optional:"true"`
}

func ProvideHealth(p HealthParams) HealthService {
	h := &health{timeout: 2 * time.Second}

	if p.DB != nil {
		db := p.DB
		h.checks = append(h.checks, pinger{
			name: "database:" + db.Name(),
			ping: func(ctx context.Context) error {
				sql, err := db.DB()
				if err != nil {
					return err
				}
				return sql.PingContext(ctx)
			},
		})
	}

	if p.Redis != nil {
		rdb := p.Redis
		h.checks = append(h.checks, pinger{
			name: "redis",
			ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}

	return h
}

func (h *health) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, &Health{
		Status:  statusHealthy,
		Message: "OK",
	})
}

// Readiness pings every dependency concurrently and answers 503 when any
// of them fails.
func (h *health) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	deps := make([]Dependency, len(h.checks))
	var mu sync.Mutex
	healthy := true

	var g errgroup.Group
	for i, check := range h.checks {
		g.Go(func() error {
			dep := Dependency{Name: check.name, Status: statusHealthy, Message: "OK"}
			if err := check.ping(ctx); err != nil {
				dep.Status = statusUnhealthy
				dep.Message = err.Error()
				mu.Lock()
				healthy = false
				mu.Unlock()
			}
			deps[i] = dep
			return nil
		})
	}
	_ = g.Wait()

	out := &Health{Status: statusHealthy, Message: "OK", Deps: deps}
	code := http.StatusOK
	if !healthy {
		out.Status = statusUnhealthy
		out.Message = "one or more dependencies are unavailable"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, out)
}
