package internal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"hotshardd/core"
	"hotshardd/types"
)

type StatusAPIOptions struct {
	Bind string
}

// StatusAPI serves read-only job progress for polling UIs. Snapshots come
// straight from the sessions' lock-free counters, so polling never blocks
// the capture path.
type StatusAPI struct {
	optBind string

	mu     sync.RWMutex
	jobID  string
	coord  *core.Coordinator
	result *types.JobResult
	sizes  func() map[string]*int64
}

type jobStatusPayload struct {
	JobID         string              `json:"job_id"`
	Status        types.JobStatus     `json:"status"`
	TotalCommands int64               `json:"total_commands"`
	TotalDrops    int64               `json:"total_drops"`
	Error         string              `json:"error,omitempty"`
	Shards        []types.ShardStatus `json:"shards"`
}

func NewStatusAPI(opts StatusAPIOptions) *StatusAPI {
	return &StatusAPI{optBind: opts.Bind}
}

// SetJob attaches the running job before sessions launch.
func (a *StatusAPI) SetJob(jobID string, coord *core.Coordinator) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.jobID = jobID
	a.coord = coord
	a.result = nil
}

// SetResult publishes the final job result.
func (a *StatusAPI) SetResult(r types.JobResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.result = &r
}

// SetSizes attaches the key size cache view once sampling ran.
func (a *StatusAPI) SetSizes(sizes func() map[string]*int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sizes = sizes
}

func (a *StatusAPI) handleStatus(c echo.Context) error {
	a.mu.RLock()
	jobID, coord, result := a.jobID, a.coord, a.result
	a.mu.RUnlock()

	if result != nil {
		return c.JSON(http.StatusOK, jobStatusPayload{
			JobID:         result.JobID,
			Status:        result.Status,
			TotalCommands: result.TotalCommands,
			TotalDrops:    result.TotalDrops,
			Error:         result.Error,
			Shards:        result.Shards,
		})
	}
	if coord == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no job"})
	}

	p := jobStatusPayload{JobID: jobID, Status: types.JobRunning, Shards: coord.Statuses()}
	for _, st := range p.Shards {
		p.TotalCommands += st.Commands
		p.TotalDrops += st.Drops
	}
	return c.JSON(http.StatusOK, p)
}

func (a *StatusAPI) handleSizes(c echo.Context) error {
	a.mu.RLock()
	sizes := a.sizes
	a.mu.RUnlock()
	if sizes == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no sizes sampled"})
	}
	return c.JSON(http.StatusOK, sizes())
}

func (a *StatusAPI) Run(ctx context.Context) error {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})
	e.GET("/api/job/status", a.handleStatus)
	e.GET("/api/job/sizes", a.handleSizes)

	log.Info().Str("bind", a.optBind).Msg("status api started")
	defer log.Info().Msg("status api stopped")

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Start(a.optBind)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), time.Second*3)
	defer cancel()
	return e.Shutdown(shutCtx)
}
