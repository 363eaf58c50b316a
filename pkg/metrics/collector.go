package metrics

import (
	"context"
	"time"

	"github.com/cuemby/landctl/pkg/repository"
)

// Collector periodically samples repository state into gauges. Grounded on
// the teacher's pkg/manager/metrics_collector.go ticker/collect shape,
// rewired from the in-memory manager to the Repository interface.
type Collector struct {
	repo   repository.Repository
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector over repo.
func NewCollector(repo repository.Repository) *Collector {
	return &Collector{
		repo:   repo,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics every 15 seconds.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c.collectWorkerMetrics(ctx)
	c.collectTaskMetrics(ctx)
}

func (c *Collector) collectWorkerMetrics(ctx context.Context) {
	workers, err := c.repo.FindWorkers(ctx, nil)
	if err != nil {
		return
	}
	counts := make(map[string]int)
	for _, w := range workers {
		counts[string(w.Status)]++
	}
	for status, count := range counts {
		WorkersTotal.WithLabelValues(status).Set(float64(count))
	}
}

func (c *Collector) collectTaskMetrics(ctx context.Context) {
	tasks, err := c.repo.ListDeployTasks(ctx, nil, nil, nil)
	if err != nil {
		return
	}
	counts := make(map[string]int)
	for _, t := range tasks {
		counts[string(t.Status)]++
	}
	for status, count := range counts {
		DeployTasksTotal.WithLabelValues(status).Set(float64(count))
	}
}
