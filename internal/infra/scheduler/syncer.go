package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/yanqian/shim-server/internal/domain/shim"
)

// Config drives the periodic archive sync.
type Config struct {
	Enabled     bool
	Interval    time.Duration
	Lookback    time.Duration
	Timeout     time.Duration
	Concurrency int
}

// Summary reports one sync pass.
type Summary struct {
	Accounts  int
	Succeeded int
	Failed    int
}

// Syncer periodically pulls raw vendor data for every stored account so it lands in the archive.
type Syncer struct {
	scheduler *gocron.Scheduler
	service   shim.Service
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Syncer.
func New(cfg Config, service shim.Service, logger *slog.Logger) *Syncer {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 24 * time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Syncer{
		scheduler: gocron.NewScheduler(time.UTC),
		service:   service,
		cfg:       cfg,
		logger:    logger.With("component", "scheduler.syncer"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start schedules the job when enabled.
func (s *Syncer) Start() error {
	if !s.cfg.Enabled {
		s.logger.Info("archive sync disabled")
		return nil
	}
	_, err := s.scheduler.Every(s.cfg.Interval).SingletonMode().Do(func() {
		s.RunOnce(context.Background())
	})
	if err != nil {
		return err
	}
	s.scheduler.StartAsync()
	s.logger.Info("archive sync scheduled", "interval", s.cfg.Interval.String(), "lookback", s.cfg.Lookback.String())
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Syncer) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

type syncJob struct {
	shimKey  string
	username string
	dataType string
}

// RunOnce fetches the lookback window of every data type for every account.
func (s *Syncer) RunOnce(ctx context.Context) Summary {
	accounts, err := s.service.ListAccounts(ctx)
	if err != nil {
		s.logger.Error("archive sync could not list accounts", "error", err)
		return Summary{}
	}
	dataTypes := make(map[string][]string)
	for _, info := range s.service.Shims(ctx) {
		dataTypes[info.Key] = info.DataTypes
	}

	var jobs []syncJob
	for _, account := range accounts {
		for _, dt := range dataTypes[account.ShimKey] {
			jobs = append(jobs, syncJob{shimKey: account.ShimKey, username: account.Username, dataType: dt})
		}
	}

	end := s.now()
	start := end.Add(-s.cfg.Lookback)
	summary := Summary{Accounts: len(accounts)}
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, s.cfg.Concurrency)
	)
	for _, job := range jobs {
		job := job
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			jobCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
			defer cancel()
			_, err := s.service.GetData(jobCtx, shim.DataRequest{
				ShimKey:  job.shimKey,
				Username: job.username,
				DataType: job.dataType,
				Start:    start,
				End:      end,
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failed++
				s.logger.Warn("archive sync failed",
					"shim", job.shimKey,
					"username", job.username,
					"dataType", job.dataType,
					"error", err,
				)
				return
			}
			summary.Succeeded++
		}()
	}
	wg.Wait()
	s.logger.Info("archive sync completed",
		"accounts", summary.Accounts,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
	)
	return summary
}
