package scheduler

import (
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"parcelwatch/server/config"
	"parcelwatch/server/internal/collector"
)

// Scheduler manages periodic collection runs across all configured markets.
type Scheduler struct {
	collector    *collector.Collector
	logger       *logrus.Logger
	stopChan     chan struct{}
	wg           sync.WaitGroup
	dailyRunHour int
	jobMutex     sync.Mutex  // Ensures sequential job execution
	startupDone  atomic.Bool // Set once the startup run completed
}

// NewScheduler creates a new scheduler
func NewScheduler(c *collector.Collector, logger *logrus.Logger, dailyRunHour int) *Scheduler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
		logger.SetLevel(logrus.InfoLevel)
	}

	return &Scheduler{
		collector:    c,
		logger:       logger,
		stopChan:     make(chan struct{}),
		dailyRunHour: dailyRunHour,
	}
}

// Start begins the scheduled tasks
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.runScheduler()
}

func (s *Scheduler) runScheduler() {
	defer s.wg.Done()

	// Run startup jobs in a separate goroutine
	go func() {
		s.jobMutex.Lock()
		defer s.jobMutex.Unlock()
		s.logger.Info("Running startup collection jobs")
		s.runAllMarkets(true)
		s.startupDone.Store(true)
		s.logger.Info("Startup collection jobs completed")
	}()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case t := <-ticker.C:
			s.executeScheduledJobs(t)
		}
	}
}

func (s *Scheduler) executeScheduledJobs(t time.Time) {
	// Skip if we're still running startup jobs
	if !s.startupDone.Load() {
		s.logger.Debug("Skipping scheduled jobs while startup is in progress")
		return
	}

	if t.Hour() != s.dailyRunHour || t.Minute() != 0 {
		return
	}

	s.jobMutex.Lock()
	defer s.jobMutex.Unlock()

	s.logger.Info("Starting scheduled collection jobs")
	s.runAllMarkets(false)
	s.logger.Info("Completed scheduled collection jobs")
}

// runAllMarkets collects every configured market sequentially. Startup runs
// resume from where an interrupted run left off.
func (s *Scheduler) runAllMarkets(resume bool) {
	for _, market := range config.GetMarkets() {
		s.logger.WithFields(logrus.Fields{
			"market": market.Name,
			"state":  market.State,
		}).Info("Starting collection job")

		if err := s.collector.CollectMarket(market, nil, resume); err != nil {
			s.logger.WithError(err).WithField("market", market.Name).Error("Collection job failed")
		} else {
			s.logger.WithField("market", market.Name).Info("Collection job completed successfully")
		}
	}
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}
