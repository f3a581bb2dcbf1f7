package service

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultTunerInterval = 1 * time.Hour

	// minFeedbackCount gates recalibration so a single review cannot swing
	// the threshold.
	minFeedbackCount = 5
)

var ErrFeedbackOutOfRange = errors.New("feedback score outside [0,1]")

// ThresholdTuner buffers downstream validation feedback and periodically
// folds it into the skeptic's adaptive threshold.
type ThresholdTuner struct {
	skeptic *Skeptic
	logger  *zap.Logger

	mu      sync.Mutex
	pending []float64

	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewThresholdTuner(skeptic *Skeptic, logger *zap.Logger) *ThresholdTuner {
	return &ThresholdTuner{
		skeptic:  skeptic,
		logger:   logger,
		interval: defaultTunerInterval,
		stopCh:   make(chan struct{}),
	}
}

func (s *ThresholdTuner) SetInterval(d time.Duration) {
	s.interval = d
}

// Submit queues one validation score in [0,1].
func (s *ThresholdTuner) Submit(score float64) error {
	if score < 0 || score > 1 {
		return ErrFeedbackOutOfRange
	}
	s.mu.Lock()
	s.pending = append(s.pending, score)
	s.mu.Unlock()
	return nil
}

// Pending reports how many scores are waiting.
func (s *ThresholdTuner) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// RunOnce applies the mean of the buffered feedback if enough has
// accumulated. Returns the threshold after recalibration.
func (s *ThresholdTuner) RunOnce() float64 {
	s.mu.Lock()
	if len(s.pending) < minFeedbackCount {
		s.mu.Unlock()
		return s.skeptic.Stats().CurrentThreshold
	}
	var sum float64
	for _, score := range s.pending {
		sum += score
	}
	mean := sum / float64(len(s.pending))
	count := len(s.pending)
	s.pending = s.pending[:0]
	s.mu.Unlock()

	threshold := s.skeptic.Recalibrate(mean)
	s.logger.Info("threshold recalibrated",
		zap.Int("feedback_count", count),
		zap.Float64("mean_feedback", mean),
		zap.Float64("threshold", threshold))
	return threshold
}

// Start runs the tuner on a periodic schedule in a background goroutine.
func (s *ThresholdTuner) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("threshold tuner started", zap.Duration("interval", s.interval))

		for {
			select {
			case <-ticker.C:
				s.RunOnce()
			case <-s.stopCh:
				s.logger.Info("threshold tuner stopped")
				return
			}
		}
	}()
}

func (s *ThresholdTuner) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}
