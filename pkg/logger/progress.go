package logger

import (
	"fmt"
	"sync"
	"time"
)

// Stage logs the steps of one stage of a run (loading sources, settling,
// reporting) and its outcome with the elapsed time.
type Stage struct {
	log     Logger
	name    string
	fields  Fields
	started time.Time
	steps   int
}

// StartStage begins a stage; a nil log means the global logger
func StartStage(name string, log Logger) *Stage {
	if log == nil {
		log = GetGlobalLogger()
	}
	s := &Stage{log: log, name: name, fields: Fields{}, started: time.Now()}
	s.log.WithField("stage", name).Debug("Stage started")
	return s
}

// With attaches a field to the remaining entries of the stage
func (s *Stage) With(key string, value interface{}) *Stage {
	s.fields[key] = value
	return s
}

// Step logs the start of a step
func (s *Stage) Step(step string) {
	s.steps++
	s.entry().WithFields(Fields{"step": step, "step_no": s.steps}).Info("Stage step")
}

// Done logs the successful end of the stage
func (s *Stage) Done(message string) {
	s.entry().WithFields(Fields{
		"status":   "success",
		"duration": time.Since(s.started).String(),
	}).Info(message)
}

// Fail logs the failed end of the stage
func (s *Stage) Fail(err error, message string) {
	s.entry().WithError(err).WithFields(Fields{
		"status":   "error",
		"duration": time.Since(s.started).String(),
	}).Error(message)
}

func (s *Stage) entry() Logger {
	fields := Fields{"stage": s.name}
	for k, v := range s.fields {
		fields[k] = v
	}
	return s.log.WithFields(fields)
}

// RunStage runs fn as a single-step stage and returns its error
func RunStage(name string, log Logger, fn func() error) error {
	s := StartStage(name, log)
	if err := fn(); err != nil {
		s.Fail(err, "Stage failed")
		return err
	}
	s.Done("Stage completed")
	return nil
}

// Progress reports how many items of a known total were handled, at most
// once per interval, and once more when finished.
type Progress struct {
	mu       sync.Mutex
	log      Logger
	total    int
	done     int
	interval time.Duration
	started  time.Time
	last     time.Time
}

// NewProgress starts counting total items; an interval of zero means five seconds
func NewProgress(log Logger, what string, total int, interval time.Duration) *Progress {
	if log == nil {
		log = GetGlobalLogger()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	now := time.Now()
	return &Progress{
		log:      log.WithField("progress", what),
		total:    total,
		interval: interval,
		started:  now,
		last:     now,
	}
}

// Tick marks one more item as handled
func (p *Progress) Tick(item string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done++
	now := time.Now()
	if now.Sub(p.last) < p.interval {
		return
	}
	p.last = now
	p.log.WithFields(Fields{
		"item":    item,
		"done":    p.done,
		"total":   p.total,
		"percent": p.percent(),
	}).Info("Progress")
}

// Finish logs the final count; err is the reason the work stopped early, if any
func (p *Progress) Finish(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry := p.log.WithFields(Fields{
		"done":     p.done,
		"total":    p.total,
		"duration": time.Since(p.started).String(),
	})
	if err != nil {
		entry.WithError(err).Warn("Stopped before every item was handled")
		return
	}
	entry.Info("All items handled")
}

// Done returns the number of handled items
func (p *Progress) Done() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

func (p *Progress) percent() string {
	if p.total == 0 {
		return "100.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(p.done)/float64(p.total)*100)
}
