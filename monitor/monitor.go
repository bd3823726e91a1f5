package monitor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go-ml.dev/pkg/harness/config"
	"go-ml.dev/pkg/zorros/zlog"
	"golang.org/x/xerrors"
)

const (
	CPUWarningPercent    = 90
	MemoryWarningPercent = 95
)

/*
Logger is a leveled log sink, *zlog.Logger satisfies it
*/
type Logger interface {
	Infof(format string, a ...interface{})
	Warningf(format string, a ...interface{})
}

type zlogger struct{}

func (zlogger) Infof(f string, a ...interface{})    { zlog.Infof(f, a...) }
func (zlogger) Warningf(f string, a ...interface{}) { zlog.Warningf(f, a...) }

/*
Monitor logs snapshots from one background goroutine
*/
type Monitor struct {
	interval   time.Duration
	sampler    *Sampler
	log        Logger
	registerer prometheus.Registerer
	metrics    *metrics
	observer   func(Snapshot)

	running atomic.Bool
	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
}

type Option func(*Monitor)

func WithSampler(s *Sampler) Option {
	return func(m *Monitor) { m.sampler = s }
}

func WithLogger(l Logger) Option {
	return func(m *Monitor) { m.log = l }
}

/*
WithRegisterer publishes every snapshot into gauges registered on r
*/
func WithRegisterer(r prometheus.Registerer) Option {
	return func(m *Monitor) { m.registerer = r }
}

/*
WithObserver calls f with every logged snapshot
*/
func WithObserver(f func(Snapshot)) Option {
	return func(m *Monitor) { m.observer = f }
}

/*
New validates interval, it must be a positive whole number of seconds
*/
func New(interval time.Duration, opts ...Option) (*Monitor, error) {
	if interval <= 0 || interval%time.Second != 0 {
		return nil, &config.Error{
			Source: config.LogIntervalEnv,
			Err:    xerrors.Errorf("monitoring interval must be a positive integer number of seconds, got %v", interval),
		}
	}
	m := &Monitor{interval: interval, log: zlogger{}}
	for _, o := range opts {
		o(m)
	}
	if m.sampler == nil {
		m.sampler = NewSampler(m.log)
	}
	if m.registerer != nil {
		m.metrics = newMetrics(m.registerer)
	}
	m.log.Infof("System monitoring initialized")
	return m, nil
}

func (m *Monitor) Running() bool {
	return m.running.Load()
}

/*
Start launches the polling loop, it's a no-op when already running.
After a timed out Stop it waits for the previous loop to exit first
*/
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running.Load() {
		return
	}
	if m.done != nil {
		<-m.done
	}
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.running.Store(true)
	go m.loop(m.stop, m.done)
	m.log.Infof("Started system monitoring (interval: %vs)", int(m.interval/time.Second))
}

func (m *Monitor) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	timer := time.NewTimer(m.interval)
	defer timer.Stop()
	for m.running.Load() {
		m.LogOnce()
		timer.Reset(m.interval)
		select {
		case <-stop:
			return
		case <-timer.C:
		}
	}
}

/*
Stop clears the running flag and waits up to timeout for the loop to exit,
returns false if it did not exit in time
*/
func (m *Monitor) Stop(timeout time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running.Load() {
		return true
	}
	m.running.Store(false)
	close(m.stop)
	select {
	case <-m.done:
		m.log.Infof("Stopped system monitoring")
		return true
	case <-time.After(timeout):
		m.log.Warningf("System monitoring did not stop within %v", timeout)
		return false
	}
}

/*
LogOnce samples and logs synchronously
*/
func (m *Monitor) LogOnce() Snapshot {
	s := m.sampler.Sample()
	m.log.Infof("System Metrics | CPU: %.1f%% | Memory: %.1f%% | Process CPU: %.1f%% | Disk: %.1f%%",
		s.SystemCPUPercent, s.SystemMemoryPercent, s.ProcessCPUPercent, s.DiskUsagePercent)
	if s.SystemCPUPercent > CPUWarningPercent {
		m.log.Warningf("High CPU usage detected: %.1f%%", s.SystemCPUPercent)
	}
	if s.SystemMemoryPercent > MemoryWarningPercent {
		m.log.Warningf("High memory usage detected: %.1f%%", s.SystemMemoryPercent)
	}
	if m.metrics != nil {
		m.metrics.observe(s)
	}
	if m.observer != nil {
		m.observer(s)
	}
	return s
}
