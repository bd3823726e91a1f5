/*
Package monitor samples host and process resource usage and logs it from a background loop
*/
package monitor

import (
	"runtime"
	"sync"
	"time"

	"golang.org/x/xerrors"
)

/*
ErrMetricsUnavailable marks a failed OS query, the snapshot keeps zero fields for it
*/
var ErrMetricsUnavailable = xerrors.New("metrics unavailable")

/*
Snapshot is an immutable record of resource readings
*/
type Snapshot struct {
	Timestamp           time.Time
	SystemCPUPercent    float64
	CPUCount            int
	SystemMemoryPercent float64
	MemoryAvailableGB   float64
	MemoryUsedGB        float64
	MemoryTotalGB       float64
	ProcessCPUPercent   float64
	ProcessMemoryMB     float64
	DiskUsagePercent    float64
	DiskReadBytes       uint64
	DiskWriteBytes      uint64
}

type cpuTimes struct {
	busy, total float64 // seconds
}

type memory struct {
	total, available uint64 // bytes
}

// probe is the OS facing part of sampler
type probe interface {
	cpu() (cpuTimes, error)
	memory() (memory, error)
	process() (cpuSeconds float64, rss uint64, err error)
	diskUsage(path string) (float64, error)
	diskIO() (read, write uint64, err error)
}

const gb = 1 << 30
const mb = 1 << 20

/*
Sampler takes snapshots, CPU percentages are computed over the time since the previous sample
*/
type Sampler struct {
	probe probe
	log   Logger

	mu       sync.Mutex
	lastCPU  cpuTimes
	lastProc float64
	lastAt   time.Time
}

/*
NewSampler returns sampler of the running host and process
*/
func NewSampler(log Logger) *Sampler {
	return newSampler(systemProbe(), log)
}

func newSampler(p probe, log Logger) *Sampler {
	if log == nil {
		log = zlogger{}
	}
	s := &Sampler{probe: p, log: log}
	// baseline for the first sample
	s.lastCPU, _ = p.cpu()
	s.lastProc, _, _ = p.process()
	s.lastAt = time.Now()
	return s
}

func (s *Sampler) unavailable(what string, err error) {
	s.log.Warningf("%v: %v: %v", ErrMetricsUnavailable, what, err)
}

/*
Sample never fails, failed queries are logged and leave zero fields
*/
func (s *Sampler) Sample() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	r := Snapshot{Timestamp: now, CPUCount: runtime.NumCPU()}

	if c, err := s.probe.cpu(); err != nil {
		s.unavailable("cpu", err)
	} else {
		if dt := c.total - s.lastCPU.total; dt > 0 {
			r.SystemCPUPercent = round2(100 * (c.busy - s.lastCPU.busy) / dt)
		}
		s.lastCPU = c
	}

	if m, err := s.probe.memory(); err != nil {
		s.unavailable("memory", err)
	} else if m.total > 0 {
		used := m.total - m.available
		r.SystemMemoryPercent = round2(100 * float64(used) / float64(m.total))
		r.MemoryAvailableGB = round2(float64(m.available) / gb)
		r.MemoryUsedGB = round2(float64(used) / gb)
		r.MemoryTotalGB = round2(float64(m.total) / gb)
	}

	if cpuSeconds, rss, err := s.probe.process(); err != nil {
		s.unavailable("process", err)
	} else {
		if wall := now.Sub(s.lastAt).Seconds(); wall > 0 {
			r.ProcessCPUPercent = round2(100 * (cpuSeconds - s.lastProc) / wall)
		}
		r.ProcessMemoryMB = round2(float64(rss) / mb)
		s.lastProc = cpuSeconds
	}
	s.lastAt = now

	if p, err := s.probe.diskUsage("/"); err != nil {
		s.unavailable("disk usage", err)
	} else {
		r.DiskUsagePercent = round2(p)
	}

	// platforms without disk counters report zero
	if rd, wr, err := s.probe.diskIO(); err == nil {
		r.DiskReadBytes, r.DiskWriteBytes = rd, wr
	}
	return r
}

func round2(x float64) float64 {
	return float64(int64(x*100+0.5)) / 100
}
