//go:build linux

package monitor

import (
	"os"
	"path/filepath"

	"github.com/prometheus/procfs"
	"github.com/prometheus/procfs/blockdevice"
	"go-ml.dev/pkg/zorros/zorros"
	"golang.org/x/sys/unix"
)

const sectorSize = 512

type procProbe struct {
	fs  procfs.FS
	bfs blockdevice.FS
	err error
}

func systemProbe() probe {
	p := &procProbe{}
	if p.fs, p.err = procfs.NewDefaultFS(); p.err == nil {
		p.bfs, p.err = blockdevice.NewDefaultFS()
	}
	return p
}

func (p *procProbe) cpu() (cpuTimes, error) {
	if p.err != nil {
		return cpuTimes{}, p.err
	}
	st, err := p.fs.Stat()
	if err != nil {
		return cpuTimes{}, err
	}
	c := st.CPUTotal
	total := c.User + c.Nice + c.System + c.Idle + c.Iowait + c.IRQ + c.SoftIRQ + c.Steal
	return cpuTimes{busy: total - c.Idle - c.Iowait, total: total}, nil
}

func (p *procProbe) memory() (memory, error) {
	if p.err != nil {
		return memory{}, p.err
	}
	mi, err := p.fs.Meminfo()
	if err != nil {
		return memory{}, err
	}
	if mi.MemTotal == nil {
		return memory{}, zorros.Errorf("meminfo has no MemTotal")
	}
	m := memory{total: *mi.MemTotal * 1024}
	switch {
	case mi.MemAvailable != nil:
		m.available = *mi.MemAvailable * 1024
	case mi.MemFree != nil:
		m.available = *mi.MemFree * 1024
		if mi.Buffers != nil {
			m.available += *mi.Buffers * 1024
		}
		if mi.Cached != nil {
			m.available += *mi.Cached * 1024
		}
	}
	if m.available > m.total {
		m.available = m.total
	}
	return m, nil
}

func (p *procProbe) process() (float64, uint64, error) {
	if p.err != nil {
		return 0, 0, p.err
	}
	self, err := p.fs.Self()
	if err != nil {
		return 0, 0, err
	}
	st, err := self.Stat()
	if err != nil {
		return 0, 0, err
	}
	return st.CPUTime(), uint64(st.ResidentMemory()), nil
}

func (p *procProbe) diskUsage(path string) (float64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	used := (st.Blocks - st.Bfree) * uint64(st.Bsize)
	avail := st.Bavail * uint64(st.Bsize)
	if used+avail == 0 {
		return 0, nil
	}
	return 100 * float64(used) / float64(used+avail), nil
}

// only whole disks are summed, partitions would count the same sectors twice
func (p *procProbe) diskIO() (read, write uint64, err error) {
	if p.err != nil {
		return 0, 0, p.err
	}
	stats, err := p.bfs.ProcDiskstats()
	if err != nil {
		return 0, 0, err
	}
	for _, d := range stats {
		if _, err := os.Stat(filepath.Join("/sys/block", d.DeviceName)); err != nil {
			continue
		}
		read += d.ReadSectors * sectorSize
		write += d.WriteSectors * sectorSize
	}
	return read, write, nil
}
