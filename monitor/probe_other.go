//go:build !linux

package monitor

import (
	"runtime"

	"go-ml.dev/pkg/zorros/zorros"
)

type nullProbe struct{}

func systemProbe() probe {
	return nullProbe{}
}

func unsupported() error {
	return zorros.Errorf("resource probing is not supported on %v", runtime.GOOS)
}

func (nullProbe) cpu() (cpuTimes, error) { return cpuTimes{}, unsupported() }
func (nullProbe) memory() (memory, error) { return memory{}, unsupported() }
func (nullProbe) process() (float64, uint64, error) { return 0, 0, unsupported() }
func (nullProbe) diskUsage(string) (float64, error) { return 0, unsupported() }
func (nullProbe) diskIO() (uint64, uint64, error) { return 0, 0, unsupported() }
