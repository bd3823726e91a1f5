package monitor

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go-ml.dev/pkg/zorros/zlog"
	"go-ml.dev/pkg/zorros/zorros"
)

const namespace = "harness"

type metrics struct {
	systemCPU, systemMemory, memoryAvailable prometheus.Gauge
	processCPU, processMemory, diskUsage     prometheus.Gauge
	diskRead, diskWrite                      prometheus.Gauge
}

func newMetrics(r prometheus.Registerer) *metrics {
	f := promauto.With(r)
	gauge := func(name, help string) prometheus.Gauge {
		return f.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	}
	return &metrics{
		systemCPU:       gauge("system_cpu_percent", "Host CPU utilization since the previous sample."),
		systemMemory:    gauge("system_memory_percent", "Host memory utilization."),
		memoryAvailable: gauge("system_memory_available_bytes", "Host memory available for new allocations."),
		processCPU:      gauge("process_cpu_percent", "CPU used by this process since the previous sample."),
		processMemory:   gauge("process_resident_memory_mbytes", "Resident memory of this process in megabytes."),
		diskUsage:       gauge("disk_usage_percent", "Root filesystem utilization."),
		diskRead:        gauge("disk_read_bytes", "Bytes read from block devices since boot."),
		diskWrite:       gauge("disk_written_bytes", "Bytes written to block devices since boot."),
	}
}

func (m *metrics) observe(s Snapshot) {
	m.systemCPU.Set(s.SystemCPUPercent)
	m.systemMemory.Set(s.SystemMemoryPercent)
	m.memoryAvailable.Set(s.MemoryAvailableGB * gb)
	m.processCPU.Set(s.ProcessCPUPercent)
	m.processMemory.Set(s.ProcessMemoryMB)
	m.diskUsage.Set(s.DiskUsagePercent)
	m.diskRead.Set(float64(s.DiskReadBytes))
	m.diskWrite.Set(float64(s.DiskWriteBytes))
}

/*
Serve exposes gathered metrics on addr under /metrics until ctx is done
*/
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(sctx)
	}()
	zlog.Infof("Serving metrics on %v/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return zorros.Wrapf(err, "metrics server failed: %v", err.Error())
	}
	return nil
}
