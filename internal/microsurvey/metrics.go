package microsurvey

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	liveActorsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "microsurvey_live_actors",
		Help: "Number of survey actors currently resident in memory",
	})

	heapBytesGauge = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "microsurvey_heap_alloc_bytes",
		Help: "Process heap allocation observed from the survey orchestrator",
	}, func() float64 {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		return float64(m.HeapAlloc)
	})

	sysBytesGauge = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "microsurvey_memory_sys_bytes",
		Help: "Total memory obtained from the OS by the process",
	}, func() float64 {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		return float64(m.Sys)
	})
)
