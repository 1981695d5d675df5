// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
)

// newMetricsCollector builds a prometheus.Collector whose gauges are computed
// on demand from s at scrape time, rather than on a ticker. The coordinator
// has no other long-running background task; staleness and derived values
// are always computed lazily at read time.
func newMetricsCollector(s *State) prometheus.Collector {
	runMode := prometheus.NewDesc("cluster_run_mode", "Cluster run mode as an enum: 0=stopped 1=running 2=disarmed", nil, nil)
	unsolved := prometheus.NewDesc("cluster_unsolved_combinations", "Number of combinations still unsolved under the current solver", nil, nil)
	totalRun := prometheus.NewDesc("cluster_total_programs_run", "Cumulative programs run across all workers under the current solver", nil, nil)
	activeWorkers := prometheus.NewDesc("cluster_active_workers", "Number of workers that are not disarmed and whose last checkin was within the last 5 seconds", nil, nil)

	return &funcCollector{
		descs: []*prometheus.Desc{runMode, unsolved, totalRun, activeWorkers},
		collect: func(ch chan<- prometheus.Metric) {
			snap := s.Snapshot()

			var modeValue float64
			switch snap.Status {
			case "running":
				modeValue = 1
			case "disarmed":
				modeValue = 2
			}

			ch <- prometheus.MustNewConstMetric(runMode, prometheus.GaugeValue, modeValue)
			ch <- prometheus.MustNewConstMetric(unsolved, prometheus.GaugeValue, float64(len(snap.Unsolved)))
			ch <- prometheus.MustNewConstMetric(totalRun, prometheus.CounterValue, float64(snap.ProgramsRun))

			active := 0
			for _, w := range snap.Workers {
				if w.Status == "active" {
					active++
				}
			}
			ch <- prometheus.MustNewConstMetric(activeWorkers, prometheus.GaugeValue, float64(active))
		},
	}
}

// funcCollector adapts a plain collect function to prometheus.Collector.
type funcCollector struct {
	descs   []*prometheus.Desc
	collect func(chan<- prometheus.Metric)
}

func (f *funcCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range f.descs {
		ch <- d
	}
}

func (f *funcCollector) Collect(ch chan<- prometheus.Metric) {
	f.collect(ch)
}
