/*
Copyright (c) CSPTP Project

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package stats

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// PrometheusExporter periodically copies Counters into a prometheus
// registry and serves it at /metrics, the way sptp's PrometheusExporter
// scrapes its client's JSON counters into gauges.
type PrometheusExporter struct {
	registry   *prometheus.Registry
	counters   *Counters
	listenPort int
	interval   time.Duration
}

// NewPrometheusExporter returns an exporter for c, listening on
// listenPort and refreshing gauges every scrapeInterval.
func NewPrometheusExporter(c *Counters, listenPort int, scrapeInterval time.Duration) *PrometheusExporter {
	return &PrometheusExporter{
		registry:   prometheus.NewRegistry(),
		counters:   c,
		listenPort: listenPort,
		interval:   scrapeInterval,
	}
}

// Start begins the refresh loop and serves /metrics until it fails.
func (e *PrometheusExporter) Start() {
	go func() {
		for {
			e.refresh()
			time.Sleep(e.interval)
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	log.Fatal(http.ListenAndServe(fmt.Sprintf(":%d", e.listenPort), mux))
}

func (e *PrometheusExporter) refresh() {
	for name, value := range e.counters.Snapshot() {
		gauge := prometheus.NewGauge(prometheus.GaugeOpts{
			Name: flattenKey(name),
			Help: name,
		})
		if err := e.registry.Register(gauge); err != nil {
			are := &prometheus.AlreadyRegisteredError{}
			if errors.As(err, are) {
				gauge = are.ExistingCollector.(prometheus.Gauge)
			} else {
				log.Errorf("stats: registering metric %s: %v", name, err)
				continue
			}
		}
		gauge.Set(float64(value))
	}
}

func flattenKey(key string) string {
	replacer := strings.NewReplacer(" ", "_", ".", "_", "-", "_", "=", "_", "/", "_")
	return replacer.Replace(key)
}
