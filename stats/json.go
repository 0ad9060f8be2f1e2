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
	"encoding/json"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"
)

// JSONServer serves a Counters snapshot as a JSON object over HTTP, the
// way ptp4u's monitoring endpoint serves its counters map.
type JSONServer struct {
	counters *Counters
	mux      *http.ServeMux
}

// NewJSONServer returns a server reporting c's counters.
func NewJSONServer(c *Counters) *JSONServer {
	s := &JSONServer{counters: c, mux: http.NewServeMux()}
	s.mux.HandleFunc("/counters", s.handleCounters)
	return s
}

// RegisterHandler mounts an additional handler on the same mux Start will
// serve, so callers can add diagnostic endpoints (e.g. a client listing)
// alongside the counters endpoint without running a second listener.
// Must be called before Start.
func (s *JSONServer) RegisterHandler(pattern string, handler http.HandlerFunc) {
	s.mux.HandleFunc(pattern, handler)
}

// Start runs the HTTP server until it fails, which it reports fatally
// since a monitoring endpoint that silently stopped listening would be
// worse than one that crashes loudly.
func (s *JSONServer) Start(monitoringPort int) {
	addr := fmt.Sprintf(":%d", monitoringPort)
	log.Infof("stats: starting json server on %s", addr)
	if err := http.ListenAndServe(addr, s.mux); err != nil {
		log.Fatalf("stats: json server failed: %v", err)
	}
}

func (s *JSONServer) handleCounters(w http.ResponseWriter, _ *http.Request) {
	js, err := json.Marshal(s.counters.Snapshot())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(js); err != nil {
		log.Errorf("stats: writing response: %v", err)
	}
}
