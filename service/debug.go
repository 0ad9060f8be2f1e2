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

package service

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/olekukonko/tablewriter"
)

// WriteClientsTable renders the current client store as a table, in the
// spirit of ptpcheck's unicast master table listing.
func (e *Engine) WriteClientsTable(w io.Writer) {
	entries := e.store.Snapshot()
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].IP.String() < entries[j].IP.String()
	})

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"address", "last sequence", "last seen"})
	for _, entry := range entries {
		table.Append([]string{
			entry.IP.String(),
			fmt.Sprintf("%d", entry.Record.SequenceID),
			time.Since(entry.Record.LastSeen).Round(time.Second).String() + " ago",
		})
	}
	table.Render()
}

// ClientsHandler is an http.HandlerFunc exposing WriteClientsTable, for
// mounting on a service's monitoring mux (csptp-service serves it at
// /clients on its monitoring port).
func (e *Engine) ClientsHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	e.WriteClientsTable(w)
}
