// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package httpapi serves daxd's introspection HTTP surface: /metrics,
// /healthz and /debug/tags. This is deliberately separate from the
// binary module wire protocol (internal/wire) — the same split the
// teacher draws between its gqlgen/REST API and its own internal debug
// endpoints, routed with gorilla/mux either way, compressed and
// request-logged with gorilla/handlers the same way the teacher's
// server.go wraps its own router.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opendax/daxd/internal/stats"
	"github.com/opendax/daxd/internal/tagstore"
	"github.com/opendax/daxd/internal/types"
	"github.com/opendax/daxd/pkg/daxlog"
)

// tagDescriptor is the JSON shape /debug/tags returns per tag.
type tagDescriptor struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// NewRouter builds daxd's introspection HTTP surface bound to store,
// compressed and request-logged through daxlog the same way the teacher's
// server.go wraps its own mux.Router with gorilla/handlers.
func NewRouter(store *tagstore.Store, registry *types.Registry) http.Handler {
	r := mux.NewRouter()

	r.Handle("/metrics", promhttp.HandlerFor(stats.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/debug/tags", func(w http.ResponseWriter, req *http.Request) {
		var descriptors []tagDescriptor
		store.ForEach(func(index int, name string, typ types.ID, count int) {
			descriptors = append(descriptors, tagDescriptor{
				Index: index,
				Name:  name,
				Type:  registry.NameOf(typ),
				Count: count,
			})
		})
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(descriptors)
	}).Methods(http.MethodGet)

	r.HandleFunc("/debug/tags/{name}", func(w http.ResponseWriter, req *http.Request) {
		name := mux.Vars(req)["name"]
		index, typ, count, err := store.GetByName(name)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(tagDescriptor{
			Index: index,
			Name:  name,
			Type:  registry.NameOf(typ),
			Count: count,
		})
	}).Methods(http.MethodGet)

	r.Use(handlers.CompressHandler)
	return handlers.CustomLoggingHandler(daxlog.InfoWriter, r, func(w io.Writer, params handlers.LogFormatterParams) {
		daxlog.Finfof(w, "%s %s (Response: %d, Size: %d)", params.Request.Method, params.URL.RequestURI(), params.StatusCode, params.Size)
	})
}
