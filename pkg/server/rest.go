// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	gwruntime "github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"go.uber.org/zap"

	"github.com/teradata-labs/agentdeck/internal/version"
	"github.com/teradata-labs/agentdeck/pkg/registry"
	"github.com/teradata-labs/agentdeck/pkg/runtime"
	"github.com/teradata-labs/agentdeck/pkg/transcript"
)

// registerREST mounts the JSON API on the gateway mux.
func (s *Server) registerREST(gw *gwruntime.ServeMux) {
	handle := func(method, pattern string, h gwruntime.HandlerFunc) {
		if err := gw.HandlePath(method, pattern, h); err != nil {
			s.logger.Error("failed to register route",
				zap.String("pattern", pattern),
				zap.Error(err))
		}
	}

	// Proxied runtime calls.
	handle(http.MethodGet, "/api/v1/list", s.handleList)
	handle(http.MethodGet, "/api/v1/connectivity/{network}", s.handleConnectivity)

	// Local registry.
	handle(http.MethodGet, "/api/v1/networks", s.handleNetworks)
	handle(http.MethodGet, "/api/v1/networks/{network}", s.handleTopology)
	handle(http.MethodGet, "/api/v1/networks/{network}/connectivity", s.handleLocalConnectivity)
	handle(http.MethodGet, "/api/v1/networks/{network}/definition", s.handleGetDefinition)
	handle(http.MethodPut, "/api/v1/networks/{network}/definition", s.handlePutDefinition)

	// Runtime target.
	handle(http.MethodGet, "/api/v1/config/runtime", s.handleGetRuntimeTarget)
	handle(http.MethodPut, "/api/v1/config/runtime", s.handlePutRuntimeTarget)

	// Transcripts, version.
	handle(http.MethodGet, "/api/v1/transcripts", s.handleTranscripts)
	handle(http.MethodGet, "/api/v1/version", s.handleVersion)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	result, err := s.runtime.ListNetworks(r.Context())
	if err != nil {
		writeError(w, runtime.HTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleConnectivity(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	result, err := s.runtime.Connectivity(r.Context(), pathParams["network"])
	if err != nil {
		writeError(w, runtime.HTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleNetworks(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
	networks, err := s.registry.Networks()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"networks": networks})
}

func (s *Server) handleTopology(w http.ResponseWriter, _ *http.Request, pathParams map[string]string) {
	topo, err := s.registry.Topology(pathParams["network"])
	if err != nil {
		writeError(w, registryErrStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, topo)
}

func (s *Server) handleLocalConnectivity(w http.ResponseWriter, _ *http.Request, pathParams map[string]string) {
	result, err := s.registry.Connectivity(pathParams["network"])
	if err != nil {
		writeError(w, registryErrStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetDefinition(w http.ResponseWriter, _ *http.Request, pathParams map[string]string) {
	network := pathParams["network"]
	text, err := s.registry.Definition(network)
	if err != nil {
		writeError(w, registryErrStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"name":       network,
		"definition": text,
	})
}

func (s *Server) handlePutDefinition(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	var in struct {
		Definition string `json:"definition"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if in.Definition == "" {
		writeError(w, http.StatusBadRequest, "definition required")
		return
	}

	network := pathParams["network"]
	if err := s.registry.SaveDefinition(network, in.Definition); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, registry.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": network, "status": "saved"})
}

func (s *Server) handleGetRuntimeTarget(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
	writeJSON(w, http.StatusOK, s.runtime.Target())
}

func (s *Server) handlePutRuntimeTarget(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var target runtime.Target
	if err := json.NewDecoder(r.Body).Decode(&target); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if target.Host == "" || target.Port <= 0 {
		writeError(w, http.StatusBadRequest, "host and port required")
		return
	}

	s.runtime.SetTarget(target)
	writeJSON(w, http.StatusOK, target)
}

func (s *Server) handleTranscripts(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if s.transcripts == nil {
		writeError(w, http.StatusNotFound, "transcript storage disabled")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	entries, err := s.transcripts.Recent(r.Context(), r.URL.Query().Get("network"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []transcript.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transcripts": entries})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
	writeJSON(w, http.StatusOK, map[string]string{"version": version.Get()})
}

// registryErrStatus maps registry errors to HTTP statuses.
func registryErrStatus(err error) int {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrNoFrontMan):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
