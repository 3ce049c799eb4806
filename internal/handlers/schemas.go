package handlers

import "gitlab.com/TitanInd/fleet-metrics/internal/resources/fleet"

type FleetMetricsResponse struct {
	Success         bool                `json:"success"`
	Message         string              `json:"message"`
	DegradedSources []string            `json:"degradedSources"`
	Data            fleet.FleetSnapshot `json:"data"`
}

type ReadinessResponse struct {
	Ready   bool                       `json:"ready"`
	Sources map[string]SourceReadiness `json:"sources"`
}

type SourceReadiness struct {
	Configured bool   `json:"configured"`
	Reachable  bool   `json:"reachable"`
	Error      string `json:"error,omitempty"`
}
