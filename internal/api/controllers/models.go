package controllers

import (
	"github.com/kvantos/patchbay/internal/domain"
	"github.com/kvantos/patchbay/internal/store"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// UpdateRequest is the POST /update body.
type UpdateRequest struct {
	Config domain.AppConfig `json:"config"`
}

type HistoryResponse struct {
	Runs []*store.UpdateRun `json:"runs"`
}
