// Package service is the application facade shared by the HTTP and RPC gateways.
package service

import (
	"github.com/xiaot623/semitae/internal/repository"
	"github.com/xiaot623/semitae/internal/workflow"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

type Service struct {
	store        repository.Store
	orchestrator *workflow.Orchestrator
}

func New(store repository.Store, orchestrator *workflow.Orchestrator) *Service {
	return &Service{
		store:        store,
		orchestrator: orchestrator,
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
