package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/civicwatch/civicwatch/internal/domain/model"
)

// IncidentServiceOptions groups dependencies for IncidentService.
type IncidentServiceOptions struct {
	Client APIClient // Required: authenticated API client
}

// IncidentService reads incident reports through the API.
type IncidentService struct {
	client APIClient
}

// NewIncidentService constructs a new IncidentService.
func NewIncidentService(opts IncidentServiceOptions) (*IncidentService, error) {
	if opts.Client == nil {
		return nil, errors.New("API client is required")
	}
	return &IncidentService{client: opts.Client}, nil
}

// Get fetches an incident report by id.
func (s *IncidentService) Get(ctx context.Context, id string) (*model.Report, error) {
	path, err := resourcePath("/incidents", id)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("get incident %s: %w", id, err)
	}
	var out model.Report
	if err := resp.Decode(&out); err != nil {
		return nil, fmt.Errorf("get incident %s: %w", id, err)
	}
	if out.Notes == nil {
		out.Notes = []model.Note{}
	}
	return &out, nil
}
