package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/civicwatch/civicwatch/internal/apiclient"
	"github.com/civicwatch/civicwatch/internal/domain/model"
	apperrors "github.com/civicwatch/civicwatch/internal/errors"
)

// AlertServiceOptions groups dependencies for AlertService.
type AlertServiceOptions struct {
	Client APIClient    // Required: authenticated API client
	Logger *slog.Logger // Optional: structured logger
}

// AlertService reads and saves public alerts through the API.
type AlertService struct {
	client APIClient
	logger *slog.Logger
}

// NewAlertService constructs a new AlertService.
func NewAlertService(opts AlertServiceOptions) (*AlertService, error) {
	if opts.Client == nil {
		return nil, errors.New("API client is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AlertService{client: opts.Client, logger: logger}, nil
}

// Get fetches an alert by id.
func (s *AlertService) Get(ctx context.Context, id string) (*model.AlertDraft, error) {
	path, err := resourcePath("/alerts", id)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("get alert %s: %w", id, err)
	}
	var out model.AlertDraft
	if err := resp.Decode(&out); err != nil {
		return nil, fmt.Errorf("get alert %s: %w", id, err)
	}
	return &out, nil
}

// Save creates the alert when it has no id and updates it otherwise.
func (s *AlertService) Save(ctx context.Context, draft model.AlertDraft) (*model.AlertDraft, error) {
	draft.Normalize()
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	var (
		resp *apiclient.Response
		err  error
	)
	if draft.IsNew() {
		resp, err = s.client.Post(ctx, "/alerts", draft)
	} else {
		path, pathErr := resourcePath("/alerts", draft.ID)
		if pathErr != nil {
			return nil, pathErr
		}
		resp, err = s.client.Put(ctx, path, draft)
	}
	if err != nil {
		return nil, fmt.Errorf("save alert: %w", err)
	}

	var out model.AlertDraft
	if err := resp.Decode(&out); err != nil {
		return nil, fmt.Errorf("save alert: %w", err)
	}
	s.logger.InfoContext(ctx, "alert saved", "alert_id", out.ID, "created", draft.IsNew())
	return &out, nil
}

// resourcePath joins a collection path and an escaped id.
func resourcePath(collection, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", apperrors.ValidationField("id", "id is required")
	}
	return collection + "/" + url.PathEscape(id), nil
}
