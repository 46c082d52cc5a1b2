// Package model holds the API resource types the client reads and writes.
package model

import (
	"strings"
	"unicode/utf8"

	apperrors "github.com/civicwatch/civicwatch/internal/errors"
)

const (
	maxAlertTitleLength   = 200
	maxAlertMessageLength = 4000
)

// AlertDraft is a public alert as edited by an officer.
// An empty ID means the alert has not been created yet.
type AlertDraft struct {
	ID      string `json:"id,omitempty"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Region  string `json:"region"`
}

// IsNew reports whether saving the draft creates a new alert.
func (a AlertDraft) IsNew() bool { return strings.TrimSpace(a.ID) == "" }

// Normalize trims whitespace from all fields.
func (a *AlertDraft) Normalize() {
	a.ID = strings.TrimSpace(a.ID)
	a.Title = strings.TrimSpace(a.Title)
	a.Message = strings.TrimSpace(a.Message)
	a.Region = strings.TrimSpace(a.Region)
}

// Validate checks the draft before it is sent.
func (a AlertDraft) Validate() error {
	switch {
	case strings.TrimSpace(a.Title) == "":
		return apperrors.ValidationField("title", "title is required")
	case utf8.RuneCountInString(a.Title) > maxAlertTitleLength:
		return apperrors.ValidationField("title", "title is too long")
	case utf8.RuneCountInString(a.Message) > maxAlertMessageLength:
		return apperrors.ValidationField("message", "message is too long")
	}
	return nil
}
