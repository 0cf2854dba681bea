package domain

import (
	"context"
	"errors"
)

type ResolveRequest struct {
	AlertKey string `json:"alert_key"`
	Reason   Reason `json:"reason"`
	Note     string `json:"note"`
}

type ListResolutionRequest struct {
	Kind AlertKind
}

type Service interface {
	Resolve(context.Context, ResolveRequest) (Resolution, error)
	Unresolve(ctx context.Context, alertKey string) error
	IsResolved(ctx context.Context, alertKey string) (bool, error)
	GetResolution(ctx context.Context, alertKey string) (*Resolution, error)
	Resolutions(ctx context.Context, alertKeys []string) (map[string]Resolution, error)
	List(context.Context, ListResolutionRequest) ([]Resolution, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidAlertKey     = errors.New("invalid_alert_key")
	ErrInvalidReason       = errors.New("invalid_reason")
	ErrNoteTooLong         = errors.New("note_too_long")
)

const MaxNoteLength = 2000
