package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Page is one keyset page of invoice lines. An empty Next means no more pages.
type Page struct {
	Records []InvoiceLine
	Next    string
}

// RecordSource serves invoice lines ordered by transaction date then id.
type RecordSource interface {
	FetchPage(ctx context.Context, filter Filter, pageSize int, after string) (Page, error)
}

// AgreementSource lists negotiated agreements still in force for an organization.
type AgreementSource interface {
	ListActiveAgreements(ctx context.Context, orgID snowflake.ID) ([]Agreement, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidFilter       = errors.New("invalid_filter")
	ErrInvalidPageSize     = errors.New("invalid_page_size")
	ErrMalformedRecord     = errors.New("malformed_record")
)
