package domain

import (
	"context"
	"errors"
	"fmt"

	purchasingdomain "github.com/smallbiznis/pricewatch/internal/purchasing/domain"
)

type Service interface {
	Run(ctx context.Context, filter purchasingdomain.Filter, opts RunOptions) (Report, error)
	Invalidate(ctx context.Context, filter purchasingdomain.Filter) error
}

var ErrInvalidSettings = errors.New("invalid_detection_settings")

// RunError attributes a failed run to the filter that produced it.
type RunError struct {
	Fingerprint string
	Filter      purchasingdomain.Filter
	Stage       string
	Err         error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("detection run %s failed at %s: %v", e.Fingerprint, e.Stage, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }
