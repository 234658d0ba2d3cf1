package dump

import (
	"context"
	"errors"
	"fmt"
)

// Attempt tries to produce a handle from one source.
type Attempt func(ctx context.Context, id Identifier) (Handle, error)

// Tier is a named source with the candidates it will try. Candidates may be
// nil for ad hoc tiers.
type Tier struct {
	Name       string
	Remote     bool
	Candidates func(id Identifier) []string
	Attempt    Attempt
}

// ResolutionError means no tier could supply the dump.
type ResolutionError struct {
	ID  Identifier
	Err error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("no source available for dump %s: %v", e.ID, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// FirstSuccess runs the tiers in order and returns the first handle produced.
// Later tiers are never attempted. onFail, if set, sees each failure.
// When every tier fails the joined failures are returned.
func FirstSuccess(ctx context.Context, id Identifier, tiers []Tier, onFail func(Tier, error)) (Handle, error) {
	var errs []error
	for _, t := range tiers {
		if err := ctx.Err(); err != nil {
			return Handle{}, err
		}
		h, err := t.Attempt(ctx, id)
		if err == nil {
			return h, nil
		}
		if onFail != nil {
			onFail(t, err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
	}
	if len(errs) == 0 {
		return Handle{}, errors.New("no tiers configured")
	}
	return Handle{}, errors.Join(errs...)
}
