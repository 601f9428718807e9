// Package phase decides which study phase a user should play next.
package phase

import (
	"context"
	"fmt"

	"github.com/mcoot/biogames-go/internal/model"
)

// DefaultMinTrainingGames is the number of training games required before the post-test
const DefaultMinTrainingGames = 1

// ProgressSource reports a user's completed games per phase
type ProgressSource interface {
	CheckGameType(ctx context.Context, userID model.UserID) (*model.ProgressCounters, error)
}

// Policy holds the tunable rules of phase resolution
type Policy struct {
	MinTrainingGames int
}

// DefaultPolicy returns the policy used by Resolve
func DefaultPolicy() Policy {
	return Policy{MinTrainingGames: DefaultMinTrainingGames}
}

// Resolve applies the default policy
func Resolve(requested model.Phase, progress model.ProgressCounters, isAdmin bool) model.Phase {
	return DefaultPolicy().Resolve(requested, progress, isAdmin)
}

// Resolve returns the phase the user should actually play.
// It is total over every input and resolving its own output again yields the same phase.
func (p Policy) Resolve(requested model.Phase, progress model.ProgressCounters, isAdmin bool) model.Phase {
	if isAdmin {
		return model.PhaseTraining
	}

	pretest := max(progress.Pretest, 0)
	if pretest == 0 {
		return model.PhasePretest
	}

	switch requested {
	case model.PhaseTraining:
		return model.PhaseTraining
	default:
		// posttest and everything else route by training then post-test progress
		return p.afterPretest(progress)
	}
}

func (p Policy) afterPretest(progress model.ProgressCounters) model.Phase {
	if max(progress.Training, 0) < p.MinTrainingGames {
		return model.PhaseTraining
	}
	if max(progress.Posttest, 0) == 0 {
		return model.PhasePosttest
	}
	return model.PhaseFinished
}

// ResolveFor fetches the identity's progress and resolves with its role
func (p Policy) ResolveFor(ctx context.Context, source ProgressSource, identity *model.Identity, requested model.Phase) (model.Phase, *model.ProgressCounters, error) {
	if identity == nil || identity.UserID == "" {
		return "", nil, model.ErrNotAuthenticated
	}

	progress, err := source.CheckGameType(ctx, identity.UserID)
	if err != nil {
		return "", nil, fmt.Errorf("fetching progress: %w", err)
	}
	return p.Resolve(requested, *progress, identity.IsAdmin()), progress, nil
}
