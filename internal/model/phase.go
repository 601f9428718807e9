package model

import (
	"fmt"
	"strings"
)

// Phase is the user's current stage in the study
type Phase string

const (
	PhasePretest  Phase = "pretest"  // Baseline test, must be completed first
	PhaseTraining Phase = "training" // Repeatable training games
	PhasePosttest Phase = "posttest" // Final test after training
	PhaseFinished Phase = "finished" // All study phases done
	PhaseInactive Phase = "inactive" // No phase assigned yet
)

// Phases lists every phase in study order
var Phases = []Phase{PhasePretest, PhaseTraining, PhasePosttest, PhaseFinished, PhaseInactive}

// IsTest returns true for the pre-test and post-test phases
func (p Phase) IsTest() bool {
	return p == PhasePretest || p == PhasePosttest
}

// Playable returns true if a game can be created in this phase
func (p Phase) Playable() bool {
	return p == PhasePretest || p == PhaseTraining || p == PhasePosttest
}

func (p Phase) String() string {
	return string(p)
}

// ParsePhase converts a string to a Phase
func ParsePhase(s string) (Phase, error) {
	p := Phase(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Phases {
		if p == known {
			return p, nil
		}
	}
	return "", &ValidationError{Field: "mode", Message: fmt.Sprintf("unknown phase %q", s)}
}

// ProgressCounters are the server-tracked completed game counts per phase
type ProgressCounters struct {
	Pretest  int `json:"pretest"`
	Training int `json:"training"`
	Posttest int `json:"posttest"`
}
