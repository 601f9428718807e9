package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/mcoot/biogames-go/internal/model"
	"github.com/mcoot/biogames-go/internal/services/results"
)

// View is a snapshot of everything the front end renders for a session
type View struct {
	State          State            `json:"state"`
	Outcome        Outcome          `json:"outcome,omitempty"`
	Mode           model.Phase      `json:"mode"`
	GameID         model.GameID     `json:"game_id,omitempty"`
	Challenge      *model.Challenge `json:"challenge,omitempty"`
	Progress       string           `json:"progress,omitempty"`
	ButtonsEnabled bool             `json:"buttons_enabled"`
	DwellRemaining time.Duration    `json:"dwell_remaining"`
	Elapsed        string           `json:"elapsed,omitempty"`
	Username       string           `json:"username,omitempty"`
	ImageURL       string           `json:"image_url,omitempty"`
	Error          string           `json:"error,omitempty"`
	Hint           string           `json:"hint,omitempty"`
}

// View returns the current display state
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{
		State:    c.state,
		Outcome:  c.outcome,
		Mode:     c.opts.Mode,
		GameID:   c.gameID,
		Username: c.username,
	}

	if c.err != nil {
		v.Error = c.err.Error()
		var fatal *model.FatalSessionError
		if errors.As(c.err, &fatal) {
			v.Hint = fatal.Hint
		}
	}

	if !c.startedAt.IsZero() {
		v.Elapsed = results.HumanizeDuration(c.clock.Now().Sub(c.startedAt).Milliseconds(), false)
	}

	ch := c.challenge
	if ch == nil {
		return v
	}
	copied := *ch
	v.Challenge = &copied
	if !ch.IsComplete() {
		v.Progress = fmt.Sprintf("Patch %d of %d", ch.Position(), ch.TotalChallenges)
	}
	if ch.HasID() {
		v.DwellRemaining = c.remainingLocked()
		v.ButtonsEnabled = v.DwellRemaining == 0 && c.answerableLocked()
		v.ImageURL = c.imageURLLocked(ch)
	}
	return v
}

// imageURLLocked shows the previewed core image for the first challenge, and the challenge image otherwise
func (c *Controller) imageURLLocked(ch *model.Challenge) string {
	if c.previewMatchesLocked(ch) {
		return c.api.CoreImageURL(*c.opts.InitialCoreID)
	}
	return c.api.ChallengeImageURL(*ch.ID, c.opts.Mode)
}
