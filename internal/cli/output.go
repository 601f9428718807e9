package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/mcoot/biogames-go/internal/model"
	"github.com/mcoot/biogames-go/internal/services/enrollment"
	"github.com/mcoot/biogames-go/internal/services/results"
	"github.com/mcoot/biogames-go/internal/services/session"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
	errW   io.Writer
}

// NewOutput creates a new Output formatter
func NewOutput(format string, w, errW io.Writer) *Output {
	return &Output{format: format, w: w, errW: errW}
}

// JSON reports whether output is machine readable
func (o *Output) JSON() bool {
	return o.format == "json"
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.JSON() {
		o.printJSON(o.w, data)
	} else {
		o.printText(data)
	}
}

// PrintError outputs an error
func (o *Output) PrintError(err error) {
	if o.JSON() {
		errData := map[string]any{"message": err.Error()}
		var ve *model.ValidationError
		if errors.As(err, &ve) {
			errData["field"] = ve.Field
		}
		var fatal *model.FatalSessionError
		if errors.As(err, &fatal) {
			errData["hint"] = fatal.Hint
		}
		data, _ := json.Marshal(map[string]any{"error": errData})
		fmt.Fprintln(o.errW, string(data))
		return
	}
	fmt.Fprintf(o.errW, "Error: %s\n", err)
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.JSON() {
		data, _ := json.Marshal(map[string]string{"message": msg})
		fmt.Fprintln(o.w, string(data))
	} else {
		fmt.Fprintln(o.w, msg)
	}
}

// Prompt asks for input; nothing is written in JSON mode
func (o *Output) Prompt(msg string) {
	if !o.JSON() {
		fmt.Fprint(o.w, msg)
	}
}

func (o *Output) printJSON(w io.Writer, data any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case *model.Identity:
		o.printIdentity(v)
	case *enrollment.LoginResult:
		o.printLogin(v)
	case Status:
		o.printStatus(v)
	case session.View:
		o.printView(v)
	case Preview:
		o.printPreview(v)
	case GameReport:
		o.printReport(v)
	case []results.Row:
		o.printRows(v)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(o.w, data)
	}
}

// Status is the signed-in user with their progress
type Status struct {
	Identity  *model.Identity        `json:"identity"`
	Progress  model.ProgressCounters `json:"progress"`
	NextPhase model.Phase            `json:"next_phase"`
}

// Preview is a core shown before a game starts
type Preview struct {
	CoreID   model.CoreID `json:"core_id"`
	ImageURL string       `json:"image_url"`
	SavedTo  string       `json:"saved_to,omitempty"`
}

// GameReport is a finished game with its leaderboard
type GameReport struct {
	GameID      model.GameID       `json:"game_id"`
	Summary     results.Summary    `json:"summary"`
	Game        *model.GameSummary `json:"game"`
	Leaderboard []results.Row      `json:"leaderboard"`
}

func (o *Output) printIdentity(i *model.Identity) {
	fmt.Fprintf(o.w, "User ID: %s\n", i.UserID)
	if i.Username != "" {
		fmt.Fprintf(o.w, "Username: %s\n", i.Username)
	}
	if i.Email != "" {
		fmt.Fprintf(o.w, "Email: %s\n", i.Email)
	}
	fmt.Fprintf(o.w, "Phase: %s\n", i.Phase)
	if i.IsAdmin() {
		fmt.Fprintln(o.w, "Role: admin")
	}
}

func (o *Output) printProgress(p model.ProgressCounters) {
	fmt.Fprintf(o.w, "Games played: pre-test %d, training %d, post-test %d\n", p.Pretest, p.Training, p.Posttest)
}

func (o *Output) printLogin(r *enrollment.LoginResult) {
	o.printIdentity(r.Identity)
	o.printProgress(r.Progress)
	fmt.Fprintf(o.w, "Menu: %s\n", session.MenuPath(r.Phase))
}

func (o *Output) printStatus(s Status) {
	o.printIdentity(s.Identity)
	o.printProgress(s.Progress)
	fmt.Fprintf(o.w, "Next: %s\n", s.NextPhase)
}

func (o *Output) printView(v session.View) {
	switch v.State {
	case session.StateTerminal:
		switch v.Outcome {
		case session.OutcomeFinished:
			fmt.Fprintf(o.w, "Game %d finished in %s\n", v.GameID, v.Elapsed)
		case session.OutcomeQuit:
			fmt.Fprintf(o.w, "Game %d quit\n", v.GameID)
		case session.OutcomeError:
			fmt.Fprintf(o.w, "Game error: %s\n", v.Error)
			if v.Hint != "" {
				fmt.Fprintf(o.w, "%s\n", v.Hint)
			}
		}
		return
	case session.StateActive:
	default:
		fmt.Fprintf(o.w, "Game: %s\n", v.State)
		return
	}

	fmt.Fprintf(o.w, "\n%s | %s | %s | %s\n", v.Username, v.Mode, v.Progress, v.Elapsed)
	fmt.Fprintf(o.w, "Image: %s\n", v.ImageURL)
	if v.DwellRemaining > 0 {
		fmt.Fprintf(o.w, "Look closely: scoring opens in %s\n", v.DwellRemaining.Round(100*time.Millisecond))
	}
}

func (o *Output) printPreview(p Preview) {
	fmt.Fprintf(o.w, "Preview core: %d\n", p.CoreID)
	fmt.Fprintf(o.w, "Image: %s\n", p.ImageURL)
	if p.SavedTo != "" {
		fmt.Fprintf(o.w, "Saved to: %s\n", p.SavedTo)
	}
}

func (o *Output) printReport(r GameReport) {
	s := r.Summary
	fmt.Fprintf(o.w, "Game %d results\n", r.GameID)
	fmt.Fprintf(o.w, "Score: %d points over %d patches\n", s.Points, s.Answered)
	fmt.Fprintf(o.w, "  %-15s %d\n", results.ScoreLabel(5)+":", s.Correct)
	fmt.Fprintf(o.w, "  %-15s %d\n", results.ScoreLabel(-1)+":", s.Mild)
	fmt.Fprintf(o.w, "  %-15s %d\n", results.ScoreLabel(-2)+":", s.Moderate)
	fmt.Fprintf(o.w, "  %-15s %d\n", results.ScoreLabel(-3)+":", s.Severe)
	fmt.Fprintf(o.w, "Time: %s\n", results.HumanizeDuration(int64(s.Seconds*1000), false))
	if len(r.Leaderboard) > 0 {
		fmt.Fprintln(o.w, "\nLeaderboard:")
		o.printRows(r.Leaderboard)
	}
}

func (o *Output) printRows(rows []results.Row) {
	if len(rows) == 0 {
		fmt.Fprintln(o.w, "No scores yet")
		return
	}
	fmt.Fprintf(o.w, "%-5s %-24s %7s  %s\n", "Rank", "Name", "Score", "Time")
	for _, r := range rows {
		fmt.Fprintf(o.w, "%-5d %-24s %7d  %s\n", r.Rank, r.Name, r.Score, r.Time)
	}
}
