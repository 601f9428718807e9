package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mcoot/biogames-go/internal/model"
	"github.com/mcoot/biogames-go/internal/services/session"
)

func newPreviewCmd() *cobra.Command {
	var mode, save string

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Pick the core shown before the next game",
		RunE: func(cmd *cobra.Command, args []string) error {
			phase, err := model.ParsePhase(mode)
			if err != nil {
				return err
			}

			preview, err := fetchPreview(cmd.Context(), phase, save)
			if err != nil {
				return err
			}
			out.Print(preview)
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", string(model.PhaseTraining), "Phase the next game is played in")
	cmd.Flags().StringVar(&save, "save", "", "Write the core image to this file")

	return cmd
}

func fetchPreview(ctx context.Context, phase model.Phase, save string) (Preview, error) {
	core, err := app.Enrollment.Preview(ctx, phase)
	if err != nil {
		return Preview{}, err
	}

	preview := Preview{CoreID: core, ImageURL: app.Client.CoreImageURL(core)}
	if save != "" {
		if err := saveImage(ctx, preview.ImageURL, save); err != nil {
			return Preview{}, err
		}
		preview.SavedTo = save
	}
	return preview, nil
}

func saveImage(ctx context.Context, url, path string) error {
	data, err := app.Prefetcher.Image(ctx, url)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// gameRoute remembers where a session sends the user next
type gameRoute struct {
	last string
}

func (r *gameRoute) Navigate(route string) {
	r.last = route
	app.Logger.Debug("navigate", slog.String("route", route))
}

func newPlayCmd() *cobra.Command {
	var (
		mode        string
		resume      int
		core        int
		withPreview bool
		imagesDir   string
	)

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play a game, scoring each patch from 0 to 3",
		Long: `play starts a game in the signed-in user's phase and reads one score per
line from standard input: 0, 1, 2 or 3, or q to quit the game. Each image
must be shown for the dwell time before it can be scored. If input ends the
game is left open and can be continued with --resume.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			current, err := app.Identity.Get(ctx)
			if err != nil {
				return err
			}

			requested := current.Phase
			if mode != "" {
				if requested, err = model.ParsePhase(mode); err != nil {
					return err
				}
			}
			phase, _, err := app.Policy.ResolveFor(ctx, app.Client, current, requested)
			if err != nil {
				return err
			}
			if !phase.Playable() {
				return fmt.Errorf("%w: %s", model.ErrPhaseUnavailable, phase)
			}
			if phase != current.Phase {
				if err := app.Identity.SetPhase(ctx, phase); err != nil {
					return err
				}
			}

			opts := session.Options{Mode: phase}
			switch {
			case core > 0:
				id := model.CoreID(core)
				opts.InitialCoreID = &id
			case withPreview && resume == 0:
				preview, err := fetchPreview(ctx, phase, "")
				if err != nil {
					return err
				}
				opts.InitialCoreID = &preview.CoreID
			}

			var resumeID *model.GameID
			if resume > 0 {
				id := model.GameID(resume)
				resumeID = &id
			}

			return play(ctx, opts, resumeID, cmd.InOrStdin(), imagesDir)
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "Phase to play (defaults to the user's phase)")
	cmd.Flags().IntVar(&resume, "resume", 0, "Continue an open game")
	cmd.Flags().IntVar(&core, "core", 0, "Start with this previewed core")
	cmd.Flags().BoolVar(&withPreview, "preview", false, "Start with a freshly previewed core")
	cmd.Flags().StringVar(&imagesDir, "images", "", "Save each image to this directory")

	return cmd
}

func play(ctx context.Context, opts session.Options, resume *model.GameID, in io.Reader, imagesDir string) error {
	route := &gameRoute{}
	ctrl := app.NewSession(route, opts)
	defer ctrl.Close()

	if err := ctrl.Start(ctx, resume); err != nil {
		if v := ctrl.View(); v.State == session.StateTerminal {
			out.Print(v)
		}
		return err
	}

	lines := bufio.NewScanner(in)
	shown := model.ChallengeID(-1)
	for {
		v := ctrl.View()
		if v.State != session.StateActive {
			break
		}
		if v.Challenge.HasID() && *v.Challenge.ID != shown {
			shown = *v.Challenge.ID
			out.Print(v)
			if imagesDir != "" {
				name := fmt.Sprintf("game-%d-patch-%03d.jpg", v.GameID, v.Challenge.Position())
				if err := saveImage(ctx, v.ImageURL, filepath.Join(imagesDir, name)); err != nil {
					app.Logger.Warn("could not save image", slog.String("error", err.Error()))
				}
			}
		}

		if err := ctrl.WaitForInput(ctx); err != nil {
			if errors.Is(err, model.ErrNoActiveChallenge) {
				break
			}
			return err
		}

		out.Prompt("Score 0-3 (q to quit): ")
		if !lines.Scan() {
			out.PrintMessage(fmt.Sprintf("Game %d left open, continue with: biogames play --resume %d", v.GameID, v.GameID))
			return lines.Err()
		}

		input := strings.TrimSpace(lines.Text())
		if strings.EqualFold(input, "q") {
			if err := ctrl.Quit(ctx); err != nil {
				return err
			}
			break
		}

		guess, err := strconv.Atoi(input)
		if err != nil {
			out.PrintError(&model.ValidationError{Field: "guess", Message: "enter 0, 1, 2, 3 or q"})
			continue
		}
		if err := ctrl.Submit(ctx, model.Guess(guess)); err != nil {
			if model.IsValidation(err) || errors.Is(err, model.ErrInputGated) {
				out.PrintError(err)
				continue
			}
			return err
		}
	}

	v := ctrl.View()
	out.Print(v)
	if v.Outcome == session.OutcomeError {
		return errors.New(v.Error)
	}
	if route.last != "" {
		out.PrintMessage("Next: " + route.last)
	}
	return nil
}

func newQuitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quit <game-id>",
		Short: "Quit an open game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseGameID(args[0])
			if err != nil {
				return err
			}

			current, err := app.Identity.Get(ctx)
			if err != nil {
				return err
			}
			mode := current.Phase
			if !mode.Playable() {
				mode = model.PhaseTraining
			}

			route := &gameRoute{}
			ctrl := app.NewSession(route, session.Options{Mode: mode})
			defer ctrl.Close()

			if err := ctrl.Start(ctx, &id); err != nil {
				return err
			}
			if err := ctrl.Quit(ctx); err != nil {
				return err
			}
			out.Print(ctrl.View())
			out.PrintMessage("Next: " + route.last)
			return nil
		},
	}
}

func parseGameID(s string) (model.GameID, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, &model.ValidationError{Field: "game_id", Message: fmt.Sprintf("invalid game id %q", s)}
	}
	return model.GameID(id), nil
}
