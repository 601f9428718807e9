package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/mcoot/biogames-go/internal/model"
)

func newRegisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register <email>",
		Short: "Register for the study with an institutional email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := app.Enrollment.RegisterEmail(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			current, err := app.Identity.Get(cmd.Context())
			if err != nil {
				return err
			}
			out.Print(current)
			out.PrintMessage("Keep your User ID " + string(userID) + ", you will need it to sign in")
			return nil
		},
	}
}

func newPretestCmd() *cobra.Command {
	var userID, username string

	cmd := &cobra.Command{
		Use:   "pretest",
		Short: "Choose a username and get ready for the pre-test",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				if current, err := app.Identity.Get(cmd.Context()); err == nil {
					userID = string(current.UserID)
				}
			}

			current, err := app.Enrollment.StartPretest(cmd.Context(), model.UserID(userID), username)
			if err != nil {
				return err
			}
			out.Print(current)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user-id", "", "User ID (defaults to the registered one)")
	cmd.Flags().StringVar(&username, "username", "", "Username shown on the leaderboard (required)")
	_ = cmd.MarkFlagRequired("username")

	return cmd
}

func newLoginCmd() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "login <user-id>",
		Short: "Sign in and find out which phase to play",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			requested, err := model.ParsePhase(mode)
			if err != nil {
				return err
			}

			result, err := app.Enrollment.Login(cmd.Context(), model.UserID(args[0]), requested)
			if result != nil {
				out.Print(result)
			}
			if errors.Is(err, model.ErrPhaseUnavailable) {
				out.PrintMessage("All study phases are complete, thank you for taking part")
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&mode, "mode", string(model.PhaseTraining), "Phase to play: training, posttest")

	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the signed-in user and their progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			current, err := app.Identity.Get(cmd.Context())
			if err != nil {
				return err
			}

			next, progress, err := app.Policy.ResolveFor(cmd.Context(), app.Client, current, current.Phase)
			if err != nil {
				return err
			}
			out.Print(Status{Identity: current, Progress: *progress, NextPhase: next})
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Identity.Clear(cmd.Context()); err != nil {
				return err
			}
			out.PrintMessage("Signed out")
			return nil
		},
	}
}
