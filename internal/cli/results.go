package cli

import (
	"github.com/spf13/cobra"

	"github.com/mcoot/biogames-go/internal/services/results"
)

func newResultsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "results <game-id>",
		Short: "Show the score breakdown and leaderboard of a game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseGameID(args[0])
			if err != nil {
				return err
			}

			game, err := app.Results.Game(ctx, id)
			if err != nil {
				return err
			}
			rows, err := app.Results.Leaderboard(ctx, id)
			if err != nil {
				return err
			}

			out.Print(GameReport{
				GameID:      id,
				Summary:     results.Summarize(game),
				Game:        game,
				Leaderboard: rows,
			})
			return nil
		},
	}
}

func newLeaderboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "leaderboard <game-id>",
		Short: "Show the leaderboard for the mode of a game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseGameID(args[0])
			if err != nil {
				return err
			}

			rows, err := app.Results.Leaderboard(cmd.Context(), id)
			if err != nil {
				return err
			}
			out.Print(rows)
			return nil
		},
	}
}
