// Package results prepares finished games and the leaderboard for display.
package results

import (
	"context"
	"strings"

	"github.com/mcoot/biogames-go/internal/model"
)

const anonymousPrefix = "UCLA_"

// API is the part of the remote API results are read from
type API interface {
	GetGame(ctx context.Context, gameID model.GameID) (*model.GameSummary, error)
	Leaderboard(ctx context.Context, gameID model.GameID) (*model.Leaderboard, error)
}

// Row is one displayed leaderboard line
type Row struct {
	Rank        int    `json:"rank"`
	Name        string `json:"name"`
	Score       int    `json:"score"`
	TimeTakenMs int    `json:"time_taken_ms"`
	Time        string `json:"time"`
}

// Service reads results from the remote API
type Service struct {
	api API
}

// New creates a results service
func New(api API) *Service {
	return &Service{api: api}
}

// Leaderboard returns the ranked rows shown next to a game's results
func (s *Service) Leaderboard(ctx context.Context, gameID model.GameID) ([]Row, error) {
	board, err := s.api.Leaderboard(ctx, gameID)
	if err != nil {
		return nil, err
	}
	return Rows(board.Entries), nil
}

// Rows hides admin entries, anonymizes study ids and ranks the rest in order
func Rows(entries []model.LeaderboardEntry) []Row {
	rows := make([]Row, 0, len(entries))
	for _, e := range entries {
		if strings.HasSuffix(e.Username, "admin") {
			continue
		}
		name := e.Username
		if strings.HasPrefix(name, anonymousPrefix) {
			name = "Anonymous"
		}
		rows = append(rows, Row{
			Rank:        len(rows) + 1,
			Name:        name,
			Score:       e.Score,
			TimeTakenMs: e.TimeTakenMs,
			Time:        HumanizeDuration(int64(e.TimeTakenMs), true),
		})
	}
	return rows
}

// Game returns a scored game
func (s *Service) Game(ctx context.Context, gameID model.GameID) (*model.GameSummary, error) {
	return s.api.GetGame(ctx, gameID)
}

// Summary totals a game's answers by severity
type Summary struct {
	Answered int     `json:"answered"`
	Correct  int     `json:"correct"`
	Mild     int     `json:"mild"`
	Moderate int     `json:"moderate"`
	Severe   int     `json:"severe"`
	Points   int     `json:"points"`
	Seconds  float64 `json:"seconds"`
}

// Summarize counts a game's grouped results
func Summarize(game *model.GameSummary) Summary {
	var sum Summary
	if game == nil || game.Results == nil {
		return sum
	}
	r := game.Results
	sum.Correct = len(r.Correct)
	sum.Mild = len(r.MildMistakes)
	sum.Moderate = len(r.ModerateMistakes)
	sum.Severe = len(r.SevereMistakes)
	sum.Answered = sum.Correct + sum.Mild + sum.Moderate + sum.Severe

	for _, group := range [][]model.ChallengeResult{r.Correct, r.MildMistakes, r.ModerateMistakes, r.SevereMistakes} {
		for _, c := range group {
			sum.Seconds += c.Seconds
		}
	}
	if game.TotalPoints != nil {
		sum.Points = *game.TotalPoints
	}
	return sum
}
