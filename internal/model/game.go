package model

// GameID identifies a game session on the remote API
type GameID int

// ChallengeID identifies a single scoring question within a game
type ChallengeID int

// CoreID identifies a HER2 tissue core image
type CoreID int

// Guess is a HER2 score guess in the range 0-3
type Guess int

// MaxGuess is the highest HER2 score a user can submit
const MaxGuess Guess = 3

// Valid returns true if the guess is a HER2 score
func (g Guess) Valid() bool {
	return g >= 0 && g <= MaxGuess
}

// GameSession is a server-tracked game owned by one user
type GameSession struct {
	ID                  GameID `json:"id"`
	Owner               UserID `json:"user,omitempty"`
	Mode                Phase  `json:"mode,omitempty"`
	TotalChallenges     int    `json:"total_challenges"`
	CompletedChallenges int    `json:"completed_challenges"`
}

// Challenge is the current unanswered item within a game.
// ID is nil once every challenge has been answered.
type Challenge struct {
	ID                  *ChallengeID `json:"id"`
	CoreID              *CoreID      `json:"core_id"`
	CompletedChallenges int          `json:"completed_challenges"`
	TotalChallenges     int          `json:"total_challenges"`
}

// IsComplete returns true if every challenge in the game has been answered
func (c *Challenge) IsComplete() bool {
	return c.CompletedChallenges >= c.TotalChallenges
}

// HasID returns true if the challenge carries an answerable challenge ID
func (c *Challenge) HasID() bool {
	return c != nil && c.ID != nil
}

// Position returns the 1-indexed number of this challenge in the game
func (c *Challenge) Position() int {
	return c.CompletedChallenges + 1
}

// GuessSubmission is a single answer to a challenge
type GuessSubmission struct {
	ChallengeID ChallengeID `json:"-"`
	Guess       Guess       `json:"guess"`
}

// ChallengeResult is one answered challenge in a finished game
type ChallengeResult struct {
	ChallengeID  ChallengeID `json:"challenge_id"`
	Guess        Guess       `json:"guess"`
	CorrectScore int         `json:"correct_score"`
	Seconds      float64     `json:"seconds"`
	Points       int         `json:"points"`
}

// GameResults groups answered challenges by severity of mistake
type GameResults struct {
	SevereMistakes   []ChallengeResult `json:"severe_mistakes"`
	ModerateMistakes []ChallengeResult `json:"moderate_mistakes"`
	MildMistakes     []ChallengeResult `json:"mild_mistakes"`
	Correct          []ChallengeResult `json:"correct"`
}

// GameSummary is a scored game as returned by the results endpoint
type GameSummary struct {
	ID          GameID       `json:"id"`
	User        string       `json:"user"`
	Results     *GameResults `json:"results"`
	TotalPoints *int         `json:"total_points"`
}

// LeaderboardEntry is a single user's best training game
type LeaderboardEntry struct {
	Username    string `json:"username"`
	Score       int    `json:"score"`
	TimeTakenMs int    `json:"time_taken_ms"`
}

// Leaderboard is the ranked list of training scores
type Leaderboard struct {
	Entries []LeaderboardEntry `json:"entries"`
}
