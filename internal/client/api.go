package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mcoot/biogames-go/internal/model"
)

// GenerateUserIDResponse is the result of email registration
type GenerateUserIDResponse struct {
	Success bool   `json:"success"`
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

// UsernameCheck reports whether a user id already has a username
type UsernameCheck struct {
	HasUsername bool    `json:"has_username"`
	Username    *string `json:"username"`
}

// RegisterResponse is the result of binding a username to a user id
type RegisterResponse struct {
	Success  bool    `json:"success"`
	UserID   string  `json:"user_id"`
	Username *string `json:"username"`
	Message  string  `json:"message"`
}

// CreateGameRequest describes a new game
type CreateGameRequest struct {
	UserID        model.UserID  `json:"user_id"`
	InitialCoreID *model.CoreID `json:"initial_her2_core_id,omitempty"`

	Mode          model.Phase `json:"-"`
	NumChallenges int         `json:"-"` // 0 lets the server decide
}

type previewResponse struct {
	CoreID model.CoreID `json:"her2_core_id"`
}

// GenerateUserID registers an email and returns the issued study id
func (c *Client) GenerateUserID(ctx context.Context, email string) (*GenerateUserIDResponse, error) {
	var resp GenerateUserIDResponse
	body := map[string]string{"email": email}
	if err := c.do(ctx, "generate user id", http.MethodPost, "/generate-user-id", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ValidateUserID checks that a user id exists. Unknown ids wrap model.ErrNotFound.
func (c *Client) ValidateUserID(ctx context.Context, userID model.UserID, training bool) error {
	path := "/validate-username/" + url.PathEscape(string(userID))
	if training {
		path += "?context=training"
	}
	return c.do(ctx, "validate user id", http.MethodGet, path, nil, nil)
}

// CheckUsername reports whether the user id already has a username
func (c *Client) CheckUsername(ctx context.Context, userID model.UserID) (*UsernameCheck, error) {
	var resp UsernameCheck
	path := "/check-username/" + url.PathEscape(string(userID))
	if err := c.do(ctx, "check username", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CheckGameType returns the user's completed game counts per phase
func (c *Client) CheckGameType(ctx context.Context, userID model.UserID) (*model.ProgressCounters, error) {
	var resp model.ProgressCounters
	path := "/check-game-type/" + url.PathEscape(string(userID))
	if err := c.do(ctx, "check game type", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RegisterWithUsername binds a username to a user id
func (c *Client) RegisterWithUsername(ctx context.Context, userID model.UserID, username string) (*RegisterResponse, error) {
	var resp RegisterResponse
	body := map[string]string{"user_id": string(userID), "username": username}
	if err := c.do(ctx, "register username", http.MethodPost, "/register-with-username", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateGame starts a game. A user with an open game gets *model.ConflictError.
func (c *Client) CreateGame(ctx context.Context, req CreateGameRequest) (*model.GameSummary, error) {
	q := url.Values{}
	q.Set("mode", string(req.Mode))
	if req.NumChallenges > 0 {
		q.Set("num_challenges", strconv.Itoa(req.NumChallenges))
	}

	var resp model.GameSummary
	if err := c.do(ctx, "create game", http.MethodPost, "/games?"+q.Encode(), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QuitGame abandons a game
func (c *Client) QuitGame(ctx context.Context, gameID model.GameID) error {
	return c.do(ctx, "quit game", http.MethodPost, fmt.Sprintf("/games/%d/quit", gameID), nil, nil)
}

// GetGame returns a game with its grouped results once scored
func (c *Client) GetGame(ctx context.Context, gameID model.GameID) (*model.GameSummary, error) {
	var resp model.GameSummary
	if err := c.do(ctx, "get game", http.MethodGet, fmt.Sprintf("/games/%d", gameID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchCurrentChallenge returns the first unanswered challenge of a game.
// An unknown game wraps model.ErrNotFound.
func (c *Client) FetchCurrentChallenge(ctx context.Context, gameID model.GameID) (*model.Challenge, error) {
	return c.fetchChallenge(ctx, "fetch challenge", gameID, 0)
}

// PrefetchNext looks ahead offset challenges. Failures are reported as ok=false.
func (c *Client) PrefetchNext(ctx context.Context, gameID model.GameID, offset int) (*model.Challenge, bool) {
	ch, err := c.fetchChallenge(ctx, "prefetch challenge", gameID, offset)
	if err != nil || !ch.HasID() {
		return nil, false
	}
	return ch, true
}

func (c *Client) fetchChallenge(ctx context.Context, op string, gameID model.GameID, offset int) (*model.Challenge, error) {
	path := fmt.Sprintf("/games/%d/challenge", gameID)
	if offset > 0 {
		path += "?completed_count=" + strconv.Itoa(offset)
	}

	var resp model.Challenge
	if err := c.do(ctx, op, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitGuess records an answer. It is never retried.
func (c *Client) SubmitGuess(ctx context.Context, challengeID model.ChallengeID, guess model.Guess) error {
	body := model.GuessSubmission{ChallengeID: challengeID, Guess: guess}
	return c.do(ctx, "submit guess", http.MethodPost, fmt.Sprintf("/challenges/%d", challengeID), body, nil)
}

// Leaderboard returns the ranked training scores
func (c *Client) Leaderboard(ctx context.Context, gameID model.GameID) (*model.Leaderboard, error) {
	var resp model.Leaderboard
	path := fmt.Sprintf("/leaderboard?game_id=%d", gameID)
	if err := c.do(ctx, "leaderboard", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PreviewCoreID returns a core to show before a game starts
func (c *Client) PreviewCoreID(ctx context.Context, mode model.Phase) (model.CoreID, error) {
	var resp previewResponse
	path := "/api/preview_core_id?mode=" + url.QueryEscape(string(mode))
	if err := c.do(ctx, "preview core", http.MethodGet, path, nil, &resp); err != nil {
		return 0, err
	}
	return resp.CoreID, nil
}

// ChallengeImageURL is the image for a challenge. Requesting it marks the challenge started.
func (c *Client) ChallengeImageURL(challengeID model.ChallengeID, mode model.Phase) string {
	u := fmt.Sprintf("%s/challenges/%d/core", c.baseURL, challengeID)
	if mode != "" {
		u += "?mode=" + url.QueryEscape(string(mode))
	}
	return u
}

// CoreImageURL is the image for a core, independent of any challenge
func (c *Client) CoreImageURL(coreID model.CoreID) string {
	return fmt.Sprintf("%s/api/her2_core_images/%d", c.baseURL, coreID)
}

// ChallengeImage downloads the image for a challenge
func (c *Client) ChallengeImage(ctx context.Context, challengeID model.ChallengeID, mode model.Phase) ([]byte, error) {
	return c.fetch(ctx, "challenge image", c.ChallengeImageURL(challengeID, mode))
}

// CoreImage downloads the image for a core
func (c *Client) CoreImage(ctx context.Context, coreID model.CoreID) ([]byte, error) {
	return c.fetch(ctx, "core image", c.CoreImageURL(coreID))
}

// Image downloads any image URL produced by this client
func (c *Client) Image(ctx context.Context, imageURL string) ([]byte, error) {
	return c.fetch(ctx, "image", imageURL)
}
