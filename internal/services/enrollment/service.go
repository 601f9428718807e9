// Package enrollment registers users and prepares them to play.
package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mcoot/biogames-go/internal/client"
	"github.com/mcoot/biogames-go/internal/model"
	"github.com/mcoot/biogames-go/internal/services/phase"
)

// MaxFieldLength bounds user ids and usernames
const MaxFieldLength = 32

// API is the part of the remote API enrollment uses
type API interface {
	GenerateUserID(ctx context.Context, email string) (*client.GenerateUserIDResponse, error)
	ValidateUserID(ctx context.Context, userID model.UserID, training bool) error
	CheckUsername(ctx context.Context, userID model.UserID) (*client.UsernameCheck, error)
	RegisterWithUsername(ctx context.Context, userID model.UserID, username string) (*client.RegisterResponse, error)
	CheckGameType(ctx context.Context, userID model.UserID) (*model.ProgressCounters, error)
	PreviewCoreID(ctx context.Context, mode model.Phase) (model.CoreID, error)
}

// Identity is where an enrolled user is stored
type Identity interface {
	Get(ctx context.Context) (*model.Identity, error)
	Set(ctx context.Context, identity model.Identity) error
}

// Config holds enrollment rules
type Config struct {
	AllowedEmailDomains []string
	Policy              phase.Policy
}

// DefaultConfig returns the study's enrollment rules
func DefaultConfig() Config {
	return Config{
		AllowedEmailDomains: []string{"@mednet.ucla.edu", "@ucla.edu", "@mail.huji.ac.il"},
		Policy:              phase.DefaultPolicy(),
	}
}

// Service runs the registration and play forms
type Service struct {
	api      API
	identity Identity
	cfg      Config
	logger   *slog.Logger
}

// New creates an enrollment service
func New(api API, identity Identity, cfg Config, logger *slog.Logger) *Service {
	return &Service{
		api:      api,
		identity: identity,
		cfg:      cfg,
		logger:   logger,
	}
}

// RegisterEmail issues a study id for an institutional email and starts the user at the pre-test
func (s *Service) RegisterEmail(ctx context.Context, email string) (model.UserID, error) {
	email = strings.TrimSpace(email)
	if !s.allowedEmail(email) {
		return "", &model.ValidationError{
			Field:   "email",
			Message: "Please enter a valid " + joinDomains(s.cfg.AllowedEmailDomains) + " email address",
		}
	}

	resp, err := s.api.GenerateUserID(ctx, email)
	if err != nil {
		return "", fmt.Errorf("registering email: %w", err)
	}
	if !resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = "registration failed"
		}
		return "", &model.ValidationError{Field: "email", Message: msg}
	}

	userID := model.UserID(resp.UserID)
	if err := s.identity.Set(ctx, model.Identity{UserID: userID, Email: email, Phase: model.PhasePretest}); err != nil {
		return "", err
	}
	s.logger.Info("email registered", slog.String("user_id", string(userID)))
	return userID, nil
}

// StartPretest binds a username to an issued id, reusing one that already exists
func (s *Service) StartPretest(ctx context.Context, userID model.UserID, username string) (*model.Identity, error) {
	userID = model.UserID(strings.TrimSpace(string(userID)))
	username = strings.TrimSpace(username)
	if err := checkField("user_id", string(userID)); err != nil {
		return nil, err
	}
	if err := checkField("username", username); err != nil {
		return nil, err
	}

	if err := s.api.ValidateUserID(ctx, userID, false); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, &model.ValidationError{Field: "user_id", Message: "Invalid user ID"}
		}
		return nil, fmt.Errorf("validating user id: %w", err)
	}

	check, err := s.api.CheckUsername(ctx, userID)
	if err != nil {
		s.logger.Warn("username check failed", slog.String("user_id", string(userID)), slog.String("error", err.Error()))
	} else if check.HasUsername {
		if check.Username != nil {
			username = *check.Username
		}
		return s.establish(ctx, userID, username, model.PhasePretest)
	}

	resp, err := s.api.RegisterWithUsername(ctx, userID, username)
	if err != nil {
		s.logger.Warn("username registration failed", slog.String("user_id", string(userID)), slog.String("error", err.Error()))
		return nil, &model.ValidationError{Field: "username", Message: "Failed to register username"}
	}
	if resp.Username == nil {
		return nil, &model.ValidationError{Field: "username", Message: "Missing username in response"}
	}
	return s.establish(ctx, userID, *resp.Username, model.PhasePretest)
}

// LoginResult is the outcome of the play form
type LoginResult struct {
	Identity *model.Identity        `json:"identity"`
	Phase    model.Phase            `json:"phase"`
	Progress model.ProgressCounters `json:"progress"`
}

// Login signs a returning user in and resolves which phase they may play.
// A user with nothing left to play gets ErrPhaseUnavailable alongside the result.
func (s *Service) Login(ctx context.Context, userID model.UserID, requested model.Phase) (*LoginResult, error) {
	userID = model.UserID(strings.TrimSpace(string(userID)))
	if err := checkField("user_id", string(userID)); err != nil {
		return nil, err
	}
	if requested == "" {
		requested = model.PhaseTraining
	}

	if err := s.api.ValidateUserID(ctx, userID, true); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, &model.ValidationError{Field: "user_id", Message: "Invalid user ID"}
		}
		return nil, fmt.Errorf("validating user id: %w", err)
	}

	username := ""
	if check, err := s.api.CheckUsername(ctx, userID); err == nil && check.HasUsername && check.Username != nil {
		username = *check.Username
	}

	identity, err := s.establish(ctx, userID, username, requested)
	if err != nil {
		return nil, err
	}

	resolved, progress, err := s.cfg.Policy.ResolveFor(ctx, s.api, identity, requested)
	if err != nil {
		return nil, err
	}

	identity.Phase = resolved
	if err := s.identity.Set(ctx, *identity); err != nil {
		return nil, err
	}
	identity, err = s.identity.Get(ctx)
	if err != nil {
		return nil, err
	}

	result := &LoginResult{Identity: identity, Phase: resolved, Progress: *progress}
	if resolved == model.PhaseFinished || (requested == model.PhaseTraining && resolved == model.PhasePosttest) {
		return result, model.ErrPhaseUnavailable
	}
	return result, nil
}

// Preview picks a core to show before the next game; it becomes the game's first challenge
func (s *Service) Preview(ctx context.Context, mode model.Phase) (model.CoreID, error) {
	core, err := s.api.PreviewCoreID(ctx, mode)
	if err != nil {
		return 0, fmt.Errorf("fetching preview core: %w", err)
	}
	return core, nil
}

// establish stores the identity, keeping the email of the same user
func (s *Service) establish(ctx context.Context, userID model.UserID, username string, p model.Phase) (*model.Identity, error) {
	identity := model.Identity{UserID: userID, Username: username, Phase: p}
	if current, err := s.identity.Get(ctx); err == nil && current.UserID == userID {
		identity.Email = current.Email
	}
	if err := s.identity.Set(ctx, identity); err != nil {
		return nil, err
	}
	return s.identity.Get(ctx)
}

func (s *Service) allowedEmail(email string) bool {
	for _, domain := range s.cfg.AllowedEmailDomains {
		if strings.HasSuffix(email, domain) && len(email) > len(domain) {
			return true
		}
	}
	return false
}

func checkField(field, value string) error {
	switch {
	case value == "":
		return &model.ValidationError{Field: field, Message: "Required"}
	case len(value) > MaxFieldLength:
		return &model.ValidationError{Field: field, Message: fmt.Sprintf("Must be %d characters or less", MaxFieldLength)}
	}
	return nil
}

func joinDomains(domains []string) string {
	switch len(domains) {
	case 0:
		return ""
	case 1:
		return domains[0]
	}
	return strings.Join(domains[:len(domains)-1], ", ") + ", or " + domains[len(domains)-1]
}
