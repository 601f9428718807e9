// Package session runs one game from creation to a terminal outcome.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mcoot/biogames-go/internal/client"
	"github.com/mcoot/biogames-go/internal/dependencies/clock"
	"github.com/mcoot/biogames-go/internal/model"
)

// State is the controller's position in the session lifecycle
type State int

const (
	StateUninitialized State = iota
	StateCreating
	StateActive
	StateCompleting
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateCreating:
		return "creating"
	case StateActive:
		return "active"
	case StateCompleting:
		return "completing"
	case StateTerminal:
		return "terminal"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state by name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Outcome is how a terminal session ended
type Outcome string

const (
	OutcomeNone     Outcome = ""
	OutcomeQuit     Outcome = "quit"
	OutcomeFinished Outcome = "finished"
	OutcomeError    Outcome = "error"
)

// API is the part of the remote API a session uses
type API interface {
	CreateGame(ctx context.Context, req client.CreateGameRequest) (*model.GameSummary, error)
	QuitGame(ctx context.Context, gameID model.GameID) error
	FetchCurrentChallenge(ctx context.Context, gameID model.GameID) (*model.Challenge, error)
	PrefetchNext(ctx context.Context, gameID model.GameID, offset int) (*model.Challenge, bool)
	SubmitGuess(ctx context.Context, challengeID model.ChallengeID, guess model.Guess) error
	ChallengeImageURL(challengeID model.ChallengeID, mode model.Phase) string
	CoreImageURL(coreID model.CoreID) string
	Image(ctx context.Context, url string) ([]byte, error)
}

// Identity is the session's view of the current user
type Identity interface {
	Get(ctx context.Context) (*model.Identity, error)
	SetPhase(ctx context.Context, phase model.Phase) error
}

// Prefetcher warms the image cache
type Prefetcher interface {
	Warm(ctx context.Context, url string) error
}

// DefaultDwell is how long each image is shown before it can be scored
const DefaultDwell = 5 * time.Second

// Config holds session tuning
type Config struct {
	// Dwell is how long a new challenge is shown before answers are accepted
	Dwell time.Duration

	// NumChallenges is sent on creation for modes that set it
	NumChallenges map[model.Phase]int

	// PrefetchOffset is how far ahead the next image is warmed; 0 disables prefetching
	PrefetchOffset int
}

// DefaultConfig returns the standard study settings
func DefaultConfig() Config {
	return Config{
		Dwell:          DefaultDwell,
		NumChallenges:  map[model.Phase]int{model.PhasePretest: 50},
		PrefetchOffset: 1,
	}
}

// Dependencies are the collaborators a Controller is built from
type Dependencies struct {
	API        API
	Identity   Identity
	Clock      clock.Clock
	Prefetcher Prefetcher // optional
	Navigator  Navigator
	Logger     *slog.Logger
	Config     Config
}

// Options select the game a controller plays
type Options struct {
	Mode          model.Phase
	InitialCoreID *model.CoreID // core previewed before the game started
}

// Controller drives a single game session
type Controller struct {
	api        API
	identity   Identity
	clock      clock.Clock
	prefetcher Prefetcher
	nav        Navigator
	logger     *slog.Logger
	cfg        Config
	opts       Options

	life   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	started    bool
	state      State
	outcome    Outcome
	gameID     model.GameID
	challenge  *model.Challenge
	shownAt    time.Time
	startedAt  time.Time
	submitting bool
	pinged     bool
	username   string
	err        error
	changed    chan struct{}
}

// New creates a controller for one game. Close must be called when it is no longer shown.
func New(deps Dependencies, opts Options) *Controller {
	if opts.Mode == "" {
		opts.Mode = model.PhaseTraining
	}
	if deps.Navigator == nil {
		deps.Navigator = &Recorder{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	life, cancel := context.WithCancel(context.Background())
	return &Controller{
		api:        deps.API,
		identity:   deps.Identity,
		clock:      deps.Clock,
		prefetcher: deps.Prefetcher,
		nav:        deps.Navigator,
		logger:     deps.Logger.With(slog.String("mode", string(opts.Mode))),
		cfg:        deps.Config,
		opts:       opts,
		life:       life,
		cancel:     cancel,
		changed:    make(chan struct{}),
	}
}

// Start begins the session, resuming an existing game when resume is set.
// It may be called once per controller.
func (c *Controller) Start(ctx context.Context, resume *model.GameID) error {
	c.mu.Lock()
	if c.closed() {
		c.mu.Unlock()
		return model.ErrSessionClosed
	}
	if c.started {
		c.mu.Unlock()
		return model.ErrSessionStarted
	}
	c.started = true
	c.mu.Unlock()

	identity, err := c.identity.Get(ctx)
	if err != nil {
		c.fail(model.ErrNotAuthenticated)
		c.nav.Navigate(RouteHome)
		return model.ErrNotAuthenticated
	}

	c.mu.Lock()
	c.username = identity.DisplayName()
	c.mu.Unlock()

	if resume != nil {
		c.activate(*resume)
		return c.refresh(ctx)
	}

	c.setState(StateCreating)
	return c.create(ctx, identity)
}

func (c *Controller) create(ctx context.Context, identity *model.Identity) error {
	opCtx, done := c.opCtx(ctx)
	defer done()

	req := client.CreateGameRequest{
		UserID:        identity.UserID,
		Mode:          c.opts.Mode,
		NumChallenges: c.cfg.NumChallenges[c.opts.Mode],
		InitialCoreID: c.opts.InitialCoreID,
	}

	game, err := c.api.CreateGame(opCtx, req)

	var conflict *model.ConflictError
	if errors.As(err, &conflict) {
		c.logger.Info("user has an open game, quitting it",
			slog.Int("existing_game_id", int(conflict.ExistingGameID)))

		if qerr := c.api.QuitGame(opCtx, conflict.ExistingGameID); qerr != nil {
			if c.closed() {
				return model.ErrSessionClosed
			}
			return c.fail(&model.FatalSessionError{
				Err:  fmt.Errorf("could not quit open game %d: %w", conflict.ExistingGameID, qerr),
				Hint: model.ReusedIdentifierHint,
			})
		}
		game, err = c.api.CreateGame(opCtx, req)
	}

	if c.closed() {
		return model.ErrSessionClosed
	}
	if err != nil {
		return c.fail(fmt.Errorf("creating game: %w", err))
	}

	c.activate(game.ID)
	c.logger.Info("game created", slog.Int("game_id", int(game.ID)))
	c.nav.Navigate(GamePath(c.opts.Mode, game.ID))
	return c.refresh(ctx)
}

func (c *Controller) activate(id model.GameID) {
	c.mu.Lock()
	c.gameID = id
	c.state = StateActive
	c.startedAt = c.clock.Now()
	c.notifyLocked()
	c.mu.Unlock()
}

// refresh fetches the current challenge and applies it
func (c *Controller) refresh(ctx context.Context) error {
	c.mu.Lock()
	gameID := c.gameID
	c.mu.Unlock()

	opCtx, done := c.opCtx(ctx)
	ch, err := c.api.FetchCurrentChallenge(opCtx, gameID)
	done()

	if c.closed() {
		return model.ErrSessionClosed
	}
	if errors.Is(err, model.ErrNotFound) {
		return c.fail(fmt.Errorf("no challenge data found for game %d: %w", gameID, err))
	}
	if err != nil {
		return c.fail(err)
	}

	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return nil
	}
	if ch.IsComplete() {
		c.challenge = ch
		c.state = StateCompleting
		c.notifyLocked()
		c.mu.Unlock()
		return c.complete(ctx)
	}
	if !ch.HasID() {
		c.mu.Unlock()
		return c.fail(fmt.Errorf("challenge details for game %d are incomplete", gameID))
	}

	if c.challenge == nil || !c.challenge.HasID() || *c.challenge.ID != *ch.ID {
		c.shownAt = c.clock.Now()
	}
	c.challenge = ch
	ping := c.shouldPingLocked(ch)
	c.notifyLocked()
	c.mu.Unlock()

	if ping {
		c.ping(*ch.ID)
	}
	c.prefetchNext(gameID)
	return nil
}

// shouldPingLocked is true once, when the first challenge shows the previewed core
func (c *Controller) shouldPingLocked(ch *model.Challenge) bool {
	if c.pinged || !c.previewMatchesLocked(ch) {
		return false
	}
	c.pinged = true
	return true
}

func (c *Controller) previewMatchesLocked(ch *model.Challenge) bool {
	initial := c.opts.InitialCoreID
	return initial != nil && ch != nil && ch.HasID() && ch.CoreID != nil &&
		*ch.CoreID == *initial && ch.CompletedChallenges == 0
}

// ping requests the standard challenge image so the server records when the challenge started
func (c *Controller) ping(id model.ChallengeID) {
	url := c.api.ChallengeImageURL(id, c.opts.Mode)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if _, err := c.api.Image(c.life, url); err != nil && c.life.Err() == nil {
			c.logger.Warn("challenge start ping failed", slog.String("url", url), slog.String("error", err.Error()))
		}
	}()
}

func (c *Controller) prefetchNext(gameID model.GameID) {
	if c.prefetcher == nil || c.cfg.PrefetchOffset <= 0 {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		next, ok := c.api.PrefetchNext(c.life, gameID, c.cfg.PrefetchOffset)
		if !ok {
			return
		}
		url := c.api.ChallengeImageURL(*next.ID, c.opts.Mode)
		if err := c.prefetcher.Warm(c.life, url); err != nil && c.life.Err() == nil {
			c.logger.Warn("prefetch failed", slog.String("url", url), slog.String("error", err.Error()))
		}
	}()
}

// complete routes the user after the last challenge has been answered
func (c *Controller) complete(ctx context.Context) error {
	c.mu.Lock()
	gameID := c.gameID
	c.mu.Unlock()

	phase := c.currentPhase(ctx)
	route := ResultsPath(gameID)
	switch phase {
	case model.PhasePretest:
		if err := c.identity.SetPhase(ctx, model.PhaseTraining); err != nil {
			c.logger.Error("failed to advance phase", slog.String("error", err.Error()))
		}
		route = RouteMenu
	case model.PhasePosttest:
		route = RouteMenu
	}

	if c.closed() {
		return model.ErrSessionClosed
	}
	c.mu.Lock()
	c.state = StateTerminal
	c.outcome = OutcomeFinished
	c.notifyLocked()
	c.mu.Unlock()

	c.logger.Info("game finished", slog.Int("game_id", int(gameID)), slog.String("phase", string(phase)))
	c.nav.Navigate(route)
	return nil
}

// currentPhase reads the stored phase, falling back to the session's mode
func (c *Controller) currentPhase(ctx context.Context) model.Phase {
	identity, err := c.identity.Get(ctx)
	if err != nil || identity.Phase == "" {
		return c.opts.Mode
	}
	return identity.Phase
}

// CanAnswer reports whether a guess would be accepted right now
func (c *Controller) CanAnswer() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remainingLocked() == 0 && c.answerableLocked()
}

func (c *Controller) answerableLocked() bool {
	return !c.closed() && c.state == StateActive && c.challenge.HasID() && !c.submitting
}

// remainingLocked is the dwell time left on the current challenge
func (c *Controller) remainingLocked() time.Duration {
	if c.challenge == nil {
		return c.cfg.Dwell
	}
	left := c.cfg.Dwell - c.clock.Now().Sub(c.shownAt)
	if left < 0 {
		return 0
	}
	return left
}

// Submit answers the current challenge, then fetches the next one.
// Submission failures are logged and not retried.
func (c *Controller) Submit(ctx context.Context, guess model.Guess) error {
	if !guess.Valid() {
		return &model.ValidationError{Field: "guess", Message: "must be between 0 and 3"}
	}

	c.mu.Lock()
	switch {
	case c.closed():
		c.mu.Unlock()
		return model.ErrSessionClosed
	case c.state != StateActive || !c.challenge.HasID():
		c.mu.Unlock()
		return model.ErrNoActiveChallenge
	case c.submitting || c.remainingLocked() > 0:
		c.mu.Unlock()
		return model.ErrInputGated
	}
	c.submitting = true
	challengeID := *c.challenge.ID
	c.notifyLocked()
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.submitting = false
		c.notifyLocked()
		c.mu.Unlock()
	}()

	opCtx, done := c.opCtx(ctx)
	err := c.api.SubmitGuess(opCtx, challengeID, guess)
	done()
	if err != nil && !c.closed() {
		c.logger.Warn("guess submission failed",
			slog.Int("challenge_id", int(challengeID)), slog.String("error", err.Error()))
	}

	return c.refresh(ctx)
}

// WaitForInput blocks until a guess can be submitted, the session leaves the active state, or ctx ends
func (c *Controller) WaitForInput(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.closed() {
			c.mu.Unlock()
			return model.ErrSessionClosed
		}
		if c.state != StateActive {
			c.mu.Unlock()
			return model.ErrNoActiveChallenge
		}
		remaining := c.remainingLocked()
		ready := c.answerableLocked()
		changed := c.changed
		c.mu.Unlock()

		if ready && remaining == 0 {
			return nil
		}

		var timer <-chan time.Time
		if ready {
			timer = c.clock.After(remaining)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.life.Done():
			return model.ErrSessionClosed
		case <-changed:
		case <-timer:
		}
	}
}

// Quit abandons the active game. A failed request leaves the session active.
func (c *Controller) Quit(ctx context.Context) error {
	c.mu.Lock()
	if c.closed() {
		c.mu.Unlock()
		return model.ErrSessionClosed
	}
	if c.state != StateActive {
		c.mu.Unlock()
		return model.ErrNoActiveChallenge
	}
	gameID := c.gameID
	completed := 0
	if c.challenge != nil {
		completed = c.challenge.CompletedChallenges
	}
	c.mu.Unlock()

	opCtx, done := c.opCtx(ctx)
	err := c.api.QuitGame(opCtx, gameID)
	done()
	if c.closed() {
		return model.ErrSessionClosed
	}
	if err != nil {
		c.logger.Error("failed to quit game", slog.Int("game_id", int(gameID)), slog.String("error", err.Error()))
		return err
	}

	phase := c.currentPhase(ctx)
	route := ResultsPath(gameID)
	switch {
	case completed == 0:
		route = RouteHome
	case phase.IsTest():
		if err := c.identity.SetPhase(ctx, model.PhaseTraining); err != nil {
			c.logger.Error("failed to reset phase", slog.String("error", err.Error()))
		}
		route = RouteMenu
	}

	c.mu.Lock()
	if phase.IsTest() {
		c.challenge = nil
	}
	c.state = StateTerminal
	c.outcome = OutcomeQuit
	c.notifyLocked()
	c.mu.Unlock()

	c.logger.Info("game quit", slog.Int("game_id", int(gameID)), slog.Int("completed", completed))
	c.nav.Navigate(route)
	return nil
}

// Close cancels in-flight work and waits for background requests to stop.
// Results arriving afterwards are discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	c.cancel()
	c.notifyLocked()
	c.mu.Unlock()
	c.wg.Wait()
}

// fail moves the session to the error outcome
func (c *Controller) fail(err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed() {
		return model.ErrSessionClosed
	}
	c.state = StateTerminal
	c.outcome = OutcomeError
	c.err = err
	c.notifyLocked()
	c.logger.Error("session failed", slog.Int("game_id", int(c.gameID)), slog.String("error", err.Error()))
	return err
}

func (c *Controller) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.notifyLocked()
	c.mu.Unlock()
}

// notifyLocked wakes every WaitForInput caller
func (c *Controller) notifyLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

func (c *Controller) closed() bool {
	return c.life.Err() != nil
}

// opCtx derives a request context that also ends when the controller is closed
func (c *Controller) opCtx(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.life, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
