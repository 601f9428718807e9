package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/biogames-go/internal/client"
	"github.com/mcoot/biogames-go/internal/dependencies/mocks"
	"github.com/mcoot/biogames-go/internal/model"
	"github.com/mcoot/biogames-go/internal/services/identity"
	"github.com/mcoot/biogames-go/internal/services/prefetch"
	"github.com/mcoot/biogames-go/internal/storage/memory"
	"github.com/mcoot/biogames-go/internal/testutil"
	"github.com/mcoot/biogames-go/internal/testutil/fakeapi"
)

const testUser model.UserID = "UCLA_0001"

type ControllerSuite struct {
	suite.Suite
	api        *fakeapi.Server
	server     *httptest.Server
	client     *client.Client
	storage    *memory.Storage
	identity   *identity.Service
	clock      *mocks.MockClock
	nav        *Recorder
	cfg        Config
	logs       *testutil.LogBuffer
	controller *Controller
	ctx        context.Context
}

func TestControllerSuite(t *testing.T) {
	suite.Run(t, new(ControllerSuite))
}

func (s *ControllerSuite) SetupTest() {
	s.api = fakeapi.New(mocks.NewMockRandom())
	s.server = httptest.NewServer(s.api)
	s.client = client.New(s.server.URL, nil)
	s.storage = memory.New()
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.identity = identity.New(s.storage, s.clock, "tab-1", nil)
	s.nav = &Recorder{}
	s.cfg = DefaultConfig()
	s.ctx = context.Background()

	s.Require().NoError(s.identity.Set(s.ctx, model.Identity{
		UserID:   testUser,
		Username: "alice",
		Phase:    model.PhaseTraining,
	}))
}

func (s *ControllerSuite) TearDownTest() {
	if s.controller != nil {
		s.controller.Close()
		s.controller = nil
	}
	s.server.Close()
}

func (s *ControllerSuite) newController(opts Options) *Controller {
	logger, logs := testutil.CaptureLogger()
	s.logs = logs
	s.controller = New(Dependencies{
		API:        s.client,
		Identity:   s.identity,
		Clock:      s.clock,
		Prefetcher: prefetch.New(s.storage, s.client, logger),
		Navigator:  s.nav,
		Logger:     logger,
		Config:     s.cfg,
	}, opts)
	return s.controller
}

func (s *ControllerSuite) setPhase(phase model.Phase) {
	s.Require().NoError(s.identity.SetPhase(s.ctx, phase))
}

// answer waits out the dwell and submits a guess
func (s *ControllerSuite) answer(c *Controller, guess model.Guess) {
	s.clock.Advance(s.cfg.Dwell)
	s.Require().NoError(c.Submit(s.ctx, guess))
}

func (s *ControllerSuite) requestsTo(route string) []fakeapi.Request {
	var out []fakeapi.Request
	for _, r := range s.api.Requests() {
		if r.Route == route {
			out = append(out, r)
		}
	}
	return out
}

// Creation

func (s *ControllerSuite) TestStartCreatesGameAndNavigates() {
	c := s.newController(Options{Mode: model.PhaseTraining})

	s.Require().NoError(c.Start(s.ctx, nil))

	view := c.View()
	s.Equal(StateActive, view.State)
	s.Equal(model.GameID(1), view.GameID)
	s.Equal("Patch 1 of 20", view.Progress)
	s.Equal("alice", view.Username)
	s.False(view.ButtonsEnabled)
	s.Equal(5*time.Second, view.DwellRemaining)
	s.Equal(s.client.ChallengeImageURL(1, model.PhaseTraining), view.ImageURL)
	s.Equal([]string{"/game/1"}, s.nav.Routes())

	creates := s.requestsTo(fakeapi.RouteCreateGame)
	s.Require().Len(creates, 1)
	s.Equal("training", creates[0].Query.Get("mode"))
	s.False(creates[0].Query.Has("num_challenges"))
}

func (s *ControllerSuite) TestPretestRequestsFiftyChallenges() {
	s.setPhase(model.PhasePretest)
	c := s.newController(Options{Mode: model.PhasePretest})

	s.Require().NoError(c.Start(s.ctx, nil))

	creates := s.requestsTo(fakeapi.RouteCreateGame)
	s.Require().Len(creates, 1)
	s.Equal("pretest", creates[0].Query.Get("mode"))
	s.Equal("50", creates[0].Query.Get("num_challenges"))
	s.Equal("Patch 1 of 50", c.View().Progress)
	s.Equal([]string{"/pretest/game/1"}, s.nav.Routes())
}

func (s *ControllerSuite) TestStartWithoutIdentity() {
	s.Require().NoError(s.identity.Clear(s.ctx))
	c := s.newController(Options{})

	err := c.Start(s.ctx, nil)

	s.ErrorIs(err, model.ErrNotAuthenticated)
	s.Equal(OutcomeError, c.View().Outcome)
	s.Equal([]string{RouteHome}, s.nav.Routes())
	s.Zero(s.api.Count(fakeapi.RouteCreateGame))
}

func (s *ControllerSuite) TestStartOnlyOnce() {
	c := s.newController(Options{})
	s.Require().NoError(c.Start(s.ctx, nil))

	s.ErrorIs(c.Start(s.ctx, nil), model.ErrSessionStarted)
	s.Equal(1, s.api.Count(fakeapi.RouteCreateGame))
}

func (s *ControllerSuite) TestResumeSkipsCreation() {
	id := s.api.OpenGame(testUser, model.PhaseTraining, 3)
	c := s.newController(Options{})

	s.Require().NoError(c.Start(s.ctx, &id))

	s.Equal(StateActive, c.View().State)
	s.Equal(id, c.View().GameID)
	s.Zero(s.api.Count(fakeapi.RouteCreateGame))
	s.Empty(s.nav.Routes())
}

func (s *ControllerSuite) TestCreateFailureKeepsServerMessage() {
	s.api.Fail(fakeapi.RouteCreateGame, http.StatusInternalServerError, "No HER2 cores found")
	c := s.newController(Options{})

	err := c.Start(s.ctx, nil)

	s.Require().Error(err)
	view := c.View()
	s.Equal(StateTerminal, view.State)
	s.Equal(OutcomeError, view.Outcome)
	s.Contains(view.Error, "No HER2 cores found")
	s.Empty(view.Hint)
}

// Conflict handling

func (s *ControllerSuite) TestConflictQuitsExistingGameThenRetries() {
	open := s.api.OpenGame(testUser, model.PhaseTraining, 3)
	c := s.newController(Options{})

	s.Require().NoError(c.Start(s.ctx, nil))

	quits := s.requestsTo(fakeapi.RouteQuitGame)
	s.Require().Len(quits, 1)
	s.Equal("/games/1/quit", quits[0].Path)
	s.Equal(2, s.api.Count(fakeapi.RouteCreateGame))

	view := c.View()
	s.Equal(StateActive, view.State)
	s.NotEqual(open, view.GameID)
}

func (s *ControllerSuite) TestConflictQuitFailureIsFatal() {
	s.api.Fail(fakeapi.RouteCreateGame, http.StatusBadRequest, `{"error":"open game","existing_game_id":42}`)
	c := s.newController(Options{})

	err := c.Start(s.ctx, nil)

	var fatal *model.FatalSessionError
	s.Require().ErrorAs(err, &fatal)
	s.Equal(model.ReusedIdentifierHint, fatal.Hint)

	quits := s.requestsTo(fakeapi.RouteQuitGame)
	s.Require().Len(quits, 1)
	s.Equal("/games/42/quit", quits[0].Path)
	s.Equal(1, s.api.Count(fakeapi.RouteCreateGame))

	view := c.View()
	s.Equal(OutcomeError, view.Outcome)
	s.Equal(model.ReusedIdentifierHint, view.Hint)
}

func (s *ControllerSuite) TestConflictRetriesOnlyOnce() {
	s.api.OpenGame(testUser, model.PhaseTraining, 3)
	s.api.Fail(fakeapi.RouteCreateGame, http.StatusBadRequest, `{"existing_game_id":1}`)
	s.api.Fail(fakeapi.RouteCreateGame, http.StatusInternalServerError, `{"message":"No HER2 cores found"}`)
	c := s.newController(Options{})

	err := c.Start(s.ctx, nil)

	s.Require().Error(err)
	s.Equal(2, s.api.Count(fakeapi.RouteCreateGame))
	s.Equal(1, s.api.Count(fakeapi.RouteQuitGame))
	s.Equal(OutcomeError, c.View().Outcome)
	s.Contains(c.View().Error, "No HER2 cores found")
}

// Dwell gate

func (s *ControllerSuite) TestDwellGatesAnswers() {
	c := s.newController(Options{})
	s.Require().NoError(c.Start(s.ctx, nil))

	s.False(c.CanAnswer())

	s.clock.Advance(4999 * time.Millisecond)
	s.False(c.CanAnswer())
	s.False(c.View().ButtonsEnabled)
	s.Equal(time.Millisecond, c.View().DwellRemaining)
	s.ErrorIs(c.Submit(s.ctx, 2), model.ErrInputGated)
	s.Zero(s.api.Count(fakeapi.RouteSubmit))

	s.clock.Advance(time.Millisecond)
	s.True(c.CanAnswer())
	s.True(c.View().ButtonsEnabled)
}

func (s *ControllerSuite) TestDwellRestartsForNextChallenge() {
	c := s.newController(Options{})
	s.Require().NoError(c.Start(s.ctx, nil))

	s.answer(c, 1)

	view := c.View()
	s.Equal("Patch 2 of 20", view.Progress)
	s.Equal(2, int(*view.Challenge.ID))
	s.False(c.CanAnswer())

	s.clock.Advance(5 * time.Second)
	s.True(c.CanAnswer())
}

func (s *ControllerSuite) TestSubmitRejectsInvalidGuess() {
	c := s.newController(Options{})
	s.Require().NoError(c.Start(s.ctx, nil))
	s.clock.Advance(5 * time.Second)

	err := c.Submit(s.ctx, 4)

	s.True(model.IsValidation(err))
	s.Zero(s.api.Count(fakeapi.RouteSubmit))
}

func (s *ControllerSuite) TestSubmitBeforeStart() {
	c := s.newController(Options{})
	s.ErrorIs(c.Submit(s.ctx, 1), model.ErrNoActiveChallenge)
}

func (s *ControllerSuite) TestSubmitFailureIsLoggedNotRetried() {
	c := s.newController(Options{})
	s.Require().NoError(c.Start(s.ctx, nil))
	s.api.Fail(fakeapi.RouteSubmit, http.StatusInternalServerError, "")

	s.answer(c, 1)

	s.Equal(1, s.api.Count(fakeapi.RouteSubmit))
	s.True(s.logs.Contains("guess submission failed"))
	view := c.View()
	s.Equal(StateActive, view.State)
	s.Equal(1, int(*view.Challenge.ID))
	s.True(view.ButtonsEnabled, "same challenge keeps its elapsed dwell")
}

func (s *ControllerSuite) TestWaitForInput() {
	c := s.newController(Options{})
	s.Require().NoError(c.Start(s.ctx, nil))

	done := make(chan error, 1)
	go func() { done <- c.WaitForInput(s.ctx) }()

	s.Eventually(func() bool { return s.clock.PendingTimers() == 1 }, time.Second, 5*time.Millisecond)
	select {
	case <-done:
		s.Fail("WaitForInput returned before the dwell elapsed")
	default:
	}

	s.clock.Advance(5 * time.Second)
	select {
	case err := <-done:
		s.NoError(err)
	case <-time.After(time.Second):
		s.Fail("WaitForInput did not return")
	}
}

func (s *ControllerSuite) TestWaitForInputHonoursContext() {
	c := s.newController(Options{})
	s.Require().NoError(c.Start(s.ctx, nil))

	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	s.ErrorIs(c.WaitForInput(ctx), context.Canceled)
}

func (s *ControllerSuite) TestElapsedTime() {
	c := s.newController(Options{})
	s.Require().NoError(c.Start(s.ctx, nil))

	s.clock.Advance(62 * time.Second)
	s.Equal("1m 2s", c.View().Elapsed)
}

// Completion

func (s *ControllerSuite) TestPretestCompletionAdvancesToTraining() {
	s.setPhase(model.PhasePretest)
	s.cfg.NumChallenges = map[model.Phase]int{model.PhasePretest: 2}
	c := s.newController(Options{Mode: model.PhasePretest})
	s.Require().NoError(c.Start(s.ctx, nil))

	s.answer(c, 0)
	s.answer(c, 1)

	view := c.View()
	s.Equal(StateTerminal, view.State)
	s.Equal(OutcomeFinished, view.Outcome)
	s.Equal(RouteMenu, s.nav.Last())

	id, err := s.identity.Get(s.ctx)
	s.Require().NoError(err)
	s.Equal(model.PhaseTraining, id.Phase)
}

func (s *ControllerSuite) TestPosttestCompletionReturnsToMenu() {
	s.setPhase(model.PhasePosttest)
	s.cfg.NumChallenges = map[model.Phase]int{model.PhasePosttest: 1}
	c := s.newController(Options{Mode: model.PhasePosttest})
	s.Require().NoError(c.Start(s.ctx, nil))

	s.answer(c, 3)

	s.Equal(RouteMenu, s.nav.Last())
	id, err := s.identity.Get(s.ctx)
	s.Require().NoError(err)
	s.Equal(model.PhasePosttest, id.Phase)
}

func (s *ControllerSuite) TestTrainingCompletionShowsResults() {
	s.cfg.NumChallenges = map[model.Phase]int{model.PhaseTraining: 2}
	c := s.newController(Options{})
	s.Require().NoError(c.Start(s.ctx, nil))

	s.answer(c, 0)
	s.answer(c, 0)

	s.Equal(OutcomeFinished, c.View().Outcome)
	s.Equal("/games/1/results", s.nav.Last())
	s.ErrorIs(c.Submit(s.ctx, 1), model.ErrNoActiveChallenge)
}

func (s *ControllerSuite) TestResumingCompletedGameFinishes() {
	id := s.api.OpenGame(testUser, model.PhaseTraining, 2)
	s.api.AnswerAll(id)
	c := s.newController(Options{})

	s.Require().NoError(c.Start(s.ctx, &id))

	s.Equal(OutcomeFinished, c.View().Outcome)
	s.Equal(ResultsPath(id), s.nav.Last())
}

// Quit

func (s *ControllerSuite) TestQuitWithoutAnswersGoesHome() {
	c := s.newController(Options{})
	s.Require().NoError(c.Start(s.ctx, nil))

	s.Require().NoError(c.Quit(s.ctx))

	s.Equal(OutcomeQuit, c.View().Outcome)
	s.Equal(RouteHome, s.nav.Last())
}

func (s *ControllerSuite) TestQuitDuringTestResetsToTraining() {
	s.setPhase(model.PhasePosttest)
	c := s.newController(Options{Mode: model.PhasePosttest})
	s.Require().NoError(c.Start(s.ctx, nil))
	s.answer(c, 2)

	s.Require().NoError(c.Quit(s.ctx))

	s.Equal(RouteMenu, s.nav.Last())
	s.Nil(c.View().Challenge)
	id, err := s.identity.Get(s.ctx)
	s.Require().NoError(err)
	s.Equal(model.PhaseTraining, id.Phase)
}

func (s *ControllerSuite) TestQuitDuringTrainingShowsResults() {
	c := s.newController(Options{})
	s.Require().NoError(c.Start(s.ctx, nil))
	s.answer(c, 2)

	s.Require().NoError(c.Quit(s.ctx))

	s.Equal("/games/1/results", s.nav.Last())
	_, _, scored, ok := s.api.Game(1)
	s.True(ok)
	s.True(scored)
}

func (s *ControllerSuite) TestQuitFailureStaysActive() {
	c := s.newController(Options{})
	s.Require().NoError(c.Start(s.ctx, nil))
	s.api.Fail(fakeapi.RouteQuitGame, http.StatusInternalServerError, "")

	s.Error(c.Quit(s.ctx))

	s.Equal(StateActive, c.View().State)
	s.Equal([]string{"/game/1"}, s.nav.Routes())
}

// Errors and cancellation

func (s *ControllerSuite) TestMissingChallengeData() {
	missing := model.GameID(999)
	c := s.newController(Options{})

	err := c.Start(s.ctx, &missing)

	s.ErrorIs(err, model.ErrNotFound)
	s.Equal(OutcomeError, c.View().Outcome)
	s.Contains(c.View().Error, "no challenge data found for game 999")
}

func (s *ControllerSuite) TestChallengeFetchNetworkError() {
	s.api.Fail(fakeapi.RouteChallenge, http.StatusBadGateway, "")
	c := s.newController(Options{})

	err := c.Start(s.ctx, nil)

	var netErr *model.NetworkError
	s.Require().ErrorAs(err, &netErr)
	s.Equal(http.StatusBadGateway, netErr.Status)
	s.False(errors.Is(err, model.ErrNotFound))
}

func (s *ControllerSuite) TestCloseDiscardsStaleResults() {
	id := s.api.OpenGame(testUser, model.PhaseTraining, 3)
	release := s.api.Hold(fakeapi.RouteChallenge)
	defer release()
	c := s.newController(Options{})

	done := make(chan error, 1)
	go func() { done <- c.Start(s.ctx, &id) }()
	s.Eventually(func() bool { return s.api.Count(fakeapi.RouteChallenge) == 1 }, time.Second, 5*time.Millisecond)

	c.Close()
	release()

	select {
	case err := <-done:
		s.ErrorIs(err, model.ErrSessionClosed)
	case <-time.After(2 * time.Second):
		s.Fail("Start did not return after Close")
	}

	view := c.View()
	s.Nil(view.Challenge)
	s.Empty(view.Error)
	s.ErrorIs(c.Submit(s.ctx, 1), model.ErrSessionClosed)
	s.ErrorIs(c.Quit(s.ctx), model.ErrSessionClosed)
}

// Images

func (s *ControllerSuite) TestPrefetchWarmsNextImage() {
	c := s.newController(Options{})
	s.Require().NoError(c.Start(s.ctx, nil))

	next := s.client.ChallengeImageURL(2, model.PhaseTraining)
	s.Eventually(func() bool {
		has, err := s.storage.HasImage(s.ctx, next)
		return err == nil && has
	}, time.Second, 5*time.Millisecond)
}

func (s *ControllerSuite) TestInitialCorePreview() {
	s.cfg.PrefetchOffset = 0
	core := model.CoreID(77)
	c := s.newController(Options{InitialCoreID: &core})
	s.Require().NoError(c.Start(s.ctx, nil))

	s.Equal(s.client.CoreImageURL(77), c.View().ImageURL)

	pinged := func() int {
		n := 0
		for _, r := range s.requestsTo(fakeapi.RouteChallengeCore) {
			if r.Path == "/challenges/1/core" {
				n++
			}
		}
		return n
	}
	s.Eventually(func() bool { return pinged() == 1 }, time.Second, 5*time.Millisecond)

	s.answer(c, 1)
	s.Equal(s.client.ChallengeImageURL(2, model.PhaseTraining), c.View().ImageURL)
	c.Close()
	s.Equal(1, pinged())
}
