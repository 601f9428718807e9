package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/biogames-go/internal/dependencies/mocks"
	"github.com/mcoot/biogames-go/internal/model"
	"github.com/mcoot/biogames-go/internal/testutil/fakeapi"
)

type ClientSuite struct {
	suite.Suite
	api    *fakeapi.Server
	server *httptest.Server
	client *Client
	ctx    context.Context
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) SetupTest() {
	s.api = fakeapi.New(mocks.NewMockRandom())
	s.server = httptest.NewServer(s.api)
	s.client = New(s.server.URL+"/", nil)
	s.ctx = context.Background()
}

func (s *ClientSuite) TearDownTest() {
	s.server.Close()
}

func (s *ClientSuite) TestGenerateUserID() {
	resp, err := s.client.GenerateUserID(s.ctx, "alice@ucla.edu")
	s.Require().NoError(err)
	s.True(resp.Success)
	s.NotEmpty(resp.UserID)

	again, err := s.client.GenerateUserID(s.ctx, "alice@ucla.edu")
	s.Require().NoError(err)
	s.False(again.Success)
	s.Equal("Email already registered", again.Message)
}

func (s *ClientSuite) TestValidateUserID() {
	s.api.AddUser("UCLA_1", "", model.ProgressCounters{})

	s.NoError(s.client.ValidateUserID(s.ctx, "UCLA_1", false))

	err := s.client.ValidateUserID(s.ctx, "nobody", false)
	s.ErrorIs(err, model.ErrNotFound)

	var netErr *model.NetworkError
	s.Require().ErrorAs(err, &netErr)
	s.Equal(http.StatusNotFound, netErr.Status)
	s.Equal("User ID not found", netErr.Message)
}

func (s *ClientSuite) TestValidateUserIDTrainingContext() {
	s.NoError(s.client.ValidateUserID(s.ctx, "studyadmin", true))

	reqs := s.api.Requests()
	s.Require().Len(reqs, 1)
	s.Equal("training", reqs[0].Query.Get("context"))
}

func (s *ClientSuite) TestCheckUsernameAndRegister() {
	s.api.AddUser("UCLA_1", "", model.ProgressCounters{})

	check, err := s.client.CheckUsername(s.ctx, "UCLA_1")
	s.Require().NoError(err)
	s.False(check.HasUsername)

	reg, err := s.client.RegisterWithUsername(s.ctx, "UCLA_1", "alice")
	s.Require().NoError(err)
	s.True(reg.Success)
	s.Require().NotNil(reg.Username)
	s.Equal("alice", *reg.Username)

	check, err = s.client.CheckUsername(s.ctx, "UCLA_1")
	s.Require().NoError(err)
	s.True(check.HasUsername)
	s.Equal("alice", *check.Username)
}

func (s *ClientSuite) TestCheckGameType() {
	s.api.AddUser("UCLA_1", "alice", model.ProgressCounters{Pretest: 1, Training: 3})

	progress, err := s.client.CheckGameType(s.ctx, "UCLA_1")
	s.Require().NoError(err)
	s.Equal(model.ProgressCounters{Pretest: 1, Training: 3}, *progress)
}

func (s *ClientSuite) TestCreateGameSendsModeAndCount() {
	core := model.CoreID(77)
	game, err := s.client.CreateGame(s.ctx, CreateGameRequest{
		UserID:        "UCLA_1",
		Mode:          model.PhasePretest,
		NumChallenges: 50,
		InitialCoreID: &core,
	})
	s.Require().NoError(err)
	s.NotZero(game.ID)

	reqs := s.api.Requests()
	s.Require().Len(reqs, 1)
	s.Equal("pretest", reqs[0].Query.Get("mode"))
	s.Equal("50", reqs[0].Query.Get("num_challenges"))

	var body map[string]any
	s.Require().NoError(json.Unmarshal(reqs[0].Body, &body))
	s.Equal("UCLA_1", body["user_id"])
	s.EqualValues(77, body["initial_her2_core_id"])
}

func (s *ClientSuite) TestCreateGameOmitsCountWhenUnset() {
	_, err := s.client.CreateGame(s.ctx, CreateGameRequest{UserID: "UCLA_1", Mode: model.PhaseTraining})
	s.Require().NoError(err)

	reqs := s.api.Requests()
	s.Require().Len(reqs, 1)
	s.False(reqs[0].Query.Has("num_challenges"))
}

func (s *ClientSuite) TestCreateGameConflict() {
	open := s.api.OpenGame("UCLA_1", model.PhaseTraining, 5)

	_, err := s.client.CreateGame(s.ctx, CreateGameRequest{UserID: "UCLA_1", Mode: model.PhaseTraining})

	var conflict *model.ConflictError
	s.Require().ErrorAs(err, &conflict)
	s.Equal(open, conflict.ExistingGameID)
}

func (s *ClientSuite) TestServerMessageIsKept() {
	s.api.Fail(fakeapi.RouteCreateGame, http.StatusInternalServerError, "No HER2 cores found")

	_, err := s.client.CreateGame(s.ctx, CreateGameRequest{UserID: "UCLA_1", Mode: model.PhaseTraining})

	var netErr *model.NetworkError
	s.Require().ErrorAs(err, &netErr)
	s.Equal(http.StatusInternalServerError, netErr.Status)
	s.Equal("No HER2 cores found", netErr.Message)
	s.False(errors.Is(err, model.ErrNotFound))
}

func (s *ClientSuite) TestChallengeFlow() {
	game, err := s.client.CreateGame(s.ctx, CreateGameRequest{UserID: "UCLA_1", Mode: model.PhaseTraining, NumChallenges: 2})
	s.Require().NoError(err)

	first, err := s.client.FetchCurrentChallenge(s.ctx, game.ID)
	s.Require().NoError(err)
	s.Require().True(first.HasID())
	s.Equal(0, first.CompletedChallenges)
	s.Equal(2, first.TotalChallenges)

	next, ok := s.client.PrefetchNext(s.ctx, game.ID, 1)
	s.Require().True(ok)
	s.NotEqual(*first.ID, *next.ID)

	s.Require().NoError(s.client.SubmitGuess(s.ctx, *first.ID, 1))

	second, err := s.client.FetchCurrentChallenge(s.ctx, game.ID)
	s.Require().NoError(err)
	s.Equal(*next.ID, *second.ID)
	s.Equal(1, second.CompletedChallenges)

	_, ok = s.client.PrefetchNext(s.ctx, game.ID, 1)
	s.False(ok, "no challenge after the last one")
}

func (s *ClientSuite) TestFetchCurrentChallengeNotFound() {
	_, err := s.client.FetchCurrentChallenge(s.ctx, 999)
	s.ErrorIs(err, model.ErrNotFound)
}

func (s *ClientSuite) TestTransportFailure() {
	s.server.Close()

	_, err := s.client.FetchCurrentChallenge(s.ctx, 1)

	var netErr *model.NetworkError
	s.Require().ErrorAs(err, &netErr)
	s.Zero(netErr.Status)
	s.Error(netErr.Err)
}

func (s *ClientSuite) TestQuitGame() {
	id := s.api.OpenGame("UCLA_1", model.PhaseTraining, 3)
	s.Require().NoError(s.client.QuitGame(s.ctx, id))

	err := s.client.QuitGame(s.ctx, id)
	var netErr *model.NetworkError
	s.Require().ErrorAs(err, &netErr)
	s.Equal(http.StatusBadRequest, netErr.Status)

	s.ErrorIs(s.client.QuitGame(s.ctx, 999), model.ErrNotFound)
}

func (s *ClientSuite) TestGetGameResults() {
	id := s.api.OpenGame("UCLA_1", model.PhaseTraining, 4)
	s.api.AnswerAll(id)

	game, err := s.client.GetGame(s.ctx, id)
	s.Require().NoError(err)
	s.Require().NotNil(game.Results)
	s.Len(game.Results.Correct, 4)
	s.Require().NotNil(game.TotalPoints)
	s.Equal(20, *game.TotalPoints)
}

func (s *ClientSuite) TestImages() {
	id := s.api.OpenGame("UCLA_1", model.PhaseTraining, 1)
	ch, err := s.client.FetchCurrentChallenge(s.ctx, id)
	s.Require().NoError(err)

	s.Equal(s.server.URL+"/challenges/1/core?mode=training", s.client.ChallengeImageURL(*ch.ID, model.PhaseTraining))
	s.Equal(s.server.URL+"/api/her2_core_images/5", s.client.CoreImageURL(5))

	data, err := s.client.ChallengeImage(s.ctx, *ch.ID, model.PhaseTraining)
	s.Require().NoError(err)
	s.Equal(fakeapi.ImageBytes(*ch.CoreID), data)

	data, err = s.client.CoreImage(s.ctx, 5)
	s.Require().NoError(err)
	s.Equal(fakeapi.ImageBytes(5), data)

	_, err = s.client.CoreImage(s.ctx, 100000)
	s.ErrorIs(err, model.ErrNotFound)
}

func (s *ClientSuite) TestPreviewCoreID() {
	core, err := s.client.PreviewCoreID(s.ctx, model.PhaseTraining)
	s.Require().NoError(err)
	s.Equal(model.CoreID(1), core)
}

func (s *ClientSuite) TestLeaderboard() {
	s.api.AddUser("UCLA_1", "alice", model.ProgressCounters{})
	id := s.api.OpenGame("UCLA_1", model.PhaseTraining, 2)
	s.api.AnswerAll(id)

	board, err := s.client.Leaderboard(s.ctx, id)
	s.Require().NoError(err)
	s.Require().Len(board.Entries, 1)
	s.Equal("alice", board.Entries[0].Username)
	s.Equal(10, board.Entries[0].Score)
}
