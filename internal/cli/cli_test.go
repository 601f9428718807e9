package cli_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/biogames-go/internal/cli"
	"github.com/mcoot/biogames-go/internal/dependencies/mocks"
	"github.com/mcoot/biogames-go/internal/model"
	"github.com/mcoot/biogames-go/internal/testutil/fakeapi"
)

type CLISuite struct {
	suite.Suite
	api    *fakeapi.Server
	server *httptest.Server
	dir    string
}

func TestCLISuite(t *testing.T) {
	suite.Run(t, new(CLISuite))
}

func (s *CLISuite) SetupTest() {
	s.api = fakeapi.New(mocks.NewMockRandom())
	s.server = httptest.NewServer(s.api)
	s.dir = s.T().TempDir()
}

func (s *CLISuite) TearDownTest() {
	s.server.Close()
}

// run executes the CLI in-process with stdin, sharing one session file across calls
func (s *CLISuite) run(stdin string, args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	cmd := cli.NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))

	full := append([]string{
		"--server", s.server.URL,
		"--session-file", filepath.Join(s.dir, "session"),
		"--storage", "file",
		"--data-dir", filepath.Join(s.dir, "data"),
		"--dwell", "1ms",
	}, args...)
	err := cli.Run(cmd, full)
	return stdout.String(), stderr.String(), err
}

// enroll registers alice and picks her username
func (s *CLISuite) enroll() model.UserID {
	stdout, _, err := s.run("", "register", "alice@ucla.edu", "-o", "json")
	s.Require().NoError(err)

	var identity model.Identity
	s.Require().NoError(json.NewDecoder(strings.NewReader(stdout)).Decode(&identity))
	s.Require().NotEmpty(identity.UserID)

	_, _, err = s.run("", "pretest", "--username", "alice")
	s.Require().NoError(err)
	return identity.UserID
}

func gameID(s *CLISuite, pattern, output string) string {
	m := regexp.MustCompile(pattern).FindStringSubmatch(output)
	s.Require().Len(m, 2, "no match for %q in:\n%s", pattern, output)
	return m[1]
}

func (s *CLISuite) TestRegister() {
	stdout, _, err := s.run("", "register", "alice@ucla.edu")
	s.Require().NoError(err)
	s.Contains(stdout, "User ID: UCLA_")
	s.Contains(stdout, "Phase: pretest")
	s.Contains(stdout, "you will need it to sign in")

	_, err = os.Stat(filepath.Join(s.dir, "session"))
	s.NoError(err, "session key is persisted")
}

func (s *CLISuite) TestRegisterRejectsDomain() {
	_, stderr, err := s.run("", "register", "alice@gmail.com")
	s.Require().Error(err)
	s.Contains(stderr, "Please enter a valid @mednet.ucla.edu, @ucla.edu, or @mail.huji.ac.il email address")
	s.Zero(s.api.Count(fakeapi.RouteGenerateUserID))
}

func (s *CLISuite) TestJSONErrorCarriesField() {
	_, stderr, err := s.run("", "register", "alice@gmail.com", "-o", "json")
	s.Require().Error(err)

	var body struct {
		Error map[string]string `json:"error"`
	}
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	s.Require().NoError(json.Unmarshal([]byte(lines[len(lines)-1]), &body))
	s.Equal("email", body.Error["field"])
}

func (s *CLISuite) TestPretestRequiresUsername() {
	_, _, err := s.run("", "register", "alice@ucla.edu")
	s.Require().NoError(err)

	_, _, err = s.run("", "pretest")
	s.Error(err)
}

func (s *CLISuite) TestPlayPretestThenTrain() {
	s.enroll()

	stdout, _, err := s.run(strings.Repeat("2\n", 50), "play")
	s.Require().NoError(err)
	s.Contains(stdout, "Patch 1 of 50")
	s.Contains(stdout, "Patch 50 of 50")
	s.Regexp(`Game \d+ finished`, stdout)
	s.Contains(stdout, "Next: /menu")

	stdout, _, err = s.run("", "status")
	s.Require().NoError(err)
	s.Contains(stdout, "Phase: training")
	s.Contains(stdout, "pre-test 1")

	stdout, _, err = s.run(strings.Repeat("3\n", 20), "play")
	s.Require().NoError(err)
	id := gameID(s, `Game (\d+) finished`, stdout)
	s.Contains(stdout, "Next: /games/"+id+"/results")

	stdout, _, err = s.run("", "results", id)
	s.Require().NoError(err)
	s.Contains(stdout, "Game "+id+" results")
	s.Contains(stdout, "Leaderboard:")
	s.Contains(stdout, "alice")

	stdout, _, err = s.run("", "leaderboard", id, "-o", "json")
	s.Require().NoError(err)
	s.Contains(stdout, `"alice"`)
}

func (s *CLISuite) TestInvalidScoreIsReported() {
	s.enroll()

	_, stderr, err := s.run("7\nfoo\nq\n", "play")
	s.Require().NoError(err)
	s.Contains(stderr, "must be between 0 and 3")
	s.Contains(stderr, "enter 0, 1, 2, 3 or q")
}

func (s *CLISuite) TestQuitBeforeAnsweringGoesHome() {
	s.enroll()

	stdout, _, err := s.run("q\n", "play")
	s.Require().NoError(err)
	s.Regexp(`Game \d+ quit`, stdout)
	s.Contains(stdout, "Next: /\n")
}

func (s *CLISuite) TestEndOfInputLeavesGameOpen() {
	s.enroll()

	stdout, _, err := s.run("1\n", "play")
	s.Require().NoError(err)
	id := gameID(s, `Game (\d+) left open`, stdout)

	stdout, _, err = s.run("", "quit", id)
	s.Require().NoError(err)
	s.Contains(stdout, "Game "+id+" quit")
	s.Contains(stdout, "Next: /menu", "quitting a test resets to the training menu")

	stdout, _, err = s.run("", "status")
	s.Require().NoError(err)
	s.Contains(stdout, "Phase: training")
}

func (s *CLISuite) TestResumeContinuesGame() {
	s.enroll()

	stdout, _, err := s.run("2\n", "play")
	s.Require().NoError(err)
	id := gameID(s, `Game (\d+) left open`, stdout)

	stdout, _, err = s.run(strings.Repeat("2\n", 49), "play", "--resume", id)
	s.Require().NoError(err)
	s.Contains(stdout, "Patch 2 of 50")
	s.NotContains(stdout, "Patch 1 of 50")
	s.Contains(stdout, "Game "+id+" finished")
}

func (s *CLISuite) TestLoginAndLogout() {
	userID := s.enroll()

	_, _, err := s.run("", "logout")
	s.Require().NoError(err)

	_, _, err = s.run("", "status")
	s.ErrorIs(err, model.ErrNotAuthenticated)

	stdout, _, err := s.run("", "login", string(userID))
	s.Require().NoError(err)
	s.Contains(stdout, "Username: alice")
	s.Contains(stdout, "Menu: /pretest/menu", "pre-test is not done yet")
}

func (s *CLISuite) TestLoginFinishedUser() {
	s.api.AddUser("UCLA_9", "bob", model.ProgressCounters{Pretest: 1, Training: 2, Posttest: 1})

	stdout, _, err := s.run("", "login", "UCLA_9", "--mode", "posttest")
	s.Require().NoError(err)
	s.Contains(stdout, "All study phases are complete")
}

func (s *CLISuite) TestPlayFinishedUserFails() {
	s.api.AddUser("UCLA_9", "bob", model.ProgressCounters{Pretest: 1, Training: 2, Posttest: 1})
	_, _, err := s.run("", "login", "UCLA_9", "--mode", "posttest")
	s.Require().NoError(err)

	_, _, err = s.run("", "play")
	s.ErrorIs(err, model.ErrPhaseUnavailable)
	s.Zero(s.api.Count(fakeapi.RouteCreateGame))
}

func (s *CLISuite) TestPreviewSavesImage() {
	s.enroll()
	out := filepath.Join(s.dir, "img", "preview.jpg")

	stdout, _, err := s.run("", "preview", "--save", out)
	s.Require().NoError(err)
	s.Contains(stdout, "Preview core: 1")

	data, err := os.ReadFile(out)
	s.Require().NoError(err)
	s.Equal(fakeapi.ImageBytes(1), data)
}

func (s *CLISuite) TestPlayWithPreviewUsesCore() {
	s.enroll()

	_, _, err := s.run("q\n", "play", "--preview")
	s.Require().NoError(err)

	var create fakeapi.Request
	for _, r := range s.api.Requests() {
		if r.Route == fakeapi.RouteCreateGame {
			create = r
		}
	}
	var body map[string]any
	s.Require().NoError(json.Unmarshal(create.Body, &body))
	s.EqualValues(1, body["initial_her2_core_id"])
}

func (s *CLISuite) TestServerDown() {
	s.server.Close()

	_, stderr, err := s.run("", "register", "alice@ucla.edu")
	s.Require().Error(err)
	s.Contains(stderr, "Error:")
}

func (s *CLISuite) TestBadGameID() {
	_, _, err := s.run("", "results", "abc")
	s.True(model.IsValidation(err))
}

func (s *CLISuite) TestUnknownOutputFormat() {
	_, _, err := s.run("", "status", "-o", "xml")
	s.Error(err)
}

func (s *CLISuite) TestRedisRequiresURL() {
	_, _, err := s.run("", "status", "--storage", "redis")
	s.ErrorContains(err, "--redis-url is required")
}

func (s *CLISuite) TestHealthyServerReceivesRequests() {
	_, _, err := s.run("", "register", "alice@ucla.edu")
	s.Require().NoError(err)

	reqs := s.api.Requests()
	s.Require().NotEmpty(reqs)
	s.Equal(http.MethodPost, reqs[0].Method)
}
