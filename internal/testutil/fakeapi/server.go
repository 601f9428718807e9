// Package fakeapi is an in-memory stand-in for the remote scoring API used by tests.
package fakeapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/mcoot/biogames-go/internal/dependencies/random"
	"github.com/mcoot/biogames-go/internal/model"
)

// Route names, usable with Fail, Hold and Count
const (
	RouteGenerateUserID = "generate_user_id"
	RouteValidate       = "validate_username"
	RouteCheckUsername  = "check_username"
	RouteCheckGameType  = "check_game_type"
	RouteRegister       = "register_with_username"
	RouteCreateGame     = "create_game"
	RouteQuitGame       = "quit_game"
	RouteGetGame        = "get_game"
	RouteChallenge      = "current_challenge"
	RouteSubmit         = "submit_challenge"
	RouteChallengeCore  = "challenge_core"
	RouteCoreImage      = "core_image"
	RouteLeaderboard    = "leaderboard"
	RoutePreview        = "preview_core_id"
)

const (
	trainingChallenges = 20
	testChallenges     = 50
	coreCount          = 120
)

// confusion is indexed [guess][truth]
var confusion = [4][4]int{
	{5, -2, -3, -5},
	{-1, 5, -2, -3},
	{-2, -1, 5, -1},
	{-4, -2, -1, 5},
}

// Points scores a guess against the true HER2 score
func Points(guess model.Guess, truth int) int {
	if !guess.Valid() || truth < 0 || truth > 3 {
		return -5
	}
	return confusion[guess][truth]
}

// TruthFor is the true HER2 score the fake assigns to a core
func TruthFor(core model.CoreID) int {
	return int(core) % 4
}

// Request is a recorded call
type Request struct {
	Route  string
	Method string
	Path   string
	Query  url.Values
	Body   []byte
}

type failure struct {
	status int
	body   string
}

type user struct {
	id       model.UserID
	email    string
	username string
}

type challenge struct {
	id        model.ChallengeID
	gameID    model.GameID
	coreID    model.CoreID
	guess     *model.Guess
	points    int
	startedAt time.Time
	seconds   float64
}

type game struct {
	id         model.GameID
	owner      model.UserID
	mode       model.Phase
	challenges []*challenge
	scored     bool
	score      int
	timeMs     int
}

// Server is a fake remote API
type Server struct {
	mu     sync.Mutex
	router *mux.Router
	rnd    random.Random
	now    func() time.Time

	users      map[model.UserID]*user
	games      map[model.GameID]*game
	challenges map[model.ChallengeID]*challenge
	nextGame   model.GameID
	nextChal   model.ChallengeID
	nextUser   int

	requests []Request
	failures map[string][]failure
	holds    map[string]chan struct{}
}

// New creates a fake API. Challenge cores are drawn with rnd.
func New(rnd random.Random) *Server {
	s := &Server{
		rnd:        rnd,
		now:        time.Now,
		users:      make(map[model.UserID]*user),
		games:      make(map[model.GameID]*game),
		challenges: make(map[model.ChallengeID]*challenge),
		nextGame:   1,
		nextChal:   1,
		failures:   make(map[string][]failure),
		holds:      make(map[string]chan struct{}),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.intercept)

	r.HandleFunc("/generate-user-id", s.generateUserID).Methods(http.MethodPost).Name(RouteGenerateUserID)
	r.HandleFunc("/validate-username/{id}", s.validateUsername).Methods(http.MethodGet).Name(RouteValidate)
	r.HandleFunc("/check-username/{id}", s.checkUsername).Methods(http.MethodGet).Name(RouteCheckUsername)
	r.HandleFunc("/check-game-type/{id}", s.checkGameType).Methods(http.MethodGet).Name(RouteCheckGameType)
	r.HandleFunc("/register-with-username", s.registerWithUsername).Methods(http.MethodPost).Name(RouteRegister)
	r.HandleFunc("/games", s.createGame).Methods(http.MethodPost).Name(RouteCreateGame)
	r.HandleFunc("/games/{id:[0-9]+}", s.getGame).Methods(http.MethodGet).Name(RouteGetGame)
	r.HandleFunc("/games/{id:[0-9]+}/quit", s.quitGame).Methods(http.MethodPost).Name(RouteQuitGame)
	r.HandleFunc("/games/{id:[0-9]+}/challenge", s.currentChallenge).Methods(http.MethodGet).Name(RouteChallenge)
	r.HandleFunc("/challenges/{id:[0-9]+}", s.submitChallenge).Methods(http.MethodPost).Name(RouteSubmit)
	r.HandleFunc("/challenges/{id:[0-9]+}/core", s.challengeCore).Methods(http.MethodGet).Name(RouteChallengeCore)
	r.HandleFunc("/api/her2_core_images/{id:[0-9]+}", s.coreImage).Methods(http.MethodGet).Name(RouteCoreImage)
	r.HandleFunc("/leaderboard", s.leaderboard).Methods(http.MethodGet).Name(RouteLeaderboard)
	r.HandleFunc("/api/preview_core_id", s.previewCoreID).Methods(http.MethodGet).Name(RoutePreview)
	return r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// intercept records requests and applies injected failures and holds
func (s *Server) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := ""
		if route := mux.CurrentRoute(r); route != nil {
			name = route.GetName()
		}

		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(strings.NewReader(string(body)))

		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Route:  name,
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Body:   body,
		})
		var injected *failure
		if queue := s.failures[name]; len(queue) > 0 {
			injected = &queue[0]
			s.failures[name] = queue[1:]
		}
		hold := s.holds[name]
		s.mu.Unlock()

		if hold != nil {
			select {
			case <-hold:
			case <-r.Context().Done():
				return
			}
		}

		if injected != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(injected.status)
			_, _ = w.Write([]byte(injected.body))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Fail makes the next request to route respond with status and body
func (s *Server) Fail(route string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = append(s.failures[route], failure{status: status, body: body})
}

// Hold blocks requests to route until the returned release func is called
func (s *Server) Hold(route string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.holds[route] = ch
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.holds, route)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Requests returns every recorded request in order
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Count returns the number of requests made to route
func (s *Server) Count(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r.Route == route {
			n++
		}
	}
	return n
}

// AddUser registers a user directly, with optional pre-existing completed games per phase
func (s *Server) AddUser(id model.UserID, username string, progress model.ProgressCounters) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = &user{id: id, username: username}

	seed := func(mode model.Phase, n int) {
		for i := 0; i < n; i++ {
			g := &game{id: s.nextGame, owner: id, mode: mode, scored: true}
			s.games[g.id] = g
			s.nextGame++
		}
	}
	seed(model.PhasePretest, progress.Pretest)
	seed(model.PhaseTraining, progress.Training)
	seed(model.PhasePosttest, progress.Posttest)
}

// OpenGame creates an unscored game for a user, simulating a game left open elsewhere
func (s *Server) OpenGame(owner model.UserID, mode model.Phase, challenges int) model.GameID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createGameLocked(owner, mode, challenges, nil).id
}

// AnswerAll submits a correct guess for every open challenge in a game
func (s *Server) AnswerAll(id model.GameID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.games[id]
	if g == nil {
		return
	}
	for _, c := range g.challenges {
		if c.guess == nil {
			guess := model.Guess(TruthFor(c.coreID))
			s.answerLocked(g, c, guess)
		}
	}
}

// Game reports a game's state: completed challenges, total challenges and whether it was scored
func (s *Server) Game(id model.GameID) (completed, total int, scored bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.games[id]
	if g == nil {
		return 0, 0, false, false
	}
	return countAnswered(g), len(g.challenges), g.scored, true
}

// Handlers

func (s *Server) generateUserID(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email is required"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.email == req.Email {
			writeJSON(w, http.StatusOK, map[string]any{
				"success": false, "user_id": "", "message": "Email already registered",
			})
			return
		}
	}

	s.nextUser++
	id := model.UserID(fmt.Sprintf("UCLA_%04d", s.nextUser))
	s.users[id] = &user{id: id, email: req.Email}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true, "user_id": id, "message": "User ID generated",
	})
}

func (s *Server) validateUsername(w http.ResponseWriter, r *http.Request) {
	id := model.UserID(mux.Vars(r)["id"])
	s.mu.Lock()
	_, ok := s.users[id]
	s.mu.Unlock()

	// Admin ids are accepted for training without registration
	if !ok && !(r.URL.Query().Get("context") == "training" && strings.HasSuffix(string(id), "admin")) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "User ID not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"user_id": string(id)})
}

func (s *Server) checkUsername(w http.ResponseWriter, r *http.Request) {
	id := model.UserID(mux.Vars(r)["id"])
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok || u.username == "" {
		writeJSON(w, http.StatusOK, map[string]any{"has_username": false, "username": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"has_username": true, "username": u.username})
}

func (s *Server) checkGameType(w http.ResponseWriter, r *http.Request) {
	id := model.UserID(mux.Vars(r)["id"])
	s.mu.Lock()
	defer s.mu.Unlock()

	var counts model.ProgressCounters
	for _, g := range s.games {
		if g.owner != id {
			continue
		}
		switch g.mode {
		case model.PhasePretest:
			counts.Pretest++
		case model.PhaseTraining:
			counts.Training++
		case model.PhasePosttest:
			counts.Posttest++
		}
	}
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) registerWithUsername(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID   model.UserID `json:"user_id"`
		Username string       `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "username is required"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[req.UserID]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "User ID not found"})
		return
	}
	u.username = req.Username
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true, "user_id": u.id, "username": u.username, "message": "Username registered",
	})
}

func (s *Server) createGame(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID        model.UserID  `json:"user_id"`
		InitialCoreID *model.CoreID `json:"initial_her2_core_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || len(req.UserID) > 32 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Must be between 1 and 32 characters"})
		return
	}

	mode := model.Phase(r.URL.Query().Get("mode"))
	if mode == "" {
		mode = model.PhaseTraining
	}
	total := trainingChallenges
	if mode.IsTest() {
		total = testChallenges
	}
	if n, err := strconv.Atoi(r.URL.Query().Get("num_challenges")); err == nil && n > 0 {
		total = n
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.games {
		if g.owner == req.UserID && !g.scored {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":            "User already has an open game",
				"existing_game_id": g.id,
			})
			return
		}
	}

	g := s.createGameLocked(req.UserID, mode, total, req.InitialCoreID)
	writeJSON(w, http.StatusOK, gameResponse(g))
}

func (s *Server) createGameLocked(owner model.UserID, mode model.Phase, total int, initial *model.CoreID) *game {
	pool := make([]int, 0, coreCount)
	for i := 1; i <= coreCount; i++ {
		if initial != nil && i == int(*initial) {
			continue
		}
		pool = append(pool, i)
	}

	cores := s.rnd.Sample(pool, total)
	if initial != nil && len(cores) > 0 {
		cores = append([]int{int(*initial)}, cores[:len(cores)-1]...)
	}

	g := &game{id: s.nextGame, owner: owner, mode: mode}
	s.nextGame++
	for _, core := range cores {
		c := &challenge{id: s.nextChal, gameID: g.id, coreID: model.CoreID(core)}
		s.nextChal++
		s.challenges[c.id] = c
		g.challenges = append(g.challenges, c)
	}
	s.games[g.id] = g
	return g
}

func (s *Server) gameFromPath(w http.ResponseWriter, r *http.Request) *game {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])
	g := s.games[model.GameID(id)]
	if g == nil {
		w.WriteHeader(http.StatusNotFound)
	}
	return g
}

func (s *Server) getGame(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.gameFromPath(w, r)
	if g == nil {
		return
	}
	writeJSON(w, http.StatusOK, gameResponse(g))
}

func (s *Server) quitGame(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.gameFromPath(w, r)
	if g == nil {
		return
	}
	if g.scored {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	answered := g.challenges[:0]
	for _, c := range g.challenges {
		if c.guess != nil {
			answered = append(answered, c)
		} else {
			delete(s.challenges, c.id)
		}
	}
	g.challenges = answered
	s.scoreLocked(g)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) currentChallenge(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.gameFromPath(w, r)
	if g == nil {
		return
	}

	skip, _ := strconv.Atoi(r.URL.Query().Get("completed_count"))
	resp := model.Challenge{
		CompletedChallenges: countAnswered(g),
		TotalChallenges:     len(g.challenges),
	}
	for _, c := range g.challenges {
		if c.guess != nil {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		id, core := c.id, c.coreID
		resp.ID, resp.CoreID = &id, &core
		break
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) submitChallenge(w http.ResponseWriter, r *http.Request) {
	var req model.GuessSubmission
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.Guess.Valid() {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	id, _ := strconv.Atoi(mux.Vars(r)["id"])
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.challenges[model.ChallengeID(id)]
	if c == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if c.guess != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.answerLocked(s.games[c.gameID], c, req.Guess)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) answerLocked(g *game, c *challenge, guess model.Guess) {
	c.guess = &guess
	c.points = Points(guess, TruthFor(c.coreID))
	if !c.startedAt.IsZero() {
		c.seconds = s.now().Sub(c.startedAt).Seconds()
	}
	if countAnswered(g) == len(g.challenges) {
		s.scoreLocked(g)
	}
}

func (s *Server) scoreLocked(g *game) {
	g.scored = true
	g.score, g.timeMs = 0, 0
	for _, c := range g.challenges {
		if c.guess != nil {
			g.score += c.points
			g.timeMs += int(c.seconds * 1000)
		}
	}
}

func (s *Server) challengeCore(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])
	s.mu.Lock()
	c := s.challenges[model.ChallengeID(id)]
	if c != nil && c.startedAt.IsZero() {
		c.startedAt = s.now()
	}
	s.mu.Unlock()

	if c == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeImage(w, c.coreID)
}

func (s *Server) coreImage(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])
	if id < 1 || id > coreCount {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeImage(w, model.CoreID(id))
}

func (s *Server) leaderboard(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type agg struct{ score, time, n int }
	byUser := make(map[string]*agg)
	for _, g := range s.games {
		if g.mode != model.PhaseTraining || !g.scored || len(g.challenges) == 0 {
			continue
		}
		name := string(g.owner)
		if u := s.users[g.owner]; u != nil && u.username != "" {
			name = u.username
		}
		a := byUser[name]
		if a == nil {
			a = &agg{}
			byUser[name] = a
		}
		a.score += g.score
		a.time += g.timeMs
		a.n++
	}

	entries := make([]model.LeaderboardEntry, 0, len(byUser))
	for name, a := range byUser {
		entries = append(entries, model.LeaderboardEntry{
			Username:    name,
			Score:       a.score / a.n,
			TimeTakenMs: a.time / a.n,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Username < entries[j].Username
	})
	writeJSON(w, http.StatusOK, model.Leaderboard{Entries: entries})
}

func (s *Server) previewCoreID(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	core := s.rnd.Intn(coreCount) + 1
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]int{"her2_core_id": core})
}

// Helpers

func countAnswered(g *game) int {
	n := 0
	for _, c := range g.challenges {
		if c.guess != nil {
			n++
		}
	}
	return n
}

func gameResponse(g *game) model.GameSummary {
	resp := model.GameSummary{ID: g.id, User: string(g.owner)}
	if !g.scored {
		return resp
	}

	results := &model.GameResults{}
	for _, c := range g.challenges {
		if c.guess == nil {
			continue
		}
		entry := model.ChallengeResult{
			ChallengeID:  c.id,
			Guess:        *c.guess,
			CorrectScore: TruthFor(c.coreID),
			Seconds:      c.seconds,
			Points:       c.points,
		}
		switch {
		case c.points == 5:
			results.Correct = append(results.Correct, entry)
		case c.points == -1:
			results.MildMistakes = append(results.MildMistakes, entry)
		case c.points == -2:
			results.ModerateMistakes = append(results.ModerateMistakes, entry)
		default:
			results.SevereMistakes = append(results.SevereMistakes, entry)
		}
	}
	total := g.score
	resp.Results = results
	resp.TotalPoints = &total
	return resp
}

// ImageBytes is the body served for a core image
func ImageBytes(core model.CoreID) []byte {
	return []byte(fmt.Sprintf("core-%d", core))
}

func writeImage(w http.ResponseWriter, core model.CoreID) {
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(ImageBytes(core))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
