package session

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mcoot/biogames-go/internal/model"
)

// Client routes the session can navigate to
const (
	RouteHome         = "/"
	RouteMenu         = "/menu"
	RoutePretestMenu  = "/pretest/menu"
	RoutePosttestMenu = "/posttest/menu"
	RouteIntroduction = "/introduction"
)

// GamePath is the canonical path of a game: /game/:id for training, /<mode>/game/:id for tests
func GamePath(mode model.Phase, id model.GameID) string {
	if mode.IsTest() {
		return fmt.Sprintf("/%s/game/%d", mode, id)
	}
	return fmt.Sprintf("/game/%d", id)
}

// ResultsPath is the results view of a game
func ResultsPath(id model.GameID) string {
	return fmt.Sprintf("/games/%d/results", id)
}

// MenuPath is the menu a user in phase should land on
func MenuPath(phase model.Phase) string {
	switch phase {
	case model.PhasePretest:
		return RoutePretestMenu
	case model.PhasePosttest:
		return RoutePosttestMenu
	default:
		return RouteMenu
	}
}

// ParseGamePath is the inverse of GamePath
func ParseGamePath(path string) (model.Phase, model.GameID, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	mode := model.PhaseTraining
	switch {
	case len(parts) == 2 && parts[0] == "game":
	case len(parts) == 3 && parts[1] == "game":
		m, err := model.ParsePhase(parts[0])
		if err != nil || !m.IsTest() {
			return "", 0, false
		}
		mode = m
		parts = parts[1:]
	default:
		return "", 0, false
	}

	id, err := strconv.Atoi(parts[1])
	if err != nil || id <= 0 {
		return "", 0, false
	}
	return mode, model.GameID(id), true
}

// ParseResultsPath extracts the game id from a results path
func ParseResultsPath(path string) (model.GameID, bool) {
	var id int
	if _, err := fmt.Sscanf(path, "/games/%d/results", &id); err != nil || id <= 0 {
		return 0, false
	}
	return model.GameID(id), ResultsPath(model.GameID(id)) == path
}
