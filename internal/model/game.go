package model

import (
	"strings"

	"github.com/sakif/schoolquest/internal/missionid"
)

// Game identifies one of the mini-games. Each game owns its simulation state
// client-side and reports one final score.
type Game string

const (
	GameRunner    Game = "runner"
	GameTetris    Game = "tetris"
	GameShooter   Game = "shooter"
	GameFighter   Game = "fighter"
	GameTower     Game = "tower"
	GameDiscovery Game = "discovery"
)

// Games lists every known game in display order.
var Games = []Game{GameRunner, GameTetris, GameShooter, GameFighter, GameTower, GameDiscovery}

// ParseGame accepts a game name in any case.
func ParseGame(s string) (Game, bool) {
	g := Game(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Games {
		if g == known {
			return g, true
		}
	}
	return "", false
}

// Tag is the human-readable tag hashed into the game's mission ID, e.g. "RUNNER".
func (g Game) Tag() string {
	return strings.ToUpper(string(g))
}

// MissionID is the deterministic mission identifier of the game.
func (g Game) MissionID() string {
	return missionid.FromString(g.Tag())
}
