package runner

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds every gameplay-balance number of the runner. Units are logical
// pixels and frames (the loop is designed for 60 frames per second).
//
// A YAML file only needs the keys it overrides; see LoadConfig.
type Config struct {
	Width     float64       `yaml:"width"`
	GroundY   float64       `yaml:"ground_y"`
	HitMargin float64       `yaml:"hit_margin"`
	Player    PlayerConfig  `yaml:"player"`
	Physics   PhysicsConfig `yaml:"physics"`
	Speed     SpeedConfig   `yaml:"speed"`
	Obstacles ObstacleSpawn `yaml:"obstacles"`
	Letters   LetterSpawn   `yaml:"letters"`
	Scoring   ScoringConfig `yaml:"scoring"`
}

type PlayerConfig struct {
	X      float64 `yaml:"x"`
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

type PhysicsConfig struct {
	Gravity      float64 `yaml:"gravity"`
	JumpVelocity float64 `yaml:"jump_velocity"`
	MaxJumps     int     `yaml:"max_jumps"`
}

// SpeedConfig describes the piecewise speed ramp: the speed rises by Step
// every Every units of distance, capped at Max.
type SpeedConfig struct {
	Base  float64 `yaml:"base"`
	Step  float64 `yaml:"step"`
	Every float64 `yaml:"every"`
	Max   float64 `yaml:"max"`
}

// ObstacleSpawn spawns one obstacle when more than MinGap+rand[0,Jitter]
// frames have passed since the previous one.
type ObstacleSpawn struct {
	MinGap   int               `yaml:"min_gap"`
	Jitter   int               `yaml:"jitter"`
	Variants []ObstacleVariant `yaml:"variants"`
}

// ObstacleVariant differs only in its hit-box.
type ObstacleVariant struct {
	Name   string  `yaml:"name"`
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

// LetterSpawn places collectible letters with their centre MinLift..MaxLift
// above the ground.
type LetterSpawn struct {
	MinGap  int     `yaml:"min_gap"`
	Jitter  int     `yaml:"jitter"`
	Radius  float64 `yaml:"radius"`
	MinLift float64 `yaml:"min_lift"`
	MaxLift float64 `yaml:"max_lift"`
}

type ScoringConfig struct {
	DistanceDivisor float64 `yaml:"distance_divisor"`
	LetterPoints    int     `yaml:"letter_points"`
}

// DefaultConfig returns the balance the game ships with.
func DefaultConfig() Config {
	return Config{
		Width:     800,
		GroundY:   260,
		HitMargin: 6,
		Player:    PlayerConfig{X: 80, Width: 36, Height: 48},
		Physics:   PhysicsConfig{Gravity: 0.9, JumpVelocity: -15, MaxJumps: 2},
		Speed:     SpeedConfig{Base: 6, Step: 1, Every: 1000, Max: 14},
		Obstacles: ObstacleSpawn{
			MinGap: 70,
			Jitter: 70,
			Variants: []ObstacleVariant{
				{Name: "crate", Width: 30, Height: 40},
				{Name: "locker", Width: 30, Height: 62},
			},
		},
		Letters: LetterSpawn{MinGap: 100, Jitter: 120, Radius: 14, MinLift: 60, MaxLift: 140},
		Scoring: ScoringConfig{DistanceDivisor: 10, LetterPoints: 50},
	}
}

// LoadConfig reads a YAML file over DefaultConfig. An empty path returns the
// defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("runner: reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("runner: parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the loop cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Width <= 0 || c.GroundY <= 0:
		return fmt.Errorf("runner: width and ground_y must be positive")
	case c.Player.Width <= 0 || c.Player.Height <= 0:
		return fmt.Errorf("runner: player size must be positive")
	case c.Physics.Gravity <= 0 || c.Physics.JumpVelocity >= 0:
		return fmt.Errorf("runner: gravity must be positive and jump_velocity negative")
	case c.Physics.MaxJumps < 1:
		return fmt.Errorf("runner: max_jumps must be at least 1")
	case c.Speed.Base <= 0 || c.Speed.Max < c.Speed.Base || c.Speed.Every <= 0:
		return fmt.Errorf("runner: invalid speed ramp")
	case c.Obstacles.MinGap < 1 || c.Obstacles.Jitter < 0 || len(c.Obstacles.Variants) == 0:
		return fmt.Errorf("runner: invalid obstacle spawn settings")
	case c.Letters.MinGap < 1 || c.Letters.Jitter < 0 || c.Letters.Radius <= 0 || c.Letters.MaxLift < c.Letters.MinLift:
		return fmt.Errorf("runner: invalid letter spawn settings")
	case c.Scoring.DistanceDivisor <= 0 || c.Scoring.LetterPoints < 0:
		return fmt.Errorf("runner: invalid scoring")
	}
	return nil
}

// SpeedAt is the ramp value for the distance travelled so far.
func (s SpeedConfig) SpeedAt(distance float64) float64 {
	v := s.Base + s.Step*math.Floor(distance/s.Every)
	return math.Min(v, s.Max)
}

// Score is floor(distance/DistanceDivisor) + collected*LetterPoints.
func (s ScoringConfig) Score(distance float64, collected int) int {
	if distance < 0 {
		distance = 0
	}
	if collected < 0 {
		collected = 0
	}
	return int(math.Floor(distance/s.DistanceDivisor)) + collected*s.LetterPoints
}

// Score applies the default scoring rule.
func Score(distance float64, collected int) int {
	return DefaultConfig().Scoring.Score(distance, collected)
}
