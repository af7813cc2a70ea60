// Package runner implements the endless-runner mini-game as a headless,
// deterministic simulation.
//
// One Sim exists per game session and is owned by whatever drives the frame
// loop (the terminal renderer, or Replay on the server). Nothing here keeps
// package-level mutable state, and all randomness comes from the seed passed
// to Start, so (seed, jump frames) fully determines a run.
package runner

import (
	"errors"
	"math"
	"math/rand/v2"
	"slices"
)

// State is the game's state machine: menu -> playing -> over -> menu.
type State int

const (
	StateMenu State = iota
	StatePlaying
	StateOver
)

func (s State) String() string {
	switch s {
	case StateMenu:
		return "menu"
	case StatePlaying:
		return "playing"
	case StateOver:
		return "over"
	}
	return "unknown"
}

var (
	ErrNotInMenu     = errors.New("runner: a run can only start from the menu")
	ErrUnknownAvatar = errors.New("runner: unknown avatar")
)

// StepResult reports what happened during one frame.
type StepResult struct {
	Collected int
	Over      bool
}

// Sim is the full simulation state of one session.
type Sim struct {
	cfg Config
	rng *rand.Rand

	state  State
	avatar string
	seed   uint64

	frame     int
	distance  float64
	speed     float64
	collected int

	player    Player
	obstacles []Obstacle
	letters   []Letter

	sinceObstacle, obstacleGap int
	sinceLetter, letterGap     int

	jumps []int
}

// New returns a simulation sitting in the menu.
func New(cfg Config) *Sim {
	return &Sim{cfg: cfg, state: StateMenu}
}

// Start selects an avatar and begins a fresh run. Every counter and entity
// from a previous run is discarded.
func (s *Sim) Start(avatar string, seed uint64) error {
	if s.state != StateMenu {
		return ErrNotInMenu
	}
	if !slices.Contains(Avatars, avatar) {
		return ErrUnknownAvatar
	}

	*s = Sim{
		cfg:    s.cfg,
		rng:    rand.New(rand.NewPCG(seed, seed^0x5851f42d4c957f2d)),
		state:  StatePlaying,
		avatar: avatar,
		seed:   seed,
		speed:  s.cfg.Speed.Base,
		player: Player{Y: s.cfg.GroundY - s.cfg.Player.Height},
	}
	s.obstacleGap = s.gap(s.cfg.Obstacles.MinGap, s.cfg.Obstacles.Jitter)
	s.letterGap = s.gap(s.cfg.Letters.MinGap, s.cfg.Letters.Jitter)
	return nil
}

// Reset returns to the menu from any state.
func (s *Sim) Reset() {
	s.state = StateMenu
}

// Jump applies a jump impulse if the avatar has one left. Two impulses are
// available per airtime; touching the ground restores them.
func (s *Sim) Jump() bool {
	if s.state != StatePlaying || s.player.JumpsUsed >= s.cfg.Physics.MaxJumps {
		return false
	}
	s.player.VY = s.cfg.Physics.JumpVelocity
	s.player.JumpsUsed++
	s.jumps = append(s.jumps, s.frame)
	return true
}

// Step advances the simulation by one frame. It does nothing outside the
// playing state.
func (s *Sim) Step() StepResult {
	var res StepResult
	if s.state != StatePlaying {
		return res
	}
	s.frame++

	s.distance += s.speed
	s.speed = s.cfg.Speed.SpeedAt(s.distance)

	s.spawn()
	s.integrate()

	for i := range s.obstacles {
		s.obstacles[i].X -= s.speed
	}
	for i := range s.letters {
		s.letters[i].X -= s.speed
	}

	if s.hitObstacle() {
		s.state = StateOver
		res.Over = true
		return res
	}

	res.Collected = s.collect()
	s.cull()
	return res
}

func (s *Sim) spawn() {
	s.sinceObstacle++
	if s.sinceObstacle > s.obstacleGap {
		v := s.rng.IntN(len(s.cfg.Obstacles.Variants))
		variant := s.cfg.Obstacles.Variants[v]
		s.obstacles = append(s.obstacles, Obstacle{
			X:       s.cfg.Width,
			Variant: v,
			Width:   variant.Width,
			Height:  variant.Height,
		})
		s.sinceObstacle = 0
		s.obstacleGap = s.gap(s.cfg.Obstacles.MinGap, s.cfg.Obstacles.Jitter)
	}

	s.sinceLetter++
	if s.sinceLetter > s.letterGap {
		lc := s.cfg.Letters
		lift := lc.MinLift + s.rng.Float64()*(lc.MaxLift-lc.MinLift)
		s.letters = append(s.letters, Letter{
			X:      s.cfg.Width + lc.Radius,
			Y:      s.cfg.GroundY - lift,
			Symbol: s.rng.IntN(len(Alphabet)),
		})
		s.sinceLetter = 0
		s.letterGap = s.gap(lc.MinGap, lc.Jitter)
	}
}

// integrate applies gravity and clamps the avatar to the ground.
func (s *Sim) integrate() {
	p := &s.player
	p.VY += s.cfg.Physics.Gravity
	p.Y += p.VY
	if ground := s.cfg.GroundY - s.cfg.Player.Height; p.Y >= ground {
		p.Y = ground
		p.VY = 0
		p.JumpsUsed = 0
	}
}

func (s *Sim) hitObstacle() bool {
	box := s.PlayerRect().Inset(s.cfg.HitMargin)
	for _, o := range s.obstacles {
		if box.Overlaps(s.ObstacleRect(o)) {
			return true
		}
	}
	return false
}

// collect flags every letter touching the avatar. A flagged letter is never
// counted again, even if it still overlaps on later frames.
func (s *Sim) collect() int {
	pc := s.cfg.Player
	cx := pc.X + pc.Width/2
	cy := s.player.Y + pc.Height/2
	reach := math.Min(pc.Width, pc.Height)/2 + s.cfg.Letters.Radius

	n := 0
	for i := range s.letters {
		l := &s.letters[i]
		if l.Collected {
			continue
		}
		dx, dy := l.X-cx, l.Y-cy
		if dx*dx+dy*dy <= reach*reach {
			l.Collected = true
			s.collected++
			n++
		}
	}
	return n
}

// cull drops entities that scrolled past the left edge and collected letters.
func (s *Sim) cull() {
	s.obstacles = slices.DeleteFunc(s.obstacles, func(o Obstacle) bool {
		return o.X+o.Width < 0
	})
	r := s.cfg.Letters.Radius
	s.letters = slices.DeleteFunc(s.letters, func(l Letter) bool {
		return l.Collected || l.X+r < 0
	})
}

func (s *Sim) gap(minGap, jitter int) int {
	return minGap + s.rng.IntN(jitter+1)
}

// PlayerRect is the avatar's full hit-box before the forgiveness margin.
func (s *Sim) PlayerRect() Rect {
	pc := s.cfg.Player
	return Rect{X: pc.X, Y: s.player.Y, W: pc.Width, H: pc.Height}
}

// ObstacleRect is the hit-box of o; obstacles stand on the ground.
func (s *Sim) ObstacleRect(o Obstacle) Rect {
	return Rect{X: o.X, Y: s.cfg.GroundY - o.Height, W: o.Width, H: o.Height}
}

func (s *Sim) Config() Config    { return s.cfg }
func (s *Sim) State() State      { return s.state }
func (s *Sim) Avatar() string    { return s.avatar }
func (s *Sim) Seed() uint64      { return s.seed }
func (s *Sim) Frame() int        { return s.frame }
func (s *Sim) Distance() float64 { return s.distance }
func (s *Sim) Speed() float64    { return s.speed }
func (s *Sim) Collected() int    { return s.collected }
func (s *Sim) Player() Player    { return s.player }

// Score is derived from the distance and letter counters; it is never
// accumulated separately.
func (s *Sim) Score() int {
	return s.cfg.Scoring.Score(s.distance, s.collected)
}

// Obstacles returns the live obstacles. The slice must not be modified.
func (s *Sim) Obstacles() []Obstacle { return s.obstacles }

// Letters returns the live letters. The slice must not be modified.
func (s *Sim) Letters() []Letter { return s.letters }

// Run describes the finished session so it can be replayed elsewhere.
func (s *Sim) Run() Run {
	return Run{
		Seed:   s.seed,
		Avatar: s.avatar,
		Jumps:  slices.Clone(s.jumps),
		Frames: s.frame,
	}
}
