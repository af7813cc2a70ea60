package runner

import (
	"errors"
	"fmt"
)

// Run is the minimal record of a session: enough to rebuild it frame by frame.
// Jumps holds, for every successful jump, the number of frames completed
// before it was pressed.
type Run struct {
	Seed   uint64 `json:"seed"`
	Avatar string `json:"avatar"`
	Jumps  []int  `json:"jumps"`
	Frames int    `json:"frames"`
}

// Result is the outcome of a replayed run.
type Result struct {
	Score     int     `json:"score"`
	Distance  float64 `json:"distance"`
	Collected int     `json:"collected"`
	Frames    int     `json:"frames"`
}

// ErrReplayMismatch means the recorded inputs do not reproduce the reported
// run: a jump was impossible, or the collision happened on a different frame.
var ErrReplayMismatch = errors.New("runner: replay does not match the reported run")

// Replay re-runs a session headlessly and returns the authoritative result.
// A run only ends in a collision, so the replay must collide exactly on the
// reported final frame.
func Replay(cfg Config, run Run, maxFrames int) (Result, error) {
	if run.Frames < 1 {
		return Result{}, fmt.Errorf("runner: run has no frames")
	}
	if maxFrames > 0 && run.Frames > maxFrames {
		return Result{}, fmt.Errorf("runner: run of %d frames exceeds the %d frame limit", run.Frames, maxFrames)
	}
	for i, f := range run.Jumps {
		if f < 0 || f >= run.Frames || (i > 0 && f < run.Jumps[i-1]) {
			return Result{}, fmt.Errorf("runner: jump %d at frame %d is out of order or range", i, f)
		}
	}

	sim := New(cfg)
	if err := sim.Start(run.Avatar, run.Seed); err != nil {
		return Result{}, err
	}

	next := 0
	for sim.Frame() < run.Frames {
		for next < len(run.Jumps) && run.Jumps[next] == sim.Frame() {
			if !sim.Jump() {
				return Result{}, fmt.Errorf("%w: jump at frame %d not available", ErrReplayMismatch, sim.Frame())
			}
			next++
		}
		if res := sim.Step(); res.Over && sim.Frame() < run.Frames {
			return Result{}, fmt.Errorf("%w: collision at frame %d, run reported %d", ErrReplayMismatch, sim.Frame(), run.Frames)
		}
	}
	if sim.State() != StateOver {
		return Result{}, fmt.Errorf("%w: no collision by frame %d", ErrReplayMismatch, run.Frames)
	}

	return Result{
		Score:     sim.Score(),
		Distance:  sim.Distance(),
		Collected: sim.Collected(),
		Frames:    sim.Frame(),
	}, nil
}
