// Command replay drives the tracker FSM from a recorded JSON-lines
// stream of armor observations, printing the resulting target
// snapshot and gimbal command for every tick. It stands in for the
// live detector/transform/solver pipeline, which are out of scope for
// this module (spec §1).
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"time"

	"github.com/fyt-labs/auto-aim/internal/config"
	"github.com/fyt-labs/auto-aim/internal/solver"
	"github.com/fyt-labs/auto-aim/tracker"
)

var (
	configPath = flag.String("config", "", "path to a tracker config JSON file (defaults if empty)")
	inputPath  = flag.String("input", "", "path to a JSON-lines observation file (defaults to stdin)")
)

// frame is one line of the replay input: a detection batch sharing a
// header timestamp (spec §6's Inputs schema).
type frame struct {
	Stamp        time.Time     `json:"stamp"`
	FrameID      string        `json:"frame_id"`
	Observations []observation `json:"observations"`
}

type observation struct {
	NumericID string `json:"numeric_id"`
	Pose      struct {
		Position struct {
			X float64 `json:"x"`
			Y float64 `json:"y"`
			Z float64 `json:"z"`
		} `json:"position"`
		Yaw float64 `json:"yaw"`
	} `json:"pose"`
	PlateType string `json:"plate_type"`
}

func (o observation) toTracker() tracker.Observation {
	pt := tracker.PlateSmall
	if o.PlateType == "large" {
		pt = tracker.PlateLarge
	}
	obs := tracker.Observation{
		NumericID: o.NumericID,
		PlateType: pt,
	}
	obs.Pose.Position.X = o.Pose.Position.X
	obs.Pose.Position.Y = o.Pose.Position.Y
	obs.Pose.Position.Z = o.Pose.Position.Z
	obs.Pose.Yaw = o.Pose.Yaw
	return obs
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("replay: load config: %v", err)
	}

	in := io.Reader(os.Stdin)
	if *inputPath != "" {
		f, err := os.Open(*inputPath)
		if err != nil {
			log.Fatalf("replay: open input: %v", err)
		}
		defer f.Close()
		in = f
	}

	trk := tracker.New(cfg)
	facade := solver.NewFacade(demoSolver{})
	facade.OnError = func(err error) {
		log.Printf("replay: solver failure: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var fr frame
		if err := json.Unmarshal(line, &fr); err != nil {
			log.Printf("replay: skipping malformed frame: %v", err)
			continue
		}

		observations := make([]tracker.Observation, 0, len(fr.Observations))
		for _, o := range fr.Observations {
			t := o.toTracker()
			if t.IsValid() {
				observations = append(observations, t)
			}
		}

		if err := trk.Step(observations, fr.Stamp); err != nil {
			log.Printf("replay: dropped tick: %v", err)
			continue
		}

		snapshot := trk.Snapshot(fr.FrameID, fr.Stamp)
		cmd := facade.Step(snapshot, fr.Stamp)

		if err := enc.Encode(tickResult{Snapshot: snapshot, Gimbal: cmd}); err != nil {
			log.Fatalf("replay: encode output: %v", err)
		}
	}

	if err := scanner.Err(); err != nil {
		log.Fatalf("replay: read input: %v", err)
	}
}

type tickResult struct {
	Snapshot tracker.TargetSnapshot `json:"snapshot"`
	Gimbal   solver.GimbalCommand   `json:"gimbal"`
}

// demoSolver is a placeholder standing in for the out-of-scope
// ballistic solver: it aims directly at the tracked position with no
// ballistic compensation, and never advises fire. Real deployments
// wire solver.Facade to the actual solver instead.
type demoSolver struct{}

func (demoSolver) Solve(s tracker.TargetSnapshot, _ time.Time) (solver.GimbalCommand, error) {
	distance := math.Hypot(s.Position.X, s.Position.Y)
	if distance == 0 {
		return solver.GimbalCommand{}, fmt.Errorf("replay: zero-distance target")
	}
	return solver.GimbalCommand{
		YawDiff:   math.Atan2(s.Position.Y, s.Position.X),
		PitchDiff: math.Atan2(s.Position.Z, distance),
		Distance:  distance,
	}, nil
}
