// event-gen drives a running pointerd (or any evdev consumer) with
// synthetic pointer motion through its own uinput device, for exercising
// transform pipelines, axis snapping, and temporary-layer timing without
// a physical trackball.
//
// Usage:
//
//	go run ./tools/event-gen -profile circle -duration 5s
//	go run ./tools/event-gen -profile line-x -rate 250 -amplitude 3
//	go run ./tools/event-gen -list
package main

import (
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/te9no/pointerd/internal/event"
	"github.com/te9no/pointerd/internal/sink"
)

// MotionProfile describes one synthetic gesture shape.
type MotionProfile struct {
	Name        string
	Description string

	// Step returns the (dx, dy) deltas for tick number n.
	Step func(n int, amplitude float64, rng *rand.Rand) (int32, int32)
}

var profiles = map[string]MotionProfile{
	"circle": {
		Name:        "Circle",
		Description: "Smooth circular motion, exercises rotation pairing",
		Step: func(n int, amp float64, _ *rand.Rand) (int32, int32) {
			theta := float64(n) / 20 * 2 * math.Pi
			return int32(math.Round(amp * math.Cos(theta))), int32(math.Round(amp * math.Sin(theta)))
		},
	},
	"line-x": {
		Name:        "Horizontal line",
		Description: "Pure X motion with small Y drift, exercises axis snap",
		Step: func(_ int, amp float64, rng *rand.Rand) (int32, int32) {
			dy := int32(0)
			if rng.Float64() < 0.2 {
				dy = int32(rng.Intn(3)) - 1
			}
			return int32(amp), dy
		},
	},
	"line-y": {
		Name:        "Vertical line",
		Description: "Pure Y motion with small X drift",
		Step: func(_ int, amp float64, rng *rand.Rand) (int32, int32) {
			dx := int32(0)
			if rng.Float64() < 0.2 {
				dx = int32(rng.Intn(3)) - 1
			}
			return dx, int32(amp)
		},
	},
	"diagonal": {
		Name:        "Diagonal stroke",
		Description: "Equal X and Y motion, defeats axis snapping",
		Step: func(_ int, amp float64, _ *rand.Rand) (int32, int32) {
			return int32(amp), int32(amp)
		},
	},
	"jitter": {
		Name:        "Hand jitter",
		Description: "Random small deltas around zero, exercises scaling remainders",
		Step: func(_ int, amp float64, rng *rand.Rand) (int32, int32) {
			span := int(amp)*2 + 1
			return int32(rng.Intn(span)) - int32(amp), int32(rng.Intn(span)) - int32(amp)
		},
	},
	"burst-pause": {
		Name:        "Burst and pause",
		Description: "Motion bursts with idle gaps, exercises temp-layer timers",
		Step: func(n int, amp float64, _ *rand.Rand) (int32, int32) {
			if n%200 >= 50 { // 50 ticks of motion, 150 of silence
				return 0, 0
			}
			return int32(amp), 0
		},
	},
}

func main() {
	var (
		profileName  = flag.String("profile", "circle", "Motion profile to generate")
		duration     = flag.Duration("duration", 10*time.Second, "How long to generate motion")
		rate         = flag.Int("rate", 125, "Samples per second")
		amplitude    = flag.Float64("amplitude", 5, "Per-sample delta magnitude")
		seed         = flag.Int64("seed", 0, "Random seed; 0 = use current time")
		listProfiles = flag.Bool("list", false, "List available profiles")
	)
	flag.Parse()

	if *listProfiles {
		fmt.Println("Available profiles:")
		for name, p := range profiles {
			fmt.Printf("  %-14s %s\n", name, p.Description)
		}
		os.Exit(0)
	}

	profile, ok := profiles[*profileName]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown profile: %s\n", *profileName)
		fmt.Fprintf(os.Stderr, "Use -list to see available profiles\n")
		os.Exit(1)
	}

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(*seed))

	dev, err := sink.NewVirtual(sink.Options{Name: "event-gen synthetic pointer"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating uinput device: %v\n", err)
		fmt.Fprintln(os.Stderr, "event-gen needs write access to /dev/uinput")
		os.Exit(1)
	}
	defer dev.Close()

	fmt.Printf("Generating %s motion for %s at %d Hz (seed %d)\n",
		profile.Name, *duration, *rate, *seed)

	// Give the kernel and any grabbing daemon a moment to see the new
	// device before motion starts.
	time.Sleep(500 * time.Millisecond)

	ticker := time.NewTicker(time.Second / time.Duration(*rate))
	defer ticker.Stop()
	deadline := time.After(*duration)

	var emitted, suppressed int
	for n := 0; ; n++ {
		select {
		case <-deadline:
			fmt.Printf("Done: %d samples emitted, %d silent ticks\n", emitted, suppressed)
			return
		case <-ticker.C:
			dx, dy := profile.Step(n, *amplitude, rng)
			if dx == 0 && dy == 0 {
				suppressed++
				continue
			}
			if dx != 0 {
				if err := dev.Emit(event.Sample{Type: event.Rel, Code: event.RelX, Value: dx}); err != nil {
					fmt.Fprintf(os.Stderr, "Emit failed: %v\n", err)
					os.Exit(1)
				}
				emitted++
			}
			if dy != 0 {
				if err := dev.Emit(event.Sample{Type: event.Rel, Code: event.RelY, Value: dy}); err != nil {
					fmt.Fprintf(os.Stderr, "Emit failed: %v\n", err)
					os.Exit(1)
				}
				emitted++
			}
		}
	}
}
