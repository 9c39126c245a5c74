package channel

import (
	"testing"
	"time"

	"github.com/te9no/pointerd/internal/event"
	"github.com/te9no/pointerd/internal/schedule"
	"github.com/te9no/pointerd/internal/transform"
)

func TestProcessClaimsOnlyConfiguredSamples(t *testing.T) {
	rig := newTestRig(t, nil)

	tests := []struct {
		name    string
		sample  event.Sample
		claimed bool
	}{
		{"rel x", relSample(event.RelX, 5, testBase), true},
		{"rel y", relSample(event.RelY, 5, testBase), true},
		{"key event", event.Sample{Type: event.Key, Code: 30, Value: 1, Time: testBase}, false},
		{"syn event", event.Sample{Type: event.Syn, Time: testBase}, false},
		{"foreign rel code", relSample(event.RelWheel, 1, testBase), false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			res := rig.ch.Process(test.sample)
			if res.Claimed != test.claimed {
				t.Errorf("claimed = %v, want %v", res.Claimed, test.claimed)
			}
			if !test.claimed && res.Sample != test.sample {
				t.Errorf("unclaimed sample was altered: %+v", res.Sample)
			}
		})
	}
}

func TestProcessIdentityUnderDefaults(t *testing.T) {
	rig := newTestRig(t, nil)

	res := rig.ch.Process(relSample(event.RelX, 7, testBase))
	if !res.Claimed || !res.Emit {
		t.Fatalf("expected claimed emitting result, got %+v", res)
	}
	if res.Sample.Code != event.RelX || res.Sample.Value != 7 {
		t.Errorf("sample = %d/%d, want REL_X/7", res.Sample.Code, res.Sample.Value)
	}
}

func TestProcessScalingCarriesRemainder(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.ch.SetScaling(1, 2, false)

	steps := []struct {
		value int32
		want  int32
		emit  bool
	}{
		{10, 5, true},
		{1, 0, false}, // remainder 1 carried
		{1, 1, true},  // carry consumed
	}
	for i, step := range steps {
		res := rig.ch.Process(relSample(event.RelX, step.value, testBase.Add(time.Duration(i)*time.Millisecond)))
		if res.Emit != step.emit || res.Sample.Value != step.want {
			t.Errorf("step %d: got value %d emit %v, want %d/%v",
				i, res.Sample.Value, res.Emit, step.want, step.emit)
		}
	}
}

func TestProcessScalingKeepsPerAxisRemainders(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.ch.SetScaling(1, 2, false)

	rig.ch.Process(relSample(event.RelX, 1, testBase))
	rig.ch.Process(relSample(event.RelY, 1, testBase))

	// Each axis carries its own remainder, so the second single count on
	// either axis completes that axis' carry independently.
	resX := rig.ch.Process(relSample(event.RelX, 1, testBase))
	if resX.Sample.Value != 1 {
		t.Errorf("x carry = %d, want 1", resX.Sample.Value)
	}
	resY := rig.ch.Process(relSample(event.RelY, 1, testBase))
	if resY.Sample.Value != 1 {
		t.Errorf("y carry = %d, want 1", resY.Sample.Value)
	}
}

func TestProcessRotationPairsAxes(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.ch.SetRotation(90, false)

	// First X sample has no Y partner yet: held as a zero emit.
	res := rig.ch.Process(relSample(event.RelX, 10, testBase))
	if !res.Claimed || res.Emit {
		t.Fatalf("unpaired sample should hold, got %+v", res)
	}

	// Y pairs with the buffered X: y' = x.
	res = rig.ch.Process(relSample(event.RelY, 3, testBase))
	if !res.Emit || res.Sample.Value != 10 || res.Sample.Code != event.RelY {
		t.Fatalf("rotated y = %+v, want value 10 on REL_Y", res.Sample)
	}

	// The next X rotates against the freshest Y: x' = -y.
	res = rig.ch.Process(relSample(event.RelX, 4, testBase))
	if !res.Emit || res.Sample.Value != -3 || res.Sample.Code != event.RelX {
		t.Fatalf("rotated x = %+v, want value -3 on REL_X", res.Sample)
	}
}

func TestProcessInvert(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.ch.SetInvert(true, false, false)

	res := rig.ch.Process(relSample(event.RelX, 5, testBase))
	if res.Sample.Value != -5 {
		t.Errorf("inverted x = %d, want -5", res.Sample.Value)
	}
	res = rig.ch.Process(relSample(event.RelY, 5, testBase))
	if res.Sample.Value != 5 {
		t.Errorf("non-inverted y = %d, want 5", res.Sample.Value)
	}
}

func TestProcessCodeMapScroll(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.ch.SetCodeMap(true, false, false)

	res := rig.ch.Process(relSample(event.RelX, 2, testBase))
	if res.Sample.Code != event.RelHWheel || res.Sample.Value != 2 {
		t.Errorf("x sample = %d/%d, want REL_HWHEEL/2", res.Sample.Code, res.Sample.Value)
	}
	res = rig.ch.Process(relSample(event.RelY, -1, testBase))
	if res.Sample.Code != event.RelWheel || res.Sample.Value != -1 {
		t.Errorf("y sample = %d/%d, want REL_WHEEL/-1", res.Sample.Code, res.Sample.Value)
	}
}

func TestProcessCodeMapScrollWinsOverSwap(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.ch.SetCodeMap(true, true, false)

	res := rig.ch.Process(relSample(event.RelX, 1, testBase))
	if res.Sample.Code != event.RelHWheel {
		t.Errorf("code = %d, want REL_HWHEEL", res.Sample.Code)
	}
}

func TestProcessSwapTracksSourceAxisState(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.ch.SetCodeMap(false, true, false)
	rig.ch.SetScaling(1, 2, false)

	// X samples go out as REL_Y but keep using the X remainder.
	res := rig.ch.Process(relSample(event.RelX, 1, testBase))
	if res.Sample.Code != event.RelY || res.Emit {
		t.Fatalf("swapped x = %+v, want held REL_Y", res)
	}
	res = rig.ch.Process(relSample(event.RelX, 1, testBase))
	if res.Sample.Code != event.RelY || res.Sample.Value != 1 {
		t.Errorf("swapped x carry = %+v, want value 1 on REL_Y", res.Sample)
	}

	// The Y remainder is untouched by the X traffic.
	res = rig.ch.Process(relSample(event.RelY, 1, testBase))
	if res.Sample.Code != event.RelX || res.Emit {
		t.Errorf("swapped y = %+v, want held REL_X", res)
	}
}

func TestProcessLayerGateSuppresses(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.ch.SetActiveLayers(1<<2, false)
	rig.ch.SetTempLayer(true, 2, 0, 500, false)

	// Gate layer inactive: the sample is consumed without output, and the
	// suppressed motion must not schedule overlay activation either.
	res := rig.ch.Process(relSample(event.RelX, 5, testBase))
	if !res.Claimed || res.Emit {
		t.Fatalf("gated sample = %+v, want claimed without emit", res)
	}
	if rig.sched.Pending(schedule.KindActivate) {
		t.Error("suppressed motion scheduled overlay activation")
	}

	if err := rig.st.Activate(2); err != nil {
		t.Fatal(err)
	}
	res = rig.ch.Process(relSample(event.RelX, 5, testBase))
	if !res.Emit || res.Sample.Value != 5 {
		t.Errorf("gate-open sample = %+v, want value 5", res)
	}
}

func TestProcessLayerGateIgnoresUnknownBits(t *testing.T) {
	rig := newTestRig(t, nil)

	// A mask naming only layers that do not exist can never open the gate.
	rig.ch.SetActiveLayers(1<<31, false)
	res := rig.ch.Process(relSample(event.RelX, 5, testBase))
	if !res.Claimed || res.Emit {
		t.Errorf("unknown-bit gate = %+v, want claimed without emit", res)
	}

	// A mask mixing unknown bits with one active layer passes.
	rig.ch.SetActiveLayers(1<<31|1<<0, false)
	res = rig.ch.Process(relSample(event.RelX, 5, testBase))
	if !res.Emit {
		t.Errorf("mixed mask with active base layer = %+v, want emit", res)
	}
}

func TestProcessSnapFlow(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.ch.SetAxisSnap(transform.SnapX, 100, 1000, false)

	at := func(ms int) time.Time { return testBase.Add(time.Duration(ms) * time.Millisecond) }

	// Locked-axis motion always passes.
	res := rig.ch.Process(relSample(event.RelX, 50, at(0)))
	if !res.Emit || res.Sample.Value != 50 {
		t.Fatalf("locked axis = %+v, want value 50", res)
	}

	// Cross-axis drift below the threshold is suppressed.
	for i, ms := range []int{0, 10} {
		res = rig.ch.Process(relSample(event.RelY, 30, at(ms)))
		if res.Emit {
			t.Fatalf("drift sample %d emitted: %+v", i, res)
		}
	}

	// The accumulated 60 plus a deliberate 60 crosses the threshold and the
	// crossing sample itself comes through.
	res = rig.ch.Process(relSample(event.RelY, 60, at(20)))
	if !res.Emit || res.Sample.Value != 60 {
		t.Fatalf("unsnap sample = %+v, want value 60", res)
	}

	// While unsnapped, cross-axis motion passes unmodified.
	res = rig.ch.Process(relSample(event.RelY, 10, at(30)))
	if !res.Emit || res.Sample.Value != 10 {
		t.Fatalf("unsnapped sample = %+v, want value 10", res)
	}

	// Two idle seconds decay the accumulator to zero, so the axis locks
	// again and small drift is suppressed.
	res = rig.ch.Process(relSample(event.RelY, 5, at(2030)))
	if res.Emit {
		t.Fatalf("post-decay drift emitted: %+v", res)
	}
	res = rig.ch.Process(relSample(event.RelX, 50, at(2030)))
	if !res.Emit || res.Sample.Value != 50 {
		t.Errorf("locked axis after relock = %+v, want value 50", res)
	}
}

func TestProcessStageOrder(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.ch.SetRotation(90, false)
	rig.ch.SetInvert(true, false, false)
	rig.ch.SetScaling(1, 2, false)

	// Rotation runs before inversion and scaling: the third sample rotates
	// x' = -y = -3, inverts to 3, then scales to 1 with remainder 1.
	rig.ch.Process(relSample(event.RelX, 10, testBase))
	rig.ch.Process(relSample(event.RelY, 3, testBase))
	res := rig.ch.Process(relSample(event.RelX, 4, testBase))
	if !res.Emit || res.Sample.Value != 1 {
		t.Errorf("staged sample = %+v, want value 1", res)
	}
}

func TestProcessZeroResultDoesNotEmit(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.ch.SetScaling(1, 10, false)

	res := rig.ch.Process(relSample(event.RelX, 3, testBase))
	if !res.Claimed || res.Emit {
		t.Errorf("scaled-to-zero sample = %+v, want claimed without emit", res)
	}
}
