package layout

import "testing"

func TestPositionFirstInThread(t *testing.T) {
	occ := NewOccupancy()
	c, afterReturn := Position(Input{Transition: FirstInThread}, occ, nil, nil)
	if c != (VCoord{0, 0, 0}) {
		t.Fatalf("first coord = %+v, want origin", c)
	}
	if afterReturn {
		t.Fatal("FirstInThread must not arm AfterReturn")
	}
	if !occ.Occupied(0, 0) {
		t.Fatal("origin should be claimed")
	}
}

func TestPositionNonFlowIncrementsBMod(t *testing.T) {
	occ := NewOccupancy()
	prev := VCoord{A: 5, B: 5, BMod: 2}
	c, _ := Position(Input{Transition: NonFlowTransition, PrevCoord: prev, TargetAddr: 0x2000}, occ, nil, nil)
	want := VCoord{A: 5, B: 5, BMod: 3}
	if c != want {
		t.Fatalf("NonFlow coord = %+v, want %+v", c, want)
	}
}

func TestPositionNonFlowFallsThroughToJumpOnTakenConditional(t *testing.T) {
	occ := NewOccupancy()
	prev := VCoord{A: 5, B: 5, BMod: 0}
	in := Input{
		Transition:      NonFlowTransition,
		PrevCoord:       prev,
		PrevConditional: true,
		PrevTakenTarget: 0x3000,
		TargetAddr:      0x3000,
	}
	c, _ := Position(in, occ, nil, nil)
	// Jump rule: a += JUMPA(2), b += JUMPB(1)*BMULT(1)
	want := VCoord{A: 7, B: 6, BMod: 0}
	if c != want {
		t.Fatalf("fallthrough-to-jump coord = %+v, want %+v", c, want)
	}
}

func TestPositionJumpResolvesClash(t *testing.T) {
	occ := NewOccupancy()
	prev := VCoord{A: 0, B: 0, BMod: 0}
	// Pre-occupy the first candidate so the clash loop must step once.
	occ.Claim(2, 1)

	c, _ := Position(Input{Transition: JumpTransition, PrevCoord: prev}, occ, nil, nil)
	if c.A != 3 || c.B != 1 {
		t.Fatalf("clashed jump coord = %+v, want a=3,b=1", c)
	}
	if !occ.Occupied(c.A, c.B) {
		t.Fatal("final coord should be claimed")
	}
}

func TestPositionCallClashAppliesExtraStep(t *testing.T) {
	occ := NewOccupancy()
	prev := VCoord{A: 0, B: 0, BMod: 0}
	occ.Claim(0, 1) // b += CALLB*BMULT = 1 lands here first

	c, _ := Position(Input{Transition: CallTransition, PrevCoord: prev}, occ, nil, nil)
	// one clash iteration: a+=CALLA_CLASH(1), b+=CALLB_CLASH*BMULT(1) -> (1,2)
	// then the "one extra a += CALLA_CLASH" since a clash happened -> a=2
	want := VCoord{A: 2, B: 2, BMod: 0}
	if c != want {
		t.Fatalf("call-with-clash coord = %+v, want %+v", c, want)
	}
}

type fakeCallers struct {
	callerNode  int
	callerCoord VCoord
	found       bool
}

func (f fakeCallers) MatchReturn(target uint64) (int, VCoord, bool) {
	return f.callerNode, f.callerCoord, f.found
}

func TestPositionReturnNearCallerAndArmsAfterReturn(t *testing.T) {
	occ := NewOccupancy()
	callerCoord := VCoord{A: 10, B: 10, BMod: 1}
	callers := fakeCallers{callerNode: 3, callerCoord: callerCoord, found: true}

	c, afterReturn := Position(Input{Transition: ReturnTransition, TargetAddr: 0x402005}, occ, callers, nil)
	want := VCoord{A: 11, B: 11, BMod: 1}
	if c != want {
		t.Fatalf("return coord = %+v, want %+v", c, want)
	}
	if !afterReturn {
		t.Fatal("Return transition must arm AfterReturn for the next placement")
	}
}

func TestPositionExternalWithoutCallStackMatch(t *testing.T) {
	occ := NewOccupancy()
	prev := VCoord{A: 1, B: 1, BMod: 0}
	callers := fakeCallers{found: false}

	c, afterReturn := Position(Input{Transition: ExternalTransition, PrevCoord: prev, TargetAddr: 0x7fff0000}, occ, callers, nil)
	want := VCoord{A: 3, B: 2, BMod: 0} // a+=EXTERNA(2), b+=EXTERNB(1)*BMULT(1)
	if c != want {
		t.Fatalf("external coord = %+v, want %+v", c, want)
	}
	if afterReturn {
		t.Fatal("plain External must not arm AfterReturn")
	}
}

func TestPositionAfterReturnUsesMaxAFloor(t *testing.T) {
	occ := NewOccupancy()
	occ.Claim(50, 0) // establishes maxA = 50
	prev := VCoord{A: 5, B: 0, BMod: 0}

	c, _ := Position(Input{Transition: AfterReturnTransition, PrevCoord: prev}, occ, nil, nil)
	// shifted = 5-20 = -15; floor = -(50+2) = -52; shifted > floor so A = -15
	if c.A != -15 || c.B != 7 {
		t.Fatalf("after-return coord = %+v, want a=-15,b=7", c)
	}
}

func TestPositionAfterReturnClampsToFloorWhenShiftOvershoots(t *testing.T) {
	occ := NewOccupancy()
	occ.Claim(2, 0) // maxA = 2, floor = -4
	prev := VCoord{A: -100, B: 0, BMod: 0}

	c, _ := Position(Input{Transition: AfterReturnTransition, PrevCoord: prev}, occ, nil, nil)
	if c.A != -4 {
		t.Fatalf("after-return A = %d, want floor -4", c.A)
	}
}
