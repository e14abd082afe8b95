package layout

import "github.com/sirupsen/logrus"

// Transition is the previous edge's class as seen by the layout engine.
// It is a superset of model.OpClass: FirstInThread, ExceptionGenerator,
// External and AfterReturn are layout-only states derived by the thread
// worker from lastRIPType/afterReturn, not stored on Instruction.
type Transition uint8

const (
	FirstInThread Transition = iota
	NonFlowTransition
	JumpTransition
	ExceptionGeneratorTransition
	CallTransition
	ReturnTransition
	ExternalTransition
	AfterReturnTransition
)

// CallerLookup scans the call-stack tracker for an entry whose return-pc
// equals target, returning the caller's node index and coordinate, and
// truncating the call stack above (and including) that entry if found.
type CallerLookup interface {
	MatchReturn(target uint64) (callerNode int, callerCoord VCoord, found bool)
}

// Input bundles everything positionVert needs to place one node.
type Input struct {
	Transition      Transition
	PrevCoord       VCoord
	PrevConditional bool
	PrevTakenTarget uint64
	TargetAddr      uint64
}

const clashWarnThreshold = 15

// Position assigns a coordinate to a new node, implementing the node
// placement rule table. It returns the coordinate and whether this
// placement should arm the one-shot AfterReturn rule for the very next
// node placed on this thread (true only for a Return transition).
func Position(in Input, occ *Occupancy, callers CallerLookup, log *logrus.Entry) (VCoord, bool) {
	sched := DefaultSchedule()

	transition := in.Transition
	if transition == NonFlowTransition && in.PrevConditional && in.TargetAddr == in.PrevTakenTarget {
		transition = JumpTransition
	}

	switch transition {
	case FirstInThread:
		c := VCoord{0, 0, 0}
		occ.Claim(c.A, c.B)
		return c, false

	case NonFlowTransition:
		c := in.PrevCoord
		c.BMod += sched.get("BMULT")
		occ.Claim(c.A, c.B)
		return c, false

	case JumpTransition, ExceptionGeneratorTransition:
		c := in.PrevCoord
		c.A += sched.get("JUMPA")
		c.B += sched.get("JUMPB") * sched.get("BMULT")
		clashLoop(occ, log, func() {
			c.A += sched.get("JUMPA_CLASH")
		}, &c)
		occ.Claim(c.A, c.B)
		return c, false

	case CallTransition:
		c := in.PrevCoord
		c.B += sched.get("CALLB") * sched.get("BMULT")
		clashed := clashLoop(occ, log, func() {
			c.A += sched.get("CALLA_CLASH")
			c.B += sched.get("CALLB_CLASH") * sched.get("BMULT")
		}, &c)
		if clashed {
			c.A += sched.get("CALLA_CLASH")
		}
		occ.Claim(c.A, c.B)
		return c, false

	case ReturnTransition:
		c := externalPlacement(in, occ, callers, sched, log)
		return c, true

	case ExternalTransition:
		c := externalPlacement(in, occ, callers, sched, log)
		return c, false

	case AfterReturnTransition:
		c := in.PrevCoord
		maxA := occ.MaxA()
		shifted := c.A - 20
		floor := -(maxA + 2)
		if shifted < floor {
			c.A = floor
		} else {
			c.A = shifted
		}
		c.B += 7 * sched.get("BMULT")
		occ.Claim(c.A, c.B)
		return c, false

	default:
		c := in.PrevCoord
		occ.Claim(c.A, c.B)
		return c, false
	}
}

func externalPlacement(in Input, occ *Occupancy, callers CallerLookup, sched Schedule, log *logrus.Entry) VCoord {
	var c VCoord
	if callers != nil {
		if _, callerCoord, found := callers.MatchReturn(in.TargetAddr); found {
			c = VCoord{
				A:    callerCoord.A + sched.get("RETURNA_OFFSET"),
				B:    callerCoord.B + sched.get("RETURNB_OFFSET"),
				BMod: callerCoord.BMod,
			}
			clashLoopExternal(occ, log, &c)
			occ.Claim(c.A, c.B)
			return c
		}
	}
	c = in.PrevCoord
	c.A += sched.get("EXTERNA")
	c.B += sched.get("EXTERNB") * sched.get("BMULT")
	clashLoopExternal(occ, log, &c)
	occ.Claim(c.A, c.B)
	return c
}

// clashLoop repeatedly applies step while (c.A, c.B) is occupied,
// returning whether any clash occurred and warning past 15 iterations
// without ever giving up.
func clashLoop(occ *Occupancy, log *logrus.Entry, step func(), c *VCoord) bool {
	clashed := false
	for iter := 0; occ.Occupied(c.A, c.B); iter++ {
		clashed = true
		step()
		if iter == clashWarnThreshold && log != nil {
			log.WithField("a", c.A).WithField("b", c.B).Warn("layout clash exceeded 15 iterations, continuing")
		}
	}
	return clashed
}

// clashLoopExternal implements the External rule's own clash escape:
// a += JUMPA_CLASH; b += 1 per iteration.
func clashLoopExternal(occ *Occupancy, log *logrus.Entry, c *VCoord) {
	sched := DefaultSchedule()
	clashLoop(occ, log, func() {
		c.A += sched.get("JUMPA_CLASH")
		c.B++
	}, c)
}
