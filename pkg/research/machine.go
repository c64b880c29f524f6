package research

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrIllegalTransition is returned when the engine attempts a step the
// transition table does not allow.
var ErrIllegalTransition = errors.New("illegal phase transition")

type phase uint8

const (
	phaseStart phase = iota
	phaseGenerateQueries
	phaseRunRound
	phaseReflect
	phaseRefine
	phaseAssembleReport
	phasePlanSections
	phaseSectionResearch
	phaseDone
	phaseError
	phaseCount
)

var phaseNames = [phaseCount]string{
	phaseStart:           "start",
	phaseGenerateQueries: "generateQueries",
	phaseRunRound:        "runRound",
	phaseReflect:         "reflect",
	phaseRefine:          "refine",
	phaseAssembleReport:  "assembleReport",
	phasePlanSections:    "planSections",
	phaseSectionResearch: "sectionResearch",
	phaseDone:            "done",
	phaseError:           "error",
}

func (p phase) String() string {
	if p < phaseCount {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", uint8(p))
}

// transitions[from][to] is true when the step is allowed. Every
// non-terminal phase may fail into phaseError.
var transitions = func() (t [phaseCount][phaseCount]bool) {
	allow := func(from phase, to ...phase) {
		for _, p := range to {
			t[from][p] = true
		}
		t[from][phaseError] = true
	}
	allow(phaseStart, phaseGenerateQueries, phasePlanSections)
	allow(phaseGenerateQueries, phaseRunRound)
	allow(phaseRunRound, phaseReflect)
	allow(phaseReflect, phaseRefine)
	allow(phaseRefine, phaseGenerateQueries, phaseAssembleReport)
	allow(phasePlanSections, phaseSectionResearch, phaseAssembleReport)
	allow(phaseSectionResearch, phaseSectionResearch, phaseAssembleReport)
	allow(phaseAssembleReport, phaseDone)
	return t
}()

// machine tracks the current phase of a run.
type machine struct {
	current phase
	logger  *slog.Logger
}

func newMachine(logger *slog.Logger) *machine {
	return &machine{current: phaseStart, logger: logger}
}

func (m *machine) to(next phase) error {
	if next >= phaseCount || !transitions[m.current][next] {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, m.current, next)
	}
	m.logger.Debug("Phase transition", "from", m.current.String(), "to", next.String())
	m.current = next
	return nil
}

func (m *machine) terminal() bool {
	return m.current == phaseDone || m.current == phaseError
}
