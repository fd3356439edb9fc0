package types

// Step names for the generation pipeline, in execution order.
const (
	StepResearch  = "research"
	StepBrand     = "brand"
	StepStrategy  = "strategy"
	StepCopy      = "copy"
	StepDesign    = "design"
	StepFactCheck = "factcheck"
	StepAssembly  = "assembly"
)

// StepComplete is the sentinel current_step value for a job whose whole
// sequence has run.
const StepComplete = "complete"

// StepSequence is the fixed generation order. There is no branching or
// skipping: a job's position is always an index into this slice.
var StepSequence = []string{
	StepResearch,
	StepBrand,
	StepStrategy,
	StepCopy,
	StepDesign,
	StepFactCheck,
	StepAssembly,
}

// StepIndex returns the position of a step in the sequence, or -1 if the
// name is not a pipeline step.
func StepIndex(name string) int {
	for i, s := range StepSequence {
		if s == name {
			return i
		}
	}
	return -1
}

// NextStep returns the step following name. ok is false when name is the
// last step in the sequence or not a step at all.
func NextStep(name string) (next string, ok bool) {
	idx := StepIndex(name)
	if idx < 0 || idx+1 >= len(StepSequence) {
		return "", false
	}
	return StepSequence[idx+1], true
}

// IsStep reports whether name is a known pipeline step.
func IsStep(name string) bool {
	return StepIndex(name) >= 0
}
