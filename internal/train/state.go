package train

// State is the position of a Trainer in its epoch cycle.
type State int

// Epoch cycle: EpochStart -> TrainPhase -> ValidationPhase -> EpochEnd,
// then EpochStart again or Finished after the last epoch.
const (
	EpochStart State = iota
	TrainPhase
	ValidationPhase
	EpochEnd
	Finished
)

func (s State) String() string {
	switch s {
	case EpochStart:
		return "epoch-start"
	case TrainPhase:
		return "train"
	case ValidationPhase:
		return "validation"
	case EpochEnd:
		return "epoch-end"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

// NonFinitePolicy selects what happens when a training batch produces a
// NaN or infinite loss.
type NonFinitePolicy string

const (
	// SkipNonFinite logs and counts the batch and leaves the parameters untouched.
	SkipNonFinite NonFinitePolicy = "skip"
	// AbortNonFinite stops training with ErrNonFiniteLoss.
	AbortNonFinite NonFinitePolicy = "abort"
)
