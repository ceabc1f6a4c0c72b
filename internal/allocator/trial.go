package allocator

import "math/rand"

// Allocate runs the randomized, restart-based allocator described by
// spec.md over one time slot's input. It performs N_TRIALS independent
// trials, each with its own deterministically-derived random stream,
// and retains the lowest-total-loss successful trial. If every trial
// fails at placement or repair, it returns NoFeasibleAllocationError.
func Allocate(input Input) (*Result, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	priority := input.Priority
	if priority == nil {
		priority = NoPriority{}
	}

	var (
		bestLoss  int
		bestState *AllocationState
		bestModel *PreferenceModel
		haveBest  bool
		causes    []error
	)

	for t := 1; t <= input.NTrials; t++ {
		rng := trialRNG(input.RunSeed, t)

		model := newPreferenceModel(input.Groups, input.Sessions, input.Preferences, rng)
		order := shuffledGroupOrder(input.Groups, rng)
		order = priority.Order(input.Groups, order, rng)

		st := newAllocationState(input.Sessions, input.Groups)

		err := initialPlacement(st, model, order)
		if err == nil {
			err = capacityRepair(st, rng)
		}

		if err != nil {
			causes = append(causes, err)
		} else {
			loss, _, _ := evaluate(st, model)
			if !haveBest || loss < bestLoss {
				bestLoss = loss
				bestState = st
				bestModel = model
				haveBest = true
			}
		}

		if input.OnTrial != nil {
			input.OnTrial(t, bestLoss)
		}
	}

	if !haveBest {
		return nil, &NoFeasibleAllocationError{Trials: input.NTrials, Causes: causes}
	}

	totalLoss, lossHist, deltaHist := evaluate(bestState, bestModel)
	return &Result{
		Assignments:    bestState.Assignments(),
		TotalLoss:      totalLoss,
		LossHistogram:  lossHist,
		DeltaHistogram: deltaHist,
	}, nil
}

func shuffledGroupOrder(groups []Group, rng *rand.Rand) []GroupID {
	order := make([]GroupID, len(groups))
	for i, g := range groups {
		order[i] = g.ID
	}
	rng.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})
	return order
}
