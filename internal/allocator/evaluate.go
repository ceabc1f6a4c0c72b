package allocator

// evaluate computes the size-weighted total loss (P7), the loss
// histogram (tier -> player-seats at that tier), and the delta
// histogram ((load - optimal) -> session count) for a finished state.
func evaluate(st *AllocationState, model *PreferenceModel) (totalLoss int, lossHist LossHistogram, deltaHist DeltaHistogram) {
	lossHist = make(LossHistogram)
	deltaHist = make(DeltaHistogram)

	for sid, s := range st.sessions {
		load := 0
		for _, gid := range st.bySession[sid] {
			g := st.groups[gid]
			load += g.Size()
			loss := model.Loss(gid, sid)
			totalLoss += g.Size() * loss
			lossHist[loss] += g.Size()
		}
		deltaHist[load-s.Optimal]++
	}

	return totalLoss, lossHist, deltaHist
}
