package fitness

// ForceEnqueue queues a goal index for removal without scoring.
func (f *SuiteFitness) ForceEnqueue(idx int) {
	f.pending = append(f.pending, idx)
}

// DropFromIndex removes a goal index from the method side table.
func (f *SuiteFitness) DropFromIndex(qualified string) {
	delete(f.byMethod, qualified)
}
