package dispatcher

// IdleList implements the JBSQ "join the shortest queue" idle-worker
// selection policy: Select returns the lowest-index worker with
// occupancy == 0, or, if none are wholly idle, the worker with the
// minimum positive occupancy below cap (ties broken by lowest index).
// Occupancy lives on workerSlot itself, the single source of truth, so
// there is no separate membership list that can fall out of sync with
// it or hold a stale entry for a worker whose occupancy has since
// changed.
type IdleList struct {
	cap int
}

// NewIdleList builds a selector for workers with the given JBSQLen cap.
func NewIdleList(cap int) *IdleList {
	return &IdleList{cap: cap}
}

// Select scans workers for the next one the JBSQ policy assigns a task
// to, or (0, false) if every worker is already at capacity.
func (l *IdleList) Select(workers []*workerSlot) (int, bool) {
	best := -1
	for i, w := range workers {
		if w.occupancy == 0 {
			return i, true
		}
		if w.occupancy < l.cap && (best == -1 || w.occupancy < workers[best].occupancy) {
			best = i
		}
	}
	return best, best != -1
}
