package preflight

import (
	"slices"

	"proxyencoder/internal/queue"
)

// WorkerReport groups online workers by whether they consume the queue a
// batch is about to be routed to.
type WorkerReport struct {
	Compatible        []queue.Worker
	Incompatible      []queue.Worker
	IncompatibleHosts []string
}

// None reports that no worker is online at all.
func (r WorkerReport) None() bool {
	return len(r.Compatible) == 0 && len(r.Incompatible) == 0
}

// AllIncompatible reports that workers are online but none will pick up
// the batch.
func (r WorkerReport) AllIncompatible() bool {
	return len(r.Compatible) == 0 && len(r.Incompatible) > 0
}

// CheckWorkers sorts workers by queue name. When routing is unconstrained
// every online worker is compatible.
func CheckWorkers(workers []queue.Worker, queueName string, constrained bool) WorkerReport {
	var report WorkerReport
	for _, w := range workers {
		if !constrained || w.QueueName == queueName {
			report.Compatible = append(report.Compatible, w)
			continue
		}
		report.Incompatible = append(report.Incompatible, w)
		if !slices.Contains(report.IncompatibleHosts, w.Hostname) {
			report.IncompatibleHosts = append(report.IncompatibleHosts, w.Hostname)
		}
	}
	slices.Sort(report.IncompatibleHosts)
	return report
}
