package domain

import "time"

// SyncResult holds the outcome of one category's push-then-pull cycle.
type SyncResult struct {
	Category                  Category
	Pushed                    int
	Rejected                  int
	Pulled                    int
	ConflictsResolvedByRemote int
	ConflictsResolvedByLocal  int
	Skipped                   int
	Checkpoint                int64
	Failure                   error
}

func (r SyncResult) Failed() bool {
	return r.Failure != nil
}

// SyncReport aggregates the per-category results of one sync pass.
type SyncReport struct {
	OwnerID    string
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []SyncResult
}

// Failed returns the results whose cycle did not complete.
func (r *SyncReport) Failed() []SyncResult {
	var failed []SyncResult
	for _, res := range r.Results {
		if res.Failure != nil {
			failed = append(failed, res)
		}
	}
	return failed
}

// Totals sums the counters of every result. Category, Checkpoint and
// Failure are left empty.
func (r *SyncReport) Totals() SyncResult {
	var total SyncResult
	for _, res := range r.Results {
		total.Pushed += res.Pushed
		total.Rejected += res.Rejected
		total.Pulled += res.Pulled
		total.ConflictsResolvedByRemote += res.ConflictsResolvedByRemote
		total.ConflictsResolvedByLocal += res.ConflictsResolvedByLocal
		total.Skipped += res.Skipped
	}
	return total
}

func (r *SyncReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// PushAck is the server's confirmation of a pushed batch. Records that are
// neither accepted nor rejected are treated as not confirmed.
type PushAck struct {
	Accepted   []string
	Rejected   map[string]string
	ServerTime int64
}

type PullRequest struct {
	Category    Category
	OwnerID     string
	Since       int64
	SupplierIDs []string
}

type Session struct {
	OwnerID string
	Token   string
}

// SyncStatus is a point-in-time view of the sync state for one owner.
type SyncStatus struct {
	OwnerID     string
	Running     bool
	Checkpoints map[Category]int64
	LastReport  *SyncReport
}
