package jobs

import "gorm.io/gorm/clause"

// lockingClause applies SELECT ... FOR UPDATE SKIP LOCKED, grounded in the
// teacher's ClaimNextRunnable query pattern, so concurrent worker pool
// goroutines never double-claim a pending job.
func lockingClause() clause.Locking {
	return clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}
}
