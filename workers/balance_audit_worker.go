// workers/balance_audit_worker.go
package workers

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"
)

// BalanceAuditor periodically recomputes each user's balance from the
// transactions table and logs any drift. It never mutates: the ledger
// is the source of truth and balances only move in the same DB
// transaction as ledger inserts, so drift here means a bug elsewhere.
type BalanceAuditor struct {
	DB *gorm.DB
}

func NewBalanceAuditor(db *gorm.DB) *BalanceAuditor {
	return &BalanceAuditor{DB: db}
}

type balanceDrift struct {
	UserID   string
	Points   int
	Computed int
}

func (a *BalanceAuditor) audit() ([]balanceDrift, error) {
	var drifts []balanceDrift
	err := a.DB.Raw(`
		SELECT b.user_id, b.points, COALESCE(SUM(t.amount), 0) AS computed
		FROM user_points_balances b
		LEFT JOIN points_transactions t
			ON t.user_id = b.user_id AND t.deleted_at IS NULL
		GROUP BY b.user_id, b.points
		HAVING b.points <> COALESCE(SUM(t.amount), 0)
	`).Scan(&drifts).Error
	return drifts, err
}

// PollBalances runs the audit on a fixed interval until ctx is done.
func PollBalances(ctx context.Context, auditor *BalanceAuditor, pollInterval time.Duration) {
	log.Println("[AUDIT] starting balance audit worker")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[AUDIT] balance audit worker stopped")
			return
		case <-ticker.C:
			drifts, err := auditor.audit()
			if err != nil {
				log.Printf("[AUDIT] audit query failed: %v", err)
				continue
			}
			if len(drifts) == 0 {
				continue
			}
			for _, d := range drifts {
				log.Printf("[AUDIT] balance drift for %s: stored=%d computed=%d", d.UserID, d.Points, d.Computed)
			}
		}
	}
}
