// services/scheduler.go
package services

import (
	"log"
	"time"

	"club-engagement-system/models"

	"github.com/go-co-op/gocron/v2"
)

// StartArchiveScheduler deactivates events a day after they end so
// stale events stop accepting tickets and drop out of default listings.
func (s *EventService) StartArchiveScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			cutoff := time.Now().Add(-24 * time.Hour)
			var events []models.Event
			err := s.DB.Where("is_active = ? AND end_time <= ?", true, cutoff).
				Find(&events).Error
			if err != nil {
				log.Printf("[SCHEDULER] DB error: %v", err)
				return
			}

			for _, e := range events {
				e.IsActive = false
				if err := s.DB.Save(&e).Error; err != nil {
					log.Printf("[SCHEDULER] failed to archive event %s: %v", e.ID, err)
				} else {
					log.Printf("[SCHEDULER] archived event: %s", e.Slug)
				}
			}
		}),
	)
}
