package services

import (
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"club-engagement-system/models"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// testDB opens the database named by DATABASE_URL and resets the
// schema. Tests that need Postgres semantics (unique indexes,
// conditional updates) skip when it is not set.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping DB-backed test")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.Event{},
		&models.RoleGrant{},
		&models.Attendance{},
		&models.PointsTransaction{},
		&models.UserPointsBalance{},
		&models.EventPhoto{},
		&models.Member{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_role_grants_active
		ON role_grants (user_id, role_type)
		WHERE revoked_at IS NULL
	`).Error; err != nil {
		t.Fatalf("create partial index: %v", err)
	}
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_points_user_reason_no_event
		ON points_transactions (user_id, reason)
		WHERE event_id IS NULL
	`).Error; err != nil {
		t.Fatalf("create event-less points index: %v", err)
	}

	if err := db.Exec(`
		TRUNCATE events, role_grants, attendances, points_transactions,
		user_points_balances, event_photos, members CASCADE
	`).Error; err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return db
}

func seedSuperAdmin(t *testing.T, db *gorm.DB, userID string) {
	t.Helper()
	grant := models.RoleGrant{
		UserID:    userID,
		RoleType:  models.RoleSuperAdmin,
		GrantedBy: userID,
		Notes:     "test seed",
	}
	if err := db.Create(&grant).Error; err != nil {
		t.Fatalf("seed super_admin: %v", err)
	}
}

func seedEvent(t *testing.T, db *gorm.DB, opens time.Time) *models.Event {
	t.Helper()
	event := models.Event{
		Slug:          "test-event-" + uuid.NewString()[:8],
		Name:          "Test Event",
		StartTime:     opens.Add(-time.Hour),
		EndTime:       opens.Add(2 * time.Hour),
		CheckInOpens:  opens,
		CheckInCloses: opens.Add(60 * time.Minute),
		IsActive:      true,
	}
	if err := db.Create(&event).Error; err != nil {
		t.Fatalf("seed event: %v", err)
	}
	return &event
}

func TestIssueTicketWindow(t *testing.T) {
	db := testDB(t)

	adminID := uuid.NewString()
	memberID := uuid.NewString()
	seedSuperAdmin(t, db, adminID)

	opens := time.Now().UTC().Truncate(time.Second)
	event := seedEvent(t, db, opens)

	roles := NewRoleService(db)
	svc := NewTicketService(db, roles, fixtureSecret, 5*time.Minute)

	// One minute before open.
	svc.now = func() time.Time { return opens.Add(-1 * time.Minute) }
	if _, _, _, err := svc.IssueTicket(adminID, event.ID); !errors.Is(err, ErrCheckInNotOpen) {
		t.Fatalf("before open: expected ErrCheckInNotOpen, got %v", err)
	}

	// Thirty minutes in: success, exp never past close.
	svc.now = func() time.Time { return opens.Add(30 * time.Minute) }
	_, exp, _, err := svc.IssueTicket(adminID, event.ID)
	if err != nil {
		t.Fatalf("mid-window issue: %v", err)
	}
	if exp.After(event.CheckInCloses) {
		t.Errorf("exp %v is past check_in_closes %v", exp, event.CheckInCloses)
	}

	// After close.
	svc.now = func() time.Time { return opens.Add(61 * time.Minute) }
	if _, _, _, err := svc.IssueTicket(adminID, event.ID); !errors.Is(err, ErrCheckInClosed) {
		t.Fatalf("after close: expected ErrCheckInClosed, got %v", err)
	}

	// Plain member may not mint.
	svc.now = func() time.Time { return opens.Add(30 * time.Minute) }
	if _, _, _, err := svc.IssueTicket(memberID, event.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("member issue: expected ErrForbidden, got %v", err)
	}

	// Deactivated event does not exist as far as issuance is concerned.
	if err := db.Model(event).Update("is_active", false).Error; err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, _, _, err := svc.IssueTicket(adminID, event.ID); !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("inactive event: expected ErrEventNotFound, got %v", err)
	}
}

func TestConcurrentCheckIn(t *testing.T) {
	db := testDB(t)

	adminID := uuid.NewString()
	memberID := uuid.NewString()
	seedSuperAdmin(t, db, adminID)

	opens := time.Now().UTC().Add(-10 * time.Minute)
	event := seedEvent(t, db, opens)

	roles := NewRoleService(db)
	tickets := NewTicketService(db, roles, fixtureSecret, 5*time.Minute)
	points := NewPointsService(db, DefaultPointsConfig())
	checkin := NewCheckInService(db, tickets, points)

	token, _, _, err := tickets.IssueTicket(adminID, event.ID)
	if err != nil {
		t.Fatalf("issue ticket: %v", err)
	}

	const attempts = 20
	var wg sync.WaitGroup
	wg.Add(attempts)
	var successCount, alreadyCount int64

	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			_, _, err := checkin.CheckIn(memberID, token, nil, nil)
			switch {
			case err == nil:
				atomic.AddInt64(&successCount, 1)
			case errors.Is(err, ErrAlreadyCheckedIn):
				atomic.AddInt64(&alreadyCount, 1)
			default:
				t.Errorf("unexpected check-in error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successCount != 1 {
		t.Errorf("successes = %d, want exactly 1", successCount)
	}
	if alreadyCount != attempts-1 {
		t.Errorf("already-checked-in = %d, want %d", alreadyCount, attempts-1)
	}

	// Re-scanning with a freshly minted valid ticket is still final.
	token2, _, _, err := tickets.IssueTicket(adminID, event.ID)
	if err != nil {
		t.Fatalf("re-issue ticket: %v", err)
	}
	if _, _, err := checkin.CheckIn(memberID, token2, nil, nil); !errors.Is(err, ErrAlreadyCheckedIn) {
		t.Fatalf("expected ErrAlreadyCheckedIn, got %v", err)
	}

	var record models.Attendance
	if err := db.Where("event_id = ? AND user_id = ?", event.ID, memberID).First(&record).Error; err != nil {
		t.Fatalf("load attendance: %v", err)
	}
	if record.CheckedInAt == nil {
		t.Fatal("checked_in_at not set after successful check-in")
	}
}

func TestDuplicateAwardAndBalance(t *testing.T) {
	db := testDB(t)

	memberID := uuid.NewString()
	opens := time.Now().UTC().Add(-10 * time.Minute)
	event := seedEvent(t, db, opens)

	points := NewPointsService(db, DefaultPointsConfig())
	eventID := event.ID

	txn, balance, err := points.Award(memberID, models.ActionAttendance, &eventID, nil)
	if err != nil {
		t.Fatalf("first award: %v", err)
	}
	if txn.Amount != 10 || balance != 10 {
		t.Errorf("first award: amount=%d balance=%d, want 10/10", txn.Amount, balance)
	}

	if _, _, err := points.Award(memberID, models.ActionAttendance, &eventID, nil); !errors.Is(err, ErrAlreadyRewarded) {
		t.Fatalf("second award: expected ErrAlreadyRewarded, got %v", err)
	}

	var stored models.UserPointsBalance
	if err := db.Where("user_id = ?", memberID).First(&stored).Error; err != nil {
		t.Fatalf("load balance: %v", err)
	}
	if stored.Points != 10 {
		t.Errorf("balance after duplicate attempt = %d, want unchanged 10", stored.Points)
	}

	var count int64
	if err := db.Model(&models.PointsTransaction{}).
		Where("user_id = ?", memberID).Count(&count).Error; err != nil {
		t.Fatalf("count transactions: %v", err)
	}
	if count != 1 {
		t.Errorf("transactions = %d, want exactly 1", count)
	}
}

func TestPhotoAwardPrecondition(t *testing.T) {
	db := testDB(t)

	memberID := uuid.NewString()
	opens := time.Now().UTC().Add(-10 * time.Minute)
	event := seedEvent(t, db, opens)
	eventID := event.ID

	points := NewPointsService(db, DefaultPointsConfig())
	alumni := map[string]string{"photoType": "alumni"}

	// Not checked in yet: the alumni photo award must fail.
	if _, _, err := points.Award(memberID, models.ActionPhotoUpload, &eventID, alumni); !errors.Is(err, ErrPreconditionFailed) {
		t.Fatalf("expected ErrPreconditionFailed, got %v", err)
	}

	now := time.Now().UTC()
	attendance := models.Attendance{EventID: event.ID, UserID: memberID, CheckedInAt: &now}
	if err := db.Create(&attendance).Error; err != nil {
		t.Fatalf("seed attendance: %v", err)
	}

	txn, _, err := points.Award(memberID, models.ActionPhotoUpload, &eventID, alumni)
	if err != nil {
		t.Fatalf("award after check-in: %v", err)
	}
	if txn.Amount != 10 {
		t.Errorf("alumni photo award = %d, want 10 (5 base x2)", txn.Amount)
	}
}

func TestRoleGrantAndRevoke(t *testing.T) {
	db := testDB(t)

	adminID := uuid.NewString()
	targetID := uuid.NewString()
	seedSuperAdmin(t, db, adminID)

	roles := NewRoleService(db)

	if _, err := roles.Grant(targetID, adminID, models.RoleEventManager, ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("grant by non-admin: expected ErrForbidden, got %v", err)
	}

	if _, err := roles.Grant(adminID, targetID, models.RoleEventManager, "runs events"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, err := roles.Grant(adminID, targetID, models.RoleEventManager, ""); !errors.Is(err, ErrRoleAlreadyExists) {
		t.Fatalf("duplicate grant: expected ErrRoleAlreadyExists, got %v", err)
	}

	// Self-revocation is always Forbidden, even for a super_admin.
	if _, err := roles.Revoke(adminID, adminID, models.RoleSuperAdmin, ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("self-revoke: expected ErrForbidden, got %v", err)
	}

	grant, err := roles.Revoke(adminID, targetID, models.RoleEventManager, "rotated off committee")
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if grant.RevokedAt == nil {
		t.Fatal("revoked_at not set")
	}

	// The row survives revocation for audit.
	var total int64
	if err := db.Model(&models.RoleGrant{}).Where("user_id = ?", targetID).Count(&total).Error; err != nil {
		t.Fatalf("count grants: %v", err)
	}
	if total != 1 {
		t.Errorf("grant rows = %d, want 1 (soft revoke keeps the row)", total)
	}

	if _, err := roles.Revoke(adminID, targetID, models.RoleEventManager, ""); !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("revoke again: expected ErrRoleNotFound, got %v", err)
	}

	// Re-granting after revocation is allowed.
	if _, err := roles.Grant(adminID, targetID, models.RoleEventManager, "back on committee"); err != nil {
		t.Fatalf("re-grant: %v", err)
	}
}

func TestCheckInBySlugTicket(t *testing.T) {
	db := testDB(t)

	memberID := uuid.NewString()
	opens := time.Now().UTC().Add(-10 * time.Minute)
	event := seedEvent(t, db, opens)

	roles := NewRoleService(db)
	tickets := NewTicketService(db, roles, fixtureSecret, 5*time.Minute)
	points := NewPointsService(db, DefaultPointsConfig())
	checkin := NewCheckInService(db, tickets, points)

	// Older clients minted tickets carrying the slug where the id
	// belongs; resolution must work the same either way.
	legacy := *event
	legacy.ID = event.Slug
	token, _, err := tickets.signTicket(&legacy, time.Now().UTC())
	if err != nil {
		t.Fatalf("sign legacy ticket: %v", err)
	}

	record, resolved, err := checkin.CheckIn(memberID, token, nil, nil)
	if err != nil {
		t.Fatalf("check in by slug: %v", err)
	}
	if resolved.ID != event.ID {
		t.Errorf("resolved event %s, want %s", resolved.ID, event.ID)
	}
	if record.CheckedInAt == nil {
		t.Fatal("checked_in_at not set")
	}
}
