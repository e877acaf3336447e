package repository

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ecorace/ecorace-backend/internal/models"
)

// setupBadgeTestDB creates an in-memory SQLite database for testing.
func setupBadgeTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}

	if err := db.AutoMigrate(&models.UserBadge{}); err != nil {
		t.Fatalf("Failed to auto-migrate tables: %v", err)
	}

	return &DB{db}
}

func TestBadgeRepository_AwardAndHasUnlocked(t *testing.T) {
	db := setupBadgeTestDB(t)
	repo := NewBadgeRepository(db)

	if err := repo.Award("user-1", "first_ride"); err != nil {
		t.Fatalf("Award failed: %v", err)
	}

	unlocked, err := repo.HasUnlocked("user-1", "first_ride")
	if err != nil {
		t.Fatalf("HasUnlocked failed: %v", err)
	}
	if !unlocked {
		t.Error("Expected first_ride unlocked")
	}

	unlocked, err = repo.HasUnlocked("user-1", "eco_champion")
	if err != nil {
		t.Fatalf("HasUnlocked failed: %v", err)
	}
	if unlocked {
		t.Error("Expected eco_champion still locked")
	}
}

func TestBadgeRepository_AwardIdempotent(t *testing.T) {
	db := setupBadgeTestDB(t)
	repo := NewBadgeRepository(db)

	if err := repo.Award("user-1", "first_ride"); err != nil {
		t.Fatalf("First award failed: %v", err)
	}
	if err := repo.Award("user-1", "first_ride"); err != nil {
		t.Fatalf("Repeat award must be a no-op, got %v", err)
	}

	badges, err := repo.ListUnlocked("user-1")
	if err != nil {
		t.Fatalf("ListUnlocked failed: %v", err)
	}
	if len(badges) != 1 {
		t.Errorf("Expected exactly 1 unlock row, got %d", len(badges))
	}
}

func TestBadgeRepository_ListUnlockedIDs(t *testing.T) {
	db := setupBadgeTestDB(t)
	repo := NewBadgeRepository(db)

	for _, id := range []string{"first_ride", "green_pit_boss"} {
		if err := repo.Award("user-1", id); err != nil {
			t.Fatalf("Award failed: %v", err)
		}
	}

	ids, err := repo.ListUnlockedIDs("user-1")
	if err != nil {
		t.Fatalf("ListUnlockedIDs failed: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("Expected 2 ids, got %v", ids)
	}
}

func TestBadgeRepository_HolderCount(t *testing.T) {
	db := setupBadgeTestDB(t)
	repo := NewBadgeRepository(db)

	for _, user := range []string{"user-1", "user-2", "user-3"} {
		if err := repo.Award(user, "first_ride"); err != nil {
			t.Fatalf("Award failed: %v", err)
		}
	}
	if err := repo.Award("user-1", "carbon_hero"); err != nil {
		t.Fatalf("Award failed: %v", err)
	}

	count, err := repo.HolderCount("first_ride")
	if err != nil {
		t.Fatalf("HolderCount failed: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 3 holders, got %d", count)
	}
}
