package config

import (
	"os"
	"strings"
)

// SheetSyncEnabled is the master switch for the periodic sheet sync scheduler.
// Enabled unless explicitly disabled.
//
// Set via env:
// - SYNC_ENABLED=false
func SheetSyncEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("SYNC_ENABLED")))
	if v == "" {
		return true
	}
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// DeletionSyncEnabled controls whether the deletion phase runs at all.
// Additions/updates are unaffected.
//
// Set via env:
// - DELETION_SYNC_ENABLED=true
func DeletionSyncEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("DELETION_SYNC_ENABLED")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// DeletionStrictValidation switches the deletion guard between strict mode
// (recent activity / active listings block deletion) and advisory mode.
//
// Set via env:
// - DELETION_STRICT_VALIDATION=false
func DeletionStrictValidation() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("DELETION_STRICT_VALIDATION")))
	if v == "" {
		return true
	}
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
