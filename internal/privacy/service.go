package privacy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/compassplan/compass/internal/database"
)

// PrivacyService handles workspace data erasure and identifier anonymization
type PrivacyService struct {
	db *database.DB
}

// NewService creates a new privacy service
func NewService(db *database.DB) *PrivacyService {
	return &PrivacyService{db: db}
}

// AnonymizeID returns a stable hash of an identifier, safe for logs and
// exported metrics.
func (ps *PrivacyService) AnonymizeID(id string) string {
	hash := sha256.Sum256([]byte(id))
	return hex.EncodeToString(hash[:])[:16]
}

// EraseTenant permanently deletes every row belonging to a tenant. This is
// a hard delete across all tables, not the soft delete used for jobs.
func (ps *PrivacyService) EraseTenant(tenantID string) error {
	tx, err := ps.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin erase transaction: %w", err)
	}
	defer tx.Rollback()

	tables := []string{
		"output_outcome_mappings",
		"job_output_mappings",
		"payments",
		"jobs",
		"outputs",
		"outcomes",
	}

	for _, table := range tables {
		if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE tenant_id = ?", table), tenantID); err != nil {
			return fmt.Errorf("failed to erase %s: %w", table, err)
		}
	}

	if _, err := tx.Exec("DELETE FROM tenants WHERE id = ?", tenantID); err != nil {
		return fmt.Errorf("failed to erase tenant row: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit erase transaction: %w", err)
	}

	slog.Info("Erased tenant data", "tenant_hash", ps.AnonymizeID(tenantID))

	return nil
}
