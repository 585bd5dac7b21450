package privacy

import (
	"testing"

	"github.com/compassplan/compass/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEraseTenant(t *testing.T) {
	db, err := database.NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := database.NewRepository(db)
	tenant, err := repo.GetOrCreateTenant("", "Acme")
	require.NoError(t, err)

	job := database.NewJob(tenant.ID, "Ship it", "")
	require.NoError(t, repo.CreateJob(job))
	output := database.NewOutput(tenant.ID, "Signups", 100, "users")
	require.NoError(t, repo.CreateOutput(output))

	other, err := repo.GetOrCreateTenant("", "Beta")
	require.NoError(t, err)
	otherJob := database.NewJob(other.ID, "Keep me", "")
	require.NoError(t, repo.CreateJob(otherJob))

	svc := NewService(db)
	require.NoError(t, svc.EraseTenant(tenant.ID))

	jobs, err := repo.ListJobs(tenant.ID)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	outputs, err := repo.ListOutputs(tenant.ID)
	require.NoError(t, err)
	assert.Empty(t, outputs)

	// Other tenants are untouched.
	kept, err := repo.ListJobs(other.ID)
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}

func TestAnonymizeIDStable(t *testing.T) {
	db, err := database.NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc := NewService(db)
	a := svc.AnonymizeID("tenant-123")
	b := svc.AnonymizeID("tenant-123")
	c := svc.AnonymizeID("tenant-456")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
}
