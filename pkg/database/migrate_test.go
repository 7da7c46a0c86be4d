package database

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationFiles_SortedSQLOnly(t *testing.T) {
	fsys := fstest.MapFS{
		"m/002_emails.sql": {Data: []byte("SELECT 2;")},
		"m/001_schema.sql": {Data: []byte("SELECT 1;")},
		"m/README.md":      {Data: []byte("notes")},
		"m/old/003.sql":    {Data: []byte("SELECT 3;")},
	}
	names, err := migrationFiles(fsys, "m")
	require.NoError(t, err)
	assert.Equal(t, []string{"001_schema.sql", "002_emails.sql"}, names)
}

func TestEmbeddedSchema(t *testing.T) {
	names, err := migrationFiles(migrationsFS, "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, []string{"001_schema.sql", "002_pending_expiry.sql"}, names)

	schema, err := migrationsFS.ReadFile("migrations/001_schema.sql")
	require.NoError(t, err)
	assert.Contains(t, string(schema), "WHERE user_id IS NOT NULL AND payment_status <> 'failed'")
	assert.Contains(t, string(schema), "WHERE guest_email IS NOT NULL AND payment_status <> 'failed'")
	assert.Contains(t, string(schema), "registrations_one_identity")
}
