package models

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openModelTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, MigrateDB(db))
	return db
}

func TestFindContactByEmail(t *testing.T) {
	db := openModelTestDB(t)

	jane := Contact{TenantID: 1, Email: "Jane@Example.com", FirstName: "Jane"}
	require.NoError(t, db.Create(&jane).Error)
	other := Contact{TenantID: 2, Email: "jane@example.com", FirstName: "Other Tenant Jane"}
	require.NoError(t, db.Create(&other).Error)

	t.Run("case-insensitive match", func(t *testing.T) {
		contact, err := FindContactByEmail(db, 1, []string{"JANE@example.COM"})
		require.NoError(t, err)
		require.NotNil(t, contact)
		assert.Equal(t, jane.ID, contact.ID)
	})

	t.Run("first match across candidate set", func(t *testing.T) {
		contact, err := FindContactByEmail(db, 1, []string{"nobody@example.com", "jane@example.com"})
		require.NoError(t, err)
		require.NotNil(t, contact)
		assert.Equal(t, jane.ID, contact.ID)
	})

	t.Run("scoped to tenant", func(t *testing.T) {
		contact, err := FindContactByEmail(db, 3, []string{"jane@example.com"})
		require.NoError(t, err)
		assert.Nil(t, contact)
	})

	t.Run("no match is not an error", func(t *testing.T) {
		contact, err := FindContactByEmail(db, 1, []string{"stranger@example.com"})
		require.NoError(t, err)
		assert.Nil(t, contact)
	})

	t.Run("empty input", func(t *testing.T) {
		contact, err := FindContactByEmail(db, 1, nil)
		require.NoError(t, err)
		assert.Nil(t, contact)

		contact, err = FindContactByEmail(db, 1, []string{"  ", ""})
		require.NoError(t, err)
		assert.Nil(t, contact)
	})
}
