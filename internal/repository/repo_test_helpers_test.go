package repository

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/groupchat-api/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Group{},
		&models.GroupMember{},
		&models.InnerGroup{},
		&models.Message{},
		&models.ConversationMeta{},
		&models.UploadRecord{},
	))
	return db
}

// serialiseWriters pins the pool to one connection so concurrent transactions
// queue on the shared in-memory database instead of failing with SQLITE_LOCKED.
func serialiseWriters(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
}

// lockedReads records the tables read with a FOR UPDATE clause. The sqlite
// dialect drops the clause from the SQL, so it is observed on the statement.
type lockedReads struct {
	mu     sync.Mutex
	tables map[string]int
}

func captureLockedReads(t *testing.T, db *gorm.DB) *lockedReads {
	t.Helper()
	reads := &lockedReads{tables: map[string]int{}}
	err := db.Callback().Query().Before("gorm:query").Register("test:locked_reads", func(tx *gorm.DB) {
		if _, ok := tx.Statement.Clauses["FOR"]; !ok {
			return
		}
		reads.mu.Lock()
		reads.tables[tx.Statement.Table]++
		reads.mu.Unlock()
	})
	require.NoError(t, err)
	return reads
}

func (r *lockedReads) count(table string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tables[table]
}
