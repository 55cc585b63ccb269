package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestOpen_ReturnsDBForAnyURL はsql.Openは接続を試行しないため、
// 不正なURLでもDBオブジェクトが返ることを検証する。
func TestOpen_ReturnsDBForAnyURL(t *testing.T) {
	db, err := Open(DriverPostgres, "postgres://invalid")
	if err != nil {
		t.Fatalf("Open returned unexpected error: %v", err)
	}
	if db == nil {
		t.Fatal("expected non-nil db")
	}
	defer db.Close()
}

// TestOpen_UnsupportedDriver は未対応ドライバでエラーになることを検証する。
func TestOpen_UnsupportedDriver(t *testing.T) {
	for _, driver := range []string{"mysql", "", DriverMemory} {
		db, err := Open(driver, "whatever")
		if err == nil {
			db.Close()
			t.Errorf("Open(%q) expected error, got nil", driver)
		}
	}
}

// TestOpen_SQLiteInMemory はSQLiteのインメモリDBが開けて外部キー制約が有効なことを検証する。
func TestOpen_SQLiteInMemory(t *testing.T) {
	db, err := Open(DriverSQLite, ":memory:")
	require.NoError(t, err)
	defer db.Close()

	var fk int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)
}

// TestRunSQLiteMigrations は埋め込みマイグレーションがSQLiteに適用されることを検証する。
func TestRunSQLiteMigrations(t *testing.T) {
	db, err := Open(DriverSQLite, ":memory:")
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, RunSQLiteMigrations(db))

	for _, table := range []string{"users", "transactions"} {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table,
		).Scan(&name)
		assert.NoError(t, err, "table %s should exist", table)
	}

	// 2回目は変更なしで成功する
	assert.NoError(t, RunSQLiteMigrations(db))
}

// TestRunSQLiteMigrations_Constraints はSQLiteスキーマの制約を検証する。
func TestRunSQLiteMigrations_Constraints(t *testing.T) {
	db, err := Open(DriverSQLite, ":memory:")
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, RunSQLiteMigrations(db))

	_, err = db.Exec(`INSERT INTO users (id, name, email, password_hash, created_at, updated_at)
		VALUES ('u1', 'A', 'a@example.com', 'x', '2024-01-01T00:00:00Z', '2024-01-01T00:00:00Z')`)
	require.NoError(t, err)

	// メールアドレスの一意制約
	_, err = db.Exec(`INSERT INTO users (id, name, email, password_hash, created_at, updated_at)
		VALUES ('u2', 'B', 'a@example.com', 'x', '2024-01-01T00:00:00Z', '2024-01-01T00:00:00Z')`)
	assert.Error(t, err)

	// 存在しないユーザーへの外部キー
	_, err = db.Exec(`INSERT INTO transactions (id, user_id, type, amount_cents, category, date, note, created_at, updated_at)
		VALUES ('t1', 'missing', 'expense', 100, 'Food', '2024-01-01', '', '2024-01-01T00:00:00Z', '2024-01-01T00:00:00Z')`)
	assert.Error(t, err)

	// 金額は正であること
	_, err = db.Exec(`INSERT INTO transactions (id, user_id, type, amount_cents, category, date, note, created_at, updated_at)
		VALUES ('t2', 'u1', 'expense', 0, 'Food', '2024-01-01', '', '2024-01-01T00:00:00Z', '2024-01-01T00:00:00Z')`)
	assert.Error(t, err)
}

// TestMigrate_Memory はmemoryドライバではマイグレーションが何もしないことを検証する。
func TestMigrate_Memory(t *testing.T) {
	assert.NoError(t, Migrate(DriverMemory, "", nil))
	assert.Error(t, Migrate("mysql", "", nil))
}
