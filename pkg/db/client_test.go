package db

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

type couponRow struct {
	ID   int
	Code string `gorm:"uniqueIndex"`
}

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	gdb, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := gdb.AutoMigrate(&couponRow{}); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return gdb
}

func countRows(t *testing.T, gdb *gorm.DB) int64 {
	t.Helper()
	var n int64
	if err := gdb.Model(&couponRow{}).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestWithTxCommitsAndRollsBack(t *testing.T) {
	gdb := openSQLite(t)
	client := FromGorm(gdb)
	ctx := context.Background()

	if err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&couponRow{Code: "SAVE10"}).Error
	}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&couponRow{Code: "TEA10"}).Error; err != nil {
			return err
		}
		return errors.New("stock check failed")
	})
	if err == nil {
		t.Fatal("expected the callback error back")
	}
	if n := countRows(t, gdb); n != 1 {
		t.Fatalf("expected only the committed row, got %d", n)
	}
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	gdb := openSQLite(t)
	client := FromGorm(gdb)

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			if err := tx.Create(&couponRow{Code: "PANIC"}).Error; err != nil {
				return err
			}
			panic("boom")
		})
	}()

	if n := countRows(t, gdb); n != 0 {
		t.Fatalf("expected panic rollback, found %d rows", n)
	}
}

func TestPing(t *testing.T) {
	if err := FromGorm(openSQLite(t)).Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	gdb := openSQLite(t)
	if err := gdb.Create(&couponRow{Code: "DUP"}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	sqliteErr := gdb.Create(&couponRow{Code: "DUP"}).Error

	cases := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{"nil", nil, "", false},
		{"sqlite", sqliteErr, "", true},
		{"pgx", &pgconn.PgError{Code: "23505", ConstraintName: "idx_carts_owner"}, "", true},
		{"pgx named", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "idx_carts_owner"}), "idx_carts_owner", true},
		{"pgx other constraint", &pgconn.PgError{Code: "23505", ConstraintName: "idx_coupons_code"}, "idx_carts_owner", false},
		{"pgx fk", &pgconn.PgError{Code: "23503"}, "", false},
		{"pq", &pq.Error{Code: "23505", Constraint: "idx_coupons_code"}, "idx_coupons_code", true},
		{"translated", gorm.ErrDuplicatedKey, "", true},
		{"plain", errors.New("connection reset"), "", false},
	}
	for _, tc := range cases {
		if got := IsUniqueViolation(tc.err, tc.constraint); got != tc.want {
			t.Fatalf("%s: expected %v got %v (%v)", tc.name, tc.want, got, tc.err)
		}
	}
}

func TestQueryLoggerReportsFailuresAndSlowStatements(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Format: "json", Output: buf})
	ql := newQueryLogger(logg, 100*time.Millisecond)
	ctx := context.Background()
	stmt := func() (string, int64) { return "SELECT * FROM carts", 1 }

	ql.Trace(ctx, time.Now(), stmt, nil)
	ql.Trace(ctx, time.Now(), stmt, gorm.ErrRecordNotFound)
	if buf.Len() != 0 {
		t.Fatalf("fast and not-found statements should be quiet, got %s", buf.String())
	}

	ql.Trace(ctx, time.Now().Add(-time.Second), stmt, nil)
	if !strings.Contains(buf.String(), "slow sql statement") {
		t.Fatalf("expected slow statement warning, got %s", buf.String())
	}
	buf.Reset()

	ql.Trace(ctx, time.Now(), stmt, errors.New("deadlock detected"))
	if !strings.Contains(buf.String(), "sql statement failed") || !strings.Contains(buf.String(), "SELECT * FROM carts") {
		t.Fatalf("expected failed statement logged with sql, got %s", buf.String())
	}
	buf.Reset()

	ql.LogMode(gormlogger.Silent).Trace(ctx, time.Now(), stmt, errors.New("ignored"))
	if buf.Len() != 0 {
		t.Fatalf("silent mode must not log, got %s", buf.String())
	}
}
