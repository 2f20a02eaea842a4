// Package main hosts scenario-level tests exercising the mvcc engine
// end-to-end through Connection.ExecCommand, the way an external driver
// would. Package-internal visibility/conflict-analysis tests live beside
// the implementation in mvcc/*_test.go.
package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/arvindsrao/mvccstore/mvcc"
	"github.com/arvindsrao/mvccstore/mvccerr"
)

func newDB(t *testing.T, level mvcc.IsolationLevel) *mvcc.Database {
	t.Helper()
	return mvcc.NewDatabaseWithIsolation(level)
}

func mustGet(t *testing.T, c *mvcc.Connection, key string) string {
	t.Helper()
	return c.MustExecCommand("get", []string{key})
}

func assertKeyNotFound(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected KeyNotFoundError, got nil")
	}
	var knf *mvccerr.KeyNotFoundError
	if !errors.As(err, &knf) {
		t.Fatalf("expected KeyNotFoundError, got %T: %v", err, err)
	}
}

func assertConflict(t *testing.T, err error, kind mvccerr.ConflictKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected ConflictError(%s), got nil", kind)
	}
	var ce *mvccerr.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConflictError, got %T: %v", err, err)
	}
	if ce.Kind != kind {
		t.Fatalf("expected conflict kind %q, got %q", kind, ce.Kind)
	}
}

// TestS1ReadUncommittedDirtyRead is §8 scenario S1: a read-uncommitted
// reader sees another connection's uncommitted write immediately, and its
// deletion just as immediately.
func TestS1ReadUncommittedDirtyRead(t *testing.T) {
	db := newDB(t, mvcc.ReadUncommittedIsolation)
	c1 := db.NewConnection()
	c1.MustExecCommand("begin", nil)
	c2 := db.NewConnection()
	c2.MustExecCommand("begin", nil)

	c1.MustExecCommand("set", []string{"x", "hey"})

	if got := mustGet(t, c1, "x"); got != "hey" {
		t.Fatalf("c1 get x = %q, want hey", got)
	}
	if got := mustGet(t, c2, "x"); got != "hey" {
		t.Fatalf("c2 get x = %q, want hey (dirty read allowed)", got)
	}

	c1.MustExecCommand("delete", []string{"x"})

	_, err := c1.ExecCommand("get", []string{"x"})
	assertKeyNotFound(t, err)
	_, err = c2.ExecCommand("get", []string{"x"})
	assertKeyNotFound(t, err)
}

// TestS2ReadCommitted is §8 scenario S2.
func TestS2ReadCommitted(t *testing.T) {
	db := newDB(t, mvcc.ReadCommittedIsolation)
	c1 := db.NewConnection()
	c1.MustExecCommand("begin", nil)
	c2 := db.NewConnection()
	c2.MustExecCommand("begin", nil)

	c1.MustExecCommand("set", []string{"x", "hey"})

	if _, err := c2.ExecCommand("get", []string{"x"}); err == nil {
		t.Fatalf("c2 should not see c1's uncommitted write")
	} else {
		assertKeyNotFound(t, err)
	}

	c1.MustExecCommand("commit", nil)

	if got := mustGet(t, c2, "x"); got != "hey" {
		t.Fatalf("c2 get x = %q, want hey after c1 commit", got)
	}

	c3 := db.NewConnection()
	c3.MustExecCommand("begin", nil)
	c3.MustExecCommand("set", []string{"x", "yall"})

	if got := mustGet(t, c2, "x"); got != "hey" {
		t.Fatalf("c2 get x = %q, want hey (c3 uncommitted)", got)
	}
	if got := mustGet(t, c3, "x"); got != "yall" {
		t.Fatalf("c3 get x = %q, want yall (sees own write)", got)
	}

	c2.MustExecCommand("delete", []string{"x"})
	if _, err := c2.ExecCommand("get", []string{"x"}); err == nil {
		t.Fatalf("c2 should no longer see x after its own delete")
	} else {
		assertKeyNotFound(t, err)
	}
	c2.MustExecCommand("commit", nil)

	c4 := db.NewConnection()
	c4.MustExecCommand("begin", nil)
	if _, err := c4.ExecCommand("get", []string{"x"}); err == nil {
		t.Fatalf("c4 should see x deleted")
	} else {
		assertKeyNotFound(t, err)
	}
}

// TestS3RepeatableReadSnapshot is §8 scenario S3.
func TestS3RepeatableReadSnapshot(t *testing.T) {
	db := newDB(t, mvcc.RepeatableReadIsolation)
	c1 := db.NewConnection()
	c1.MustExecCommand("begin", nil)
	c2 := db.NewConnection()
	c2.MustExecCommand("begin", nil)

	c1.MustExecCommand("set", []string{"x", "hey"})
	c1.MustExecCommand("commit", nil)

	if _, err := c2.ExecCommand("get", []string{"x"}); err == nil {
		t.Fatalf("c2's snapshot predates c1's commit, should not see x")
	} else {
		assertKeyNotFound(t, err)
	}

	c3 := db.NewConnection()
	c3.MustExecCommand("begin", nil)
	if got := mustGet(t, c3, "x"); got != "hey" {
		t.Fatalf("c3 get x = %q, want hey", got)
	}
	c3.MustExecCommand("set", []string{"x", "yall"})
	c3.MustExecCommand("abort", nil)

	if _, err := c2.ExecCommand("get", []string{"x"}); err == nil {
		t.Fatalf("c2 should still not see x")
	} else {
		assertKeyNotFound(t, err)
	}

	c4 := db.NewConnection()
	c4.MustExecCommand("begin", nil)
	if got := mustGet(t, c4, "x"); got != "hey" {
		t.Fatalf("c4 get x = %q, want hey (c3's write is invisible, c3 aborted)", got)
	}
	c4.MustExecCommand("delete", []string{"x"})
	c4.MustExecCommand("commit", nil)

	c5 := db.NewConnection()
	c5.MustExecCommand("begin", nil)
	if _, err := c5.ExecCommand("get", []string{"x"}); err == nil {
		t.Fatalf("c5 should see x deleted by committed c4")
	} else {
		assertKeyNotFound(t, err)
	}
}

// TestS4SnapshotWriteWriteConflict is §8 scenario S4.
func TestS4SnapshotWriteWriteConflict(t *testing.T) {
	db := newDB(t, mvcc.SnapshotIsolation)
	c1 := db.NewConnection()
	c1.MustExecCommand("begin", nil)
	c2 := db.NewConnection()
	c2.MustExecCommand("begin", nil)
	c3 := db.NewConnection()
	c3.MustExecCommand("begin", nil)

	c1.MustExecCommand("set", []string{"x", "hey"})
	c1.MustExecCommand("commit", nil)

	c2.MustExecCommand("set", []string{"x", "hey"})
	_, err := c2.ExecCommand("commit", nil)
	assertConflict(t, err, mvccerr.WriteWrite)

	c3.MustExecCommand("set", []string{"y", "hey"})
	if _, err := c3.ExecCommand("commit", nil); err != nil {
		t.Fatalf("c3 commit on disjoint key should succeed, got %v", err)
	}
}

// TestS5SerializableReadWriteConflict is §8 scenario S5.
func TestS5SerializableReadWriteConflict(t *testing.T) {
	db := newDB(t, mvcc.SerializableIsolation)
	c1 := db.NewConnection()
	c1.MustExecCommand("begin", nil)
	c2 := db.NewConnection()
	c2.MustExecCommand("begin", nil)

	if _, err := c1.ExecCommand("get", []string{"x"}); err == nil {
		t.Fatalf("c1 should not see unwritten x")
	} else {
		assertKeyNotFound(t, err)
	}

	c2.MustExecCommand("set", []string{"x", "v"})
	c2.MustExecCommand("commit", nil)

	_, err := c1.ExecCommand("commit", nil)
	assertConflict(t, err, mvccerr.ReadWrite)
}

// TestS6SnapshotDisjointOverlap is §8 scenario S6.
func TestS6SnapshotDisjointOverlap(t *testing.T) {
	db := newDB(t, mvcc.SnapshotIsolation)
	c1 := db.NewConnection()
	c1.MustExecCommand("begin", nil)
	c2 := db.NewConnection()
	c2.MustExecCommand("begin", nil)

	c1.MustExecCommand("set", []string{"a", "1"})
	c2.MustExecCommand("set", []string{"b", "2"})

	if _, err := c1.ExecCommand("commit", nil); err != nil {
		t.Fatalf("c1 commit should succeed, got %v", err)
	}
	if _, err := c2.ExecCommand("commit", nil); err != nil {
		t.Fatalf("c2 commit should succeed, got %v", err)
	}
}

// TestSerializableEmptyTransactionAlwaysCommits checks the quantified
// invariant: a Serializable transaction with empty readset and writeset
// always commits, regardless of concurrent activity.
func TestSerializableEmptyTransactionAlwaysCommits(t *testing.T) {
	db := newDB(t, mvcc.SerializableIsolation)

	c1 := db.NewConnection()
	c1.MustExecCommand("begin", nil)
	c2 := db.NewConnection()
	c2.MustExecCommand("begin", nil)

	c2.MustExecCommand("set", []string{"x", "v"})
	c2.MustExecCommand("commit", nil)

	if _, err := c1.ExecCommand("commit", nil); err != nil {
		t.Fatalf("empty-readset/writeset transaction should always commit, got %v", err)
	}
}

// TestMonotonicTransactionIDs checks that TxIds are strictly increasing
// and unique across connections.
func TestMonotonicTransactionIDs(t *testing.T) {
	db := newDB(t, mvcc.ReadCommittedIsolation)

	var last mvcc.TxId
	for i := 0; i < 5; i++ {
		c := db.NewConnection()
		res := c.MustExecCommand("begin", nil)
		id := parseTxID(t, res)
		if i > 0 && id <= last {
			t.Fatalf("tx id %d did not increase past %d", id, last)
		}
		last = id
		c.MustExecCommand("commit", nil)
	}
}

func parseTxID(t *testing.T, s string) mvcc.TxId {
	t.Helper()
	var id uint64
	if _, err := fmt.Sscan(s, &id); err != nil {
		t.Fatalf("parsing tx id %q: %v", s, err)
	}
	return mvcc.TxId(id)
}
