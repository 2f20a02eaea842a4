package mvcc

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/arvindsrao/mvccstore/internal/mvcclog"
	"github.com/arvindsrao/mvccstore/mvccerr"
)

// Connection is a stateful façade binding at most one active transaction
// to a Database. Callers ask the Database for a Connection, then manage a
// transaction's lifecycle and reads/writes through it.
type Connection struct {
	tx *Transaction
	db *Database

	id  uuid.UUID
	log *mvcclog.Logger
}

// ExecCommand dispatches a single verb ("begin", "commit", "abort", "set",
// "delete", "get") with its string args, returning the verb's result as a
// string. This mirrors the external command surface an out-of-process
// driver would speak; Go callers that already have typed values should
// prefer Begin/Commit/Abort/Set/Delete/Get below.
func (c *Connection) ExecCommand(command string, args []string) (string, error) {
	c.log.Debug("exec", "conn", c.id.String(), "command", command, "args", args)

	switch command {
	case "begin":
		id, err := c.Begin()
		if err != nil {
			return "", err
		}
		return strconv.FormatUint(uint64(id), 10), nil
	case "commit":
		if err := c.Commit(); err != nil {
			return "", err
		}
		return "", nil
	case "abort":
		c.Abort()
		return "", nil
	case "set":
		mvccerr.Assert(len(args) == 2, "set takes key and value")
		if err := c.Set(args[0], args[1]); err != nil {
			return "", err
		}
		return "", nil
	case "delete":
		mvccerr.Assert(len(args) == 1, "delete takes a key")
		if err := c.Delete(args[0]); err != nil {
			return "", err
		}
		return "", nil
	case "get":
		mvccerr.Assert(len(args) == 1, "get takes a key")
		return c.Get(args[0])
	default:
		mvccerr.Invariant(fmt.Sprintf("unknown command %q", command))
		return "", nil // unreachable: Invariant panics
	}
}

// MustExecCommand calls ExecCommand and panics if it returns an error.
// Intended for tests and scripted scenario replay where every command is
// expected to succeed.
func (c *Connection) MustExecCommand(cmd string, args []string) string {
	res, err := c.ExecCommand(cmd, args)
	if err != nil {
		panic(fmt.Sprintf("unexpected error from %q: %v", cmd, err))
	}
	return res
}

// Begin starts a new transaction on this connection. Precondition: no
// transaction is already active; violating it is an invariant error.
func (c *Connection) Begin() (TxId, error) {
	mvccerr.Assert(c.tx == nil, "no active transaction")
	c.tx = c.db.newTransaction(c.id)
	return c.tx.id, nil
}

// Commit completes the active transaction as Committed. On a conflict, the
// transaction still ends Aborted and current_tx is still cleared — the
// error is surfaced to the caller either way.
func (c *Connection) Commit() error {
	mvccerr.Assert(c.tx != nil, "active transaction")
	c.db.assertValidTransaction(c.tx)

	err := c.db.completeTransaction(c.tx, CommittedTransaction)
	c.tx = nil
	return err
}

// Abort completes the active transaction as Aborted.
func (c *Connection) Abort() {
	mvccerr.Assert(c.tx != nil, "active transaction")
	c.db.assertValidTransaction(c.tx)

	_ = c.db.completeTransaction(c.tx, AbortedTransaction)
	c.tx = nil
}

// Set writes value for key. The version chain for key is walked newest to
// oldest; every version currently visible to this transaction is
// superseded (its txEndId set to this transaction's id), then a fresh
// version is appended.
func (c *Connection) Set(key, value string) error {
	mvccerr.Assert(c.tx != nil, "active transaction")
	c.db.assertValidTransaction(c.tx)

	c.db.mu.Lock()
	defer c.db.mu.Unlock()

	chain := c.db.store[key]
	for i := len(chain) - 1; i >= 0; i-- {
		if c.db.isVisible(c.tx, chain[i]) {
			chain[i].txEndId = c.tx.id
		}
	}
	chain = append(chain, Version{txStartId: c.tx.id, txEndId: 0, value: value})
	c.db.store[key] = chain

	c.tx.writeset.Insert(key)
	return nil
}

// Delete removes the visible version(s) of key by marking them superseded
// by this transaction. Fails if no version of key is currently visible.
func (c *Connection) Delete(key string) error {
	mvccerr.Assert(c.tx != nil, "active transaction")
	c.db.assertValidTransaction(c.tx)

	c.db.mu.Lock()
	defer c.db.mu.Unlock()

	chain := c.db.store[key]
	deleted := false
	for i := len(chain) - 1; i >= 0; i-- {
		if c.db.isVisible(c.tx, chain[i]) {
			chain[i].txEndId = c.tx.id
			deleted = true
		}
	}

	if !deleted {
		return mvccerr.NewKeyNotFound("delete", key)
	}

	// Writeset insertion is deferred until a visible version was actually
	// found, resolving §9 Open Question 1 in favor of the MAY option: a
	// failed delete never pollutes the writeset.
	c.tx.writeset.Insert(key)
	return nil
}

// Get returns the payload of the first version of key visible to this
// transaction, walking the chain newest to oldest. Fails if none is
// visible. key is always added to the readset, even on failure — a
// Serializable transaction conflicts on what it attempted to read, not
// only on what it found.
func (c *Connection) Get(key string) (string, error) {
	mvccerr.Assert(c.tx != nil, "active transaction")
	c.db.assertValidTransaction(c.tx)

	c.db.mu.Lock()
	defer c.db.mu.Unlock()

	c.tx.readset.Insert(key)

	chain := c.db.store[key]
	for i := len(chain) - 1; i >= 0; i-- {
		if c.db.isVisible(c.tx, chain[i]) {
			return chain[i].value, nil
		}
	}

	return "", mvccerr.NewKeyNotFound("get", key)
}
