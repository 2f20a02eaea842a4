// Command mvccdemo replays one of the canonical isolation-level scenarios
// from the engine's test suite against a freshly constructed Database and
// prints a trace of each command and its result. It is not a general
// command parser or REPL — command parsing and interactive use remain out
// of scope for this repository; this binary exists only to give the
// config/logging ambient stack somewhere to run.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/arvindsrao/mvccstore/config"
	"github.com/arvindsrao/mvccstore/mvcc"
)

func main() {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "mvccdemo",
		Short: "Replay a canonical MVCC isolation scenario",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load(v)
			return runScenario(cfg)
		},
	}

	cmd.Flags().String("isolation", "serializable", "default isolation level (read-uncommitted|read-committed|repeatable-read|snapshot|serializable)")
	cmd.Flags().String("log-level", "info", "log level (debug|info|warn)")
	cmd.Flags().String("scenario", "s6", "scenario to replay (s1..s6)")

	_ = v.BindPFlag("isolation", cmd.Flags().Lookup("isolation"))
	_ = v.BindPFlag("log-level", cmd.Flags().Lookup("log-level"))
	_ = v.BindPFlag("scenario", cmd.Flags().Lookup("scenario"))

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runScenario replays the named §8 scenario. cfg.DefaultIsolation is
// ignored for s1..s6: each scenario names its own isolation level in the
// spec, so the trace always matches it regardless of what --isolation
// was passed. cfg.LogLevel still governs the engine's structured logging
// for the run.
func runScenario(cfg config.Config) error {
	steps, ok := scenarios[cfg.Scenario]
	if !ok {
		return fmt.Errorf("unknown scenario %q", cfg.Scenario)
	}
	replay(cfg, cfg.Scenario, steps)
	return nil
}

var scenarios = map[string][]step{
	"s1": readUncommittedDirtyRead,
	"s2": readCommitted,
	"s3": repeatableReadSnapshot,
	"s4": snapshotWriteWriteConflict,
	"s5": serializableReadWriteConflict,
	"s6": snapshotDisjointOverlap,
}

type step struct {
	conn string
	verb string
	args []string
}

func replay(cfg config.Config, name string, steps []step) {
	fmt.Printf("scenario %s\n", name)
	conns := map[string]*mvcc.Connection{}

	scenarioCfg := cfg
	scenarioCfg.DefaultIsolation = scenarioLevel[name].String()
	db := mvcc.NewDatabase(scenarioCfg)

	for _, s := range steps {
		c, ok := conns[s.conn]
		if !ok {
			c = db.NewConnection()
			conns[s.conn] = c
		}
		res, err := c.ExecCommand(s.verb, s.args)
		if err != nil {
			fmt.Printf("  %s.%s(%v) -> error: %v\n", s.conn, s.verb, s.args, err)
			continue
		}
		fmt.Printf("  %s.%s(%v) -> %q\n", s.conn, s.verb, s.args, res)
	}
}

var scenarioLevel = map[string]mvcc.IsolationLevel{
	"s1": mvcc.ReadUncommittedIsolation,
	"s2": mvcc.ReadCommittedIsolation,
	"s3": mvcc.RepeatableReadIsolation,
	"s4": mvcc.SnapshotIsolation,
	"s5": mvcc.SerializableIsolation,
	"s6": mvcc.SnapshotIsolation,
}

var readUncommittedDirtyRead = []step{
	{"c1", "begin", nil},
	{"c2", "begin", nil},
	{"c1", "set", []string{"x", "hey"}},
	{"c2", "get", []string{"x"}},
	{"c1", "delete", []string{"x"}},
	{"c2", "get", []string{"x"}},
}

var readCommitted = []step{
	{"c1", "begin", nil},
	{"c2", "begin", nil},
	{"c1", "set", []string{"x", "hey"}},
	{"c2", "get", []string{"x"}},
	{"c1", "commit", nil},
	{"c2", "get", []string{"x"}},
	{"c3", "begin", nil},
	{"c3", "set", []string{"x", "yall"}},
	{"c2", "get", []string{"x"}},
	{"c3", "get", []string{"x"}},
	{"c2", "delete", []string{"x"}},
	{"c2", "get", []string{"x"}},
	{"c2", "commit", nil},
	{"c4", "begin", nil},
	{"c4", "get", []string{"x"}},
}

var repeatableReadSnapshot = []step{
	{"c1", "begin", nil},
	{"c2", "begin", nil},
	{"c1", "set", []string{"x", "hey"}},
	{"c1", "commit", nil},
	{"c2", "get", []string{"x"}},
	{"c3", "begin", nil},
	{"c3", "get", []string{"x"}},
	{"c3", "set", []string{"x", "yall"}},
	{"c3", "abort", nil},
	{"c2", "get", []string{"x"}},
	{"c4", "begin", nil},
	{"c4", "get", []string{"x"}},
	{"c4", "delete", []string{"x"}},
	{"c4", "commit", nil},
	{"c5", "begin", nil},
	{"c5", "get", []string{"x"}},
}

var snapshotWriteWriteConflict = []step{
	{"c1", "begin", nil},
	{"c2", "begin", nil},
	{"c3", "begin", nil},
	{"c1", "set", []string{"x", "hey"}},
	{"c1", "commit", nil},
	{"c2", "set", []string{"x", "hey"}},
	{"c2", "commit", nil},
	{"c3", "set", []string{"y", "hey"}},
	{"c3", "commit", nil},
}

var serializableReadWriteConflict = []step{
	{"c1", "begin", nil},
	{"c2", "begin", nil},
	{"c1", "get", []string{"x"}},
	{"c2", "set", []string{"x", "v"}},
	{"c2", "commit", nil},
	{"c1", "commit", nil},
}

var snapshotDisjointOverlap = []step{
	{"c1", "begin", nil},
	{"c2", "begin", nil},
	{"c1", "set", []string{"a", "1"}},
	{"c2", "set", []string{"b", "2"}},
	{"c1", "commit", nil},
	{"c2", "commit", nil},
}
