package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// FTSIndex is an external content FTS5 index over Table. The index stores no
// copy of the text; three triggers keep it in step with the base table.
type FTSIndex struct {
	Table    string
	Columns  []string
	Tokenize string
}

// Name is the virtual table name.
func (i FTSIndex) Name() string {
	return i.Table + "_fts"
}

func (i FTSIndex) triggerNames() []string {
	return []string{i.Name() + "_ai", i.Name() + "_ad", i.Name() + "_au"}
}

func (i FTSIndex) columnList(prefix string) string {
	cols := make([]string, 0, len(i.Columns))
	for _, c := range i.Columns {
		cols = append(cols, prefix+c)
	}
	return strings.Join(cols, ", ")
}

// CreateTable creates only the virtual table.
func (i FTSIndex) CreateTable(ctx context.Context, tx *Tx) error {
	stmt := fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING fts5(%s, content='%s', content_rowid='rowid', tokenize='%s')`,
		i.Name(), i.columnList(""), i.Table, i.Tokenize)

	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return errors.Wrapf(err, "failed to create %s", i.Name())
	}
	return nil
}

// CreateTriggers installs the insert, delete and update triggers. The update
// trigger removes the old values with the 'delete' command before indexing
// the new ones.
func (i FTSIndex) CreateTriggers(ctx context.Context, tx *Tx) error {
	name := i.Name()
	cols := i.columnList("")
	oldCols := i.columnList("old.")
	newCols := i.columnList("new.")

	stmts := []string{
		fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %s_ai AFTER INSERT ON %s BEGIN
	INSERT INTO %s(rowid, %s) VALUES (new.rowid, %s);
END`, name, i.Table, name, cols, newCols),
		fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %s_ad AFTER DELETE ON %s BEGIN
	INSERT INTO %s(%s, rowid, %s) VALUES ('delete', old.rowid, %s);
END`, name, i.Table, name, name, cols, oldCols),
		fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %s_au AFTER UPDATE ON %s BEGIN
	INSERT INTO %s(%s, rowid, %s) VALUES ('delete', old.rowid, %s);
	INSERT INTO %s(rowid, %s) VALUES (new.rowid, %s);
END`, name, i.Table, name, name, cols, oldCols, name, cols, newCols),
	}

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "failed to create triggers for %s", name)
		}
	}
	return nil
}

// Create creates the virtual table and its triggers.
func (i FTSIndex) Create(ctx context.Context, tx *Tx) error {
	if err := i.CreateTable(ctx, tx); err != nil {
		return err
	}
	return i.CreateTriggers(ctx, tx)
}

// Rebuild re-reads every row of the base table into the index.
func (i FTSIndex) Rebuild(ctx context.Context, tx *Tx) error {
	stmt := fmt.Sprintf(`INSERT INTO %s(%s) VALUES('rebuild')`, i.Name(), i.Name())
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return errors.Wrapf(err, "failed to rebuild %s", i.Name())
	}
	return nil
}

// Drop removes the triggers and then the virtual table.
func (i FTSIndex) Drop(ctx context.Context, tx *Tx) error {
	for _, trigger := range i.triggerNames() {
		if _, err := tx.ExecContext(ctx, `DROP TRIGGER IF EXISTS `+trigger); err != nil {
			return errors.Wrapf(err, "failed to drop trigger %s", trigger)
		}
	}

	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+i.Name()); err != nil {
		return errors.Wrapf(err, "failed to drop %s", i.Name())
	}
	return nil
}

// Repair drops, recreates and rebuilds the index. An index found in an
// unknown state is always replaced, never patched.
func (i FTSIndex) Repair(ctx context.Context, tx *Tx) error {
	if err := i.Drop(ctx, tx); err != nil {
		return err
	}
	if err := i.Create(ctx, tx); err != nil {
		return err
	}
	return i.Rebuild(ctx, tx)
}

// Check runs the FTS5 integrity check against the content table. A nil
// return means the index matches the base table.
func (i FTSIndex) Check(ctx context.Context, tx *Tx) error {
	stmt := fmt.Sprintf(`INSERT INTO %s(%s, rank) VALUES('integrity-check', 1)`, i.Name(), i.Name())
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return errors.Wrapf(err, "%s integrity check", i.Name())
	}
	return nil
}

// triggersInstalled reports whether all three triggers exist.
func (i FTSIndex) triggersInstalled(ctx context.Context, tx *Tx) (bool, error) {
	for _, trigger := range i.triggerNames() {
		var n int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'trigger' AND name = ?`, trigger).Scan(&n)
		if err != nil {
			return false, errors.Wrap(err, "error scanning row")
		}
		if n == 0 {
			return false, nil
		}
	}
	return true, nil
}

// matchQuery turns free text into an FTS5 query of quoted terms so user
// input never reaches the FTS5 query parser as syntax.
func matchQuery(text string) string {
	fields := strings.Fields(text)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, `""`)
		terms = append(terms, `"`+f+`"`)
	}
	return strings.Join(terms, " ")
}
