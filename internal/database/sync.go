package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/varoOP/biblestore/internal/domain"
)

// timeLayout is fixed width so stored timestamps order correctly as text.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// syncColumns are shared by every table of the content family, in scan order.
var syncColumns = []string{"id", "user_id", "created_at", "updated_at", "deleted_at", "needs_sync"}

var clock = func() time.Time {
	return time.Now().UTC()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid timestamp %q", s)
	}
	return t.UTC(), nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// newID returns a time ordered identifier.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// touch prepares meta for a local mutation: it assigns an id and creation
// time when missing, bumps updated_at and raises needs_sync. upsertRow
// reconciles the times with a stored row.
func touch(meta *domain.SyncMeta, at time.Time) {
	at = at.Truncate(time.Millisecond)
	if meta.ID == "" {
		meta.ID = newID()
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = at
	}
	meta.UpdatedAt = after(at, meta.UpdatedAt)
	meta.NeedsSync = true
}

// after returns at, or prev plus one millisecond when at does not follow
// prev. Every local change of a row gets a distinct stored updated_at.
func after(at, prev time.Time) time.Time {
	if at.After(prev) {
		return at
	}
	return prev.Add(time.Millisecond)
}

func syncValues(meta *domain.SyncMeta) []any {
	return []any{
		meta.ID,
		meta.UserID,
		formatTime(meta.CreatedAt),
		formatTime(meta.UpdatedAt),
		formatNullTime(meta.DeletedAt),
		boolToInt(meta.NeedsSync),
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// metaScanner receives the sync columns of a row.
type metaScanner struct {
	created string
	updated string
	deleted sql.NullString
	needs   int
}

func (s *metaScanner) dest(meta *domain.SyncMeta) []any {
	return []any{&meta.ID, &meta.UserID, &s.created, &s.updated, &s.deleted, &s.needs}
}

func (s *metaScanner) apply(meta *domain.SyncMeta) error {
	var err error
	if meta.CreatedAt, err = parseTime(s.created); err != nil {
		return err
	}
	if meta.UpdatedAt, err = parseTime(s.updated); err != nil {
		return err
	}
	if meta.DeletedAt, err = parseNullTime(s.deleted); err != nil {
		return err
	}
	meta.NeedsSync = s.needs != 0
	return nil
}

// live restricts a query to rows that are not soft deleted.
func live(table string) sq.Eq {
	return sq.Eq{table + ".deleted_at": nil}
}

// upsertRow inserts a row or updates every column but id, user_id and
// created_at. An existing row owned by another user is left untouched and
// domain.ErrOwnerMismatch is returned. On update meta takes the stored
// created_at. ON CONFLICT is used instead of REPLACE so that FTS update
// triggers fire.
func upsertRow(ctx context.Context, tx *Tx, table string, columns []string, meta *domain.SyncMeta, fields ...any) error {
	stored, err := storedMeta(ctx, tx, table, meta.ID)
	if err != nil {
		return err
	}
	if stored != nil {
		if stored.UserID != meta.UserID {
			return errors.Wrapf(domain.ErrOwnerMismatch, "%s %s", table, meta.ID)
		}
		meta.CreatedAt = stored.CreatedAt
		meta.UpdatedAt = after(meta.UpdatedAt, stored.UpdatedAt)
	}

	updates := make([]string, 0, len(columns))
	for _, c := range columns {
		if c == "id" || c == "user_id" || c == "created_at" {
			continue
		}
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", c, c))
	}

	queryBuilder := tx.Builder().
		Insert(table).
		Columns(columns...).
		Values(append(syncValues(meta), fields...)...).
		Suffix(fmt.Sprintf("ON CONFLICT(id) DO UPDATE SET %s WHERE %s.user_id = excluded.user_id",
			strings.Join(updates, ", "), table))

	_, err = tx.exec(ctx, "upsert "+table, queryBuilder)
	return err
}

// storedMeta loads the sync columns of row id, nil when it does not exist.
func storedMeta(ctx context.Context, tx *Tx, table, id string) (*domain.SyncMeta, error) {
	queryBuilder := tx.Builder().
		Select(syncColumns...).
		From(table).
		Where(sq.Eq{"id": id})

	row, err := tx.queryRow(ctx, "stored meta "+table, queryBuilder)
	if err != nil {
		return nil, err
	}

	var meta domain.SyncMeta
	var scan metaScanner
	if err := row.Scan(scan.dest(&meta)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "error scanning row")
	}
	if err := scan.apply(&meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// softDelete marks a row deleted and flags it for sync. Deleting an already
// deleted row is a no-op; an unknown id is domain.ErrNotFound.
func softDelete(ctx context.Context, tx *Tx, table, id string) error {
	stored, err := storedMeta(ctx, tx, table, id)
	if err != nil {
		return err
	}
	if stored == nil {
		return errors.Wrapf(domain.ErrNotFound, "%s %s", table, id)
	}
	if stored.IsDeleted() {
		return nil
	}

	at := formatTime(after(clock().Truncate(time.Millisecond), stored.UpdatedAt))

	queryBuilder := tx.Builder().
		Update(table).
		Set("deleted_at", at).
		Set("updated_at", at).
		Set("needs_sync", 1).
		Where(sq.Eq{"id": id, "deleted_at": nil})

	_, err = tx.exec(ctx, "soft delete "+table, queryBuilder)
	return err
}

// markChanged applies set to the live row id, moves updated_at past its
// stored value and raises needs_sync. An unknown or deleted id is
// domain.ErrNotFound.
func markChanged(ctx context.Context, tx *Tx, table, id string, set map[string]any) error {
	stored, err := storedMeta(ctx, tx, table, id)
	if err != nil {
		return err
	}
	if stored == nil || stored.IsDeleted() {
		return errors.Wrapf(domain.ErrNotFound, "%s %s", table, id)
	}

	queryBuilder := tx.Builder().
		Update(table).
		SetMap(set).
		Set("updated_at", formatTime(after(clock().Truncate(time.Millisecond), stored.UpdatedAt))).
		Set("needs_sync", 1).
		Where(sq.Eq{"id": id})

	_, err = tx.exec(ctx, "mark changed "+table, queryBuilder)
	return err
}

// isSyncTable guards table names that are interpolated into SQL.
func isSyncTable(table string) bool {
	for _, t := range SyncTables {
		if t == table {
			return true
		}
	}
	return false
}

// prefixed qualifies columns with table.
func prefixed(table string, columns []string) []string {
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		out = append(out, table+"."+c)
	}
	return out
}
