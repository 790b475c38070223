// Package sqlite provides a single-file encounter store on the pure-Go
// modernc SQLite driver, for tables run from one laptop.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/cory-johannsen/initiative/internal/game/combat"
	"github.com/cory-johannsen/initiative/internal/storage/sqlite/migrations"
)

const encounterColumns = `id, name, phase, round, turn_index, is_active, outcome, created_at, updated_at`

const combatantColumns = `id, encounter_id, name, initiative_roll, armor_class, max_hp,
	damage_taken, is_player, is_active, sort_order, created_at`

// Store persists encounters in SQLite.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite store at path and applies embedded migrations.
//
// Postcondition: Returns a ready Store or a non-nil error. The caller must Close it.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping checks that the database file is still usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

// CreateEncounter inserts a new encounter in phase setup.
func (s *Store) CreateEncounter(ctx context.Context, name string) (*combat.Encounter, error) {
	now := toMillis(s.now())
	enc, err := scanEncounter(s.sqlDB.QueryRowContext(ctx,
		`INSERT INTO encounters (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)
		 RETURNING `+encounterColumns,
		uuid.NewString(), name, now, now,
	))
	if err != nil {
		return nil, mapError(fmt.Errorf("insert encounter: %w", err))
	}
	enc.Combatants = []*combat.Combatant{}
	return enc, nil
}

// ListEncounters returns all encounters with their combatants, oldest first.
func (s *Store) ListEncounters(ctx context.Context) ([]*combat.Encounter, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT `+encounterColumns+` FROM encounters ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("list encounters: %w", err)
	}
	encs, err := collect(rows, scanEncounter)
	if err != nil {
		return nil, fmt.Errorf("scan encounters: %w", err)
	}
	byID := make(map[string]*combat.Encounter, len(encs))
	for _, enc := range encs {
		enc.Combatants = []*combat.Combatant{}
		byID[enc.ID] = enc
	}

	rows, err = s.sqlDB.QueryContext(ctx, `SELECT `+combatantColumns+` FROM combatants ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("list combatants: %w", err)
	}
	cs, err := collect(rows, scanCombatant)
	if err != nil {
		return nil, fmt.Errorf("scan combatants: %w", err)
	}
	for _, c := range cs {
		if enc, ok := byID[c.EncounterID]; ok {
			enc.Combatants = append(enc.Combatants, c)
		}
	}
	return encs, nil
}

// GetEncounter returns the encounter with its combatants.
func (s *Store) GetEncounter(ctx context.Context, id string) (*combat.Encounter, error) {
	enc, err := scanEncounter(s.sqlDB.QueryRowContext(ctx,
		`SELECT `+encounterColumns+` FROM encounters WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, combat.EncounterNotFound(id)
		}
		return nil, fmt.Errorf("get encounter: %w", err)
	}
	if enc.Combatants, err = s.ListCombatants(ctx, id); err != nil {
		return nil, err
	}
	return enc, nil
}

// UpdateEncounter applies patch in a single statement.
//
// Postcondition: Returns a ConflictError when the patch would make a second
// encounter live.
func (s *Store) UpdateEncounter(ctx context.Context, id string, patch combat.EncounterPatch) (*combat.Encounter, error) {
	var name, phase *string
	if patch.Name != nil {
		n := strings.TrimSpace(*patch.Name)
		name = &n
	}
	if patch.Phase != nil {
		p := string(*patch.Phase)
		phase = &p
	}
	enc, err := scanEncounter(s.sqlDB.QueryRowContext(ctx,
		`UPDATE encounters SET
		   name       = COALESCE(?, name),
		   phase      = COALESCE(?, phase),
		   round      = COALESCE(?, round),
		   turn_index = COALESCE(?, turn_index),
		   is_active  = COALESCE(?, is_active),
		   outcome    = COALESCE(?, outcome),
		   updated_at = ?
		 WHERE id = ?
		 RETURNING `+encounterColumns,
		name, phase, patch.Round, patch.TurnIndex, patch.IsActive, patch.Outcome, toMillis(s.now()), id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, combat.EncounterNotFound(id)
		}
		return nil, mapError(fmt.Errorf("update encounter: %w", err))
	}
	if enc.Combatants, err = s.ListCombatants(ctx, id); err != nil {
		return nil, err
	}
	return enc, nil
}

// DeleteEncounter removes the encounter and its combatants. Unknown ids are a no-op.
func (s *Store) DeleteEncounter(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM combatants WHERE encounter_id = ?`, id); err != nil {
			return fmt.Errorf("delete combatants: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM encounters WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete encounter: %w", err)
		}
		return nil
	})
}

// AddCombatant inserts a combatant and touches the parent encounter.
//
// Precondition: in.Validate() == nil.
func (s *Store) AddCombatant(ctx context.Context, encounterID string, in combat.NewCombatant) (*combat.Combatant, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	c := in.Build(uuid.NewString(), encounterID)
	now := toMillis(s.now())

	var out *combat.Combatant
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE encounters SET updated_at = ? WHERE id = ?`, now, encounterID)
		if err != nil {
			return fmt.Errorf("touch encounter: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("touch encounter: %w", err)
		} else if n == 0 {
			return combat.EncounterNotFound(encounterID)
		}
		out, err = scanCombatant(tx.QueryRowContext(ctx,
			`INSERT INTO combatants
			   (id, encounter_id, name, initiative_roll, armor_class, max_hp, is_player, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 RETURNING `+combatantColumns,
			c.ID, encounterID, c.Name, c.InitiativeRoll, c.ArmorClass, c.MaxHP, c.IsPlayer, now,
		))
		if err != nil {
			return fmt.Errorf("insert combatant: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

// ListCombatants returns the encounter's combatants in insertion order.
func (s *Store) ListCombatants(ctx context.Context, encounterID string) ([]*combat.Combatant, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+combatantColumns+` FROM combatants WHERE encounter_id = ? ORDER BY seq ASC`, encounterID)
	if err != nil {
		return nil, fmt.Errorf("list combatants: %w", err)
	}
	cs, err := collect(rows, scanCombatant)
	if err != nil {
		return nil, fmt.Errorf("scan combatants: %w", err)
	}
	if len(cs) == 0 {
		var exists bool
		if err := s.sqlDB.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM encounters WHERE id = ?)`, encounterID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("check encounter: %w", err)
		}
		if !exists {
			return nil, combat.EncounterNotFound(encounterID)
		}
	}
	return cs, nil
}

// GetCombatant returns the combatant.
func (s *Store) GetCombatant(ctx context.Context, id string) (*combat.Combatant, error) {
	c, err := scanCombatant(s.sqlDB.QueryRowContext(ctx,
		`SELECT `+combatantColumns+` FROM combatants WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, combat.CombatantNotFound(id)
		}
		return nil, fmt.Errorf("get combatant: %w", err)
	}
	return c, nil
}

// UpdateCombatant applies patch in a single statement.
func (s *Store) UpdateCombatant(ctx context.Context, id string, patch combat.CombatantPatch) (*combat.Combatant, error) {
	return s.updateCombatant(ctx, id,
		`UPDATE combatants SET
		   initiative_roll = COALESCE(?, initiative_roll),
		   armor_class     = COALESCE(?, armor_class),
		   max_hp          = COALESCE(?, max_hp),
		   damage_taken    = COALESCE(?, damage_taken),
		   is_active       = COALESCE(?, is_active),
		   sort_order      = COALESCE(?, sort_order)
		 WHERE id = ?
		 RETURNING `+combatantColumns,
		patch.InitiativeRoll, patch.ArmorClass, patch.MaxHP, patch.DamageTaken, patch.IsActive, patch.Order, id,
	)
}

// ApplyDamageDelta adjusts the damage counter in place, flooring at zero.
func (s *Store) ApplyDamageDelta(ctx context.Context, id string, delta int) (*combat.Combatant, error) {
	return s.updateCombatant(ctx, id,
		`UPDATE combatants SET damage_taken = MAX(damage_taken + ?, 0)
		 WHERE id = ?
		 RETURNING `+combatantColumns,
		delta, id,
	)
}

// RemoveCombatant deletes the combatant. Unknown ids are a no-op.
func (s *Store) RemoveCombatant(ctx context.Context, id string) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM combatants WHERE id = ?`, id); err != nil {
		return fmt.Errorf("remove combatant: %w", err)
	}
	return nil
}

func (s *Store) updateCombatant(ctx context.Context, id, query string, args ...any) (*combat.Combatant, error) {
	c, err := scanCombatant(s.sqlDB.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, combat.CombatantNotFound(id)
		}
		return nil, mapError(fmt.Errorf("update combatant: %w", err))
	}
	return c, nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEncounter(row scanner) (*combat.Encounter, error) {
	var (
		enc                  combat.Encounter
		phase                string
		outcome              sql.NullString
		createdAt, updatedAt int64
	)
	if err := row.Scan(&enc.ID, &enc.Name, &phase, &enc.Round, &enc.TurnIndex,
		&enc.IsActive, &outcome, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	enc.Phase = combat.Phase(phase)
	if outcome.Valid {
		enc.Outcome = &outcome.String
	}
	enc.CreatedAt = fromMillis(createdAt)
	enc.UpdatedAt = fromMillis(updatedAt)
	return &enc, nil
}

func scanCombatant(row scanner) (*combat.Combatant, error) {
	var (
		c         combat.Combatant
		ac, maxHP sql.NullInt64
		createdAt int64
	)
	if err := row.Scan(&c.ID, &c.EncounterID, &c.Name, &c.InitiativeRoll, &ac, &maxHP,
		&c.DamageTaken, &c.IsPlayer, &c.IsActive, &c.Order, &createdAt); err != nil {
		return nil, err
	}
	if ac.Valid {
		c.ArmorClass = combat.Int(int(ac.Int64))
	}
	if maxHP.Valid {
		c.MaxHP = combat.Int(int(maxHP.Int64))
	}
	c.CreatedAt = fromMillis(createdAt)
	return &c, nil
}

func collect[T any](rows *sql.Rows, scan func(scanner) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// mapError converts constraint violations into domain errors.
func mapError(err error) error {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return &combat.ConflictError{Reason: "another encounter is already live"}
		case sqlite3lib.SQLITE_CONSTRAINT_CHECK:
			return &combat.ValidationError{Reason: "value violates a storage constraint", Err: err}
		}
	}
	return err
}

const migrationTable = "schema_migrations"

// applyMigrations executes each embedded .sql file at most once, in name order.
func applyMigrations(sqlDB *sql.DB, migrationFS fs.FS) error {
	if _, err := sqlDB.Exec(`CREATE TABLE IF NOT EXISTS ` + migrationTable + ` (
		name TEXT PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, file := range files {
		var applied bool
		if err := sqlDB.QueryRow(`SELECT EXISTS (SELECT 1 FROM `+migrationTable+` WHERE name = ?)`, file).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", file, err)
		}
		if applied {
			continue
		}
		content, err := fs.ReadFile(migrationFS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		tx, err := sqlDB.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", file, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", file, err)
		}
		if _, err := tx.Exec(`INSERT INTO `+migrationTable+` (name, applied_at) VALUES (?, ?)`, file, toMillis(time.Now())); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
	}
	return nil
}
