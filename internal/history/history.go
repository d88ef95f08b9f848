// Package history provides a small SQLite-backed local store for user
// habits: which foods were logged recently and which meal slot was used
// last. It feeds staging defaults and the `recent` command; the board
// itself never reads from it.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/nutriboard/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS recent_foods (
	food_id      TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	calories     REAL NOT NULL DEFAULT 0,
	protein_g    REAL NOT NULL DEFAULT 0,
	carb_g       REAL NOT NULL DEFAULT 0,
	fat_g        REAL NOT NULL DEFAULT 0,
	unit         TEXT NOT NULL DEFAULT 'GRAMA',
	meal_type    TEXT NOT NULL DEFAULT 'CAFE_MANHA',
	uses         INTEGER NOT NULL DEFAULT 1,
	last_used_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS prefs (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const lastSlotKey = "last_slot"

// Entry is one remembered food selection.
type Entry struct {
	Food       models.FoodReference
	Unit       models.MeasureUnit
	Slot       models.MealType
	Uses       int
	LastUsedAt time.Time
}

// Store wraps the SQLite connection.
type Store struct {
	conn *sql.DB
}

// Open opens (or creates) the history database and applies the schema.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("history: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history: apply schema: %w", err)
	}
	return &Store{conn: conn}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// RecordSelection upserts the food's recency row and remembers the slot
// it was committed to.
func (s *Store) RecordSelection(food models.FoodReference, unit models.MeasureUnit, slot models.MealType) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("history: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO recent_foods (food_id, name, calories, protein_g, carb_g, fat_g, unit, meal_type, uses, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT(food_id) DO UPDATE SET
			name         = excluded.name,
			calories     = excluded.calories,
			protein_g    = excluded.protein_g,
			carb_g       = excluded.carb_g,
			fat_g        = excluded.fat_g,
			unit         = excluded.unit,
			meal_type    = excluded.meal_type,
			uses         = uses + 1,
			last_used_at = excluded.last_used_at
	`, food.ID.String(), food.Name, food.CaloriesPer100, food.ProteinPer100, food.CarbPer100, food.FatPer100,
		string(unit), string(slot), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("history: upsert food: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO prefs (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, lastSlotKey, string(slot))
	if err != nil {
		return fmt.Errorf("history: upsert last slot: %w", err)
	}

	return tx.Commit()
}

// RecentFoods returns up to limit entries, most recently used first.
func (s *Store) RecentFoods(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.conn.Query(`
		SELECT food_id, name, calories, protein_g, carb_g, fat_g, unit, meal_type, uses, last_used_at
		FROM recent_foods
		ORDER BY last_used_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query recent: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e     Entry
			rawID string
			unit  string
			slot  string
		)
		if err := rows.Scan(&rawID, &e.Food.Name, &e.Food.CaloriesPer100, &e.Food.ProteinPer100,
			&e.Food.CarbPer100, &e.Food.FatPer100, &unit, &slot, &e.Uses, &e.LastUsedAt); err != nil {
			return nil, fmt.Errorf("history: scan recent: %w", err)
		}
		id, err := uuid.Parse(rawID)
		if err != nil {
			return nil, fmt.Errorf("history: bad food id %q: %w", rawID, err)
		}
		e.Food.ID = id
		e.Unit = models.MeasureUnit(unit)
		e.Slot = models.MealType(slot)
		out = append(out, e)
	}
	return out, rows.Err()
}

// LastSlot returns the slot of the most recent commit, if any.
func (s *Store) LastSlot() (models.MealType, bool, error) {
	var value string
	err := s.conn.QueryRow(`SELECT value FROM prefs WHERE key = ?`, lastSlotKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("history: read last slot: %w", err)
	}
	slot, err := models.ParseMealType(value)
	if err != nil {
		return "", false, nil
	}
	return slot, true, nil
}
