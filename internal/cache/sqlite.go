package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/paulmach/orb"

	"github.com/emissions-api/worldmap/internal/models"
)

// SQLiteCache stores prepared cells in a single SQLite database, one row per
// cell keyed by (product, day, hex). Useful when caching many days of data
// without littering the working directory.
type SQLiteCache struct {
	db  *sql.DB
	log log.Interface
}

func NewSQLiteCache(db *sql.DB, logger log.Interface) *SQLiteCache {
	return &SQLiteCache{db: db, log: logger}
}

func (c *SQLiteCache) Load(product string, day time.Time) (models.Dataset, error) {
	rows, err := c.db.Query(`
		SELECT hex, mean_value, boundary
		FROM prepared_cells
		WHERE product = ? AND day = ?
		ORDER BY hex ASC
	`, product, day.Format(dayFormat))
	if err != nil {
		c.log.WithError(err).Debug("cache query failed, treating as miss")
		return nil, nil
	}
	defer rows.Close()

	var ds models.Dataset
	for rows.Next() {
		var cell models.Cell
		var boundary []byte
		if err := rows.Scan(&cell.Hex, &cell.Value, &boundary); err != nil {
			c.log.WithError(err).Debug("cache row unreadable, treating as miss")
			return nil, nil
		}
		var ring orb.Ring
		if err := json.Unmarshal(boundary, &ring); err != nil {
			c.log.WithError(err).Debug("cache boundary unreadable, treating as miss")
			return nil, nil
		}
		cell.Boundary = ring
		ds = append(ds, cell)
	}
	if err := rows.Err(); err != nil {
		c.log.WithError(err).Debug("cache scan failed, treating as miss")
		return nil, nil
	}
	if len(ds) == 0 {
		return nil, nil
	}
	return ds, nil
}

func (c *SQLiteCache) Save(ds models.Dataset, product string, day time.Time) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	dayKey := day.Format(dayFormat)
	if _, err := tx.Exec(`DELETE FROM prepared_cells WHERE product = ? AND day = ?`, product, dayKey); err != nil {
		tx.Rollback()
		return fmt.Errorf("clear cache entry: %w", err)
	}

	for _, cell := range ds {
		boundary, err := json.Marshal(cell.Boundary)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("marshal boundary for %s: %w", cell.Hex, err)
		}
		if _, err := tx.Exec(`
			INSERT INTO prepared_cells (product, day, hex, mean_value, boundary)
			VALUES (?, ?, ?, ?, ?)
		`, product, dayKey, cell.Hex, cell.Value, boundary); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert cell %s: %w", cell.Hex, err)
		}
	}
	return tx.Commit()
}
