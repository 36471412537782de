package sample

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS customers (
	id INTEGER PRIMARY KEY,
	created_date DATETIME NOT NULL,
	name TEXT NOT NULL,
	code TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS contacts (
	id INTEGER PRIMARY KEY,
	created_date DATETIME NOT NULL,
	name TEXT NOT NULL,
	function TEXT NOT NULL,
	is_authorized_to_sign BOOLEAN NOT NULL,
	date_of_birth DATE,
	customer_id INTEGER NOT NULL REFERENCES customers(id)
);
CREATE TABLE IF NOT EXISTS entities (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL,
	type TEXT NOT NULL,
	is_customer BOOLEAN NOT NULL,
	date DATETIME,
	parent_id INTEGER
);
`

// PopulateSQLite creates the sample tables and fills empty ones with the
// sample records.
func PopulateSQLite(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to create sample schema: %w", err)
	}

	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM customers").Scan(&n); err != nil {
		return fmt.Errorf("failed to count sample customers: %w", err)
	}
	if n > 0 {
		slog.Info("Sample tables already populated", "customers", n)
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	d := Data()
	for _, c := range d.Customers {
		_, err := tx.ExecContext(ctx, "INSERT INTO customers (id, created_date, name, code) VALUES (?, ?, ?, ?)",
			c.Id, c.CreatedDate, c.Name, c.Code)
		if err != nil {
			return fmt.Errorf("failed to insert customer %d: %w", c.Id, err)
		}
	}
	for _, c := range d.Contacts {
		_, err := tx.ExecContext(ctx, "INSERT INTO contacts (id, created_date, name, function, is_authorized_to_sign, date_of_birth, customer_id) VALUES (?, ?, ?, ?, ?, ?, ?)",
			c.Id, c.CreatedDate, c.Name, c.Function, c.IsAuthorizedToSign, c.DateOfBirth, c.CustomerId)
		if err != nil {
			return fmt.Errorf("failed to insert contact %d: %w", c.Id, err)
		}
	}
	for _, e := range d.Entities {
		_, err := tx.ExecContext(ctx, "INSERT INTO entities (id, name, description, type, is_customer, date, parent_id) VALUES (?, ?, ?, ?, ?, ?, ?)",
			e.Id, e.Name, e.Description, e.Type, e.IsCustomer, e.Date, e.ParentId)
		if err != nil {
			return fmt.Errorf("failed to insert entity %d: %w", e.Id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sample data: %w", err)
	}
	slog.Info("Populated sample tables",
		"customers", len(d.Customers),
		"contacts", len(d.Contacts),
		"entities", len(d.Entities))
	return nil
}
