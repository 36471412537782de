package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nrjais/emquery/internal/catalog"
	"github.com/nrjais/emquery/internal/config"
	"github.com/nrjais/emquery/internal/db"
	"github.com/nrjais/emquery/internal/migrations"
	"github.com/nrjais/emquery/internal/sample"
	"github.com/nrjais/emquery/pkg/source/mongosource"
	"github.com/nrjais/emquery/pkg/source/sqlsource"
)

// Entity names served by the sample catalog.
const (
	customerEntity = "Customer"
	contactEntity  = "Contact"
	entityEntity   = "Entity"
)

// registerEntities connects the configured source and registers the sample
// entities on c. The returned func releases the connection.
func registerEntities(ctx context.Context, cfg *config.Config, c *catalog.Catalog) (func(), error) {
	slog.Info("Registering sample entities", "source", cfg.Source.Kind)

	switch cfg.Source.Kind {
	case config.SourceMemory:
		d := sample.Data()
		return func() {}, errors.Join(
			catalog.RegisterSlice(c, customerEntity, d.Customers),
			catalog.RegisterSlice(c, contactEntity, d.Contacts),
			catalog.RegisterSlice(c, entityEntity, d.Entities),
		)

	case config.SourceSQLite:
		sqlDB, err := db.OpenSQLite(ctx, cfg.Source.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := sample.PopulateSQLite(ctx, sqlDB); err != nil {
			sqlDB.Close()
			return nil, err
		}
		closeDB := func() {
			if err := sqlDB.Close(); err != nil {
				slog.Warn("Error closing sqlite database", "error", err)
			}
		}
		if err := registerSQL(c, sqlsource.FromDB(sqlDB), sqlsource.SQLite); err != nil {
			closeDB()
			return nil, err
		}
		return closeDB, nil

	case config.SourcePostgres:
		if err := migrations.RunMigrations(cfg.Source.PostgresURL); err != nil {
			return nil, fmt.Errorf("database migration failed: %w", err)
		}
		pool, err := db.ConnectPostgres(ctx, cfg.Source.PostgresURL)
		if err != nil {
			return nil, err
		}
		if err := registerSQL(c, sqlsource.FromPool(pool), sqlsource.Postgres); err != nil {
			pool.Close()
			return nil, err
		}
		return pool.Close, nil

	case config.SourceMongo:
		client, err := db.ConnectMongo(ctx, cfg.Source.MongoURL)
		if err != nil {
			return nil, err
		}
		database := client.Database(cfg.Source.MongoDatabase)
		if err := sample.PopulateMongo(ctx, database); err != nil {
			db.DisconnectMongo(client)
			return nil, err
		}
		err = errors.Join(
			catalog.Register[sample.Customer](c, customerEntity, mongosource.New[sample.Customer](database.Collection(sample.CustomersName))),
			catalog.Register[sample.Contact](c, contactEntity, mongosource.New[sample.Contact](database.Collection(sample.ContactsName))),
			catalog.Register[sample.Entity](c, entityEntity, mongosource.New[sample.Entity](database.Collection(sample.EntitiesName))),
		)
		if err != nil {
			db.DisconnectMongo(client)
			return nil, err
		}
		return func() { db.DisconnectMongo(client) }, nil
	}
	return nil, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
}

func registerSQL(c *catalog.Catalog, q sqlsource.Querier, dialect sqlsource.Dialect) error {
	customers, err := sqlsource.New[sample.Customer](q, dialect, sample.CustomersName)
	if err != nil {
		return err
	}
	contacts, err := sqlsource.New[sample.Contact](q, dialect, sample.ContactsName)
	if err != nil {
		return err
	}
	entities, err := sqlsource.New[sample.Entity](q, dialect, sample.EntitiesName)
	if err != nil {
		return err
	}
	return errors.Join(
		catalog.Register[sample.Customer](c, customerEntity, customers),
		catalog.Register[sample.Contact](c, contactEntity, contacts),
		catalog.Register[sample.Entity](c, entityEntity, entities),
	)
}
