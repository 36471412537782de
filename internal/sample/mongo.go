package sample

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Documents returns the sample records in the form they are stored in
// MongoDB: related records are embedded one level deep, without their back
// references.
func (d *Dataset) Documents() map[string][]any {
	docs := make(map[string][]any)
	for _, c := range d.Customers {
		c.Contacts = append([]Contact(nil), c.Contacts...)
		for i := range c.Contacts {
			c.Contacts[i].Customer = nil
		}
		docs[CustomersName] = append(docs[CustomersName], c)
	}
	for _, c := range d.Contacts {
		if c.Customer != nil {
			owner := *c.Customer
			owner.Contacts = nil
			c.Customer = &owner
		}
		docs[ContactsName] = append(docs[ContactsName], c)
	}
	for _, e := range d.Entities {
		docs[EntitiesName] = append(docs[EntitiesName], e)
	}
	return docs
}

// PopulateMongo fills empty sample collections.
func PopulateMongo(ctx context.Context, db *mongo.Database) error {
	for name, docs := range Data().Documents() {
		coll := db.Collection(name)
		n, err := coll.CountDocuments(ctx, bson.D{})
		if err != nil {
			return fmt.Errorf("failed to count documents in %s: %w", name, err)
		}
		if n > 0 {
			slog.Info("Sample collection already populated", "collection", name, "documents", n)
			continue
		}
		if _, err := coll.InsertMany(ctx, docs); err != nil {
			return fmt.Errorf("failed to insert sample documents into %s: %w", name, err)
		}
		slog.Info("Populated sample collection", "collection", name, "documents", len(docs))
	}
	return nil
}
