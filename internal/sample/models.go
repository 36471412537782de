// Package sample holds the record types, seed data and type configuration
// the server exposes out of the box.
package sample

import (
	"reflect"
	"time"
)

// ModelBase is embedded by the customer records; its configuration is shared
// through a base configuration.
type ModelBase struct {
	Id          int       `query:"key" db:"id" bson:"_id"`
	CreatedDate time.Time `db:"created_date" bson:"createdDate"`
}

type Customer struct {
	ModelBase `bson:",inline"`
	Name      string    `bson:"name"`
	Code      string    `bson:"code"`
	Contacts  []Contact `bson:"contacts,omitempty"`
}

type Contact struct {
	ModelBase          `bson:",inline"`
	Name               string     `bson:"name"`
	Function           string     `bson:"function"`
	IsAuthorizedToSign bool       `bson:"isAuthorizedToSign"`
	DateOfBirth        *time.Time `bson:"dateOfBirth,omitempty"`
	CustomerId         int        `bson:"customerId"`
	Customer           *Customer  `bson:"customer,omitempty"`
}

type Entity struct {
	Id          int        `query:"key" bson:"_id"`
	Name        string     `bson:"name"`
	Description string     `bson:"description"`
	Type        string     `bson:"type"`
	IsCustomer  bool       `bson:"isCustomer"`
	Date        *time.Time `bson:"date,omitempty"`
	ParentId    *int       `bson:"parentId,omitempty"`
	Parent      *Parent    `bson:"parent,omitempty"`
}

type Parent struct {
	Id   int    `query:"key" bson:"_id"`
	Name string `bson:"name"`
}

// Table and collection names of the sample entities.
const (
	CustomersName = "customers"
	ContactsName  = "contacts"
	EntitiesName  = "entities"
)

// Types maps the names used in configuration files to the sample types.
func Types() map[string]reflect.Type {
	return map[string]reflect.Type{
		"ModelBase": reflect.TypeFor[ModelBase](),
		"Customer":  reflect.TypeFor[Customer](),
		"Contact":   reflect.TypeFor[Contact](),
		"Entity":    reflect.TypeFor[Entity](),
		"Parent":    reflect.TypeFor[Parent](),
	}
}
