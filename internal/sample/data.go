package sample

import "time"

var created = time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func ptr[T any](v T) *T {
	return &v
}

// Dataset is one freshly built copy of the sample records. Customers and
// contacts reference each other.
type Dataset struct {
	Customers []Customer
	Contacts  []Contact
	Entities  []Entity
}

func Data() *Dataset {
	customers := []*Customer{
		{ModelBase: ModelBase{Id: 1, CreatedDate: created}, Name: "Acme Corporation", Code: "ACME"},
		{ModelBase: ModelBase{Id: 2, CreatedDate: created}, Name: "Globex", Code: "GLBX"},
		{ModelBase: ModelBase{Id: 3, CreatedDate: created.AddDate(1, 0, 0)}, Name: "Initech", Code: "INIT"},
	}
	contacts := []Contact{
		{ModelBase: ModelBase{Id: 1, CreatedDate: created}, Name: "Wile Coyote", Function: "Buyer", DateOfBirth: date(1949, time.September, 17), CustomerId: 1},
		{ModelBase: ModelBase{Id: 2, CreatedDate: created}, Name: "Road Runner", Function: "Director", IsAuthorizedToSign: true, CustomerId: 1},
		{ModelBase: ModelBase{Id: 3, CreatedDate: created}, Name: "Hank Scorpio", Function: "CEO", IsAuthorizedToSign: true, DateOfBirth: date(1956, time.March, 3), CustomerId: 2},
		{ModelBase: ModelBase{Id: 4, CreatedDate: created.AddDate(1, 0, 0)}, Name: "Bill Lumbergh", Function: "Vice President", CustomerId: 3},
		{ModelBase: ModelBase{Id: 5, CreatedDate: created.AddDate(1, 0, 0)}, Name: "Milton Waddams", Function: "Collator", DateOfBirth: date(1960, time.June, 1), CustomerId: 3},
	}
	for i := range contacts {
		c := customers[contacts[i].CustomerId-1]
		contacts[i].Customer = c
		c.Contacts = append(c.Contacts, contacts[i])
	}

	d := &Dataset{Contacts: contacts, Entities: entities()}
	for _, c := range customers {
		d.Customers = append(d.Customers, *c)
	}
	return d
}

func entities() []Entity {
	parents := []Parent{
		{Id: 1, Name: "Related to A"},
		{Id: 2, Name: "Related to B"},
		{Id: 3, Name: "Related to C"},
		{Id: 4, Name: "Related to E"},
		{Id: 5, Name: "Related to F"},
	}
	es := []Entity{
		{Id: 1, Name: "A", Description: "Entity A", Type: "Customer", IsCustomer: true, Date: date(2020, time.January, 1), ParentId: ptr(1)},
		{Id: 2, Name: "B", Description: "Entity B", Type: "Supplier", ParentId: ptr(2)},
		{Id: 3, Name: "C", Description: "Entiteit C", Type: "Customer", IsCustomer: true, Date: date(2021, time.June, 15), ParentId: ptr(3)},
		{Id: 4, Name: "D", Description: "Entiteit D", Type: "Supplier"},
		{Id: 5, Name: "E", Description: "Entity E", Type: "Customer", IsCustomer: true, ParentId: ptr(4)},
		{Id: 6, Name: "F", Description: "Ent'ity F", Type: "Prospect", Date: date(2022, time.December, 31), ParentId: ptr(5)},
	}
	for i := range es {
		if es[i].ParentId != nil {
			parent := parents[*es[i].ParentId-1]
			es[i].Parent = &parent
		}
	}
	return es
}
