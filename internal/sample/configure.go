package sample

import (
	"errors"
	"fmt"

	"github.com/nrjais/emquery/pkg/typeconfig"
)

// DateLayout is how contact birth dates are rendered.
const DateLayout = "2006-01-02"

// Configure installs the built-in policies of the sample types. Settings from
// a configuration file are applied on top with ApplyModel.
func Configure(reg *typeconfig.Registry) error {
	err := errors.Join(
		typeconfig.ConfigureBase[ModelBase](reg).
			AllowFilteringAndSorting("Id", "CreatedDate").
			DefaultOrderBy("Id").
			Err(),
		typeconfig.Configure[Customer](reg).
			AllowFilteringAndSorting("Name").
			Exclude("Code").
			Extension("Contacts").
			Err(),
		typeconfig.Configure[Contact](reg).
			AllowFilteringAndSorting("Name", "Function", "IsAuthorizedToSign", "DateOfBirth", "CustomerId").
			Extension("Customer").
			Attribute("DateOfBirth", typeconfig.DateFormat{Layout: DateLayout}).
			Err(),
		typeconfig.Configure[Entity](reg).
			AllowFilteringAndSorting("Id", "Name", "Description", "Type", "IsCustomer", "Date", "ParentId").
			Extension("Parent").
			Err(),
	)
	if err != nil {
		return fmt.Errorf("failed to configure sample types: %w", err)
	}
	return nil
}
