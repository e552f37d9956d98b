package models

import (
	"f0oster/lineage/apperrors"
)

const (
	FieldTitle       = "Title"
	FieldDescription = "Description"
)

// Keys owned by the versioning engine. They can never be set through a patch.
var reservedFields = map[string]struct{}{
	"UUID":             {},
	"Code":             {},
	"Object_Type":      {},
	"Object_ID":        {},
	"Adjust_On":        {},
	"Modified_Date":    {},
	"Modified_By_UUID": {},
	"Created_Date":     {},
	"Created_By_UUID":  {},
	"Start_Validity":   {},
	"End_Validity":     {},
	"Module_ID":        {},
	"Deleted":          {},
}

func IsReservedField(name string) bool {
	_, ok := reservedFields[name]
	return ok
}

// ApplyChanges returns a copy of p with the field level changes applied.
// A nil value removes a dynamic field.
func ApplyChanges(p Payload, changes map[string]any) (Payload, error) {
	out := p.Clone()
	for name, value := range changes {
		if name == "" {
			return Payload{}, apperrors.InvalidInput("empty field name")
		}
		if IsReservedField(name) {
			return Payload{}, apperrors.InvalidInput("field %s cannot be changed", name)
		}

		switch name {
		case FieldTitle:
			title, err := asString(name, value)
			if err != nil {
				return Payload{}, err
			}
			out.Title = title
		case FieldDescription:
			description, err := asString(name, value)
			if err != nil {
				return Payload{}, err
			}
			out.Description = description
		default:
			if value == nil {
				delete(out.Fields, name)
				continue
			}
			out.Fields[name] = cloneValue(value)
		}
	}
	return out, nil
}

func asString(name string, value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return "", apperrors.InvalidInput("field %s must be a string, got %T", name, value)
	}
}
