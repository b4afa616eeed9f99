package record

import "errors"

var (
	// ErrUnknownField is returned for names that are neither a field nor an
	// inherited field of the record's model.
	ErrUnknownField = errors.New("record: unknown field")
	// ErrNotEditable is returned when writing a companion column that is
	// maintained by its relation.
	ErrNotEditable = errors.New("record: field is not editable")
	// ErrNotRelation is returned when a to-one relation is expected.
	ErrNotRelation = errors.New("record: field is not a foreign key")
	// ErrManyToMany is returned when reading or writing a many-to-many
	// relation as a value; use Store.Relation instead.
	ErrManyToMany = errors.New("record: many-to-many relations hold no value")
	// ErrWrongModel is returned when linking a record of another model.
	ErrWrongModel = errors.New("record: record belongs to another model")
	// ErrUnsaved is returned when an operation needs a stored record.
	ErrUnsaved = errors.New("record: record is not saved")
)
