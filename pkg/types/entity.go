// Package types provides the document model shared by the generator, the loader and the query helpers.
package types

import "time"

// Collection names used by the fanout loader and the query helpers.
const (
	CollectionUsers     = "users"
	CollectionWorkbooks = "workbooks"
	CollectionTables    = "tables"
	CollectionFields    = "fields"
	CollectionItems     = "items"
	CollectionRecords   = "records"
)

// FieldType is the declared type of a table column.
type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeNumber  FieldType = "number"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeDate    FieldType = "date"
)

// FieldTypes lists every declared field type in a stable order.
var FieldTypes = []FieldType{FieldTypeString, FieldTypeNumber, FieldTypeBoolean, FieldTypeDate}

// Valid reports whether t is one of the known field types.
func (t FieldType) Valid() bool {
	switch t {
	case FieldTypeString, FieldTypeNumber, FieldTypeBoolean, FieldTypeDate:
		return true
	default:
		return false
	}
}

// User is the root of a generated entity graph.
type User struct {
	// ID is assigned by the store on insert; nil for generated users
	ID any `json:"_id,omitempty" bson:"_id,omitempty"`

	Name  string `json:"name" bson:"name"`
	Email string `json:"email" bson:"email"`

	// Workbooks owned by the user, in generation order
	Workbooks []*Workbook `json:"workbooks" bson:"workbooks"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Workbook groups tables owned by a single user.
type Workbook struct {
	ID          any      `json:"_id,omitempty" bson:"_id,omitempty"`
	Name        string   `json:"name" bson:"name"`
	Description string   `json:"description" bson:"description"`
	Tables      []*Table `json:"tables" bson:"tables"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Table holds a field definition list and the items that conform to it.
type Table struct {
	ID          any      `json:"_id,omitempty" bson:"_id,omitempty"`
	Name        string   `json:"name" bson:"name"`
	Description string   `json:"description" bson:"description"`
	Fields      []*Field `json:"fields" bson:"fields"`
	Items       []*Item  `json:"items" bson:"items"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Field declares one column of a table.
type Field struct {
	Name        string    `json:"name" bson:"name"`
	Type        FieldType `json:"type" bson:"type"`
	Required    bool      `json:"required" bson:"required"`
	Description string    `json:"description" bson:"description"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Item is a row of a table. Values is keyed by field name and each value
// matches the declared type of its field.
type Item struct {
	Values map[string]any `json:"values" bson:"values"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// DocumentCount returns the number of documents the fanout loader writes for u.
func (u *User) DocumentCount() int {
	n := 1
	for _, wb := range u.Workbooks {
		n++
		for _, tbl := range wb.Tables {
			n += 1 + len(tbl.Items) + len(tbl.Fields)
		}
	}
	return n
}
