package types

import "time"

// The *Doc types are the shapes actually written to the store. They are built
// from the in-memory tree and never share slices with it: child collections
// are written as empty arrays and parent links are filled from ids the store
// assigned to the parent.

// UserDoc is the insert view of a User.
type UserDoc struct {
	Name      string    `bson:"name"`
	Email     string    `bson:"email"`
	Workbooks []any     `bson:"workbooks"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// WorkbookDoc is the insert view of a Workbook.
type WorkbookDoc struct {
	UserID      any       `bson:"userId"`
	Name        string    `bson:"name"`
	Description string    `bson:"description"`
	Tables      []any     `bson:"tables"`
	CreatedAt   time.Time `bson:"createdAt"`
	UpdatedAt   time.Time `bson:"updatedAt"`
}

// TableDoc is the insert view of a Table.
type TableDoc struct {
	WorkbookID  any       `bson:"workbookId"`
	Name        string    `bson:"name"`
	Description string    `bson:"description"`
	Fields      []any     `bson:"fields"`
	Items       []any     `bson:"items"`
	CreatedAt   time.Time `bson:"createdAt"`
	UpdatedAt   time.Time `bson:"updatedAt"`
}

// FieldDoc is the insert view of a Field.
type FieldDoc struct {
	TableID     any       `bson:"tableId"`
	Name        string    `bson:"name"`
	Type        FieldType `bson:"type"`
	Required    bool      `bson:"required"`
	Description string    `bson:"description"`
	CreatedAt   time.Time `bson:"createdAt"`
	UpdatedAt   time.Time `bson:"updatedAt"`
}

// ItemDoc is the insert view of an Item.
type ItemDoc struct {
	TableID   any            `bson:"tableId"`
	Values    map[string]any `bson:"values"`
	CreatedAt time.Time      `bson:"createdAt"`
	UpdatedAt time.Time      `bson:"updatedAt"`
}

// InsertView returns the user document without its workbooks.
func (u *User) InsertView() UserDoc {
	return UserDoc{
		Name:      u.Name,
		Email:     u.Email,
		Workbooks: []any{},
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// InsertView returns the workbook document linked to userID, without tables.
func (w *Workbook) InsertView(userID any) WorkbookDoc {
	return WorkbookDoc{
		UserID:      userID,
		Name:        w.Name,
		Description: w.Description,
		Tables:      []any{},
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
	}
}

// InsertView returns the table document linked to workbookID, without fields or items.
func (t *Table) InsertView(workbookID any) TableDoc {
	return TableDoc{
		WorkbookID:  workbookID,
		Name:        t.Name,
		Description: t.Description,
		Fields:      []any{},
		Items:       []any{},
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// InsertView returns the field document linked to tableID.
func (f *Field) InsertView(tableID any) FieldDoc {
	return FieldDoc{
		TableID:     tableID,
		Name:        f.Name,
		Type:        f.Type,
		Required:    f.Required,
		Description: f.Description,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
}

// InsertView returns the item document linked to tableID. The values map is copied.
func (i *Item) InsertView(tableID any) ItemDoc {
	values := make(map[string]any, len(i.Values))
	for k, v := range i.Values {
		values[k] = v
	}
	return ItemDoc{
		TableID:   tableID,
		Values:    values,
		CreatedAt: i.CreatedAt,
		UpdatedAt: i.UpdatedAt,
	}
}
