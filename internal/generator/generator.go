// Package generator produces random entity graphs and flat records for the
// loader and the benchmarks.
package generator

import (
	"fmt"
	"math"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"

	"github.com/AvishaiDotan/mongodb-functions/pkg/types"
)

// Cardinality ranges per level, inclusive.
const (
	MinWorkbooks = 1
	MaxWorkbooks = 3
	MinTables    = 1
	MaxTables    = 5
	MinFields    = 3
	MaxFields    = 8
	MinItems     = 5
	MaxItems     = 20

	MinNumberValue = 1
	MaxNumberValue = 1000

	MinAge    = 18
	MaxAge    = 80
	MinSalary = 30000
	MaxSalary = 150000
)

// Generator creates random users and records. It is safe for concurrent use.
type Generator struct {
	faker *gofakeit.Faker
	now   func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithSeed makes the random stream reproducible. A zero seed picks a random one.
func WithSeed(seed int64) Option {
	return func(g *Generator) {
		g.faker = gofakeit.New(seed)
	}
}

// WithClock sets the reference time for past and recent timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

// New creates a Generator.
func New(opts ...Option) *Generator {
	g := &Generator{
		faker: gofakeit.New(0),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GenerateUsers returns count users. With shallow set every nested sequence
// is empty.
func (g *Generator) GenerateUsers(count int, shallow bool) []*types.User {
	if count <= 0 {
		return []*types.User{}
	}
	users := make([]*types.User, count)
	for i := range users {
		users[i] = g.GenerateUser(shallow)
	}
	return users
}

// GenerateUser returns one user.
func (g *Generator) GenerateUser(shallow bool) *types.User {
	u := &types.User{
		Name:      g.faker.Name(),
		Email:     g.faker.Email(),
		Workbooks: []*types.Workbook{},
		CreatedAt: g.past(),
		UpdatedAt: g.recent(),
	}
	if shallow {
		return u
	}
	n := g.faker.IntRange(MinWorkbooks, MaxWorkbooks)
	for i := 0; i < n; i++ {
		u.Workbooks = append(u.Workbooks, g.workbook())
	}
	return u
}

func (g *Generator) workbook() *types.Workbook {
	wb := &types.Workbook{
		Name:        g.words(2),
		Description: g.faker.Sentence(8),
		Tables:      []*types.Table{},
		CreatedAt:   g.past(),
		UpdatedAt:   g.recent(),
	}
	n := g.faker.IntRange(MinTables, MaxTables)
	for i := 0; i < n; i++ {
		wb.Tables = append(wb.Tables, g.table())
	}
	return wb
}

func (g *Generator) table() *types.Table {
	tbl := &types.Table{
		Name:        g.words(2),
		Description: g.faker.Sentence(8),
		Fields:      []*types.Field{},
		Items:       []*types.Item{},
		CreatedAt:   g.past(),
		UpdatedAt:   g.recent(),
	}

	seen := make(map[string]bool)
	nFields := g.faker.IntRange(MinFields, MaxFields)
	for i := 0; i < nFields; i++ {
		f := g.field()
		// item values are keyed by name, so names must be unique per table
		for seen[f.Name] {
			f.Name = fmt.Sprintf("%s_%d", f.Name, i)
		}
		seen[f.Name] = true
		tbl.Fields = append(tbl.Fields, f)
	}

	nItems := g.faker.IntRange(MinItems, MaxItems)
	for i := 0; i < nItems; i++ {
		tbl.Items = append(tbl.Items, g.item(tbl.Fields))
	}
	return tbl
}

func (g *Generator) field() *types.Field {
	return &types.Field{
		Name:        g.faker.Word(),
		Type:        types.FieldTypes[g.faker.IntRange(0, len(types.FieldTypes)-1)],
		Required:    g.faker.Bool(),
		Description: g.faker.Sentence(6),
		CreatedAt:   g.past(),
		UpdatedAt:   g.recent(),
	}
}

func (g *Generator) item(fields []*types.Field) *types.Item {
	values := make(map[string]any, len(fields))
	for _, f := range fields {
		values[f.Name] = g.Value(f.Type)
	}
	return &types.Item{
		Values:    values,
		CreatedAt: g.past(),
		UpdatedAt: g.recent(),
	}
}

// Value returns a random value consistent with t.
func (g *Generator) Value(t types.FieldType) any {
	switch t {
	case types.FieldTypeString:
		return g.faker.Word()
	case types.FieldTypeNumber:
		return int64(g.faker.IntRange(MinNumberValue, MaxNumberValue))
	case types.FieldTypeBoolean:
		return g.faker.Bool()
	case types.FieldTypeDate:
		return g.past()
	default:
		return nil
	}
}

// GenerateRecords returns count flat records. withID assigns a UUID _id.
func (g *Generator) GenerateRecords(count int, withID bool) []*types.Record {
	if count <= 0 {
		return []*types.Record{}
	}
	out := make([]*types.Record, count)
	for i := range out {
		out[i] = g.GenerateRecord(withID)
	}
	return out
}

// GenerateRecord returns one flat record.
func (g *Generator) GenerateRecord(withID bool) *types.Record {
	r := &types.Record{
		Name:  g.faker.Name(),
		Email: g.faker.Email(),
		Phone: g.faker.Phone(),
		Address: types.Address{
			Street:  g.faker.Street(),
			City:    g.faker.City(),
			State:   g.faker.State(),
			ZipCode: g.faker.Zip(),
			Country: g.faker.Country(),
		},
		Company:   g.faker.Company(),
		JobTitle:  g.faker.JobTitle(),
		Bio:       g.faker.Paragraph(1, 4, 12, " "),
		Website:   g.faker.URL(),
		CreatedAt: g.past(),
		UpdatedAt: g.recent(),
		IsActive:  g.faker.Bool(),
		Age:       int64(g.faker.IntRange(MinAge, MaxAge)),
		Salary:    math.Round(g.faker.Float64Range(MinSalary, MaxSalary)*100) / 100,
		Tags:      g.tags(),
		Avatar:    fmt.Sprintf("https://avatars.githubusercontent.com/u/%d", g.faker.IntRange(1, 99999999)),
		Coordinates: types.Coordinates{
			Latitude:  g.faker.Latitude(),
			Longitude: g.faker.Longitude(),
		},
	}
	if withID {
		r.ID = uuid.NewString()
	}
	return r
}

// tags picks 1 to 3 distinct tags.
func (g *Generator) tags() []string {
	pool := make([]string, len(types.RecordTags))
	copy(pool, types.RecordTags)
	g.faker.ShuffleStrings(pool)
	return pool[:g.faker.IntRange(1, 3)]
}

func (g *Generator) words(n int) string {
	s := g.faker.Word()
	for i := 1; i < n; i++ {
		s += " " + g.faker.Word()
	}
	return s
}

// past returns a time within the last year, truncated to what BSON stores.
func (g *Generator) past() time.Time {
	now := g.now().UTC()
	return g.faker.DateRange(now.AddDate(-1, 0, 0), now).Truncate(time.Millisecond)
}

// recent returns a time within the last day.
func (g *Generator) recent() time.Time {
	now := g.now().UTC()
	return g.faker.DateRange(now.Add(-24*time.Hour), now).Truncate(time.Millisecond)
}
