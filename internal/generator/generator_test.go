package generator

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AvishaiDotan/mongodb-functions/pkg/types"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestGenerator(seed int64) *Generator {
	return New(WithSeed(seed), WithClock(func() time.Time { return fixedNow }))
}

func valueMatches(t types.FieldType, v any) bool {
	switch t {
	case types.FieldTypeString:
		s, ok := v.(string)
		return ok && s != ""
	case types.FieldTypeNumber:
		n, ok := v.(int64)
		return ok && n >= MinNumberValue && n <= MaxNumberValue
	case types.FieldTypeBoolean:
		_, ok := v.(bool)
		return ok
	case types.FieldTypeDate:
		ts, ok := v.(time.Time)
		return ok && !ts.After(fixedNow)
	default:
		return false
	}
}

// TestProperty_Cardinalities checks that every level of a deep user stays
// inside its declared range.
func TestProperty_Cardinalities(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("nested counts are within range", prop.ForAll(
		func(seed int64) bool {
			u := newTestGenerator(seed).GenerateUser(false)
			if len(u.Workbooks) < MinWorkbooks || len(u.Workbooks) > MaxWorkbooks {
				return false
			}
			for _, wb := range u.Workbooks {
				if len(wb.Tables) < MinTables || len(wb.Tables) > MaxTables {
					return false
				}
				for _, tbl := range wb.Tables {
					if len(tbl.Fields) < MinFields || len(tbl.Fields) > MaxFields {
						return false
					}
					if len(tbl.Items) < MinItems || len(tbl.Items) > MaxItems {
						return false
					}
				}
			}
			return true
		},
		gen.Int64Range(1, 1<<40),
	))

	properties.TestingRun(t)
}

// TestProperty_ItemValuesMatchFieldTypes checks that every item carries one
// value per field and each value has the field's declared type.
func TestProperty_ItemValuesMatchFieldTypes(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("values are type consistent", prop.ForAll(
		func(seed int64) bool {
			u := newTestGenerator(seed).GenerateUser(false)
			for _, wb := range u.Workbooks {
				for _, tbl := range wb.Tables {
					for _, item := range tbl.Items {
						if len(item.Values) != len(tbl.Fields) {
							return false
						}
						for _, f := range tbl.Fields {
							if !f.Type.Valid() || !valueMatches(f.Type, item.Values[f.Name]) {
								return false
							}
						}
					}
				}
			}
			return true
		},
		gen.Int64Range(1, 1<<40),
	))

	properties.TestingRun(t)
}

func TestProperty_ShallowUsersHaveNoChildren(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	properties.Property("shallow users are childless", prop.ForAll(
		func(count int) bool {
			users := New().GenerateUsers(count, true)
			if len(users) != count {
				return false
			}
			for _, u := range users {
				if u.Workbooks == nil || len(u.Workbooks) != 0 || u.DocumentCount() != 1 {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 50),
	))

	properties.TestingRun(t)
}

func TestGenerateUsersNonPositiveCount(t *testing.T) {
	g := New()
	assert.Empty(t, g.GenerateUsers(0, false))
	assert.Empty(t, g.GenerateUsers(-3, false))
	assert.NotNil(t, g.GenerateUsers(0, false))
}

func TestTimestampsAreBounded(t *testing.T) {
	u := newTestGenerator(7).GenerateUser(false)
	yearAgo := fixedNow.AddDate(-1, 0, 0)
	dayAgo := fixedNow.Add(-24 * time.Hour)

	assert.False(t, u.CreatedAt.Before(yearAgo))
	assert.False(t, u.CreatedAt.After(fixedNow))
	assert.False(t, u.UpdatedAt.Before(dayAgo))
	assert.False(t, u.UpdatedAt.After(fixedNow))
	assert.Equal(t, u.CreatedAt, u.CreatedAt.Truncate(time.Millisecond))
}

func TestSeedIsReproducible(t *testing.T) {
	a := newTestGenerator(42).GenerateUsers(3, false)
	b := newTestGenerator(42).GenerateUsers(3, false)
	require.Len(t, a, 3)
	assert.Equal(t, a, b)
}

func TestGenerateRecords(t *testing.T) {
	g := newTestGenerator(11)

	withID := g.GenerateRecords(20, true)
	require.Len(t, withID, 20)
	ids := make(map[string]bool)
	for _, r := range withID {
		_, err := uuid.Parse(r.ID)
		require.NoError(t, err)
		ids[r.ID] = true

		assert.GreaterOrEqual(t, r.Age, int64(MinAge))
		assert.LessOrEqual(t, r.Age, int64(MaxAge))
		assert.GreaterOrEqual(t, r.Salary, float64(MinSalary))
		assert.LessOrEqual(t, r.Salary, float64(MaxSalary))
		assert.InDelta(t, r.Salary, float64(int64(r.Salary*100+0.5))/100, 1e-9)

		assert.GreaterOrEqual(t, len(r.Tags), 1)
		assert.LessOrEqual(t, len(r.Tags), 3)
		seen := map[string]bool{}
		for _, tag := range r.Tags {
			assert.Contains(t, types.RecordTags, tag)
			assert.False(t, seen[tag], "duplicate tag %s", tag)
			seen[tag] = true
		}
	}
	assert.Len(t, ids, 20)

	for _, r := range g.GenerateRecords(5, false) {
		assert.Empty(t, r.ID)
	}
}

func TestConcurrentGeneration(t *testing.T) {
	g := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			users := g.GenerateUsers(5, false)
			assert.Len(t, users, 5)
		}()
	}
	wg.Wait()
}

func BenchmarkGenerateUserDeep(b *testing.B) {
	g := New(WithSeed(1))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = g.GenerateUser(false)
	}
}

func BenchmarkGenerateUserShallow(b *testing.B) {
	g := New(WithSeed(1))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = g.GenerateUser(true)
	}
}

func BenchmarkGenerateRecords100(b *testing.B) {
	g := New(WithSeed(1))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = g.GenerateRecords(100, true)
	}
}
