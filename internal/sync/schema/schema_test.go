package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntities_FixedDependencyOrder(t *testing.T) {
	// Parents must precede children: Location/Company/User before Car,
	// Car/Company before Load, Load/Company before Booking, and so on
	// (§4.7's fixed topological order).
	pos := make(map[Entity]int, len(Entities))
	for i, e := range Entities {
		pos[e] = i
	}
	assert.Less(t, pos[Location], pos[Car])
	assert.Less(t, pos[Company], pos[Car])
	assert.Less(t, pos[Company], pos[Load])
	assert.Less(t, pos[Location], pos[Load])
	assert.Less(t, pos[Load], pos[Booking])
	assert.Less(t, pos[Company], pos[Booking])
	assert.Less(t, pos[Company], pos[Request])
	assert.Len(t, Entities, 7)
}

func TestDefs_EveryEntityHasADef(t *testing.T) {
	for _, e := range Entities {
		def, ok := Defs[e]
		assert.True(t, ok, "missing Def for %s", e)
		assert.Equal(t, e, def.Entity)
		assert.NotEmpty(t, def.TableName)
	}
}

func TestDefs_LinkTargetsAreKnownEntities(t *testing.T) {
	known := make(map[Entity]bool, len(Entities))
	for _, e := range Entities {
		known[e] = true
	}
	for _, def := range Defs {
		for _, link := range def.Links {
			assert.True(t, known[link.Target], "%s links to unknown entity %s", def.Entity, link.Target)
			assert.NotEmpty(t, link.Key)
		}
	}
}

func TestDefs_OnlyLoadHasLoadCarsLink(t *testing.T) {
	for _, def := range Defs {
		if def.Entity == Load {
			assert.True(t, def.HasLoadCarsLink)
		} else {
			assert.False(t, def.HasLoadCarsLink, "%s should not have load_cars link", def.Entity)
		}
	}
}

func TestDefs_NumericRequiredDateOnlyKeysAreDeclaredFields(t *testing.T) {
	for _, def := range Defs {
		fieldSet := make(map[string]bool, len(def.Fields))
		for _, f := range def.Fields {
			fieldSet[f] = true
		}
		for k := range def.Numeric {
			assert.True(t, fieldSet[k], "%s: numeric key %s not in Fields", def.Entity, k)
		}
		for k := range def.Required {
			assert.True(t, fieldSet[k], "%s: required key %s not in Fields", def.Entity, k)
		}
		for k := range def.DateOnly {
			assert.True(t, fieldSet[k], "%s: date-only key %s not in Fields", def.Entity, k)
		}
	}
}

func TestSecondaryKeyField(t *testing.T) {
	assert.Equal(t, "external_id", SecondaryKeyField(Car))
	assert.Equal(t, "name", SecondaryKeyField(Company))
	assert.Equal(t, "load_number", SecondaryKeyField(Load))
	assert.Equal(t, "email", SecondaryKeyField(User))
	assert.Equal(t, "", SecondaryKeyField(Location))
	assert.Equal(t, "", SecondaryKeyField(Booking))
	assert.Equal(t, "", SecondaryKeyField(Request))
}
