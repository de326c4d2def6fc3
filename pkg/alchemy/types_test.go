package alchemy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Water", "water"},
		{"Light Bulb", "light-bulb"},
		{"  Black   Hole ", "black-hole"},
		{"Tab\tSeparated", "tab-separated"},
		{"AI", "ai"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Slug(tt.name))
		})
	}
}

func TestTemplateMaterialize(t *testing.T) {
	t.Run("keeps provided fields", func(t *testing.T) {
		el := Template{Name: "Steam", Emoji: "💨", Description: "Hot gas.", Color: "#d1d5db"}.Materialize("Fire", "Water")
		assert.Equal(t, Element{ID: "steam", Name: "Steam", Emoji: "💨", Description: "Hot gas.", Color: "#d1d5db"}, el)
	})

	t.Run("fills defaults", func(t *testing.T) {
		el := Template{Name: "Light Bulb"}.Materialize("Electricity", "Glass")
		assert.Equal(t, "light-bulb", el.ID)
		assert.Equal(t, DefaultEmoji, el.Emoji)
		assert.Equal(t, "Combined from Electricity and Glass", el.Description)
		assert.Equal(t, DefaultColor, el.Color)
	})
}

func TestElementValidate(t *testing.T) {
	valid := Element{ID: "fire", Name: "Fire"}
	assert.NoError(t, valid.Validate())

	noName := Element{ID: "x", Name: "   "}
	assert.Error(t, noName.Validate())

	noID := Element{Name: "Fire"}
	assert.Error(t, noID.Validate())
}

func TestInstanceState(t *testing.T) {
	inst := Instance{Element: Element{ID: "fire", Name: "Fire"}, InstanceID: "a", State: StatePending}
	assert.True(t, inst.IsLoading())

	idle := inst.Idle()
	assert.False(t, idle.IsLoading())
	assert.True(t, inst.IsLoading(), "Idle must return a copy")

	assert.NoError(t, InstanceState("").Validate())
	assert.NoError(t, StatePending.Validate())
	assert.Error(t, InstanceState("loading").Validate())
}

func TestResultClone(t *testing.T) {
	original := Succeeded(Element{ID: "mud", Name: "Mud"})
	clone := original.Clone()
	require.NotNil(t, clone.Element)

	clone.Element.Name = "Changed"
	assert.Equal(t, "Mud", original.Element.Name, "clone must not share the element")

	failure := Failure().Clone()
	assert.False(t, failure.Success)
	assert.Nil(t, failure.Element)
}

func TestResultValidate(t *testing.T) {
	assert.NoError(t, Failure().Validate())
	assert.NoError(t, Succeeded(Element{ID: "mud", Name: "Mud"}).Validate())
	assert.Error(t, Result{Success: true}.Validate())
}

func TestCombinationKey(t *testing.T) {
	t.Run("is symmetric", func(t *testing.T) {
		assert.Equal(t, CombinationKey("Water", "Fire"), CombinationKey("Fire", "Water"))
		assert.Equal(t, Key("Fire|Water"), CombinationKey("Water", "Fire"))
	})

	t.Run("same element twice", func(t *testing.T) {
		assert.Equal(t, Key("Water|Water"), CombinationKey("Water", "Water"))
	})

	t.Run("byte order is case sensitive", func(t *testing.T) {
		assert.Equal(t, Key("Zebra|apple"), CombinationKey("apple", "Zebra"))
	})

	t.Run("names round trip", func(t *testing.T) {
		a, b := CombinationKey("Stone", "Air").Names()
		assert.Equal(t, "Air", a)
		assert.Equal(t, "Stone", b)
	})
}

func TestParseKey(t *testing.T) {
	key, a, b, err := ParseKey("Pressure|Air")
	require.NoError(t, err)
	assert.Equal(t, Key("Air|Pressure"), key)
	assert.Equal(t, "Air", a)
	assert.Equal(t, "Pressure", b)

	for _, bad := range []string{"", "Air", "Air|", "|Air", "A|B|C"} {
		_, _, _, err := ParseKey(bad)
		assert.Error(t, err, "expected %q to be rejected", bad)
	}
}

func TestCleanName(t *testing.T) {
	assert.Equal(t, "Yin/Yang", CleanName(" Yin|Yang "))
	assert.Equal(t, "Steam", CleanName("Steam"))
	assert.Equal(t, "/", CleanName(" | "))

	assert.NotEqual(t,
		CombinationKey(CleanName("A|B"), "C"),
		CombinationKey("A", CleanName("B|C")),
		"cleaned names cannot collide through the separator")
}

func TestSchemaKeys(t *testing.T) {
	assert.Equal(t, "crucible:ns:combinations:v2", CacheKey("ns"))
	assert.Equal(t, "crucible:ns:library", LibraryKey("ns"))
	assert.Equal(t, "crucible:ns:snapshots", SnapshotsKey("ns"))
	assert.Equal(t, "crucible:ns:credential", CredentialKey("ns"))
	assert.Equal(t, "crucible:ns:discovery_events", DiscoveryEventsChannel("ns"))
}
