package alert

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alerto-de-pin/dashboard-client/internal/geo"
)

func TestAlertUnmarshal(t *testing.T) {
	t.Run("mongo id and geojson location", func(t *testing.T) {
		raw := `{
			"_id": "a1",
			"type": "fire",
			"status": "pending",
			"description": "smoke in building",
			"location": {
				"address": "Naga City Center",
				"coordinates": {"type": "Point", "coordinates": [123.1816, 13.6218]}
			},
			"reporter": {"_id": "u1", "name": "Juan"},
			"createdAt": "2025-03-14T08:30:00Z"
		}`

		var a Alert
		require.NoError(t, json.Unmarshal([]byte(raw), &a))

		assert.Equal(t, "a1", a.ID)
		assert.Equal(t, TypeFire, a.Type)
		assert.Equal(t, StatusPending, a.Status)
		assert.Equal(t, "Naga City Center", a.Location.Address)

		coords, ok := a.Coordinates()
		require.True(t, ok)
		assert.Equal(t, geo.Coordinates{Lat: 13.6218, Lng: 123.1816}, coords)

		require.NotNil(t, a.Reporter)
		assert.Equal(t, "u1", a.Reporter.ID)
		assert.Equal(t, "Juan", a.Reporter.Name)
	})

	t.Run("top-level coordinates object", func(t *testing.T) {
		raw := `{
			"id": "a2",
			"type": "police",
			"status": "active",
			"location": "SM City Naga",
			"coordinates": {"lat": 13.6191, "lng": 123.1973}
		}`

		var a Alert
		require.NoError(t, json.Unmarshal([]byte(raw), &a))

		assert.Equal(t, "a2", a.ID)
		assert.Equal(t, "SM City Naga", a.Location.Address)

		coords, ok := a.Coordinates()
		require.True(t, ok)
		assert.Equal(t, geo.Coordinates{Lat: 13.6191, Lng: 123.1973}, coords)
	})

	t.Run("reporter as bare id string", func(t *testing.T) {
		raw := `{"id": "a3", "type": "hospital", "status": "pending", "reporter": "u9", "location": "somewhere"}`

		var a Alert
		require.NoError(t, json.Unmarshal([]byte(raw), &a))

		require.NotNil(t, a.Reporter)
		assert.Equal(t, "u9", a.Reporter.ID)
	})

	t.Run("no coordinates anywhere", func(t *testing.T) {
		raw := `{"id": "a4", "type": "fire", "status": "pending", "location": {"address": "unknown"}}`

		var a Alert
		require.NoError(t, json.Unmarshal([]byte(raw), &a))

		_, ok := a.Coordinates()
		assert.False(t, ok)
	})

	t.Run("deprecated family type round-trips", func(t *testing.T) {
		raw := `{"id": "a5", "type": "family", "status": "pending", "location": "home"}`

		var a Alert
		require.NoError(t, json.Unmarshal([]byte(raw), &a))
		assert.Equal(t, TypeFamily, a.Type)

		out, err := json.Marshal(&a)
		require.NoError(t, err)
		assert.Contains(t, string(out), `"type":"family"`)
	})
}

func TestStatusIsTerminal(t *testing.T) {
	assert.True(t, StatusResolved.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusResponded.IsTerminal())
	assert.False(t, StatusActive.IsTerminal())
}
