package store

import (
	"context"
	"database/sql"
	"testing"

	"mixmirror/internal/engine/graph"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), MemoryTarget, Options{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type nodeRow struct {
	Props     string
	Volumes   sql.NullString
	Mute      sql.NullBool
	Peaks     sql.NullString
	Rate      sql.NullInt64
	Positions sql.NullString
}

func loadNode(t *testing.T, s *Store, id graph.ObjectID) (nodeRow, bool) {
	t.Helper()
	var row nodeRow
	err := s.db.QueryRow(`
SELECT props_json, volumes_json, mute, peaks_json, rate, positions_json
FROM nodes WHERE object_id = ?`, int64(id)).Scan(
		&row.Props, &row.Volumes, &row.Mute, &row.Peaks, &row.Rate, &row.Positions,
	)
	if err == sql.ErrNoRows {
		return row, false
	}
	if err != nil {
		t.Fatalf("load node %d: %v", id, err)
	}
	return row, true
}

func loadClientProps(t *testing.T, s *Store, id graph.ObjectID) (graph.Properties, bool) {
	t.Helper()
	var raw string
	err := s.db.QueryRow(`SELECT props_json FROM clients WHERE object_id = ?`, int64(id)).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false
	}
	if err != nil {
		t.Fatalf("load client %d: %v", id, err)
	}
	props, err := DecodeProps(raw)
	if err != nil {
		t.Fatalf("decode client %d props: %v", id, err)
	}
	return props, true
}

func loadMetadataProperties(t *testing.T, s *Store, id graph.ObjectID) map[uint32]map[string]string {
	t.Helper()
	rows, err := s.db.Query(`SELECT subject, key, value FROM metadata_properties WHERE metadata_id = ?`, int64(id))
	if err != nil {
		t.Fatalf("query metadata properties: %v", err)
	}
	defer rows.Close()

	out := make(map[uint32]map[string]string)
	for rows.Next() {
		var (
			subject    int64
			key, value string
		)
		if err := rows.Scan(&subject, &key, &value); err != nil {
			t.Fatalf("scan metadata property: %v", err)
		}
		if out[uint32(subject)] == nil {
			out[uint32(subject)] = make(map[string]string)
		}
		out[uint32(subject)][key] = value
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("iterate metadata properties: %v", err)
	}
	return out
}

func countRows(t *testing.T, s *Store, query string, args ...any) int {
	t.Helper()
	var n int
	if err := s.db.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("count rows (%s): %v", query, err)
	}
	return n
}

// tableSnapshot dumps every column of every row of table, ignoring
// updated_at, in primary key order.
func tableSnapshot(t *testing.T, s *Store, table string) []map[string]any {
	t.Helper()
	rows, err := s.db.Query(`SELECT * FROM ` + table + ` ORDER BY 1, 2`)
	if err != nil {
		t.Fatalf("snapshot %s: %v", table, err)
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		t.Fatalf("columns %s: %v", table, err)
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			t.Fatalf("scan %s: %v", table, err)
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if c == "updated_at" {
				continue
			}
			row[c] = values[i]
		}
		out = append(out, row)
	}
	return out
}

var mirroredTables = []string{
	"clients", "nodes", "devices", "device_profiles", "device_routes",
	"device_enum_routes", "links", "metadata", "metadata_properties",
}

func snapshotAll(t *testing.T, s *Store) map[string][]map[string]any {
	t.Helper()
	out := make(map[string][]map[string]any, len(mirroredTables))
	for _, table := range mirroredTables {
		out[table] = tableSnapshot(t, s, table)
	}
	return out
}

func sampleDevice(id graph.ObjectID) graph.Device {
	return graph.Device{
		ObjectID:     id,
		Props:        graph.Properties{"device.name": "alsa_card.pci-0000_00_1f.3"},
		ProfileIndex: graph.Some[int32](1),
		Profiles: map[int32]graph.Profile{
			0: {Index: 0, Description: "Off", Available: graph.AvailabilityYes, Classes: []string{}},
			1: {Index: 1, Description: "Analog Stereo Duplex", Available: graph.AvailabilityYes, Classes: []string{"Audio/Sink", "Audio/Source"}},
		},
		Routes: map[int32]graph.Route{
			4: {Index: 2, Device: 4, Profiles: []int32{1}, Description: "Speakers", Available: graph.AvailabilityUnknown, Volumes: []float32{0.5, 0.5}, Mute: false},
		},
		EnumRoutes: map[int32]graph.EnumRoute{
			2: {Index: 2, Description: "Speakers", Available: graph.AvailabilityUnknown, Profiles: []int32{1}, Devices: []int32{4}},
			3: {Index: 3, Description: "Headphones", Available: graph.AvailabilityNo, Profiles: []int32{1}, Devices: []int32{4}},
		},
	}
}

func linkFixture() graph.Link {
	return graph.Link{ObjectID: 60, OutputID: 61, InputID: 62}
}
