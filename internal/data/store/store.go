package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	domainerrors "mixmirror/internal/core/errors"
	"mixmirror/internal/core/ports"
	"mixmirror/internal/engine/graph"
	"mixmirror/internal/shared/util"

	_ "modernc.org/sqlite"
)

const (
	driverName  = "sqlite"
	maxAttempts = 5

	// MemoryTarget names a private in-memory database.
	MemoryTarget = ":memory:"
)

var _ ports.GraphStore = (*Store)(nil)

type Options struct {
	BusyTimeout time.Duration
}

// Store is the storage gateway. It holds exactly one SQLite connection and
// must be driven from a single goroutine.
type Store struct {
	target string
	db     *sql.DB
}

// Open connects to target and applies the schema. Any failure here is fatal
// for the mirror: nothing has been started yet.
func Open(ctx context.Context, target string, opts Options) (*Store, error) {
	s, err := open(ctx, target, opts)
	if err != nil {
		return nil, domainerrors.AddContext(
			domainerrors.Wrap(err, domainerrors.CodeStorageUnavailable, "open mirror storage"),
			domainerrors.CtxPath, target,
		)
	}
	return s, nil
}

func open(ctx context.Context, target string, opts Options) (*Store, error) {
	cleanTarget := strings.TrimSpace(target)
	if cleanTarget == "" {
		return nil, fmt.Errorf("storage target must not be empty")
	}
	busy := opts.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}

	dsn := cleanTarget
	if cleanTarget != MemoryTarget {
		if err := util.PrepareFileTarget(cleanTarget); err != nil {
			return nil, fmt.Errorf("prepare storage: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)",
			cleanTarget, busy.Milliseconds())
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", cleanTarget, err)
	}
	// One connection: an in-memory database lives and dies with it, and the
	// mirror has exactly one writer anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %q: %w", cleanTarget, err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema %q: %w", cleanTarget, err)
	}

	return &Store{target: cleanTarget, db: db}, nil
}

// newWithDB wraps an already prepared handle without touching the schema.
func newWithDB(db *sql.DB, target string) *Store {
	return &Store{target: target, db: db}
}

func (s *Store) Target() string {
	if s == nil {
		return ""
	}
	return s.target
}

// Ping reports whether the connection is still usable.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) UpsertClient(ctx context.Context, client graph.Client) error {
	props, err := encodeProps(client.Props)
	if err != nil {
		return invalid(err, "upsert client", client.ObjectID)
	}
	return s.exec(ctx, "upsert client", `
INSERT INTO clients (object_id, props_json, updated_at)
VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(object_id) DO UPDATE SET
  props_json = excluded.props_json,
  updated_at = CURRENT_TIMESTAMP
`, int64(client.ObjectID), props)
}

func (s *Store) UpsertNode(ctx context.Context, node graph.Node) error {
	props, err := encodeProps(node.Props)
	if err != nil {
		return invalid(err, "upsert node", node.ObjectID)
	}
	volumes, err := encodeOptionalList(node.Volumes)
	if err != nil {
		return invalid(fmt.Errorf("volumes: %w", err), "upsert node", node.ObjectID)
	}
	peaks, err := encodeOptionalList(node.Peaks)
	if err != nil {
		return invalid(fmt.Errorf("peaks: %w", err), "upsert node", node.ObjectID)
	}
	positions, err := encodeOptionalList(node.Positions)
	if err != nil {
		return invalid(fmt.Errorf("positions: %w", err), "upsert node", node.ObjectID)
	}

	return s.exec(ctx, "upsert node", `
INSERT INTO nodes (object_id, props_json, volumes_json, mute, peaks_json, rate, positions_json, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(object_id) DO UPDATE SET
  props_json = excluded.props_json,
  volumes_json = excluded.volumes_json,
  mute = excluded.mute,
  peaks_json = excluded.peaks_json,
  rate = excluded.rate,
  positions_json = excluded.positions_json,
  updated_at = CURRENT_TIMESTAMP
`,
		int64(node.ObjectID),
		props,
		volumes,
		optionalArg(node.Mute),
		peaks,
		optionalInt(node.Rate),
		positions,
	)
}

// UpsertDevice writes the device row and then every sub-row. The sequence is
// not transactional: each sub-row is idempotent on its own and the next full
// upsert of the device repairs any prefix left by a failure. Every sub-row is
// attempted even when an earlier one fails.
func (s *Store) UpsertDevice(ctx context.Context, device graph.Device) error {
	props, err := encodeProps(device.Props)
	if err != nil {
		return invalid(err, "upsert device", device.ObjectID)
	}
	if err := s.exec(ctx, "upsert device", `
INSERT INTO devices (object_id, props_json, profile_index, updated_at)
VALUES (?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(object_id) DO UPDATE SET
  props_json = excluded.props_json,
  profile_index = excluded.profile_index,
  updated_at = CURRENT_TIMESTAMP
`, int64(device.ObjectID), props, optionalInt(device.ProfileIndex)); err != nil {
		return err
	}

	var errs []error
	for _, idx := range graph.SortedIndices(device.Profiles) {
		if err := s.upsertDeviceProfile(ctx, device.ObjectID, idx, device.Profiles[idx]); err != nil {
			errs = append(errs, err)
		}
	}
	for _, idx := range graph.SortedIndices(device.Routes) {
		if err := s.upsertDeviceRoute(ctx, device.ObjectID, idx, device.Routes[idx]); err != nil {
			errs = append(errs, err)
		}
	}
	for _, idx := range graph.SortedIndices(device.EnumRoutes) {
		if err := s.upsertDeviceEnumRoute(ctx, device.ObjectID, idx, device.EnumRoutes[idx]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Store) upsertDeviceProfile(ctx context.Context, deviceID graph.ObjectID, index int32, profile graph.Profile) error {
	classes, err := encodeList(profile.Classes)
	if err != nil {
		return invalid(fmt.Errorf("profile %d classes: %w", index, err), "upsert device profile", deviceID)
	}
	return s.exec(ctx, "upsert device profile", `
INSERT INTO device_profiles (device_id, profile_index, description, available, classes_json)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(device_id, profile_index) DO UPDATE SET
  description = excluded.description,
  available = excluded.available,
  classes_json = excluded.classes_json
`, int64(deviceID), index, profile.Description, availability(profile.Available), classes)
}

// upsertDeviceRoute keys the row by routeDevice, not route.Index.
func (s *Store) upsertDeviceRoute(ctx context.Context, deviceID graph.ObjectID, routeDevice int32, route graph.Route) error {
	profiles, err := encodeList(route.Profiles)
	if err != nil {
		return invalid(fmt.Errorf("route %d profiles: %w", routeDevice, err), "upsert device route", deviceID)
	}
	volumes, err := encodeList(route.Volumes)
	if err != nil {
		return invalid(fmt.Errorf("route %d volumes: %w", routeDevice, err), "upsert device route", deviceID)
	}
	return s.exec(ctx, "upsert device route", `
INSERT INTO device_routes (device_id, route_device, route_index, profiles_json, description, available, volumes_json, mute)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(device_id, route_device) DO UPDATE SET
  route_index = excluded.route_index,
  profiles_json = excluded.profiles_json,
  description = excluded.description,
  available = excluded.available,
  volumes_json = excluded.volumes_json,
  mute = excluded.mute
`, int64(deviceID), routeDevice, route.Index, profiles, route.Description, availability(route.Available), volumes, route.Mute)
}

func (s *Store) upsertDeviceEnumRoute(ctx context.Context, deviceID graph.ObjectID, index int32, route graph.EnumRoute) error {
	profiles, err := encodeList(route.Profiles)
	if err != nil {
		return invalid(fmt.Errorf("enum route %d profiles: %w", index, err), "upsert device enum route", deviceID)
	}
	devices, err := encodeList(route.Devices)
	if err != nil {
		return invalid(fmt.Errorf("enum route %d devices: %w", index, err), "upsert device enum route", deviceID)
	}
	return s.exec(ctx, "upsert device enum route", `
INSERT INTO device_enum_routes (device_id, enum_route_index, description, available, profiles_json, devices_json)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(device_id, enum_route_index) DO UPDATE SET
  description = excluded.description,
  available = excluded.available,
  profiles_json = excluded.profiles_json,
  devices_json = excluded.devices_json
`, int64(deviceID), index, route.Description, availability(route.Available), profiles, devices)
}

func (s *Store) UpsertLink(ctx context.Context, link graph.Link) error {
	return s.exec(ctx, "upsert link", `
INSERT INTO links (object_id, output_id, input_id, updated_at)
VALUES (?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(object_id) DO UPDATE SET
  output_id = excluded.output_id,
  input_id = excluded.input_id,
  updated_at = CURRENT_TIMESTAMP
`, int64(link.ObjectID), int64(link.OutputID), int64(link.InputID))
}

// UpsertMetadata writes the header row and then one property row per
// (subject, key). Keys missing from metadata are left alone; removals arrive
// as their own mutations.
func (s *Store) UpsertMetadata(ctx context.Context, metadata graph.Metadata) error {
	if err := s.exec(ctx, "upsert metadata", `
INSERT INTO metadata (object_id, metadata_name, updated_at)
VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(object_id) DO UPDATE SET
  metadata_name = excluded.metadata_name,
  updated_at = CURRENT_TIMESTAMP
`, int64(metadata.ObjectID), metadata.Name); err != nil {
		return err
	}

	var errs []error
	for _, subject := range metadata.SortedSubjects() {
		props := graph.Properties(metadata.Properties[subject])
		for _, key := range props.Keys() {
			if err := s.UpsertMetadataProperty(ctx, metadata.ObjectID, subject, key, props[key]); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (s *Store) UpsertMetadataProperty(ctx context.Context, id graph.ObjectID, subject uint32, key, value string) error {
	return s.exec(ctx, "upsert metadata property", `
INSERT INTO metadata_properties (metadata_id, subject, key, value)
VALUES (?, ?, ?, ?)
ON CONFLICT(metadata_id, subject, key) DO UPDATE SET
  value = excluded.value
`, int64(id), int64(subject), key, value)
}

func (s *Store) RemoveMetadataProperty(ctx context.Context, id graph.ObjectID, subject uint32, key string) error {
	return s.exec(ctx, "remove metadata property",
		`DELETE FROM metadata_properties WHERE metadata_id = ? AND subject = ? AND key = ?`,
		int64(id), int64(subject), key)
}

func (s *Store) ClearMetadataProperties(ctx context.Context, id graph.ObjectID, subject uint32) error {
	return s.exec(ctx, "clear metadata properties",
		`DELETE FROM metadata_properties WHERE metadata_id = ? AND subject = ?`,
		int64(id), int64(subject))
}

// removeStatements lists dependents before their parents so cleanup does not
// rely on foreign key enforcement being enabled.
var removeStatements = []struct {
	table string
	query string
}{
	{"device_profiles", `DELETE FROM device_profiles WHERE device_id = ?`},
	{"device_routes", `DELETE FROM device_routes WHERE device_id = ?`},
	{"device_enum_routes", `DELETE FROM device_enum_routes WHERE device_id = ?`},
	{"metadata_properties", `DELETE FROM metadata_properties WHERE metadata_id = ?`},
	{"clients", `DELETE FROM clients WHERE object_id = ?`},
	{"nodes", `DELETE FROM nodes WHERE object_id = ?`},
	{"devices", `DELETE FROM devices WHERE object_id = ?`},
	{"links", `DELETE FROM links WHERE object_id = ?`},
	{"metadata", `DELETE FROM metadata WHERE object_id = ?`},
}

// RemoveObject deletes id from every table. At most one top-level table
// holds the id; a delete that finds nothing is not an error, and missing
// tables are tolerated. Every statement is attempted; real failures are
// joined and returned.
func (s *Store) RemoveObject(ctx context.Context, id graph.ObjectID) error {
	var errs []error
	for _, del := range removeStatements {
		err := s.exec(ctx, "delete from "+del.table, del.query, int64(id))
		if err == nil || isNotFoundError(err) {
			continue
		}
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("remove object %d: %w", id, errors.Join(errs...))
	}
	return nil
}

func (s *Store) exec(ctx context.Context, op string, query string, args ...any) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("%s: store not initialized", op)
	}
	return s.withRetry(ctx, op, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

func (s *Store) withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isLockError(err) || attempt == maxAttempts {
			break
		}
		timer := time.NewTimer(time.Duration(attempt*25) * time.Millisecond)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: %w", op, errors.Join(lastErr, ctx.Err()))
		case <-timer.C:
		}
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

// isLockError matches SQLITE_BUSY only; other failures are not retried.
func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "sqlite_busy")
}

// isNotFoundError reports failures that only mean "nothing to delete here".
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sql.ErrNoRows) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no such table")
}

func invalid(err error, op string, id graph.ObjectID) error {
	wrapped := domainerrors.Wrap(err, domainerrors.CodeValidationError, op)
	return domainerrors.AddContext(wrapped, domainerrors.CtxObjectID, uint32(id))
}

func availability(a graph.Availability) string {
	if a == "" {
		return string(graph.AvailabilityUnknown)
	}
	return string(a)
}
