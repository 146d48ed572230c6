package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// healthCountFields are checked in order, the first non-null one wins.
var healthCountFields = []string{"connections", "players", "playerCount"}

// ErrNotList is returned when a payload is not a list of objects.
var ErrNotList = errors.New("payload is not a list")

// ServersFromList converts an untyped list (decoded JSON or YAML) into
// descriptors. Entries that are not objects are skipped, wrongly typed fields
// fall back to their zero values.
func ServersFromList(v any) ([]ServerDescriptor, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, ErrNotList
	}

	servers := make([]ServerDescriptor, 0, len(items))
	for _, item := range items {
		m, ok := asObject(item)
		if !ok {
			continue
		}

		servers = append(servers, ServerDescriptor{
			Name:        stringField(m, "name"),
			URL:         stringField(m, "url"),
			Location:    stringField(m, "location"),
			Description: stringField(m, "description"),
			Established: scalarField(m, "established"),
			Features:    stringList(m["features"]),
			Query:       stringField(m, "query"),
		})
	}

	return servers, nil
}

// maxConnections bounds a per-instance count; larger values read as 0.
const maxConnections = math.MaxInt32

// DecodeInstances parses an instances endpoint body. A body that is not a
// JSON array yields ErrNotList.
func DecodeInstances(data []byte) ([]InstanceDescriptor, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode instances: %w", err)
	}

	items, ok := v.([]any)
	if !ok {
		return nil, ErrNotList
	}

	instances := make([]InstanceDescriptor, 0, len(items))
	for _, item := range items {
		m, ok := asObject(item)
		if !ok {
			continue
		}

		inst := InstanceDescriptor{
			ID:          scalarField(m, "id"),
			Name:        stringField(m, "name"),
			Description: stringField(m, "description"),
			Features:    stringList(m["features"]),
		}
		if n, ok := m["connections"].(float64); ok && n > 0 && n <= maxConnections {
			inst.Connections = int(n)
		}
		if inst.Name == "" {
			inst.Name = inst.ID
		}

		instances = append(instances, inst)
	}

	return instances, nil
}

// DecodeHealth parses a health endpoint body. Any valid JSON is accepted;
// only an object can carry a player count.
func DecodeHealth(data []byte) (HealthReport, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return HealthReport{}, fmt.Errorf("decode health: %w", err)
	}

	m, ok := v.(map[string]any)
	if !ok {
		return HealthReport{}, nil
	}

	for _, field := range healthCountFields {
		raw, present := m[field]
		if !present || raw == nil {
			continue
		}
		if n, ok := raw.(float64); ok {
			return HealthReport{Players: &n}, nil
		}
		break
	}

	return HealthReport{}, nil
}

// asObject accepts both JSON objects and YAML mappings with string keys.
func asObject(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			if ks, ok := k.(string); ok {
				out[ks] = val
			}
		}
		return out, true
	}

	return nil, false
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// scalarField renders a string or number field as a string.
func scalarField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	}

	return ""
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}

	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}

	return out
}
