package alchemy

import (
	"encoding/json"
	"fmt"
	"sort"
)

// EncodeCache serializes the resolution cache as a single JSON object mapping
// combination keys to results.
func EncodeCache(entries map[Key]Result) ([]byte, error) {
	out := make(map[string]Result, len(entries))
	for k, r := range entries {
		out[string(k)] = r
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cache: %w", err)
	}
	return data, nil
}

// DecodeCache parses a cache blob.
//
// The blob must be a JSON object; anything else is an error the caller is
// expected to degrade on. Within the object, decoding is lenient so blobs
// written by other versions stay readable: unknown fields are ignored, keys are
// re-canonicalized, and entries that fail to parse or validate are skipped.
// Keys with more than two parts are kept verbatim.
// The number of skipped entries is returned alongside the decoded map.
func DecodeCache(data []byte) (map[Key]Result, int, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, 0, fmt.Errorf("failed to unmarshal cache: %w", err)
	}

	entries := make(map[Key]Result, len(raw))
	skipped := 0
	for rawKey, rawResult := range raw {
		key, _, _, err := ParseKey(rawKey)
		if err != nil {
			if !isVerbatimKey(rawKey) {
				skipped++
				continue
			}
			key = Key(rawKey)
		}

		var result Result
		if err := json.Unmarshal(rawResult, &result); err != nil {
			skipped++
			continue
		}
		if !result.Success {
			result.Element = nil
		}
		if result.Element != nil && result.Element.ID == "" {
			result.Element.ID = Slug(result.Element.Name)
		}
		if err := result.Validate(); err != nil {
			skipped++
			continue
		}

		entries[key] = result
	}

	return entries, skipped, nil
}

// instanceWire is the on-disk form of an Instance. It accepts the camelCase
// instance id written by older snapshot exports.
type instanceWire struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Emoji       string        `json:"emoji"`
	Description string        `json:"description"`
	Color       string        `json:"color,omitempty"`
	InstanceID  string        `json:"instance_id"`
	LegacyID    string        `json:"instanceId,omitempty"`
	X           float64       `json:"x"`
	Y           float64       `json:"y"`
	State       InstanceState `json:"state,omitempty"`
}

// EncodeInstances serializes a workspace instance collection as a plain JSON list.
// In-flight markers are never written.
func EncodeInstances(instances []Instance) ([]byte, error) {
	out := make([]Instance, len(instances))
	for i, inst := range instances {
		out[i] = inst.Idle()
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal instances: %w", err)
	}
	return data, nil
}

// DecodeInstances parses a workspace instance list from an external snapshot.
// Every decoded instance has its state reset to idle, and instances missing a
// name or instance id are rejected.
func DecodeInstances(data []byte) ([]Instance, error) {
	var wire []instanceWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("failed to unmarshal instances: %w", err)
	}
	return fromWire(wire)
}

// UnmarshalJSON lets Instance values embedded in larger documents (snapshots)
// share the lenient decoding rules of DecodeInstances.
func (i *Instance) UnmarshalJSON(data []byte) error {
	var w instanceWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	insts, err := fromWire([]instanceWire{w})
	if err != nil {
		return err
	}
	*i = insts[0]
	return nil
}

func fromWire(wire []instanceWire) ([]Instance, error) {
	instances := make([]Instance, 0, len(wire))
	for idx, w := range wire {
		id := w.InstanceID
		if id == "" {
			id = w.LegacyID
		}
		if id == "" {
			return nil, fmt.Errorf("instance at index %d has no instance id", idx)
		}
		if w.Name == "" {
			return nil, fmt.Errorf("instance %s has no element name", id)
		}
		el := Element{
			ID:          w.ID,
			Name:        w.Name,
			Emoji:       w.Emoji,
			Description: w.Description,
			Color:       w.Color,
		}
		if el.ID == "" {
			el.ID = Slug(el.Name)
		}
		instances = append(instances, Instance{
			Element:    el,
			InstanceID: id,
			X:          w.X,
			Y:          w.Y,
			State:      StateIdle,
		})
	}
	return instances, nil
}

// SortedKeys returns the keys of a cache map in lexicographic order.
func SortedKeys(entries map[Key]Result) []Key {
	keys := make([]Key, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
