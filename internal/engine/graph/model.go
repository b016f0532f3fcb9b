package graph

import (
	"sort"
	"strconv"
)

// ObjectID identifies an audio-server object for the lifetime of the process.
type ObjectID uint32

func (id ObjectID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Properties is an object's property dictionary. The audio server only
// carries string values.
type Properties map[string]string

// Keys returns the property keys in sorted order.
func (p Properties) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a copy that does not share storage with p.
func (p Properties) Clone() Properties {
	if p == nil {
		return nil
	}
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

type Availability string

const (
	AvailabilityUnknown Availability = "unknown"
	AvailabilityNo      Availability = "no"
	AvailabilityYes     Availability = "yes"
)

type Client struct {
	ObjectID ObjectID   `json:"object_id"`
	Props    Properties `json:"props"`
}

// Node is a stream or sink/source endpoint. Every optional field is
// independently nullable: absence means unknown.
type Node struct {
	ObjectID  ObjectID            `json:"object_id"`
	Props     Properties          `json:"props"`
	Volumes   Optional[[]float32] `json:"volumes"`
	Mute      Optional[bool]      `json:"mute"`
	Peaks     Optional[[]float32] `json:"peaks"`
	Rate      Optional[uint32]    `json:"rate"`
	Positions Optional[[]string]  `json:"positions"`
}

type Profile struct {
	Index       int32        `json:"index"`
	Description string       `json:"description"`
	Available   Availability `json:"available"`
	Classes     []string     `json:"classes"`
}

// Route is the active route of one card device.
type Route struct {
	Index       int32        `json:"index"`
	Device      int32        `json:"device"`
	Profiles    []int32      `json:"profiles"`
	Description string       `json:"description"`
	Available   Availability `json:"available"`
	Volumes     []float32    `json:"volumes"`
	Mute        bool         `json:"mute"`
}

// EnumRoute is a route the device can be switched to.
type EnumRoute struct {
	Index       int32        `json:"index"`
	Description string       `json:"description"`
	Available   Availability `json:"available"`
	Profiles    []int32      `json:"profiles"`
	Devices     []int32      `json:"devices"`
}

// Device owns three sub-collections keyed by an in-device index. Routes are
// keyed by the card device they target.
type Device struct {
	ObjectID     ObjectID            `json:"object_id"`
	Props        Properties          `json:"props"`
	ProfileIndex Optional[int32]     `json:"profile_index"`
	Profiles     map[int32]Profile   `json:"profiles"`
	Routes       map[int32]Route     `json:"routes"`
	EnumRoutes   map[int32]EnumRoute `json:"enum_routes"`
}

type Link struct {
	ObjectID ObjectID `json:"object_id"`
	OutputID ObjectID `json:"output_id"`
	InputID  ObjectID `json:"input_id"`
}

// Metadata properties are keyed by subject (an object reference) and then
// by property key.
type Metadata struct {
	ObjectID   ObjectID                     `json:"object_id"`
	Name       string                       `json:"name"`
	Properties map[uint32]map[string]string `json:"properties"`
}

// SortedIndices returns the keys of an index-keyed sub-collection in
// ascending order.
func SortedIndices[V any](m map[int32]V) []int32 {
	out := make([]int32, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SortedSubjects returns the metadata subjects in ascending order.
func (m Metadata) SortedSubjects() []uint32 {
	out := make([]uint32, 0, len(m.Properties))
	for s := range m.Properties {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
