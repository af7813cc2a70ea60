// Package missionid derives stable mission identifiers from human-readable tags.
//
// Progress rows store mission_id in a UUID-typed column. Games and system
// events have no row of their own to borrow an ID from, so their tag
// ("RUNNER", "SYSTEM_LOGIN", ...) is hashed into a UUID-shaped string. The same
// tag always yields the same ID, so no lookup table is needed.
//
// The hash is FNV-1a run four times with different seeds, each lane finished
// with an avalanche mix. It is NOT cryptographic: anyone can compute the ID of
// any tag, which is exactly what the clients need.
package missionid

import (
	"encoding/binary"

	"github.com/google/uuid"
)

const (
	fnvOffset32 uint32 = 2166136261
	fnvPrime32  uint32 = 16777619
)

// laneSeeds perturb the FNV offset basis so the four 32-bit lanes are independent.
var laneSeeds = [4]uint32{0x9e3779b9, 0x85ebca6b, 0xc2b2ae35, 0x27d4eb2f}

// Reserved tags for system events. These never count as completed missions.
const (
	TagLogin      = "SYSTEM_LOGIN"
	TagHeartbeat  = "SYSTEM_HEARTBEAT"
	TagReflection = "SYSTEM_REFLECTION"
	TagCheckIn    = "SYSTEM_CHECKIN"
	TagEvidence   = "SYSTEM_EVIDENCE"
)

var (
	Login      = FromString(TagLogin)
	Heartbeat  = FromString(TagHeartbeat)
	Reflection = FromString(TagReflection)
	CheckIn    = FromString(TagCheckIn)
	Evidence   = FromString(TagEvidence)
)

var system = map[string]struct{}{
	Login:      {},
	Heartbeat:  {},
	Reflection: {},
	CheckIn:    {},
	Evidence:   {},
}

// FromString hashes s into a lowercase 8-4-4-4-12 identifier whose version
// nibble is 4 and whose variant bits are 10xx, so it passes UUIDv4 validation.
func FromString(s string) string {
	var b [16]byte
	for i, seed := range laneSeeds {
		binary.BigEndian.PutUint32(b[i*4:], lane(s, seed))
	}
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return uuid.UUID(b).String()
}

// IsSystem reports whether id is one of the reserved system sentinels.
func IsSystem(id string) bool {
	_, ok := system[id]
	return ok
}

func lane(s string, seed uint32) uint32 {
	h := fnvOffset32 ^ seed
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime32
	}
	h ^= h >> 16
	h *= 0x85ebca6b
	h ^= h >> 13
	h *= 0xc2b2ae35
	h ^= h >> 16
	return h
}
