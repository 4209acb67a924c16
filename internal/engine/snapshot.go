package engine

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"time"

	"github.com/danielpatrickdp/eventsim/internal/develop"
	"github.com/danielpatrickdp/eventsim/internal/state"
)

// Snapshot is the computed state of one entity at one instant.
type Snapshot struct {
	EntityID  string          `json:"entity_id"`
	At        time.Time       `json:"at"`
	AnchorAt  time.Time       `json:"anchor_at"`
	Direction state.Direction `json:"direction"`

	State  state.Vector      `json:"state"`
	Traits state.TraitVector `json:"traits"`

	// TraitBudget is the per-trait cumulative base-shift magnitude at At.
	TraitBudget state.TraitVector `json:"trait_budget"`

	// Ledger holds the realized base shifts of the in-scope formative events,
	// in application order.
	Ledger  []develop.Record `json:"ledger"`
	InScope []string         `json:"in_scope"`
}

// Digest returns a hex SHA-256 over the entity, instant, state and traits.
// Identical inputs always yield identical digests.
func (s Snapshot) Digest() string {
	h := sha256.New()
	h.Write([]byte(s.EntityID))

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(s.At.UnixNano()))
	h.Write(buf[:])
	for _, v := range s.State {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	for _, v := range s.Traits {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}
