package model

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// ID is the 128-bit identity shared by entities, constraints and groups.
// It is the only cross-reference mechanism in the model.
type ID uuid.UUID

// ZeroID is the unset ID.
var ZeroID ID

// NewID returns a fresh random ID.
func NewID() ID {
	return ID(uuid.New())
}

// ParseID parses the canonical textual form of an ID.
func ParseID(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ZeroID, err
	}
	return ID(u), nil
}

// DerivedID returns the identity of the instance-th copy of source produced
// by group. The result depends only on its inputs, so regenerating a group
// reproduces the same IDs.
func DerivedID(group, source ID, instance int) ID {
	var buf [20]byte
	copy(buf[:16], source[:])
	binary.BigEndian.PutUint32(buf[16:], uint32(instance))
	return ID(uuid.NewSHA1(uuid.UUID(group), buf[:]))
}

// IsZero reports whether id is unset.
func (id ID) IsZero() bool {
	return id == ZeroID
}

func (id ID) String() string {
	return uuid.UUID(id).String()
}

// Short returns the first eight hex digits, for messages.
func (id ID) Short() string {
	return id.String()[:8]
}

// Less orders IDs bytewise. Used wherever iteration order must be stable.
func (id ID) Less(other ID) bool {
	for i := range id {
		if id[i] != other[i] {
			return id[i] < other[i]
		}
	}
	return false
}

func (id ID) MarshalText() ([]byte, error) {
	return uuid.UUID(id).MarshalText()
}

func (id *ID) UnmarshalText(data []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(data)
}
