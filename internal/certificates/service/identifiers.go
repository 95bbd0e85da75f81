package service

import "github.com/google/uuid"

// Identifiers mints certificate unique identifiers. Allocation happens
// before rendering so QR codes can embed the identifier.
type Identifiers interface {
	Allocate() string
}

// UUIDIdentifiers allocates random (v4) UUIDs. Collisions are left to the
// unique index on certificates.unique_identifier, which makes the caller
// allocate again.
type UUIDIdentifiers struct{}

func (UUIDIdentifiers) Allocate() string { return uuid.NewString() }
