// Package model defines the geometry model for kerf.
// A Model is an ordered timeline of feature groups together with the
// entities and constraints they own, all cross-referenced by ID.
package model
