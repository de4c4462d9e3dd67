// Package domain defines the core domain types and interfaces.
//
// Vote events, tallies, and the storage and broadcast contracts shared by the app layer,
// the room subsystem and the adapters. No implementation code - just contracts.
package domain
