// Package store provides storage and pub/sub functionality for entity states.
//
// This package is internal to pbxbridge and keeps the latest rendered value
// of every consumer entity (binary sensors and sensors derived from GonoPBX
// snapshots). It implements a publish-subscribe pattern for real-time updates
// to connected API clients.
//
// The main components are:
//
//   - [Store]: Interface defining storage and subscription operations
//   - [MemoryStore]: In-memory implementation of Store with pub/sub
//   - [EntityState]: Storage representation of one entity's rendered value
//
// Subscribers receive updates via channels with non-blocking sends (slow
// subscribers will miss updates rather than block the refresh path).
package store
