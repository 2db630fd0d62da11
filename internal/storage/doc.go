// Package storage is the optional durability journal for submissions and
// day threads. The in-memory state is authoritative while running; the
// journal is replayed once at startup.
package storage
