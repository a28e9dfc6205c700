// Package id provides the fixed-width identifier types used to address the
// moving parts of the database: bots (Bid), messages (Mid), sessions (Sid),
// users (Uid) and in-flight requests (Ticket).
//
// Every type has a fixed byte width that is part of its contract. Parsing
// from a decimal string fails if the value does not fit the declared width,
// so an identifier can never silently truncate. All types are plain values
// and safe to copy and share between goroutines.
package id
