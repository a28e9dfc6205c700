// Package ozone provides the embedded database facade. A DB shards its
// keyspace over a fixed number of zones, each served by a pool of worker
// bots with exclusive on-disk slices. Callers interact only with the
// facade; every operation becomes a message routed by key hash to the
// responsible bot and the reply is correlated back by ticket.
//
// Values are pushed through a configurable at-rest pipeline (checksum,
// optional signature, optional encryption) before they hit disk, and
// verified on the way back. A damaged record fails its read with an
// integrity error instead of returning bytes that were never written.
package ozone
