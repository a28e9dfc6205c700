// Package scheme provides the pluggable at-rest transforms applied to every
// record before it touches storage and after it is read back.
//
// The package focuses on:
//   - Small capability interfaces (Hasher, Checksummer, Signer, Encrypter,
//     KeyDeriver) that are polymorphic over implementation and safe to share
//     across bot goroutines
//   - The RestSchemes pipeline that composes the transforms in a fixed
//     order: checksum -> sign -> encrypt on write, and the exact reverse on
//     read, failing closed at the first stage that does not verify
//
// Key Components:
//
//   - RestSchemes: an ordered, overridable set of transforms. Defaults apply
//     when no override is configured (xxhash key hashing, CRC32C checksums,
//     no signing, no encryption). Encode and Decode are inverse operations:
//     Decode(Encode(x)) == x for the same key material.
//
//   - Self-describing payloads: every encoded payload starts with one id
//     byte per stage, so a record written under one scheme combination is
//     never mis-decoded under another; a mismatch is reported as an
//     integrity failure instead of returning garbage bytes.
//
//   - Registry constructors (NewHasher, NewChecksummer, NewSigner,
//     NewEncrypter) that build a stage from its configured name, used by the
//     configuration surface.
//
// Swapping a stage for an existing database requires re-encoding all stored
// records; that is a maintenance operation, not a runtime path.
package scheme
