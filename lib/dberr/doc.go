// Package dberr defines the error taxonomy shared by every layer of the
// database engine.
//
// All errors carry a return code (of type Code) so callers can make
// decisions on the condition rather than on the message text:
//
//   - CodeNotFound: the key has no live record in its zone.
//   - CodeIntegrity: a stored record failed checksum or signature
//     verification; the raw bytes are never returned.
//   - CodeIO: a file-level failure; escalates by tripping the owning bot's
//     sentinel in addition to being returned to the caller.
//   - CodeTimeout: the caller's wait on a response elapsed; a caller-side
//     observation only, the in-flight server-side work is unaffected.
//   - CodeUnhealthy: the addressed bot's sentinel is tripped.
//   - CodeShuttingDown: the addressed bot is draining and refuses new
//     mutations.
//   - CodeConfig: invalid or missing configuration; fatal at startup only.
//
// Use HasCode to test an error chain for a specific condition.
package dberr
