// Package objectid generates the document identifiers used by the store.
//
// An identifier is a 12 byte value composed of:
//  1. 4 byte big-endian unix timestamp (seconds)
//  2. 3 byte host fingerprint (hash of the host name)
//  3. 2 byte process id
//  4. 3 byte big-endian counter
//
// The counter is a single process wide atomic value that starts at a random
// position and wraps at 2^24. Generating an identifier never blocks and never
// fails. Within one process, identifiers created in the same second are ordered
// by the counter and identifiers from different seconds by their timestamp.
//
// Known limits:
//   - Because the counter starts at a random position, it can wrap from 2^24-1
//     to 0 inside one second. Identifiers created after the wrap sort before
//     those created earlier in that second. They stay unique. MongoDB
//     ObjectIDs behave the same way.
//   - If the clock is turned back and the counter wraps around within the same
//     second, an identifier can repeat.
//
// Identifiers are rendered as 24 character lowercase hex strings and implement
// encoding.TextMarshaler, so every serializer of the store persists them in
// that form.
package objectid
