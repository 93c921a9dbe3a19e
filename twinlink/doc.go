// Package twinlink provides a library implementation of the twinlink
// privacy-preserving peer exchange and synchronization building blocks.
//
// Two or more devices discover each other out-of-band via signed, expiring
// discovery payloads (optical codes), exchange verified peer entries over a
// replicated-map rendezvous transport, rank peers by similarity, and track
// profile edits with vector-clock versioned state for conflict-free merging
// across a user's own devices. Only signed hashes and encrypted previews
// ever travel over the wire.
package twinlink
