// Package exchange orchestrates the peer exchange session: it derives a
// signed discovery payload from the local profile, joins the rendezvous
// room over a replicated-map transport, broadcasts an encrypted peer entry,
// and verifies entries received from other peers.
//
// Only signed hashes and encrypted previews travel over the wire; raw
// profile data and raw embedding vectors never do.
package exchange
