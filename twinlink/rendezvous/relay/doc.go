// Package relay implements the rendezvous transport over QUIC: a relay
// server hosts rooms with last-writer-wins maps, and clients join a room by
// id, receive the current map state, and exchange change/presence frames on
// a single control stream.
//
// The relay is untrusted for authenticity: it can observe ciphertext and
// hashes but entry signatures are verified end-to-end by the exchange layer.
// TLS here is self-signed transport encryption only.
package relay
