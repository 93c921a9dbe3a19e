// Package optical splits a serialized discovery payload across multiple
// frames with Reed-Solomon parity so it can be shown as a sequence of
// optical codes. A scanner that captures any `data` of the `data+parity`
// frames, in any order, can reconstruct the original payload; dropped or
// blurry frames up to the parity count are tolerated.
package optical
