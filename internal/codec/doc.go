// Package codec implements the lossless, verifiable transform between a
// file's byte stream and a sequence of transport segments, and its exact
// inverse: splitting, small-segment packing, compression, encryption and
// content hashing. Every transform fails closed: corrupted input never
// silently produces wrong output.
package codec
