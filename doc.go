// Package fingerprint is a minutiae based 1:N fingerprint identification engine.
//
// Templates are decoded with the Template Codec, gated by the Quality Scorer,
// compared pairwise by geometric alignment and ranked by the Identifier:
//
//	probe, err := fingerprint.Decode(raw)
//	id := fingerprint.NewIdentifier(fingerprint.DefaultPolicy(), nil)
//	result, err := id.Identify(ctx, probe, roster)
//
// The engine performs no I/O and keeps no state between calls.
package fingerprint
