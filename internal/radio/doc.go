// Package radio defines the value types exchanged between the capability
// manager and the Radio HAL.
//
// # Access families and access modes
//
// An AccessFamily is the bitmap a modem reports for the radio technologies
// it can serve (GPRS, UMTS, LTE, NR, ...). Bit positions follow the radio
// technology numbering used by the HAL, so the value can be copied to and
// from the wire unchanged.
//
// An AccessMode is the coarse ordinal view of the same information:
// GSM < UMTS < LTE < NR. The mapping from families to modes is table driven
// (see modeTable). A bitmap contributes every mode it overlaps; the
// "highest mode" is the numerically largest mode bit set.
//
// # Snapshots and wire messages
//
// Snapshot is the immutable capability record the manager keeps per slot.
// Message is its bit-exact wire form (see MarshalBinary). Both carry the
// same five fields; Message exists so the codec can be tested and evolved
// independently of the in-memory model.
//
// # Canonical JSON
//
// MarshalCanonical produces deterministic JSON (sorted keys, NFC strings,
// no floats) for trace persistence and comparison.
package radio
