// Package param keeps a device's known configuration.
//
// A Dictionary is built from a fixed table of Descriptors. UpdateFrom reads a
// status dump and overwrites only the parameters it recognizes; Format and
// Parse convert between typed values and the device's textual syntax; Command
// builds set commands. Phrases map enumerated textual states, such as
// "not logging" and "logging", to values by exact match.
//
// Snapshot and Restore save and re-apply parameters around a direct-access
// session. Restore issues one set at a time through a Setter and may force
// designated parameters to a fixed value.
package param
