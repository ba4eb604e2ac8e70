// Package protocol implements the protocol state machine of an instrument
// driver.
//
// A Driver owns a Channel to one instrument and a Capabilities set that
// describes the instrument: frame matchers, record decoder, parameter
// dictionary, prompts and commands. Events are dispatched through a table
// keyed by (state, event); instruments override or remove entries of the
// default table:
//
//	UNINITIALIZED  DISCOVER
//	COMMAND        ENTER GET SET ACQUIRE_STATUS ACQUIRE_SAMPLE START_AUTOSAMPLE
//	               CLOCK_SYNC START_DIRECT RUN_TEST
//	AUTOSAMPLE     ENTER GET STOP_AUTOSAMPLE
//	DIRECT_ACCESS  ENTER EXECUTE_DIRECT STOP_DIRECT
//	TEST           ENTER GET TEST_COMPLETE
//
// Command exchanges are half-duplex: Execute sends a command, wakes a silent
// device and resends once, and waits for the terminal prompt. All received
// bytes flow through the chunker; decoded samples go to the sample handlers
// and parameter frames refresh the dictionary.
//
// Entering DIRECT_ACCESS saves the parameters flagged for it; returning to
// COMMAND restores them, with forced values substituted, one set at a time.
// While in direct access, the echo of bytes sent by the operator is stripped
// from the inbound stream, even when it spans two reads, and the rest is
// delivered raw.
//
// Run drives one instrument on a single goroutine. Drivers are independent
// and can run in parallel; Registry indexes them by id (see WithID). Each
// driver needs its own Capabilities.
package protocol
