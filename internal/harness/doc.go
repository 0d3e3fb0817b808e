// Package harness runs capability-reallocation scenarios against a
// simulated device.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: lte_follows_sim
//	description: "LTE moves to the only slot with a SIM"
//	device:
//	  slots:
//	    - index: 0
//	      families: [gsm, lte]
//	      modem_id: m0
//	    - index: 1
//	      families: [gsm]
//	      modem_id: m1
//	      sim: {present: true, identity: "8901"}
//	faults:
//	  - {slot: 1, op: apply, kind: protocol}
//	steps:
//	  - request: {slot: 1, modes: [lte], role: internet, as: r1}
//	  - run: true
//	  - release: r1
//	  - advance: 200ms
//	expect:
//	  outcome: committed
//	  slots:
//	    - {slot: 1, has: [lte]}
//	  wire_requests: 6
//	  trace_count: {abort: 0}
//
// The device section is a config.Config. Steps mutate the device or the
// manager without running the loop; "run" drains it and "advance" moves the
// manual clock. The loop is always drained once more after the last step.
//
// # Deterministic Execution
//
// Every run uses a manual clock at a fixed epoch, a fresh logical sequence
// and sequential request tokens ("req-1", "req-2", ...), so the same
// scenario always yields the same trace. RunWithGolden compares that trace
// against testdata/golden/<name>.golden.
package harness
