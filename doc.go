// Package candysort provides the controller for a servo-driven candy color
// sorter.
//
// One selector wheel carries a single candy from the hopper past a color
// sensor to the drop chute, and a sorter arm swings an outlet tube to the
// chute that matches the measured color. The controller runs the cycle
// forever: load, present, measure, classify, deliver.
//
// # Installation
//
//	go install github.com/gwillem/candysort/cmd/candysort@latest
//
// # Usage
//
// First, run setup to detect the servo bus and sensor board and write the
// configuration file:
//
//	candysort setup
//
// Then start sorting:
//
//	candysort run
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/candysort: CLI with setup and run commands
//   - pkg/sorter: classifier, positioners, jostle and the sorting cycle
//   - pkg/hw: feetech servo and serial color-sensor adapters
package candysort
