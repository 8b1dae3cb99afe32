// Package viz draws training progress and rollouts in the terminal.
//
//   - [Dashboard]: Bubble Tea model fed with [telemetry.Progress] messages
//     from the training goroutine through tea.Program.Send; [Watch] wires
//     both sides together
//   - [Canvas]: Braille canvas used for latent phase paths and frame previews
//
// # Key Bindings
//
//	Q, Ctrl+C - stop training and quit
//	L         - toggle log scale on the loss chart
package viz
