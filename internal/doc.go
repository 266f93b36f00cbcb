// Package internal contains the implementation packages of livepad.
//
// # Package Organization
//
//   - bundle: the three edited fragments, the plain-text save format and starter templates
//   - markup: normalizes pasted markup to body content
//   - assembler: builds the preview and standalone documents, including the diagnostics bridge
//   - scheduler: debounces change notifications into one render
//   - surface: the isolated host contract and the sandboxed browser frame
//   - realm: a headless host running document scripts in goja
//   - diagnostics: collects console output and uncaught errors from hosted documents
//   - preview: the pipeline and its render state
//   - server: the browser editor, JSON API and websocket events
//   - watcher: workspace files on disk as an editing source
//   - config, logging, errors, monitoring, validation, version, docs: supporting packages
//
// # Data Flow
//
// An edit reaches the pipeline as a bundle through NotifyChanged, from the
// editor API or the workspace watcher. The scheduler waits for the quiet
// period, the assembler builds the document in memory and the surface swaps
// it in. The reporter publishes Loading, Idle or Error; scripts in the
// document post diagnostics back through the bridge.
package internal
