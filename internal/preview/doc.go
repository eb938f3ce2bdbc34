// Package preview turns a rapidly-edited document into up-to-date
// rendered output without ever blocking the editing surface.
//
// The pipeline composes four stages, driven by edit events:
//
//	┌──────────────────────────────────────────────┐
//	│              Pipeline (Facade)               │
//	├──────────────────────────────────────────────┤
//	│ Debouncer │ Scheduler (coalescing, priority) │
//	├──────────────────────────────────────────────┤
//	│   Render Worker │ Block Cache (LRU, hashed)  │
//	├──────────────────────────────────────────────┤
//	│     Converter (host-supplied, per block)     │
//	└──────────────────────────────────────────────┘
//
// An edit event restarts the debouncer; on quiescence a render task is
// submitted under the "preview" coalescing key, superseding any older
// task for the same key. A worker segments the snapshot into blocks,
// serves unchanged blocks from the content-addressed cache, converts
// the rest, and assembles the output in order. Results flow back on an
// asynchronous channel; a staleness guard discards any result older
// than one already delivered, so a slow render of an old version can
// never overwrite a fast render of a newer one.
package preview
