// Package watch regenerates the asset manifest when the assets directory
// changes.
//
// It is split into three stages that can be tested on their own:
//
//   - [Source] turns fsnotify notifications into a stream of relevant
//     [Event] values, covering nested directories when it can.
//   - [Debouncer] and [Coalesce] collapse bursts of events into single
//     regeneration signals once the directory has been quiet for a window.
//   - [Run] consumes those signals one at a time, so two generation passes
//     never overlap.
package watch
