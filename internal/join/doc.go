// Package join turns a sequence of independently decodable media segments
// into continuous playback on a single surface.
//
// Two backends implement [Backend]: [Sequencer] plays each segment in its
// own [Unit] attached to a [Container], and [StreamBuffer] appends every
// segment to one continuous [Pipeline]. Both run entirely on a [Scheduler];
// [Loop] is the goroutine-backed implementation used outside tests.
package join
