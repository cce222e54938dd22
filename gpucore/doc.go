// Package gpucore provides the GPU abstractions shared by the compositor's
// pipeline stages.
//
// The [GPUAdapter] interface hides the backend that executes compute work:
//   - backend/native drives a gogpu/wgpu HAL device and compiles WGSL with naga
//   - backend/software runs the CPU rendition of each kernel
//
// # Architecture
//
//	   capture ──> resource (copy) ──> edgepad ──> effect ──> surface
//	                     \               |            /
//	                      +------ gpucore.Encoder ---+
//	                                     |
//	                    +----------------+----------------+
//	                    |                                 |
//	           +--------v--------+               +--------v--------+
//	           | native adapter  |               | software adapter|
//	           |  (hal.Device)   |               |  (Go kernels)   |
//	           +-----------------+               +-----------------+
//
// # Images
//
// Pixels live in storage buffers of packed RGBA8 words, described by
// [Image]. Every image kernel uses 8x8 workgroups; [Workgroups] returns the
// dispatch size for an image.
//
// # Programs and encoders
//
// A [Program] bundles the shader module, bind group layout, pipeline layout
// and pipeline for one kernel. An [Encoder] records one frame's dispatches,
// creating transient bind groups that it destroys once the frame's work has
// completed.
//
// # Resource Management
//
// GPU resources are referenced by opaque IDs. Adapters map IDs to their
// native objects and must never hand out [InvalidID].
package gpucore
