package buildoptions

// CallStackCeiling is the maximum number of call frames a single callEngine
// will hold before raising wasmruntime.ErrRuntimeCallStackOverflow. Every
// regular call pushes a frame; a tail call pops its caller's frame before the
// callee's is pushed, so a chain of tail calls does not add to the depth.
var CallStackCeiling = 2000
