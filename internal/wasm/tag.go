package wasm

// TagInstance binds a module's declared or imported exception tag (see
// Module.TagSection) to the FunctionType describing the values a throw of
// that tag carries. Runtime tag identity is by pointer, matching how
// FunctionInstance ties a Module's static declaration to one instance.
type TagInstance struct {
	Type   *FunctionType
	Module *ModuleInstance
}
