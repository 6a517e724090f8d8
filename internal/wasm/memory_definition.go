package wasm

import "github.com/tetratelabs/wazero-interp-core/api"

// MemoryDefinition implements api.MemoryDefinition, built once per Module by
// BuildMemoryDefinitions. Only one memory per module is supported; see
// SPEC_FULL.md Scope Decisions on the multi-memory proposal.
type MemoryDefinition struct {
	index       Index
	importDesc  *[2]string // [moduleName, name]
	exportNames []string
	memory      *Memory
}

var _ api.MemoryDefinition = &MemoryDefinition{}

func (m *MemoryDefinition) ModuleName() string { return "" }
func (m *MemoryDefinition) Index() uint32      { return m.index }

func (m *MemoryDefinition) Import() (moduleName, name string, isImport bool) {
	if m.importDesc == nil {
		return "", "", false
	}
	return m.importDesc[0], m.importDesc[1], true
}

func (m *MemoryDefinition) ExportNames() []string { return m.exportNames }
func (m *MemoryDefinition) Min() uint32           { return m.memory.Min }

func (m *MemoryDefinition) Max() (uint32, bool) {
	return m.memory.Max, m.memory.IsMaxEncoded
}

// BuildMemoryDefinitions populates Module.MemoryDefinitionSection. As with
// multi-memory generally (see Memory), a module has at most one imported or
// one defined memory, never both: Module.MemorySection describes whichever
// memory the module instantiates, import or not.
func (m *Module) BuildMemoryDefinitions() {
	m.buildMemoryDefinitionsOnce.Do(func() {
		var defs []MemoryDefinition

		var importIdx Index
		for i := range m.ImportSection {
			imp := &m.ImportSection[i]
			if imp.Type != ExternTypeMemory {
				continue
			}
			defs = append(defs, MemoryDefinition{
				index:      importIdx,
				importDesc: &[2]string{imp.Module, imp.Name},
				memory:     imp.DescMem,
			})
			importIdx++
		}

		if m.MemorySection != nil {
			defs = append(defs, MemoryDefinition{index: Index(len(defs)), memory: m.MemorySection})
		}

		for _, exp := range m.ExportSection {
			if exp.Type != ExternTypeMemory {
				continue
			}
			for i := range defs {
				if defs[i].index == exp.Index {
					defs[i].exportNames = append(defs[i].exportNames, exp.Name)
					break
				}
			}
		}

		m.MemoryDefinitionSection = defs
	})
}

// ImportedMemories returns every MemoryDefinition backed by an Import.
func (m *Module) ImportedMemories() []api.MemoryDefinition {
	m.BuildMemoryDefinitions()
	var ret []api.MemoryDefinition
	for i := range m.MemoryDefinitionSection {
		if m.MemoryDefinitionSection[i].importDesc != nil {
			ret = append(ret, &m.MemoryDefinitionSection[i])
		}
	}
	return ret
}

// ExportedMemories returns every exported MemoryDefinition keyed by its
// export name.
func (m *Module) ExportedMemories() map[string]api.MemoryDefinition {
	m.BuildMemoryDefinitions()
	ret := make(map[string]api.MemoryDefinition)
	for i := range m.MemoryDefinitionSection {
		def := &m.MemoryDefinitionSection[i]
		for _, name := range def.exportNames {
			ret[name] = def
		}
	}
	return ret
}
