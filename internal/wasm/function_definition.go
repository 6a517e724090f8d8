package wasm

import (
	"reflect"

	"github.com/tetratelabs/wazero-interp-core/api"
	"github.com/tetratelabs/wazero-interp-core/internal/wasmdebug"
)

// FunctionDefinition implements api.FunctionDefinition, built once per
// Module by buildFunctionDefinitions and cached in
// Module.FunctionDefinitionSection.
type FunctionDefinition struct {
	index       Index
	name        string
	moduleName  string
	Debugname   string
	importDesc  *Import
	exportNames []string
	Functype    *FunctionType
	paramNames  []string
	resultNames []string
	goFunc      *reflect.Value
}

var _ api.FunctionDefinition = &FunctionDefinition{}

func (f *FunctionDefinition) ModuleName() string { return f.moduleName }
func (f *FunctionDefinition) Index() uint32      { return f.index }
func (f *FunctionDefinition) Name() string       { return f.name }
func (f *FunctionDefinition) DebugName() string  { return f.Debugname }

func (f *FunctionDefinition) Import() (moduleName, name string, isImport bool) {
	if f.importDesc == nil {
		return "", "", false
	}
	return f.importDesc.Module, f.importDesc.Name, true
}

func (f *FunctionDefinition) ExportNames() []string { return f.exportNames }
func (f *FunctionDefinition) GoFunc() *reflect.Value { return f.goFunc }
func (f *FunctionDefinition) ParamTypes() []ValueType  { return f.Functype.Params }
func (f *FunctionDefinition) ParamNames() []string     { return f.paramNames }
func (f *FunctionDefinition) ResultTypes() []ValueType { return f.Functype.Results }
func (f *FunctionDefinition) ResultNames() []string    { return f.resultNames }

// buildFunctionDefinitions populates Module.FunctionDefinitionSection,
// idempotently and safely for concurrent first callers (mirrors the
// Once-guarded memoization the rest of this package uses for derived,
// immutable-after-instantiation module metadata).
func (m *Module) buildFunctionDefinitions() {
	m.buildFunctionDefinitionsOnce.Do(func() {
		var moduleName string
		var functionNames NameMap
		var localNames, resultNames IndirectNameMap
		if ns := m.NameSection; ns != nil {
			moduleName = ns.ModuleName
			functionNames = ns.FunctionNames
			localNames = ns.LocalNames
			resultNames = ns.ResultNames
		}

		importCount := m.ImportFunctionCount
		defs := make([]FunctionDefinition, 0, len(m.FunctionSection)+int(importCount))

		var importIdx Index
		for i := range m.ImportSection {
			imp := &m.ImportSection[i]
			if imp.Type != ExternTypeFunc {
				continue
			}
			idx := importIdx
			importIdx++
			ft := &m.TypeSection[imp.DescFunc]
			defs = append(defs, FunctionDefinition{
				index:      idx,
				moduleName: moduleName,
				name:       lookupName(functionNames, idx),
				Debugname:  wasmdebug.FuncName(moduleName, lookupName(functionNames, idx), idx),
				importDesc: imp,
				Functype:   ft,
			})
		}

		for i, typeIdx := range m.FunctionSection {
			idx := importCount + Index(i)
			ft := &m.TypeSection[typeIdx]
			name := lookupName(functionNames, idx)
			var goFunc *reflect.Value
			if i < len(m.CodeSection) {
				goFunc = m.CodeSection[i].GoFunc
			}
			defs = append(defs, FunctionDefinition{
				index:       idx,
				moduleName:  moduleName,
				name:        name,
				Debugname:   wasmdebug.FuncName(moduleName, name, idx),
				Functype:    ft,
				goFunc:      goFunc,
				paramNames:  lookupIndirectNames(localNames, idx, len(ft.Params)),
				resultNames: lookupIndirectNames(resultNames, idx, len(ft.Results)),
			})
		}

		for _, exp := range m.ExportSection {
			if exp.Type != ExternTypeFunc || int(exp.Index) >= len(defs) {
				continue
			}
			defs[exp.Index].exportNames = append(defs[exp.Index].exportNames, exp.Name)
		}

		m.FunctionDefinitionSection = defs
	})
}

func lookupName(names NameMap, idx Index) string {
	for _, n := range names {
		if n.Index == idx {
			return n.Name
		}
	}
	return ""
}

func lookupIndirectNames(indirect IndirectNameMap, idx Index, count int) []string {
	if count == 0 {
		return nil
	}
	for _, outer := range indirect {
		if outer.Index != idx {
			continue
		}
		names := make([]string, count)
		for _, n := range outer.NameMap {
			if int(n.Index) < count {
				names[n.Index] = n.Name
			}
		}
		return names
	}
	return nil
}

// ImportedFunctions returns every FunctionDefinition backed by an Import.
func (m *Module) ImportedFunctions() []api.FunctionDefinition {
	m.buildFunctionDefinitions()
	var ret []api.FunctionDefinition
	for i := range m.FunctionDefinitionSection {
		if m.FunctionDefinitionSection[i].importDesc != nil {
			ret = append(ret, &m.FunctionDefinitionSection[i])
		}
	}
	return ret
}

// ExportedFunctions returns every exported FunctionDefinition keyed by its
// export name.
func (m *Module) ExportedFunctions() map[string]api.FunctionDefinition {
	m.buildFunctionDefinitions()
	ret := make(map[string]api.FunctionDefinition)
	for i := range m.FunctionDefinitionSection {
		def := &m.FunctionDefinitionSection[i]
		for _, name := range def.exportNames {
			ret[name] = def
		}
	}
	return ret
}
