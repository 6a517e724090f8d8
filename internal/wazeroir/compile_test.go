package wazeroir

import (
	"context"
	"testing"

	"github.com/tetratelabs/wazero-interp-core/internal/testing/require"
	"github.com/tetratelabs/wazero-interp-core/internal/wasm"
)

var (
	v_v   = wasm.FunctionType{}
	v_i32 = wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI32}, ResultNumInUint64: 1}
)

func compileOne(t *testing.T, features wasm.Features, module *wasm.Module) *CompilationResult {
	t.Helper()
	results, err := CompileFunctions(context.Background(), features, module)
	require.NoError(t, err)
	require.Len(t, results, len(module.FunctionSection))
	return results[0]
}

func TestCompileFunctions_ArithmeticNullary(t *testing.T) {
	module := &wasm.Module{
		TypeSection:     []wasm.FunctionType{v_i32},
		FunctionSection: []wasm.Index{0},
		CodeSection: []wasm.Code{{Body: []byte{
			wasm.OpcodeI32Const, 1,
			wasm.OpcodeI32Const, 2,
			wasm.OpcodeI32Add,
			wasm.OpcodeEnd,
		}}},
	}
	result := compileOne(t, 0, module)

	require.Len(t, result.Operations, 4)
	require.Equal(t, OperationKindConstI32, result.Operations[0].Kind())
	require.Equal(t, uint32(1), result.Operations[0].(*OperationConstI32).Value)
	require.Equal(t, OperationKindConstI32, result.Operations[1].Kind())
	require.Equal(t, uint32(2), result.Operations[1].(*OperationConstI32).Value)
	add, ok := result.Operations[2].(*OperationAdd)
	require.True(t, ok)
	require.Equal(t, UnsignedTypeI32, add.Type)
	// Falling off the end of the function body is a branch to its own
	// return label, same as every other "end" of a non-unreachable frame.
	br, ok := result.Operations[3].(*OperationBr)
	require.True(t, ok)
	require.True(t, br.Target.IsReturnTarget())
}

// Regression test for a real bug: try/catch lowering used to never emit a
// branch skipping the catch clauses when the try body completed without
// throwing, so a non-throwing try would fall straight into its own catch
// handler. compileOp's OpcodeCatch case now closes the try body the same
// way OpcodeElse closes an if's "then" arm.
func TestCompileFunctions_TryFallsThroughSkipsCatch(t *testing.T) {
	tagIdx := uint32(0)
	module := &wasm.Module{
		TypeSection:     []wasm.FunctionType{v_v},
		FunctionSection: []wasm.Index{0},
		TagSection:      []wasm.Tag{{Type: &v_v}},
		CodeSection: []wasm.Code{{Body: []byte{
			wasm.OpcodeTry, 0x40, // empty block type
			wasm.OpcodeCatch, byte(tagIdx),
			wasm.OpcodeEnd, // closes the try/catch construct
			wasm.OpcodeEnd, // closes the function
		}}},
	}
	result := compileOne(t, wasm.FeatureExceptionHandling, module)
	require.True(t, result.HasTryCatch)

	require.Len(t, result.Operations, 6)

	tryOp, ok := result.Operations[0].(*OperationTry)
	require.True(t, ok)
	require.Len(t, tryOp.Catches, 1)
	require.Equal(t, tagIdx, *tryOp.Catches[0].TagIndex)

	// The fallthrough-skip branch: emitted before the catch label/handler,
	// targeting the try's own continuation label, not the catch's.
	skip, ok := result.Operations[1].(*OperationBr)
	require.True(t, ok)
	require.NotEqual(t, tryOp.Catches[0].Target, skip.Target)

	label, ok := result.Operations[2].(*OperationLabel)
	require.True(t, ok)
	require.Equal(t, tryOp.Catches[0].Target, label.Label)

	catch, ok := result.Operations[3].(*OperationCatch)
	require.True(t, ok)
	require.Equal(t, tagIdx, *catch.TagIndex)

	// Landing point the skip branch jumps to: the try's continuation label,
	// emitted once more when the catch clause itself falls through to "end".
	landing, ok := result.Operations[4].(*OperationLabel)
	require.True(t, ok)
	require.Equal(t, skip.Target, landing.Label)

	funcEnd, ok := result.Operations[5].(*OperationBr)
	require.True(t, ok)
	require.True(t, funcEnd.Target.IsReturnTarget())
}

func TestCompileFunctions_CatchAllSkipsLikeCatch(t *testing.T) {
	module := &wasm.Module{
		TypeSection:     []wasm.FunctionType{v_v},
		FunctionSection: []wasm.Index{0},
		CodeSection: []wasm.Code{{Body: []byte{
			wasm.OpcodeTry, 0x40,
			wasm.OpcodeCatchAll,
			wasm.OpcodeEnd,
			wasm.OpcodeEnd,
		}}},
	}
	result := compileOne(t, wasm.FeatureExceptionHandling, module)

	tryOp := result.Operations[0].(*OperationTry)
	require.True(t, tryOp.HasCatchAll)
	require.Len(t, tryOp.Catches, 1)
	require.Nil(t, tryOp.Catches[0].TagIndex)

	_, ok := result.Operations[1].(*OperationBr)
	require.True(t, ok)
}

func TestCompileFunctions_ReturnCallRequiresTailCallFeature(t *testing.T) {
	module := &wasm.Module{
		TypeSection:     []wasm.FunctionType{v_v},
		FunctionSection: []wasm.Index{0, 0},
		CodeSection: []wasm.Code{
			{Body: []byte{wasm.OpcodeReturnCall, 1, wasm.OpcodeEnd}},
			{Body: []byte{wasm.OpcodeEnd}},
		},
	}
	_, err := CompileFunctions(context.Background(), 0, module)
	require.Error(t, err)

	result := compileOne(t, wasm.FeatureTailCall, module)
	// The body's own "end" always emits its trailing branch to the return
	// label, even though return_call already left this frame unreachable.
	require.Len(t, result.Operations, 2)
	rc, ok := result.Operations[0].(*OperationReturnCall)
	require.True(t, ok)
	require.Equal(t, uint32(1), rc.FunctionIndex)
}

func TestCompileFunctions_ThrowRequiresExceptionHandlingFeature(t *testing.T) {
	module := &wasm.Module{
		TypeSection:     []wasm.FunctionType{v_v},
		FunctionSection: []wasm.Index{0},
		TagSection:      []wasm.Tag{{Type: &v_v}},
		CodeSection:     []wasm.Code{{Body: []byte{wasm.OpcodeThrow, 0, wasm.OpcodeEnd}}},
	}
	_, err := CompileFunctions(context.Background(), 0, module)
	require.Error(t, err)

	result := compileOne(t, wasm.FeatureExceptionHandling, module)
	require.Len(t, result.Operations, 2)
	th, ok := result.Operations[0].(*OperationThrow)
	require.True(t, ok)
	require.Equal(t, uint32(0), th.TagIndex)
}
