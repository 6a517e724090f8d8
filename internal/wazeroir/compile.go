package wazeroir

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/tetratelabs/wazero-interp-core/internal/leb128"
	"github.com/tetratelabs/wazero-interp-core/internal/wasm"
)

// CompileFunctions lowers every function body in module (not counting host
// functions, which never reach here — engine.CompileModule special-cases
// those) into a CompilationResult ready for an engine's own lowering pass
// (e.g. interpreter.lowerIR's address resolution).
func CompileFunctions(_ context.Context, enabledFeatures wasm.Features, module *wasm.Module) ([]*CompilationResult, error) {
	results := make([]*CompilationResult, len(module.FunctionSection))
	for i, typeIdx := range module.FunctionSection {
		code := &module.CodeSection[i]
		sig := &module.TypeSection[typeIdx]
		c := newCompiler(enabledFeatures, module, sig, code.LocalTypes)
		result, err := c.compile(code.Body)
		if err != nil {
			return nil, fmt.Errorf("function[%d/%d] failed to lower: %w", i, len(module.FunctionSection)-1, err)
		}
		results[i] = result
	}
	return results, nil
}

// controlFrameKind classifies an entry on the compiler's control-flow stack.
type controlFrameKind byte

const (
	controlFrameKindFunction controlFrameKind = iota
	controlFrameKindBlock
	controlFrameKindLoop
	controlFrameKindIfWithoutElse
	controlFrameKindIfWithElse
	controlFrameKindTry
)

// controlFrame tracks one nested block/loop/if/function body while compiling,
// enough to resolve br/br_if/br_table targets and to know what a fallthrough
// "end" must leave on the virtual operand stack.
type controlFrame struct {
	kind controlFrameKind

	// blockType is this construct's (params) -> (results) signature.
	blockType *wasm.FunctionType

	// startHeight is the virtual stack height at the moment this construct
	// was entered, i.e. including its own params (already pushed by the
	// surrounding code before the block/loop/if opcode was seen).
	startHeight int

	// label is the target used when branching to this construct: the
	// block/if's continuation (falls through past "end"), or the loop's
	// header (jumps back to just after "loop").
	label *Label

	// elseLabel is only set for controlFrameKindIfWithoutElse: the label an
	// "else" opcode, if later seen, begins.
	elseLabel *Label

	// tryOp is set for controlFrameKindTry: the OperationTry emitted when
	// this try block opened, appended to as each catch/catch_all clause is
	// seen (its Target labels are allocated and emitted at that point).
	tryOp *OperationTry

	// unreachable marks that the rest of this frame, up to the next
	// structural boundary (else/end) at this nesting depth, is dead code
	// reached only after an instruction that always transfers control away
	// (unreachable, br, return, br_table, throw, rethrow). Compiled bytes
	// are still decoded so the body stays in sync, but virtual-stack height
	// bookkeeping is not trusted until the next boundary resets it.
	unreachable bool
}

// branchArity is the number of values an explicit branch to this frame's
// label must leave on the stack: the loop's params (branching to the header
// re-enters the loop, which expects its params again) or the block/if/
// function's results (branching out behaves like an early "end").
func (f *controlFrame) branchArity() int {
	if f.kind == controlFrameKindLoop {
		return len(f.blockType.Params)
	}
	return len(f.blockType.Results)
}

// resultArity is the number of values this frame's body itself produces,
// used when it closes by falling off its own "end" rather than by being
// targeted by a branch. Unlike branchArity, a loop's fallthrough still
// produces its Results (only jumps back to its header need Params).
func (f *controlFrame) resultArity() int {
	return len(f.blockType.Results)
}

// exitHeight is the virtual stack height immediately after an explicit
// branch to this frame's label. For a loop that is the re-entry height at
// its header (its Params are expected there again); for everything else it
// is the post-Results height, same as fallthroughHeight.
func (f *controlFrame) exitHeight() int {
	if f.kind == controlFrameKindLoop {
		return f.startHeight
	}
	return f.fallthroughHeight()
}

// fallthroughHeight is the virtual stack height after this frame closes by
// running off its own "end" (not by being branched to) — always the
// Params-replaced-by-Results height, even for a loop, whose natural exit is
// not the same as jumping back to its header.
func (f *controlFrame) fallthroughHeight() int {
	if f.kind == controlFrameKindFunction {
		return f.startHeight + len(f.blockType.Results)
	}
	return f.startHeight - len(f.blockType.Params) + len(f.blockType.Results)
}

// compiler lowers one function body into a CompilationResult. Locals
// (params followed by declared locals) occupy the bottom localsHeight slots
// of the virtual operand stack throughout the function's lifetime; every
// other push/pop models the wasm operand stack above them.
type compiler struct {
	enabledFeatures wasm.Features
	module          *wasm.Module
	sig             *wasm.FunctionType
	localTypes      []wasm.ValueType

	localsHeight int
	height       int

	frames []*controlFrame
	result CompilationResult

	nextFrameID uint32
}

func newCompiler(enabledFeatures wasm.Features, module *wasm.Module, sig *wasm.FunctionType, localTypes []wasm.ValueType) *compiler {
	localsHeight := len(sig.Params) + len(localTypes)
	return &compiler{
		enabledFeatures: enabledFeatures,
		module:          module,
		sig:             sig,
		localTypes:      localTypes,
		localsHeight:    localsHeight,
		height:          localsHeight,
		result: CompilationResult{
			LabelCallers: map[string]uint32{},
		},
	}
}

func (c *compiler) localType(idx uint32) wasm.ValueType {
	if int(idx) < len(c.sig.Params) {
		return c.sig.Params[idx]
	}
	return c.localTypes[int(idx)-len(c.sig.Params)]
}

func (c *compiler) newLabel(kind LabelKind) *Label {
	c.nextFrameID++
	return &Label{Kind: kind, FrameID: c.nextFrameID}
}

func (c *compiler) emit(op Operation) {
	c.result.Operations = append(c.result.Operations, op)
}

func (c *compiler) peek() *controlFrame { return c.frames[len(c.frames)-1] }

func (c *compiler) push() { c.height++ }

// pop decrements the virtual height, never below zero. Stack-polymorphic
// code after an unconditional transfer may pop more than is statically
// present, which is valid wasm and harmless here: the code never runs, and
// the next else/catch/end resets the height.
func (c *compiler) pop() {
	if c.height > 0 {
		c.height--
	}
}

// compile decodes body (the raw instruction sequence between a function's
// locals declaration and its closing "end", exclusive) into Operations.
func (c *compiler) compile(body []byte) (*CompilationResult, error) {
	fn := &controlFrame{
		kind:      controlFrameKindFunction,
		blockType: c.sig,
		startHeight: c.localsHeight,
		label:     &Label{Kind: LabelKindReturn},
	}
	c.frames = append(c.frames, fn)

	r := bytes.NewReader(body)
	for len(c.frames) > 0 {
		if r.Len() == 0 {
			return nil, fmt.Errorf("unexpected end of function body")
		}
		op, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if err := c.compileOp(r, op); err != nil {
			return nil, err
		}
	}
	return &c.result, nil
}

// readBlockType decodes a block/loop/if immediate: 0x40 (empty), a single
// valtype byte, or a signed LEB128 index into the module's type section (the
// multi-value proposal's encoding, all folded into one s33 varint per the
// core spec's binary format).
func (c *compiler) readBlockType(r *bytes.Reader) (*wasm.FunctionType, error) {
	v, _, err := leb128.DecodeInt33AsInt64(r)
	if err != nil {
		return nil, fmt.Errorf("decode blocktype: %w", err)
	}
	if v == -0x40 {
		return &wasm.FunctionType{}, nil
	}
	if v < 0 {
		vt := wasm.ValueType(v & 0x7f)
		return &wasm.FunctionType{Results: []wasm.ValueType{vt}}, nil
	}
	idx := uint32(v)
	if int(idx) >= len(c.module.TypeSection) {
		return nil, fmt.Errorf("invalid block type index %d", idx)
	}
	return &c.module.TypeSection[idx], nil
}

func readU32(r *bytes.Reader) (uint32, error) {
	v, _, err := leb128.DecodeUint32(r)
	return v, err
}

func readMemArg(r *bytes.Reader) (MemoryArg, error) {
	align, err := readU32(r)
	if err != nil {
		return MemoryArg{}, err
	}
	offset, err := readU32(r)
	if err != nil {
		return MemoryArg{}, err
	}
	return MemoryArg{Alignment: align, Offset: offset}, nil
}

// branchTargetDrop computes the BranchTargetDrop for a branch from the
// current (pre-branch) virtual height to target's label, dropping whatever
// sits between the kept result/param values and target's own base height.
func (c *compiler) branchTargetDrop(target *controlFrame) *BranchTargetDrop {
	arity := target.branchArity()
	exit := target.exitHeight()
	dropCount := c.height - exit
	var rng *InclusiveRange
	if dropCount > 0 {
		rng = &InclusiveRange{Start: arity, End: arity + dropCount - 1}
	}
	c.result.LabelCallers[target.label.String()]++
	return &BranchTargetDrop{Target: target.label, ToDrop: rng}
}

// frameAt returns the control frame `depth` levels up from the innermost
// (0 = innermost), the indexing used by br/br_if/br_table immediates.
func (c *compiler) frameAt(depth uint32) (*controlFrame, error) {
	idx := len(c.frames) - 1 - int(depth)
	if idx < 0 {
		return nil, fmt.Errorf("invalid branch depth %d", depth)
	}
	return c.frames[idx], nil
}

// compileOp decodes and lowers a single instruction (op was already read).
// Structural opcodes (block/loop/if/else/end) push/pop c.frames directly;
// everything else appends zero or more Operations.
func (c *compiler) compileOp(r *bytes.Reader, op wasm.Opcode) error {
	cur := c.peek()
	switch op {
	case wasm.OpcodeUnreachable:
		c.emit(&OperationUnreachable{})
		cur.unreachable = true
	case wasm.OpcodeNop:
	case wasm.OpcodeBlock:
		bt, err := c.readBlockType(r)
		if err != nil {
			return err
		}
		frame := &controlFrame{kind: controlFrameKindBlock, blockType: bt, startHeight: c.height, label: c.newLabel(LabelKindContinuation)}
		c.frames = append(c.frames, frame)
	case wasm.OpcodeLoop:
		bt, err := c.readBlockType(r)
		if err != nil {
			return err
		}
		frame := &controlFrame{kind: controlFrameKindLoop, blockType: bt, startHeight: c.height, label: c.newLabel(LabelKindHeader)}
		c.frames = append(c.frames, frame)
		c.emit(&OperationLabel{Label: frame.label})
	case wasm.OpcodeIf:
		bt, err := c.readBlockType(r)
		if err != nil {
			return err
		}
		c.pop() // condition
		thenLabel := c.newLabel(LabelKindHeader)
		frame := &controlFrame{kind: controlFrameKindIfWithoutElse, blockType: bt, startHeight: c.height, label: c.newLabel(LabelKindContinuation), elseLabel: c.newLabel(LabelKindElse)}
		c.frames = append(c.frames, frame)
		c.result.LabelCallers[thenLabel.String()]++
		c.result.LabelCallers[frame.elseLabel.String()]++
		// A taken condition falls straight into the "then" body (the label
		// placed immediately below); a false one jumps to the "else" label,
		// which is either a real else clause or (if none appears) the
		// continuation reused as an empty implicit else.
		c.emit(&OperationBrIf{
			Then: &BranchTargetDrop{Target: thenLabel},
			Else: &BranchTargetDrop{Target: frame.elseLabel},
		})
		c.emit(&OperationLabel{Label: thenLabel})
	case wasm.OpcodeElse:
		ifFrame := cur
		if ifFrame.kind != controlFrameKindIfWithoutElse {
			return fmt.Errorf("else without matching if")
		}
		// Close the "then" arm by jumping to the shared continuation; no
		// drop is emitted here.
		if !ifFrame.unreachable {
			c.emit(&OperationBr{Target: ifFrame.label})
			c.result.LabelCallers[ifFrame.label.String()]++
		}
		c.emit(&OperationLabel{Label: ifFrame.elseLabel})
		ifFrame.kind = controlFrameKindIfWithElse
		ifFrame.unreachable = false
		c.height = ifFrame.startHeight
	case wasm.OpcodeEnd:
		if err := c.compileEnd(cur); err != nil {
			return err
		}
		c.frames = c.frames[:len(c.frames)-1]
		if len(c.frames) == 0 {
			return nil
		}
	case wasm.OpcodeBr:
		depth, err := readU32(r)
		if err != nil {
			return err
		}
		target, err := c.frameAt(depth)
		if err != nil {
			return err
		}
		c.emit(&OperationBr{Target: target.label})
		c.result.LabelCallers[target.label.String()]++
		cur.unreachable = true
	case wasm.OpcodeBrIf:
		depth, err := readU32(r)
		if err != nil {
			return err
		}
		target, err := c.frameAt(depth)
		if err != nil {
			return err
		}
		c.pop() // condition
		thenDrop := c.branchTargetDrop(target)
		elseLabel := c.newFallthroughLabel()
		c.emit(&OperationBrIf{Then: thenDrop, Else: &BranchTargetDrop{Target: elseLabel}})
		c.emit(&OperationLabel{Label: elseLabel})
	case wasm.OpcodeBrTable:
		count, err := readU32(r)
		if err != nil {
			return err
		}
		targets := make([]*BranchTargetDrop, count)
		c.pop() // index
		for i := uint32(0); i < count; i++ {
			depth, err := readU32(r)
			if err != nil {
				return err
			}
			frame, err := c.frameAt(depth)
			if err != nil {
				return err
			}
			targets[i] = c.branchTargetDrop(frame)
		}
		defDepth, err := readU32(r)
		if err != nil {
			return err
		}
		defFrame, err := c.frameAt(defDepth)
		if err != nil {
			return err
		}
		c.emit(&OperationBrTable{Targets: targets, Default: c.branchTargetDrop(defFrame)})
		cur.unreachable = true
	case wasm.OpcodeReturn:
		fn, err := c.frameAt(uint32(len(c.frames) - 1))
		if err != nil {
			return err
		}
		c.emitExitDrop(fn)
		c.emit(&OperationBr{Target: fn.label})
		cur.unreachable = true
	case wasm.OpcodeCall:
		idx, err := readU32(r)
		if err != nil {
			return err
		}
		sig := c.calleeSignature(idx)
		for range sig.Params {
			c.pop()
		}
		c.emit(&OperationCall{FunctionIndex: idx})
		for range sig.Results {
			c.push()
		}
	case wasm.OpcodeCallIndirect:
		typeIdx, err := readU32(r)
		if err != nil {
			return err
		}
		tableIdx, err := readU32(r)
		if err != nil {
			return err
		}
		c.pop() // table index operand
		sig := &c.module.TypeSection[typeIdx]
		for range sig.Params {
			c.pop()
		}
		c.emit(&OperationCallIndirect{TypeIndex: typeIdx, TableIndex: tableIdx})
		c.result.UsesTable = true
		for range sig.Results {
			c.push()
		}
	case wasm.OpcodeReturnCall:
		if err := c.enabledFeatures.Require(wasm.FeatureTailCall); err != nil {
			return err
		}
		idx, err := readU32(r)
		if err != nil {
			return err
		}
		c.emit(&OperationReturnCall{FunctionIndex: idx})
		cur.unreachable = true
	case wasm.OpcodeReturnCallIndirect:
		if err := c.enabledFeatures.Require(wasm.FeatureTailCall); err != nil {
			return err
		}
		typeIdx, err := readU32(r)
		if err != nil {
			return err
		}
		tableIdx, err := readU32(r)
		if err != nil {
			return err
		}
		c.emit(&OperationReturnCallIndirect{TypeIndex: typeIdx, TableIndex: tableIdx})
		c.result.UsesTable = true
		cur.unreachable = true
	case wasm.OpcodeDrop:
		c.pop()
		c.emit(&OperationDrop{Depth: &InclusiveRange{Start: 0, End: 0}})
	case wasm.OpcodeSelect:
		c.pop()
		c.pop()
		c.emit(&OperationSelect{})
	case wasm.OpcodeSelectT:
		n, err := readU32(r)
		if err != nil {
			return err
		}
		for i := uint32(0); i < n; i++ {
			if _, err := r.ReadByte(); err != nil {
				return err
			}
		}
		c.pop()
		c.pop()
		c.emit(&OperationSelect{})
	case wasm.OpcodeLocalGet:
		idx, err := readU32(r)
		if err != nil {
			return err
		}
		depth := c.height - 1 - int(idx)
		c.emit(&OperationPick{Depth: depth})
		c.push()
	case wasm.OpcodeLocalSet:
		idx, err := readU32(r)
		if err != nil {
			return err
		}
		depth := c.height - 1 - int(idx)
		c.emit(&OperationSwap{Depth: depth})
		c.emit(&OperationDrop{Depth: &InclusiveRange{Start: 0, End: 0}})
		c.pop()
	case wasm.OpcodeLocalTee:
		idx, err := readU32(r)
		if err != nil {
			return err
		}
		c.emit(&OperationPick{Depth: 0})
		c.push()
		depth := c.height - 1 - int(idx)
		c.emit(&OperationSwap{Depth: depth})
		c.emit(&OperationDrop{Depth: &InclusiveRange{Start: 0, End: 0}})
		c.pop()
	case wasm.OpcodeGlobalGet:
		idx, err := readU32(r)
		if err != nil {
			return err
		}
		c.emit(&OperationGlobalGet{Index: idx})
		c.push()
	case wasm.OpcodeGlobalSet:
		idx, err := readU32(r)
		if err != nil {
			return err
		}
		c.emit(&OperationGlobalSet{Index: idx})
		c.pop()
	case wasm.OpcodeTableGet:
		idx, err := readU32(r)
		if err != nil {
			return err
		}
		c.result.UsesTable = true
		c.emit(&OperationTableGet{TableIndex: idx})
	case wasm.OpcodeTableSet:
		idx, err := readU32(r)
		if err != nil {
			return err
		}
		c.result.UsesTable = true
		c.emit(&OperationTableSet{TableIndex: idx})
		c.pop()
		c.pop()

	case wasm.OpcodeI32Load, wasm.OpcodeI64Load, wasm.OpcodeF32Load, wasm.OpcodeF64Load,
		wasm.OpcodeI32Load8S, wasm.OpcodeI32Load8U, wasm.OpcodeI32Load16S, wasm.OpcodeI32Load16U,
		wasm.OpcodeI64Load8S, wasm.OpcodeI64Load8U, wasm.OpcodeI64Load16S, wasm.OpcodeI64Load16U,
		wasm.OpcodeI64Load32S, wasm.OpcodeI64Load32U:
		arg, err := readMemArg(r)
		if err != nil {
			return err
		}
		c.result.UsesMemory = true
		c.emitLoad(op, arg)
	case wasm.OpcodeI32Store, wasm.OpcodeI64Store, wasm.OpcodeF32Store, wasm.OpcodeF64Store,
		wasm.OpcodeI32Store8, wasm.OpcodeI32Store16, wasm.OpcodeI64Store8, wasm.OpcodeI64Store16, wasm.OpcodeI64Store32:
		arg, err := readMemArg(r)
		if err != nil {
			return err
		}
		c.result.UsesMemory = true
		c.emitStore(op, arg)
		c.pop()
		c.pop()
	case wasm.OpcodeMemorySize:
		if _, err := r.ReadByte(); err != nil {
			return err
		}
		c.result.UsesMemory = true
		c.emit(&OperationMemorySize{})
		c.push()
	case wasm.OpcodeMemoryGrow:
		if _, err := r.ReadByte(); err != nil {
			return err
		}
		c.result.UsesMemory = true
		c.emit(&OperationMemoryGrow{})

	case wasm.OpcodeI32Const:
		v, _, err := leb128.DecodeInt32(r)
		if err != nil {
			return err
		}
		c.emit(&OperationConstI32{Value: uint32(v)})
		c.push()
	case wasm.OpcodeI64Const:
		v, _, err := leb128.DecodeInt64(r)
		if err != nil {
			return err
		}
		c.emit(&OperationConstI64{Value: uint64(v)})
		c.push()
	case wasm.OpcodeF32Const:
		var buf [4]byte
		if _, err := r.Read(buf[:]); err != nil {
			return err
		}
		c.emit(&OperationConstF32{Value: math.Float32frombits(binary.LittleEndian.Uint32(buf[:]))})
		c.push()
	case wasm.OpcodeF64Const:
		var buf [8]byte
		if _, err := r.Read(buf[:]); err != nil {
			return err
		}
		c.emit(&OperationConstF64{Value: math.Float64frombits(binary.LittleEndian.Uint64(buf[:]))})
		c.push()

	case wasm.OpcodeRefNull:
		if _, err := r.ReadByte(); err != nil {
			return err
		}
		c.emit(&OperationRefNull{})
		c.push()
	case wasm.OpcodeRefIsNull:
		c.emit(&OperationRefIsNull{})
	case wasm.OpcodeRefFunc:
		idx, err := readU32(r)
		if err != nil {
			return err
		}
		c.emit(&OperationRefFunc{FunctionIndex: idx})
		c.push()
	case wasm.OpcodeRefAsNonNull:
		c.emit(&OperationRefAsNonNull{})
	case wasm.OpcodeBrOnNull:
		depth, err := readU32(r)
		if err != nil {
			return err
		}
		if _, err := c.frameAt(depth); err != nil {
			return err
		}
		// No dedicated IR op models br_on_null's conditional-branch-and-drop
		// shape; reference-types programs that reach it trap rather than
		// branch. See DESIGN.md's known scope gaps.
		c.emit(&OperationUnreachable{})
	case wasm.OpcodeBrOnNonNull:
		depth, err := readU32(r)
		if err != nil {
			return err
		}
		if _, err := c.frameAt(depth); err != nil {
			return err
		}
		c.emit(&OperationUnreachable{})

	case wasm.OpcodeTry:
		if err := c.enabledFeatures.Require(wasm.FeatureExceptionHandling); err != nil {
			return err
		}
		bt, err := c.readBlockType(r)
		if err != nil {
			return err
		}
		tryOp := &OperationTry{}
		frame := &controlFrame{kind: controlFrameKindTry, blockType: bt, startHeight: c.height, label: c.newLabel(LabelKindContinuation), tryOp: tryOp}
		c.frames = append(c.frames, frame)
		c.result.HasTryCatch = true
		c.emit(tryOp)
	case wasm.OpcodeCatch:
		if err := c.enabledFeatures.Require(wasm.FeatureExceptionHandling); err != nil {
			return err
		}
		tagIdx, err := readU32(r)
		if err != nil {
			return err
		}
		if cur.kind != controlFrameKindTry {
			return fmt.Errorf("catch without matching try")
		}
		// Close out the try body (or a preceding catch) before opening this
		// one: falling off the end of either must skip the remaining catch
		// clauses and land on the try's continuation, same as an if's "then"
		// arm jumping past "else".
		if !cur.unreachable {
			c.emit(&OperationBr{Target: cur.label})
			c.result.LabelCallers[cur.label.String()]++
		}
		cur.unreachable = false
		c.height = cur.startHeight
		idx := tagIdx
		catchLabel := c.newLabel(LabelKindHeader)
		cur.tryOp.Catches = append(cur.tryOp.Catches, TryCatch{TagIndex: &idx, Target: catchLabel})
		c.emit(&OperationLabel{Label: catchLabel})
		c.emit(&OperationCatch{TagIndex: &idx})
	case wasm.OpcodeCatchAll:
		if err := c.enabledFeatures.Require(wasm.FeatureExceptionHandling); err != nil {
			return err
		}
		if cur.kind != controlFrameKindTry {
			return fmt.Errorf("catch_all without matching try")
		}
		if !cur.unreachable {
			c.emit(&OperationBr{Target: cur.label})
			c.result.LabelCallers[cur.label.String()]++
		}
		cur.unreachable = false
		c.height = cur.startHeight
		catchLabel := c.newLabel(LabelKindHeader)
		cur.tryOp.Catches = append(cur.tryOp.Catches, TryCatch{Target: catchLabel})
		cur.tryOp.HasCatchAll = true
		c.emit(&OperationLabel{Label: catchLabel})
		c.emit(&OperationCatchAll{})
	case wasm.OpcodeDelegate:
		if err := c.enabledFeatures.Require(wasm.FeatureExceptionHandling); err != nil {
			return err
		}
		depth, err := readU32(r)
		if err != nil {
			return err
		}
		c.emit(&OperationDelegate{LookupDepth: depth})
		c.height = cur.exitHeight()
		c.emit(&OperationLabel{Label: cur.label})
		c.frames = c.frames[:len(c.frames)-1]
		return nil
	case wasm.OpcodeThrow:
		if err := c.enabledFeatures.Require(wasm.FeatureExceptionHandling); err != nil {
			return err
		}
		tagIdx, err := readU32(r)
		if err != nil {
			return err
		}
		if int(tagIdx) < len(c.module.TagSection) {
			for range c.module.TagSection[tagIdx].Type.Params {
				c.pop()
			}
		}
		c.emit(&OperationThrow{TagIndex: tagIdx})
		cur.unreachable = true
	case wasm.OpcodeRethrow:
		if err := c.enabledFeatures.Require(wasm.FeatureExceptionHandling); err != nil {
			return err
		}
		depth, err := readU32(r)
		if err != nil {
			return err
		}
		c.emit(&OperationRethrow{ExceptionDepth: depth})
		cur.unreachable = true

	case wasm.OpcodeMiscPrefix:
		sub, err := readU32(r)
		if err != nil {
			return err
		}
		return c.compileMisc(r, wasm.Opcode(sub), cur)
	case wasm.OpcodeSIMDPrefix:
		if _, _, err := leb128.DecodeUint32(r); err != nil {
			return err
		}
		c.emit(&OperationUnreachable{})
	case wasm.OpcodeAtomicPrefix:
		sub, err := r.ReadByte()
		if err != nil {
			return err
		}
		return c.compileAtomic(r, sub)
	case wasm.OpcodeGCPrefix:
		sub, err := readU32(r)
		if err != nil {
			return err
		}
		return c.compileGC(r, wasm.Opcode(sub))

	default:
		if err := c.compileNumeric(op); err != nil {
			return err
		}
	}
	return nil
}

// newFallthroughLabel allocates a label for the "falls through" side of a
// two-way branch (br_if's not-taken arm); the caller still must emit the
// matching OperationLabel at the point execution actually reaches it.
func (c *compiler) newFallthroughLabel() *Label {
	return c.newLabel(LabelKindHeader)
}

// calleeSignature resolves a call target's signature by function index.
// Function indices run imported functions first, then locally defined ones,
// but ImportSection interleaves every import kind, so an imported callee's
// entry has to be found by filtering to ExternTypeFunc rather than indexing
// directly (mirrors Module.buildFunctionDefinitions).
func (c *compiler) calleeSignature(funcIdx uint32) *wasm.FunctionType {
	if funcIdx < c.module.ImportFunctionCount {
		var seen uint32
		for i := range c.module.ImportSection {
			imp := &c.module.ImportSection[i]
			if imp.Type != wasm.ExternTypeFunc {
				continue
			}
			if seen == funcIdx {
				return &c.module.TypeSection[imp.DescFunc]
			}
			seen++
		}
		panic("unreachable: funcIdx within ImportFunctionCount but no matching import found")
	}
	localIdx := funcIdx - c.module.ImportFunctionCount
	return &c.module.TypeSection[c.module.FunctionSection[localIdx]]
}

// emitExitDrop drops down to frame's exit height, keeping only its branch
// arity worth of top values — used at "return" and at a frame's natural end.
func (c *compiler) emitExitDrop(frame *controlFrame) {
	arity := frame.resultArity()
	exit := frame.fallthroughHeight()
	dropCount := c.height - exit
	if dropCount > 0 {
		c.emit(&OperationDrop{Depth: &InclusiveRange{Start: arity, End: arity + dropCount - 1}})
	}
	c.height = exit
}

// compileEnd closes frame, whichever kind it is.
func (c *compiler) compileEnd(frame *controlFrame) error {
	switch frame.kind {
	case controlFrameKindIfWithoutElse:
		// No else arm: the then-arm falls straight to the continuation, and
		// the implicit else must supply the same arity (only valid when
		// params == results, which a validated module guarantees here).
		c.emit(&OperationLabel{Label: frame.elseLabel})
		c.height = frame.startHeight
	}
	if !frame.unreachable {
		c.emitExitDrop(frame)
	} else {
		c.height = frame.fallthroughHeight()
	}
	if frame.kind == controlFrameKindFunction {
		c.emit(&OperationBr{Target: frame.label})
		return nil
	}
	c.emit(&OperationLabel{Label: frame.label})
	return nil
}

// emitLoad appends the Load/Load8/Load16/Load32 Operation matching op.
func (c *compiler) emitLoad(op wasm.Opcode, arg MemoryArg) {
	c.pop()
	defer c.push()
	switch op {
	case wasm.OpcodeI32Load:
		c.emit(&OperationLoad{Type: UnsignedTypeI32, Arg: arg})
	case wasm.OpcodeI64Load:
		c.emit(&OperationLoad{Type: UnsignedTypeI64, Arg: arg})
	case wasm.OpcodeF32Load:
		c.emit(&OperationLoad{Type: UnsignedTypeF32, Arg: arg})
	case wasm.OpcodeF64Load:
		c.emit(&OperationLoad{Type: UnsignedTypeF64, Arg: arg})
	case wasm.OpcodeI32Load8S:
		c.emit(&OperationLoad8{Type: SignedInt32, Arg: arg})
	case wasm.OpcodeI32Load8U:
		c.emit(&OperationLoad8{Type: SignedUint32, Arg: arg})
	case wasm.OpcodeI64Load8S:
		c.emit(&OperationLoad8{Type: SignedInt64, Arg: arg})
	case wasm.OpcodeI64Load8U:
		c.emit(&OperationLoad8{Type: SignedUint64, Arg: arg})
	case wasm.OpcodeI32Load16S:
		c.emit(&OperationLoad16{Type: SignedInt32, Arg: arg})
	case wasm.OpcodeI32Load16U:
		c.emit(&OperationLoad16{Type: SignedUint32, Arg: arg})
	case wasm.OpcodeI64Load16S:
		c.emit(&OperationLoad16{Type: SignedInt64, Arg: arg})
	case wasm.OpcodeI64Load16U:
		c.emit(&OperationLoad16{Type: SignedUint64, Arg: arg})
	case wasm.OpcodeI64Load32S:
		c.emit(&OperationLoad32{Signed: true, Arg: arg})
	case wasm.OpcodeI64Load32U:
		c.emit(&OperationLoad32{Signed: false, Arg: arg})
	}
}

// emitStore appends the Store/Store8/Store16/Store32 Operation matching op.
func (c *compiler) emitStore(op wasm.Opcode, arg MemoryArg) {
	switch op {
	case wasm.OpcodeI32Store:
		c.emit(&OperationStore{Type: UnsignedTypeI32, Arg: arg})
	case wasm.OpcodeI64Store:
		c.emit(&OperationStore{Type: UnsignedTypeI64, Arg: arg})
	case wasm.OpcodeF32Store:
		c.emit(&OperationStore{Type: UnsignedTypeF32, Arg: arg})
	case wasm.OpcodeF64Store:
		c.emit(&OperationStore{Type: UnsignedTypeF64, Arg: arg})
	case wasm.OpcodeI32Store8:
		c.emit(&OperationStore8{Type: UnsignedTypeI32, Arg: arg})
	case wasm.OpcodeI64Store8:
		c.emit(&OperationStore8{Type: UnsignedTypeI64, Arg: arg})
	case wasm.OpcodeI32Store16:
		c.emit(&OperationStore16{Type: UnsignedTypeI32, Arg: arg})
	case wasm.OpcodeI64Store16:
		c.emit(&OperationStore16{Type: UnsignedTypeI64, Arg: arg})
	case wasm.OpcodeI64Store32:
		c.emit(&OperationStore32{Arg: arg})
	}
}

// compileNumeric handles every opcode in 0x45..0xc4: comparisons,
// arithmetic, conversions, and sign extension, none of which carries an
// immediate. Table-driven over the stack-effect shape (unary vs binary)
// since the field values themselves are a simple per-opcode lookup.
func (c *compiler) compileNumeric(op wasm.Opcode) error {
	switch op {
	// i32/i64/f32/f64 equality & comparisons (binary, pushes i32 bool).
	case wasm.OpcodeI32Eqz:
		c.emit(&OperationEqz{Type: UnsignedTypeI32})
	case wasm.OpcodeI64Eqz:
		c.emit(&OperationEqz{Type: UnsignedTypeI64})
	case wasm.OpcodeI32Eq:
		c.binCmp(&OperationEq{Type: UnsignedTypeI32})
	case wasm.OpcodeI64Eq:
		c.binCmp(&OperationEq{Type: UnsignedTypeI64})
	case wasm.OpcodeF32Eq:
		c.binCmp(&OperationEq{Type: UnsignedTypeF32})
	case wasm.OpcodeF64Eq:
		c.binCmp(&OperationEq{Type: UnsignedTypeF64})
	case wasm.OpcodeI32Ne:
		c.binCmp(&OperationNe{Type: UnsignedTypeI32})
	case wasm.OpcodeI64Ne:
		c.binCmp(&OperationNe{Type: UnsignedTypeI64})
	case wasm.OpcodeF32Ne:
		c.binCmp(&OperationNe{Type: UnsignedTypeF32})
	case wasm.OpcodeF64Ne:
		c.binCmp(&OperationNe{Type: UnsignedTypeF64})
	case wasm.OpcodeI32LtS:
		c.binCmp(&OperationLt{Type: SignedTypeInt32})
	case wasm.OpcodeI32LtU:
		c.binCmp(&OperationLt{Type: SignedTypeUint32})
	case wasm.OpcodeI64LtS:
		c.binCmp(&OperationLt{Type: SignedTypeInt64})
	case wasm.OpcodeI64LtU:
		c.binCmp(&OperationLt{Type: SignedTypeUint64})
	case wasm.OpcodeF32Lt:
		c.binCmp(&OperationLt{Type: SignedTypeFloat32})
	case wasm.OpcodeF64Lt:
		c.binCmp(&OperationLt{Type: SignedTypeFloat64})
	case wasm.OpcodeI32GtS:
		c.binCmp(&OperationGt{Type: SignedTypeInt32})
	case wasm.OpcodeI32GtU:
		c.binCmp(&OperationGt{Type: SignedTypeUint32})
	case wasm.OpcodeI64GtS:
		c.binCmp(&OperationGt{Type: SignedTypeInt64})
	case wasm.OpcodeI64GtU:
		c.binCmp(&OperationGt{Type: SignedTypeUint64})
	case wasm.OpcodeF32Gt:
		c.binCmp(&OperationGt{Type: SignedTypeFloat32})
	case wasm.OpcodeF64Gt:
		c.binCmp(&OperationGt{Type: SignedTypeFloat64})
	case wasm.OpcodeI32LeS:
		c.binCmp(&OperationLe{Type: SignedTypeInt32})
	case wasm.OpcodeI32LeU:
		c.binCmp(&OperationLe{Type: SignedTypeUint32})
	case wasm.OpcodeI64LeS:
		c.binCmp(&OperationLe{Type: SignedTypeInt64})
	case wasm.OpcodeI64LeU:
		c.binCmp(&OperationLe{Type: SignedTypeUint64})
	case wasm.OpcodeF32Le:
		c.binCmp(&OperationLe{Type: SignedTypeFloat32})
	case wasm.OpcodeF64Le:
		c.binCmp(&OperationLe{Type: SignedTypeFloat64})
	case wasm.OpcodeI32GeS:
		c.binCmp(&OperationGe{Type: SignedTypeInt32})
	case wasm.OpcodeI32GeU:
		c.binCmp(&OperationGe{Type: SignedTypeUint32})
	case wasm.OpcodeI64GeS:
		c.binCmp(&OperationGe{Type: SignedTypeInt64})
	case wasm.OpcodeI64GeU:
		c.binCmp(&OperationGe{Type: SignedTypeUint64})
	case wasm.OpcodeF32Ge:
		c.binCmp(&OperationGe{Type: SignedTypeFloat32})
	case wasm.OpcodeF64Ge:
		c.binCmp(&OperationGe{Type: SignedTypeFloat64})

	// unary bit-twiddling
	case wasm.OpcodeI32Clz:
		c.emit(&OperationClz{Type: UnsignedTypeI32})
	case wasm.OpcodeI64Clz:
		c.emit(&OperationClz{Type: UnsignedTypeI64})
	case wasm.OpcodeI32Ctz:
		c.emit(&OperationCtz{Type: UnsignedTypeI32})
	case wasm.OpcodeI64Ctz:
		c.emit(&OperationCtz{Type: UnsignedTypeI64})
	case wasm.OpcodeI32Popcnt:
		c.emit(&OperationPopcnt{Type: UnsignedTypeI32})
	case wasm.OpcodeI64Popcnt:
		c.emit(&OperationPopcnt{Type: UnsignedTypeI64})

	// binary arithmetic
	case wasm.OpcodeI32Add:
		c.binOp(&OperationAdd{Type: UnsignedTypeI32})
	case wasm.OpcodeI64Add:
		c.binOp(&OperationAdd{Type: UnsignedTypeI64})
	case wasm.OpcodeF32Add:
		c.binOp(&OperationAdd{Type: UnsignedTypeF32})
	case wasm.OpcodeF64Add:
		c.binOp(&OperationAdd{Type: UnsignedTypeF64})
	case wasm.OpcodeI32Sub:
		c.binOp(&OperationSub{Type: UnsignedTypeI32})
	case wasm.OpcodeI64Sub:
		c.binOp(&OperationSub{Type: UnsignedTypeI64})
	case wasm.OpcodeF32Sub:
		c.binOp(&OperationSub{Type: UnsignedTypeF32})
	case wasm.OpcodeF64Sub:
		c.binOp(&OperationSub{Type: UnsignedTypeF64})
	case wasm.OpcodeI32Mul:
		c.binOp(&OperationMul{Type: UnsignedTypeI32})
	case wasm.OpcodeI64Mul:
		c.binOp(&OperationMul{Type: UnsignedTypeI64})
	case wasm.OpcodeF32Mul:
		c.binOp(&OperationMul{Type: UnsignedTypeF32})
	case wasm.OpcodeF64Mul:
		c.binOp(&OperationMul{Type: UnsignedTypeF64})
	case wasm.OpcodeI32DivS:
		c.binOp(&OperationDiv{Type: SignedTypeInt32})
	case wasm.OpcodeI32DivU:
		c.binOp(&OperationDiv{Type: SignedTypeUint32})
	case wasm.OpcodeI64DivS:
		c.binOp(&OperationDiv{Type: SignedTypeInt64})
	case wasm.OpcodeI64DivU:
		c.binOp(&OperationDiv{Type: SignedTypeUint64})
	case wasm.OpcodeF32Div:
		c.binOp(&OperationDiv{Type: SignedTypeFloat32})
	case wasm.OpcodeF64Div:
		c.binOp(&OperationDiv{Type: SignedTypeFloat64})
	case wasm.OpcodeI32RemS:
		c.binOp(&OperationRem{Type: SignedInt32})
	case wasm.OpcodeI32RemU:
		c.binOp(&OperationRem{Type: SignedUint32})
	case wasm.OpcodeI64RemS:
		c.binOp(&OperationRem{Type: SignedInt64})
	case wasm.OpcodeI64RemU:
		c.binOp(&OperationRem{Type: SignedUint64})
	case wasm.OpcodeI32And:
		c.binOp(&OperationAnd{Type: UnsignedTypeI32})
	case wasm.OpcodeI64And:
		c.binOp(&OperationAnd{Type: UnsignedTypeI64})
	case wasm.OpcodeI32Or:
		c.binOp(&OperationOr{Type: UnsignedTypeI32})
	case wasm.OpcodeI64Or:
		c.binOp(&OperationOr{Type: UnsignedTypeI64})
	case wasm.OpcodeI32Xor:
		c.binOp(&OperationXor{Type: UnsignedTypeI32})
	case wasm.OpcodeI64Xor:
		c.binOp(&OperationXor{Type: UnsignedTypeI64})
	case wasm.OpcodeI32Shl:
		c.binOp(&OperationShl{Type: UnsignedTypeI32})
	case wasm.OpcodeI64Shl:
		c.binOp(&OperationShl{Type: UnsignedTypeI64})
	case wasm.OpcodeI32ShrS:
		c.binOp(&OperationShr{Type: SignedInt32})
	case wasm.OpcodeI32ShrU:
		c.binOp(&OperationShr{Type: SignedUint32})
	case wasm.OpcodeI64ShrS:
		c.binOp(&OperationShr{Type: SignedInt64})
	case wasm.OpcodeI64ShrU:
		c.binOp(&OperationShr{Type: SignedUint64})
	case wasm.OpcodeI32Rotl:
		c.binOp(&OperationRotl{Type: UnsignedTypeI32})
	case wasm.OpcodeI64Rotl:
		c.binOp(&OperationRotl{Type: UnsignedTypeI64})
	case wasm.OpcodeI32Rotr:
		c.binOp(&OperationRotr{Type: UnsignedTypeI32})
	case wasm.OpcodeI64Rotr:
		c.binOp(&OperationRotr{Type: UnsignedTypeI64})

	// unary float ops
	case wasm.OpcodeF32Abs:
		c.emit(&OperationAbs{Type: Float32})
	case wasm.OpcodeF64Abs:
		c.emit(&OperationAbs{Type: Float64})
	case wasm.OpcodeF32Neg:
		c.emit(&OperationNeg{Type: Float32})
	case wasm.OpcodeF64Neg:
		c.emit(&OperationNeg{Type: Float64})
	case wasm.OpcodeF32Ceil:
		c.emit(&OperationCeil{Type: Float32})
	case wasm.OpcodeF64Ceil:
		c.emit(&OperationCeil{Type: Float64})
	case wasm.OpcodeF32Floor:
		c.emit(&OperationFloor{Type: Float32})
	case wasm.OpcodeF64Floor:
		c.emit(&OperationFloor{Type: Float64})
	case wasm.OpcodeF32Trunc:
		c.emit(&OperationTrunc{Type: Float32})
	case wasm.OpcodeF64Trunc:
		c.emit(&OperationTrunc{Type: Float64})
	case wasm.OpcodeF32Nearest:
		c.emit(&OperationNearest{Type: Float32})
	case wasm.OpcodeF64Nearest:
		c.emit(&OperationNearest{Type: Float64})
	case wasm.OpcodeF32Sqrt:
		c.emit(&OperationSqrt{Type: Float32})
	case wasm.OpcodeF64Sqrt:
		c.emit(&OperationSqrt{Type: Float64})
	case wasm.OpcodeF32Min:
		c.binOp(&OperationMin{Type: Float32})
	case wasm.OpcodeF64Min:
		c.binOp(&OperationMin{Type: Float64})
	case wasm.OpcodeF32Max:
		c.binOp(&OperationMax{Type: Float32})
	case wasm.OpcodeF64Max:
		c.binOp(&OperationMax{Type: Float64})
	case wasm.OpcodeF32Copysign:
		c.binOp(&OperationCopysign{Type: Float32})
	case wasm.OpcodeF64Copysign:
		c.binOp(&OperationCopysign{Type: Float64})

	// conversions
	case wasm.OpcodeI32WrapI64:
		c.emit(&OperationI32WrapFromI64{})
	case wasm.OpcodeI32TruncF32S:
		c.emit(&OperationITruncFromF{InputType: Float32, OutputType: SignedInt32})
	case wasm.OpcodeI32TruncF32U:
		c.emit(&OperationITruncFromF{InputType: Float32, OutputType: SignedUint32})
	case wasm.OpcodeI32TruncF64S:
		c.emit(&OperationITruncFromF{InputType: Float64, OutputType: SignedInt32})
	case wasm.OpcodeI32TruncF64U:
		c.emit(&OperationITruncFromF{InputType: Float64, OutputType: SignedUint32})
	case wasm.OpcodeI64TruncF32S:
		c.emit(&OperationITruncFromF{InputType: Float32, OutputType: SignedInt64})
	case wasm.OpcodeI64TruncF32U:
		c.emit(&OperationITruncFromF{InputType: Float32, OutputType: SignedUint64})
	case wasm.OpcodeI64TruncF64S:
		c.emit(&OperationITruncFromF{InputType: Float64, OutputType: SignedInt64})
	case wasm.OpcodeI64TruncF64U:
		c.emit(&OperationITruncFromF{InputType: Float64, OutputType: SignedUint64})
	case wasm.OpcodeI64ExtendI32S:
		c.emit(&OperationExtend{Signed: true})
	case wasm.OpcodeI64ExtendI32U:
		c.emit(&OperationExtend{Signed: false})
	case wasm.OpcodeF32ConvertI32S:
		c.emit(&OperationFConvertFromI{InputType: SignedInt32, OutputType: Float32})
	case wasm.OpcodeF32ConvertI32U:
		c.emit(&OperationFConvertFromI{InputType: SignedUint32, OutputType: Float32})
	case wasm.OpcodeF32ConvertI64S:
		c.emit(&OperationFConvertFromI{InputType: SignedInt64, OutputType: Float32})
	case wasm.OpcodeF32ConvertI64U:
		c.emit(&OperationFConvertFromI{InputType: SignedUint64, OutputType: Float32})
	case wasm.OpcodeF64ConvertI32S:
		c.emit(&OperationFConvertFromI{InputType: SignedInt32, OutputType: Float64})
	case wasm.OpcodeF64ConvertI32U:
		c.emit(&OperationFConvertFromI{InputType: SignedUint32, OutputType: Float64})
	case wasm.OpcodeF64ConvertI64S:
		c.emit(&OperationFConvertFromI{InputType: SignedInt64, OutputType: Float64})
	case wasm.OpcodeF64ConvertI64U:
		c.emit(&OperationFConvertFromI{InputType: SignedUint64, OutputType: Float64})
	case wasm.OpcodeF32DemoteF64:
		c.emit(&OperationF32DemoteFromF64{})
	case wasm.OpcodeF64PromoteF32:
		c.emit(&OperationF64PromoteFromF32{})
	case wasm.OpcodeI32ReinterpretF32:
		c.emit(&OperationI32ReinterpretFromF32{})
	case wasm.OpcodeI64ReinterpretF64:
		c.emit(&OperationI64ReinterpretFromF64{})
	case wasm.OpcodeF32ReinterpretI32:
		c.emit(&OperationF32ReinterpretFromI32{})
	case wasm.OpcodeF64ReinterpretI64:
		c.emit(&OperationF64ReinterpretFromI64{})

	// sign extension (requires FeatureSignExtensionOps, unchecked here since
	// a module declaring these without the feature enabled already failed
	// decode-time validation upstream of this package).
	case wasm.OpcodeI32Extend8S:
		c.emit(&OperationSignExtend32From8{})
	case wasm.OpcodeI32Extend16S:
		c.emit(&OperationSignExtend32From16{})
	case wasm.OpcodeI64Extend8S:
		c.emit(&OperationSignExtend64From8{})
	case wasm.OpcodeI64Extend16S:
		c.emit(&OperationSignExtend64From16{})
	case wasm.OpcodeI64Extend32S:
		c.emit(&OperationSignExtend64From32{})

	default:
		return fmt.Errorf("unknown opcode 0x%x", op)
	}
	return nil
}

func (c *compiler) binOp(o Operation) {
	c.pop()
	c.emit(o)
}

func (c *compiler) binCmp(o Operation) {
	c.pop()
	c.emit(o)
}

// compileMisc handles the OpcodeMiscPrefix (0xFC) sub-opcode space:
// saturating truncation, bulk memory, table.{init,copy,grow,size,fill}, and
// this module's stringref subset.
func (c *compiler) compileMisc(r *bytes.Reader, sub wasm.Opcode, cur *controlFrame) error {
	switch sub {
	case wasm.OpcodeMiscI32TruncSatF32S:
		c.emit(&OperationITruncFromF{InputType: Float32, OutputType: SignedInt32, NonTrapping: true})
	case wasm.OpcodeMiscI32TruncSatF32U:
		c.emit(&OperationITruncFromF{InputType: Float32, OutputType: SignedUint32, NonTrapping: true})
	case wasm.OpcodeMiscI32TruncSatF64S:
		c.emit(&OperationITruncFromF{InputType: Float64, OutputType: SignedInt32, NonTrapping: true})
	case wasm.OpcodeMiscI32TruncSatF64U:
		c.emit(&OperationITruncFromF{InputType: Float64, OutputType: SignedUint32, NonTrapping: true})
	case wasm.OpcodeMiscI64TruncSatF32S:
		c.emit(&OperationITruncFromF{InputType: Float32, OutputType: SignedInt64, NonTrapping: true})
	case wasm.OpcodeMiscI64TruncSatF32U:
		c.emit(&OperationITruncFromF{InputType: Float32, OutputType: SignedUint64, NonTrapping: true})
	case wasm.OpcodeMiscI64TruncSatF64S:
		c.emit(&OperationITruncFromF{InputType: Float64, OutputType: SignedInt64, NonTrapping: true})
	case wasm.OpcodeMiscI64TruncSatF64U:
		c.emit(&OperationITruncFromF{InputType: Float64, OutputType: SignedUint64, NonTrapping: true})

	case wasm.OpcodeMiscMemoryInit:
		dataIdx, err := readU32(r)
		if err != nil {
			return err
		}
		if _, err := r.ReadByte(); err != nil { // memory index, always 0
			return err
		}
		c.result.UsesMemory = true
		c.emit(&OperationMemoryInit{DataIndex: dataIdx})
		c.pop()
		c.pop()
		c.pop()
	case wasm.OpcodeMiscDataDrop:
		dataIdx, err := readU32(r)
		if err != nil {
			return err
		}
		c.emit(&OperationDataDrop{DataIndex: dataIdx})
	case wasm.OpcodeMiscMemoryCopy:
		if _, err := r.ReadByte(); err != nil {
			return err
		}
		if _, err := r.ReadByte(); err != nil {
			return err
		}
		c.result.UsesMemory = true
		c.emit(&OperationMemoryCopy{})
		c.pop()
		c.pop()
		c.pop()
	case wasm.OpcodeMiscMemoryFill:
		if _, err := r.ReadByte(); err != nil {
			return err
		}
		c.result.UsesMemory = true
		c.emit(&OperationMemoryFill{})
		c.pop()
		c.pop()
		c.pop()
	case wasm.OpcodeMiscTableInit:
		elemIdx, err := readU32(r)
		if err != nil {
			return err
		}
		tableIdx, err := readU32(r)
		if err != nil {
			return err
		}
		c.result.UsesTable = true
		c.emit(&OperationTableInit{ElemIndex: elemIdx, TableIndex: tableIdx})
		c.pop()
		c.pop()
		c.pop()
	case wasm.OpcodeMiscElemDrop:
		elemIdx, err := readU32(r)
		if err != nil {
			return err
		}
		c.emit(&OperationElemDrop{ElemIndex: elemIdx})
	case wasm.OpcodeMiscTableCopy:
		dstIdx, err := readU32(r)
		if err != nil {
			return err
		}
		srcIdx, err := readU32(r)
		if err != nil {
			return err
		}
		c.result.UsesTable = true
		c.emit(&OperationTableCopy{SrcTableIndex: srcIdx, DstTableIndex: dstIdx})
		c.pop()
		c.pop()
		c.pop()
	case wasm.OpcodeMiscTableGrow:
		idx, err := readU32(r)
		if err != nil {
			return err
		}
		c.result.UsesTable = true
		c.emit(&OperationTableGrow{TableIndex: idx})
		c.pop()
	case wasm.OpcodeMiscTableSize:
		idx, err := readU32(r)
		if err != nil {
			return err
		}
		c.result.UsesTable = true
		c.emit(&OperationTableSize{TableIndex: idx})
		c.push()
	case wasm.OpcodeMiscTableFill:
		idx, err := readU32(r)
		if err != nil {
			return err
		}
		c.result.UsesTable = true
		c.emit(&OperationTableFill{TableIndex: idx})
		c.pop()
		c.pop()
		c.pop()

	case wasm.OpcodeMiscStringNewUTF8:
		if err := c.enabledFeatures.Require(wasm.FeatureStringref); err != nil {
			return err
		}
		c.result.UsesMemory = true
		c.pop()
		c.emit(&OperationStringNewUTF8{})
	case wasm.OpcodeMiscStringConst:
		if err := c.enabledFeatures.Require(wasm.FeatureStringref); err != nil {
			return err
		}
		n, err := readU32(r)
		if err != nil {
			return err
		}
		buf := make([]byte, n)
		if _, err := r.Read(buf); err != nil {
			return err
		}
		c.emit(&OperationStringConst{Value: string(buf)})
		c.push()
	case wasm.OpcodeMiscStringMeasureUTF8:
		if err := c.enabledFeatures.Require(wasm.FeatureStringref); err != nil {
			return err
		}
		c.emit(&OperationStringMeasureUTF8{})
	case wasm.OpcodeMiscStringConcat:
		if err := c.enabledFeatures.Require(wasm.FeatureStringref); err != nil {
			return err
		}
		c.pop()
		c.emit(&OperationStringConcat{})
	case wasm.OpcodeMiscStringEq:
		if err := c.enabledFeatures.Require(wasm.FeatureStringref); err != nil {
			return err
		}
		c.pop()
		c.emit(&OperationStringEq{})

	default:
		c.emit(&OperationUnreachable{})
	}
	return nil
}

// compileAtomic handles the OpcodeAtomicPrefix (0xFE) sub-opcode space: the
// threads proposal's load/store/RMW/cmpxchg/wait/notify/fence family.
func (c *compiler) compileAtomic(r *bytes.Reader, sub wasm.Opcode) error {
	if err := c.enabledFeatures.Require(wasm.FeatureThreads); err != nil {
		return err
	}
	if sub == wasm.OpcodeAtomicFence {
		if _, err := r.ReadByte(); err != nil {
			return err
		}
		c.emit(&OperationAtomicFence{})
		return nil
	}
	arg, err := readMemArg(r)
	if err != nil {
		return err
	}
	switch sub {
	case wasm.OpcodeAtomicMemoryNotify:
		c.emit(&OperationAtomicMemoryNotify{Arg: arg})
		c.pop()
	case wasm.OpcodeAtomicMemoryWait32:
		c.emit(&OperationAtomicMemoryWait{Type: AtomicMemoryTypeI32, Arg: arg})
		c.pop()
		c.pop()
	case wasm.OpcodeAtomicMemoryWait64:
		c.emit(&OperationAtomicMemoryWait{Type: AtomicMemoryTypeI64, Arg: arg})
		c.pop()
		c.pop()
	case wasm.OpcodeAtomicI32Load:
		c.emit(&OperationAtomicLoad{Type: AtomicMemoryTypeI32, Arg: arg})
	case wasm.OpcodeAtomicI64Load:
		c.emit(&OperationAtomicLoad{Type: AtomicMemoryTypeI64, Arg: arg})
	case wasm.OpcodeAtomicI32Load8U:
		c.emit(&OperationAtomicLoad{Type: AtomicMemoryTypeI8, Arg: arg})
	case wasm.OpcodeAtomicI32Load16U:
		c.emit(&OperationAtomicLoad{Type: AtomicMemoryTypeI16, Arg: arg})
	case wasm.OpcodeAtomicI64Load8U:
		c.emit(&OperationAtomicLoad{Type: AtomicMemoryTypeI8, Arg: arg})
	case wasm.OpcodeAtomicI64Load16U:
		c.emit(&OperationAtomicLoad{Type: AtomicMemoryTypeI16, Arg: arg})
	case wasm.OpcodeAtomicI64Load32U:
		c.emit(&OperationAtomicLoad{Type: AtomicMemoryTypeI32, Arg: arg})
	case wasm.OpcodeAtomicI32Store:
		c.emit(&OperationAtomicStore{Type: AtomicMemoryTypeI32, Arg: arg})
		c.pop()
		c.pop()
	case wasm.OpcodeAtomicI64Store:
		c.emit(&OperationAtomicStore{Type: AtomicMemoryTypeI64, Arg: arg})
		c.pop()
		c.pop()
	case wasm.OpcodeAtomicI32Store8:
		c.emit(&OperationAtomicStore{Type: AtomicMemoryTypeI8, Arg: arg})
		c.pop()
		c.pop()
	case wasm.OpcodeAtomicI32Store16:
		c.emit(&OperationAtomicStore{Type: AtomicMemoryTypeI16, Arg: arg})
		c.pop()
		c.pop()
	case wasm.OpcodeAtomicI64Store8:
		c.emit(&OperationAtomicStore{Type: AtomicMemoryTypeI8, Arg: arg})
		c.pop()
		c.pop()
	case wasm.OpcodeAtomicI64Store16:
		c.emit(&OperationAtomicStore{Type: AtomicMemoryTypeI16, Arg: arg})
		c.pop()
		c.pop()
	case wasm.OpcodeAtomicI64Store32:
		c.emit(&OperationAtomicStore{Type: AtomicMemoryTypeI32, Arg: arg})
		c.pop()
		c.pop()

	case wasm.OpcodeAtomicI32RmwAdd:
		c.emit(&OperationAtomicRMW{Type: AtomicMemoryTypeI32, Op: AtomicArithmeticOpAdd, Arg: arg})
		c.pop()
	case wasm.OpcodeAtomicI64RmwAdd:
		c.emit(&OperationAtomicRMW{Type: AtomicMemoryTypeI64, Op: AtomicArithmeticOpAdd, Arg: arg})
		c.pop()
	case wasm.OpcodeAtomicI32RmwSub:
		c.emit(&OperationAtomicRMW{Type: AtomicMemoryTypeI32, Op: AtomicArithmeticOpSub, Arg: arg})
		c.pop()
	case wasm.OpcodeAtomicI64RmwSub:
		c.emit(&OperationAtomicRMW{Type: AtomicMemoryTypeI64, Op: AtomicArithmeticOpSub, Arg: arg})
		c.pop()
	case wasm.OpcodeAtomicI32RmwAnd:
		c.emit(&OperationAtomicRMW{Type: AtomicMemoryTypeI32, Op: AtomicArithmeticOpAnd, Arg: arg})
		c.pop()
	case wasm.OpcodeAtomicI64RmwAnd:
		c.emit(&OperationAtomicRMW{Type: AtomicMemoryTypeI64, Op: AtomicArithmeticOpAnd, Arg: arg})
		c.pop()
	case wasm.OpcodeAtomicI32RmwOr:
		c.emit(&OperationAtomicRMW{Type: AtomicMemoryTypeI32, Op: AtomicArithmeticOpOr, Arg: arg})
		c.pop()
	case wasm.OpcodeAtomicI64RmwOr:
		c.emit(&OperationAtomicRMW{Type: AtomicMemoryTypeI64, Op: AtomicArithmeticOpOr, Arg: arg})
		c.pop()
	case wasm.OpcodeAtomicI32RmwXor:
		c.emit(&OperationAtomicRMW{Type: AtomicMemoryTypeI32, Op: AtomicArithmeticOpXor, Arg: arg})
		c.pop()
	case wasm.OpcodeAtomicI64RmwXor:
		c.emit(&OperationAtomicRMW{Type: AtomicMemoryTypeI64, Op: AtomicArithmeticOpXor, Arg: arg})
		c.pop()
	case wasm.OpcodeAtomicI32RmwXchg:
		c.emit(&OperationAtomicRMW{Type: AtomicMemoryTypeI32, Op: AtomicArithmeticOpXchg, Arg: arg})
		c.pop()
	case wasm.OpcodeAtomicI64RmwXchg:
		c.emit(&OperationAtomicRMW{Type: AtomicMemoryTypeI64, Op: AtomicArithmeticOpXchg, Arg: arg})
		c.pop()
	case wasm.OpcodeAtomicI32RmwCmpxchg:
		c.emit(&OperationAtomicRMWCmpxchg{Type: AtomicMemoryTypeI32, Arg: arg})
		c.pop()
		c.pop()
	case wasm.OpcodeAtomicI64RmwCmpxchg:
		c.emit(&OperationAtomicRMWCmpxchg{Type: AtomicMemoryTypeI64, Arg: arg})
		c.pop()
		c.pop()
	default:
		c.emit(&OperationUnreachable{})
	}
	c.result.UsesMemory = true
	return nil
}

// compileGC handles the OpcodeGCPrefix (0xFB) sub-opcode space: struct,
// array, and i31 reference types plus ref.test/ref.cast/br_on_cast.
func (c *compiler) compileGC(r *bytes.Reader, sub wasm.Opcode) error {
	if err := c.enabledFeatures.Require(wasm.FeatureGC); err != nil {
		return err
	}
	c.result.HasGC = true
	switch sub {
	case wasm.OpcodeGCStructNew:
		idx, err := readU32(r)
		if err != nil {
			return err
		}
		// struct.new consumes one operand per field of its GCTypeSection
		// entry, as the interpreter pops them at run time.
		if int(idx) < len(c.module.GCTypeSection) {
			for range c.module.GCTypeSection[idx].StructFields {
				c.pop()
			}
		}
		c.emit(&OperationStructNew{TypeIndex: idx})
		c.push()
	case wasm.OpcodeGCStructNewDefault:
		idx, err := readU32(r)
		if err != nil {
			return err
		}
		c.emit(&OperationStructNew{TypeIndex: idx})
		c.push()
	case wasm.OpcodeGCStructGet, wasm.OpcodeGCStructGetS, wasm.OpcodeGCStructGetU:
		typeIdx, err := readU32(r)
		if err != nil {
			return err
		}
		fieldIdx, err := readU32(r)
		if err != nil {
			return err
		}
		c.emit(&OperationStructGet{TypeIndex: typeIdx, FieldIndex: fieldIdx, Signed: sub == wasm.OpcodeGCStructGetS})
	case wasm.OpcodeGCStructSet:
		typeIdx, err := readU32(r)
		if err != nil {
			return err
		}
		fieldIdx, err := readU32(r)
		if err != nil {
			return err
		}
		c.emit(&OperationStructSet{TypeIndex: typeIdx, FieldIndex: fieldIdx})
		c.pop()
		c.pop()
	case wasm.OpcodeGCArrayNew:
		idx, err := readU32(r)
		if err != nil {
			return err
		}
		c.emit(&OperationArrayNew{TypeIndex: idx})
		c.pop()
	case wasm.OpcodeGCArrayNewDefault:
		idx, err := readU32(r)
		if err != nil {
			return err
		}
		c.emit(&OperationArrayNew{TypeIndex: idx, Default: true})
	case wasm.OpcodeGCArrayNewFixed:
		idx, err := readU32(r)
		if err != nil {
			return err
		}
		n, err := readU32(r)
		if err != nil {
			return err
		}
		c.emit(&OperationArrayNewFixed{TypeIndex: idx, Length: n})
		for i := uint32(0); i < n; i++ {
			c.pop()
		}
		c.push()
	case wasm.OpcodeGCArrayGet, wasm.OpcodeGCArrayGetS, wasm.OpcodeGCArrayGetU:
		idx, err := readU32(r)
		if err != nil {
			return err
		}
		c.pop()
		c.emit(&OperationArrayGet{TypeIndex: idx, Signed: sub == wasm.OpcodeGCArrayGetS})
	case wasm.OpcodeGCArraySet:
		idx, err := readU32(r)
		if err != nil {
			return err
		}
		c.emit(&OperationArraySet{TypeIndex: idx})
		c.pop()
		c.pop()
		c.pop()
	case wasm.OpcodeGCArrayLen:
		c.emit(&OperationArrayLen{})
	case wasm.OpcodeGCI31New:
		c.emit(&OperationI31New{})
	case wasm.OpcodeGCI31GetS:
		c.emit(&OperationI31Get{Signed: true})
	case wasm.OpcodeGCI31GetU:
		c.emit(&OperationI31Get{Signed: false})
	case wasm.OpcodeGCRefTest, wasm.OpcodeGCRefTestNull:
		idx, err := readU32(r)
		if err != nil {
			return err
		}
		c.emit(&OperationRefTest{TypeIndex: idx, Nullable: sub == wasm.OpcodeGCRefTestNull})
	case wasm.OpcodeGCRefCast, wasm.OpcodeGCRefCastNull:
		idx, err := readU32(r)
		if err != nil {
			return err
		}
		c.emit(&OperationRefCast{TypeIndex: idx, Nullable: sub == wasm.OpcodeGCRefCastNull})
	case wasm.OpcodeGCBrOnCast, wasm.OpcodeGCBrOnCastFail:
		depth, err := readU32(r)
		if err != nil {
			return err
		}
		idx, err := readU32(r)
		if err != nil {
			return err
		}
		frame, err := c.frameAt(depth)
		if err != nil {
			return err
		}
		c.emit(&OperationBrOnCast{TypeIndex: idx, OnSuccess: sub == wasm.OpcodeGCBrOnCast, Target: c.branchTargetDrop(frame)})
	default:
		c.emit(&OperationUnreachable{})
	}
	return nil
}
