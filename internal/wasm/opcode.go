package wasm

// Opcode is a byte that describes a WebAssembly instruction. Instructions
// outside the original 1.0 core spec are reached via one of four prefix
// bytes (OpcodeMiscPrefix, OpcodeSIMDPrefix, OpcodeAtomicPrefix,
// OpcodeGCPrefix), each followed by a LEB128 sub-opcode.
type Opcode = byte

const (
	OpcodeUnreachable Opcode = 0x00
	OpcodeNop         Opcode = 0x01
	OpcodeBlock       Opcode = 0x02
	OpcodeLoop        Opcode = 0x03
	OpcodeIf          Opcode = 0x04
	OpcodeElse        Opcode = 0x05
	// OpcodeTry, OpcodeCatch, OpcodeThrow, OpcodeRethrow, and OpcodeDelegate
	// implement the exception-handling proposal (spec.md Component H).
	OpcodeTry      Opcode = 0x06
	OpcodeCatch    Opcode = 0x07
	OpcodeThrow    Opcode = 0x08
	OpcodeRethrow  Opcode = 0x09
	OpcodeEnd      Opcode = 0x0b
	OpcodeBr       Opcode = 0x0c
	OpcodeBrIf     Opcode = 0x0d
	OpcodeBrTable  Opcode = 0x0e
	OpcodeReturn   Opcode = 0x0f
	OpcodeCall     Opcode = 0x10
	OpcodeCallIndirect Opcode = 0x11
	// OpcodeReturnCall and OpcodeReturnCallIndirect implement the tail-call
	// proposal (spec.md Component G).
	OpcodeReturnCall         Opcode = 0x12
	OpcodeReturnCallIndirect Opcode = 0x13
	OpcodeDelegate           Opcode = 0x18
	OpcodeCatchAll           Opcode = 0x19

	OpcodeDrop      Opcode = 0x1a
	OpcodeSelect    Opcode = 0x1b
	OpcodeSelectT   Opcode = 0x1c // typed select, reference-types proposal

	OpcodeLocalGet  Opcode = 0x20
	OpcodeLocalSet  Opcode = 0x21
	OpcodeLocalTee  Opcode = 0x22
	OpcodeGlobalGet Opcode = 0x23
	OpcodeGlobalSet Opcode = 0x24

	OpcodeTableGet Opcode = 0x25
	OpcodeTableSet Opcode = 0x26

	OpcodeI32Load    Opcode = 0x28
	OpcodeI64Load    Opcode = 0x29
	OpcodeF32Load    Opcode = 0x2a
	OpcodeF64Load    Opcode = 0x2b
	OpcodeI32Load8S  Opcode = 0x2c
	OpcodeI32Load8U  Opcode = 0x2d
	OpcodeI32Load16S Opcode = 0x2e
	OpcodeI32Load16U Opcode = 0x2f
	OpcodeI64Load8S  Opcode = 0x30
	OpcodeI64Load8U  Opcode = 0x31
	OpcodeI64Load16S Opcode = 0x32
	OpcodeI64Load16U Opcode = 0x33
	OpcodeI64Load32S Opcode = 0x34
	OpcodeI64Load32U Opcode = 0x35
	OpcodeI32Store   Opcode = 0x36
	OpcodeI64Store   Opcode = 0x37
	OpcodeF32Store   Opcode = 0x38
	OpcodeF64Store   Opcode = 0x39
	OpcodeI32Store8  Opcode = 0x3a
	OpcodeI32Store16 Opcode = 0x3b
	OpcodeI64Store8  Opcode = 0x3c
	OpcodeI64Store16 Opcode = 0x3d
	OpcodeI64Store32 Opcode = 0x3e
	OpcodeMemorySize Opcode = 0x3f
	OpcodeMemoryGrow Opcode = 0x40

	OpcodeI32Const Opcode = 0x41
	OpcodeI64Const Opcode = 0x42
	OpcodeF32Const Opcode = 0x43
	OpcodeF64Const Opcode = 0x44

	OpcodeI32Eqz Opcode = 0x45
	OpcodeI32Eq  Opcode = 0x46
	OpcodeI32Ne  Opcode = 0x47
	OpcodeI32LtS Opcode = 0x48
	OpcodeI32LtU Opcode = 0x49
	OpcodeI32GtS Opcode = 0x4a
	OpcodeI32GtU Opcode = 0x4b
	OpcodeI32LeS Opcode = 0x4c
	OpcodeI32LeU Opcode = 0x4d
	OpcodeI32GeS Opcode = 0x4e
	OpcodeI32GeU Opcode = 0x4f

	OpcodeI64Eqz Opcode = 0x50
	OpcodeI64Eq  Opcode = 0x51
	OpcodeI64Ne  Opcode = 0x52
	OpcodeI64LtS Opcode = 0x53
	OpcodeI64LtU Opcode = 0x54
	OpcodeI64GtS Opcode = 0x55
	OpcodeI64GtU Opcode = 0x56
	OpcodeI64LeS Opcode = 0x57
	OpcodeI64LeU Opcode = 0x58
	OpcodeI64GeS Opcode = 0x59
	OpcodeI64GeU Opcode = 0x5a

	OpcodeF32Eq Opcode = 0x5b
	OpcodeF32Ne Opcode = 0x5c
	OpcodeF32Lt Opcode = 0x5d
	OpcodeF32Gt Opcode = 0x5e
	OpcodeF32Le Opcode = 0x5f
	OpcodeF32Ge Opcode = 0x60

	OpcodeF64Eq Opcode = 0x61
	OpcodeF64Ne Opcode = 0x62
	OpcodeF64Lt Opcode = 0x63
	OpcodeF64Gt Opcode = 0x64
	OpcodeF64Le Opcode = 0x65
	OpcodeF64Ge Opcode = 0x66

	OpcodeI32Clz    Opcode = 0x67
	OpcodeI32Ctz    Opcode = 0x68
	OpcodeI32Popcnt Opcode = 0x69
	OpcodeI32Add    Opcode = 0x6a
	OpcodeI32Sub    Opcode = 0x6b
	OpcodeI32Mul    Opcode = 0x6c
	OpcodeI32DivS   Opcode = 0x6d
	OpcodeI32DivU   Opcode = 0x6e
	OpcodeI32RemS   Opcode = 0x6f
	OpcodeI32RemU   Opcode = 0x70
	OpcodeI32And    Opcode = 0x71
	OpcodeI32Or     Opcode = 0x72
	OpcodeI32Xor    Opcode = 0x73
	OpcodeI32Shl    Opcode = 0x74
	OpcodeI32ShrS   Opcode = 0x75
	OpcodeI32ShrU   Opcode = 0x76
	OpcodeI32Rotl   Opcode = 0x77
	OpcodeI32Rotr   Opcode = 0x78

	OpcodeI64Clz    Opcode = 0x79
	OpcodeI64Ctz    Opcode = 0x7a
	OpcodeI64Popcnt Opcode = 0x7b
	OpcodeI64Add    Opcode = 0x7c
	OpcodeI64Sub    Opcode = 0x7d
	OpcodeI64Mul    Opcode = 0x7e
	OpcodeI64DivS   Opcode = 0x7f
	OpcodeI64DivU   Opcode = 0x80
	OpcodeI64RemS   Opcode = 0x81
	OpcodeI64RemU   Opcode = 0x82
	OpcodeI64And    Opcode = 0x83
	OpcodeI64Or     Opcode = 0x84
	OpcodeI64Xor    Opcode = 0x85
	OpcodeI64Shl    Opcode = 0x86
	OpcodeI64ShrS   Opcode = 0x87
	OpcodeI64ShrU   Opcode = 0x88
	OpcodeI64Rotl   Opcode = 0x89
	OpcodeI64Rotr   Opcode = 0x8a

	OpcodeF32Abs      Opcode = 0x8b
	OpcodeF32Neg      Opcode = 0x8c
	OpcodeF32Ceil     Opcode = 0x8d
	OpcodeF32Floor    Opcode = 0x8e
	OpcodeF32Trunc    Opcode = 0x8f
	OpcodeF32Nearest  Opcode = 0x90
	OpcodeF32Sqrt     Opcode = 0x91
	OpcodeF32Add      Opcode = 0x92
	OpcodeF32Sub      Opcode = 0x93
	OpcodeF32Mul      Opcode = 0x94
	OpcodeF32Div      Opcode = 0x95
	OpcodeF32Min      Opcode = 0x96
	OpcodeF32Max      Opcode = 0x97
	OpcodeF32Copysign Opcode = 0x98

	OpcodeF64Abs      Opcode = 0x99
	OpcodeF64Neg      Opcode = 0x9a
	OpcodeF64Ceil     Opcode = 0x9b
	OpcodeF64Floor    Opcode = 0x9c
	OpcodeF64Trunc    Opcode = 0x9d
	OpcodeF64Nearest  Opcode = 0x9e
	OpcodeF64Sqrt     Opcode = 0x9f
	OpcodeF64Add      Opcode = 0xa0
	OpcodeF64Sub      Opcode = 0xa1
	OpcodeF64Mul      Opcode = 0xa2
	OpcodeF64Div      Opcode = 0xa3
	OpcodeF64Min      Opcode = 0xa4
	OpcodeF64Max      Opcode = 0xa5
	OpcodeF64Copysign Opcode = 0xa6

	OpcodeI32WrapI64      Opcode = 0xa7
	OpcodeI32TruncF32S    Opcode = 0xa8
	OpcodeI32TruncF32U    Opcode = 0xa9
	OpcodeI32TruncF64S    Opcode = 0xaa
	OpcodeI32TruncF64U    Opcode = 0xab
	OpcodeI64ExtendI32S   Opcode = 0xac
	OpcodeI64ExtendI32U   Opcode = 0xad
	OpcodeI64TruncF32S    Opcode = 0xae
	OpcodeI64TruncF32U    Opcode = 0xaf
	OpcodeI64TruncF64S    Opcode = 0xb0
	OpcodeI64TruncF64U    Opcode = 0xb1
	OpcodeF32ConvertI32S  Opcode = 0xb2
	OpcodeF32ConvertI32U  Opcode = 0xb3
	OpcodeF32ConvertI64S  Opcode = 0xb4
	OpcodeF32ConvertI64U  Opcode = 0xb5
	OpcodeF32DemoteF64    Opcode = 0xb6
	OpcodeF64ConvertI32S  Opcode = 0xb7
	OpcodeF64ConvertI32U  Opcode = 0xb8
	OpcodeF64ConvertI64S  Opcode = 0xb9
	OpcodeF64ConvertI64U  Opcode = 0xba
	OpcodeF64PromoteF32   Opcode = 0xbb
	OpcodeI32ReinterpretF32 Opcode = 0xbc
	OpcodeI64ReinterpretF64 Opcode = 0xbd
	OpcodeF32ReinterpretI32 Opcode = 0xbe
	OpcodeF64ReinterpretI64 Opcode = 0xbf

	OpcodeI32Extend8S  Opcode = 0xc0
	OpcodeI32Extend16S Opcode = 0xc1
	OpcodeI64Extend8S  Opcode = 0xc2
	OpcodeI64Extend16S Opcode = 0xc3
	OpcodeI64Extend32S Opcode = 0xc4

	OpcodeRefNull    Opcode = 0xd0
	OpcodeRefIsNull  Opcode = 0xd1
	OpcodeRefFunc    Opcode = 0xd2
	OpcodeRefAsNonNull Opcode = 0xd3
	OpcodeBrOnNull   Opcode = 0xd4
	OpcodeBrOnNonNull Opcode = 0xd6

	// OpcodeMiscPrefix introduces the saturating-truncation, bulk-memory,
	// and table.{init,copy,grow,size,fill} instructions, disambiguated by
	// a following LEB128 sub-opcode (OpcodeMisc*).
	OpcodeMiscPrefix  Opcode = 0xfc
	// OpcodeSIMDPrefix introduces the v128 instruction family. The compiler
	// decodes the sub-opcode (not its immediates) and lowers every SIMD
	// instruction to OperationUnreachable, so reaching one traps
	// ErrRuntimeUnreachable.
	OpcodeSIMDPrefix Opcode = 0xfd
	// OpcodeAtomicPrefix introduces the threads-proposal atomic
	// instructions (spec.md Component J).
	OpcodeAtomicPrefix Opcode = 0xfe
	// OpcodeGCPrefix introduces the struct/array/i31 instructions (spec.md
	// Component I).
	OpcodeGCPrefix Opcode = 0xfb
)

// Sub-opcodes following OpcodeMiscPrefix (0xFC).
const (
	OpcodeMiscI32TruncSatF32S Opcode = 0x00
	OpcodeMiscI32TruncSatF32U Opcode = 0x01
	OpcodeMiscI32TruncSatF64S Opcode = 0x02
	OpcodeMiscI32TruncSatF64U Opcode = 0x03
	OpcodeMiscI64TruncSatF32S Opcode = 0x04
	OpcodeMiscI64TruncSatF32U Opcode = 0x05
	OpcodeMiscI64TruncSatF64S Opcode = 0x06
	OpcodeMiscI64TruncSatF64U Opcode = 0x07
	OpcodeMiscMemoryInit      Opcode = 0x08
	OpcodeMiscDataDrop        Opcode = 0x09
	OpcodeMiscMemoryCopy      Opcode = 0x0a
	OpcodeMiscMemoryFill      Opcode = 0x0b
	OpcodeMiscTableInit       Opcode = 0x0c
	OpcodeMiscElemDrop        Opcode = 0x0d
	OpcodeMiscTableCopy       Opcode = 0x0e
	OpcodeMiscTableGrow       Opcode = 0x0f
	OpcodeMiscTableSize       Opcode = 0x10
	OpcodeMiscTableFill       Opcode = 0x11

	// OpcodeMiscStringNewUTF8 through OpcodeMiscStringEq implement the
	// reduced stringref subset (SPEC_FULL.md Scope Decisions). The real
	// stringref proposal has not been assigned a final prefix/sub-opcode
	// layout upstream; this module places the subset it supports after the
	// bulk-memory sub-opcodes in the same prefix byte's numbering space.
	OpcodeMiscStringNewUTF8     Opcode = 0x80
	OpcodeMiscStringConst       Opcode = 0x81
	OpcodeMiscStringMeasureUTF8 Opcode = 0x82
	OpcodeMiscStringConcat      Opcode = 0x83
	OpcodeMiscStringEq          Opcode = 0x84
)

// Sub-opcodes following OpcodeAtomicPrefix (0xFE). Layout matches the
// threads proposal's assigned opcode table.
const (
	OpcodeAtomicMemoryNotify Opcode = 0x00
	OpcodeAtomicMemoryWait32 Opcode = 0x01
	OpcodeAtomicMemoryWait64 Opcode = 0x02
	OpcodeAtomicFence        Opcode = 0x03

	OpcodeAtomicI32Load  Opcode = 0x10
	OpcodeAtomicI64Load  Opcode = 0x11
	OpcodeAtomicI32Load8U  Opcode = 0x12
	OpcodeAtomicI32Load16U Opcode = 0x13
	OpcodeAtomicI64Load8U  Opcode = 0x14
	OpcodeAtomicI64Load16U Opcode = 0x15
	OpcodeAtomicI64Load32U Opcode = 0x16
	OpcodeAtomicI32Store Opcode = 0x17
	OpcodeAtomicI64Store Opcode = 0x18
	OpcodeAtomicI32Store8  Opcode = 0x19
	OpcodeAtomicI32Store16 Opcode = 0x1a
	OpcodeAtomicI64Store8  Opcode = 0x1b
	OpcodeAtomicI64Store16 Opcode = 0x1c
	OpcodeAtomicI64Store32 Opcode = 0x1d

	OpcodeAtomicI32RmwAdd Opcode = 0x1e
	OpcodeAtomicI64RmwAdd Opcode = 0x1f
	OpcodeAtomicI32RmwSub Opcode = 0x25
	OpcodeAtomicI64RmwSub Opcode = 0x26
	OpcodeAtomicI32RmwAnd Opcode = 0x2c
	OpcodeAtomicI64RmwAnd Opcode = 0x2d
	OpcodeAtomicI32RmwOr  Opcode = 0x33
	OpcodeAtomicI64RmwOr  Opcode = 0x34
	OpcodeAtomicI32RmwXor Opcode = 0x3a
	OpcodeAtomicI64RmwXor Opcode = 0x3b
	OpcodeAtomicI32RmwXchg Opcode = 0x41
	OpcodeAtomicI64RmwXchg Opcode = 0x42
	OpcodeAtomicI32RmwCmpxchg Opcode = 0x48
	OpcodeAtomicI64RmwCmpxchg Opcode = 0x49
)

// Sub-opcodes following OpcodeGCPrefix (0xFB).
const (
	OpcodeGCStructNew      Opcode = 0x00
	OpcodeGCStructNewDefault Opcode = 0x01
	OpcodeGCStructGet      Opcode = 0x02
	OpcodeGCStructGetS     Opcode = 0x03
	OpcodeGCStructGetU     Opcode = 0x04
	OpcodeGCStructSet      Opcode = 0x05
	OpcodeGCArrayNew       Opcode = 0x06
	OpcodeGCArrayNewDefault Opcode = 0x07
	OpcodeGCArrayNewFixed  Opcode = 0x08
	OpcodeGCArrayGet       Opcode = 0x0b
	OpcodeGCArrayGetS      Opcode = 0x0c
	OpcodeGCArrayGetU      Opcode = 0x0d
	OpcodeGCArraySet       Opcode = 0x0e
	OpcodeGCArrayLen       Opcode = 0x0f
	OpcodeGCRefTest        Opcode = 0x14
	OpcodeGCRefTestNull    Opcode = 0x15
	OpcodeGCRefCast        Opcode = 0x16
	OpcodeGCRefCastNull    Opcode = 0x17
	OpcodeGCBrOnCast       Opcode = 0x18
	OpcodeGCBrOnCastFail   Opcode = 0x19
	OpcodeGCI31New         Opcode = 0x1c
	OpcodeGCI31GetS        Opcode = 0x1d
	OpcodeGCI31GetU        Opcode = 0x1e
)
