package op

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetInfo(t *testing.T) {
	info := GetInfo(JumpIfFalse)
	require.Equal(t, "JUMP_IF_FALSE", info.Name)
	require.Equal(t, 2, info.OperandCount())
	require.Equal(t, JumpIfFalse, info.Code)
	require.Equal(t, 6, info.Size)
}

func TestGetInfoAllOpcodes(t *testing.T) {
	tests := []struct {
		code Code
		name string
		size int
	}{
		{Return, "RETURN", 2},
		{Const, "CONST", 4},
		{Add, "ADD", 4},
		{Sub, "SUB", 4},
		{Mul, "MUL", 4},
		{Div, "DIV", 4},
		{Mod, "MOD", 4},
		{Eq, "EQ", 4},
		{NotEq, "NOT_EQ", 4},
		{Less, "LESS", 4},
		{LessEq, "LESS_EQ", 4},
		{And, "AND", 4},
		{Or, "OR", 4},
		{Jump, "JUMP", 5},
		{JumpIfFalse, "JUMP_IF_FALSE", 6},
		{Load, "LOAD", 4},
		{Store, "STORE", 4},
		{LoadLocal, "LOAD_LOCAL", 4},
		{StoreLocal, "STORE_LOCAL", 4},
		{PushFrame, "PUSH_FRAME", 3},
		{PopFrame, "POP_FRAME", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := GetInfo(tt.code)
			require.True(t, info.Valid())
			require.Equal(t, tt.name, info.Name)
			require.Equal(t, tt.size, info.Size)
			require.LessOrEqual(t, info.OperandCount(), MaxOperands)
			require.Equal(t, tt.name, tt.code.String())
		})
	}
}

func TestBinaryOpcodes(t *testing.T) {
	var count int
	for c := 0; c < 256; c++ {
		if IsBinary(Code(c)) {
			count++
			require.True(t, GetInfo(Code(c)).Valid())
		}
	}
	require.Equal(t, 11, count)
}

func TestUndefinedOpcode(t *testing.T) {
	info := GetInfo(Code(0xEE))
	require.False(t, info.Valid())
	require.Equal(t, "INVALID", Code(0xEE).String())
	require.False(t, GetInfo(Invalid).Valid())
}

func TestOperandWidths(t *testing.T) {
	require.Equal(t, 1, KindRegister.Width())
	require.Equal(t, 1, KindCount.Width())
	require.Equal(t, 2, KindConst.Width())
	require.Equal(t, 2, KindSlot.Width())
	require.Equal(t, TargetWidth, KindTarget.Width())
}
