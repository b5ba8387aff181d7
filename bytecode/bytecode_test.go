package bytecode

import (
	"errors"
	"testing"

	"github.com/deepnoodle-ai/regvm/op"
	"github.com/deepnoodle-ai/regvm/value"
	"github.com/gofrs/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/require"
)

func mustAppend(t *testing.T, code []byte, opcode op.Code, operands ...uint32) []byte {
	t.Helper()
	code, err := Append(code, opcode, operands...)
	require.NoError(t, err)
	return code
}

func TestAppendEncodesLittleEndian(t *testing.T) {
	var code []byte
	code = mustAppend(t, code, op.Const, 3, 0x0102)
	code = mustAppend(t, code, op.Jump, 0x01020304)
	code = mustAppend(t, code, op.Store, 0x0a0b, 7)
	require.Equal(t, []byte{
		byte(op.Const), 3, 0x02, 0x01,
		byte(op.Jump), 0x04, 0x03, 0x02, 0x01,
		byte(op.Store), 0x0b, 0x0a, 7,
	}, code)
}

func TestAppendRejectsBadOperands(t *testing.T) {
	code := []byte{byte(op.Return), 0}
	out, err := Append(code, op.Const, 300, 1)
	require.Error(t, err)
	require.Equal(t, code, out)

	out, err = Append(code, op.Load, 1, 70000)
	require.Error(t, err)
	require.Len(t, out, 2)

	_, err = Append(code, op.Add, 1, 2)
	require.Error(t, err)

	_, err = Append(code, op.Invalid)
	require.Error(t, err)
}

func TestDecode(t *testing.T) {
	var code []byte
	code = mustAppend(t, code, op.Add, 1, 2, 3)
	code = mustAppend(t, code, op.JumpIfFalse, 4, 99)
	code = mustAppend(t, code, op.PushFrame, 5, 2)

	ins, err := Decode(code, 0)
	require.NoError(t, err)
	require.Equal(t, op.Add, ins.Op)
	require.Equal(t, 3, ins.Count)
	require.Equal(t, [op.MaxOperands]uint32{1, 2, 3}, ins.Operands)
	require.Equal(t, 4, ins.Next())

	ins, err = Decode(code, 4)
	require.NoError(t, err)
	require.Equal(t, op.JumpIfFalse, ins.Op)
	require.Equal(t, op.Register(4), ins.Register(0))
	require.Equal(t, uint32(99), ins.Operands[1])
	require.Equal(t, 6, ins.Size)

	ins, err = Decode(code, 10)
	require.NoError(t, err)
	require.Equal(t, op.PushFrame, ins.Op)
	require.Equal(t, uint32(2), ins.Operands[1])
}

func TestDecodeTruncated(t *testing.T) {
	tests := []struct {
		name   string
		code   []byte
		offset int
		need   int
		have   int
	}{
		{"missing jump target bytes", []byte{byte(op.Jump), 1, 2}, 0, 5, 3},
		{"opcode only", []byte{byte(op.Const)}, 0, 4, 1},
		{"past end", []byte{byte(op.Return), 0}, 2, 1, 0},
		{"negative offset", []byte{byte(op.Return), 0}, -1, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.code, tt.offset)
			require.ErrorIs(t, err, ErrTruncated)
			var fe *FormatError
			require.True(t, errors.As(err, &fe))
			require.Equal(t, tt.offset, fe.Offset)
			require.Equal(t, tt.need, fe.Need)
			require.Equal(t, tt.have, fe.Have)
		})
	}
}

func TestDecodeInvalidOpcode(t *testing.T) {
	for _, b := range []byte{0, 3, 9, 21, 29, 44, 52, 255} {
		_, err := Decode([]byte{b, 0, 0, 0, 0}, 0)
		require.ErrorIs(t, err, ErrInvalidOpcode, "byte 0x%02x", b)
		require.NotErrorIs(t, err, ErrTruncated)
	}
}

func TestDecodeIsIdempotent(t *testing.T) {
	var code []byte
	code = mustAppend(t, code, op.Const, 0, 0)
	code = mustAppend(t, code, op.Store, 0, 0)
	code = mustAppend(t, code, op.Load, 1, 0)
	code = mustAppend(t, code, op.Return, 1)

	first, err := All(code)
	require.NoError(t, err)
	second, err := All(code)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Len(t, first, 4)
}

func TestIterStopsOnError(t *testing.T) {
	code := []byte{byte(op.Return), 0, 0xee}
	it := NewIter(code)
	require.True(t, it.Next())
	require.Equal(t, op.Return, it.Instruction().Op)
	require.False(t, it.Next())
	require.ErrorIs(t, it.Err(), ErrInvalidOpcode)
	require.False(t, it.Next())
}

func TestPutTargetRoundTrip(t *testing.T) {
	for _, target := range []uint32{0, 1, 255, 256, 65535, 1 << 20, 0xffffffff} {
		var code []byte
		code = mustAppend(t, code, op.Jump, 0)
		code = mustAppend(t, code, op.JumpIfFalse, 2, 0)
		require.NoError(t, PutTarget(code, 0, target))
		require.NoError(t, PutTarget(code, 5, target))

		ins, err := Decode(code, 0)
		require.NoError(t, err)
		require.Equal(t, target, ins.Operands[0])
		ins, err = Decode(code, 5)
		require.NoError(t, err)
		require.Equal(t, target, ins.Operands[1])
		require.Equal(t, op.Register(2), ins.Register(0))
	}
}

func TestPutTargetRejectsNonJump(t *testing.T) {
	code := mustAppend(t, nil, op.Return, 0)
	require.Error(t, PutTarget(code, 0, 5))
	require.ErrorIs(t, PutTarget(code, 9, 5), ErrTruncated)
}

func TestChunkIsImmutable(t *testing.T) {
	code := mustAppend(t, nil, op.Const, 0, 0)
	constants := []value.Value{value.Int(7)}
	c := NewChunk(ChunkParams{Code: code, Constants: constants, LocalCount: 1, LocalNames: []string{"a"}})
	code[0] = 0xff
	constants[0] = value.Int(1)

	require.Equal(t, byte(op.Const), c.Code()[0])
	require.Equal(t, value.Int(7), c.ConstantAt(0))
	c.Code()[0] = 0xff
	require.Equal(t, byte(op.Const), c.Code()[0])
	require.Equal(t, "a", c.LocalNameAt(0))
	require.Equal(t, "", c.LocalNameAt(3))
	require.NotEqual(t, uuid.Nil, c.ID())
}

func TestChunkKeepsGivenID(t *testing.T) {
	id := uuid.Must(uuid.NewV4())
	require.Equal(t, id, NewChunk(ChunkParams{ID: id}).ID())
	require.NotEqual(t, NewChunk(ChunkParams{}).ID(), NewChunk(ChunkParams{}).ID())
}

func TestVerify(t *testing.T) {
	var code []byte
	code = mustAppend(t, code, op.Const, 0, 4) // constant out of range
	code = mustAppend(t, code, op.Load, 1, 3)  // slot out of range
	code = mustAppend(t, code, op.Jump, 2)     // mid-instruction target
	code = mustAppend(t, code, op.Store, 0, 1)
	code = mustAppend(t, code, op.Return, 0)
	c := NewChunk(ChunkParams{Code: code, Constants: []value.Value{value.Int(1)}, LocalCount: 1})

	err := Verify(c)
	require.Error(t, err)
	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	require.Len(t, merr.Errors, 3)
}

func TestVerifyValidChunk(t *testing.T) {
	var code []byte
	code = mustAppend(t, code, op.Const, 0, 0)
	code = mustAppend(t, code, op.JumpIfFalse, 0, 15)
	code = mustAppend(t, code, op.Jump, 15)
	code = mustAppend(t, code, op.Return, 0)
	c := NewChunk(ChunkParams{Code: code, Constants: []value.Value{value.Bool(false)}})
	require.NoError(t, Verify(c))
}

func TestVerifyReportsTruncation(t *testing.T) {
	c := NewChunk(ChunkParams{Code: []byte{byte(op.Return), 0, byte(op.Jump), 0}})
	require.ErrorIs(t, Verify(c), ErrTruncated)
}

func FuzzDecode(f *testing.F) {
	f.Add([]byte{byte(op.Const), 0, 0, 0, byte(op.Return), 0})
	f.Add([]byte{byte(op.Jump), 1})
	f.Add([]byte{0xff})
	f.Fuzz(func(t *testing.T, code []byte) {
		pos := 0
		for pos < len(code) {
			ins, err := Decode(code, pos)
			if err != nil {
				require.True(t, errors.Is(err, ErrTruncated) || errors.Is(err, ErrInvalidOpcode))
				return
			}
			require.Greater(t, ins.Size, 0)
			require.LessOrEqual(t, ins.Next(), len(code))
			again, err := Decode(code, pos)
			require.NoError(t, err)
			require.Equal(t, ins, again)
			pos = ins.Next()
		}
	})
}
