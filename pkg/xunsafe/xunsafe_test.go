package xunsafe_test

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"

	"github.com/sindarin-lang/rtarena/pkg/xunsafe"
)

func TestBitCastPreservesBits(t *testing.T) {
	var f float32 = 1.0
	bits := xunsafe.BitCast[uint32](f)
	assert.Equal(t, uint32(0x3f800000), bits)
	assert.Equal(t, f, xunsafe.BitCast[float32](bits))
}

func TestBitCastPointerRoundTrip(t *testing.T) {
	n := 42
	p := unsafe.Pointer(&n)
	addr := xunsafe.BitCast[uintptr](p)
	assert.Equal(t, uintptr(p), addr)
}

func TestNoCopyZeroSized(t *testing.T) {
	var nc xunsafe.NoCopy
	assert.Equal(t, 0, int(unsafe.Sizeof(nc)))
}
