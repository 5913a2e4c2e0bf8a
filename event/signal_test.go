package event

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignalEmit(t *testing.T) {
	var sig Signal[int]
	var got []int

	conn := sig.Connect(func(v int) { got = append(got, v) })
	defer conn.Disconnect()

	sig.Emit(1)
	sig.Emit(2)
	assert.Equal(t, []int{1, 2}, got)
}

func TestSignalDisconnect(t *testing.T) {
	var sig Signal[string]
	calls := 0

	conn := sig.Connect(func(string) { calls++ })
	sig.Emit("a")
	conn.Disconnect()
	sig.Emit("b")

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, sig.Count())

	// double disconnect is harmless
	conn.Disconnect()
}

func TestSignalMultipleSlots(t *testing.T) {
	var sig Signal[int]
	var order []int

	sig.Connect(func(int) { order = append(order, 1) })
	sig.Connect(func(int) { order = append(order, 2) })
	sig.Emit(0)

	assert.Equal(t, []int{1, 2}, order, "slots fire in connection order")
}

func TestSignalConcurrentEmit(t *testing.T) {
	var sig Signal[int]
	var mu sync.Mutex
	total := 0

	sig.Connect(func(v int) {
		mu.Lock()
		total += v
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				sig.Emit(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 800, total)
}

func TestConnectDuringEmit(t *testing.T) {
	var sig Signal[int]
	sig.Connect(func(int) {
		// connecting from inside a slot must not deadlock
		sig.Connect(func(int) {})
	})
	sig.Emit(0)
	assert.Equal(t, 2, sig.Count())
}
