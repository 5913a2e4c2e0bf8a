package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPrerollBothStreamsReady(t *testing.T) {
	var p prerollState
	p.begin(true, true, time.Second)

	assert.Equal(t, prerollWait, p.decide(time.Now()))

	p.markVideoReady()
	assert.Equal(t, prerollWait, p.decide(time.Now()), "audio still missing")

	p.markAudioReady()
	assert.Equal(t, prerollPlay, p.decide(time.Now()))
}

func TestPrerollAudioOnlyReadyKeepsWaiting(t *testing.T) {
	var p prerollState
	p.begin(true, true, time.Second)

	p.markAudioReady()
	// video is essential, even long past the timeout
	assert.Equal(t, prerollWait, p.decide(time.Now().Add(time.Hour)))
}

func TestPrerollAudioTimeoutFallsBackToWallClock(t *testing.T) {
	var p prerollState
	p.begin(true, true, 100*time.Millisecond)

	p.markVideoReady()
	assert.Equal(t, prerollWait, p.decide(time.Now()))
	assert.Equal(t, prerollPlayWallClock, p.decide(time.Now().Add(200*time.Millisecond)))
}

func TestPrerollNoAudioStream(t *testing.T) {
	var p prerollState
	p.begin(true, false, time.Second)

	p.markVideoReady()
	// audio absent: start immediately on wall clock
	assert.Equal(t, prerollPlayWallClock, p.decide(time.Now()))
}

func TestPrerollAudioOnlyFile(t *testing.T) {
	var p prerollState
	p.begin(false, true, time.Second)

	assert.Equal(t, prerollWait, p.decide(time.Now()))
	p.markAudioReady()
	assert.Equal(t, prerollPlay, p.decide(time.Now()))
}

func TestPrerollDeadline(t *testing.T) {
	var p prerollState
	start := time.Now()
	p.begin(true, true, 1500*time.Millisecond)
	d := p.deadline()
	assert.WithinDuration(t, start.Add(1500*time.Millisecond), d, 50*time.Millisecond)
}

func TestPrerollDefaultTimeout(t *testing.T) {
	var p prerollState
	p.begin(true, true, 0)
	assert.Equal(t, DefaultPrerollTimeout, p.timeout)
}
