package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestPipeOrderingPreserved(t *testing.T) {
	p := NewPipe(8)
	go func() {
		p.SendBytes([]byte{1, 2, 3, 4, 5})
		p.Close()
	}()
	var got []byte
	for {
		b, status := p.Recv(time.Second)
		if status == RecvClosed {
			break
		}
		assert.Equal(t, RecvByte, status)
		got = append(got, b)
	}
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, got)
}

func TestPipeRecvTimesOutWhenEmpty(t *testing.T) {
	p := NewPipe(1)
	_, status := p.Recv(5 * time.Millisecond)
	assert.Equal(t, RecvTimedOut, status)
}

// TestPipeCancelUnparksBlockedSend reproduces the producer-stuck-on-a-
// full-pipe scenario: a Send blocked because nothing is draining the pipe
// must return false as soon as Cancel fires, instead of blocking forever.
func TestPipeCancelUnparksBlockedSend(t *testing.T) {
	p := NewPipe(1)
	p.Send(0xFF) // fill the one-byte buffer so the next Send blocks

	result := make(chan bool, 1)
	go func() {
		result <- p.Send(0xAA)
	}()

	select {
	case <-result:
		t.Fatal("Send returned before Cancel was called")
	case <-time.After(20 * time.Millisecond):
	}

	p.Cancel()
	select {
	case ok := <-result:
		assert.False(t, ok, "Send should report failure once Cancel unparks it")
	case <-time.After(time.Second):
		t.Fatal("Send did not unblock after Cancel")
	}
}

// TestPipeByteConservation is the byte-conservation property from the
// testable properties: every byte sent arrives in order and nothing is
// dropped or duplicated, for any send batching.
func TestPipeByteConservation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		data := rapid.SliceOf(rapid.Byte()).Draw(t, "data")
		p := NewPipe(len(data) + 1)
		done := make(chan struct{})
		go func() {
			p.SendBytes(data)
			p.Close()
			close(done)
		}()
		var got []byte
		for {
			b, status := p.Recv(time.Second)
			if status == RecvClosed {
				break
			}
			if status == RecvTimedOut {
				t.Fatalf("timed out waiting for byte %d/%d", len(got), len(data))
			}
			got = append(got, b)
		}
		<-done
		if len(got) != len(data) {
			t.Fatalf("lost bytes: sent %d, received %d", len(data), len(got))
		}
		for i := range data {
			if got[i] != data[i] {
				t.Fatalf("byte %d reordered or corrupted: sent %d, got %d", i, data[i], got[i])
			}
		}
	})
}
