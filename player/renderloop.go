package player

import (
	"context"
	"log"
	"time"

	"github.com/PapyKahan/rhap/audio"
)

// pipeRecvTimeout and eventWaitTimeout are the two bounded suspension
// points of the render loop (spec.md §5): short enough on the pipe side
// to re-check the command cell promptly, long enough on the event side
// that a healthy device never times out in normal operation.
const (
	pipeRecvTimeout  = 10 * time.Millisecond
	eventWaitTimeout = 1000 * time.Millisecond
)

// renderLoop is C7: a direct transliteration of the design-level
// pseudocode and of the reference Streamer::start loop. It owns session
// exclusively for its lifetime and never blocks inside Write — the event
// wait always happens after a write completes.
func renderLoop(ctx context.Context, session audio.RenderSession, pipe *audio.Pipe, cmd *audio.CommandCell, status *CurrentTrackInfo) error {
	if err := session.Start(); err != nil {
		return err
	}

	blockAlign := session.BlockAlign()
	var buffer []byte

	defer func() {
		status.setStreaming(false)
		session.Stop()
	}()

outer:
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		switch cmd.Load() {
		case audio.CommandStop:
			return nil
		case audio.CommandPause:
			if err := session.Stop(); err != nil {
				log.Printf("player: pause stop: %v", err)
			}
			if !waitWhilePaused(ctx, cmd) {
				return nil
			}
			if err := session.Start(); err != nil {
				return err
			}
		}

		frames, err := session.AvailableFrames()
		if err != nil {
			log.Printf("player: available frames: %v", err)
			continue
		}
		need := frames * blockAlign
		if need == 0 {
			continue
		}

		closed := false
	fill:
		for len(buffer) < need {
			b, recvStatus := pipe.Recv(pipeRecvTimeout)
			switch recvStatus {
			case audio.RecvByte:
				buffer = append(buffer, b)
			case audio.RecvClosed:
				closed = true
				break fill
			case audio.RecvTimedOut:
				// Re-check ctx/cmd at the outer loop boundary (§4.7: "continue
				// outer // re-check command") instead of spinning here, so a
				// posted Pause/Stop is serviced within one buffer period even
				// under pipe starvation.
				continue outer
			}
		}

		if len(buffer) < need {
			// The fill loop only falls through here via the Closed break,
			// since RecvTimedOut always re-enters at outer. Invariant I4:
			// on Closed, write no partial buffer and stop cleanly.
			return nil
		}

		if err := session.Write(frames, buffer[:need]); err != nil {
			return err
		}
		buffer = buffer[need:]

		signaled, err := session.Wait(eventWaitTimeout)
		if err != nil {
			log.Printf("player: event wait: %v", err)
			continue
		}
		if !signaled {
			// A timed-out wait is transient: log and loop, the device
			// will eventually signal again.
			log.Printf("player: device event wait timed out after %s", eventWaitTimeout)
		}

		if closed && len(buffer) == 0 {
			return nil
		}
	}
}

// waitWhilePaused blocks until the command cell moves off Pause or the
// context is cancelled. Invariant I3: a Pause is serviced within at most
// one buffer period because the caller already stopped the session
// before calling this.
func waitWhilePaused(ctx context.Context, cmd *audio.CommandCell) bool {
	ticker := time.NewTicker(pipeRecvTimeout)
	defer ticker.Stop()
	for {
		if cmd.Load() != audio.CommandPause {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}
