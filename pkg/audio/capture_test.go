package audio

import (
	"testing"
	"time"
)

func TestCaptureStopReleasesContextWatcher(t *testing.T) {
	c := NewCapture(nil)

	exited := make(chan struct{})
	go func() {
		<-c.done
		close(exited)
	}()

	c.Stop()
	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("Stop did not release the context watcher")
	}

	// Second Stop must not close done again.
	c.Stop()

	if _, ok := <-c.Frames(); ok {
		t.Fatal("frames channel still open after Stop")
	}
}
