package mode

import (
	"testing"
	"time"
)

func TestRecordAudioDerivation(t *testing.T) {
	r := New()
	if r.Snapshot().RecordAudio {
		t.Fatal("record_audio should start false")
	}

	r.SetListen(true)
	if !r.Snapshot().RecordAudio {
		t.Error("record_audio should be true once listen_audio is true")
	}

	r.SetPlaying(true)
	snap := r.Snapshot()
	if snap.RecordAudio {
		t.Error("record_audio must be false while playing_audio is true")
	}
	if !snap.PlayingAudio {
		t.Error("playing_audio should be true")
	}

	r.SetPlaying(false)
	if !r.Snapshot().RecordAudio {
		t.Error("record_audio should resume once playing_audio clears")
	}
}

func TestWakewordAlsoEnablesRecording(t *testing.T) {
	r := New()
	r.SetWakeword(true)
	if !r.Snapshot().RecordAudio {
		t.Error("record_audio should be true once wakeword_listen is true")
	}
}

func TestRequestStopClearsRecordAudio(t *testing.T) {
	r := New()
	r.SetListen(true)
	r.RequestStop()
	snap := r.Snapshot()
	if !snap.ServerStop {
		t.Error("server_stop should be true after RequestStop")
	}
	if snap.RecordAudio {
		t.Error("record_audio must be false once server_stop is true")
	}
}

func TestRequestStopIsLatching(t *testing.T) {
	r := New()
	r.RequestStop()
	r.SetListen(true)
	if !r.Snapshot().ServerStop {
		t.Error("server_stop must remain true; it is never cleared")
	}
	if r.Snapshot().RecordAudio {
		t.Error("record_audio must stay false once server_stop latched, regardless of listen_audio")
	}
}

func TestRequestStopUnblocksWaiter(t *testing.T) {
	r := New()
	done := make(chan Snapshot, 1)
	go func() {
		done <- r.WaitForChange()
	}()

	// Give the waiter time to enter cv.Wait.
	time.Sleep(20 * time.Millisecond)
	r.RequestStop()

	select {
	case snap := <-done:
		if !snap.ServerStop {
			t.Error("woken snapshot should show server_stop=true")
		}
	case <-time.After(time.Second):
		t.Fatal("RequestStop did not unblock waiter within 1s")
	}
}

func TestSetPlayingWakesWaiterWithoutEnablingRecording(t *testing.T) {
	r := New()
	done := make(chan Snapshot, 1)
	go func() {
		done <- r.WaitForChange()
	}()

	time.Sleep(20 * time.Millisecond)
	r.SetPlaying(true)

	select {
	case snap := <-done:
		if snap.RecordAudio {
			t.Error("record_audio must remain false: playing_audio is set and nothing enabled listening")
		}
	case <-time.After(time.Second):
		t.Fatal("SetPlaying did not wake waiter within 1s")
	}
}
