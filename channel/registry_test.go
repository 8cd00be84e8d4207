package channel

import (
	"testing"
)

func textEnv(t *testing.T, msgType, text string) Envelope {
	t.Helper()
	env, err := NewEnvelope(msgType, map[string]string{"text": text})
	if err != nil {
		t.Fatal(err)
	}
	return env
}

func TestDispatchSubscriptionOrder(t *testing.T) {
	r := NewRegistry()
	var order []int
	r.Subscribe(TypeAudioStatus, func(Envelope) { order = append(order, 1) })
	r.Subscribe(TypeAudioStatus, func(Envelope) { order = append(order, 2) })
	r.Subscribe(TypeAudioStatus, func(Envelope) { order = append(order, 3) })

	r.Dispatch(textEnv(t, TypeAudioStatus, "x"))

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("dispatch order = %v, want [1 2 3]", order)
	}
}

func TestUnsubscribeIdempotent(t *testing.T) {
	r := NewRegistry()
	calls := 0
	unsub := r.Subscribe(TypeError, func(Envelope) { calls++ })

	unsub()
	unsub() // second removal must be a no-op

	r.Dispatch(textEnv(t, TypeError, "boom"))
	if calls != 0 {
		t.Fatalf("handler ran %d times after unsubscribe", calls)
	}
}

func TestUnsubscribeDuringOwnInvocation(t *testing.T) {
	r := NewRegistry()
	var order []string

	var unsub func()
	unsub = r.Subscribe(TypeAudioStatus, func(Envelope) {
		order = append(order, "first")
		unsub() // must not panic, must not skip the handlers after us
	})
	r.Subscribe(TypeAudioStatus, func(Envelope) { order = append(order, "second") })

	r.Dispatch(textEnv(t, TypeAudioStatus, "x"))
	if len(order) != 2 || order[1] != "second" {
		t.Fatalf("order = %v, want [first second]", order)
	}

	order = nil
	r.Dispatch(textEnv(t, TypeAudioStatus, "x"))
	if len(order) != 1 || order[0] != "second" {
		t.Fatalf("after unsubscribe, order = %v, want [second]", order)
	}
}

func TestHandlerAddedDuringDispatchWaitsForNextMessage(t *testing.T) {
	r := NewRegistry()
	lateCalls := 0

	r.Subscribe(TypeAudioStatus, func(Envelope) {
		r.Subscribe(TypeAudioStatus, func(Envelope) { lateCalls++ })
	})

	r.Dispatch(textEnv(t, TypeAudioStatus, "x"))
	if lateCalls != 0 {
		t.Fatal("handler added mid-dispatch ran in the same pass")
	}

	r.Dispatch(textEnv(t, TypeAudioStatus, "x"))
	if lateCalls != 1 {
		t.Fatalf("late handler ran %d times on the next message, want 1", lateCalls)
	}
}

func TestPanickingHandlerIsolated(t *testing.T) {
	r := NewRegistry()
	ran := false
	r.Subscribe(TypeError, func(Envelope) { panic("handler bug") })
	r.Subscribe(TypeError, func(Envelope) { ran = true })

	r.Dispatch(textEnv(t, TypeError, "boom"))
	if !ran {
		t.Fatal("panic in one handler stopped the rest of the pass")
	}
}

func TestUnknownTypeFallsBackToBucket(t *testing.T) {
	r := NewRegistry()
	var unknown, typed []string
	r.SubscribeUnknown(func(env Envelope) { unknown = append(unknown, env.Type) })
	r.Subscribe("summary_ready", func(env Envelope) { typed = append(typed, env.Type) })

	// Known tag with no subscriber: dropped, not routed to the bucket.
	r.Dispatch(textEnv(t, TypeAudioChunk, "x"))
	// Unknown tag with a typed subscriber: typed wins.
	r.Dispatch(textEnv(t, "summary_ready", "x"))
	// Unknown tag, nobody typed: bucket.
	r.Dispatch(textEnv(t, "speaker_diarization", "x"))

	if len(unknown) != 1 || unknown[0] != "speaker_diarization" {
		t.Fatalf("unknown bucket got %v", unknown)
	}
	if len(typed) != 1 || typed[0] != "summary_ready" {
		t.Fatalf("typed subscriber got %v", typed)
	}
}
