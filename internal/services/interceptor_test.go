package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeCompleter struct {
	mu      sync.Mutex
	prompts []string
	reply   string
	err     error
	delay   time.Duration
}

func (f *fakeCompleter) Generate(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.err
}

func (f *fakeCompleter) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

func TestAIInterceptor_TriggerScenario(t *testing.T) {
	// the delay lets the human message reach the room before the reply
	ai := &fakeCompleter{reply: `{"text":"summary"}`, delay: 20 * time.Millisecond}
	ic := NewAIInterceptor("@ai", ai, time.Second)
	sink := &recordingSink{}
	h := NewHub(WithInterceptor(ic), WithSink(sink))
	a := join(t, h, "p1", "alice")
	b := join(t, h, "p1", "bob")

	h.Relay(context.Background(), a, "@ai summarize this")
	ic.Wait()

	if calls := ai.calls(); len(calls) != 1 || calls[0] != "summarize this" {
		t.Errorf("AI prompts = %q, expected one stripped prompt", calls)
	}

	// bob sees the stripped human message and then the reply
	first := receive(t, b)
	if first.Message != "summarize this" || first.Sender.ID != "alice" {
		t.Errorf("bob first message = %+v", first)
	}
	reply := receive(t, b)
	if reply.Sender != AISender || reply.Message != `{"text":"summary"}` {
		t.Errorf("bob reply = %+v", reply)
	}

	// alice only gets the reply
	if got := receive(t, a); got.Sender != AISender {
		t.Errorf("alice received %+v, expected the AI reply", got)
	}
	assertSilent(t, a)
	assertSilent(t, b)

	for _, m := range sink.messages() {
		if strings.Contains(m.Message, "@ai") {
			t.Errorf("stored message still contains the trigger: %q", m.Message)
		}
	}
	if len(sink.messages()) != 2 {
		t.Errorf("stored %d messages, expected the human one and the reply", len(sink.messages()))
	}
}

func TestAIInterceptor_NoTrigger(t *testing.T) {
	ai := &fakeCompleter{reply: "x"}
	ic := NewAIInterceptor("", ai, 0)

	msg := &ChatMessage{Message: "plain chat"}
	ic.Intercept(context.Background(), "p1", msg, NewHub())
	ic.Wait()

	if len(ai.calls()) != 0 {
		t.Error("messages without the trigger should not reach the assistant")
	}
	if msg.Message != "plain chat" {
		t.Errorf("message rewritten to %q", msg.Message)
	}
}

func TestAIInterceptor_TriggerOnly(t *testing.T) {
	ai := &fakeCompleter{reply: "x"}
	ic := NewAIInterceptor("@ai", ai, time.Second)

	msg := &ChatMessage{Message: "  @ai  "}
	ic.Intercept(context.Background(), "p1", msg, NewHub())
	ic.Wait()

	if len(ai.calls()) != 0 {
		t.Error("an empty prompt should not be sent")
	}
	if msg.Message != "" {
		t.Errorf("message = %q, expected empty", msg.Message)
	}
}

func TestAIInterceptor_FailureBroadcastsNothing(t *testing.T) {
	ai := &fakeCompleter{err: errors.New("quota exceeded")}
	ic := NewAIInterceptor("@ai", ai, time.Second)
	h := NewHub(WithInterceptor(ic))
	a := join(t, h, "p1", "alice")
	b := join(t, h, "p1", "bob")

	h.Relay(context.Background(), a, "@ai write tests")
	ic.Wait()

	if msg := receive(t, b); msg.Message != "write tests" {
		t.Errorf("bob received %+v", msg)
	}
	assertSilent(t, a)
	assertSilent(t, b)
}

func TestAIInterceptor_Timeout(t *testing.T) {
	ai := &fakeCompleter{reply: "late", delay: time.Second}
	ic := NewAIInterceptor("@ai", ai, 20*time.Millisecond)
	h := NewHub(WithInterceptor(ic))
	a := join(t, h, "p1", "alice")

	h.Relay(context.Background(), a, "@ai slow")
	ic.Wait()
	assertSilent(t, a)
}

func TestAIInterceptor_CloseSkipsNewCalls(t *testing.T) {
	ai := &fakeCompleter{reply: "x"}
	ic := NewAIInterceptor("@ai", ai, time.Second)
	ic.Close()

	msg := &ChatMessage{Message: "@ai explain"}
	ic.Intercept(context.Background(), "p1", msg, NewHub())
	ic.Wait()

	if len(ai.calls()) != 0 {
		t.Errorf("calls after Close = %v, expected none", ai.calls())
	}
	if msg.Message != "explain" {
		t.Errorf("message = %q, expected trigger stripped", msg.Message)
	}
}

func TestAIInterceptor_CloseDuringRelay(t *testing.T) {
	ai := &fakeCompleter{reply: "x", delay: 5 * time.Millisecond}
	ic := NewAIInterceptor("@ai", ai, time.Second)
	h := NewHub()

	var wg sync.WaitGroup
	for n := 0; n < 8; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := 0; k < 50; k++ {
				ic.Intercept(context.Background(), "p1", &ChatMessage{Message: "@ai go"}, h)
			}
		}()
	}

	time.Sleep(time.Millisecond)
	h.Close()
	ic.Close()
	wg.Wait()

	// every call admitted before Close has finished, later ones were refused
	before := len(ai.calls())
	ic.Intercept(context.Background(), "p1", &ChatMessage{Message: "@ai late"}, h)
	if got := len(ai.calls()); got != before {
		t.Errorf("calls grew from %d to %d after Close", before, got)
	}
}
