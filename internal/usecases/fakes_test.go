package usecases

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"teams_bridge/internal/entities"
)

var errBoom = errors.New("boom")

type sentMessage struct {
	Replace    bool
	ActivityID string
	Reply      entities.Reply
}

type fakeMessenger struct {
	mu         sync.Mutex
	messages   []sentMessage
	sendErr    error
	failFirst  bool
	replaceErr error
	panicOn    string
	nextID     int
}

func (m *fakeMessenger) SendMessage(_ context.Context, _ entities.ConversationRef, reply entities.Reply) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panicOn != "" && reply.Text == m.panicOn {
		panic("messenger exploded")
	}
	if m.failFirst {
		m.failFirst = false
		return "", errBoom
	}
	if m.sendErr != nil {
		return "", m.sendErr
	}
	m.nextID++
	id := fmt.Sprintf("out-%d", m.nextID)
	m.messages = append(m.messages, sentMessage{ActivityID: id, Reply: reply})
	return id, nil
}

func (m *fakeMessenger) ReplaceMessage(_ context.Context, _ entities.ConversationRef, activityID string, reply entities.Reply) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replaceErr != nil {
		return m.replaceErr
	}
	m.messages = append(m.messages, sentMessage{Replace: true, ActivityID: activityID, Reply: reply})
	return nil
}

func (m *fakeMessenger) texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.messages))
	for _, msg := range m.messages {
		out = append(out, msg.Reply.Text)
	}
	return out
}

type fakeLookup struct {
	tenantID string
	err      error
	calls    []string
}

func (f *fakeLookup) Lookup(_ context.Context, orgID string) (string, error) {
	f.calls = append(f.calls, orgID)
	return f.tenantID, f.err
}

type fakeMinter struct {
	result entities.ClaimResult
	err    error
	calls  int
}

func (f *fakeMinter) Mint(context.Context, string) (entities.ClaimResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeKnowledge struct {
	answer   entities.Answer
	err      error
	panics   bool
	tenant   string
	question string
	calls    int
}

func (f *fakeKnowledge) Query(_ context.Context, tenantID, question string) (entities.Answer, error) {
	f.calls++
	if f.panics {
		panic("nil map")
	}
	f.tenant, f.question = tenantID, question
	return f.answer, f.err
}

type fakeSink struct {
	mu    sync.Mutex
	err   error
	posts []entities.Feedback
	// hold, when set, keeps SubmitFeedback from returning until closed.
	hold chan struct{}
}

func (f *fakeSink) SubmitFeedback(_ context.Context, fb entities.Feedback) error {
	f.mu.Lock()
	f.posts = append(f.posts, fb)
	f.mu.Unlock()
	if f.hold != nil {
		<-f.hold
	}
	return f.err
}

type fakeRecorder struct {
	records []entities.TurnRecord
}

func (f *fakeRecorder) Record(_ context.Context, rec entities.TurnRecord) error {
	f.records = append(f.records, rec)
	return nil
}
