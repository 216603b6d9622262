package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/linedesk/internal/events"
	"github.com/mattjoyce/linedesk/internal/inbox"
	"github.com/mattjoyce/linedesk/internal/line"
	"github.com/mattjoyce/linedesk/internal/log"
	"github.com/mattjoyce/linedesk/internal/policy/mocks"
)

func waitDispatcher(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Wait(ctx))
}

func textEvent(text string) Event {
	return Event{
		Message:    inbox.Message{ID: "m1", SenderID: "u1", Text: text},
		ReplyToken: "rt-1",
	}
}

func TestMatch(t *testing.T) {
	rules := DefaultRules()
	tests := []struct {
		name     string
		text     string
		wantRule string
		wantOK   bool
	}{
		{name: "english greeting", text: "hello there", wantRule: "greeting", wantOK: true},
		{name: "upper case", text: "HELLO", wantRule: "greeting", wantOK: true},
		{name: "thai greeting", text: "สวัสดีครับ", wantRule: "greeting", wantOK: true},
		{name: "price", text: "what is the Price?", wantRule: "price", wantOK: true},
		{name: "thai price", text: "ราคาเท่าไหร่", wantRule: "price", wantOK: true},
		{name: "contact", text: "contact please", wantRule: "contact", wantOK: true},
		{name: "greeting beats price", text: "hello, price?", wantRule: "greeting", wantOK: true},
		{name: "price beats contact", text: "contact me about price", wantRule: "price", wantOK: true},
		{name: "no match", text: "good morning", wantOK: false},
		{name: "empty", text: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, ok := Match(rules, tt.text)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantRule, rule.Name)
			}
		})
	}
}

func TestAutoReply_FiresExactlyOneReplyInPriorityOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	replier := mocks.NewMockReplier(ctrl)

	greeting := DefaultRules()[0].Reply
	replier.EXPECT().Reply(gomock.Any(), "rt-1", greeting).Return(nil).Times(1)

	d := NewDispatcher(replier, nil, log.Discard(), time.Second)
	p := NewAutoReply(DefaultRules(), d, log.Discard())

	p.Handle(context.Background(), textEvent("hello, how much is the price?"))
	waitDispatcher(t, d)
}

func TestAutoReply_NoMatchSendsNothing(t *testing.T) {
	ctrl := gomock.NewController(t)
	replier := mocks.NewMockReplier(ctrl)

	d := NewDispatcher(replier, nil, log.Discard(), time.Second)
	p := NewAutoReply(DefaultRules(), d, log.Discard())

	p.Handle(context.Background(), textEvent("just browsing"))
	waitDispatcher(t, d)
}

func TestAutoReply_MissingReplyTokenSkipsSend(t *testing.T) {
	ctrl := gomock.NewController(t)
	replier := mocks.NewMockReplier(ctrl)

	d := NewDispatcher(replier, nil, log.Discard(), time.Second)
	p := NewAutoReply(DefaultRules(), d, log.Discard())

	ev := textEvent("hello")
	ev.ReplyToken = ""
	p.Handle(context.Background(), ev)
	waitDispatcher(t, d)
}

func TestAutoReply_DoesNotBlockOnSlowSend(t *testing.T) {
	ctrl := gomock.NewController(t)
	replier := mocks.NewMockReplier(ctrl)

	release := make(chan struct{})
	replier.EXPECT().Reply(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, token, text string) error {
			<-release
			return nil
		})

	d := NewDispatcher(replier, nil, log.Discard(), 5*time.Second)
	p := NewAutoReply(DefaultRules(), d, log.Discard())

	returned := make(chan struct{})
	go func() {
		p.Handle(context.Background(), textEvent("hello"))
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Handle blocked on the reply send")
	}

	close(release)
	waitDispatcher(t, d)
}

func TestDispatcher_FailurePublishedNotRetried(t *testing.T) {
	ctrl := gomock.NewController(t)
	replier := mocks.NewMockReplier(ctrl)
	replier.EXPECT().Reply(gomock.Any(), "rt-1", gomock.Any()).
		Return(&line.APIError{StatusCode: 400, Body: []byte(`{"message":"Invalid reply token"}`)}).
		Times(1)

	hub := events.NewHub(10)
	d := NewDispatcher(replier, hub, log.Discard(), time.Second)

	d.Reply(context.Background(), ReplyTask{MessageID: "m1", Rule: "greeting", ReplyToken: "rt-1", Text: "hi"})
	waitDispatcher(t, d)

	snap := hub.SnapshotSince(0)
	require.Len(t, snap, 1)
	assert.Equal(t, events.ReplyFailed, snap[0].Kind)

	var failure ReplyFailure
	require.NoError(t, json.Unmarshal(snap[0].Data, &failure))
	assert.Equal(t, "m1", failure.MessageID)
	assert.Equal(t, "greeting", failure.Rule)
	assert.Equal(t, 400, failure.StatusCode)
}

func TestDispatcher_RequestCancellationDoesNotAbortSend(t *testing.T) {
	ctrl := gomock.NewController(t)
	replier := mocks.NewMockReplier(ctrl)
	replier.EXPECT().Reply(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, token, text string) error {
			return ctx.Err()
		})

	hub := events.NewHub(10)
	d := NewDispatcher(replier, hub, log.Discard(), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Reply(ctx, ReplyTask{MessageID: "m1", ReplyToken: "rt", Text: "hi"})
	waitDispatcher(t, d)

	assert.Empty(t, hub.SnapshotSince(0), "send should not see the request's cancellation")
}

func TestDispatcher_WaitHonoursContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	replier := mocks.NewMockReplier(ctrl)

	release := make(chan struct{})
	replier.EXPECT().Reply(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, token, text string) error {
			<-release
			return errors.New("late")
		})

	d := NewDispatcher(replier, nil, log.Discard(), 5*time.Second)
	d.Reply(context.Background(), ReplyTask{ReplyToken: "rt", Text: "hi"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Wait(ctx), context.DeadlineExceeded)

	close(release)
	waitDispatcher(t, d)
}

func TestDispatcher_ShutdownWaitsThenDropsNewTasks(t *testing.T) {
	ctrl := gomock.NewController(t)
	replier := mocks.NewMockReplier(ctrl)

	release := make(chan struct{})
	sent := make(chan struct{})
	// Only the task started before Shutdown may reach the platform.
	replier.EXPECT().Reply(gomock.Any(), "rt-before", gomock.Any()).DoAndReturn(
		func(ctx context.Context, token, text string) error {
			<-release
			close(sent)
			return nil
		}).Times(1)

	d := NewDispatcher(replier, nil, log.Discard(), 5*time.Second)
	d.Reply(context.Background(), ReplyTask{MessageID: "m1", ReplyToken: "rt-before", Text: "hi"})

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		done <- d.Shutdown(ctx)
	}()

	select {
	case <-done:
		t.Fatal("Shutdown returned before the in-flight reply finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-done)
	<-sent

	d.Reply(context.Background(), ReplyTask{MessageID: "m2", ReplyToken: "rt-after", Text: "hi"})
	waitDispatcher(t, d)
}

func TestDispatcher_Timeout(t *testing.T) {
	assert.Equal(t, DefaultReplyTimeout, NewDispatcher(nil, nil, log.Discard(), 0).Timeout())
	assert.Equal(t, 3*time.Second, NewDispatcher(nil, nil, log.Discard(), 3*time.Second).Timeout())
}

func TestLogging_OmitsText(t *testing.T) {
	var buf bytes.Buffer
	p := &Logging{logger: slog.New(slog.NewJSONHandler(&buf, nil))}

	p.Handle(context.Background(), textEvent("my secret address"))

	out := buf.String()
	assert.NotContains(t, out, "my secret address")
	assert.Contains(t, out, TextDigest("my secret address"))
	assert.Contains(t, out, `"sender_id":"u1"`)
	assert.Contains(t, out, `"message_id":"m1"`)
}

func TestTextDigest(t *testing.T) {
	a := TextDigest("hello")
	assert.Len(t, a, 64)
	assert.Equal(t, a, TextDigest("hello"))
	assert.NotEqual(t, a, TextDigest("hello!"))
}

func TestNew(t *testing.T) {
	d := NewDispatcher(nil, nil, log.Discard(), 0)

	tests := []struct {
		name     string
		cfg      Config
		d        *Dispatcher
		wantName string
		wantErr  string
	}{
		{name: "empty mode is noop", cfg: Config{}, d: d, wantName: ModeNoOp},
		{name: "noop", cfg: Config{Mode: "noop"}, d: d, wantName: ModeNoOp},
		{name: "logging", cfg: Config{Mode: "logging"}, d: d, wantName: ModeLogging},
		{name: "auto reply mixed case", cfg: Config{Mode: "Auto_Reply"}, d: d, wantName: ModeAutoReply},
		{name: "auto reply needs dispatcher", cfg: Config{Mode: "auto_reply"}, wantErr: "requires a reply dispatcher"},
		{name: "unknown", cfg: Config{Mode: "chatgpt"}, d: d, wantErr: "unknown policy mode"},
		{
			name:    "rule without reply",
			cfg:     Config{Mode: "auto_reply", Rules: []Rule{{Name: "x", Keywords: []string{"a"}}}},
			d:       d,
			wantErr: "reply is required",
		},
		{
			name:    "rule with blank keyword",
			cfg:     Config{Mode: "auto_reply", Rules: []Rule{{Name: "x", Keywords: []string{" "}, Reply: "r"}}},
			d:       d,
			wantErr: "keyword[0] is empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.cfg, tt.d, log.Discard())
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.True(t, strings.Contains(err.Error(), tt.wantErr), "error %q", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, p.Name())
		})
	}
}

func TestNoOp_Handle(t *testing.T) {
	NoOp{}.Handle(context.Background(), textEvent("hello"))
}
