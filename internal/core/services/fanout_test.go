package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"sanuda/internal/app/registry"
	"sanuda/internal/core/contracts"
	"sanuda/internal/core/domain"

	"github.com/google/uuid"
)

type fanoutFixture struct {
	registry *registry.Registry
	convs    *memConvRepo
	messages *memMessageRepo
	notifier *fakeNotifier
	svc      *FanoutService
	convID   uuid.UUID
}

func newFanoutFixture(t *testing.T, members ...string) *fanoutFixture {
	t.Helper()
	f := &fanoutFixture{
		registry: registry.NewRegistry(),
		convs:    newMemConvRepo(),
		messages: newMemMessageRepo(),
		notifier: newFakeNotifier(),
		convID:   uuid.New(),
	}
	f.convs.members[f.convID] = members
	cursors := NewCursorService(testLogger(), newMemCursorRepo(f.messages), f.messages)
	rooms := NewRoomService(testLogger(), f.registry, f.convs, cursors)
	f.svc = NewFanoutService(testLogger(), f.registry, rooms, f.messages, f.convs, f.notifier)
	return f
}

// connect registers a session and joins it to the conversation room.
func (f *fanoutFixture) connect(userID string) (contracts.Session, *fakeClient) {
	c := &fakeClient{}
	sess := f.registry.Register(userID, c)
	f.registry.Join(sess, f.convID.String())
	return sess, c
}

func TestSendRejectsNonMember(t *testing.T) {
	f := newFanoutFixture(t, "alice", "bob")
	sess, _ := f.connect("mallory")

	_, err := f.svc.Send(context.Background(), sess, f.convID.String(), "hi", domain.ContentText, "")
	if !errors.Is(err, domain.ErrNotAMember) {
		t.Fatalf("expected ErrNotAMember, got %v", err)
	}
	if len(f.messages.msgs) != 0 {
		t.Fatal("rejected send must not persist anything")
	}
}

func TestSendRejectsMalformedConversationID(t *testing.T) {
	f := newFanoutFixture(t, "alice")
	sess, _ := f.connect("alice")

	_, err := f.svc.Send(context.Background(), sess, "not-a-uuid", "hi", domain.ContentText, "")
	if !errors.Is(err, domain.ErrInvalidConversationID) {
		t.Fatalf("expected ErrInvalidConversationID, got %v", err)
	}
}

func TestSendAbortsOnPersistenceFailure(t *testing.T) {
	f := newFanoutFixture(t, "alice", "bob")
	aliceSess, _ := f.connect("alice")
	_, bobClient := f.connect("bob")

	f.messages.appendErr = errors.New("disk full")
	_, err := f.svc.Send(context.Background(), aliceSess, f.convID.String(), "hi", domain.ContentText, "")
	if !errors.Is(err, domain.ErrPersistenceFailed) {
		t.Fatalf("expected ErrPersistenceFailed, got %v", err)
	}
	if got := len(bobClient.eventsOfType(t, domain.TypeMessage)); got != 0 {
		t.Fatalf("no broadcast may precede persistence: bob saw %d message events", got)
	}
}

func TestSendDeliversToLiveRecipientsAndQueuesOffline(t *testing.T) {
	f := newFanoutFixture(t, "alice", "bob", "carol")
	aliceSess, aliceClient := f.connect("alice")
	_, bobClient := f.connect("bob")
	// carol has no live session

	msg, err := f.svc.Send(context.Background(), aliceSess, f.convID.String(), "hello", domain.ContentText, "")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	// Live recipient got the message and a delivery receipt.
	if got := len(bobClient.eventsOfType(t, domain.TypeMessage)); got != 1 {
		t.Fatalf("expected 1 message event for bob, got %d", got)
	}
	stored, _ := f.messages.GetMessage(context.Background(), msg.ID)
	if _, ok := stored.DeliveredTo["bob"]; !ok {
		t.Fatal("live recipient must be marked delivered at send time")
	}
	if _, ok := stored.DeliveredTo["carol"]; ok {
		t.Fatal("offline recipient must not be marked delivered")
	}

	// The sender's own sessions receive the room broadcast too, plus the
	// initial aggregated status.
	if got := len(aliceClient.eventsOfType(t, domain.TypeMessage)); got != 1 {
		t.Fatalf("expected the sender's session to receive the broadcast, got %d", got)
	}
	statusEvents := aliceClient.eventsOfType(t, domain.TypeMessageStatus)
	if len(statusEvents) != 1 {
		t.Fatalf("expected 1 status event for sender, got %d", len(statusEvents))
	}
	update := statusEvents[0]["updates"].([]any)[0].(map[string]any)
	if update["status"] != string(domain.StatusDelivered) {
		t.Fatalf("expected delivered rollup, got %v", update["status"])
	}

	// The offline recipient is handed to the notifier asynchronously.
	select {
	case call := <-f.notifier.calls:
		if call.userID != "carol" || call.msgID != msg.ID {
			t.Fatalf("unexpected notify call: %+v", call)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the offline notification handoff")
	}
}

func TestSendToOfflineOnlyRecipientReportsSent(t *testing.T) {
	f := newFanoutFixture(t, "alice", "bob")
	aliceSess, aliceClient := f.connect("alice")
	// bob never connects

	msg, err := f.svc.Send(context.Background(), aliceSess, f.convID.String(), "hi", domain.ContentText, "")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	statusEvents := aliceClient.eventsOfType(t, domain.TypeMessageStatus)
	if len(statusEvents) != 1 {
		t.Fatalf("expected 1 status event, got %d", len(statusEvents))
	}
	update := statusEvents[0]["updates"].([]any)[0].(map[string]any)
	if update["status"] != string(domain.StatusSent) {
		t.Fatalf("no recipient delivered yet: expected sent, got %v", update["status"])
	}

	select {
	case call := <-f.notifier.calls:
		if call.userID != "bob" || call.msgID != msg.ID {
			t.Fatalf("unexpected notify call: %+v", call)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the offline notification handoff")
	}
}

func TestSendAssignsMonotonicSequence(t *testing.T) {
	f := newFanoutFixture(t, "alice", "bob")
	aliceSess, _ := f.connect("alice")
	_, bobClient := f.connect("bob")

	for i := 0; i < 3; i++ {
		if _, err := f.svc.Send(context.Background(), aliceSess, f.convID.String(), "msg", domain.ContentText, ""); err != nil {
			t.Fatalf("Send #%d: %v", i+1, err)
		}
	}

	events := bobClient.eventsOfType(t, domain.TypeMessage)
	if len(events) != 3 {
		t.Fatalf("expected 3 message events, got %d", len(events))
	}
	for i, ev := range events {
		payload := ev["message"].(map[string]any)
		if seq := int64(payload["seq"].(float64)); seq != int64(i+1) {
			t.Fatalf("event %d carries seq %d, broadcasts must leave in seq order", i, seq)
		}
	}
}

func TestSendUpdatesLatestMessagePointer(t *testing.T) {
	f := newFanoutFixture(t, "alice", "bob")
	aliceSess, _ := f.connect("alice")

	msg, err := f.svc.Send(context.Background(), aliceSess, f.convID.String(), "hello", domain.ContentText, "")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if f.convs.latest[f.convID] != msg.ID {
		t.Fatal("latest-message pointer must track the newest send")
	}
}

func TestSendDefaultsContentType(t *testing.T) {
	f := newFanoutFixture(t, "alice", "bob")
	aliceSess, _ := f.connect("alice")

	msg, err := f.svc.Send(context.Background(), aliceSess, f.convID.String(), "hello", "", "")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if msg.ContentType != domain.ContentText {
		t.Fatalf("expected text default, got %q", msg.ContentType)
	}
}
