package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aimerfeng/Gigsy/internal/broker"
	"github.com/aimerfeng/Gigsy/internal/models"
	"github.com/aimerfeng/Gigsy/internal/store"
	"github.com/aimerfeng/Gigsy/internal/store/memory"
	"github.com/aimerfeng/Gigsy/internal/store/storetest"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"pgregory.net/rapid"
)

type fixture struct {
	svc        *Service
	st         store.Store
	alice, bob *models.Profile
	conv       *ConversationResponse
}

func setup(t *testing.T, bus broker.Bus) *fixture {
	t.Helper()
	st := memory.New()
	f := &fixture{svc: NewService(st, bus), st: st}
	f.alice, _ = storetest.NewProfile(t, st, "alice-"+uuid.NewString()[:8]+"@example.com")
	f.bob, _ = storetest.NewProfile(t, st, "bob-"+uuid.NewString()[:8]+"@example.com")

	conv, err := f.svc.CreateConversation(context.Background(), f.alice, &CreateConversationRequest{MemberIDs: []uuid.UUID{f.bob.ID}})
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	f.conv = conv
	return f
}

func (f *fixture) send(t *testing.T, from uuid.UUID, content string) *models.Message {
	t.Helper()
	m, err := f.svc.SendMessage(context.Background(), f.conv.ID, from, &SendMessageRequest{Content: content})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	return m
}

func TestCreateConversation(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	if len(f.conv.Members) != 2 || f.conv.IsGroup {
		t.Errorf("unexpected direct conversation: %+v", f.conv)
	}

	if _, err := f.svc.CreateConversation(ctx, f.alice, &CreateConversationRequest{MemberIDs: []uuid.UUID{f.alice.ID}}); !errors.Is(err, models.ErrValidation) {
		t.Errorf("self-only direct: expected validation error, got %v", err)
	}
	carol, _ := storetest.NewProfile(t, f.st, "carol@example.com")
	if _, err := f.svc.CreateConversation(ctx, f.alice, &CreateConversationRequest{MemberIDs: []uuid.UUID{f.bob.ID, carol.ID}}); !errors.Is(err, models.ErrValidation) {
		t.Errorf("three-member direct: expected validation error, got %v", err)
	}
	if _, err := f.svc.CreateConversation(ctx, f.alice, &CreateConversationRequest{MemberIDs: []uuid.UUID{uuid.New()}}); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("unknown member: expected not found, got %v", err)
	}

	name := "  Raid Team  "
	group, err := f.svc.CreateConversation(ctx, f.alice, &CreateConversationRequest{
		MemberIDs: []uuid.UUID{f.bob.ID, carol.ID, f.bob.ID},
		Name:      &name,
		IsGroup:   true,
	})
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	if len(group.Members) != 3 || group.Name == nil || *group.Name != "Raid Team" {
		t.Errorf("unexpected group: name=%v members=%d", group.Name, len(group.Members))
	}

	list, err := f.svc.ListConversations(ctx, carol)
	if err != nil || len(list) != 1 {
		t.Errorf("ListConversations = %v (%v)", list, err)
	}
}

func TestSendMessage(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	m := f.send(t, f.alice.ID, "  gg  ")
	if m.Content != "gg" || m.Type != models.MessageTypeText || m.Seq == 0 {
		t.Errorf("unexpected message: %+v", m)
	}

	outsider, _ := storetest.NewProfile(t, f.st, "outsider@example.com")
	if _, err := f.svc.SendMessage(ctx, f.conv.ID, outsider.ID, &SendMessageRequest{Content: "hi"}); !errors.Is(err, models.ErrUnauthorized) {
		t.Errorf("non-member: expected unauthorized, got %v", err)
	}
	if _, err := f.svc.SendMessage(ctx, f.conv.ID, f.alice.ID, &SendMessageRequest{Content: "   "}); !errors.Is(err, models.ErrValidation) {
		t.Errorf("blank content: expected validation error, got %v", err)
	}
	if _, err := f.svc.SendMessage(ctx, f.conv.ID, f.alice.ID, &SendMessageRequest{Content: "x", Type: models.MessageTypeSystem}); !errors.Is(err, models.ErrValidation) {
		t.Errorf("system type: expected validation error, got %v", err)
	}
	if _, err := f.svc.SendMessage(ctx, uuid.New(), f.alice.ID, &SendMessageRequest{Content: "x"}); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("missing conversation: expected not found, got %v", err)
	}

	bob, err := f.st.Conversations().GetMember(ctx, f.conv.ID, f.bob.ID)
	if err != nil {
		t.Fatalf("GetMember failed: %v", err)
	}
	if bob.LastSeenMessageID != nil || bob.LastSeenSeq != 0 {
		t.Error("sending must not move another member's read pointer")
	}
}

func TestListMessagesCursor(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	var sent []*models.Message
	for _, text := range []string{"one", "two", "three"} {
		sent = append(sent, f.send(t, f.alice.ID, text))
	}

	all, err := f.svc.ListMessages(ctx, f.conv.ID, f.bob.ID, 0, 0)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(all) != 3 || all[0].Content != "one" || all[2].Content != "three" {
		t.Fatalf("unexpected order: %v", all)
	}

	after, err := f.svc.ListMessages(ctx, f.conv.ID, f.bob.ID, sent[0].Seq, 1)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(after) != 1 || after[0].ID != sent[1].ID {
		t.Errorf("cursor page = %v", after)
	}

	outsider, _ := storetest.NewProfile(t, f.st, "outsider@example.com")
	if _, err := f.svc.ListMessages(ctx, f.conv.ID, outsider.ID, 0, 10); !errors.Is(err, ErrNotMember) {
		t.Errorf("expected ErrNotMember, got %v", err)
	}
}

func TestMarkSeen(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	first := f.send(t, f.alice.ID, "first")
	second := f.send(t, f.alice.ID, "second")

	m, err := f.svc.MarkSeen(ctx, f.conv.ID, f.bob.ID, second.ID)
	if err != nil {
		t.Fatalf("MarkSeen failed: %v", err)
	}
	if m.LastSeenMessageID == nil || *m.LastSeenMessageID != second.ID {
		t.Fatalf("pointer = %v, want %s", m.LastSeenMessageID, second.ID)
	}

	m, err = f.svc.MarkSeen(ctx, f.conv.ID, f.bob.ID, first.ID)
	if err != nil {
		t.Fatalf("MarkSeen failed: %v", err)
	}
	if *m.LastSeenMessageID != second.ID {
		t.Error("marking an older message regressed the pointer")
	}

	other := setup(t, nil)
	foreign := other.send(t, other.alice.ID, "elsewhere")
	if _, err := f.svc.MarkSeen(ctx, f.conv.ID, f.bob.ID, foreign.ID); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("foreign message: expected ErrMessageNotFound, got %v", err)
	}
}

// TestProperty_MarkSeenMonotonic tests the read pointer ordering.
// *For any* sequence of MarkSeen calls over a conversation's messages, the
// stored pointer SHALL equal the message with the highest sequence seen so far.
func TestProperty_MarkSeenMonotonic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := setup(t, nil)
		ctx := context.Background()

		n := rapid.IntRange(1, 8).Draw(rt, "messages")
		msgs := make([]*models.Message, n)
		for i := range msgs {
			msgs[i] = f.send(t, f.alice.ID, "m")
		}

		var best *models.Message
		marks := rapid.SliceOfN(rapid.IntRange(0, n-1), 1, 20).Draw(rt, "marks")
		for _, i := range marks {
			got, err := f.svc.MarkSeen(ctx, f.conv.ID, f.bob.ID, msgs[i].ID)
			if err != nil {
				rt.Fatalf("MarkSeen failed: %v", err)
			}
			if best == nil || msgs[i].Seq > best.Seq {
				best = msgs[i]
			}
			if got.LastSeenMessageID == nil || *got.LastSeenMessageID != best.ID || got.LastSeenSeq != best.Seq {
				rt.Fatalf("PROPERTY VIOLATION: pointer %v, want %s", got.LastSeenMessageID, best.ID)
			}
		}
	})
}

func TestHubDeliversMessages(t *testing.T) {
	bus := broker.NewLocalBus()
	f := setup(t, bus)
	hub, err := NewHub(bus)
	if err != nil {
		t.Fatalf("NewHub failed: %v", err)
	}
	defer hub.Close()

	upgrader := NewUpgrader([]string{"*"})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Serve(r.Context(), conn, f.conv.ID)
	}))
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer ws.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers(f.conv.ID) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	sent := f.send(t, f.bob.ID, "ready check")

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	var got models.Message
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("failed to decode pushed message: %v", err)
	}
	if got.ID != sent.ID || got.Content != "ready check" {
		t.Errorf("pushed %+v, want %s", got, sent.ID)
	}
}

func TestHubIgnoresOtherConversations(t *testing.T) {
	hub, err := NewHub(broker.NewLocalBus())
	if err != nil {
		t.Fatalf("NewHub failed: %v", err)
	}
	defer hub.Close()

	c := &client{send: make(chan []byte, 1)}
	room := uuid.New()
	hub.add(room, c)

	data, _ := json.Marshal(&models.Message{ID: uuid.New(), ConversationID: uuid.New(), Content: "x"})
	hub.dispatch(context.Background(), broker.SubjectMessageCreated, data)
	select {
	case <-c.send:
		t.Error("message for another conversation was delivered")
	default:
	}

	hub.remove(room, c)
	if hub.Subscribers(room) != 0 {
		t.Error("subscriber not removed")
	}
}

func TestUpgraderOrigins(t *testing.T) {
	up := NewUpgrader([]string{"https://gigsy.gg"})
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	r.Header.Set("Origin", "https://gigsy.gg")
	if !up.CheckOrigin(r) {
		t.Error("allowed origin rejected")
	}
	r.Header.Set("Origin", "https://evil.example")
	if up.CheckOrigin(r) {
		t.Error("foreign origin accepted")
	}
}
