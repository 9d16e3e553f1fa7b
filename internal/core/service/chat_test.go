package service

import (
	"context"
	"testing"

	"github.com/stayconnect/stayconnect/internal/adapter/driven/store/memory"
)

func TestSendMessagePersistsAndDelivers(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	gw := &fakeGateway{}
	chat := NewChatService(store, gw)

	msg, err := chat.SendMessage(ctx, alice.UID, bob.UID, "hey")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if msg.ID == "" {
		t.Error("no message id assigned")
	}

	conv, err := chat.Conversation(ctx, bob.UID, alice.UID)
	if err != nil {
		t.Fatalf("Conversation: %v", err)
	}
	if len(conv) != 1 || conv[0].Content != "hey" {
		t.Fatalf("conversation = %+v, want the saved message", conv)
	}

	if len(gw.messages) != 1 || gw.messages[0].ID != msg.ID {
		t.Errorf("gateway deliveries = %+v, want the sent message", gw.messages)
	}
}

func TestSendMessageRejectsEmptyContent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	gw := &fakeGateway{}
	chat := NewChatService(store, gw)

	if _, err := chat.SendMessage(ctx, alice.UID, bob.UID, ""); err == nil {
		t.Fatal("empty message accepted")
	}
	if len(gw.messages) != 0 {
		t.Error("empty message reached the gateway")
	}
}

func TestConversationIsSymmetric(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	chat := NewChatService(store, &fakeGateway{})

	chat.SendMessage(ctx, alice.UID, bob.UID, "one")
	chat.SendMessage(ctx, bob.UID, alice.UID, "two")
	chat.SendMessage(ctx, alice.UID, "carol", "elsewhere")

	conv, _ := chat.Conversation(ctx, alice.UID, bob.UID)
	if len(conv) != 2 {
		t.Fatalf("len = %d, want both directions and nothing else", len(conv))
	}
}
