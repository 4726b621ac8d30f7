// Package delivery drives the sent -> delivered -> seen receipt machine over the message store.
package delivery

import (
	"context"
	"fmt"
	"slices"

	"chat-realtime/internal/models"
	"chat-realtime/internal/observability"
	"chat-realtime/internal/repositories"
)

// Trigger names what caused a receipt batch.
type Trigger string

const (
	TriggerSend      Trigger = "send"
	TriggerReconnect Trigger = "reconnect"
	TriggerJoin      Trigger = "join"
	TriggerRead      Trigger = "read"
)

// Batch is the set of messages one sender should hear about for one chat.
type Batch struct {
	ChatID     int
	SenderID   int
	MessageIDs []int
}

// Service applies receipt transitions. All store writes are single set-based batches.
type Service struct {
	messages repositories.MessageRepository
}

func NewService(messages repositories.MessageRepository) *Service {
	return &Service{messages: messages}
}

// Candidates returns the participants other than the sender for which eligible is true,
// in participant order. Eligibility is "online and in the chat room" at creation time.
func Candidates(chat models.Chat, senderID int, eligible func(userID int) bool) []int {
	out := []int{}
	for _, id := range chat.OtherParticipants(senderID) {
		if eligible(id) {
			out = append(out, id)
		}
	}
	return out
}

// DeliverOnCreate marks a fresh message delivered to recipients and returns it updated.
// With no recipients the message is returned unchanged with status sent.
func (s *Service) DeliverOnCreate(ctx context.Context, msg models.Message, recipients []int) (models.Message, error) {
	if len(recipients) == 0 {
		return msg, nil
	}
	if err := s.messages.MarkDelivered(ctx, []int{msg.ID}, recipients...); err != nil {
		return msg, fmt.Errorf("mark delivered on send: %w", err)
	}
	msg.MarkDelivered(recipients...)
	observability.AddReceipts(string(models.StatusDelivered), string(TriggerSend), 1)
	return msg, nil
}

// DeliverBacklog marks every pending message of every chat of userID delivered to userID.
// It returns one batch per chat and sender so each sender can be told about their own messages.
func (s *Service) DeliverBacklog(ctx context.Context, userID int) ([]Batch, error) {
	refs, err := s.messages.FindUndeliveredTo(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find undelivered: %w", err)
	}
	if len(refs) == 0 {
		return nil, nil
	}
	if err := s.messages.MarkDelivered(ctx, models.RefIDs(refs), userID); err != nil {
		return nil, fmt.Errorf("mark backlog delivered: %w", err)
	}
	observability.AddReceipts(string(models.StatusDelivered), string(TriggerReconnect), len(refs))
	return GroupBySender(refs), nil
}

// MarkChatSeen marks every message in chatID authored by others and not yet seen by viewerID
// as seen, and returns the affected messages grouped by sender.
func (s *Service) MarkChatSeen(ctx context.Context, chatID int, viewerID int, trigger Trigger) ([]Batch, error) {
	refs, err := s.messages.FindUnseenBy(ctx, chatID, viewerID)
	if err != nil {
		return nil, fmt.Errorf("find unseen: %w", err)
	}
	if len(refs) == 0 {
		return nil, nil
	}
	if err := s.messages.MarkSeen(ctx, models.RefIDs(refs), viewerID); err != nil {
		return nil, fmt.Errorf("mark seen: %w", err)
	}
	observability.AddReceipts(string(models.StatusSeen), string(trigger), len(refs))
	return GroupBySender(refs), nil
}

// GroupBySender splits refs into batches keyed by (chat, sender), in order of first appearance.
func GroupBySender(refs []models.MessageRef) []Batch {
	type key struct{ chat, sender int }
	var batches []Batch
	index := map[key]int{}
	for _, ref := range refs {
		k := key{ref.ChatID, ref.SenderID}
		i, ok := index[k]
		if !ok {
			i = len(batches)
			index[k] = i
			batches = append(batches, Batch{ChatID: ref.ChatID, SenderID: ref.SenderID})
		}
		batches[i].MessageIDs = append(batches[i].MessageIDs, ref.ID)
	}
	for i := range batches {
		slices.Sort(batches[i].MessageIDs)
	}
	return batches
}

// AllIDs flattens the message ids of batches.
func AllIDs(batches []Batch) []int {
	ids := []int{}
	for _, b := range batches {
		ids = append(ids, b.MessageIDs...)
	}
	slices.Sort(ids)
	return ids
}
