package repository

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"learnhub/internal/domain/entity"
	"learnhub/pkg/errors"
)

// MaxBodyLength is the longest message body accepted, in characters.
const MaxBodyLength = 4000

// Rules shared by the Firestore and in-memory stores so both reject the same
// inputs with the same codes.

func validatePair(userA, userB string) error {
	if userA == "" || userB == "" {
		return errors.Validation("both participants are required")
	}
	if userA == userB {
		return errors.Validation("cannot start a conversation with yourself")
	}
	return nil
}

func groupMembers(creatorID string, participants []string) ([]string, error) {
	seen := map[string]bool{creatorID: true}
	members := []string{creatorID}
	for _, p := range participants {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		members = append(members, p)
	}
	if len(members) < 2 {
		return nil, errors.Validation("a group needs at least one other participant")
	}
	return members, nil
}

func checkWritable(conv *entity.Conversation, senderID string) error {
	if !conv.HasParticipant(senderID) {
		return errors.NotParticipant(conv.ID)
	}
	if !conv.IsActive() {
		return errors.ConversationInactive(conv.ID)
	}
	return nil
}

func validateContent(in entity.NewMessage) error {
	if strings.TrimSpace(in.Body) == "" && in.Attachment == nil {
		return errors.Validation("message must have a body or an attachment")
	}
	if utf8.RuneCountInString(in.Body) > MaxBodyLength {
		return errors.Validation("message body is too long")
	}
	switch in.Type {
	case "", entity.MessageText, entity.MessageImage, entity.MessageFile:
	default:
		return errors.Validation("unknown message type")
	}
	if in.Type == entity.MessageText && in.Attachment != nil {
		return errors.Validation("text messages cannot carry an attachment")
	}
	return nil
}

func messageType(in entity.NewMessage) entity.MessageType {
	if in.Type != "" {
		return in.Type
	}
	if in.Attachment == nil {
		return entity.MessageText
	}
	if strings.HasPrefix(in.Attachment.MimeType, "image/") {
		return entity.MessageImage
	}
	return entity.MessageFile
}

// timestamp drops precision Firestore cannot store, so a value read back
// equals the value written.
func timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// nextTimestamp keeps createdAt non-decreasing within a conversation even if
// the wall clock steps backwards.
func nextTimestamp(now, last time.Time) time.Time {
	ts := timestamp(now)
	if ts.Before(last) {
		return last
	}
	return ts
}

func sortSummaries(summaries []*entity.ConversationSummary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		if !a.LastMessageAt.Equal(b.LastMessageAt) {
			return a.LastMessageAt.After(b.LastMessageAt)
		}
		return a.ID < b.ID
	})
}
