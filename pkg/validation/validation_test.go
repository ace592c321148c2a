package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"learnhub/pkg/errors"
)

type sample struct {
	ConversationID string `json:"conversationId" validate:"required_without=RecipientID"`
	RecipientID    string `json:"recipientId"`
	Status         string `json:"status" validate:"omitempty,oneof=active archived"`
	Title          string `json:"title" validate:"max=5"`
}

func TestCheck(t *testing.T) {
	cases := []struct {
		in      sample
		message string
	}{
		{sample{ConversationID: "c1"}, ""},
		{sample{RecipientID: "u2"}, ""},
		{sample{}, "conversationId is required when recipientID is empty"},
		{sample{ConversationID: "c1", Status: "gone"}, "status must be one of: active archived"},
		{sample{ConversationID: "c1", Title: "too long"}, "title must be at most 5"},
	}

	for _, tc := range cases {
		err := Check(tc.in)
		if tc.message == "" {
			assert.NoError(t, err)
			continue
		}
		assert.True(t, errors.Is(err, errors.CodeValidation))
		assert.Equal(t, tc.message, errors.As(err).Message)
	}
}
