package notifications

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eternisai/group-notifier/internal/logger"
)

type fakeSender struct {
	calls   []*messaging.MulticastMessage
	failAt  int // 1-based call number that returns a transport error, 0 for never
	respond func(msg *messaging.MulticastMessage) *messaging.BatchResponse
}

func (f *fakeSender) SendEachForMulticast(_ context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	f.calls = append(f.calls, msg)
	if f.failAt == len(f.calls) {
		return nil, errors.New("connection reset")
	}
	if f.respond != nil {
		return f.respond(msg), nil
	}
	resp := &messaging.BatchResponse{}
	for _, token := range msg.Tokens {
		resp.Responses = append(resp.Responses, &messaging.SendResponse{Success: true, MessageID: "id-" + token})
		resp.SuccessCount++
	}
	return resp, nil
}

func tokenList(n int) []string {
	tokens := make([]string, n)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("tok%d", i)
	}
	return tokens
}

func TestSendMulticastPositionalOutcomes(t *testing.T) {
	sender := &fakeSender{
		respond: func(msg *messaging.MulticastMessage) *messaging.BatchResponse {
			return &messaging.BatchResponse{Responses: []*messaging.SendResponse{
				{Success: true, MessageID: "m1"},
				{Success: false, Error: errors.New("boom")},
			}}
		},
	}
	gw := NewGateway(sender, logger.Discard(), true)

	outcomes, err := gw.SendMulticast(context.Background(), NewMatch("g1"), []string{"tokA", "tokB"})
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	assert.Equal(t, "tokA", outcomes[0].Token)
	assert.True(t, outcomes[0].Success)
	assert.Equal(t, "m1", outcomes[0].MessageID)

	assert.Equal(t, "tokB", outcomes[1].Token)
	assert.False(t, outcomes[1].Success)
	assert.Equal(t, ReasonOther, outcomes[1].Reason)
	assert.False(t, outcomes[1].Permanent())

	require.Len(t, sender.calls, 1)
	assert.Contains(t, sender.calls[0].Data, "notifee")
}

func TestSendMulticastChunksLargeTokenLists(t *testing.T) {
	sender := &fakeSender{}
	gw := NewGateway(sender, logger.Discard(), true)

	tokens := tokenList(MaxMulticastTokens*2 + 7)
	outcomes, err := gw.SendMulticast(context.Background(), NewMatch("g1"), tokens)
	require.NoError(t, err)

	require.Len(t, sender.calls, 3)
	assert.Len(t, sender.calls[0].Tokens, MaxMulticastTokens)
	assert.Len(t, sender.calls[1].Tokens, MaxMulticastTokens)
	assert.Len(t, sender.calls[2].Tokens, 7)

	require.Len(t, outcomes, len(tokens))
	for i, o := range outcomes {
		assert.Equal(t, tokens[i], o.Token)
		assert.Equal(t, "id-"+tokens[i], o.MessageID)
	}
}

func TestSendMulticastTransportFailure(t *testing.T) {
	sender := &fakeSender{failAt: 2}
	gw := NewGateway(sender, logger.Discard(), true)

	tokens := tokenList(MaxMulticastTokens + 1)
	outcomes, err := gw.SendMulticast(context.Background(), NewMatch("g1"), tokens)
	require.Error(t, err)

	// The first chunk was sent, so its outcomes survive the second chunk's failure.
	require.Len(t, outcomes, MaxMulticastTokens)
	for i, o := range outcomes {
		assert.Equal(t, tokens[i], o.Token)
		assert.True(t, o.Success)
	}
}

func TestSendMulticastFirstChunkTransportFailure(t *testing.T) {
	sender := &fakeSender{failAt: 1}
	gw := NewGateway(sender, logger.Discard(), true)

	outcomes, err := gw.SendMulticast(context.Background(), NewMatch("g1"), []string{"a", "b"})
	require.Error(t, err)
	assert.Empty(t, outcomes)
}

func TestSendMulticastShortResponse(t *testing.T) {
	sender := &fakeSender{
		respond: func(msg *messaging.MulticastMessage) *messaging.BatchResponse {
			return &messaging.BatchResponse{Responses: []*messaging.SendResponse{{Success: true}}}
		},
	}
	gw := NewGateway(sender, logger.Discard(), true)

	outcomes, err := gw.SendMulticast(context.Background(), NewMatch("g1"), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.True(t, outcomes[0].Success)
	assert.False(t, outcomes[1].Success)
	assert.Error(t, outcomes[1].Err)
}

func TestSendMulticastDisabled(t *testing.T) {
	sender := &fakeSender{}
	gw := NewGateway(sender, logger.Discard(), false)

	outcomes, err := gw.SendMulticast(context.Background(), NewMatch("g1"), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, outcomes, 2)
	assert.Empty(t, sender.calls)
}

func TestSendMulticastNoTokens(t *testing.T) {
	sender := &fakeSender{}
	gw := NewGateway(sender, logger.Discard(), true)

	outcomes, err := gw.SendMulticast(context.Background(), NewMatch("g1"), nil)
	require.NoError(t, err)
	assert.Empty(t, outcomes)
	assert.Empty(t, sender.calls)
}

func TestClassifyPlainErrors(t *testing.T) {
	assert.Equal(t, ReasonOther, classify(nil))
	assert.Equal(t, ReasonOther, classify(errors.New("unexpected")))
}
