package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/seller-scraper/internal/models"
)

type MockStreamClient struct {
	mock.Mock
}

func (m *MockStreamClient) XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd {
	args := m.Called(ctx, stream, group, start)
	cmd := redis.NewStatusCmd(ctx)
	if err := args.Error(0); err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal("OK")
	}
	return cmd
}

func (m *MockStreamClient) XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	args := m.Called(ctx, a)
	cmd := redis.NewXStreamSliceCmd(ctx)
	if err := args.Error(1); err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(args.Get(0).([]redis.XStream))
	}
	return cmd
}

func (m *MockStreamClient) XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd {
	args := m.Called(ctx, stream, group, ids)
	cmd := redis.NewIntCmd(ctx)
	if err := args.Error(0); err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(int64(len(ids)))
	}
	return cmd
}

func sellerMessage(t *testing.T, id string, payload SellerExtractedPayload) redis.XMessage {
	t.Helper()
	data, err := json.Marshal(map[string]interface{}{
		"id":      id,
		"type":    string(EventTypeSellerExtracted),
		"payload": payload,
	})
	require.NoError(t, err)

	return redis.XMessage{
		ID: id,
		Values: map[string]interface{}{
			"data":       string(data),
			"event_type": string(EventTypeSellerExtracted),
		},
	}
}

func samplePayload() SellerExtractedPayload {
	return SellerExtractedPayload{
		EventType:   string(EventTypeSellerExtracted),
		SellerKey:   "seller:A1B2C3",
		Seller:      models.SellerRecord{SellerName: "ShopA", Phone: "03-1234-5678"},
		FoundFields: 1,
		ProductURL:  "https://www.amazon.co.jp/dp/B000000001",
		Source:      sourceScraper,
	}
}

func TestDecodeMessage(t *testing.T) {
	t.Run("seller event", func(t *testing.T) {
		event, err := DecodeMessage(sellerMessage(t, "1-0", samplePayload()))
		require.NoError(t, err)
		require.NotNil(t, event)
		assert.Equal(t, "seller:A1B2C3", event.SellerKey)
		assert.Equal(t, "03-1234-5678", event.Seller.Phone)
	})

	t.Run("other event types are ignored", func(t *testing.T) {
		event, err := DecodeMessage(redis.XMessage{
			ID:     "1-0",
			Values: map[string]interface{}{"event_type": "PRODUCT_CREATED", "data": "{}"},
		})
		assert.NoError(t, err)
		assert.Nil(t, event)
	})

	tests := []struct {
		name   string
		values map[string]interface{}
	}{
		{"missing data", map[string]interface{}{"event_type": string(EventTypeSellerExtracted)}},
		{"bad json", map[string]interface{}{"event_type": string(EventTypeSellerExtracted), "data": "{"}},
		{"missing seller key", map[string]interface{}{"event_type": string(EventTypeSellerExtracted), "data": `{"payload":{}}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeMessage(redis.XMessage{ID: "1-0", Values: tt.values})
			assert.ErrorIs(t, err, ErrMalformedMessage)
		})
	}
}

func TestConsumer_Poll(t *testing.T) {
	ctx := context.Background()

	t.Run("acks handled and malformed messages", func(t *testing.T) {
		client := new(MockStreamClient)
		var got []string
		consumer := NewConsumer(client, func(ctx context.Context, event *SellerExtractedPayload) error {
			got = append(got, event.SellerKey)
			return nil
		}, ConsumerConfig{}, nil)

		client.On("XReadGroup", ctx, mock.AnythingOfType("*redis.XReadGroupArgs")).Return([]redis.XStream{{
			Stream: "stream:seller_events",
			Messages: []redis.XMessage{
				sellerMessage(t, "1-0", samplePayload()),
				{ID: "2-0", Values: map[string]interface{}{"event_type": string(EventTypeSellerExtracted)}},
			},
		}}, nil)
		client.On("XAck", ctx, "stream:seller_events", "seller-consumer-group", []string{"1-0"}).Return(nil)
		client.On("XAck", ctx, "stream:seller_events", "seller-consumer-group", []string{"2-0"}).Return(nil)

		n, err := consumer.poll(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, []string{"seller:A1B2C3"}, got)
		client.AssertExpectations(t)
	})

	t.Run("handler failure leaves message pending", func(t *testing.T) {
		client := new(MockStreamClient)
		consumer := NewConsumer(client, func(ctx context.Context, event *SellerExtractedPayload) error {
			return errors.New("downstream unavailable")
		}, ConsumerConfig{}, nil)

		client.On("XReadGroup", ctx, mock.Anything).Return([]redis.XStream{{
			Stream:   "stream:seller_events",
			Messages: []redis.XMessage{sellerMessage(t, "1-0", samplePayload())},
		}}, nil)

		n, err := consumer.poll(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		client.AssertNotCalled(t, "XAck", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("empty read", func(t *testing.T) {
		client := new(MockStreamClient)
		consumer := NewConsumer(client, nil, ConsumerConfig{}, nil)
		client.On("XReadGroup", ctx, mock.Anything).Return([]redis.XStream(nil), redis.Nil)

		n, err := consumer.poll(ctx)
		assert.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestConsumer_Run(t *testing.T) {
	t.Run("stops on cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		client := new(MockStreamClient)
		handled := 0
		consumer := NewConsumer(client, func(ctx context.Context, event *SellerExtractedPayload) error {
			handled++
			return nil
		}, ConsumerConfig{Stream: "stream:test", Group: "g"}, nil)

		client.On("XGroupCreateMkStream", ctx, "stream:test", "g", "0").
			Return(errors.New("BUSYGROUP Consumer Group name already exists"))
		client.On("XReadGroup", ctx, mock.Anything).Return([]redis.XStream{{
			Stream:   "stream:test",
			Messages: []redis.XMessage{sellerMessage(t, "1-0", samplePayload())},
		}}, nil).Once()
		client.On("XReadGroup", ctx, mock.Anything).Return([]redis.XStream(nil), redis.Nil).
			Run(func(mock.Arguments) { cancel() })
		client.On("XAck", ctx, "stream:test", "g", []string{"1-0"}).Return(nil)

		err := consumer.Run(ctx)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, handled)
	})

	t.Run("group creation failure", func(t *testing.T) {
		ctx := context.Background()
		client := new(MockStreamClient)
		consumer := NewConsumer(client, nil, ConsumerConfig{}, nil)

		client.On("XGroupCreateMkStream", ctx, "stream:seller_events", "seller-consumer-group", "0").
			Return(errors.New("connection refused"))

		err := consumer.Run(ctx)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create consumer group")
	})
}
