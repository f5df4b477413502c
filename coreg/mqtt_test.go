package coreg

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitMQTT_Disabled(t *testing.T) {
	// No MQTT_BROKER env var and no broker in the config
	t.Setenv("MQTT_BROKER", "")
	config := &Config{
		Entries: []EntryConfig{
			{ID: "xrd", Topic: "lab/xrd/rows"},
		},
	}

	handler := func(string, *RowBatch, error) {}

	client, err := InitMQTT(config, handler)
	assert.NoError(t, err)
	assert.Nil(t, client)
}

func TestInitMQTT_NoEntries(t *testing.T) {
	// Broker set but no entries configured
	config := &Config{
		MQTT: MQTTConfig{
			Broker: "mqtt://localhost:1883",
		},
		Entries: []EntryConfig{},
	}

	handler := func(string, *RowBatch, error) {}

	_, err := InitMQTT(config, handler)
	assert.Error(t, err)
}

func TestMQTTClient_IsConnected(t *testing.T) {
	client := &MQTTClient{}
	assert.False(t, client.IsConnected(), "New client should not be connected")

	client.setConnected(true)
	assert.True(t, client.IsConnected(), "Client should be connected after setConnected(true)")

	client.setConnected(false)
	assert.False(t, client.IsConnected(), "Client should not be connected after setConnected(false)")
}

func TestMQTTClient_GetEntryByTopic(t *testing.T) {
	config := &Config{
		Entries: []EntryConfig{
			{ID: "xrd", Topic: "lab/xrd/rows"},
			{ID: "edx", Topic: "lab/edx/rows"},
		},
	}

	client := &MQTTClient{config: config}

	tests := []struct {
		name   string
		topic  string
		wantID string
		wantOK bool
	}{
		{
			name:   "valid xrd topic",
			topic:  "lab/xrd/rows",
			wantID: "xrd",
			wantOK: true,
		},
		{
			name:   "valid edx topic",
			topic:  "lab/edx/rows",
			wantID: "edx",
			wantOK: true,
		},
		{
			name:   "unknown topic",
			topic:  "lab/unknown/rows",
			wantID: "",
			wantOK: false,
		},
		{
			name:   "empty topic",
			topic:  "",
			wantID: "",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := client.GetEntryByTopic(tt.topic)
			assert.Equal(t, tt.wantID, id)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestBatchHandler_Integration(t *testing.T) {
	mockClient := NewMockClient()
	mockClient.SetConnected(true)

	config := &Config{
		Entries: []EntryConfig{
			{ID: "xrd", Topic: "lab/xrd/rows"},
		},
	}

	var mu sync.Mutex
	var gotEntry string
	var gotBatch *RowBatch
	var gotErr error

	handler := func(entryID string, batch *RowBatch, err error) {
		mu.Lock()
		defer mu.Unlock()
		gotEntry = entryID
		gotBatch = batch
		gotErr = err
	}

	client := newMQTTClientWithMock(mockClient, config, handler)
	client.onConnect(mockClient)

	payload := `{"entry": "xrd", "unit": "mm", "rows": [{"positionKey": "(-2.5, 2.5)"}]}`
	mockClient.SimulateMessage("lab/xrd/rows", []byte(payload))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "xrd", gotEntry)
	assert.NoError(t, gotErr)
	if assert.NotNil(t, gotBatch) {
		assert.Equal(t, "xrd", gotBatch.Entry)
		assert.Len(t, gotBatch.Rows, 1)
		assert.Equal(t, "(-2.5, 2.5)", gotBatch.Rows[0].PositionKey)
	}
}

func TestBatchHandler_InvalidPayload(t *testing.T) {
	mockClient := NewMockClient()
	mockClient.SetConnected(true)

	config := &Config{
		Entries: []EntryConfig{
			{ID: "xrd", Topic: "lab/xrd/rows"},
		},
	}

	var mu sync.Mutex
	var gotBatch *RowBatch
	var gotErr error

	handler := func(entryID string, batch *RowBatch, err error) {
		mu.Lock()
		defer mu.Unlock()
		gotBatch = batch
		gotErr = err
	}

	client := newMQTTClientWithMock(mockClient, config, handler)
	client.onConnect(mockClient)

	mockClient.SimulateMessage("lab/xrd/rows", []byte("{not json"))

	mu.Lock()
	defer mu.Unlock()
	assert.Error(t, gotErr)
	assert.Nil(t, gotBatch)
}

func TestBatchHandler_NilHandler(t *testing.T) {
	mockClient := NewMockClient()
	mockClient.SetConnected(true)

	config := &Config{
		Entries: []EntryConfig{
			{ID: "xrd", Topic: "lab/xrd/rows"},
		},
	}

	client := newMQTTClientWithMock(mockClient, config, nil)
	client.onConnect(mockClient)

	// Must not panic with no handler installed.
	mockClient.SimulateMessage("lab/xrd/rows", []byte(`{"entry": "xrd", "rows": []}`))
	mockClient.SimulateMessage("lab/xrd/rows", []byte("{not json"))
}

func TestOnConnect_SkipsTopiclessEntries(t *testing.T) {
	mockClient := NewMockClient()
	mockClient.SetConnected(true)

	config := &Config{
		Entries: []EntryConfig{
			{ID: "xrd", Topic: "lab/xrd/rows"},
			{ID: "offline"}, // file-based entry, no topic
		},
	}

	var count atomic.Int32
	handler := func(string, *RowBatch, error) {
		count.Add(1)
	}

	client := newMQTTClientWithMock(mockClient, config, handler)
	client.onConnect(mockClient)

	mockClient.SimulateMessage("lab/xrd/rows", []byte(`{"entry": "xrd", "rows": []}`))
	assert.Equal(t, int32(1), count.Load())
}

func TestMQTTClient_ConcurrentAccess(t *testing.T) {
	client := &MQTTClient{}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(connected bool) {
			defer wg.Done()
			client.setConnected(connected)
		}(i%2 == 0)
		go func() {
			defer wg.Done()
			client.IsConnected()
		}()
	}
	wg.Wait()
}

func TestMQTTClient_GetClient(t *testing.T) {
	mockClient := NewMockClient()
	client := newMQTTClientWithMock(mockClient, &Config{}, nil)
	assert.Equal(t, mockClient, client.GetClient())
}

func TestMQTTConfig_FromEnvAndConfig(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")

	config := &Config{
		MQTT: MQTTConfig{
			Broker: "tcp://config-broker:1883",
		},
		Entries: []EntryConfig{
			{ID: "xrd", Topic: "lab/xrd/rows"},
		},
	}

	client, err := InitMQTT(config, nil)
	assert.NoError(t, err)
	if assert.NotNil(t, client) {
		// InitMQTT returns immediately; connection happens in the background.
		assert.False(t, client.IsConnected())
		client.Disconnect()
	}
}

func TestMQTTDisconnect_NotConnected(t *testing.T) {
	mockClient := NewMockClient()
	client := newMQTTClientWithMock(mockClient, &Config{}, nil)

	// Disconnecting an unconnected client is a no-op.
	client.Disconnect()
	assert.False(t, client.IsConnected())
}
