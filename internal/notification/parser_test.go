package notification_test

import (
	"encoding/json"
	"testing"

	"github.com/sideshow/apns2/payload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CristianMarastoni/GameThrive-Unity-SDK/internal/notification"
	"github.com/CristianMarastoni/GameThrive-Unity-SDK/pkg/push"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name        string
		raw         map[string]any
		expectedID  string
		expectedMsg string
		expectedAdd map[string]any
	}{
		{
			name:        "Flat without id",
			raw:         map[string]any{"contents": "Hi", "data": map[string]any{"foo": "bar"}},
			expectedMsg: "Hi",
			expectedAdd: map[string]any{"foo": "bar"},
		},
		{
			name:        "Flat with id and language map",
			raw:         map[string]any{"id": "N1", "contents": map[string]any{"fr": "Salut", "en": "Hello"}},
			expectedID:  "N1",
			expectedMsg: "Hello",
		},
		{
			name:        "Language map without English picks first language",
			raw:         map[string]any{"contents": map[string]any{"fr": "Salut", "de": "Hallo"}},
			expectedMsg: "Hallo",
		},
		{
			name: "Android envelope",
			raw: map[string]any{
				"alert":  "Level up!",
				"custom": `{"i":"N2","a":{"level":"7"}}`,
			},
			expectedID:  "N2",
			expectedMsg: "Level up!",
			expectedAdd: map[string]any{"level": "7"},
		},
		{
			name: "iOS envelope with plain alert",
			raw: map[string]any{
				"aps":    map[string]any{"alert": "Sale"},
				"custom": map[string]any{"i": "N3"},
			},
			expectedID:  "N3",
			expectedMsg: "Sale",
		},
		{
			name:        "Unknown fields are ignored",
			raw:         map[string]any{"contents": "Hi", "priority": 10, "headings": "x"},
			expectedMsg: "Hi",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := notification.Parse(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.expectedID, got.NotificationID)
			assert.Equal(t, tc.expectedMsg, got.Message)
			if tc.expectedAdd == nil {
				assert.Empty(t, got.AdditionalData())
			} else {
				assert.Equal(t, tc.expectedAdd, got.AdditionalData())
			}
		})
	}
}

func TestParseJSON_APNsPayload(t *testing.T) {
	// Built the way a server would build it with apns2
	p := payload.NewPayload().
		AlertTitle("Shop").
		AlertBody("Hi").
		Custom("custom", map[string]any{"i": "N4", "a": map[string]any{"foo": "bar"}})
	raw, err := json.Marshal(p)
	require.NoError(t, err)

	got, err := notification.ParseJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, "N4", got.NotificationID)
	assert.Equal(t, "Hi", got.Message)
	assert.Equal(t, map[string]any{"foo": "bar"}, got.AdditionalData())
}

func TestParse_Errors(t *testing.T) {
	testCases := []struct {
		name string
		raw  []byte
	}{
		{name: "Not JSON", raw: []byte("not-json")},
		{name: "Null", raw: []byte("null")},
		{name: "Broken Android custom", raw: []byte(`{"alert":"x","custom":"{not json"}`)},
		{name: "Custom of wrong type", raw: []byte(`{"custom":42}`)},
		{name: "Data of wrong type", raw: []byte(`{"contents":"x","data":"oops"}`)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := notification.ParseJSON(tc.raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, push.ErrSerialization)
		})
	}
}
