package activity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFullEnvelope(t *testing.T) {
	raw := map[string]any{
		"id":        "abc-123",
		"published": "2016-01-01T00:00:00Z",
		"verb":      "message",
		"actor": map[string]any{
			"id":          "1234",
			"displayName": B64Encode("Joe"),
			"url":         "room-a",
		},
		"object": map[string]any{
			"url":     "channel-c",
			"content": B64Encode("hello"),
		},
		"target": map[string]any{
			"id":         "room-b",
			"objectType": "room",
		},
		"provider": map[string]any{
			"url": "channel-c",
		},
	}

	act, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "abc-123", act.ID)
	assert.Equal(t, "message", act.Verb)
	assert.Equal(t, "1234", act.ActorID())
	assert.Equal(t, "room-b", act.TargetID())
	assert.Equal(t, "room", act.Target.ObjectType)
	assert.Equal(t, "channel-c", act.ObjectURL())
	assert.Equal(t, "channel-c", act.ProviderURL())
}

func TestParsePartialEnvelope(t *testing.T) {
	act, err := Parse(map[string]any{"verb": "login"})
	require.NoError(t, err)

	assert.Equal(t, "login", act.Verb)
	assert.Empty(t, act.ActorID())
	assert.Empty(t, act.TargetID())
	assert.Empty(t, act.ObjectURL())
	assert.Empty(t, act.ProviderURL())
}

func TestParseRejectsWrongShapes(t *testing.T) {
	_, err := Parse(map[string]any{"actor": "not-an-object"})
	require.Error(t, err)
}

func TestAccessorsOnNil(t *testing.T) {
	var act *Activity
	assert.Empty(t, act.ActorID())
	assert.Empty(t, act.TargetID())
	assert.Empty(t, act.ObjectURL())
	assert.Empty(t, act.ProviderURL())
}

func TestB64RoundTrip(t *testing.T) {
	inputs := []string{
		"",
		"Joe",
		"Joe with spaces",
		"snowman ☃ and åäö",
		"line\nbreaks\tand tabs",
	}

	for _, in := range inputs {
		out, err := B64Decode(B64Encode(in))
		require.NoError(t, err, "input %q", in)
		assert.Equal(t, in, out)
	}
}

func TestB64DecodeRejectsGarbage(t *testing.T) {
	_, err := B64Decode("this is not base64")
	assert.Error(t, err)
	assert.False(t, IsBase64("this is not base64"))
	assert.True(t, IsBase64(B64Encode("fine")))
}
