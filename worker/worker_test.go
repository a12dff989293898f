package worker

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailcheck"
)

func TestTaskError_StatusCode(t *testing.T) {
	throttle := newThrottleError(0)
	assert.Equal(t, 429, throttle.StatusCode())

	broker := newBrokerError(assertErr("boom"))
	assert.Equal(t, 500, broker.StatusCode())
}

func TestReplyFor_OkEnvelope(t *testing.T) {
	out := &mailcheck.CheckEmailOutput{Input: "someone@example.com"}
	raw, err := replyFor(out, nil)
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &decoded))

	_, hasOk := decoded["Ok"]
	_, hasErr := decoded["Err"]
	assert.True(t, hasOk, "expected an Ok key in the envelope")
	assert.False(t, hasErr, "Ok envelope must not also carry Err")

	var inner mailcheck.CheckEmailOutput
	require.NoError(t, json.Unmarshal(decoded["Ok"], &inner))
	assert.Equal(t, "someone@example.com", inner.Input)
}

func TestReplyFor_ErrEnvelope(t *testing.T) {
	taskErr := newThrottleError(0)
	raw, err := replyFor(nil, taskErr)
	require.NoError(t, err)

	var decoded struct {
		Ok  json.RawMessage `json:"Ok"`
		Err *[2]interface{} `json:"Err"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Nil(t, decoded.Ok)
	require.NotNil(t, decoded.Err)
	assert.Equal(t, float64(429), decoded.Err[1])
}

// assertErr is a tiny error constructor so tests don't need to import
// "errors" just for this one helper call.
type assertErr string

func (e assertErr) Error() string { return string(e) }
