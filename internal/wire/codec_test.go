package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestServerClientRoundTrip(t *testing.T) {
	t.Parallel()

	srv := NewServer(func(op Op, payload json.RawMessage) (any, error) {
		require.Equal(t, OpValidate, op)
		var args ValidateArgs
		require.NoError(t, json.Unmarshal(payload, &args))
		return ValidateResult{Code: OK, ServerTime: 7}, nil
	})

	addr, err := srv.Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer srv.Close()

	client := NewClient(addr)
	var result ValidateResult
	err = client.Call(OpValidate, ValidateArgs{Path: "a.txt", Mode: ModeRead, ClientTime: NoTimestamp}, &result)
	require.NoError(t, err)
	require.Equal(t, OK, result.Code)
	require.Equal(t, int64(7), result.ServerTime)
}

func TestClientCallDialFailure(t *testing.T) {
	t.Parallel()

	client := NewClient("127.0.0.1:1")
	var result ValidateResult
	err := client.Call(OpValidate, ValidateArgs{}, &result)
	require.Error(t, err)
}
