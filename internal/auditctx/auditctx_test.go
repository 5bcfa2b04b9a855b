package auditctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestActorTravelsInContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	require.False(t, ok)

	ctx := WithActor(context.Background(), Actor{UserID: "u-1", IPAddress: "10.0.0.1"})
	actor, ok := FromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "u-1", actor.UserID)
	require.Equal(t, "10.0.0.1", actor.IPAddress)
}

func TestAnnotateCopiesMetadata(t *testing.T) {
	meta := map[string]any{"field": "stage"}
	require.Equal(t, meta, Actor{}.Annotate(meta))

	out := Actor{RequestID: "req-1"}.Annotate(meta)
	require.Equal(t, map[string]any{"field": "stage", "request_id": "req-1"}, out)
	require.NotContains(t, meta, "request_id")

	kept := Actor{RequestID: "req-2"}.Annotate(map[string]any{"request_id": "job-7"})
	require.Equal(t, "job-7", kept["request_id"])
}
