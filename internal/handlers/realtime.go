package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/crmhub/internal/realtime"
	"github.com/charlesng35/crmhub/pkg/errors"
	"github.com/charlesng35/crmhub/pkg/response"
)

// RealtimeHandler upgrades authenticated requests to WebSocket streams.
// The Auth middleware accepts the access token as a query parameter on
// upgrade requests, since browsers cannot set headers there.
type RealtimeHandler struct {
	hub     *realtime.Hub
	streams map[string]struct{}
}

// NewRealtimeHandler limits subscriptions to streams, or to
// realtime.AllStreams when none are given.
func NewRealtimeHandler(hub *realtime.Hub, streams ...string) *RealtimeHandler {
	if len(streams) == 0 {
		streams = realtime.AllStreams()
	}
	h := &RealtimeHandler{hub: hub, streams: map[string]struct{}{}}
	for _, s := range realtime.CleanStreams(streams...) {
		h.streams[s] = struct{}{}
	}
	return h
}

// Stream serves GET /api/v1/notifications/stream and /api/v1/realtime/:stream.
// Extra streams come from repeated ?stream= or a comma separated ?streams=.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	if h.hub == nil {
		response.Error(c, errors.ErrNotFound)
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	requested := append([]string{c.Param("stream")}, c.QueryArray("stream")...)
	requested = append(requested, strings.Split(c.Query("streams"), ",")...)
	streams := realtime.CleanStreams(requested...)
	if len(streams) == 0 {
		streams = []string{realtime.StreamNotifications}
	}
	for _, s := range streams {
		if _, ok := h.streams[s]; !ok {
			response.Error(c, errors.NewNotFound("unknown stream "+s))
			return
		}
	}

	h.hub.Serve(userID, streams, h.streams, c.Writer, c.Request)
}
