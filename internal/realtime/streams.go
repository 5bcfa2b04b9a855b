package realtime

// Named realtime streams.
const (
	StreamNotifications = "notifications"
	StreamTasks         = "tasks"
	StreamCampaigns     = "campaigns"
)

// AllStreams lists every stream a signed-in user may subscribe to.
func AllStreams() []string {
	return []string{StreamNotifications, StreamTasks, StreamCampaigns}
}

// CleanStreams lowercases and trims names, dropping blanks and repeats.
func CleanStreams(names ...string) []string {
	return uniqueStreams(names)
}
