package transport

import "strings"

// Outbound application destinations.
const (
	DestChat   = "/app/chat"
	DestTyping = "/app/typing"
	DestRead   = "/app/read"
	DestStatus = "/app/status"
)

// TopicStatus is the global presence topic.
const TopicStatus = "/topic/status"

// MessageQueue is the private queue carrying message notifications for userID.
func MessageQueue(userID string) string {
	return "/user/" + userID + "/queue/messages"
}

// TypingQueue carries typing indicators addressed to userID.
func TypingQueue(userID string) string {
	return "/user/" + userID + "/queue/typing"
}

// ReadQueue carries read receipts for messages sent by userID.
func ReadQueue(userID string) string {
	return "/user/" + userID + "/queue/read"
}

// metricLabel strips the user id from private queues.
func metricLabel(destination string) string {
	if strings.HasPrefix(destination, "/user/") {
		if idx := strings.Index(destination, "/queue/"); idx > 0 {
			return "/user" + destination[idx:]
		}
	}
	return destination
}
