package model

import "strings"

// Collection names of the document layout.
const (
	EventsCollection        = "events"
	InvestmentsCollection   = "investments"
	StartupsCollection      = "startups"
	RatingsCollection       = "ratings"
	ResultsCollection       = "results"
	NotificationsCollection = "notifications"
	UsersCollection         = "users"
)

// EventPath is events/{eventId}.
func EventPath(eventID string) string {
	return EventsCollection + "/" + eventID
}

// InvestmentsPath is events/{eventId}/investments.
func InvestmentsPath(eventID string) string {
	return EventPath(eventID) + "/" + InvestmentsCollection
}

// InvestmentID is the document id of the single record per (investor, startup).
func InvestmentID(investorID, startupID string) string {
	return investorID + "_" + startupID
}

// InvestmentPath is events/{eventId}/investments/{investorId_startupId}.
func InvestmentPath(eventID, investorID, startupID string) string {
	return InvestmentsPath(eventID) + "/" + InvestmentID(investorID, startupID)
}

// StartupsPath is events/{eventId}/startups.
func StartupsPath(eventID string) string {
	return EventPath(eventID) + "/" + StartupsCollection
}

// StartupPath is events/{eventId}/startups/{startupId}.
func StartupPath(eventID, startupID string) string {
	return StartupsPath(eventID) + "/" + startupID
}

// RatingPath is events/{eventId}/startups/{startupId}/ratings/{raterId}.
func RatingPath(eventID, startupID, raterID string) string {
	return StartupPath(eventID, startupID) + "/" + RatingsCollection + "/" + raterID
}

// ResultsPath is events/{eventId}/results.
func ResultsPath(eventID string) string {
	return EventPath(eventID) + "/" + ResultsCollection
}

// ResultPath is events/{eventId}/results/{resultId}.
func ResultPath(eventID, resultID string) string {
	return ResultsPath(eventID) + "/" + resultID
}

// NotificationPath is notifications/{id}.
func NotificationPath(id string) string {
	return NotificationsCollection + "/" + id
}

// UserNotificationPath is users/{uid}/notifications/{id}.
func UserNotificationPath(uid, id string) string {
	return UsersCollection + "/" + uid + "/" + NotificationsCollection + "/" + id
}

// EventIDFromPath returns the event id when path addresses an event
// document itself (events/{eventId}) and not one of its sub-documents.
func EventIDFromPath(path string) (string, bool) {
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] != EventsCollection || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// IsEventPath reports whether path addresses an event document.
func IsEventPath(path string) bool {
	_, ok := EventIDFromPath(path)
	return ok
}

// ValidID reports whether id can be used as a single path segment: it must
// be non-blank and contain no slash.
func ValidID(id string) bool {
	return strings.TrimSpace(id) != "" && !strings.Contains(id, "/")
}
