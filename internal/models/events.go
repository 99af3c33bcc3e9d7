package models

// Event is the closed catalog of dispatchable event names. Adding a new
// event is a deploy-time change, not runtime data.
type Event struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

var EventCatalog = []Event{
	{Name: "application.created", Description: "Application Created"},
	{Name: "application.updated", Description: "Application Updated"},
	{Name: "application.deleted", Description: "Application Deleted"},
	{Name: "application.status_changed", Description: "Application Status Changed"},
	{Name: "interview.created", Description: "Interview Created"},
	{Name: "interview.updated", Description: "Interview Updated"},
	{Name: "interview.completed", Description: "Interview Completed"},
	{Name: "interview.cancelled", Description: "Interview Cancelled"},
	{Name: "company.created", Description: "Company Created"},
}

func KnownEvent(name string) bool {
	for _, e := range EventCatalog {
		if e.Name == name {
			return true
		}
	}
	return false
}
