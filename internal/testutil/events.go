package testutil

import "urlfilter/pkg/filtering"

// BrowserEvent builds a qualifying address bar change for appID.
func BrowserEvent(appID, elementID, url string, eventTime int64) filtering.Event {
	return filtering.Event{
		AppID:       appID,
		ChangeTypes: filtering.ChangeSubtree | filtering.ChangeText,
		EventTime:   eventTime,
		Nodes: []filtering.Node{
			{ViewID: appID + ":id/toolbar"},
			{ViewID: elementID, Text: url},
		},
	}
}
