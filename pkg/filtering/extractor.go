package filtering

// Extractor finds the address bar text for an event.
type Extractor interface {
	Extract(ev Event, elementID string) (string, bool)
}

// NodeExtractor reads the address from the event itself: the pre-extracted
// Address when present, otherwise the first node with the browser's address
// element id.
type NodeExtractor struct{}

// Extract implements Extractor.
func (NodeExtractor) Extract(ev Event, elementID string) (string, bool) {
	if ev.Address != "" {
		return ev.Address, true
	}
	for _, node := range ev.Nodes {
		if node.ViewID != elementID {
			continue
		}
		return node.Text, node.Text != ""
	}
	return "", false
}
