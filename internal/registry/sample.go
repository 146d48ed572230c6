package registry

import "github.com/neonetrek/neonetrek-site/internal/models"

// SampleSource marks a snapshot holding the built-in sample list.
const SampleSource = "builtin:sample"

// Sample returns the placeholder servers shown until a real list loads.
func Sample() []models.ServerDescriptor {
	return []models.ServerDescriptor{
		{
			Name:        "Example Server 1",
			Location:    "New York, US",
			Description: "A sample entry -- add your own server to servers.json to replace these.",
		},
		{
			Name:        "Example Server 2",
			Location:    "Frankfurt, DE",
			Description: "Another sample entry showing how the server list looks when populated.",
		},
		{
			Name:        "Example Server 3",
			Location:    "Tokyo, JP",
			Description: "Servers with a URL will be polled for live status and player count.",
		},
	}
}
