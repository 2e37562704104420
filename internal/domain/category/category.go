package category

import "errors"

var ErrNotFound = errors.New("category not found")

// DefaultID is assigned when a subscription is created without a category.
const DefaultID = "other"

// Category is read-only reference data; the default set below is seeded once
// at startup and never removed.
type Category struct {
	ID    string
	Name  string
	Icon  string
	Color string
}

func Defaults() []Category {
	return []Category{
		{ID: "streaming", Name: "Streaming", Icon: "tv", Color: "#e74c3c"},
		{ID: "software", Name: "Software", Icon: "terminal", Color: "#3498db"},
		{ID: "fitness", Name: "Fitness", Icon: "dumbbell", Color: "#2ecc71"},
		{ID: "gaming", Name: "Gaming", Icon: "gamepad", Color: "#9b59b6"},
		{ID: "music", Name: "Music", Icon: "headphones", Color: "#f39c12"},
		{ID: "news", Name: "News", Icon: "newspaper", Color: "#34495e"},
		{ID: "storage", Name: "Storage", Icon: "cloud", Color: "#1abc9c"},
		{ID: "utilities", Name: "Utilities", Icon: "bolt", Color: "#e67e22"},
		{ID: DefaultID, Name: "Other", Icon: "tag", Color: "#95a5a6"},
	}
}
