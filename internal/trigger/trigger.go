// Package trigger holds the detection trigger model: the built-in trigger
// set, the registry that tracks customs and the active selection, and the
// persistence backends for user-defined triggers.
package trigger

// Trigger is a named detectable condition: a question asked about every
// frame, a substring to look for in the answer, and the message announced on
// a match. The JSON tags define the persisted shape of custom triggers.
type Trigger struct {
	// ID is unique across the union of built-in and custom triggers.
	ID string `json:"id"`

	// Name is the display label.
	Name string `json:"name"`

	// Query is the natural-language question sent to the inference endpoint.
	Query string `json:"query"`

	// TriggerText is matched case-insensitively as a substring of the
	// query's answer.
	TriggerText string `json:"triggerText"`

	// NotificationText is the message emitted when TriggerText matches.
	NotificationText string `json:"notificationText"`
}

// builtins is the fixed trigger set supplied at process start.
// Order matters: the first entry is the default selection.
var builtins = []Trigger{
	{
		ID:               "smiling",
		Name:             "Smiling",
		Query:            "is anyone smiling? yes or no",
		TriggerText:      "yes",
		NotificationText: "😊 Smile Detected!",
	},
	{
		ID:               "thumbs-up",
		Name:             "Thumbs Up",
		Query:            "is anyone giving a thumbs-up gesture? yes or no",
		TriggerText:      "yes",
		NotificationText: "👍 Thumbs Up Detected!",
	},
	{
		ID:               "tongue-out",
		Name:             "Sticking Tongue Out",
		Query:            "is anyone sticking their tongue out? yes or no",
		TriggerText:      "yes",
		NotificationText: "👅 Tongue Out Detected!",
	},
	{
		ID:               "peace-sign",
		Name:             "Peace Sign",
		Query:            "is anyone making a peace sign? yes or no",
		TriggerText:      "yes",
		NotificationText: "✌️ Peace Sign Detected!",
	},
	{
		ID:               "drinking-water",
		Name:             "Drinking Water",
		Query:            "is anyone drinking water? yes or no",
		TriggerText:      "yes",
		NotificationText: "💧 Drinking Water Detected!",
	},
}

// Builtins returns a copy of the built-in trigger set, in selection order.
func Builtins() []Trigger {
	out := make([]Trigger, len(builtins))
	copy(out, builtins)
	return out
}
