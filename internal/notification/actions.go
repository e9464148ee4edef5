package notification

import (
	"fmt"

	logx "greenguard/pkg/logx"
)

// Action identifies a user- or flow-triggered notification template.
type Action string

const (
	ActionImageUpload       Action = "image_upload"
	ActionGenerateResponse  Action = "generate_response"
	ActionDiseaseSuggestion Action = "disease_suggestion"
	ActionExploreLibrary    Action = "explore_library"
	ActionConnectFarmers    Action = "connect_farmers"
	ActionPhotoCapture      Action = "photo_capture"
	ActionRecommendation    Action = "recommendation"
)

// ActionData carries optional per-action substitutions.
type ActionData struct {
	// Disease names the detected disease for disease_suggestion.
	Disease string
	// Message replaces the default body for recommendation.
	Message string
}

// Actions translates action keys into canned notifications.
type Actions struct {
	store *Store
	log   logx.Logger
}

func NewActions(store *Store, log logx.Logger) *Actions {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Actions{store: store, log: log}
}

// Trigger adds the canned notification for the given action key. Unknown
// keys are logged and dropped; this is a reported, not fatal, condition.
func (a *Actions) Trigger(action Action, data ActionData) {
	switch action {
	case ActionImageUpload:
		a.store.Add(Candidate{
			Title:   "Image Uploaded",
			Message: "Your image has been successfully uploaded and is being processed.",
			Kind:    KindSuccess,
		})
	case ActionGenerateResponse:
		a.store.Add(Candidate{
			Title:   "Response Generated",
			Message: "Your disease analysis has been generated successfully.",
			Kind:    KindSuccess,
		})
	case ActionDiseaseSuggestion:
		disease := data.Disease
		if disease == "" {
			disease = "your crop"
		}
		a.store.Add(Candidate{
			Title:   "Treatment Suggestion",
			Message: fmt.Sprintf("Recommendations for %s are now available.", disease),
			Kind:    KindInfo,
		})
	case ActionExploreLibrary:
		a.store.Add(Candidate{
			Title:   "Crop Library",
			Message: "Explore our comprehensive library of crops and diseases.",
			Kind:    KindInfo,
		})
	case ActionConnectFarmers:
		a.store.Add(Candidate{
			Title:   "Farmer Community",
			Message: "Connect with your fellow farmers to share knowledge and experiences.",
			Kind:    KindSuccess,
		})
	case ActionPhotoCapture:
		a.store.Add(Candidate{
			Title:   "Photo Captured",
			Message: "Your photo has been captured and is being processed.",
			Kind:    KindSuccess,
		})
	case ActionRecommendation:
		msg := data.Message
		if msg == "" {
			msg = "A new recommendation is available for your crops."
		}
		a.store.Add(Candidate{
			Title:   "New Recommendation",
			Message: msg,
			Kind:    KindInfo,
		})
	default:
		a.log.Warn("unknown action key", logx.String("action", string(action)))
	}
}
