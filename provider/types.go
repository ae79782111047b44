package provider

import "fmt"

// Credentials scope every call to one advertiser account.
type Credentials struct {
	AccountID   string
	PageID      string
	AccessToken string
}

// Error is a failed provider call. Message carries the platform's own error
// text verbatim when the response included one.
type Error struct {
	// Resource is the kind being created ("campaign", "ad set", ...).
	Resource   string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
}

// ImageRequest uploads a creative asset by URL.
type ImageRequest struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// CampaignRequest creates the top-level campaign.
type CampaignRequest struct {
	Name                string   `json:"name"`
	Objective           string   `json:"objective"`
	Status              string   `json:"status"`
	SpecialAdCategories []string `json:"special_ad_categories"`
}

// PromotedObject points an ad set at the page (and lead form) it promotes.
type PromotedObject struct {
	PageID     string `json:"page_id"`
	LeadFormID string `json:"lead_gen_form_id,omitempty"`
}

// AdSetTargeting is the audience specification sent with an ad set.
type AdSetTargeting struct {
	Countries []string `json:"countries,omitempty"`
	AgeMin    int      `json:"age_min,omitempty"`
	AgeMax    int      `json:"age_max,omitempty"`
}

// AdSetRequest creates an ad set under a campaign.
type AdSetRequest struct {
	Name       string `json:"name"`
	CampaignID string `json:"campaign_id"`

	// DailyBudget is in the provider's minor currency unit (cents).
	DailyBudget int64 `json:"daily_budget"`

	BillingEvent     string `json:"billing_event"`
	OptimizationGoal string `json:"optimization_goal"`
	DestinationType  string `json:"destination_type,omitempty"`

	PromotedObject *PromotedObject `json:"promoted_object,omitempty"`
	Targeting      AdSetTargeting  `json:"targeting"`

	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`

	Status string `json:"status"`
}

// CallToAction is the button on a creative.
type CallToAction struct {
	Type  string            `json:"type"`
	Value map[string]string `json:"value,omitempty"`
}

// LinkData is the story body of a creative.
type LinkData struct {
	ImageHash    string        `json:"image_hash,omitempty"`
	Message      string        `json:"message"`
	Headline     string        `json:"name,omitempty"`
	Link         string        `json:"link,omitempty"`
	CallToAction *CallToAction `json:"call_to_action,omitempty"`
}

// ObjectStorySpec ties a creative to the publishing page.
type ObjectStorySpec struct {
	PageID   string   `json:"page_id"`
	LinkData LinkData `json:"link_data"`
}

// CreativeRequest creates an ad creative.
type CreativeRequest struct {
	Name            string          `json:"name"`
	ObjectStorySpec ObjectStorySpec `json:"object_story_spec"`
}

// CreativeRef links an ad to an existing creative.
type CreativeRef struct {
	CreativeID string `json:"creative_id"`
}

// AdRequest creates the ad joining an ad set and a creative.
type AdRequest struct {
	Name     string      `json:"name"`
	AdSetID  string      `json:"adset_id"`
	Creative CreativeRef `json:"creative"`
	Status   string      `json:"status"`
}

// createResponse is the strict success/failure contract for create calls:
// an id on success, or a nested error message on failure.
type createResponse struct {
	ID    string `json:"id"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// statusResponse is returned by status-transition calls.
type statusResponse struct {
	Success bool `json:"success"`
	Error   *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}
