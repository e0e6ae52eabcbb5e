package api

import "time"

// ResultResponse is returned by the single-text LLM routes.
type ResultResponse struct {
	Result string `json:"result"`
}

// TranslationsResponse is returned by /translate_webpage, index-aligned with the request texts.
type TranslationsResponse struct {
	Translations []string `json:"translations"`
}

// SuccessResponse acknowledges POST /api/user.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// UserProfileResponse is returned by GET /api/user/me.
type UserProfileResponse struct {
	UID              string    `json:"uid"`
	Email            string    `json:"email"`
	Tier             string    `json:"tier"`
	CreditsRemaining int64     `json:"creditsRemaining"`
	LastUpdated      time.Time `json:"lastUpdated"`
}

// ConsumeResponse is returned by POST /api/consume.
type ConsumeResponse struct {
	CreditsRemaining int64 `json:"creditsRemaining"`
}

// JobResponse is returned by the admin maintenance routes.
type JobResponse struct {
	OK      bool `json:"ok"`
	Updated int  `json:"updated"`
}
