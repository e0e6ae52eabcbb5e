package models

// GlossaryEntry is a single forced substitution for translations. Entries are scoped to a
// language pair by the client; the relay only embeds them in the prompt.
type GlossaryEntry struct {
	Term        string `json:"term"`
	Replacement string `json:"replacement"`
}

// TextRequest is the body of the single-text LLM routes (/translate, /explain, /enhance, /summarize).
type TextRequest struct {
	Text     string          `json:"text" binding:"required"`
	Language string          `json:"language" binding:"required"`
	Model    string          `json:"model,omitempty"`
	Glossary []GlossaryEntry `json:"glossary,omitempty"`
}

// WebpageRequest is the body of /translate_webpage. IDs and Texts are parallel arrays.
type WebpageRequest struct {
	IDs      []int64  `json:"ids" binding:"required"`
	Texts    []string `json:"texts" binding:"required"`
	Language string   `json:"language" binding:"required"`
	Model    string   `json:"model,omitempty"`
}

// SyncUserRequest is the body of POST /api/user.
type SyncUserRequest struct {
	Tier        string `json:"tier" binding:"required"`
	LastUpdated string `json:"lastUpdated" binding:"required"` // RFC 3339
}

// ConsumeRequest is the body of POST /api/consume. A missing or non-positive amount means 1.
type ConsumeRequest struct {
	Amount int64 `json:"amount,omitempty"`
}
