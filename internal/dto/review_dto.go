package dto

type ReviewTextRequest struct {
	Code           string
	ConversationId string
}

type ReviewFileRequest struct {
	Filename       string
	Content        []byte
	ConversationId string
}

type ReviewResponse struct {
	Review         string `json:"review"`
	CodeId         string `json:"code_id"`
	ConversationId string `json:"conversation_id,omitempty"`
	ReviewFailed   bool   `json:"review_failed"`
}

type FileReviewResponse struct {
	ReviewResponse
	Filename           string   `json:"filename"`
	DetectedLanguage   *string  `json:"detected_language"`
	DetectedFrameworks []string `json:"detected_frameworks"`
}
