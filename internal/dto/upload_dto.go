package dto

// UploadOptions carries form fields sent alongside uploaded files.
type UploadOptions struct {
	UploadID   string  `form:"upload_id" validate:"omitempty,uuid"`
	Caption    string  `form:"caption" validate:"omitempty,max=4000"`
	SenderName string  `form:"sender_name" validate:"omitempty,max=120"`
	ReplyToID  string  `form:"reply_to_id" validate:"omitempty,max=36"`
	Duration   float64 `form:"duration" validate:"omitempty,min=0,max=3600"`
	Voice      bool    `form:"-"`
}

// UploadResponse describes a single stored file.
type UploadResponse struct {
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	SizeBytes    int64  `json:"size_bytes"`
	MimeType     string `json:"mime_type"`
	Kind         string `json:"kind"`
	Checksum     string `json:"checksum"`
	FileName     string `json:"file_name"`
}

// UploadItemResult is the outcome of one file in a batch.
type UploadItemResult struct {
	FileName string          `json:"file_name"`
	Upload   *UploadResponse `json:"upload,omitempty"`
	Message  *MessageView    `json:"message,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// UploadBatchResponse summarises a multi-file upload.
type UploadBatchResponse struct {
	UploadID  string             `json:"upload_id"`
	Items     []UploadItemResult `json:"items"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
}

// UploadProgress reports how far an upload has progressed.
type UploadProgress struct {
	UploadID string `json:"upload_id"`
	FileName string `json:"file_name,omitempty"`
	Index    int    `json:"index"`
	Total    int    `json:"total"`
	Percent  int    `json:"percent"`
}
