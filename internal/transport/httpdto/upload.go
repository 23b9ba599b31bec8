package httpdto

type PresignUploadRequest struct {
	FileName    string `json:"file_name" binding:"required"`
	ContentType string `json:"content_type" binding:"required"`
	FileSize    int64  `json:"file_size" binding:"required"`
}

type PresignUploadResponse struct {
	UploadURL string            `json:"upload_url"`
	ObjectKey string            `json:"object_key"`
	Headers   map[string]string `json:"headers,omitempty"`
}

type DownloadURLResponse struct {
	DownloadURL string `json:"download_url"`
}
