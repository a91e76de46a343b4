package model

type Asset struct {
	ID          string `json:"id"`
	SourceURL   string `json:"source_url"`
	FileKey     string `json:"file_key"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Ctime       int64  `json:"ctime"`
	Mtime       int64  `json:"mtime"`
}
