package models

import "time"

// SaveArticleCommand is an edit of the latest version of an article
type SaveArticleCommand struct {
	ArticleNumber    int         `json:"article_number"`
	Title            string      `json:"title"`
	Content          string      `json:"content"`
	HeadJavaScript   string      `json:"head_javascript,omitempty"`
	FooterJavaScript string      `json:"footer_javascript,omitempty"`
	BannerImage      string      `json:"banner_image,omitempty"`
	ArticleType      ArticleType `json:"article_type,omitempty"`
	Category         string      `json:"category,omitempty"`
	Introduction     string      `json:"introduction,omitempty"`
	UrlPath          string      `json:"url_path,omitempty"` // optional override
	Published        *time.Time  `json:"published,omitempty"`
	Expires          *time.Time  `json:"expires,omitempty"`
	UserID           string      `json:"user_id"`
}

// CreateArticleCommand creates version 1 of a new logical article
type CreateArticleCommand struct {
	Title       string      `json:"title"`
	Content     string      `json:"content,omitempty"`
	ArticleType ArticleType `json:"article_type,omitempty"`
	ParentPath  string      `json:"parent_path,omitempty"`
	BlogKey     string      `json:"blog_key,omitempty"`
	Published   *time.Time  `json:"published,omitempty"`
	UserID      string      `json:"user_id"`
}

// PurgeResult reports the outcome of one CDN purge/publish notification
type PurgeResult struct {
	Provider string   `json:"provider"`
	Success  bool     `json:"success"`
	Status   int      `json:"status,omitempty"`
	Message  string   `json:"message,omitempty"`
	Paths    []string `json:"paths,omitempty"`
}

// SaveArticleData is the payload of a successful command
type SaveArticleData struct {
	Model      *Article      `json:"model"`
	CdnResults []PurgeResult `json:"cdn_results"`
}

// CommandResult is the outcome of a save/create command
type CommandResult struct {
	IsSuccess    bool              `json:"is_success"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Errors       map[string]string `json:"errors,omitempty"`
	Data         *SaveArticleData  `json:"data,omitempty"`
}

// Failed builds a failed result from an error
func Failed(err error) *CommandResult {
	return &CommandResult{IsSuccess: false, ErrorMessage: err.Error()}
}

// Invalid builds a failed result from field errors
func Invalid(errors map[string]string) *CommandResult {
	return &CommandResult{
		IsSuccess:    false,
		ErrorMessage: "validation failed",
		Errors:       errors,
	}
}
