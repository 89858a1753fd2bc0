package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cms-article-engine/internal/models"
)

// Field limits, counted in characters
const (
	MaxTitleLength        = 254
	MaxIntroductionLength = 512
	MaxCategoryLength     = 64
)

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Validator provides validation methods
type Validator struct{}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateSaveArticle validates an edit of an existing article.
// All violations are reported; an empty slice means the command is valid.
func (v *Validator) ValidateSaveArticle(cmd *models.SaveArticleCommand) []ValidationError {
	var errors []ValidationError

	if cmd.ArticleNumber <= 0 {
		errors = append(errors, ValidationError{Field: "article_number", Message: "article_number must be greater than 0", Value: cmd.ArticleNumber})
	}

	if strings.TrimSpace(cmd.UserID) == "" {
		errors = append(errors, ValidationError{Field: "user_id", Message: "user_id is required"})
	}

	errors = append(errors, validateTitle(cmd.Title)...)

	if strings.TrimSpace(cmd.Content) == "" {
		errors = append(errors, ValidationError{Field: "content", Message: "content is required"})
	}

	if n := utf8.RuneCountInString(cmd.Introduction); n > MaxIntroductionLength {
		errors = append(errors, ValidationError{
			Field:   "introduction",
			Message: fmt.Sprintf("introduction must be at most %d characters", MaxIntroductionLength),
			Value:   n,
		})
	}

	if n := utf8.RuneCountInString(cmd.Category); n > MaxCategoryLength {
		errors = append(errors, ValidationError{
			Field:   "category",
			Message: fmt.Sprintf("category must be at most %d characters", MaxCategoryLength),
			Value:   n,
		})
	}

	errors = append(errors, validateArticleType(cmd.ArticleType)...)

	if cmd.Published != nil && cmd.Expires != nil && !cmd.Expires.After(*cmd.Published) {
		errors = append(errors, ValidationError{Field: "expires", Message: "expires must be after published"})
	}

	return errors
}

// ValidateCreateArticle validates the creation of a new article
func (v *Validator) ValidateCreateArticle(cmd *models.CreateArticleCommand) []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(cmd.UserID) == "" {
		errors = append(errors, ValidationError{Field: "user_id", Message: "user_id is required"})
	}

	errors = append(errors, validateTitle(cmd.Title)...)
	errors = append(errors, validateArticleType(cmd.ArticleType)...)

	if cmd.ArticleType == models.ArticleTypeBlogPost && strings.TrimSpace(cmd.BlogKey) == "" {
		errors = append(errors, ValidationError{Field: "blog_key", Message: "blog posts require a blog_key"})
	}

	return errors
}

func validateTitle(title string) []ValidationError {
	if strings.TrimSpace(title) == "" {
		return []ValidationError{{Field: "title", Message: "title is required"}}
	}
	if n := utf8.RuneCountInString(title); n > MaxTitleLength {
		return []ValidationError{{
			Field:   "title",
			Message: fmt.Sprintf("title must be at most %d characters", MaxTitleLength),
			Value:   n,
		}}
	}
	return nil
}

func validateArticleType(t models.ArticleType) []ValidationError {
	if t != "" && !models.ValidArticleTypes[t] {
		return []ValidationError{{
			Field:   "article_type",
			Message: "invalid article_type, must be one of: general, blog_post, blog_stream, spa_app",
			Value:   t,
		}}
	}
	return nil
}

// ToMap converts validation errors into the field -> message map of a command result.
// The first message per field wins.
func ToMap(errors []ValidationError) map[string]string {
	if len(errors) == 0 {
		return nil
	}
	m := make(map[string]string, len(errors))
	for _, e := range errors {
		if _, ok := m[e.Field]; !ok {
			m[e.Field] = e.Message
		}
	}
	return m
}
