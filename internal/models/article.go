package models

import (
	"strings"
	"time"
)

// RootPath is the url path of the home page
const RootPath = "root"

// StatusCode represents the lifecycle status of an article row
type StatusCode string

const (
	StatusActive   StatusCode = "active"
	StatusInactive StatusCode = "inactive"
	StatusDeleted  StatusCode = "deleted"
	StatusRedirect StatusCode = "redirect"
)

// ArticleType selects how an article behaves in the title cascade and read path
type ArticleType string

const (
	ArticleTypeGeneral    ArticleType = "general"
	ArticleTypeBlogPost   ArticleType = "blog_post"
	ArticleTypeBlogStream ArticleType = "blog_stream"
	ArticleTypeSpaApp     ArticleType = "spa_app"
)

// ValidArticleTypes defines allowed article types
var ValidArticleTypes = map[ArticleType]bool{
	ArticleTypeGeneral:    true,
	ArticleTypeBlogPost:   true,
	ArticleTypeBlogStream: true,
	ArticleTypeSpaApp:     true,
}

// Article is one version of one logical content unit
type Article struct {
	ID               string      `json:"id" db:"id"`
	ArticleNumber    int         `json:"article_number" db:"article_number"`
	VersionNumber    int         `json:"version_number" db:"version_number"`
	Title            string      `json:"title" db:"title"`
	UrlPath          string      `json:"url_path" db:"url_path"`
	Content          string      `json:"content" db:"content"`
	StatusCode       StatusCode  `json:"status_code" db:"status_code"`
	RedirectTarget   string      `json:"redirect_target,omitempty" db:"redirect_target"`
	Published        *time.Time  `json:"published,omitempty" db:"published"`
	Expires          *time.Time  `json:"expires,omitempty" db:"expires"`
	ArticleType      ArticleType `json:"article_type" db:"article_type"`
	BlogKey          string      `json:"blog_key,omitempty" db:"blog_key"`
	Category         string      `json:"category,omitempty" db:"category"`
	Introduction     string      `json:"introduction,omitempty" db:"introduction"`
	BannerImage      string      `json:"banner_image,omitempty" db:"banner_image"`
	HeaderJavaScript string      `json:"header_javascript,omitempty" db:"header_javascript"`
	FooterJavaScript string      `json:"footer_javascript,omitempty" db:"footer_javascript"`
	Updated          time.Time   `json:"updated" db:"updated"`
	UserID           string      `json:"user_id" db:"user_id"`
	RowVersion       int64       `json:"row_version" db:"row_version"`
}

// IsRoot reports whether the article is the home page
func (a *Article) IsRoot() bool {
	return strings.EqualFold(a.UrlPath, RootPath)
}

// IsRedirect reports whether the row is a redirect sentinel
func (a *Article) IsRedirect() bool {
	return a.StatusCode == StatusRedirect
}

// IsPublishedAt reports whether the version was publicly reachable at t
func (a *Article) IsPublishedAt(t time.Time) bool {
	return a.Published != nil && !a.Published.After(t)
}

// IsExpiredAt reports whether the version stopped being selectable at t
func (a *Article) IsExpiredAt(t time.Time) bool {
	return a.Expires != nil && !a.Expires.After(t)
}

// IsLiveAt reports whether the version may be served at t
func (a *Article) IsLiveAt(t time.Time) bool {
	return a.IsPublishedAt(t) && !a.IsExpiredAt(t)
}

// Clone returns a deep copy of the article
func (a *Article) Clone() *Article {
	c := *a
	c.Published = cloneTime(a.Published)
	c.Expires = cloneTime(a.Expires)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// CatalogEntry is the denormalized listing projection of one ArticleNumber
type CatalogEntry struct {
	ArticleNumber int         `json:"article_number" db:"article_number"`
	VersionNumber int         `json:"version_number" db:"version_number"`
	Title         string      `json:"title" db:"title"`
	UrlPath       string      `json:"url_path" db:"url_path"`
	StatusCode    StatusCode  `json:"status_code" db:"status_code"`
	ArticleType   ArticleType `json:"article_type" db:"article_type"`
	BlogKey       string      `json:"blog_key,omitempty" db:"blog_key"`
	Category      string      `json:"category,omitempty" db:"category"`
	Introduction  string      `json:"introduction,omitempty" db:"introduction"`
	BannerImage   string      `json:"banner_image,omitempty" db:"banner_image"`
	Published     *time.Time  `json:"published,omitempty" db:"published"`
	Updated       time.Time   `json:"updated" db:"updated"`
	UserID        string      `json:"user_id" db:"user_id"`
}

// NewCatalogEntry projects an article version into its catalog row
func NewCatalogEntry(a *Article) *CatalogEntry {
	return &CatalogEntry{
		ArticleNumber: a.ArticleNumber,
		VersionNumber: a.VersionNumber,
		Title:         a.Title,
		UrlPath:       a.UrlPath,
		StatusCode:    a.StatusCode,
		ArticleType:   a.ArticleType,
		BlogKey:       a.BlogKey,
		Category:      a.Category,
		Introduction:  a.Introduction,
		BannerImage:   a.BannerImage,
		Published:     cloneTime(a.Published),
		Updated:       a.Updated,
		UserID:        a.UserID,
	}
}

// Matches reports whether the entry already mirrors the given projection
func (e *CatalogEntry) Matches(o *CatalogEntry) bool {
	if e == nil || o == nil {
		return e == o
	}
	return e.ArticleNumber == o.ArticleNumber &&
		e.VersionNumber == o.VersionNumber &&
		e.Title == o.Title &&
		e.UrlPath == o.UrlPath &&
		e.StatusCode == o.StatusCode &&
		e.BannerImage == o.BannerImage &&
		e.Introduction == o.Introduction &&
		sameTime(e.Published, o.Published)
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
