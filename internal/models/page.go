package models

import "time"

// NavItem is a lightweight link to another published article
type NavItem struct {
	ArticleNumber int        `json:"article_number"`
	Title         string     `json:"title"`
	UrlPath       string     `json:"url_path"`
	Published     *time.Time `json:"published,omitempty"`
}

// BlogNavigation links a blog post to its chronological neighbours
type BlogNavigation struct {
	Previous *NavItem `json:"previous,omitempty"`
	Next     *NavItem `json:"next,omitempty"`
}

// PublishedPage is what the public read path serves for a url
type PublishedPage struct {
	Article
	Lang       string          `json:"lang,omitempty"`
	Navigation *BlogNavigation `json:"navigation,omitempty"`
}

// TOCItem is one entry of a table of contents
type TOCItem struct {
	ArticleNumber int        `json:"article_number"`
	UrlPath       string     `json:"url_path"`
	Title         string     `json:"title"`
	Introduction  string     `json:"introduction,omitempty"`
	BannerImage   string     `json:"banner_image,omitempty"`
	Published     *time.Time `json:"published,omitempty"`
	Updated       time.Time  `json:"updated"`
}

// TableOfContents is a page of child articles one level below a prefix
type TableOfContents struct {
	PageNo     int       `json:"page_no"`
	PageSize   int       `json:"page_size"`
	TotalCount int       `json:"total_count"`
	Items      []TOCItem `json:"items"`
}

// NewTOCItem projects an article into a TOC/search item
func NewTOCItem(a *Article) TOCItem {
	return TOCItem{
		ArticleNumber: a.ArticleNumber,
		UrlPath:       a.UrlPath,
		Title:         a.Title,
		Introduction:  a.Introduction,
		BannerImage:   a.BannerImage,
		Published:     cloneTime(a.Published),
		Updated:       a.Updated,
	}
}

// NewNavItem projects an article into a navigation link
func NewNavItem(a *Article) *NavItem {
	if a == nil {
		return nil
	}
	return &NavItem{
		ArticleNumber: a.ArticleNumber,
		Title:         a.Title,
		UrlPath:       a.UrlPath,
		Published:     cloneTime(a.Published),
	}
}

// LivePageFilter narrows the set of currently live articles.
// Live means: the highest version with Published <= Now that has not expired.
type LivePageFilter struct {
	Now time.Time

	// ChildrenOnly restricts to paths exactly one level below ParentPath.
	// An empty ParentPath means top-level pages (excluding root).
	ChildrenOnly bool
	ParentPath   string

	// Terms must all appear (case-insensitive) in title or content
	Terms []string

	ArticleType ArticleType
	BlogKey     string
}
