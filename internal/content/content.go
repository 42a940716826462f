// Package content holds the post model and repository the host exposes to
// plugins through the permission-gated facade.
package content

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrPostNotFound is returned when no post exists for an id or slug.
var ErrPostNotFound = errors.New("post not found")

// Post is one blog post.
type Post struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Slug        string    `json:"slug"`
	Content     string    `json:"content"`
	Author      string    `json:"author"`
	Categories  []string  `json:"categories,omitempty"`
	Published   bool      `json:"published"`
	PublishedAt time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Clone creates a deep copy of the post.
func (p *Post) Clone() *Post {
	clone := *p
	if p.Categories != nil {
		clone.Categories = make([]string, len(p.Categories))
		copy(clone.Categories, p.Categories)
	}
	return &clone
}

// Repository stores posts. Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a post by id, or ErrPostNotFound.
	Get(ctx context.Context, id string) (*Post, error)

	// GetBySlug returns a post by slug, or ErrPostNotFound.
	GetBySlug(ctx context.Context, slug string) (*Post, error)

	// Recent returns up to limit published posts, newest first.
	Recent(ctx context.Context, limit int) ([]*Post, error)

	// Save creates or updates a post. A post without an id gets one.
	Save(ctx context.Context, post *Post) error

	// CategoryStats returns published post counts per category.
	CategoryStats(ctx context.Context) (map[string]int, error)
}

// MemoryRepository is an in-memory Repository for tests and single-node hosts.
type MemoryRepository struct {
	mu    sync.RWMutex
	posts map[string]*Post
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{posts: make(map[string]*Post)}
}

// Get returns a post by id.
func (r *MemoryRepository) Get(ctx context.Context, id string) (*Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	post, ok := r.posts[id]
	if !ok {
		return nil, ErrPostNotFound
	}
	return post.Clone(), nil
}

// GetBySlug returns a post by slug.
func (r *MemoryRepository) GetBySlug(ctx context.Context, slug string) (*Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, post := range r.posts {
		if post.Slug == slug {
			return post.Clone(), nil
		}
	}
	return nil, ErrPostNotFound
}

// Recent returns up to limit published posts, newest first.
func (r *MemoryRepository) Recent(ctx context.Context, limit int) ([]*Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	published := make([]*Post, 0, len(r.posts))
	for _, post := range r.posts {
		if post.Published {
			published = append(published, post.Clone())
		}
	}
	sort.Slice(published, func(i, j int) bool {
		return published[i].PublishedAt.After(published[j].PublishedAt)
	})

	if limit > 0 && len(published) > limit {
		published = published[:limit]
	}
	return published, nil
}

// Save creates or updates a post.
func (r *MemoryRepository) Save(ctx context.Context, post *Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if post.ID == "" {
		post.ID = uuid.NewString()
		post.CreatedAt = now
	}
	if post.Slug == "" {
		post.Slug = slugify(post.Title)
	}
	post.UpdatedAt = now

	r.posts[post.ID] = post.Clone()
	return nil
}

// CategoryStats returns published post counts per category.
func (r *MemoryRepository) CategoryStats(ctx context.Context) (map[string]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make(map[string]int)
	for _, post := range r.posts {
		if !post.Published {
			continue
		}
		for _, category := range post.Categories {
			stats[category]++
		}
	}
	return stats, nil
}

// slugify derives a URL slug from a title.
func slugify(title string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
