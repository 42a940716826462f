package content

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryRepositorySaveAssignsIDAndSlug(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	post := &Post{Title: "Hello, World!", Content: "first post", Author: "admin"}
	if err := repo.Save(ctx, post); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if post.ID == "" {
		t.Error("Save() did not assign an id")
	}
	if post.Slug != "hello-world" {
		t.Errorf("Slug = %q, want hello-world", post.Slug)
	}

	got, err := repo.Get(ctx, post.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Title != "Hello, World!" {
		t.Errorf("Title = %q", got.Title)
	}

	bySlug, err := repo.GetBySlug(ctx, "hello-world")
	if err != nil {
		t.Fatalf("GetBySlug() error = %v", err)
	}
	if bySlug.ID != post.ID {
		t.Errorf("GetBySlug() id = %q, want %q", bySlug.ID, post.ID)
	}
}

func TestMemoryRepositoryGetMissing(t *testing.T) {
	repo := NewMemoryRepository()
	if _, err := repo.Get(context.Background(), "nope"); !errors.Is(err, ErrPostNotFound) {
		t.Errorf("Get() error = %v, want ErrPostNotFound", err)
	}
}

func TestMemoryRepositoryRecent(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, title := range []string{"oldest", "middle", "newest"} {
		post := &Post{
			Title:       title,
			Published:   true,
			PublishedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := repo.Save(ctx, post); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}
	if err := repo.Save(ctx, &Post{Title: "draft"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	posts, err := repo.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(posts) != 2 || posts[0].Title != "newest" || posts[1].Title != "middle" {
		titles := make([]string, len(posts))
		for i, p := range posts {
			titles[i] = p.Title
		}
		t.Errorf("Recent(2) = %v, want [newest middle]", titles)
	}
}

func TestMemoryRepositoryCategoryStats(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	posts := []*Post{
		{Title: "a", Published: true, Categories: []string{"go", "infra"}},
		{Title: "b", Published: true, Categories: []string{"go"}},
		{Title: "c", Published: false, Categories: []string{"go"}},
	}
	for _, post := range posts {
		if err := repo.Save(ctx, post); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	stats, err := repo.CategoryStats(ctx)
	if err != nil {
		t.Fatalf("CategoryStats() error = %v", err)
	}
	if stats["go"] != 2 || stats["infra"] != 1 {
		t.Errorf("CategoryStats() = %v, want go:2 infra:1", stats)
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Hello, World!", "hello-world"},
		{"  Multiple   Spaces  ", "multiple-spaces"},
		{"Already-Slugged", "already-slugged"},
		{"2026 Year In Review", "2026-year-in-review"},
	}
	for _, tt := range tests {
		if got := slugify(tt.in); got != tt.want {
			t.Errorf("slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
