package objstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFSUploadRemove(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	u, err := s.Upload(ctx, "chat-images", "u1/a b.png", []byte("png"), "image/png")
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "chat-images", "u1", "a b.png"))
	if err != nil || string(data) != "png" {
		t.Fatalf("stored file = %q, %v", data, err)
	}
	path, ok := PathFromURL(u, "chat-images")
	if !ok || path != "u1/a b.png" {
		t.Errorf("PathFromURL(%q) = %q, %v", u, path, ok)
	}

	if err := s.Remove(ctx, "chat-images", path); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(ctx, "chat-images", path); err != nil {
		t.Errorf("second remove: %v", err)
	}
}

func TestFSRejectsEscapes(t *testing.T) {
	s, _ := NewFS(t.TempDir())
	if _, err := s.Upload(context.Background(), "../x", "a", nil, ""); err == nil {
		t.Error("bucket with separator accepted")
	}
	if _, err := s.Upload(context.Background(), "b", "", nil, ""); err == nil {
		t.Error("empty path accepted")
	}
	name, err := s.file("b", "../../etc/passwd")
	if err != nil {
		t.Fatal(err)
	}
	if name != filepath.Join(s.root, "b", "etc", "passwd") {
		t.Errorf("path escaped root: %s", name)
	}
}

func TestS3PublicURL(t *testing.T) {
	got := publicURL("", "media", "eu-west-1", objectKey("chat-images", "/u1/x y.jpg"))
	want := "https://media.s3.eu-west-1.amazonaws.com/chat-images/u1/x%20y.jpg"
	if got != want {
		t.Errorf("publicURL = %q, want %q", got, want)
	}
	got = publicURL("http://localhost:9000", "media", "", objectKey("chat-images", "u1/x.jpg"))
	if got != "http://localhost:9000/media/chat-images/u1/x.jpg" {
		t.Errorf("endpoint publicURL = %q", got)
	}
	if p, ok := PathFromURL(got, "chat-images"); !ok || p != "u1/x.jpg" {
		t.Errorf("PathFromURL = %q, %v", p, ok)
	}
	if _, ok := PathFromURL("https://example.com/other/x.jpg", "chat-images"); ok {
		t.Error("PathFromURL matched a foreign URL")
	}
}
