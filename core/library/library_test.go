package library

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"SceneCast/core/auth"
	"SceneCast/model"
)

// fakeRepo 内存版演示文稿仓库
type fakeRepo struct {
	bySlug map[string]*model.PresentationRecord
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{bySlug: make(map[string]*model.PresentationRecord)}
}

func (r *fakeRepo) Create(ctx context.Context, rec *model.PresentationRecord) error {
	r.bySlug[rec.ShareSlug] = rec
	return nil
}

func (r *fakeRepo) GetByID(ctx context.Context, id int64) (*model.PresentationRecord, error) {
	for _, rec := range r.bySlug {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) GetByShareSlug(ctx context.Context, slug string) (*model.PresentationRecord, error) {
	return r.bySlug[slug], nil
}

func (r *fakeRepo) UpsertBySlug(ctx context.Context, rec *model.PresentationRecord) error {
	r.bySlug[rec.ShareSlug] = rec
	return nil
}

func (r *fakeRepo) List(ctx context.Context, limit, offset int) ([]*model.PresentationRecord, error) {
	out := make([]*model.PresentationRecord, 0, len(r.bySlug))
	for _, rec := range r.bySlug {
		out = append(out, rec)
	}
	return out, nil
}

func (r *fakeRepo) Delete(ctx context.Context, id int64) error {
	for slug, rec := range r.bySlug {
		if rec.ID == id {
			delete(r.bySlug, slug)
		}
	}
	return nil
}

func writeManifest(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func TestLoadFileParsesManifest(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "demo.yaml", `
title: 演示样例
shareSlug: demo-2026
passcode: "1234"
segments:
  - videoUrl: https://cdn.example.com/intro.mp4
    declaredDuration: 12.5
  - audioUrl: https://cdn.example.com/voice.mp3
    imageUrls:
      - https://cdn.example.com/a.png
      - https://cdn.example.com/b.png
    declaredDuration: 8
    captionText: 第二幕
`)

	repo := newFakeRepo()
	lib := NewLibrary(repo)

	rec, err := lib.LoadFile(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if rec.Title != "演示样例" || rec.ShareSlug != "demo-2026" {
		t.Errorf("unexpected title/slug: %q %q", rec.Title, rec.ShareSlug)
	}
	if len(rec.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(rec.Segments))
	}
	if rec.Segments[1].CaptionText != "第二幕" {
		t.Errorf("caption not parsed: %q", rec.Segments[1].CaptionText)
	}
	if rec.Segments[0].DeclaredDuration != 12.5 {
		t.Errorf("declared duration = %v, want 12.5", rec.Segments[0].DeclaredDuration)
	}

	// 口令不能明文落库
	if rec.PasscodeHash == "" || rec.PasscodeHash == "1234" {
		t.Errorf("passcode not hashed: %q", rec.PasscodeHash)
	}
	if !auth.CheckPasscodeHash("1234", rec.PasscodeHash) {
		t.Error("hashed passcode does not verify")
	}

	if stored, _ := repo.GetByShareSlug(context.Background(), "demo-2026"); stored == nil {
		t.Error("record not upserted into repository")
	}
}

func TestLoadFileDefaultsSlugFromFilename(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "autumn-recap.yml", `
segments:
  - imageUrls: [https://cdn.example.com/cover.png]
`)

	lib := NewLibrary(newFakeRepo())
	rec, err := lib.LoadFile(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if rec.ShareSlug != "autumn-recap" {
		t.Errorf("slug = %q, want autumn-recap", rec.ShareSlug)
	}
	if rec.Title != "autumn-recap" {
		t.Errorf("title should default to slug, got %q", rec.Title)
	}
}

func TestLoadFileRejectsEmptyPresentation(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "empty.yaml", `
title: 空清单
`)

	lib := NewLibrary(newFakeRepo())
	if _, err := lib.LoadFile(context.Background(), path); err == nil {
		t.Fatal("expected error for manifest without segments or single media url")
	}
}

func TestLoadDirSkipsBrokenManifests(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "good.yaml", `
segments:
  - videoUrl: https://cdn.example.com/one.mp4
`)
	writeManifest(t, dir, "broken.yaml", `{{not yaml`)
	writeManifest(t, dir, "notes.txt", `ignore me`)

	repo := newFakeRepo()
	lib := NewLibrary(repo)

	loaded, err := lib.LoadDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if loaded != 1 {
		t.Errorf("loaded = %d, want 1", loaded)
	}
	if rec, _ := repo.GetByShareSlug(context.Background(), "good"); rec == nil {
		t.Error("good manifest missing from repository")
	}
}
