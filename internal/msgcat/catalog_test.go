package msgcat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEmbeddedLocales(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := strings.Join(c.Locales(), ","); got != "en,es,fr" {
		t.Fatalf("locales = %s", got)
	}
	if got := c.Text("fr", "pages.createRoom.errors.emptyNickname"); got != "Le pseudo ne doit pas être vide !" {
		t.Fatalf("fr text = %q", got)
	}
	if got := c.Text("es", "pages.createRoom.errors.failedCreatingRoom"); got != "¡No se pudo crear sala!" {
		t.Fatalf("es text = %q", got)
	}
}

func TestFallsBackToEnglish(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.Text("de", "pages.joinRoom.errors.noMatchingRoom"); got != "No room matches this ID !" {
		t.Fatalf("fallback = %q", got)
	}
	if got := c.Text("fr", "pages.nowhere.missing"); got != "pages.nowhere.missing" {
		t.Fatalf("missing key should echo key, got %q", got)
	}
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	override := "pages:\n  game:\n    errors:\n      failedReadingRoom: \"Lecture {{.Room}} impossible\"\n"
	if err := os.WriteFile(filepath.Join(dir, "messages.fr.yaml"), []byte(override), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := c.Render("fr", "pages.game.errors.failedReadingRoom", map[string]string{"Room": "42"})
	if err != nil || got != "Lecture 42 impossible" {
		t.Fatalf("Render = %q, %v", got, err)
	}
	if _, err := c.Render("fr", "pages.game.errors.failedReadingRoom", nil); err == nil {
		t.Fatalf("expected missing data error")
	}
}

func TestDuplicateOverrideRejected(t *testing.T) {
	dir := t.TempDir()
	body := []byte("pages:\n  home:\n    yourRoom: x\n")
	for _, n := range []string{"a.en.yaml", "b.en.yaml"} {
		if err := os.WriteFile(filepath.Join(dir, n), body, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if _, err := New(dir); err == nil {
		t.Fatalf("expected duplicate key error")
	}
}

func TestMatchLocale(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cases := map[string]string{
		"":                          "en",
		"fr-CH, fr;q=0.9, en;q=0.8": "fr",
		"de-DE,es;q=0.7,en;q=0.5":   "es",
		"de, *;q=0.5":               "en",
	}
	for header, want := range cases {
		if got := c.MatchLocale(header); got != want {
			t.Fatalf("MatchLocale(%q) = %q, want %q", header, got, want)
		}
	}
}
