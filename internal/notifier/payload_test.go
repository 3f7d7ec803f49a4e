package notifier

import (
	"testing"

	"modwatch/internal/feed"
)

func TestPayloadDefaults(t *testing.T) {
	t.Parallel()
	p := Payload(feed.Item{ID: "x", CreatedAt: "2025-06-07"}, Config{})
	if p.Username != DefaultUsername || len(p.Embeds) != 1 {
		t.Fatalf("payload = %+v", p)
	}
	e := p.Embeds[0]
	if e.Title != "🆕 New Mod: Untitled Mod" {
		t.Fatalf("title = %q", e.Title)
	}
	want := "**Category:** Unknown\n**Version:** Unknown\n**Access:** Unknown\n**Uploaded:** 2025-06-07"
	if e.Description != want {
		t.Fatalf("description = %q", e.Description)
	}
	if e.Color != DefaultColor || e.Image != nil {
		t.Fatalf("color=%d image=%+v", e.Color, e.Image)
	}
}

func TestPayloadCustomUsernameAndColor(t *testing.T) {
	t.Parallel()
	p := Payload(feed.Item{Name: "n"}, Config{Username: "Mods", Color: 0xff0000})
	if p.Username != "Mods" || p.Embeds[0].Color != 0xff0000 {
		t.Fatalf("payload = %+v", p)
	}
	if got := p.Embeds[0].Description; got[len(got)-len("Unknown"):] != "Unknown" {
		t.Fatalf("missing upload date should render Unknown: %q", got)
	}
}

func TestPayloadImageURL(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		url    string
		strict bool
		want   string
	}{
		{"absolute https", "https://cdn.example.com/a.png", true, "https://cdn.example.com/a.png"},
		{"absolute http", "http://cdn.example.com/a.png", true, "http://cdn.example.com/a.png"},
		{"empty", "  ", true, ""},
		{"relative strict", "/img/a.png", true, ""},
		{"ftp strict", "ftp://cdn.example.com/a.png", true, ""},
		{"relative lenient", "/img/a.png", false, "/img/a.png"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := Payload(feed.Item{ImageURL: tc.url}, Config{StrictImageURL: tc.strict})
			img := p.Embeds[0].Image
			switch {
			case tc.want == "" && img != nil:
				t.Fatalf("image = %+v, want none", img)
			case tc.want != "" && (img == nil || img.URL != tc.want):
				t.Fatalf("image = %+v, want %q", img, tc.want)
			}
		})
	}
}
