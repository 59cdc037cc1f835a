package ai

import (
	"context"
	"errors"
	"testing"
)

func TestParseDataURL(t *testing.T) {
	cases := []struct {
		in, mime, data string
	}{
		{"data:image/png;base64,iVBORw0KGgo=", "image/png", "iVBORw0KGgo="},
		{"data:image/webp;base64,UklGRg==", "image/webp", "UklGRg=="},
		{"data:;base64,AAAA", "image/jpeg", "AAAA"},
		{"/9j/4AAQSkZJRg==", "image/jpeg", "/9j/4AAQSkZJRg=="},
		{"data:broken", "image/jpeg", "data:broken"},
	}
	for _, c := range cases {
		img := ParseDataURL(c.in)
		if img.MimeType != c.mime || img.Data != c.data {
			t.Fatalf("ParseDataURL(%q) = %+v, expected %s %s", c.in, img, c.mime, c.data)
		}
	}
}

func TestDataURLRoundTrip(t *testing.T) {
	img := Image{MimeType: "image/png", Data: "AAAA"}
	if got := ParseDataURL(img.DataURL()); got != img {
		t.Fatalf("expected %+v, got %+v", img, got)
	}
}

func TestIsYes(t *testing.T) {
	for answer, want := range map[string]bool{
		"yes":          true,
		"Yes.":         true,
		" YES\n":       true,
		"no":           false,
		"No, it isn't": false,
		"":             false,
	} {
		if IsYes(answer) != want {
			t.Fatalf("IsYes(%q) should be %v", answer, want)
		}
	}
}

type fakeProvider struct {
	answer string
	err    error
	got    []Image
	prompt string
	model  string
}

func (f *fakeProvider) CompleteWithImages(_ context.Context, model, systemPrompt string, images []Image) (string, error) {
	f.model, f.prompt, f.got = model, systemPrompt, images
	return f.answer, f.err
}

func TestOracleCompare(t *testing.T) {
	p := &fakeProvider{answer: "Yes"}
	o := NewOracle(p, "vision-1")

	same, err := o.Compare(context.Background(), "data:image/png;base64,AAAA", "BBBB")
	if err != nil {
		t.Fatalf("should be able to compare: %v", err)
	}
	if !same {
		t.Fatal("expected a match")
	}
	if p.model != "vision-1" || p.prompt != SameObjectPrompt {
		t.Fatalf("unexpected request: %s %q", p.model, p.prompt)
	}
	if len(p.got) != 2 || p.got[0].MimeType != "image/png" || p.got[1].Data != "BBBB" {
		t.Fatalf("unexpected images: %+v", p.got)
	}

	p.answer = "no"
	if same, _ := o.Compare(context.Background(), "AAAA", "BBBB"); same {
		t.Fatal("expected no match")
	}
}

func TestOracleErrors(t *testing.T) {
	boom := errors.New("boom")
	o := NewOracle(&fakeProvider{err: boom}, "m")
	if _, err := o.Compare(context.Background(), "AAAA", "BBBB"); !errors.Is(err, boom) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if _, err := o.Compare(context.Background(), "AAAA", ""); !errors.Is(err, ErrEmptyImage) {
		t.Fatalf("expected ErrEmptyImage, got %v", err)
	}
}
