package ai

import (
	"context"
	"errors"
	"strings"
)

// SameObjectPrompt is the instruction sent alongside the two images.
const SameObjectPrompt = "Are these two images of the same real-world object or location? " +
	"The images may be from very different perspectives or in different lighting. " +
	"Be very lenient with what constitutes as the \"same\". " +
	"Answer with only 'yes' or 'no'."

const defaultMimeType = "image/jpeg"

var ErrEmptyImage = errors.New("empty image")

// Provider is a vision-capable model backend.
type Provider interface {
	CompleteWithImages(ctx context.Context, model string, systemPrompt string, images []Image) (string, error)
}

type Image struct {
	MimeType string
	Data     string // base64, no data URL prefix
}

// DataURL renders the image as a data URL.
func (i Image) DataURL() string {
	return "data:" + i.MimeType + ";base64," + i.Data
}

// ParseDataURL accepts "data:image/png;base64,...." or bare base64. The mime type
// defaults to image/jpeg.
func ParseDataURL(s string) Image {
	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		if meta, data, found := strings.Cut(rest, ","); found {
			mime, _, _ := strings.Cut(meta, ";")
			if mime == "" {
				mime = defaultMimeType
			}
			return Image{MimeType: mime, Data: data}
		}
	}
	return Image{MimeType: defaultMimeType, Data: s}
}

// Oracle asks a Provider whether two images show the same object.
type Oracle struct {
	provider Provider
	model    string
}

func NewOracle(p Provider, model string) *Oracle {
	return &Oracle{provider: p, model: model}
}

func (o *Oracle) Compare(ctx context.Context, target, guess string) (bool, error) {
	a, b := ParseDataURL(target), ParseDataURL(guess)
	if a.Data == "" || b.Data == "" {
		return false, ErrEmptyImage
	}
	text, err := o.provider.CompleteWithImages(ctx, o.model, SameObjectPrompt, []Image{a, b})
	if err != nil {
		return false, err
	}
	return IsYes(text), nil
}

// IsYes reads a model answer leniently.
func IsYes(answer string) bool {
	return strings.Contains(strings.ToLower(answer), "yes")
}
