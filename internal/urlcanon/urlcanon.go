// Package urlcanon implements the URL Canonicalizer (spec.md §4.1):
// normalization, platform classification, and carousel-index extraction for
// an ingestion URL.
package urlcanon

import (
	"net/url"
	"strconv"
	"strings"
)

type Platform string

const (
	PlatformYouTube   Platform = "youtube"
	PlatformTikTok    Platform = "tiktok"
	PlatformInstagram Platform = "instagram"
	PlatformUnknown   Platform = "unknown"
)

type Classification string

const (
	ClassSingle           Classification = "single"
	ClassCarouselCandidate Classification = "carousel_candidate"
	ClassUnsupported      Classification = "unsupported"
)

// Normalize strips the query string and fragment, lowercases the scheme and
// host, and leaves the path untouched apart from trailing-slash removal.
// Normalize is idempotent: Normalize(Normalize(u)) == Normalize(u).
func Normalize(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.RawQuery = ""
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String(), nil
}

// PlatformOf resolves the host+path shape to a known platform family, for
// callers (the Pipeline Orchestrator) that frame downstream capability
// calls with the source platform.
func PlatformOf(raw string) Platform {
	return platformOf(raw)
}

// platformOf resolves the host+path shape to a known platform family.
// Grounded in original_source/app/utils/url_processor.py's domain checks.
func platformOf(raw string) Platform {
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "youtube.com"), strings.Contains(lower, "youtu.be"):
		return PlatformYouTube
	case strings.Contains(lower, "tiktok.com"):
		return PlatformTikTok
	case strings.Contains(lower, "instagram.com"):
		return PlatformInstagram
	default:
		return PlatformUnknown
	}
}

// Classify recognizes the three supported platform families by host+path
// shape. Carousel candidacy is only a hint — final determination is made by
// the Downloader once it inspects the actual post.
func Classify(raw string) Classification {
	platform := platformOf(raw)
	if platform == PlatformUnknown {
		return ClassUnsupported
	}
	lower := strings.ToLower(raw)
	switch platform {
	case PlatformYouTube, PlatformTikTok:
		return ClassSingle
	case PlatformInstagram:
		if strings.Contains(lower, "/reel/") {
			return ClassSingle
		}
		if strings.Contains(lower, "/p/") {
			return ClassCarouselCandidate
		}
		return ClassSingle
	}
	return ClassUnsupported
}

// CarouselIndex returns the explicit per-item index the URL encodes, if any.
// Instagram carousel items are addressed via the img_index query parameter;
// every other platform family has no such notion and returns (0, false).
func CarouselIndex(raw string) (int, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return 0, false
	}
	if platformOf(raw) != PlatformInstagram {
		return 0, false
	}
	v := u.Query().Get("img_index")
	if v == "" {
		return 0, false
	}
	idx, err := strconv.Atoi(v)
	if err != nil || idx < 1 {
		return 0, false
	}
	return idx, true
}
