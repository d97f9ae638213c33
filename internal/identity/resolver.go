// Package identity derives stable record identifiers for provider articles.
package identity

import (
	"crypto/sha1" //nolint:gosec // non-cryptographic id generation
	"encoding/base64"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/samvad-hq/samvad-news-feed/internal/domain"
)

const (
	URLPrefix      = "news_url_"
	FallbackPrefix = "news_"

	maxEncodedURLLen = 64
	urlDigestLen     = 12
	titleSlugLen     = 30
	randomSuffixLen  = 7
	untitledSlug     = "untitled"
)

// Source names the resolution path taken for an id.
type Source string

const (
	SourceNative   Source = "native"
	SourceURL      Source = "url"
	SourceFallback Source = "fallback"
)

// Deterministic reports whether the same article always resolves to the same id on this path.
func (s Source) Deterministic() bool { return s != SourceFallback }

// Resolver picks the id for a raw article: native id, then encoded URL, then a title slug.
type Resolver struct {
	now    func() time.Time
	random func() string
}

// NewResolver returns a resolver using the wall clock and uuid-backed random suffixes.
func NewResolver() *Resolver {
	return &Resolver{now: time.Now, random: randomSuffix}
}

// Resolve returns the id for raw and the path used to derive it.
func (r *Resolver) Resolve(raw domain.RawArticle) (string, Source) {
	if strings.TrimSpace(raw.NativeID) != "" {
		return raw.NativeID, SourceNative
	}
	if u := strings.TrimSpace(raw.ExternalURL); u != "" {
		return URLKey(u), SourceURL
	}
	return r.fallbackKey(raw), SourceFallback
}

// URLKey encodes an external URL into a bounded, deterministic id.
func URLKey(u string) string {
	encoded := base64.RawURLEncoding.EncodeToString([]byte(u))
	if len(encoded) <= maxEncodedURLLen {
		return URLPrefix + encoded
	}
	// keep long URLs that share a prefix apart
	sum := sha1.Sum([]byte(u)) //nolint:gosec
	digest := hex.EncodeToString(sum[:])[:urlDigestLen]
	return URLPrefix + encoded[:maxEncodedURLLen-urlDigestLen-1] + "_" + digest
}

func (r *Resolver) fallbackKey(raw domain.RawArticle) string {
	now := time.Now
	if r != nil && r.now != nil {
		now = r.now
	}
	random := randomSuffix
	if r != nil && r.random != nil {
		random = r.random
	}

	stamp := now()
	if raw.PublishedAt != nil && !raw.PublishedAt.IsZero() {
		stamp = *raw.PublishedAt
	}

	return FallbackPrefix + TitleSlug(raw.Title) + "_" + strconv.FormatInt(stamp.Unix(), 10) + "_" + random()
}

// TitleSlug lower-cases the first characters of title and strips non-alphanumerics.
func TitleSlug(title string) string {
	runes := []rune(strings.TrimSpace(title))
	if len(runes) > titleSlugLen {
		runes = runes[:titleSlugLen]
	}
	var b strings.Builder
	for _, r := range runes {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	if b.Len() == 0 {
		return untitledSlug
	}
	return b.String()
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:randomSuffixLen]
}
