package adapter

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/creator-ingest/internal/ingest"
)

var (
	countPattern    = regexp.MustCompile(`(?i)^([0-9][0-9.,]*)\s*([kmb])?\b`)
	isoDuration     = regexp.MustCompile(`(?i)^P(?:T)?(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?$`)
	timeLayouts     = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}
	countMultiplier = map[string]float64{"k": 1e3, "m": 1e6, "b": 1e9}
)

// parseCount reads display counters such as "1,204", "12.5K" or "3M followers".
func parseCount(s string) (int64, bool) {
	m := countPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, false
	}
	digits := m[1]
	suffix := strings.ToLower(m[2])
	if suffix == "" {
		if i := strings.IndexByte(digits, '.'); i >= 0 && strings.Count(digits, ".") == 1 &&
			!strings.Contains(digits, ",") && len(digits)-i-1 != 3 {
			f, err := strconv.ParseFloat(digits, 64)
			return int64(f), err == nil
		}
		digits = strings.NewReplacer(",", "", ".", "").Replace(digits)
		n, err := strconv.ParseInt(digits, 10, 64)
		return n, err == nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(digits, ",", "."), 64)
	if err != nil {
		return 0, false
	}
	return int64(math.Round(f * countMultiplier[suffix])), true
}

// countPtr adapts a counter field for CreatorStats style optional values.
func countPtr(s string) *int64 {
	if n, ok := parseCount(s); ok {
		return &n
	}
	return nil
}

// parseDuration reads "12:34", "1:02:03", ISO-8601 "PT1M30S" or plain seconds.
func parseDuration(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if m := isoDuration.FindStringSubmatch(s); m != nil && len(s) > 2 {
		h, _ := strconv.Atoi(m[1])
		mins, _ := strconv.Atoi(m[2])
		secs, _ := strconv.ParseFloat(m[3], 64)
		return h*3600 + mins*60 + int(secs), true
	}
	if strings.Contains(s, ":") {
		total := 0
		for _, part := range strings.Split(s, ":") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || n < 0 {
				return 0, false
			}
			total = total*60 + n
		}
		return total, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0, false
	}
	return int(f), true
}

// parseTime reads RFC 3339 style timestamps, dates or unix seconds.
func parseTime(s string) (*time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, true
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
		if n > 1e12 {
			n /= 1000
		}
		t := time.Unix(n, 0).UTC()
		return &t, true
	}
	return nil, false
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		if f, ferr := strconv.ParseFloat(strings.TrimSpace(s), 64); ferr == nil {
			return int(f)
		}
		return 0
	}
	return n
}

func statsFrom(followers, likes, views, posts string) ingest.CreatorStats {
	return ingest.CreatorStats{
		Followers: countPtr(followers),
		Likes:     countPtr(likes),
		Views:     countPtr(views),
		Posts:     countPtr(posts),
	}
}
