package caption

import (
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"runpost/internal/model"
)

// ErrUnresolvedPlaceholder means a template placeholder survived into output
// text. That is a composer defect, never valid user-facing text.
var ErrUnresolvedPlaceholder = errors.New("unresolved placeholder in caption")

// Thresholds for the category decision table.
const (
	challengingGainMeters = 100.0
	challengingDistanceKm = 8.0
	slowSpeedKmh          = 5.5
	fastSpeedKmh          = 6.5
	shortDistanceKm       = 5.0
)

// Composer generates captions. The random source is injected so tests can pin
// outcomes; production behavior is intentionally non-deterministic within the
// set of valid alternatives.
type Composer struct {
	cfg Config
	rng *rand.Rand
}

// New validates cfg and returns a Composer drawing randomness from rng.
func New(cfg Config, rng *rand.Rand) (*Composer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("caption config: %w", err)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Composer{cfg: cfg, rng: rng}, nil
}

// Context carries the inputs for one caption.
type Context struct {
	Metrics         model.TrackMetrics
	Location        string
	CapturedAt      time.Time
	BusinessContext bool
}

// TimeOfDay buckets an hour into morning, afternoon, evening or night.
func TimeOfDay(t time.Time) string {
	switch h := t.Hour(); {
	case h >= 5 && h < 11:
		return "morning"
	case h >= 11 && h < 17:
		return "afternoon"
	case h >= 17 && h < 21:
		return "evening"
	default:
		return "night"
	}
}

// Category applies the decision table in fixed priority order: scenic, then
// challenging, then casual, then time-of-day fallback. The business override
// replaces the base category when the flag is set and the capture time falls
// in the afternoon or evening. The ordering is load-bearing; a photo that is
// both scenic and challenging is scenic.
func (c *Composer) Category(ctx Context) string {
	category := c.baseCategory(ctx)

	if ctx.BusinessContext {
		if tod := TimeOfDay(ctx.CapturedAt); tod == "afternoon" || tod == "evening" {
			category = model.CategoryBusiness
		}
	}
	return category
}

func (c *Composer) baseCategory(ctx Context) string {
	location := strings.ToLower(ctx.Location)
	for _, kw := range c.cfg.ScenicKeywords {
		if strings.Contains(location, kw) {
			return model.CategoryScenic
		}
	}

	distanceKm := ctx.Metrics.DistanceMeters / 1000
	speed := ctx.Metrics.AverageSpeedKmh

	if ctx.Metrics.ElevationGainMeters > challengingGainMeters ||
		(distanceKm > challengingDistanceKm && speed < slowSpeedKmh) {
		return model.CategoryChallenging
	}

	if speed > fastSpeedKmh || distanceKm < shortDistanceKm {
		return model.CategoryCasual
	}

	switch TimeOfDay(ctx.CapturedAt) {
	case "morning":
		return model.CategoryMorning
	case "evening":
		return model.CategoryEvening
	}
	return model.CategoryCasual
}

// FormatDistance renders meters as "450m" below 1km, "5k" for integral
// kilometers, and "10.3k" otherwise.
func FormatDistance(meters float64) string {
	km := meters / 1000
	if km < 1 {
		return fmt.Sprintf("%.0fm", meters)
	}
	if km == float64(int64(km)) {
		return fmt.Sprintf("%.0fk", km)
	}
	return fmt.Sprintf("%.1fk", km)
}

// Compose generates one caption for the photo at mediaPath.
func (c *Composer) Compose(ctx Context, mediaPath string) (model.CaptionResult, error) {
	category := c.Category(ctx)

	templates := c.cfg.Templates[category]
	if len(templates) == 0 {
		templates = c.cfg.Templates[model.CategoryCasual]
	}
	template := templates[c.rng.Intn(len(templates))]

	location := ctx.Location
	if location == "" {
		location = "the neighborhood"
	}
	mood, achievement := c.moodAndAchievement(ctx.Metrics)

	text := strings.NewReplacer(
		"{distance}", FormatDistance(ctx.Metrics.DistanceMeters),
		"{location}", location,
		"{mood}", mood,
		"{achievement}", achievement,
		"{weather_desc}", c.weatherDesc(TimeOfDay(ctx.CapturedAt)),
	).Replace(template)

	if placeholderRe.MatchString(text) {
		return model.CaptionResult{}, fmt.Errorf("%w: %q", ErrUnresolvedPlaceholder, text)
	}

	if emoji := c.selectEmoji(category, location, ctx.CapturedAt); len(emoji) > 0 {
		text += " " + strings.Join(emoji, " ")
	}
	if tags := c.hashtags(ctx, category); len(tags) > 0 {
		text += "\n\n" + strings.Join(tags, " ")
	}

	return model.CaptionResult{
		MediaPath: mediaPath,
		Text:      strings.TrimSpace(text),
		Category:  category,
	}, nil
}

func (c *Composer) moodAndAchievement(m model.TrackMetrics) (string, string) {
	distanceKm := m.DistanceMeters / 1000
	switch {
	case distanceKm > 10:
		return c.pick(c.cfg.MoodsLong), "Long run ✅"
	case m.AverageSpeedKmh > 12:
		return c.pick(c.cfg.MoodsFast), "Speed work 💨"
	default:
		return c.pick(c.cfg.MoodsEasy), "Miles banked 💪"
	}
}

func (c *Composer) weatherDesc(timeOfDay string) string {
	switch timeOfDay {
	case "morning":
		return c.pick(c.cfg.WeatherAM)
	case "evening":
		return c.pick(c.cfg.WeatherPM)
	}
	return ""
}

func (c *Composer) selectEmoji(category, location string, capturedAt time.Time) []string {
	emoji := []string{c.pick(c.cfg.RunningEmoji)}

	loc := strings.ToLower(location)
	switch {
	case strings.Contains(loc, "mountain") || strings.Contains(loc, "hill"):
		emoji = append(emoji, "🏔️")
	case strings.Contains(loc, "park") || strings.Contains(loc, "forest") || strings.Contains(loc, "trail"):
		emoji = append(emoji, c.pick([]string{"🌲", "🏞️"}))
	case strings.Contains(loc, "beach") || strings.Contains(loc, "lake") || strings.Contains(loc, "river"):
		emoji = append(emoji, "🌊")
	}

	if tod := TimeOfDay(capturedAt); tod == "morning" || tod == "evening" {
		emoji = append(emoji, "🌅")
	}
	emoji = append(emoji, c.pick(c.cfg.AchievementEmoji))

	if len(emoji) > c.cfg.MaxEmoji {
		emoji = emoji[:c.cfg.MaxEmoji]
	}
	return emoji
}

var tagSanitizeRe = regexp.MustCompile(`[^a-zA-Z0-9]`)

func (c *Composer) hashtags(ctx Context, category string) []string {
	tags := []string{"#running", "#runlog"}

	distanceKm := ctx.Metrics.DistanceMeters / 1000
	switch {
	case distanceKm > 21:
		tags = append(tags, "#marathon")
	case distanceKm > 10:
		tags = append(tags, "#longrun")
	case distanceKm > 5:
		tags = append(tags, "#5k")
	}

	// Location tag from the first component, alphanumeric only. Short
	// leftovers are meaningless and dropped.
	if ctx.Location != "" {
		first := strings.SplitN(ctx.Location, ",", 2)[0]
		tag := "#" + tagSanitizeRe.ReplaceAllString(strings.ToLower(first), "")
		if len(tag) > 3 {
			tags = append(tags, tag)
		}
	}

	switch TimeOfDay(ctx.CapturedAt) {
	case "morning":
		tags = append(tags, "#morningrun")
	case "evening":
		tags = append(tags, "#eveningrun")
	}

	switch category {
	case model.CategoryScenic:
		tags = append(tags, "#scenicrun")
	case model.CategoryChallenging:
		tags = append(tags, "#hillrun")
	}

	seen := map[string]bool{}
	out := tags[:0]
	for _, t := range tags {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	if len(out) > c.cfg.MaxHashtags {
		out = out[:c.cfg.MaxHashtags]
	}
	return out
}

func (c *Composer) pick(options []string) string {
	if len(options) == 0 {
		return ""
	}
	return options[c.rng.Intn(len(options))]
}
