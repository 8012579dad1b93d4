// Package caption composes activity captions from derived metrics and photo
// context: a category decision table, template filling, and emoji/hashtag
// decoration.
package caption

import (
	"fmt"
	"regexp"

	"runpost/internal/model"
)

// Config holds the immutable template, emoji and keyword tables the composer
// draws from. Construct it once and pass it in; there is no package-level
// mutable registry.
type Config struct {
	// Templates maps a category to its caption templates. Recognized
	// placeholders: {distance}, {location}, {mood}, {achievement},
	// {weather_desc}.
	Templates map[string][]string

	// ScenicKeywords mark a resolved location as scenic terrain.
	ScenicKeywords []string

	RunningEmoji     []string
	AchievementEmoji []string

	MoodsLong  []string
	MoodsFast  []string
	MoodsEasy  []string
	WeatherAM  []string
	WeatherPM  []string

	MaxEmoji    int
	MaxHashtags int
}

var placeholderRe = regexp.MustCompile(`\{[a-z_]+\}`)

var recognizedPlaceholders = map[string]bool{
	"{distance}":     true,
	"{location}":     true,
	"{mood}":         true,
	"{achievement}":  true,
	"{weather_desc}": true,
}

// Validate checks every registered template against the recognized
// placeholder set, so an unresolvable placeholder is caught at construction
// rather than surfacing in user-facing text.
func (c Config) Validate() error {
	for category, templates := range c.Templates {
		if !model.ValidCategories[category] {
			return fmt.Errorf("unknown category %q", category)
		}
		if len(templates) == 0 {
			return fmt.Errorf("category %q has no templates", category)
		}
		for _, tpl := range templates {
			for _, ph := range placeholderRe.FindAllString(tpl, -1) {
				if !recognizedPlaceholders[ph] {
					return fmt.Errorf("category %q: unknown placeholder %s", category, ph)
				}
			}
		}
	}
	for _, category := range []string{
		model.CategoryScenic, model.CategoryChallenging, model.CategoryCasual,
		model.CategoryMorning, model.CategoryEvening, model.CategoryBusiness,
	} {
		if len(c.Templates[category]) == 0 {
			return fmt.Errorf("category %q has no templates", category)
		}
	}
	return nil
}

// DefaultConfig returns the stock caption tables.
func DefaultConfig() Config {
	return Config{
		Templates: map[string][]string{
			model.CategoryMorning: {
				"Started the day right with a {distance} run through {location}! {weather_desc}",
				"Morning miles in {location}, {distance} of pure {mood}! {achievement}",
				"Early bird gets the {distance}! Beautiful morning in {location}",
			},
			model.CategoryEvening: {
				"Perfect way to end the day, {distance} through {location}",
				"Evening therapy session: {distance} in {location} {weather_desc}",
				"Chasing the sunset for {distance} in {location}",
			},
			model.CategoryScenic: {
				"When your running route looks like this, you know you're doing something right! {distance} in {location}",
				"Sometimes you run for fitness, sometimes for views like this. {distance} well spent in {location}",
				"Nature's gym > regular gym. {distance} of pure beauty in {location}",
			},
			model.CategoryChallenging: {
				"That was tough but so worth it! {distance} of hills and determination in {location}",
				"Legs are tired, spirit is strong. {distance} conquered in {location}",
				"Every hill was worth this view. {distance} of character building in {location}",
			},
			model.CategoryCasual: {
				"Easy {distance} through {location}, sometimes it's about the journey, not the pace",
				"Recovery run vibes in {location}. {distance} of zen",
				"Just me, {distance}, and the beautiful {location} scenery",
			},
			model.CategoryBusiness: {
				"Post-meeting run therapy, {distance} in {location} to clear the head",
				"Nothing like a good run to process the day's conversations. {distance} in {location}",
				"From boardroom to {location}, {distance} of decompression",
			},
		},
		ScenicKeywords:   []string{"park", "trail", "mountain", "lake", "river", "beach"},
		RunningEmoji:     []string{"🏃‍♂️", "👟", "💨", "🏃‍♀️"},
		AchievementEmoji: []string{"💪", "🎯", "🔥", "⚡", "🚀"},
		MoodsLong:        []string{"determination", "grit", "endurance"},
		MoodsFast:        []string{"speed", "power", "fire"},
		MoodsEasy:        []string{"zen", "peace", "clarity"},
		WeatherAM:        []string{"Perfect crisp morning", "Beautiful start to the day", "Morning magic"},
		WeatherPM:        []string{"Golden hour vibes", "Perfect evening", "Sunset therapy"},
		MaxEmoji:         3,
		MaxHashtags:      6,
	}
}
