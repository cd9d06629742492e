package prompt

// genreAdjectives gives each genre a pool of evocative descriptors for clip names.
var genreAdjectives = map[string][]string{
	"ambient":       {"floating", "weightless", "still", "glacial", "infinite"},
	"chillwave":     {"hazy", "sunlit", "faded", "dreamy", "pastel"},
	"lofi hip hop":  {"rainy", "dusty", "warm", "mellow", "quiet"},
	"lo-fi house":   {"smoky", "dim", "rolling", "velour", "after-hours"},
	"jazz":          {"smoky", "midnight", "velvet", "golden", "swinging"},
	"bossa nova":    {"coastal", "breezy", "gentle", "tropical", "swaying"},
	"acoustic folk": {"wooded", "fireside", "open", "rustic", "earthen"},
	"classical":     {"delicate", "flowing", "stately", "luminous", "grand"},
	"cinematic":     {"epic", "soaring", "vast", "rising", "thundering"},
	"synthwave":     {"neon", "chrome", "pulsing", "electric", "retro"},
	"electronic":    {"radiant", "surging", "prismatic", "kinetic", "orbital"},
	"drum and bass": {"liquid", "rolling", "dark", "charged", "relentless"},
	"disco funk":    {"groovy", "sparkling", "tight", "strutting", "vivid"},
	"indie rock":    {"bright", "jangling", "wistful", "spirited", "raw"},
	"rock":          {"thunderous", "blazing", "driven", "roaring", "massive"},
}

// ClipName generates a human-readable name from genre and clip ID.
// Deterministic: the same inputs always produce the same name.
func ClipName(genre, clipID string) string {
	if genre == "" || clipID == "" {
		return ""
	}

	adjs := genreAdjectives[genre]
	if len(adjs) == 0 {
		return genre + " session"
	}

	// First chars of the clip ID as a simple hash for a deterministic pick
	var h int
	for i := 0; i < len(clipID) && i < 8; i++ {
		h = h*31 + int(clipID[i])
	}
	if h < 0 {
		h = -h
	}

	return adjs[h%len(adjs)] + " " + genre
}
