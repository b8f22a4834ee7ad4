package monitor

import (
	"fmt"
	"time"
)

const DefaultLanguage = "en"

// catalog holds the per-language narrative templates. Line templates use
// indexed fmt verbs because word order differs between languages.
type catalog struct {
	statusNow      string // 1: name, 2: status label
	statusOffline  string // 1: name, 2: status word
	sessionSummary string // 1: session duration, 2: lifetime total
	activityStart  string // 1: name, 2: activity name, 3: verb
	activityStop   string // 1: name, 2: activity name, 3: verb
	customStatus   string // 1: user id, 2: old, 3: new
	noCustomStatus string

	statusLabels map[string]string
	statusWords  map[string]string

	startVerbs       map[string]string
	stopVerbs        map[string]string
	startVerbDefault string
	stopVerbDefault  string

	hour, minute, second string
}

var catalogs = map[string]catalog{
	"en": {
		statusNow:      "🔔 **%[1]s** is now **%[2]s**.",
		statusOffline:  "📴 **%[1]s** went **%[2]s**.",
		sessionSummary: "Active for %[1]s this session. Total active time: %[2]s.",
		activityStart:  "🎮 **%[1]s** started %[3]s **%[2]s**.",
		activityStop:   "🛑 **%[1]s** stopped %[3]s **%[2]s**.",
		customStatus:   "💬 <@%[1]s> changed status: ‘%[2]s’ → ‘%[3]s’.",
		noCustomStatus: "None",
		statusLabels: map[string]string{
			"online": "ONLINE", "idle": "IDLE", "dnd": "DO NOT DISTURB", "offline": "OFFLINE",
		},
		statusWords: map[string]string{
			"online": "online", "idle": "idle", "dnd": "do not disturb", "offline": "offline",
		},
		startVerbs: map[string]string{
			"playing": "playing", "listening": "listening to", "streaming": "streaming",
			"watching": "watching", "competing": "competing in",
		},
		stopVerbs: map[string]string{
			"playing": "playing", "listening": "listening to", "streaming": "streaming",
			"watching": "watching", "competing": "competing in",
		},
		startVerbDefault: "doing",
		stopVerbDefault:  "doing",
		hour:             "h", minute: "m", second: "s",
	},
	"tr": {
		statusNow:      "🔔 **%[1]s** şimdi **%[2]s**.",
		statusOffline:  "📴 **%[1]s** **%[2]s** oldu.",
		sessionSummary: "Bu oturumda %[1]s aktifti. Toplam aktif süre: %[2]s.",
		activityStart:  "🎮 **%[1]s** **%[2]s** %[3]s.",
		activityStop:   "🛑 **%[1]s** **%[2]s** %[3]s.",
		customStatus:   "💬 <@%[1]s> durumu değiştirdi: ‘%[2]s’ → ‘%[3]s’.",
		noCustomStatus: "Yok",
		statusLabels: map[string]string{
			"online": "ÇEVRİMİÇİ", "idle": "BOŞTA", "dnd": "RAHATSIZ ETMEYİN", "offline": "ÇEVRİMDIŞI",
		},
		statusWords: map[string]string{
			"online": "çevrimiçi", "idle": "boşta", "dnd": "rahatsız etmeyin", "offline": "çevrimdışı",
		},
		startVerbs: map[string]string{
			"playing": "oynamaya başladı", "listening": "dinlemeye başladı",
			"streaming": "yayın yapmaya başladı", "watching": "izlemeye başladı",
			"competing": "yarışmaya başladı",
		},
		stopVerbs: map[string]string{
			"playing": "oynamayı bıraktı", "listening": "dinlemeyi bıraktı",
			"streaming": "yayını durdurdu", "watching": "izlemeyi bıraktı",
			"competing": "yarışmayı bıraktı",
		},
		startVerbDefault: "etkinliğe başladı",
		stopVerbDefault:  "etkinliği sonlandırdı",
		hour:             "sa", minute: "dk", second: "sn",
	},
}

// SupportedLanguage reports whether lang has a catalog.
func SupportedLanguage(lang string) bool {
	_, ok := catalogs[lang]
	return ok
}

func catalogFor(lang string) catalog {
	if c, ok := catalogs[lang]; ok {
		return c
	}
	return catalogs[DefaultLanguage]
}

func (c catalog) statusLabel(status string) string {
	if label, ok := c.statusLabels[status]; ok {
		return label
	}
	return status
}

func (c catalog) statusWord(status string) string {
	if word, ok := c.statusWords[status]; ok {
		return word
	}
	return status
}

func (c catalog) startVerb(activityType string) string {
	if v, ok := c.startVerbs[activityType]; ok {
		return v
	}
	return c.startVerbDefault
}

func (c catalog) stopVerb(activityType string) string {
	if v, ok := c.stopVerbs[activityType]; ok {
		return v
	}
	return c.stopVerbDefault
}

func (c catalog) customStatusText(value string) string {
	if value == "" {
		return c.noCustomStatus
	}
	return value
}

// FormatDuration renders a duration as localized h/m/s parts, e.g.
// "2h 5m" or "2sa 5dk". Zero and negative durations render as "0s".
func FormatDuration(d time.Duration, lang string) string {
	c := catalogFor(lang)
	if d < 0 {
		d = 0
	}

	totalSeconds := int64(d / time.Second)
	hours := totalSeconds / 3600
	minutes := (totalSeconds / 60) % 60
	seconds := totalSeconds % 60

	var out string
	if hours > 0 {
		out = fmt.Sprintf("%d%s", hours, c.hour)
	}
	if minutes > 0 {
		if out != "" {
			out += " "
		}
		out += fmt.Sprintf("%d%s", minutes, c.minute)
	}
	if seconds > 0 || out == "" {
		if out != "" {
			out += " "
		}
		out += fmt.Sprintf("%d%s", seconds, c.second)
	}
	return out
}
