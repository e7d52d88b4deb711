// Package extract derives point-of-interest candidates from raw feed posts
// via ordered fallback stages.
package extract

// Rules is the immutable heuristic configuration handed to the pipeline at
// construction time. Keywords map many-to-many onto tags and attributes:
// one keyword may appear under several tags, one tag may be implied by
// several keywords.
type Rules struct {
	// AddressPatterns are ordered regular expressions tried against post
	// and OCR text; the first match wins.
	AddressPatterns []string `mapstructure:"address_patterns"`
	// TagKeywords maps a tag to the keywords that imply it.
	TagKeywords map[string][]string `mapstructure:"tag_keywords"`
	// AttrKeywords maps a boolean attribute to the keywords that set it.
	AttrKeywords map[string][]string `mapstructure:"attr_keywords"`
	// Seat size keywords set the "seat" attribute to few/many/some.
	SeatFew  []string `mapstructure:"seat_few"`
	SeatMany []string `mapstructure:"seat_many"`
	SeatSome []string `mapstructure:"seat_some"`
	// ExpectedRegions are tokens the geocoder's region label must contain
	// for an extraction to auto-confirm. Empty means any resolved region
	// is acceptable.
	ExpectedRegions []string `mapstructure:"expected_regions"`
}

// DefaultRules returns the rule set tuned for the Taiwanese coffee group
// the project started on, plus a generic western street pattern.
func DefaultRules() Rules {
	return Rules{
		AddressPatterns: []string{
			`(?:台灣|臺灣|台北市|臺北市|新北市|桃園市|台中市|臺中市|台南市|臺南市|高雄市|基隆市|新竹市|嘉義市|新竹縣|苗栗縣|彰化縣|南投縣|雲林縣|嘉義縣|屏東縣|宜蘭縣|花蓮縣|台東縣|臺東縣|澎湖縣|金門縣|連江縣).{2,80}?\d{1,4}號?`,
			`\d{1,5}\s+(?:[A-Z][A-Za-z'.-]*\s+){0,4}(?:St|Street|Rd|Road|Ave|Avenue|Blvd|Boulevard|Ln|Lane|Dr|Drive|Way|Sq|Square)\.?\b`,
		},
		TagKeywords: map[string][]string{
			"brunch":    {"早午餐", "brunch", "早餐", "morning"},
			"dessert":   {"甜點", "蛋糕", "甜品", "dessert"},
			"roastery":  {"烘豆", "自家烘焙", "roastery"},
			"night_owl": {"深夜", "凌晨", "夜貓", "late night"},
			"pet":       {"寵物", "毛孩", "可帶狗", "寵物友善", "pet friendly"},
		},
		AttrKeywords: map[string][]string{
			"breakfast":  {"早午餐", "早餐", "brunch"},
			"meal":       {"主餐", "午餐", "晚餐", "套餐", "義大利麵", "排餐"},
			"socket":     {"插座", "充電", "插頭", "插座友善"},
			"pet":        {"寵物", "毛孩", "可帶狗", "寵物友善"},
			"roastery":   {"烘豆", "烘焙", "自家烘焙", "roastery"},
			"dessert":    {"甜點", "蛋糕", "甜品"},
			"night_open": {"深夜", "營業到", "凌晨", "夜貓"},
			"wifi":       {"wifi", "wi-fi", "無線網路"},
		},
		SeatFew:         []string{"座位少", "座位不多", "外帶為主", "外帶"},
		SeatMany:        []string{"座位多", "座位寬敞", "座位很多", "空間大"},
		SeatSome:        []string{"座位", "座"},
		ExpectedRegions: []string{"台灣", "臺灣", "taiwan"},
	}
}
