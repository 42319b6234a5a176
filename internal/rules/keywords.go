package rules

// CategoryRule maps description keywords to an expense category.
type CategoryRule struct {
	Category      string   `yaml:"category"`
	Label         string   `yaml:"label"`
	Keywords      []string `yaml:"keywords"`
	BusinessRatio float64  `yaml:"business_ratio"`
	Confidence    float64  `yaml:"confidence"`
}

// DefaultCategoryRules cover common sole-proprietor expenses in Japanese and English.
// Category names follow the Japanese chart of accounts; Label is the English name.
var DefaultCategoryRules = []CategoryRule{
	{
		Category:      "旅費交通費",
		Label:         "Travel",
		Keywords:      []string{"タクシー", "taxi", "uber", "電車", "新幹線", "suica", "pasmo", "jr", "バス", "航空", "airline", "flight", "train", "高速道路", "駐車場", "parking"},
		BusinessRatio: 1.0,
		Confidence:    0.9,
	},
	{
		Category:      "通信費",
		Label:         "Phone and internet",
		Keywords:      []string{"携帯", "スマホ", "docomo", "softbank", "au", "インターネット", "プロバイダ", "internet", "broadband", "mobile", "aws", "google cloud", "azure", "cloudflare", "ドメイン", "domain", "hosting"},
		BusinessRatio: 1.0,
		Confidence:    0.85,
	},
	{
		Category:      "消耗品費",
		Label:         "Supplies",
		Keywords:      []string{"文房具", "コピー用紙", "プリンター", "インク", "stationery", "office supplies", "toner", "ヨドバシ", "ビックカメラ", "usb", "ケーブル", "keyboard", "mouse"},
		BusinessRatio: 1.0,
		Confidence:    0.85,
	},
	{
		Category:      "新聞図書費",
		Label:         "Books and subscriptions",
		Keywords:      []string{"書籍", "新聞", "雑誌", "kindle", "book", "newspaper", "magazine", "紀伊國屋", "丸善"},
		BusinessRatio: 1.0,
		Confidence:    0.85,
	},
	{
		Category:      "支払手数料",
		Label:         "Software and fees",
		Keywords:      []string{"github", "notion", "slack", "figma", "adobe", "openai", "anthropic", "振込手数料", "手数料", "subscription", "saas", "bank fee"},
		BusinessRatio: 1.0,
		Confidence:    0.85,
	},
	{
		Category:      "会議費",
		Label:         "Meetings",
		Keywords:      []string{"会議", "打ち合わせ", "打合せ", "カフェ", "coffee", "starbucks", "スターバックス", "meeting"},
		BusinessRatio: 1.0,
		Confidence:    0.8,
	},
	{
		Category:      "接待交際費",
		Label:         "Entertainment",
		Keywords:      []string{"接待", "会食", "居酒屋", "レストラン", "restaurant", "client dinner", "お土産", "贈答"},
		BusinessRatio: 1.0,
		Confidence:    0.75,
	},
	{
		Category:      "研修費",
		Label:         "Training",
		Keywords:      []string{"セミナー", "研修", "udemy", "coursera", "workshop", "conference", "training"},
		BusinessRatio: 1.0,
		Confidence:    0.85,
	},
	{
		Category:      "水道光熱費",
		Label:         "Utilities",
		Keywords:      []string{"電気代", "電気料金", "ガス代", "水道", "electricity", "utility", "gas bill"},
		BusinessRatio: 0.5,
		Confidence:    0.75,
	},
	{
		Category:      "地代家賃",
		Label:         "Rent",
		Keywords:      []string{"家賃", "賃料", "rent", "coworking", "コワーキング"},
		BusinessRatio: 0.5,
		Confidence:    0.75,
	},
}

// PersonalKeywords indicate private spending that is never deductible.
var PersonalKeywords = []string{
	"私用", "個人用", "プライベート", "家族旅行", "子供", "おもちゃ", "ゲーム", "パチンコ", "競馬", "宝くじ",
	"personal", "private", "family trip", "casino", "lottery", "netflix", "spotify", "gym membership", "cosmetics", "化粧品",
}

// MiscCategory returns the catch-all bucket label for the country.
func MiscCategory(countryCode string) string {
	if countryCode == "JP" {
		return "雑費"
	}
	return "Miscellaneous"
}
