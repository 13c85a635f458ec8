package format

import (
	"golang.org/x/text/language"
)

// Labels is the fixed vocabulary of one output language.
type Labels struct {
	Claim     string
	Finding   string
	Verdict   string
	Details   string
	Sources   string
	NoSources string
	// Degraded is shown on every answer produced without search grounding.
	Degraded string
	// Failure is the only thing an end user sees when every provider failed.
	Failure string
	// Unavailable is shown when no provider is configured for the task.
	Unavailable string
	Expired     string
	RTL         bool
}

var supported = []language.Tag{
	language.English, // first entry is the fallback
	language.Persian,
	language.Arabic,
}

var matcher = language.NewMatcher(supported)

var table = map[language.Tag]Labels{
	language.English: {
		Claim:       "Claim",
		Finding:     "Finding",
		Verdict:     "Verdict",
		Details:     "Details",
		Sources:     "Sources",
		NoSources:   "No sources were provided for this answer.",
		Degraded:    "⚠️ Note: live search was not available to verify this claim. The answer was produced without checking current sources and carries lower confidence.",
		Failure:     "Sorry, this request could not be completed right now. Please try again later.",
		Unavailable: "This service is not available right now.",
		Expired:     "This answer is no longer available. Please send the request again.",
	},
	language.Persian: {
		Claim:       "ادعا",
		Finding:     "یافته",
		Verdict:     "نتیجه‌گیری",
		Details:     "جزئیات",
		Sources:     "منابع",
		NoSources:   "برای این پاسخ منبعی ارائه نشده است.",
		Degraded:    "⚠️ توجه: جست‌وجوی زنده برای راستی‌آزمایی این ادعا در دسترس نبود. این پاسخ بدون بررسی منابع به‌روز تهیه شده و اطمینان کمتری دارد.",
		Failure:     "متأسفانه در حال حاضر امکان انجام این درخواست وجود ندارد. لطفاً بعداً دوباره تلاش کنید.",
		Unavailable: "این سرویس در حال حاضر در دسترس نیست.",
		Expired:     "این پاسخ دیگر در دسترس نیست. لطفاً درخواست را دوباره ارسال کنید.",
		RTL:         true,
	},
	language.Arabic: {
		Claim:       "الادعاء",
		Finding:     "النتيجة",
		Verdict:     "الحكم",
		Details:     "التفاصيل",
		Sources:     "المصادر",
		NoSources:   "لم تُقدَّم مصادر لهذه الإجابة.",
		Degraded:    "⚠️ تنبيه: لم يكن البحث المباشر متاحًا للتحقق من هذا الادعاء. أُعدّت الإجابة دون مراجعة مصادر حديثة وهي أقل موثوقية.",
		Failure:     "عذرًا، تعذّر إكمال هذا الطلب الآن. يُرجى المحاولة لاحقًا.",
		Unavailable: "هذه الخدمة غير متاحة حاليًا.",
		Expired:     "لم تعد هذه الإجابة متاحة. يُرجى إرسال الطلب مرة أخرى.",
		RTL:         true,
	},
}

// LabelsFor picks the closest supported language for a BCP 47 tag and
// returns its labels together with the canonical tag. Unknown or malformed
// tags fall back to English.
func LabelsFor(lang string) (Labels, language.Tag) {
	tag, err := language.Parse(lang)
	if err != nil {
		return table[language.English], language.English
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return table[language.English], language.English
	}
	best := supported[idx]
	return table[best], best
}

// Supported lists the languages with a label table.
func Supported() []string {
	out := make([]string, len(supported))
	for i, t := range supported {
		out[i] = t.String()
	}
	return out
}
