package enum

type Provider string

const (
	ProviderGmail          Provider = "gmail"
	ProviderGoogleCalendar Provider = "google_calendar"
	ProviderSlack          Provider = "slack"
	ProviderTelegram       Provider = "telegram"
	ProviderTwilio         Provider = "twilio"
	ProviderAmadeus        Provider = "amadeus"
)

func (t Provider) String() string {
	return string(t)
}

func ParseProvider(s string) (Provider, bool) {
	switch Provider(s) {
	case ProviderGmail, ProviderGoogleCalendar, ProviderSlack, ProviderTelegram, ProviderTwilio, ProviderAmadeus:
		return Provider(s), true
	}
	return "", false
}
