package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/lumiohq/syncstack/internal/enum"
)

// Integration connects one user to one external provider. Provider-specific
// fields live in a raw JSON column and are decoded exactly once, at the
// repository boundary, into the typed ProviderMetadata union.
type Integration struct {
	ID          string        `gorm:"column:id;type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID      string        `gorm:"column:user_id;type:varchar(50);uniqueIndex:idx_integration_user_provider;not null"`
	Provider    enum.Provider `gorm:"column:provider;type:varchar(50);uniqueIndex:idx_integration_user_provider;not null"`
	Enabled     bool          `gorm:"column:enabled;not null;default:true"`
	RawMetadata RawMetadata   `gorm:"column:metadata;type:jsonb"`
	CreatedAt   time.Time     `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt   time.Time     `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (Integration) TableName() string {
	return "integrations"
}

// RawMetadata is the JSON blob as stored in PostgreSQL.
type RawMetadata []byte

func (m RawMetadata) Value() (driver.Value, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	return []byte(m), nil
}

func (m *RawMetadata) Scan(value interface{}) error {
	if value == nil {
		*m = RawMetadata("{}")
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("integration metadata column is not a byte slice")
	}
	*m = RawMetadata(bytes)
	return nil
}

// ProviderMetadata is a tagged union: exactly one field is non-nil,
// matching the integration's provider.
type ProviderMetadata struct {
	Gmail    *GmailMetadata
	Calendar *CalendarMetadata
	Slack    *SlackMetadata
	Telegram *TelegramMetadata
	Twilio   *TwilioMetadata
	Amadeus  *AmadeusMetadata
}

type GmailMetadata struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    string `json:"historyId,omitempty"`
}

type CalendarMetadata struct {
	CalendarID string `json:"calendarId"`
	ChannelID  string `json:"channelId,omitempty"`
	ResourceID string `json:"resourceId,omitempty"`
}

type SlackMetadata struct {
	TeamID    string `json:"teamId"`
	BotUserID string `json:"botUserId,omitempty"`
	ChannelID string `json:"channelId,omitempty"`
}

type TelegramMetadata struct {
	ChatID   int64  `json:"chatId"`
	Username string `json:"username,omitempty"`
}

type TwilioMetadata struct {
	AccountSID  string `json:"accountSid"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

type AmadeusMetadata struct {
	TravelerID string `json:"travelerId,omitempty"`
}

// DecodeMetadata parses the raw blob into the variant matching the
// integration's provider.
func (i *Integration) DecodeMetadata() (ProviderMetadata, error) {
	var meta ProviderMetadata
	raw := []byte(i.RawMetadata)
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	var err error
	switch i.Provider {
	case enum.ProviderGmail:
		meta.Gmail = &GmailMetadata{}
		err = json.Unmarshal(raw, meta.Gmail)
	case enum.ProviderGoogleCalendar:
		meta.Calendar = &CalendarMetadata{}
		err = json.Unmarshal(raw, meta.Calendar)
	case enum.ProviderSlack:
		meta.Slack = &SlackMetadata{}
		err = json.Unmarshal(raw, meta.Slack)
	case enum.ProviderTelegram:
		meta.Telegram = &TelegramMetadata{}
		err = json.Unmarshal(raw, meta.Telegram)
	case enum.ProviderTwilio:
		meta.Twilio = &TwilioMetadata{}
		err = json.Unmarshal(raw, meta.Twilio)
	case enum.ProviderAmadeus:
		meta.Amadeus = &AmadeusMetadata{}
		err = json.Unmarshal(raw, meta.Amadeus)
	default:
		return meta, errors.Errorf("no metadata variant for provider %s", i.Provider)
	}
	if err != nil {
		return ProviderMetadata{}, errors.Wrapf(err, "failed to decode %s metadata", i.Provider)
	}
	return meta, nil
}
