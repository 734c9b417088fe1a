package models

import (
	"fmt"
	"time"
)

// Nationality is the closed set of nationalities the platform pairs across.
type Nationality int

const (
	NationalityVietnamese Nationality = iota + 1
	NationalityJapanese
)

// ParseNationality converts the stored/wire form into a Nationality.
func ParseNationality(s string) (Nationality, error) {
	switch s {
	case "vietnamese":
		return NationalityVietnamese, nil
	case "japanese":
		return NationalityJapanese, nil
	default:
		return 0, fmt.Errorf("unknown nationality %q", s)
	}
}

func (n Nationality) String() string {
	switch n {
	case NationalityVietnamese:
		return "vietnamese"
	case NationalityJapanese:
		return "japanese"
	default:
		return fmt.Sprintf("Nationality(%d)", int(n))
	}
}

// Valid reports whether n is one of the declared variants.
func (n Nationality) Valid() bool {
	switch n {
	case NationalityVietnamese, NationalityJapanese:
		return true
	default:
		return false
	}
}

// MarshalText implements encoding.TextMarshaler
func (n Nationality) MarshalText() ([]byte, error) {
	if !n.Valid() {
		return nil, fmt.Errorf("invalid nationality %d", int(n))
	}
	return []byte(n.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (n *Nationality) UnmarshalText(b []byte) error {
	parsed, err := ParseNationality(string(b))
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}

// Cities where meetups happen. CityAny is only valid as an intent preference.
const (
	CityHanoi     = "hanoi"
	CityHoChiMinh = "hochiminh"
	CityHaiphong  = "haiphong"
	CityDanang    = "danang"
	CityCantho    = "cantho"
	CityAny       = "any"
)

// User is an identity on the platform
type User struct {
	ID          string      `json:"id"`
	DisplayName string      `json:"display_name"`
	Nationality Nationality `json:"nationality"`
	City        string      `json:"city"`
	Points      int         `json:"points"`
	PushToken   *string     `json:"push_token,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// IntentKind distinguishes language-exchange posts from partner requests.
type IntentKind string

const (
	IntentKindPost           IntentKind = "post"
	IntentKindPartnerRequest IntentKind = "partner_request"
)

// IntentStatus is the lifecycle stage of an exchange intent
type IntentStatus string

const (
	IntentActive    IntentStatus = "active"
	IntentMatched   IntentStatus = "matched"
	IntentCompleted IntentStatus = "completed"
	IntentCancelled IntentStatus = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s IntentStatus) Terminal() bool {
	return s == IntentCompleted || s == IntentCancelled
}

// HasPartner reports whether an intent in this status must carry a partner.
func (s IntentStatus) HasPartner() bool {
	return s == IntentMatched || s == IntentCompleted
}

// Request types describe who learns which language.
const (
	RequestJapaneseToVietnamese = "japanese_to_vietnamese"
	RequestVietnameseToJapanese = "vietnamese_to_japanese"
	RequestBoth                 = "both"
)

// Intent is a post or partner request waiting for (or bound to) a partner
type Intent struct {
	ID            string       `json:"id"`
	Kind          IntentKind   `json:"kind"`
	OwnerID       string       `json:"owner_id"`
	PartnerID     *string      `json:"partner_id"`
	Status        IntentStatus `json:"status"`
	RequestType   string       `json:"request_type"`
	Title         string       `json:"title"`
	Description   string       `json:"description"`
	PreferredCity string       `json:"preferred_city"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// IsParticipant reports whether userID is the owner or the bound partner.
func (i *Intent) IsParticipant(userID string) bool {
	if i.OwnerID == userID {
		return true
	}
	return i.PartnerID != nil && *i.PartnerID == userID
}

// Counterpart returns the other participant of a matched intent.
func (i *Intent) Counterpart(userID string) (string, bool) {
	if i.PartnerID == nil {
		return "", false
	}
	switch userID {
	case i.OwnerID:
		return *i.PartnerID, true
	case *i.PartnerID:
		return i.OwnerID, true
	default:
		return "", false
	}
}

// IntentFilter narrows a search over active intents
type IntentFilter struct {
	ViewerID         string
	OwnerNationality Nationality
	RequestTypes     []string
	City             string
	Limit            int
}

// Channel is the conversation bound 1:1 to an intent
type Channel struct {
	ID        string    `json:"id"`
	IntentID  string    `json:"intent_id"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// ChannelSummary is a channel as listed for one participant
type ChannelSummary struct {
	Channel     Channel    `json:"channel"`
	IntentTitle string     `json:"intent_title"`
	IntentKind  IntentKind `json:"intent_kind"`
	PartnerID   string     `json:"partner_id"`
	LastMessage *Message   `json:"last_message,omitempty"`
	UnreadCount int        `json:"unread_count"`
}

// LastActivity is the time used to order channel lists.
func (s *ChannelSummary) LastActivity() time.Time {
	if s.LastMessage != nil {
		return s.LastMessage.SentAt
	}
	return s.Channel.CreatedAt
}

// Message is a chat line. A nil SenderID marks a system-authored message.
type Message struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	SenderID  *string   `json:"sender_id"`
	Content   string    `json:"content"`
	SentAt    time.Time `json:"sent_at"`
	IsRead    bool      `json:"is_read"`
}

// IsSystem reports whether the platform authored the message.
func (m *Message) IsSystem() bool {
	return m.SenderID == nil
}

// AuthoredBy reports whether userID sent the message.
func (m *Message) AuthoredBy(userID string) bool {
	return m.SenderID != nil && *m.SenderID == userID
}

// Evaluation is one participant's rating of the other after a session
type Evaluation struct {
	IntentID    string    `json:"intent_id"`
	EvaluatorID string    `json:"evaluator_id"`
	EvaluateeID string    `json:"evaluatee_id"`
	Score       int       `json:"score"`
	Comment     *string   `json:"comment,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// IntentStats counts a user's intents by status
type IntentStats struct {
	Active    int `json:"active"`
	Matched   int `json:"matched"`
	Completed int `json:"completed"`
	Cancelled int `json:"cancelled"`
}
