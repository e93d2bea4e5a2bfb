// Package domain defines the persisted state document and its records.
package domain

import (
	"encoding/json"
	"strconv"
	"time"
)

// DefaultCheckButtonText is the verify-button label used when none is configured.
const DefaultCheckButtonText = "✅ Verify"

// MinBackupIntervalMinutes is the floor for the auto-backup interval.
const MinBackupIntervalMinutes = 1

// Document is the full persisted state of the bot. It is loaded and saved
// as a single JSON value and must round-trip losslessly across
// export, import and merge.
type Document struct {
	Subscribers []int64                `json:"subscribers"`
	Owners      []int64                `json:"owners"`
	Force       ForceConfig            `json:"force"`
	Users       map[string]*UserRecord `json:"users"`
	Coupons     map[string]*Coupon     `json:"coupons"`
	KnownChats  []int64                `json:"known_chats"`
	AutoBackup  AutoBackupConfig       `json:"auto_backup"`

	// autoBackupSet records whether the decoded JSON carried the
	// auto_backup key. Merges use it to tell explicit settings, even ones
	// equal to the defaults, apart from an absent section.
	autoBackupSet bool
}

// UnmarshalJSON decodes the document and remembers which optional sections
// the serialized form actually carried.
func (d *Document) UnmarshalJSON(data []byte) error {
	type plain Document
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*d = Document(p)

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err == nil {
		_, d.autoBackupSet = keys["auto_backup"]
	}
	return nil
}

// HasExplicitAutoBackup reports whether the auto-backup settings came from
// the document's serialized form rather than from defaults.
func (d *Document) HasExplicitAutoBackup() bool {
	return d.autoBackupSet
}

// ForceConfig holds the force-join gate configuration.
type ForceConfig struct {
	Enabled      bool               `json:"enabled"`
	Channels     []ChannelGateEntry `json:"channels"`
	CheckBtnText string             `json:"check_btn_text"`
}

// AutoBackupConfig controls the periodic backup delivery.
type AutoBackupConfig struct {
	Enabled         bool `json:"enabled"`
	IntervalMinutes int  `json:"interval_minutes"`
}

// NewDocument returns a fresh default document owned by initialOwner.
func NewDocument(initialOwner int64) *Document {
	doc := &Document{}
	doc.Normalize(initialOwner)
	return doc
}

// Normalize fills defaults once after load or import: non-nil collections,
// the verify-button label, the owner fallback and the backup interval floor.
func (d *Document) Normalize(initialOwner int64) {
	if d.Subscribers == nil {
		d.Subscribers = make([]int64, 0)
	}
	if len(d.Owners) == 0 {
		d.Owners = make([]int64, 0, 1)
		if initialOwner != 0 {
			d.Owners = append(d.Owners, initialOwner)
		}
	}
	if d.Force.Channels == nil {
		d.Force.Channels = make([]ChannelGateEntry, 0)
	}
	if d.Force.CheckBtnText == "" {
		d.Force.CheckBtnText = DefaultCheckButtonText
	}
	if d.Users == nil {
		d.Users = make(map[string]*UserRecord)
	}
	for _, u := range d.Users {
		u.normalize()
	}
	if d.Coupons == nil {
		d.Coupons = make(map[string]*Coupon)
	}
	if d.KnownChats == nil {
		d.KnownChats = make([]int64, 0)
	}
	if d.AutoBackup.IntervalMinutes < MinBackupIntervalMinutes {
		d.AutoBackup.IntervalMinutes = MinBackupIntervalMinutes
	}
}

// IsOwner reports whether id is on the owner allow-list.
func (d *Document) IsOwner(id int64) bool {
	for _, owner := range d.Owners {
		if owner == id {
			return true
		}
	}
	return false
}

// IsSubscriber reports whether id is in the active-subscriber set.
func (d *Document) IsSubscriber(id int64) bool {
	for _, sub := range d.Subscribers {
		if sub == id {
			return true
		}
	}
	return false
}

// AddSubscriber inserts id into the subscriber set if absent.
func (d *Document) AddSubscriber(id int64) bool {
	if d.IsSubscriber(id) {
		return false
	}
	d.Subscribers = append(d.Subscribers, id)
	return true
}

// RemoveSubscriber deletes id from the subscriber set if present.
func (d *Document) RemoveSubscriber(id int64) bool {
	for i, sub := range d.Subscribers {
		if sub == id {
			d.Subscribers = append(d.Subscribers[:i], d.Subscribers[i+1:]...)
			return true
		}
	}
	return false
}

// AddKnownChat records a chat identifier the bot has seen.
func (d *Document) AddKnownChat(id int64) bool {
	for _, chat := range d.KnownChats {
		if chat == id {
			return false
		}
	}
	d.KnownChats = append(d.KnownChats, id)
	return true
}

// User returns the record for id, creating a default one on first contact.
func (d *Document) User(id int64) *UserRecord {
	key := UserKey(id)
	if u, ok := d.Users[key]; ok {
		return u
	}

	u := &UserRecord{}
	u.normalize()
	d.Users[key] = u
	return u
}

// FindUser returns the record for id without creating one.
func (d *Document) FindUser(id int64) (*UserRecord, bool) {
	u, ok := d.Users[UserKey(id)]
	return u, ok
}

// UserKey renders the map key used for a user identifier.
func UserKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

// UserRecord is the per-user economy state.
type UserRecord struct {
	Username           string              `json:"username,omitempty"`
	Balance            int64               `json:"balance"`
	Referrals          []int64             `json:"referrals"`
	ReferredBy         int64               `json:"referred_by,omitempty"`
	LastDaily          string              `json:"last_daily,omitempty"`
	DailyStreak        int                 `json:"daily_streak"`
	WithdrawalUnlocked bool                `json:"withdrawal_unlocked"`
	Stake              StakeState          `json:"stake"`
	PendingWithdrawal  *PendingWithdrawal  `json:"pending_withdrawal,omitempty"`
}

func (u *UserRecord) normalize() {
	if u.Referrals == nil {
		u.Referrals = make([]int64, 0)
	}
}

// StakeState tracks the 20-day consecutive-invite commitment.
type StakeState struct {
	Active         bool   `json:"active"`
	DaysCompleted  int    `json:"days_completed"`
	LastInviteDate string `json:"last_invite_date,omitempty"`
	Completed      bool   `json:"completed"`
}

// Reset returns the stake to its locked initial state.
func (s *StakeState) Reset() {
	s.Active = false
	s.DaysCompleted = 0
	s.LastInviteDate = ""
	s.Completed = false
}

// PendingWithdrawal is the single outstanding withdrawal request of a user.
type PendingWithdrawal struct {
	Amount      int64     `json:"amount"`
	RequestedAt time.Time `json:"requested_at"`
}

// CouponStatus is the lifecycle state of a coupon code.
type CouponStatus string

const (
	CouponActive   CouponStatus = "active"
	CouponRedeemed CouponStatus = "redeemed"
)

// Coupon is an owner-issued one-time redeemable code.
type Coupon struct {
	Code       string       `json:"code"`
	Amount     int64        `json:"amount"`
	Status     CouponStatus `json:"status"`
	RedeemedBy int64        `json:"redeemed_by,omitempty"`
	RedeemedAt *time.Time   `json:"redeemed_at,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}
