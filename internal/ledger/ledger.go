// Package ledger is the only component allowed to mutate user balances. It
// implements the referral schedule, the daily bonus streak, the 20-day
// invite stake and the withdrawal flow as pure state transitions: business
// rejections are typed reasons, never errors.
package ledger

import (
	"log/slog"
	"math"
	"time"

	"github.com/ghost-cover/ghostcover-bot/internal/domain"
)

// Economy constants. Withdrawal unlocks when the balance first reaches the
// threshold; the stake then has to be kept alive for twenty consecutive
// calendar days in the reference timezone.
const (
	WithdrawalThreshold  int64 = 2000
	StakeDaysRequired          = 20
	StakeDailyReward     int64 = 50
	StakeMissPenalty     int64 = 100
	FirstReferralReward  int64 = 100
	RepeatReferralReward int64 = 10
	DailyReward          int64 = 10
	StreakBonusReward    int64 = 100
	StreakBonusLength          = 7
)

const dateLayout = "2006-01-02"

// Rejection is a business-rule refusal. Zero means accepted.
type Rejection int

const (
	Accepted Rejection = iota
	RejectAlreadyClaimed
	RejectInsufficientBalance
	RejectStakeIncomplete
	RejectWithdrawalPending
	RejectNoPendingWithdrawal
	RejectAlreadyReferred
	RejectSelfReferral
)

// Ledger performs balance and stake bookkeeping. All date math happens in
// the single reference timezone; crossing midnight there is what defines a
// day, regardless of the server's local time.
type Ledger struct {
	loc *time.Location
	now func() time.Time
	log *slog.Logger
}

// New constructs a Ledger anchored to the reference timezone.
func New(loc *time.Location, log *slog.Logger) *Ledger {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}

	return &Ledger{
		loc: loc,
		now: time.Now,
		log: log,
	}
}

// AwardResult reports the effect of a balance mutation.
type AwardResult struct {
	NewBalance int64
	Unlocked   bool
}

// Award applies a signed balance delta, flooring at zero. The first time the
// balance crosses the withdrawal threshold from below it latches
// withdrawal_unlocked and arms the stake; the latch fires again only after a
// completed withdrawal has cleared the flag.
func (l *Ledger) Award(u *domain.UserRecord, amount int64) AwardResult {
	before := u.Balance

	u.Balance += amount
	if u.Balance < 0 {
		u.Balance = 0
	}

	res := AwardResult{NewBalance: u.Balance}
	if before < WithdrawalThreshold && u.Balance >= WithdrawalThreshold && !u.WithdrawalUnlocked {
		u.WithdrawalUnlocked = true
		u.Stake = domain.StakeState{Active: true}
		res.Unlocked = true
	}

	return res
}

// StakeOutcome describes one invite-counting step of the stake.
type StakeOutcome struct {
	Counted       bool
	AlreadyToday  bool
	Missed        bool
	Completed     bool
	DaysCompleted int
	Awarded       int64
	Penalty       int64
}

// CountInviteForStake advances the stake counter for an invite made today.
// No prior date and a one-day gap both count the day and award the daily
// stake reward; a same-day repeat is a no-op; a gap of more than one day
// deducts the miss penalty and resets the stake.
func (l *Ledger) CountInviteForStake(u *domain.UserRecord) StakeOutcome {
	if !u.Stake.Active {
		return StakeOutcome{}
	}

	today := l.today()

	if u.Stake.LastInviteDate != "" {
		switch gap := l.daysBetween(u.Stake.LastInviteDate, today); {
		case gap == 0:
			return StakeOutcome{AlreadyToday: true, DaysCompleted: u.Stake.DaysCompleted}
		case gap > 1:
			l.Award(u, -StakeMissPenalty)
			u.Stake.Reset()
			return StakeOutcome{Missed: true, Penalty: StakeMissPenalty}
		}
	}

	u.Stake.DaysCompleted++
	u.Stake.LastInviteDate = today
	l.Award(u, StakeDailyReward)

	out := StakeOutcome{
		Counted:       true,
		DaysCompleted: u.Stake.DaysCompleted,
		Awarded:       StakeDailyReward,
	}

	if u.Stake.DaysCompleted >= StakeDaysRequired {
		u.Stake.Completed = true
		u.Stake.Active = false
		out.Completed = true
	}

	return out
}

// ReferralOutcome describes a processed referral event.
type ReferralOutcome struct {
	Rejection Rejection
	Reward    int64
	Stake     StakeOutcome
}

// ProcessReferral rewards both parties of a referral: the first referral of
// a referrer pays the first-referral reward to each side, every later one
// the repeat reward. A user already carrying referred_by is never
// reprocessed, and self-referrals are refused.
func (l *Ledger) ProcessReferral(doc *domain.Document, newUserID, referrerID int64) ReferralOutcome {
	if referrerID == 0 || referrerID == newUserID {
		return ReferralOutcome{Rejection: RejectSelfReferral}
	}

	newUser := doc.User(newUserID)
	if newUser.ReferredBy != 0 {
		return ReferralOutcome{Rejection: RejectAlreadyReferred}
	}

	referrer := doc.User(referrerID)

	reward := RepeatReferralReward
	if len(referrer.Referrals) == 0 {
		reward = FirstReferralReward
	}

	newUser.ReferredBy = referrerID
	referrer.Referrals = append(referrer.Referrals, newUserID)

	l.Award(referrer, reward)
	l.Award(newUser, reward)

	stake := l.CountInviteForStake(referrer)

	l.log.Info("referral processed",
		slog.Int64("referrer", referrerID),
		slog.Int64("referred", newUserID),
		slog.Int64("reward", reward),
	)

	return ReferralOutcome{Reward: reward, Stake: stake}
}

// DailyOutcome describes a daily bonus claim.
type DailyOutcome struct {
	Rejection   Rejection
	Streak      int
	Awarded     int64
	StreakBonus bool
	Halved      bool
	NewBalance  int64
}

// ClaimDaily processes a daily bonus claim: a second claim on the same
// calendar day is rejected; a one-day gap (or a first-ever claim) extends
// the streak; a longer gap halves the balance and restarts the streak. A
// streak reaching its bonus length pays the extra bonus and resets to zero.
func (l *Ledger) ClaimDaily(u *domain.UserRecord) DailyOutcome {
	today := l.today()

	if u.LastDaily == today {
		return DailyOutcome{Rejection: RejectAlreadyClaimed, Streak: u.DailyStreak, NewBalance: u.Balance}
	}

	var out DailyOutcome

	switch {
	case u.LastDaily == "":
		u.DailyStreak = 1
	default:
		gap := l.daysBetween(u.LastDaily, today)
		if gap <= 0 {
			// Clock went backwards; treat like a same-day repeat.
			return DailyOutcome{Rejection: RejectAlreadyClaimed, Streak: u.DailyStreak, NewBalance: u.Balance}
		}
		if gap == 1 {
			u.DailyStreak++
		} else {
			u.Balance /= 2
			u.DailyStreak = 1
			out.Halved = true
		}
	}

	u.LastDaily = today
	l.Award(u, DailyReward)
	out.Awarded = DailyReward

	if u.DailyStreak >= StreakBonusLength {
		l.Award(u, StreakBonusReward)
		u.DailyStreak = 0
		out.Awarded += StreakBonusReward
		out.StreakBonus = true
	}

	out.Streak = u.DailyStreak
	out.NewBalance = u.Balance
	return out
}

// WithdrawalOutcome describes a withdrawal request.
type WithdrawalOutcome struct {
	Rejection Rejection
	Amount    int64
}

// RequestWithdrawal stakes the whole balance into a pending withdrawal. The
// balance must have reached the threshold, the stake must be completed and
// no withdrawal may already be outstanding. Success re-locks the whole
// cycle: balance zeroed, unlock flag cleared, stake reset.
func (l *Ledger) RequestWithdrawal(u *domain.UserRecord) WithdrawalOutcome {
	switch {
	case u.Balance < WithdrawalThreshold:
		return WithdrawalOutcome{Rejection: RejectInsufficientBalance}
	case !u.Stake.Completed:
		return WithdrawalOutcome{Rejection: RejectStakeIncomplete}
	case u.PendingWithdrawal != nil:
		return WithdrawalOutcome{Rejection: RejectWithdrawalPending}
	}

	amount := u.Balance
	u.PendingWithdrawal = &domain.PendingWithdrawal{
		Amount:      amount,
		RequestedAt: l.now().In(l.loc),
	}
	u.Balance = 0
	u.WithdrawalUnlocked = false
	u.Stake.Reset()

	return WithdrawalOutcome{Amount: amount}
}

// ProcessWithdrawal clears the user's pending withdrawal (owner action).
func (l *Ledger) ProcessWithdrawal(u *domain.UserRecord) Rejection {
	if u.PendingWithdrawal == nil {
		return RejectNoPendingWithdrawal
	}

	u.PendingWithdrawal = nil
	return Accepted
}

// today renders the current calendar day in the reference timezone.
func (l *Ledger) today() string {
	return l.now().In(l.loc).Format(dateLayout)
}

// daysBetween counts calendar days from one stored date to another. An
// unparseable stored date counts as a long gap, which degrades to the
// penalty path rather than granting anything.
func (l *Ledger) daysBetween(from, to string) int {
	fromDay, err := time.ParseInLocation(dateLayout, from, l.loc)
	if err != nil {
		l.log.Warn("unparseable stored date", slog.String("date", from), slog.Any("error", err))
		return math.MaxInt32
	}

	toDay, err := time.ParseInLocation(dateLayout, to, l.loc)
	if err != nil {
		return math.MaxInt32
	}

	return int(math.Round(toDay.Sub(fromDay).Hours() / 24))
}
