package core

import "errors"

// UserRef carries the fields common to every user-bearing payload. IsError
// marks payloads synthesized from a failed normalization; those are exempt
// from the non-empty-username rule.
type UserRef struct {
	Username string
	UserID   string
	IsError  bool
}

func (u UserRef) validateUser() error {
	if u.Username == "" && !u.IsError {
		return errors.New("missing username")
	}
	return nil
}

// ChatMessage is a plain chat line.
type ChatMessage struct {
	UserRef
	Message  string
	Metadata map[string]string
}

// Follow is a new follower/subscriber-to-channel event.
type Follow struct {
	UserRef
}

// Share is a stream share/repost.
type Share struct {
	UserRef
}

// Raid is an incoming raid with the raiding party size.
type Raid struct {
	UserRef
	ViewerCount int
}

// Redemption is a channel-point style reward redemption.
type Redemption struct {
	UserRef
	RewardTitle string
	RewardCost  int
}

// Gift covers paid one-off gifts: superchats, bits, coins.
type Gift struct {
	UserRef
	GiftType  string
	GiftCount int
	Amount    float64
	Currency  string
	Message   string
}

// Envelope is the treasure-chest gift variant; same shape as Gift.
type Envelope struct {
	UserRef
	GiftType  string
	GiftCount int
	Amount    float64
	Currency  string
	Message   string
}

// Paypiggy is a membership or subscription (new or renewal).
type Paypiggy struct {
	UserRef
	Tier      string // a.k.a. membership level
	Months    int
	Message   string
	IsRenewal bool
}

// GiftPaypiggy is a batch of gifted memberships.
type GiftPaypiggy struct {
	UserRef
	Tier            string
	GiftCount       int
	CumulativeTotal int
	IsAnonymous     bool
}

// Farewell is a user signing off with a recognized bye command.
type Farewell struct {
	UserRef
	Command string
}

// StreamStatus reports a live/offline transition. StreamIDs carries the
// live stream ids when known; multiple new streams coalesce into one event.
type StreamStatus struct {
	IsLive    bool
	StreamIDs []string
}

// ViewerCount is a point-in-time concurrent viewer reading.
type ViewerCount struct {
	Count int
}

// SystemReady is the startup manifest published once wiring completes.
type SystemReady struct {
	Services       []string
	PlatformStates map[Platform]string
	CooldownUsers  int
	GlobalCommands int
}

// SystemShutdown announces intentional teardown before the process exits.
type SystemShutdown struct {
	Reason string
}

func (ChatMessage) payload()    {}
func (Follow) payload()         {}
func (Share) payload()          {}
func (Raid) payload()           {}
func (Redemption) payload()     {}
func (Gift) payload()           {}
func (Envelope) payload()       {}
func (Paypiggy) payload()       {}
func (GiftPaypiggy) payload()   {}
func (Farewell) payload()       {}
func (StreamStatus) payload()   {}
func (ViewerCount) payload()    {}
func (SystemReady) payload()    {}
func (SystemShutdown) payload() {}

func (p ChatMessage) validate() error { return p.validateUser() }
func (p Follow) validate() error      { return p.validateUser() }
func (p Share) validate() error       { return p.validateUser() }

func (p Raid) validate() error {
	if err := p.validateUser(); err != nil {
		return err
	}
	if p.ViewerCount < 0 {
		return errors.New("negative raid viewer count")
	}
	return nil
}

func (p Redemption) validate() error {
	if err := p.validateUser(); err != nil {
		return err
	}
	if p.RewardCost < 0 {
		return errors.New("negative reward cost")
	}
	return nil
}

func validateGiftFields(isError bool, giftCount int, amount float64, currency string) error {
	if isError {
		return nil
	}
	if giftCount <= 0 {
		return errors.New("gift count must be positive")
	}
	if !(amount > 0) {
		return errors.New("gift amount must be positive")
	}
	if currency == "" {
		return errors.New("missing currency")
	}
	return nil
}

func (p Gift) validate() error {
	if err := p.validateUser(); err != nil {
		return err
	}
	return validateGiftFields(p.IsError, p.GiftCount, p.Amount, p.Currency)
}

func (p Envelope) validate() error {
	if err := p.validateUser(); err != nil {
		return err
	}
	return validateGiftFields(p.IsError, p.GiftCount, p.Amount, p.Currency)
}

func (p Paypiggy) validate() error {
	if err := p.validateUser(); err != nil {
		return err
	}
	if p.Months < 1 && !p.IsError {
		return errors.New("months must be >= 1")
	}
	return nil
}

func (p GiftPaypiggy) validate() error {
	if p.Username == "" && !p.IsAnonymous && !p.IsError {
		return errors.New("missing username")
	}
	if p.GiftCount <= 0 && !p.IsError {
		return errors.New("gift count must be positive")
	}
	return nil
}

func (p Farewell) validate() error { return p.validateUser() }

func (p ViewerCount) validate() error {
	if p.Count < 0 {
		return errors.New("negative viewer count")
	}
	return nil
}
