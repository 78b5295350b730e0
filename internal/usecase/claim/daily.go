package claim

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/ozanardine/phanteon-rewards/internal/domain/reward"
	"github.com/ozanardine/phanteon-rewards/internal/user"
)

const (
	// A streak survives as long as consecutive claims are at most this far apart.
	streakGrace    = 48 * time.Hour
	streakLookback = 90
)

type Item struct {
	ShortName string `json:"shortname"`
	Amount    int    `json:"amount"`
}

type DayReward struct {
	Day     int    `json:"day"`
	Items   []Item `json:"items"`
	Claimed bool   `json:"claimed"`
}

type DailyStatus struct {
	Streak      int         `json:"streak"`
	ClaimedDays []int       `json:"claimedDays"`
	NextDay     int         `json:"nextDay"`
	VIPTier     string      `json:"vipTier"`
	Rewards     []DayReward `json:"rewards"`
	Eligibility
}

// baseManifest is the weekly cycle for players without VIP.
var baseManifest = map[int][]Item{
	1: {{"wood", 1000}, {"stones", 500}},
	2: {{"metal.fragments", 500}, {"lowgradefuel", 100}},
	3: {{"scrap", 100}, {"cloth", 200}},
	4: {{"metal.refined", 25}, {"bandage", 5}},
	5: {{"ammo.rifle", 64}, {"syringe.medical", 3}},
	6: {{"scrap", 300}, {"techparts", 5}},
	7: {{"supply.signal", 1}, {"metal.refined", 100}},
}

var tierMultipliers = map[string]float64{
	user.TierNone:    1,
	user.TierBasic:   1.5,
	user.TierPlus:    2,
	user.TierPremium: 3,
}

// Manifest returns the per-day rewards scaled for a VIP tier. Unknown tiers get the base amounts.
func Manifest(tier string) []DayReward {
	multiplier, ok := tierMultipliers[tier]
	if !ok {
		multiplier = 1
	}

	days := make([]DayReward, 0, reward.MaxDay)
	for day := reward.MinDay; day <= reward.MaxDay; day++ {
		base := baseManifest[day]
		items := make([]Item, 0, len(base))
		for _, it := range base {
			items = append(items, Item{
				ShortName: it.ShortName,
				Amount:    int(math.Round(float64(it.Amount) * multiplier)),
			})
		}
		days = append(days, DayReward{Day: day, Items: items})
	}
	return days
}

// DailyStatus summarizes the caller's progress through the weekly reward cycle.
func (uc *UseCase) DailyStatus(ctx context.Context, discordID string) (*DailyStatus, error) {
	u, err := uc.resolveUser(ctx, discordID)
	if err != nil {
		return nil, err
	}

	now := uc.now().UTC()
	tier, err := uc.users.VIPTier(ctx, u.ID, now)
	if err != nil {
		return nil, fmt.Errorf("resolve vip tier: %w", err)
	}

	claims, err := uc.repo.ListClaims(ctx, u.ID, streakLookback)
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}

	eligibility, err := uc.CheckEligibility(ctx, u.ID)
	if err != nil {
		return nil, err
	}

	streak, claimedDays := streakOf(claims, now)

	nextDay := reward.MinDay
	if streak > 0 && claims[0].Day < reward.MaxDay {
		nextDay = claims[0].Day + 1
	}

	manifest := Manifest(tier)
	claimed := make(map[int]bool, len(claimedDays))
	for _, d := range claimedDays {
		claimed[d] = true
	}
	for i := range manifest {
		manifest[i].Claimed = claimed[manifest[i].Day]
	}

	return &DailyStatus{
		Streak:      streak,
		ClaimedDays: claimedDays,
		NextDay:     nextDay,
		VIPTier:     tier,
		Rewards:     manifest,
		Eligibility: *eligibility,
	}, nil
}

// streakOf counts consecutive claims (newest first) and returns the days claimed
// in the current seven-day cycle, ascending.
func streakOf(claims []*reward.ClaimRecord, now time.Time) (int, []int) {
	if len(claims) == 0 || now.Sub(claims[0].ClaimedAt) > streakGrace {
		return 0, []int{}
	}

	streak := 1
	for i := 1; i < len(claims); i++ {
		if claims[i-1].ClaimedAt.Sub(claims[i].ClaimedAt) > streakGrace {
			break
		}
		streak++
	}

	inCycle := (streak-1)%reward.MaxDay + 1
	days := make([]int, 0, inCycle)
	for _, c := range claims[:inCycle] {
		days = append(days, c.Day)
	}
	sort.Ints(days)
	return streak, days
}
