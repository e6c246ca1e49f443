// Package seed loads the demo network: four participants, their customer accounts,
// PayIDs and two PayTo mandates.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/npp_sim/internal/directory"
	"github.com/congo-pay/npp_sim/internal/ledger"
	"github.com/congo-pay/npp_sim/internal/mandates"
)

// namespace derives stable ids so repeated seeding against Postgres is a no-op.
var namespace = uuid.MustParse("6f1c7a52-2f0b-4c61-9a43-0b6e4f3d5a10")

func id(kind, key string) string {
	return uuid.NewSHA1(namespace, []byte(kind+":"+key)).String()
}

// Stores are the backends the demo data is written to.
type Stores struct {
	Ledger    ledger.Ledger
	Directory directory.Repository
	Mandates  mandates.Repository
}

type bank struct {
	name, short, bic, routing, balance string
}

type account struct {
	bank, number, owner string
}

type alias struct {
	t       directory.AliasType
	value   string
	display string
	number  string
}

var banks = []bank{
	{"Commonwealth Bank of Australia", "CBA", "CTBAAU2S", "062-000", "50000000.00"},
	{"National Australia Bank", "NAB", "NATAAU33", "083-000", "48000000.00"},
	{"Australia and New Zealand Banking Group", "ANZ", "ANZBAU3M", "012-000", "47000000.00"},
	{"Westpac Banking Corporation", "Westpac", "WPACAU2S", "032-000", "45000000.00"},
}

var accounts = []account{
	{"CBA", "12345678", "John Smith"},
	{"CBA", "87654321", "Sarah Johnson"},
	{"CBA", "11112222", "ACME Pty Ltd"},
	{"NAB", "22334455", "Mike Wilson"},
	{"NAB", "55667788", "TechCorp Australia"},
	{"ANZ", "33445566", "Emma Davis"},
	{"ANZ", "66778899", "Green Energy Solutions"},
	{"Westpac", "44556677", "James Brown"},
	{"Westpac", "99887766", "OzTrade Imports"},
}

var aliases = []alias{
	{directory.AliasPhone, "+61412345678", "John S", "12345678"},
	{directory.AliasPhone, "+61498765432", "Mike W", "22334455"},
	{directory.AliasPhone, "+61423456789", "Emma D", "33445566"},
	{directory.AliasEmail, "sarah.j@email.com", "Sarah Johnson", "87654321"},
	{directory.AliasEmail, "james.b@email.com", "James Brown", "44556677"},
	{directory.AliasABN, "51824753556", "ACME Pty Ltd", "11112222"},
	{directory.AliasABN, "12345678901", "TechCorp Australia", "55667788"},
	{directory.AliasABN, "98765432100", "Green Energy Solutions", "66778899"},
}

// Participants returns the demo participants with their opening balances.
func Participants() []ledger.Participant {
	out := make([]ledger.Participant, 0, len(banks))
	for _, b := range banks {
		out = append(out, ledger.Participant{
			ID:        id("participant", b.bic),
			Name:      b.name,
			ShortName: b.short,
			BIC:       b.bic,
			Routing:   b.routing,
			Balance:   decimal.RequireFromString(b.balance),
		})
	}
	return out
}

// Load writes the demo data. Existing participants keep their balances.
func Load(ctx context.Context, s Stores, logger *slog.Logger) error {
	agents := make(map[string]directory.Agent, len(banks))
	for _, p := range Participants() {
		if err := s.Ledger.EnsureParticipant(ctx, p); err != nil {
			return fmt.Errorf("seed participant %s: %w", p.ShortName, err)
		}
		agents[p.ShortName] = directory.Agent{ID: p.ID, Name: p.Name, ShortName: p.ShortName, BIC: p.BIC}
	}

	routing := make(map[string]string, len(banks))
	for _, b := range banks {
		routing[b.short] = b.routing
	}
	byNumber := make(map[string]directory.Account, len(accounts))
	for _, a := range accounts {
		acc := directory.Account{
			ID:        id("account", routing[a.bank]+"/"+a.number),
			Routing:   routing[a.bank],
			Number:    a.number,
			OwnerName: a.owner,
			Agent:     agents[a.bank],
		}
		if err := s.Directory.SaveAccount(ctx, acc); err != nil {
			return fmt.Errorf("seed account %s: %w", a.number, err)
		}
		byNumber[a.number] = acc
	}

	for _, a := range aliases {
		if err := s.Directory.SaveAlias(ctx, directory.Alias{
			Type:        a.t,
			Value:       a.value,
			DisplayName: a.display,
			AccountID:   byNumber[a.number].ID,
		}); err != nil {
			return fmt.Errorf("seed alias %s: %w", a.value, err)
		}
	}

	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	demo := []mandates.Mandate{
		{
			ID:          id("mandate", "electricity"),
			Description: "Monthly electricity bill",
			MaxAmount:   decimal.RequireFromString("500.00"),
			Frequency:   "MONTHLY",
			State:       mandates.StateActive,
			ValidFrom:   today.AddDate(0, -3, 0),
			ValidTo:     today.AddDate(1, 0, 0),
			Creditor:    byNumber["66778899"],
			Debtor:      byNumber["12345678"],
		},
		{
			ID:          id("mandate", "gym"),
			Description: "Gym membership subscription",
			MaxAmount:   decimal.RequireFromString("120.00"),
			Frequency:   "MONTHLY",
			State:       mandates.StatePending,
			ValidFrom:   today,
			ValidTo:     today.AddDate(2, 0, 0),
			Creditor:    byNumber["55667788"],
			Debtor:      byNumber["33445566"],
		},
	}
	for i, m := range demo {
		m.CreatedAt = now.Add(time.Duration(i) * time.Millisecond)
		m.UpdatedAt = m.CreatedAt
		if _, err := s.Mandates.Get(ctx, m.ID); err == nil {
			continue
		}
		if err := s.Mandates.Create(ctx, m); err != nil {
			return fmt.Errorf("seed mandate %q: %w", m.Description, err)
		}
	}

	logger.Info("demo data loaded",
		slog.Int("participants", len(banks)),
		slog.Int("accounts", len(accounts)),
		slog.Int("aliases", len(aliases)),
		slog.Int("mandates", len(demo)))
	return nil
}
