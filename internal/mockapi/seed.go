package mockapi

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed is the mock API's starting directory.
type Seed struct {
	// OTPCode is the one-time code every phone receives.
	OTPCode    string          `yaml:"otp_code"`
	Workspaces []SeedWorkspace `yaml:"workspaces"`
	Users      []SeedUser      `yaml:"users"`
}

type SeedWorkspace struct {
	ID           string        `yaml:"id"`
	Name         string        `yaml:"name"`
	Games        []Game        `yaml:"games"`
	Transactions []Transaction `yaml:"transactions"`
}

type SeedUser struct {
	ID          string           `yaml:"id"`
	Name        string           `yaml:"name"`
	Phone       string           `yaml:"phone"`
	Password    string           `yaml:"password"`
	Role        string           `yaml:"role"`
	Memberships []SeedMembership `yaml:"memberships"`
}

type SeedMembership struct {
	Workspace string `yaml:"workspace"`
	Role      string `yaml:"role"`
}

type Game struct {
	ID    string `yaml:"id" json:"id"`
	Title string `yaml:"title" json:"title"`
	Date  string `yaml:"date" json:"date"`
}

type Transaction struct {
	ID          string `yaml:"id" json:"id"`
	AmountCents int64  `yaml:"amount_cents" json:"amountCents"`
	Memo        string `yaml:"memo" json:"memo"`
}

// LoadSeed reads a YAML seed file. Unknown keys are rejected.
func LoadSeed(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("mockapi: read seed: %w", err)
	}
	return ParseSeed(data)
}

func ParseSeed(data []byte) (Seed, error) {
	var s Seed
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return Seed{}, fmt.Errorf("mockapi: parse seed: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Seed{}, err
	}
	return s, nil
}

func (s Seed) Validate() error {
	var errs []error
	workspaces := make(map[string]struct{}, len(s.Workspaces))
	for _, w := range s.Workspaces {
		if w.ID == "" {
			errs = append(errs, errors.New("workspace id is required"))
			continue
		}
		workspaces[w.ID] = struct{}{}
	}
	phones := make(map[string]struct{}, len(s.Users))
	for _, u := range s.Users {
		if u.ID == "" || u.Phone == "" {
			errs = append(errs, fmt.Errorf("user %q: id and phone are required", u.ID))
			continue
		}
		if _, dup := phones[u.Phone]; dup {
			errs = append(errs, fmt.Errorf("user %q: duplicate phone %s", u.ID, u.Phone))
		}
		phones[u.Phone] = struct{}{}
		for _, m := range u.Memberships {
			if _, ok := workspaces[m.Workspace]; !ok {
				errs = append(errs, fmt.Errorf("user %q: unknown workspace %q", u.ID, m.Workspace))
			}
		}
	}
	return errors.Join(errs...)
}

// DefaultSeed covers every landing outcome: an owner of one club, a member
// of two clubs, and a user without any club.
func DefaultSeed() Seed {
	return Seed{
		OTPCode: "123456",
		Workspaces: []SeedWorkspace{
			{
				ID:   "w1",
				Name: "Riverside Poker Club",
				Games: []Game{
					{ID: "g1", Title: "Friday Hold'em", Date: "2026-01-09"},
					{ID: "g2", Title: "Sunday Omaha", Date: "2026-01-11"},
				},
				Transactions: []Transaction{
					{ID: "t1", AmountCents: 25000, Memo: "buy-in"},
				},
			},
			{
				ID:    "w2",
				Name:  "Harbor Card Room",
				Games: []Game{{ID: "g3", Title: "Tuesday Stud", Date: "2026-01-13"}},
			},
		},
		Users: []SeedUser{
			{
				ID: "u-owner", Name: "Olivia Owner", Phone: "+15550001", Password: "owner-pass",
				Memberships: []SeedMembership{{Workspace: "w1", Role: "owner"}},
			},
			{
				ID: "u-member", Name: "Max Member", Phone: "+15550002", Password: "member-pass",
				Memberships: []SeedMembership{{Workspace: "w1", Role: "member"}, {Workspace: "w2", Role: "admin"}},
			},
			{
				ID: "u-none", Name: "Nora Newcomer", Phone: "+15550003", Password: "none-pass",
			},
		},
	}
}
