package authstate

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/spec-kit/folio/internal/domain"
)

// DemoAccount is one entry of the offline credential table.
type DemoAccount struct {
	ID       string      `yaml:"id"`
	Name     string      `yaml:"name"`
	Email    string      `yaml:"email"`
	Password string      `yaml:"password"`
	Role     domain.Role `yaml:"role"`
}

// User projects the account as the cached session user.
func (a DemoAccount) User() domain.PublicUser {
	id := a.ID
	if id == "" {
		id = "demo-" + string(a.Role)
	}
	return domain.PublicUser{
		ID:       id,
		Name:     a.Name,
		Email:    a.Email,
		Role:     a.Role,
		IsActive: true,
	}
}

// DefaultDemoAccounts is used when no accounts file is configured.
func DefaultDemoAccounts() []DemoAccount {
	return []DemoAccount{
		{ID: "demo-admin", Name: "Demo Admin", Email: "admin@demo", Password: "password", Role: domain.RoleAdmin},
		{ID: "demo-editor", Name: "Demo Editor", Email: "editor@demo", Password: "password", Role: domain.RoleContentManager},
	}
}

type demoFile struct {
	Accounts []DemoAccount `yaml:"accounts"`
}

// LoadDemoAccounts reads the table from a YAML file:
//
//	accounts:
//	  - email: admin@demo
//	    password: password
//	    role: admin
func LoadDemoAccounts(path string) ([]DemoAccount, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read demo accounts: %w", err)
	}
	var file demoFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse demo accounts: %w", err)
	}
	for i, acct := range file.Accounts {
		if strings.TrimSpace(acct.Email) == "" || acct.Password == "" {
			return nil, fmt.Errorf("demo account %d: email and password required", i)
		}
		file.Accounts[i].Email = domain.NormalizeEmail(acct.Email)
		file.Accounts[i].Role = acct.Role.Normalize()
		if file.Accounts[i].Role == "" {
			file.Accounts[i].Role = domain.RoleContentManager
		}
	}
	return file.Accounts, nil
}

func matchDemo(accounts []DemoAccount, email, password string) (DemoAccount, bool) {
	email = domain.NormalizeEmail(email)
	for _, acct := range accounts {
		if domain.NormalizeEmail(acct.Email) == email && acct.Password == password {
			return acct, true
		}
	}
	return DemoAccount{}, false
}

// newDemoToken builds "demo-<unix ms>-<nonce>". It carries no signature.
func newDemoToken(now time.Time) string {
	return fmt.Sprintf("%s%d-%s", domain.DemoTokenPrefix, now.UnixMilli(), uuid.NewString()[:8])
}
