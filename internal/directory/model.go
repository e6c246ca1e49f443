package directory

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when an account or alias cannot be resolved.
	ErrNotFound = errors.New("not found")
	// ErrInvalidAlias indicates an unsupported alias type or empty value.
	ErrInvalidAlias = errors.New("invalid alias")
)

// Agent is the participant institution servicing an account.
type Agent struct {
	ID        string
	Name      string
	ShortName string
	BIC       string
}

// Account is a customer account reachable through the network.
type Account struct {
	ID        string
	Routing   string
	Number    string
	OwnerName string
	Agent     Agent
}

// AliasType enumerates the supported addressing aliases.
type AliasType string

const (
	AliasPhone AliasType = "PHONE"
	AliasEmail AliasType = "EMAIL"
	AliasABN   AliasType = "ABN"
)

// ParseAliasType accepts an alias type case-insensitively.
func ParseAliasType(s string) (AliasType, error) {
	switch t := AliasType(strings.ToUpper(strings.TrimSpace(s))); t {
	case AliasPhone, AliasEmail, AliasABN:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unsupported type %q", ErrInvalidAlias, s)
	}
}

// Alias links a human-memorable identifier to an account.
type Alias struct {
	Type        AliasType
	Value       string
	DisplayName string
	AccountID   string
}

// String renders the alias as TYPE:value.
func (a Alias) String() string {
	return string(a.Type) + ":" + a.Value
}

// Resolution is the result of an alias lookup.
type Resolution struct {
	Alias   Alias
	Account Account
}

func normalizeValue(t AliasType, value string) string {
	value = strings.TrimSpace(value)
	switch t {
	case AliasEmail:
		return strings.ToLower(value)
	case AliasPhone, AliasABN:
		return strings.ReplaceAll(value, " ", "")
	}
	return value
}
