package directory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseUsername(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected ParsedUsername
	}{
		{
			name:     "plain account name",
			input:    "jdoe",
			expected: ParsedUsername{Kind: UsernamePlain, Account: "jdoe"},
		},
		{
			name:     "domain qualified",
			input:    `EXAMPLE\jdoe`,
			expected: ParsedUsername{Kind: UsernameDomainQualified, Domain: "EXAMPLE", Account: "jdoe"},
		},
		{
			name:  "user principal name",
			input: "jdoe@example.com",
			expected: ParsedUsername{
				Kind:    UsernameUPN,
				Account: "jdoe",
				Domain:  "example.com",
				UPN:     "jdoe@example.com",
			},
		},
		{
			name:     "surrounding whitespace trimmed",
			input:    "  jdoe  ",
			expected: ParsedUsername{Kind: UsernamePlain, Account: "jdoe"},
		},
		{
			name:     "leading at sign treated as plain",
			input:    "@jdoe",
			expected: ParsedUsername{Kind: UsernamePlain, Account: "@jdoe"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseUsername(tt.input))
		})
	}
}

func TestParsedUsernameSearchFilter(t *testing.T) {
	t.Run("plain account matches sAMAccountName", func(t *testing.T) {
		filter := ParseUsername("jdoe").SearchFilter()
		assert.Equal(t, "(&(objectClass=user)(sAMAccountName=jdoe))", filter)
	})

	t.Run("domain qualified drops the domain", func(t *testing.T) {
		filter := ParseUsername(`EXAMPLE\jdoe`).SearchFilter()
		assert.Equal(t, "(&(objectClass=user)(sAMAccountName=jdoe))", filter)
	})

	t.Run("upn matches both attributes", func(t *testing.T) {
		filter := ParseUsername("jdoe@example.com").SearchFilter()
		assert.Equal(t,
			"(&(objectClass=user)(|(sAMAccountName=jdoe)(userPrincipalName=jdoe@example.com)))",
			filter)
	})

	t.Run("filter metacharacters are escaped", func(t *testing.T) {
		filter := ParseUsername("j*doe)").SearchFilter()
		assert.NotContains(t, filter, "*")
		assert.Contains(t, filter, `\2a`)
		assert.Contains(t, filter, `\29`)
	})
}
