package identity

import (
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/google/uuid"
)

// Filter is an LDAP search filter.
type Filter interface {
	String() string
}

type rawFilter string

func (f rawFilter) String() string {
	return string(f)
}

// Logical operators
type andFilter struct {
	parts []Filter
}

func And(filters ...Filter) Filter {
	return andFilter{parts: filters}
}

func (f andFilter) String() string {
	var parts []string
	for _, p := range f.parts {
		parts = append(parts, p.String())
	}
	return "(&" + strings.Join(parts, "") + ")"
}

type orFilter struct {
	parts []Filter
}

func Or(filters ...Filter) Filter {
	return orFilter{parts: filters}
}

func (f orFilter) String() string {
	var parts []string
	for _, p := range f.parts {
		parts = append(parts, p.String())
	}
	return "(|" + strings.Join(parts, "") + ")"
}

type notFilter struct {
	part Filter
}

func Not(f Filter) Filter {
	return notFilter{part: f}
}

func (f notFilter) String() string {
	return "(!" + f.part.String() + ")"
}

// Eq matches attr against value. The value is escaped.
func Eq(attr, value string) Filter {
	return rawFilter("(" + attr + "=" + ldap.EscapeFilter(value) + ")")
}

// EqBytes matches a binary attribute byte for byte.
func EqBytes(attr string, value []byte) Filter {
	var b strings.Builder
	for _, c := range value {
		fmt.Fprintf(&b, "\\%02x", c)
	}
	return rawFilter("(" + attr + "=" + b.String() + ")")
}

func Present(attr string) Filter {
	return rawFilter("(" + attr + "=*)")
}

// adGUIDBytes converts an RFC 4122 UUID to the little endian layout Active
// Directory stores in objectGUID.
func adGUIDBytes(u uuid.UUID) []byte {
	b := make([]byte, 16)
	copy(b, u[:])
	b[0], b[1], b[2], b[3] = b[3], b[2], b[1], b[0]
	b[4], b[5] = b[5], b[4]
	b[6], b[7] = b[7], b[6]
	return b
}

// UserFilter finds the directory account of a user by its UUID attribute.
func UserFilter(uuidAttribute string, user uuid.UUID) Filter {
	var match Filter
	if strings.EqualFold(uuidAttribute, "objectGUID") {
		match = EqBytes(uuidAttribute, adGUIDBytes(user))
	} else {
		match = Eq(uuidAttribute, user.String())
	}
	return And(
		Or(Eq("objectClass", "person"), Eq("objectClass", "inetOrgPerson")),
		match,
		Not(Eq("objectClass", "computer")),
	)
}
