// Package roles implements the site-wide role hierarchy: rank computation,
// role-name normalization and the grant/act-on rules every authorization
// decision is built from. It performs no I/O.
package roles

import (
	"strings"
	"unicode"

	"github.com/platinummonkey/watchlist/pkg/apperr"
	"golang.org/x/text/unicode/norm"
)

// Role is a normalized site role.
type Role string

// Built-in roles, highest first.
const (
	Owner     Role = "owner"
	Admin     Role = "admin"
	Moderator Role = "moderator"
	Member    Role = "member"
	User      Role = "user"
	Guest     Role = "guest"
)

// Well-known ranks.
const (
	RankOwner     = 100
	RankAdmin     = 80
	RankModerator = 50
	RankMember    = 20
	RankUser      = 10
	RankGuest     = 0
)

var ranks = map[Role]int{
	Owner:     RankOwner,
	Admin:     RankAdmin,
	Moderator: RankModerator,
	Member:    RankMember,
	User:      RankUser,
	Guest:     RankGuest,
}

// Locale spellings seen in stored profiles, keyed by their ASCII fold.
var aliases = map[string]Role{
	"invite":          Guest,
	"invitee":         Guest,
	"membre":          Member,
	"moderateur":      Moderator,
	"moderatrice":     Moderator,
	"administrateur":  Admin,
	"administratrice": Admin,
	"proprietaire":    Owner,
	"utilisateur":     User,
	"utilisatrice":    User,
}

// Builtin returns the built-in roles, highest rank first.
func Builtin() []Role {
	return []Role{Owner, Admin, Moderator, Member, User, Guest}
}

// IsBuiltin reports whether r is one of the built-in roles.
func IsBuiltin(r Role) bool {
	_, ok := ranks[r]
	return ok
}

// DefaultHook is called whenever Normalize falls back to User for an
// unrecognized value. The server installs a logging hook at startup.
var DefaultHook func(raw string)

// Normalize folds case and diacritics and maps locale variants onto the
// closed role set. defaulted reports that nothing matched and the value was
// replaced by User; use Parse to keep custom registry role names.
func Normalize(raw string) (r Role, defaulted bool) {
	folded := fold(raw)
	if folded == "" {
		notify(raw)
		return User, true
	}
	if _, ok := ranks[Role(folded)]; ok {
		return Role(folded), false
	}
	if alias, ok := aliases[folded]; ok {
		return alias, false
	}
	notify(raw)
	return User, true
}

// Parse normalizes raw, keeping the original (trimmed, lowercased) name for
// non-builtin values so custom registry roles survive a round trip. Only the
// rank is defaulted for those.
func Parse(raw string) Role {
	folded := fold(raw)
	if _, ok := ranks[Role(folded)]; ok {
		return Role(folded)
	}
	if alias, ok := aliases[folded]; ok {
		return alias
	}
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "" {
		return User
	}
	return Role(name)
}

func notify(raw string) {
	if DefaultHook != nil {
		DefaultHook(raw)
	}
}

func fold(s string) string {
	s = norm.NFKD.String(strings.TrimSpace(s))
	s = strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, s)
	return strings.ToLower(s)
}

// Rank returns the rank of a raw role name. Unknown names rank as User.
func Rank(raw string) int {
	r, _ := Normalize(raw)
	return ranks[r]
}

// RankOf returns the rank of a role. Roles outside the built-in set rank as User.
func RankOf(r Role) int {
	if rank, ok := ranks[r]; ok {
		return rank
	}
	return RankUser
}

// IsAdminRole reports whether holding r implies the admin flag.
func IsAdminRole(r Role) bool {
	return r == Owner || r == Admin
}

// CanActOn checks whether an actor may modify a target member. Acting on
// oneself is always allowed here; other rules apply separately.
func CanActOn(actorRank int, actorID string, targetRank int, targetID string) error {
	if actorID == targetID {
		return nil
	}
	if targetRank >= actorRank {
		return apperr.ErrForbiddenHigherOrEqual
	}
	return nil
}

// CanGrant checks whether an actor may set newRole on a target. The rank
// rule is checked first: a role is granted only below the actor's own rank,
// except for the unique owner keeping their own owner role. Owner is never
// granted to someone else.
func CanGrant(actorRank int, actorID, targetID string, newRole Role, actorIsOwner bool) error {
	self := actorID == targetID
	ownerKeepsOwner := actorIsOwner && self && newRole == Owner
	if RankOf(newRole) >= actorRank && !ownerKeepsOwner {
		return apperr.ErrForbiddenCannotGrantEqualOrHigher
	}
	if newRole == Owner && !self {
		return apperr.ErrOwnerUnique
	}
	return nil
}
