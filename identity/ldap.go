package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"f0oster/lineage/apperrors"
	"f0oster/lineage/logging"

	"github.com/go-ldap/ldap/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GroupRole maps members of a directory group to a role.
type GroupRole struct {
	Role    string
	GroupCN string
}

// ParseGroupRoles reads "Role=group-cn;Role=group-cn". Order is priority:
// a user in several groups gets the first matching role.
func ParseGroupRoles(raw string) ([]GroupRole, error) {
	var out []GroupRole
	for _, pair := range strings.Split(raw, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		role, group, ok := strings.Cut(pair, "=")
		role, group = strings.TrimSpace(role), strings.TrimSpace(group)
		if !ok || role == "" || group == "" {
			return nil, fmt.Errorf("invalid group role mapping %q: expected Role=group-cn", pair)
		}
		out = append(out, GroupRole{Role: role, GroupCN: group})
	}
	return out, nil
}

// searcher is the part of *ldap.Conn the directory needs.
type searcher interface {
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
}

type DirectoryConfig struct {
	URL           string
	BindDN        string
	BindPassword  string
	BaseDN        string
	UUIDAttribute string
	GroupRoles    []GroupRole
}

// Directory resolves roles from LDAP group membership.
type Directory struct {
	cfg    DirectoryConfig
	logger *zap.Logger

	mu     sync.Mutex
	closer *ldap.Conn
	conn   searcher
}

func NewDirectory(cfg DirectoryConfig, logger *zap.Logger) *Directory {
	if cfg.UUIDAttribute == "" {
		cfg.UUIDAttribute = "objectGUID"
	}
	return &Directory{cfg: cfg, logger: logging.OrNop(logger)}
}

// Connect dials and binds the service account.
func (d *Directory) Connect() error {
	conn, err := ldap.DialURL(d.cfg.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to LDAP server: %w", err)
	}
	if err := conn.Bind(d.cfg.BindDN, d.cfg.BindPassword); err != nil {
		conn.Close()
		return fmt.Errorf("failed to bind to LDAP server: %w", err)
	}

	res, err := conn.WhoAmI(nil)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to call WhoAmI(): %w", err)
	}
	d.logger.Info("authenticated to directory", zap.String("url", d.cfg.URL), zap.String("authz_id", res.AuthzID))

	d.mu.Lock()
	d.closer = conn
	d.conn = conn
	d.mu.Unlock()
	return nil
}

func (d *Directory) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closer != nil {
		d.closer.Close()
	}
	d.closer, d.conn = nil, nil
}

// newDirectoryWithSearcher builds a directory over an existing search
// connection.
func newDirectoryWithSearcher(cfg DirectoryConfig, s searcher, logger *zap.Logger) *Directory {
	d := NewDirectory(cfg, logger)
	d.conn = s
	return d
}

// RoleFor returns the role of the first configured group the user is a
// member of.
func (d *Directory) RoleFor(_ context.Context, user uuid.UUID) (string, error) {
	d.mu.Lock()
	conn := d.conn
	d.mu.Unlock()
	if conn == nil {
		return "", fmt.Errorf("directory not connected")
	}

	req := ldap.NewSearchRequest(
		d.cfg.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		2, 0, false,
		UserFilter(d.cfg.UUIDAttribute, user).String(),
		[]string{"memberOf"},
		nil,
	)
	res, err := conn.Search(req)
	if err != nil {
		return "", fmt.Errorf("search user %s: %w", user, err)
	}
	switch len(res.Entries) {
	case 0:
		return "", apperrors.PermissionDenied("user %s is not in the directory", user)
	case 1:
	default:
		return "", fmt.Errorf("user %s matches %d directory entries", user, len(res.Entries))
	}

	groups := map[string]bool{}
	for _, dn := range res.Entries[0].GetAttributeValues("memberOf") {
		cn, err := commonName(dn)
		if err != nil {
			d.logger.Warn("skipping unparsable group", zap.String("dn", dn), zap.Error(err))
			continue
		}
		groups[strings.ToLower(cn)] = true
	}
	for _, gr := range d.cfg.GroupRoles {
		if groups[strings.ToLower(gr.GroupCN)] {
			return gr.Role, nil
		}
	}
	return "", nil
}

// commonName returns the first CN of a distinguished name.
func commonName(dn string) (string, error) {
	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return "", err
	}
	for _, rdn := range parsed.RDNs {
		for _, attr := range rdn.Attributes {
			if strings.EqualFold(attr.Type, "cn") {
				return attr.Value, nil
			}
		}
	}
	return "", fmt.Errorf("no CN in %q", dn)
}
