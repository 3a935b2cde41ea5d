package unifs

import (
	"fmt"
	"net/url"
	"strings"
)

// Kind identifies the storage variant a Location selects.
type Kind int

const (
	KindLocal Kind = iota
	KindS3
	KindAzure
	KindBunny
	KindConsul
	KindSQLite
	KindPostgres
)

func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindS3:
		return "s3"
	case KindAzure:
		return "azure"
	case KindBunny:
		return "bunnycdn"
	case KindConsul:
		return "consul"
	case KindSQLite:
		return "sqlite"
	case KindPostgres:
		return "postgres"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

var schemes = map[string]Kind{
	"s3":         KindS3,
	"azure":      KindAzure,
	"bunnycdn":   KindBunny,
	"consul":     KindConsul,
	"sqlite":     KindSQLite,
	"postgres":   KindPostgres,
	"postgresql": KindPostgres,
}

// Location is a parsed location descriptor. Credentials are kept as given;
// String redacts the secret.
type Location struct {
	Kind Kind

	// Host is the authority without userinfo: the S3 endpoint, the Azure
	// container, the BunnyCDN zone or the Consul address.
	Host string
	// Path is the path component, the local root for KindLocal.
	Path string

	Username string
	Secret   string
	Query    url.Values

	raw string
}

// ParseLocation maps a descriptor to a Location. Descriptors without a
// known scheme select the local backend rooted at their path component.
//
// Userinfo is split on the last "@" so raw keys containing "/" or "+"
// parse; userinfo components are percent-decoded.
func ParseLocation(descriptor string) (*Location, error) {
	scheme, rest, found := strings.Cut(descriptor, "://")
	if !found {
		return &Location{Kind: KindLocal, Path: descriptor, raw: descriptor}, nil
	}

	kind, known := schemes[strings.ToLower(scheme)]
	if !known {
		return &Location{Kind: KindLocal, Path: localPath(rest), raw: descriptor}, nil
	}

	loc := &Location{Kind: kind, raw: descriptor, Query: url.Values{}}

	rest, rawQuery, _ := strings.Cut(rest, "?")
	if rawQuery != "" {
		query, err := url.ParseQuery(rawQuery)
		if err != nil {
			return nil, fmt.Errorf("invalid query in %s descriptor: %w", kind, err)
		}
		loc.Query = query
	}

	if at := strings.LastIndex(rest, "@"); at >= 0 {
		userinfo := rest[:at]
		rest = rest[at+1:]

		username, secret, _ := strings.Cut(userinfo, ":")
		var err error
		if loc.Username, err = url.PathUnescape(username); err != nil {
			return nil, fmt.Errorf("invalid username in %s descriptor: %w", kind, err)
		}
		if loc.Secret, err = url.PathUnescape(secret); err != nil {
			return nil, fmt.Errorf("invalid secret in %s descriptor: %w", kind, err)
		}
	}

	host, path, hasPath := strings.Cut(rest, "/")
	loc.Host = host
	if hasPath {
		loc.Path = "/" + path
	}

	return loc, loc.validate()
}

// localPath returns the path component of an unrecognized URL.
func localPath(rest string) string {
	if idx := strings.Index(rest, "/"); idx >= 0 {
		return rest[idx:]
	}
	return rest
}

func (l *Location) validate() error {
	switch l.Kind {
	case KindS3:
		if l.Bucket() == "" {
			return fmt.Errorf("s3 descriptor requires a bucket")
		}
		if l.Username == "" || l.Secret == "" {
			return fmt.Errorf("s3 descriptor requires access and secret key")
		}
	case KindAzure:
		if l.Host == "" || l.Username == "" || l.Secret == "" {
			return fmt.Errorf("azure descriptor requires account, key and container")
		}
	case KindBunny:
		if l.Host == "" || l.Username == "" {
			return fmt.Errorf("bunnycdn descriptor requires access key and zone")
		}
	case KindSQLite:
		if l.DSN() == "" {
			return fmt.Errorf("sqlite descriptor requires a path")
		}
	}

	return nil
}

// Bucket returns the first path segment, the S3 bucket.
func (l *Location) Bucket() string {
	bucket, _, _ := strings.Cut(strings.TrimPrefix(l.Path, "/"), "/")
	return bucket
}

// DSN returns the database source of SQL locations.
func (l *Location) DSN() string {
	switch l.Kind {
	case KindSQLite:
		return l.Host + l.Path
	case KindPostgres:
		if !l.Query.Has("readonly") {
			return l.raw
		}
		// readonly is consumed by Open and unknown to the server
		u, err := url.Parse(l.raw)
		if err != nil {
			return l.raw
		}
		query := u.Query()
		query.Del("readonly")
		u.RawQuery = query.Encode()
		return u.String()
	default:
		return ""
	}
}

// String returns the descriptor with the secret redacted.
func (l *Location) String() string {
	if l.Kind == KindLocal {
		return l.raw
	}
	if l.Kind == KindPostgres {
		if u, err := url.Parse(l.raw); err == nil {
			return u.Redacted()
		}
	}

	var sb strings.Builder
	sb.WriteString(l.Kind.String())
	sb.WriteString("://")
	if l.Username != "" {
		if l.Kind == KindBunny || l.Kind == KindConsul {
			sb.WriteString("xxxxx")
		} else {
			sb.WriteString(url.PathEscape(l.Username))
		}
		if l.Secret != "" {
			sb.WriteString(":xxxxx")
		}
		sb.WriteString("@")
	}
	sb.WriteString(l.Host)
	sb.WriteString(l.Path)
	if len(l.Query) > 0 {
		sb.WriteString("?")
		sb.WriteString(l.Query.Encode())
	}

	return sb.String()
}
