package wiki

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// attributionRoles is the fixed rendering order for credit lines.
var attributionRoles = []string{"autor", "reescritor", "traductor", "mantenimiento"}

func roleRank(role string) (int, error) {
	for i, r := range attributionRoles {
		if r == role {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown attribution role %q", ErrLookup, role)
}

// AttributionOptions controls how BuildAttributionString renders credit
// lines. Templates are keyed by role and may reference {user}, {date}
// and {hdate}; GroupTemplates additionally take {users} and {last_user}
// and are used for groups of more than one record sharing a role and
// date. UserFormatter, when set, wraps each user name via its {user}
// placeholder before templating.
type AttributionOptions struct {
	Templates      map[string]string
	GroupTemplates map[string]string
	Separator      string
	UserFormatter  string
}

// BuildAttributionString renders the page's attribution metadata into a
// deterministic, human-readable credit string. Records are sorted by
// role rank then date, records sharing both are merged into one credit
// line when a group template exists, and lines are joined with the
// separator. Unknown roles are an error, never dropped.
func (p *Page) BuildAttributionString(ctx context.Context, opts AttributionOptions) (string, error) {
	meta, err := p.Metadata(ctx)
	if err != nil {
		return "", err
	}
	return RenderAttribution(meta, opts)
}

// RenderAttribution is the pure half of BuildAttributionString, usable
// against any metadata set.
func RenderAttribution(meta map[string]Metadata, opts AttributionOptions) (string, error) {
	templates := opts.Templates
	if templates == nil {
		templates = map[string]string{}
		for _, role := range attributionRoles {
			templates[role] = fmt.Sprintf("{user} (%s)", role)
		}
	}
	separator := opts.Separator
	if separator == "" {
		separator = ", "
	}

	items := make([]Metadata, 0, len(meta))
	for _, m := range meta {
		items = append(items, m)
	}
	ranks := map[string]int{}
	for _, m := range items {
		rank, err := roleRank(m.Role)
		if err != nil {
			return "", err
		}
		ranks[m.Role] = rank
	}
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if ranks[a.Role] != ranks[b.Role] {
			return ranks[a.Role] < ranks[b.Role]
		}
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		return a.User < b.User
	})

	formatUser := func(user string) string {
		if opts.UserFormatter == "" {
			return user
		}
		return strings.ReplaceAll(opts.UserFormatter, "{user}", user)
	}

	var lines []string
	for i := 0; i < len(items); {
		role, date := items[i].Role, items[i].Date
		j := i
		var users []string
		for ; j < len(items) && items[j].Role == role && items[j].Date == date; j++ {
			users = append(users, formatUser(items[j].User))
		}
		hdate := ""
		if date != "" {
			hdate = humanizeDate(date)
		}

		if group, ok := opts.GroupTemplates[role]; ok && len(users) > 1 {
			line := strings.NewReplacer(
				"{date}", date,
				"{hdate}", hdate,
				"{users}", strings.Join(users[:len(users)-1], ", "),
				"{last_user}", users[len(users)-1],
			).Replace(group)
			lines = append(lines, line)
		} else {
			tmpl, ok := templates[role]
			if !ok {
				return "", fmt.Errorf("%w: no template for role %q", ErrLookup, role)
			}
			for _, user := range users {
				line := strings.NewReplacer(
					"{date}", date,
					"{hdate}", hdate,
					"{user}", user,
				).Replace(tmpl)
				lines = append(lines, line)
			}
		}
		i = j
	}
	return strings.Join(lines, separator), nil
}

var dateLayouts = []string{"2006-01-02 15:04:05", "2006-01-02", "2006-01"}

// humanizeDate renders a date as a rough relative phrase ("3 years
// ago"). Unparseable dates come back verbatim.
func humanizeDate(date string) string {
	var parsed time.Time
	var err error
	for _, layout := range dateLayouts {
		parsed, err = time.Parse(layout, date)
		if err == nil {
			break
		}
	}
	if err != nil {
		return date
	}

	elapsed := time.Since(parsed)
	switch {
	case elapsed < time.Minute:
		return "just now"
	case elapsed < time.Hour:
		return plural(int(elapsed.Minutes()), "minute")
	case elapsed < 24*time.Hour:
		return plural(int(elapsed.Hours()), "hour")
	case elapsed < 31*24*time.Hour:
		return plural(int(elapsed.Hours()/24), "day")
	case elapsed < 365*24*time.Hour:
		return plural(int(elapsed.Hours()/(24*30)), "month")
	default:
		return plural(int(elapsed.Hours()/(24*365)), "year")
	}
}

func plural(n int, unit string) string {
	if n <= 1 {
		return fmt.Sprintf("a %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}
