package roundup

import (
	"context"
	"fmt"
	"strings"

	"github.com/newsdocket/docket/pkg/dates"
	"github.com/newsdocket/docket/pkg/store"
)

// prevDay returns yesterday as a one-day period.
func prevDay(today dates.Date) (dates.Date, dates.Date) {
	end := today.AddDays(-1)
	return end, end
}

// prevWeek returns the Monday..Sunday week ending the most recent Sunday.
func prevWeek(today dates.Date) (dates.Date, dates.Date) {
	// days since Monday: Monday=0 .. Sunday=6
	sinceMonday := (int(today.Time().Weekday()) + 6) % 7
	end := today.AddDays(-(sinceMonday + 1))
	return end.AddDays(-6), end
}

// prevMonth returns the previous calendar month.
func prevMonth(today dates.Date) (dates.Date, dates.Date) {
	end := dates.NewDate(today.Year, today.Month, 1).AddDays(-1)
	return dates.NewDate(end.Year, end.Month, 1), end
}

// prevYear returns the previous calendar year.
func prevYear(today dates.Date) (dates.Date, dates.Date) {
	return dates.NewDate(today.Year-1, 1, 1), dates.NewDate(today.Year-1, 12, 31)
}

// slugify reduces a title to a lowercase hyphenated slug.
func slugify(text string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(text) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastHyphen = false
		case r == ' ' || r == '\t' || r == '\n' || r == '-' || r == '_':
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "item"
	}
	return slug
}

// uniqueSlug finds an unused slug for a title: the base form first, then a
// date suffix, then numeric suffixes.
func uniqueSlug(ctx context.Context, repo *store.RoundupRepository, title string, date dates.Date) (string, error) {
	base := slugify(title)

	taken, err := repo.SlugExists(ctx, base)
	if err != nil {
		return "", err
	}
	if !taken {
		return base, nil
	}

	candidate := base + "-" + date.String()
	taken, err = repo.SlugExists(ctx, candidate)
	if err != nil {
		return "", err
	}
	if !taken {
		return candidate, nil
	}

	for i := 2; ; i++ {
		candidate = fmt.Sprintf("%s-%d", base, i)
		taken, err = repo.SlugExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
}
