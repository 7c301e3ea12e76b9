package briefing

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/founderpulse/insights/internal/config"
	"github.com/founderpulse/insights/internal/domain"
)

type section struct {
	Name      string
	Types     []domain.ContentType
	Mandatory bool
}

func (s section) hasType(t domain.ContentType) bool {
	for _, st := range s.Types {
		if st == t {
			return true
		}
	}
	return false
}

// sectionOrder fixes the rendered order of sections. Metrics and
// execution are mandatory: they are never trimmed empty while any
// qualifying content exists.
var sectionOrder = []section{
	{Name: "Key Metrics", Types: []domain.ContentType{domain.ContentAnomaly, domain.ContentKPISnapshot}, Mandatory: true},
	{Name: "Today", Types: []domain.ContentType{domain.ContentTask, domain.ContentMeeting}, Mandatory: true},
	{Name: "Insights", Types: []domain.ContentType{domain.ContentInsight, domain.ContentDecision}, Mandatory: false},
	{Name: "Inbox", Types: []domain.ContentType{domain.ContentMessage}, Mandatory: false},
}

// maxCategoryShare caps how many selected items may share one category.
const maxCategoryShare = 3

// Selector assembles the final digest from the scored pool.
type Selector struct {
	cfg config.BriefingConfig
}

// NewSelector returns a selector with the configured caps.
func NewSelector(cfg config.BriefingConfig) *Selector {
	return &Selector{cfg: cfg}
}

// Select sorts, caps, diversifies, and trims the candidate pool into a
// Briefing that fits the read-time target. It always returns a
// briefing; an empty pool yields one with a data-quality note.
func (s *Selector) Select(tenant string, btype domain.BriefingType, candidates []domain.ContentItem, now time.Time, note string) domain.Briefing {
	picked := s.pick(candidates)
	picked = s.trimToReadTime(picked)

	b := domain.Briefing{
		ID:              uuid.NewString(),
		Tenant:          tenant,
		Type:            btype,
		GeneratedAt:     now,
		ReadTimeSeconds: s.readSeconds(picked),
		DataQualityNote: note,
		Sections:        s.sectionize(picked),
	}
	if len(picked) == 0 && note == "" {
		b.DataQualityNote = "No qualifying content this period."
	}

	log.Debug().Str("tenant", tenant).Int("candidates", len(candidates)).
		Int("selected", len(picked)).Int("read_secs", b.ReadTimeSeconds).Msg("briefing assembled")
	return b
}

// pick applies score ordering, per-type caps, the total cap, and the
// category diversity bound. Mandatory sections claim their floor of
// slots first so a deep pool of high-scoring optional content cannot
// crowd them out. Ties break by higher urgency then lexical id,
// keeping selection deterministic.
func (s *Selector) pick(candidates []domain.ContentItem) []domain.ContentItem {
	pool := make([]domain.ContentItem, len(candidates))
	copy(pool, candidates)
	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].Score != pool[j].Score {
			return pool[i].Score > pool[j].Score
		}
		if pool[i].Urgency != pool[j].Urgency {
			return pool[i].Urgency > pool[j].Urgency
		}
		return pool[i].ID < pool[j].ID
	})

	perType := make(map[domain.ContentType]int)
	perCategory := make(map[string]int)
	taken := make(map[int]bool)
	var out []domain.ContentItem

	admit := func(i int) bool {
		item := pool[i]
		if taken[i] || len(out) >= s.cfg.MaxItems {
			return false
		}
		limit, ok := s.cfg.MaxPerType[string(item.Type)]
		if !ok {
			limit = 3
		}
		if perType[item.Type] >= limit {
			return false
		}
		if perCategory[item.Category] >= maxCategoryShare {
			return false
		}
		taken[i] = true
		perType[item.Type]++
		perCategory[item.Category]++
		out = append(out, item)
		return true
	}

	floor := s.cfg.MinPerMandatory
	if floor < 1 {
		floor = 1
	}
	for _, sec := range sectionOrder {
		if !sec.Mandatory {
			continue
		}
		seeded := 0
		for i := range pool {
			if seeded >= floor {
				break
			}
			if !sec.hasType(pool[i].Type) {
				continue
			}
			if admit(i) {
				seeded++
			}
		}
	}

	for i := range pool {
		admit(i)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Urgency != out[j].Urgency {
			return out[i].Urgency > out[j].Urgency
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// trimToReadTime drops the lowest-scoring item until the estimate fits
// the target window, but never empties a mandatory section below the
// configured floor.
func (s *Selector) trimToReadTime(items []domain.ContentItem) []domain.ContentItem {
	for s.readSeconds(items) > s.cfg.TargetReadSecs {
		idx := s.lowestDroppable(items)
		if idx < 0 {
			break // only mandatory-floor items remain
		}
		items = append(items[:idx], items[idx+1:]...)
	}
	return items
}

// lowestDroppable finds the lowest-scoring item whose removal keeps
// every mandatory section at its floor. Returns -1 when nothing can go.
func (s *Selector) lowestDroppable(items []domain.ContentItem) int {
	mandatory := make(map[domain.ContentType]string)
	sectionCount := make(map[string]int)
	for _, sec := range sectionOrder {
		for _, t := range sec.Types {
			if sec.Mandatory {
				mandatory[t] = sec.Name
			}
		}
	}
	for _, item := range items {
		if name, ok := mandatory[item.Type]; ok {
			sectionCount[name]++
		}
	}

	idx := -1
	lowest := 0.0
	for i, item := range items {
		if name, ok := mandatory[item.Type]; ok && sectionCount[name] <= s.cfg.MinPerMandatory {
			continue
		}
		if idx < 0 || item.Score < lowest {
			idx = i
			lowest = item.Score
		}
	}
	return idx
}

// readSeconds estimates reading time from word count at the configured
// reading speed.
func (s *Selector) readSeconds(items []domain.ContentItem) int {
	words := 0
	for _, item := range items {
		words += item.WordCount()
	}
	return int(float64(words) / float64(s.cfg.ReadingWPM) * 60)
}

// sectionize groups selected items into the fixed section layout,
// dropping sections that ended up empty.
func (s *Selector) sectionize(items []domain.ContentItem) []domain.BriefingSection {
	byType := make(map[domain.ContentType][]domain.ContentItem)
	for _, item := range items {
		byType[item.Type] = append(byType[item.Type], item)
	}

	var out []domain.BriefingSection
	for _, sec := range sectionOrder {
		var secItems []domain.ContentItem
		for _, t := range sec.Types {
			secItems = append(secItems, byType[t]...)
		}
		if len(secItems) == 0 {
			continue
		}
		sort.SliceStable(secItems, func(i, j int) bool {
			if secItems[i].Score != secItems[j].Score {
				return secItems[i].Score > secItems[j].Score
			}
			return secItems[i].ID < secItems[j].ID
		})
		out = append(out, domain.BriefingSection{Name: sec.Name, Mandatory: sec.Mandatory, Items: secItems})
	}
	return out
}

// Describe renders a one-line summary for logs and the delivery layer.
func Describe(b domain.Briefing) string {
	return fmt.Sprintf("%s briefing %s: %d items, ~%ds read", b.Type, b.ID, b.ItemCount(), b.ReadTimeSeconds)
}
