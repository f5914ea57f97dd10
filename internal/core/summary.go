package core

// MonthlySummary aggregates the expenses of one calendar month.
// ByCategory is keyed by the category's name at the time the summary is computed.
type MonthlySummary struct {
	Year       int
	Month      int // 1-12
	Total      Money
	Count      int
	ByCategory map[string]Money
}

// NewMonthlySummary returns an empty summary for year/month.
func NewMonthlySummary(year, month int) MonthlySummary {
	return MonthlySummary{
		Year:       year,
		Month:      month,
		ByCategory: make(map[string]Money),
	}
}

// Add accumulates an expense amount under categoryName.
func (s *MonthlySummary) Add(categoryName string, amount Money) {
	s.Total = s.Total.Add(amount)
	s.Count++
	s.ByCategory[categoryName] = s.ByCategory[categoryName].Add(amount)
}
