package market

// Sector is an industry grouping used for factor-model correlation.
type Sector int

const (
	Technology Sector = iota
	Financials
	Industrials
	Healthcare
	ConsumerDiscretionary
	ConsumerStaples
	Energy
	Utilities
	Materials
	RealEstate

	sectorCount
)

// Sectors lists every sector in stable index order.
func Sectors() []Sector {
	return []Sector{
		Technology, Financials, Industrials, Healthcare, ConsumerDiscretionary,
		ConsumerStaples, Energy, Utilities, Materials, RealEstate,
	}
}

// Index returns the sector's stable position in [0, SectorCount).
func (s Sector) Index() int { return int(s) }

// SectorCount is the number of distinct sectors.
const SectorCount = int(sectorCount)

// Prefix returns the short symbol-building prefix for the sector.
func (s Sector) Prefix() string {
	switch s {
	case Technology:
		return "TECH"
	case Financials:
		return "FIN"
	case Industrials:
		return "IND"
	case Healthcare:
		return "HLT"
	case ConsumerDiscretionary:
		return "CND"
	case ConsumerStaples:
		return "CNS"
	case Energy:
		return "ENG"
	case Utilities:
		return "UTL"
	case Materials:
		return "MAT"
	case RealEstate:
		return "REA"
	default:
		return "????"
	}
}

// String returns the human-readable label used in Display contexts.
func (s Sector) String() string {
	switch s {
	case Technology:
		return "Technology"
	case Financials:
		return "Financials"
	case Industrials:
		return "Industrials"
	case Healthcare:
		return "Healthcare"
	case ConsumerDiscretionary:
		return "Consumer Discretionary"
	case ConsumerStaples:
		return "Consumer Staples"
	case Energy:
		return "Energy"
	case Utilities:
		return "Utilities"
	case Materials:
		return "Materials"
	case RealEstate:
		return "Real Estate"
	default:
		return "unknown"
	}
}

// JSONName returns the snake_case variant used on the wire.
func (s Sector) JSONName() string {
	switch s {
	case Technology:
		return "technology"
	case Financials:
		return "financials"
	case Industrials:
		return "industrials"
	case Healthcare:
		return "healthcare"
	case ConsumerDiscretionary:
		return "consumer_discretionary"
	case ConsumerStaples:
		return "consumer_staples"
	case Energy:
		return "energy"
	case Utilities:
		return "utilities"
	case Materials:
		return "materials"
	case RealEstate:
		return "real_estate"
	default:
		return "unknown"
	}
}

// SectorFromJSONName parses a snake_case sector name, as produced by JSONName.
func SectorFromJSONName(s string) (Sector, bool) {
	for _, sec := range Sectors() {
		if sec.JSONName() == s {
			return sec, true
		}
	}
	return 0, false
}
