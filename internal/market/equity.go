package market

import "fmt"

// ReplicasPerBucket is the number of symbols generated per region/sector pair.
const ReplicasPerBucket = 10

// Equity is a single simulated instrument's static identity.
type Equity struct {
	Symbol string
	Region Region
	Sector Sector
}

// DefaultEquities returns the stable 500-symbol universe: Region x Sector x 10
// replicas, regions outer, sectors middle, replicas inner. Symbol format is
// "{region_prefix}{sector_prefix}{NNN}" with a three-digit zero-padded replica.
func DefaultEquities() []Equity {
	equities := make([]Equity, 0, RegionCount*SectorCount*ReplicasPerBucket)
	for _, region := range Regions() {
		for _, sector := range Sectors() {
			for replica := 0; replica < ReplicasPerBucket; replica++ {
				equities = append(equities, Equity{
					Symbol: fmt.Sprintf("%s%s%03d", region.Prefix(), sector.Prefix(), replica),
					Region: region,
					Sector: sector,
				})
			}
		}
	}
	if want := RegionCount * SectorCount * ReplicasPerBucket; len(equities) != want {
		panic(fmt.Sprintf("default equity universe size mismatch: got %d, want %d", len(equities), want))
	}
	return equities
}
