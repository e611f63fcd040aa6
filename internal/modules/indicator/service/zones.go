package service

import (
	"sort"

	"market_scanner/internal/models"
)

type pivot struct {
	index int
	price float64
}

// findPivots: строгие экстремумы: бар выше (ниже) всех k соседей с каждой стороны.
// Ровный участок пивотов не даёт.
func findPivots(c []models.Candle, start, k int) (highs, lows []pivot) {
	for i := start + k; i+k < len(c); i++ {
		isHigh, isLow := true, true
		for j := i - k; j <= i+k && (isHigh || isLow); j++ {
			if j == i {
				continue
			}
			if c[j].High >= c[i].High {
				isHigh = false
			}
			if c[j].Low <= c[i].Low {
				isLow = false
			}
		}
		if isHigh {
			highs = append(highs, pivot{index: i, price: c[i].High})
		}
		if isLow {
			lows = append(lows, pivot{index: i, price: c[i].Low})
		}
	}
	return highs, lows
}

// clusterZones: сортируем цены пивотов, кластер растёт, пока цена в пределах tol
// от первой точки кластера. Оставляем зоны с hits >= 2.
func clusterZones(pivots []pivot, tol float64, kind models.ZoneKind) []models.Zone {
	if len(pivots) == 0 {
		return nil
	}
	sorted := make([]pivot, len(pivots))
	copy(sorted, pivots)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].price < sorted[j].price })

	var zones []models.Zone
	flush := func(cluster []pivot) {
		if len(cluster) < 2 {
			return
		}
		z := models.Zone{Kind: kind, Low: cluster[0].price, High: cluster[0].price, Hits: len(cluster), LastIndex: -1}
		var sum float64
		for _, p := range cluster {
			sum += p.price
			z.Low = min(z.Low, p.price)
			z.High = max(z.High, p.price)
			z.LastIndex = max(z.LastIndex, p.index)
		}
		z.Price = sum / float64(len(cluster))
		zones = append(zones, z)
	}

	cluster := []pivot{sorted[0]}
	for _, p := range sorted[1:] {
		if p.price-cluster[0].price <= tol {
			cluster = append(cluster, p)
			continue
		}
		flush(cluster)
		cluster = []pivot{p}
	}
	flush(cluster)
	return zones
}

// byProximity: зоны от ближней к дальней, при равенстве свежая первой.
func byProximity(zones []models.Zone, price float64) []models.Zone {
	out := make([]models.Zone, len(zones))
	copy(out, zones)
	sort.SliceStable(out, func(i, j int) bool {
		di, dj := abs(out[i].Price-price), abs(out[j].Price-price)
		if di != dj {
			return di < dj
		}
		return out[i].LastIndex > out[j].LastIndex
	})
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
