package kds

import (
	"fmt"

	"github.com/appetiteclub/apt"
)

// FallbackStation is the literal last-resort station when nothing else
// is configured.
const FallbackStation = "Main"

// Directory answers routing lookups. Implementations return empty
// strings for signals they do not have; the resolver never fails.
type Directory interface {
	// ProductRoute returns the product master's default kitchen and
	// station for a product code.
	ProductRoute(productCode string) (kitchen, station string)
	// CategoryStation returns the station mapped to a menu category.
	CategoryStation(category string) string
	// KitchenDefaultStation returns the kitchen's own default station.
	KitchenDefaultStation(kitchenID string) string
	// DefaultStation returns the system-wide default station.
	DefaultStation() string
}

// Resolver decides which (kitchen, station) pair prepares an order
// item, via a fixed priority chain where each step may only fill the
// still-missing half of the pair.
type Resolver struct {
	dir Directory
}

func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir}
}

// Resolve returns the (kitchen, station) pair for the item and writes
// it back onto the item, so repeat calls and downstream grouping see
// the same answer.
func (r *Resolver) Resolve(item *OrderItem) (kitchen, station string) {
	kitchen = item.Kitchen
	station = item.Station

	if kitchen == "" || station == "" {
		pk, ps := r.dir.ProductRoute(item.ProductCode)
		if kitchen == "" {
			kitchen = pk
		}
		if station == "" {
			station = ps
		}
	}

	if station == "" && item.Category != "" {
		station = r.dir.CategoryStation(item.Category)
	}

	if station == "" && kitchen != "" {
		station = r.dir.KitchenDefaultStation(kitchen)
	}

	if station == "" {
		station = r.dir.DefaultStation()
	}
	if station == "" {
		station = FallbackStation
	}

	item.Kitchen = kitchen
	item.Station = station
	return kitchen, station
}

// StationGroup is the set of order items bound for one station; each
// group becomes exactly one ticket.
type StationGroup struct {
	KitchenID string
	StationID string
	Items     []*OrderItem
}

// GroupByStation resolves every item and partitions them by station,
// preserving the order items first appeared in.
func (r *Resolver) GroupByStation(items []*OrderItem) []StationGroup {
	var groups []StationGroup
	index := make(map[string]int)

	for _, item := range items {
		kitchen, station := r.Resolve(item)
		i, ok := index[station]
		if !ok {
			index[station] = len(groups)
			groups = append(groups, StationGroup{KitchenID: kitchen, StationID: station})
			i = len(groups) - 1
		}
		groups[i].Items = append(groups[i].Items, item)
	}
	return groups
}

// ConfigDirectory reads routing signals from service configuration.
//
// Keys:
//
//	routing.product.<code>.kitchen
//	routing.product.<code>.station
//	routing.category.<category>
//	routing.kitchen.<kitchen>.default_station
//	routing.default_station
type ConfigDirectory struct {
	config *apt.Config
}

func NewConfigDirectory(config *apt.Config) *ConfigDirectory {
	return &ConfigDirectory{config: config}
}

func (d *ConfigDirectory) ProductRoute(productCode string) (string, string) {
	kitchen, _ := d.config.GetString(fmt.Sprintf("routing.product.%s.kitchen", productCode))
	station, _ := d.config.GetString(fmt.Sprintf("routing.product.%s.station", productCode))
	return kitchen, station
}

func (d *ConfigDirectory) CategoryStation(category string) string {
	station, _ := d.config.GetString(fmt.Sprintf("routing.category.%s", category))
	return station
}

func (d *ConfigDirectory) KitchenDefaultStation(kitchenID string) string {
	station, _ := d.config.GetString(fmt.Sprintf("routing.kitchen.%s.default_station", kitchenID))
	return station
}

func (d *ConfigDirectory) DefaultStation() string {
	station, _ := d.config.GetString("routing.default_station")
	return station
}
