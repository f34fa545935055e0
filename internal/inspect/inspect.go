// Package inspect renders the attributes of a clicked map feature: the
// popup model, the well-known attribute aliases, and polygon area.
package inspect

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// PopupInfo describes the most recently clicked feature. At most one is live
// at a time.
type PopupInfo struct {
	LayerName  string         `json:"layerName"`
	LngLat     orb.Point      `json:"lngLat"`
	Properties map[string]any `json:"properties"`
	AreaHa     *float64       `json:"areaHa,omitempty"`
}

// New builds the popup model for a clicked feature. Polygon and MultiPolygon
// geometries get an area in hectares, rounded to two decimals; other
// geometries carry none.
func New(layerName string, at orb.Point, properties map[string]any, geom orb.Geometry) *PopupInfo {
	p := &PopupInfo{
		LayerName:  layerName,
		LngLat:     at,
		Properties: properties,
	}
	if properties == nil {
		p.Properties = map[string]any{}
	}

	switch geom.(type) {
	case orb.Polygon, orb.MultiPolygon:
		ha := math.Round(math.Abs(geo.Area(geom))/10000*100) / 100
		p.AreaHa = &ha
	}
	return p
}

// Coordinates formats the click location as "lng, lat" with 6-decimal
// precision, the string offered by the copy-to-clipboard affordance.
func (p *PopupInfo) Coordinates() string {
	return fmt.Sprintf("%.6f, %.6f", p.LngLat[0], p.LngLat[1])
}

// Attribute is one row of the popup's attribute table.
type Attribute struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Placeholder shown when no alias carries a usable value.
const Placeholder = "-"

// Well-known property-name aliases per logical field, probed in order.
var (
	nameAliases   = []string{"NAMOBJ", "NAME_OBJ", "NAME", "NAMA", "NAMA_OBJEK"}
	remarkAliases = []string{"REMARK", "CATATAN", "NOTE"}
	legalAliases  = []string{"NO PERDA", "NOPERDA", "NO_PERDA", "PERDA"}
	areaAliases   = []string{"LUAS", "LUAS_HA", "AREA_HA"}
)

// Attributes derives the popup's attribute rows. The computed polygon area
// takes precedence over any area-like property.
func (p *PopupInfo) Attributes() []Attribute {
	area := any(nil)
	if p.AreaHa != nil {
		area = *p.AreaHa
	} else {
		area = pickValue(p.Properties, areaAliases)
	}

	return []Attribute{
		{Label: "Nama Objek", Value: formatValue(pickValue(p.Properties, nameAliases))},
		{Label: "Catatan", Value: formatValue(pickValue(p.Properties, remarkAliases))},
		{Label: "Perda", Value: formatValue(pickValue(p.Properties, legalAliases))},
		{Label: "Luas (Ha)", Value: formatValue(area)},
	}
}

// pickValue returns the first present, non-blank value among the keys.
func pickValue(props map[string]any, keys []string) any {
	for _, key := range keys {
		v, ok := props[key]
		if !ok || v == nil {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(v)) == "" {
			continue
		}
		return v
	}
	return nil
}

// formatValue renders a property value: blanks become the placeholder,
// numeric-looking values get thousands separators, anything else is shown
// verbatim.
func formatValue(v any) string {
	if v == nil {
		return Placeholder
	}
	s := fmt.Sprint(v)
	if strings.TrimSpace(s) == "" {
		return Placeholder
	}
	if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return humanize.Commaf(f)
	}
	return s
}
