package geo

import (
	"math"

	"github.com/lcalzada-xor/geoview/internal/core/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// TileSize is the edge of a raster tile in pixels.
const TileSize = 256

// ToOrb converts a position to an orb point (lon, lat order).
func ToOrb(p domain.GeoPosition) orb.Point {
	return orb.Point{p.Longitude, p.Latitude}
}

// TileAt returns the tile containing pos at the given integer zoom.
func TileAt(pos domain.GeoPosition, zoom int) maptile.Tile {
	return maptile.At(ToOrb(domain.GeoPosition{
		Latitude:  ClampLatitude(pos.Latitude),
		Longitude: pos.Longitude,
	}), maptile.Zoom(zoom))
}

// VisibleTiles lists the tiles needed to cover a width x height pixel viewport
// centered on the view, with one buffer tile on each side.
func VisibleTiles(view domain.ViewState, width, height int) ([]maptile.Tile, error) {
	center, err := Unproject(view.Center)
	if err != nil {
		return nil, err
	}

	zoom := int(math.Floor(domain.ClampZoom(view.ZoomLevel)))
	centerTile := TileAt(center, zoom)

	tilesX := width/TileSize + 2
	tilesY := height/TileSize + 2
	startX := int(centerTile.X) - tilesX/2
	startY := int(centerTile.Y) - tilesY/2
	maxTile := 1<<uint(zoom) - 1

	seen := make(map[maptile.Tile]struct{}, tilesX*tilesY)
	tiles := make([]maptile.Tile, 0, tilesX*tilesY)
	for x := startX; x < startX+tilesX; x++ {
		for y := startY; y < startY+tilesY; y++ {
			t := maptile.New(
				uint32(max(0, min(x, maxTile))),
				uint32(max(0, min(y, maxTile))),
				maptile.Zoom(zoom),
			)
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			tiles = append(tiles, t)
		}
	}
	return tiles, nil
}
